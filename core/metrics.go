package core

import "time"

// Metrics records lifecycle & progress observations.
type Metrics interface {
	// RecordTransition records an applied state transition of an entity ("enrollment" | "payment").
	RecordTransition(entity, from, to string)
	// RecordRejectedTransition records a transition refused by the transition table.
	RecordRejectedTransition(entity, from, event string)
	// RecordProgressRecompute records how long a progress recomputation took.
	RecordProgressRecompute(d time.Duration)
	// RecordSessionStatus records a derived live session status served to a viewer.
	RecordSessionStatus(status string)
}

type noopMetrics struct{}

// NoopMetrics discards everything.
var NoopMetrics Metrics = noopMetrics{}

func (noopMetrics) RecordTransition(string, string, string)         {}
func (noopMetrics) RecordRejectedTransition(string, string, string) {}
func (noopMetrics) RecordProgressRecompute(time.Duration)           {}
func (noopMetrics) RecordSessionStatus(string)                      {}
