package auditsvc

import (
	"context"
	"fmt"
	"sync"

	"github.com/pan-thu/lets-talk-sub000/core"
	"github.com/pan-thu/lets-talk-sub000/core/audit"
)

type loggerSink struct {
	logger core.Logger
}

var _ audit.Sink = (*loggerSink)(nil)

// NewLoggerSink writes every event to logger at info level.
func NewLoggerSink(logger core.Logger) audit.Sink {
	return &loggerSink{logger: logger}
}

func (s loggerSink) Emit(_ context.Context, evt audit.Event) {
	fields := map[string]interface{}{
		"audit_type":  string(evt.Type),
		"actor_id":    evt.ActorID,
		"occurred_at": evt.OccurredAt,
	}
	for k, v := range map[string]string{
		"course_id":     evt.CourseID,
		"session_id":    evt.SessionID,
		"enrollment_id": evt.EnrollmentID,
		"payment_id":    evt.PaymentID,
	} {
		if v != "" {
			fields[k] = v
		}
	}
	for k, v := range evt.Data {
		fields["data_"+k] = v
	}
	s.logger.Info(fmt.Sprintf("audit: %s", evt.Type), fields)
}

type fanout []audit.Sink

// Fanout emits every event to each of sinks, in order.
func Fanout(sinks ...audit.Sink) audit.Sink {
	return fanout(sinks)
}

func (f fanout) Emit(ctx context.Context, evt audit.Event) {
	for _, s := range f {
		s.Emit(ctx, evt)
	}
}

// Recorder keeps emitted events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []audit.Event
}

var _ audit.Sink = (*Recorder)(nil)

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Emit(_ context.Context, evt audit.Event) {
	r.mu.Lock()
	r.events = append(r.events, evt)
	r.mu.Unlock()
}

func (r *Recorder) Events() []audit.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	events := make([]audit.Event, len(r.events))
	copy(events, r.events)
	return events
}

func (r *Recorder) Types() []audit.EventType {
	events := r.Events()
	types := make([]audit.EventType, 0, len(events))
	for _, evt := range events {
		types = append(types, evt.Type)
	}
	return types
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}
