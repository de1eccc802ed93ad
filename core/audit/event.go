package audit

import (
	"context"
	"time"
)

type EventType string

const (
	LiveScheduled     EventType = "LIVE_SCHEDULED"
	LiveUpdated       EventType = "LIVE_UPDATED"
	LiveCancelled     EventType = "LIVE_CANCELLED"
	RecordingUploaded EventType = "RECORDING_UPLOADED"
	SubmissionGraded  EventType = "SUBMISSION_GRADED"
	PaymentSubmitted  EventType = "PAYMENT_SUBMITTED"
	PaymentApproved   EventType = "PAYMENT_APPROVED"
	PaymentRejected   EventType = "PAYMENT_REJECTED"
	PaymentFailed     EventType = "PAYMENT_FAILED"
)

// Event is a structured notification of a state-changing action.
type Event struct {
	Type         EventType              `json:"type"`
	ActorID      string                 `json:"actor_id,omitempty"`
	CourseID     string                 `json:"course_id,omitempty"`
	SessionID    string                 `json:"session_id,omitempty"`
	EnrollmentID string                 `json:"enrollment_id,omitempty"`
	PaymentID    string                 `json:"payment_id,omitempty"`
	OccurredAt   time.Time              `json:"occurred_at"`
	Data         map[string]interface{} `json:"data,omitempty"`
}

// Sink consumes audit events. Emit is fire-and-forget: delivery failures are the sink's concern
// and must never fail the action that produced the event.
type Sink interface {
	Emit(ctx context.Context, evt Event)
}

type discard struct{}

// Discard drops every event.
var Discard Sink = discard{}

func (discard) Emit(context.Context, Event) {}
