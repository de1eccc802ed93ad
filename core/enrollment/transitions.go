package enrollment

// Event is something that happens to an enrollment/payment pair.
type Event string

const (
	EventApprove  Event = "approve"
	EventReject   Event = "reject"
	EventFail     Event = "fail"
	EventResubmit Event = "resubmit"
	EventComplete Event = "complete"
)

// Entities, as reported to metrics
const (
	entityEnrollment = "enrollment"
	entityPayment    = "payment"
)

// Every legal status change lives in these two tables; anything absent is refused.
var (
	enrollmentTransitions = map[Status]map[Event]Status{
		StatusPendingPayment: {
			EventApprove: StatusActive,
			EventReject:  StatusRejected,
			EventFail:    StatusRejected,
		},
		StatusRejected: {
			EventResubmit: StatusPendingPayment,
		},
		StatusActive: {
			EventComplete: StatusCompleted,
		},
	}

	paymentTransitions = map[PaymentStatus]map[Event]PaymentStatus{
		PaymentProofSubmitted: {
			EventApprove: PaymentCompleted,
			EventReject:  PaymentRejected,
			EventFail:    PaymentError,
		},
		PaymentRejected: {
			EventResubmit: PaymentProofSubmitted,
		},
		PaymentError: {
			EventResubmit: PaymentProofSubmitted,
		},
	}
)

// NextStatus returns the enrollment status reached from `from` on `ev`.
func NextStatus(from Status, ev Event) (Status, bool) {
	to, ok := enrollmentTransitions[from][ev]
	return to, ok
}

// NextPaymentStatus returns the payment status reached from `from` on `ev`.
func NextPaymentStatus(from PaymentStatus, ev Event) (PaymentStatus, bool) {
	to, ok := paymentTransitions[from][ev]
	return to, ok
}

// outcomeEvents maps automated provider outcomes to lifecycle events.
var outcomeEvents = map[Outcome]Event{
	OutcomeSucceeded: EventApprove,
	OutcomeFailed:    EventFail,
	OutcomeCancelled: EventReject,
}
