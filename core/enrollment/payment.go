package enrollment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/pan-thu/lets-talk-sub000/core"
	"github.com/pan-thu/lets-talk-sub000/core/audit"
	"github.com/pan-thu/lets-talk-sub000/core/course"
	"github.com/pan-thu/lets-talk-sub000/core/user"
)

// SubmitProof opens a pending enrollment for a paid course together with its payment attempt.
// A previously rejected enrollment is re-opened with a fresh attempt instead.
func (svc *Service) SubmitProof(ctx context.Context, caller user.User, courseID, proofImageURL string) (SubmitProofResult, error) {
	sp := SubmitProof{CourseID: courseID, ProofImageURL: proofImageURL}
	if err := sp.Validate(svc.validate); err != nil {
		return SubmitProofResult{}, err
	}

	crs, err := svc.courseRepo.GetCourse(ctx, sp.CourseID)
	if err != nil {
		return SubmitProofResult{}, errors.Wrap(err, "finding course")
	}
	switch {
	case !crs.IsPublished:
		return SubmitProofResult{}, ErrCourseUnpublished
	case crs.IsFree():
		return SubmitProofResult{}, ErrFreeCourse
	}

	now := svc.clock.Now()
	var (
		enr         Enrollment
		pmt         Payment
		resubmitted bool
	)
	err = core.RunInTx(ctx, svc.db, func(tx core.DBExecutor) error {
		existing, err := svc.repo.GetEnrollmentByUserCourse(ctx, caller.ID, crs.ID, tx)
		switch {
		case err == nil:
			switch existing.Status {
			case StatusPendingPayment:
				return ErrPaymentPending
			case StatusRejected:
				resubmitted = true
				enr, pmt, err = svc.resubmit(ctx, tx, existing, crs, caller, sp.ProofImageURL, now)
				return err
			default:
				return ErrAlreadyEnrolled
			}
		case errors.Cause(err) != ErrNotFound:
			return errors.Wrap(err, "finding enrollment")
		}

		enr, err = svc.repo.CreateEnrollment(ctx, Enrollment{
			ID:         uuid.New().String(),
			UserID:     caller.ID,
			CourseID:   crs.ID,
			Status:     StatusPendingPayment,
			EnrolledAt: now,
			UpdatedAt:  now,
		}, tx)
		if err != nil {
			return conflictAs(err, ErrAlreadyEnrolled, "creating enrollment")
		}

		pmt, err = svc.repo.CreatePayment(ctx, newAttempt(uuid.New().String(), enr, crs, caller, sp.ProofImageURL, now), tx)
		if err != nil {
			return conflictAs(err, ErrDuplicateRef, "creating payment")
		}
		return nil
	})
	if err != nil {
		return SubmitProofResult{}, err
	}

	if resubmitted {
		svc.metrics.RecordTransition(entityEnrollment, string(StatusRejected), string(enr.Status))
	}
	svc.emit(ctx, audit.Event{
		Type:         audit.PaymentSubmitted,
		ActorID:      caller.ID,
		CourseID:     crs.ID,
		EnrollmentID: enr.ID,
		PaymentID:    pmt.ID,
		OccurredAt:   now,
		Data: map[string]interface{}{
			"reference_id": pmt.ReferenceID,
			"amount_cents": pmt.AmountCents,
			"currency":     pmt.Currency,
			"resubmission": resubmitted,
		},
	})
	return SubmitProofResult{PaymentReferenceID: pmt.ReferenceID, Message: submittedMessage}, nil
}

func newAttempt(id string, enr Enrollment, crs course.Course, caller user.User, proofImageURL string, now time.Time) Payment {
	return Payment{
		ID:            id,
		EnrollmentID:  enr.ID,
		AmountCents:   crs.PriceCents,
		Currency:      crs.Currency,
		ReferenceID:   NewReferenceID(crs.ID, caller.ID, now),
		Provider:      ProviderManual,
		ProofImageURL: null.StringFrom(proofImageURL),
		PayerEmail:    caller.Email,
		Status:        PaymentProofSubmitted,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func (svc *Service) resubmit(
	ctx context.Context,
	tx core.DBExecutor,
	enr Enrollment,
	crs course.Course,
	caller user.User,
	proofImageURL string,
	now time.Time,
) (Enrollment, Payment, error) {
	enr, err := svc.transition(ctx, tx, enr, EventResubmit, now)
	if err != nil {
		return enr, Payment{}, err
	}

	prev, err := svc.repo.GetPaymentByEnrollment(ctx, enr.ID, tx)
	if err != nil {
		if errors.Cause(err) != ErrPaymentNotFound {
			return enr, Payment{}, errors.Wrap(err, "finding payment")
		}
		pmt, err := svc.repo.CreatePayment(ctx, newAttempt(uuid.New().String(), enr, crs, caller, proofImageURL, now), tx)
		return enr, pmt, conflictAs(err, ErrDuplicateRef, "creating payment")
	}

	if _, ok := NextPaymentStatus(prev.Status, EventResubmit); !ok {
		svc.metrics.RecordRejectedTransition(entityPayment, string(prev.Status), string(EventResubmit))
		return enr, Payment{}, ErrPaymentFinalized
	}
	pmt := newAttempt(prev.ID, enr, crs, caller, proofImageURL, now)
	pmt.CreatedAt = prev.CreatedAt
	if err := svc.repo.ReplacePaymentAttempt(ctx, pmt, prev.Status, tx); err != nil {
		return enr, Payment{}, conflictAs(err, ErrPaymentFinalized, "replacing payment attempt")
	}
	svc.metrics.RecordTransition(entityPayment, string(prev.Status), string(pmt.Status))
	return enr, pmt, nil
}

// EnrollFree enrolls the caller in a published free course right away.
func (svc *Service) EnrollFree(ctx context.Context, caller user.User, courseID string) (Enrollment, error) {
	crs, err := svc.courseRepo.GetCourse(ctx, core.CleanString(courseID))
	if err != nil {
		return Enrollment{}, errors.Wrap(err, "finding course")
	}
	switch {
	case !crs.IsPublished:
		return Enrollment{}, ErrCourseUnpublished
	case !crs.IsFree():
		return Enrollment{}, ErrPaidCourse
	}

	now := svc.clock.Now()
	enr, err := svc.repo.CreateEnrollment(ctx, Enrollment{
		ID:         uuid.New().String(),
		UserID:     caller.ID,
		CourseID:   crs.ID,
		Status:     StatusActive,
		EnrolledAt: now,
		UpdatedAt:  now,
	})
	if err != nil {
		return Enrollment{}, conflictAs(err, ErrAlreadyEnrolled, "creating enrollment")
	}
	return enr, nil
}

// Approve confirms a submitted payment and activates its enrollment.
func (svc *Service) Approve(ctx context.Context, admin user.User, paymentID string) (Payment, error) {
	if !admin.IsAdmin() {
		return Payment{}, ErrAdminOnly
	}
	return svc.resolve(ctx, admin.ID, func(tx core.DBExecutor) (Payment, error) {
		return svc.repo.GetPayment(ctx, paymentID, tx)
	}, EventApprove, "")
}

// Reject refuses a submitted payment; reason is kept in the payment notes.
func (svc *Service) Reject(ctx context.Context, admin user.User, paymentID, reason string) (Payment, error) {
	if !admin.IsAdmin() {
		return Payment{}, ErrAdminOnly
	}
	return svc.resolve(ctx, admin.ID, func(tx core.DBExecutor) (Payment, error) {
		return svc.repo.GetPayment(ctx, paymentID, tx)
	}, EventReject, core.CleanString(reason))
}

// ApplyWebhookOutcome drives the lifecycle from an automated provider notification.
// Redelivered outcomes whose target status is already reached are acknowledged without change.
func (svc *Service) ApplyWebhookOutcome(ctx context.Context, wo WebhookOutcome) (Payment, error) {
	ev, ok := outcomeEvents[wo.Outcome]
	if !ok {
		return Payment{}, ErrUnknownOutcome
	}

	pmt, err := svc.repo.GetPaymentByReference(ctx, wo.ReferenceID)
	if err != nil {
		return Payment{}, errors.Wrap(err, "finding payment by reference")
	}
	if target, _ := NextPaymentStatus(PaymentProofSubmitted, ev); pmt.Status == target {
		svc.logger.Debug(fmt.Sprintf("payment %s already %s; ignoring redelivered %s event %s", pmt.ID, pmt.Status, wo.Provider, wo.EventID))
		return pmt, nil
	}

	return svc.resolve(ctx, actorProviderPrefix+wo.Provider, func(tx core.DBExecutor) (Payment, error) {
		current, err := svc.repo.GetPayment(ctx, pmt.ID, tx)
		if err != nil {
			return current, err
		}
		if ev == EventApprove && !wo.Settles(current) {
			svc.logger.Warn(fmt.Sprintf(
				"payment %s: %s event %s reports %d %s, expected %d %s",
				current.ID, wo.Provider, wo.EventID, wo.AmountCents, wo.Currency, current.AmountCents, current.Currency,
			))
			return current, ErrAmountMismatch
		}
		return current, nil
	}, ev, wo.Reason)
}

// resolve moves a pending payment and its enrollment together, then notifies the payer.
func (svc *Service) resolve(
	ctx context.Context,
	actorID string,
	load func(tx core.DBExecutor) (Payment, error),
	ev Event,
	reason string,
) (Payment, error) {
	var (
		notes            null.String
		pmt              Payment
		enr              Enrollment
		pmtFrom, enrFrom string
	)
	if reason != "" {
		notes = null.StringFrom(reason)
	}

	now := svc.clock.Now()
	err := core.RunInTx(ctx, svc.db, func(tx core.DBExecutor) error {
		var err error
		if pmt, err = load(tx); err != nil {
			return errors.Wrap(err, "finding payment")
		}
		if enr, err = svc.repo.GetEnrollment(ctx, pmt.EnrollmentID, tx); err != nil {
			return errors.Wrap(err, "finding enrollment")
		}
		pmtFrom, enrFrom = string(pmt.Status), string(enr.Status)

		if pmt, err = svc.transitionPayment(ctx, tx, pmt, ev, notes, now); err != nil {
			return err
		}
		enr, err = svc.transition(ctx, tx, enr, ev, now)
		return err
	})
	if err != nil {
		return Payment{}, err
	}

	svc.metrics.RecordTransition(entityPayment, pmtFrom, string(pmt.Status))
	svc.metrics.RecordTransition(entityEnrollment, enrFrom, string(enr.Status))

	evtType := map[Event]audit.EventType{
		EventApprove: audit.PaymentApproved,
		EventReject:  audit.PaymentRejected,
		EventFail:    audit.PaymentFailed,
	}[ev]
	svc.emit(ctx, audit.Event{
		Type:         evtType,
		ActorID:      actorID,
		CourseID:     enr.CourseID,
		EnrollmentID: enr.ID,
		PaymentID:    pmt.ID,
		OccurredAt:   now,
		Data: map[string]interface{}{
			"reference_id": pmt.ReferenceID,
			"provider":     pmt.Provider,
			"reason":       reason,
		},
	})
	svc.notifyPayer(ctx, pmt, enr, ev)
	return pmt, nil
}

// ListPayments returns the review queue, newest first.
func (svc *Service) ListPayments(ctx context.Context, admin user.User, filter PaymentFilter) ([]Payment, error) {
	if !admin.IsAdmin() {
		return nil, ErrAdminOnly
	}
	filter.Clean()
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	pmts, err := svc.repo.FilterPayments(ctx, filter)
	return pmts, errors.Wrap(err, "filtering payments")
}
