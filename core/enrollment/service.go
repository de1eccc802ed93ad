package enrollment

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/pan-thu/lets-talk-sub000/core"
	"github.com/pan-thu/lets-talk-sub000/core/audit"
	"github.com/pan-thu/lets-talk-sub000/core/course"
)

var (
	// errors
	ErrNotFound        = core.NewNotFoundError("enrollment not found")
	ErrPaymentNotFound = core.NewNotFoundError("payment not found")

	ErrCourseUnpublished = core.NewBadRequestError("course is not published")
	ErrFreeCourse        = core.NewBadRequestError("course is free; enroll directly")
	ErrPaidCourse        = core.NewBadRequestError("course requires payment")

	ErrAlreadyEnrolled  = core.NewConflictError("you are already enrolled in this course")
	ErrPaymentPending   = core.NewConflictError("a payment for this course is already awaiting confirmation")
	ErrPaymentFinalized = core.NewConflictError("payment is no longer awaiting confirmation")
	ErrStatusChanged    = core.NewConflictError("enrollment status changed concurrently")
	ErrNotActive        = core.NewConflictError("enrollment is not active")
	ErrDuplicateRef     = core.NewConflictError("payment reference already in use; retry")
	ErrAmountMismatch   = core.NewConflictError("reported amount does not match the payment")

	ErrAdminOnly      = core.NewForbiddenError("only administrators can review payments")
	ErrNotOwner       = core.NewForbiddenError("enrollment not found or not active for this user")
	ErrNotTeacher     = core.NewForbiddenError("only the course teacher can grade this enrollment")
	ErrUnknownOutcome = core.NewBadRequestError("unknown payment outcome")
)

const (
	submittedMessage    = "Payment proof submitted. Your enrollment will be activated once the payment is confirmed."
	actorProviderPrefix = "provider:"
)

type (
	Repository interface {
		// CreateEnrollment returns core.ErrConflict when the (user, course) pair exists.
		CreateEnrollment(ctx context.Context, enr Enrollment, exec ...core.DBExecutor) (Enrollment, error)
		GetEnrollment(ctx context.Context, id string, exec ...core.DBExecutor) (Enrollment, error)
		GetEnrollmentByUserCourse(ctx context.Context, userID, courseID string, exec ...core.DBExecutor) (Enrollment, error)
		// UpdateEnrollmentStatus returns core.ErrConflict unless the row is still in `from`.
		UpdateEnrollmentStatus(ctx context.Context, id string, from, to Status, paid bool, at time.Time, exec ...core.DBExecutor) error
		// CompleteEnrollment returns core.ErrConflict unless the row is still in `from`.
		CompleteEnrollment(ctx context.Context, id string, from, to Status, grade float64, at time.Time, exec ...core.DBExecutor) error
		UpdateEnrollmentProgress(ctx context.Context, id string, progress float64, accessedAt time.Time, exec ...core.DBExecutor) error

		// CreatePayment returns core.ErrConflict when the enrollment already has a payment or the reference is taken.
		CreatePayment(ctx context.Context, pmt Payment, exec ...core.DBExecutor) (Payment, error)
		GetPayment(ctx context.Context, id string, exec ...core.DBExecutor) (Payment, error)
		GetPaymentByEnrollment(ctx context.Context, enrollmentID string, exec ...core.DBExecutor) (Payment, error)
		GetPaymentByReference(ctx context.Context, referenceID string, exec ...core.DBExecutor) (Payment, error)
		// UpdatePaymentStatus returns core.ErrConflict unless the row is still in `from`.
		UpdatePaymentStatus(ctx context.Context, id string, from, to PaymentStatus, notes null.String, at time.Time, exec ...core.DBExecutor) error
		// ReplacePaymentAttempt overwrites the attempt fields of pmt; core.ErrConflict unless the row is still in `from`.
		ReplacePaymentAttempt(ctx context.Context, pmt Payment, from PaymentStatus, exec ...core.DBExecutor) error
		FilterPayments(ctx context.Context, filter PaymentFilter, exec ...core.DBExecutor) ([]Payment, error)

		UpsertCompletion(ctx context.Context, lc LessonCompletion, exec ...core.DBExecutor) error
		DeleteCompletion(ctx context.Context, userID, lessonID, enrollmentID string, exec ...core.DBExecutor) error
		// CountCompletedLessons counts completions of the enrollment whose lesson belongs to the course.
		CountCompletedLessons(ctx context.Context, enrollmentID, courseID string, exec ...core.DBExecutor) (int, error)
		QueryCompletedLessonIDs(ctx context.Context, enrollmentID, courseID string, exec ...core.DBExecutor) ([]string, error)
	}

	Service struct {
		db         core.DB
		repo       Repository
		courseRepo course.Repository
		validate   *validator.Validate
		mailSvc    core.EmailService
		sink       audit.Sink
		logger     core.Logger
		metrics    core.Metrics
		clock      core.Clock
		conf       *core.Config
	}
)

func NewService(
	db core.DB,
	repo Repository,
	courseRepo course.Repository,
	validate *validator.Validate,
	mailSvc core.EmailService,
	sink audit.Sink,
	logger core.Logger,
	metrics core.Metrics,
	clock core.Clock,
	conf *core.Config,
) *Service {
	return &Service{
		db:         db,
		repo:       repo,
		courseRepo: courseRepo,
		validate:   validate,
		mailSvc:    mailSvc,
		sink:       sink,
		logger:     logger,
		metrics:    metrics,
		clock:      clock,
		conf:       conf,
	}
}

// conflictAs replaces a store conflict with a domain error, wrapping everything else.
func conflictAs(err, domainErr error, msg string) error {
	if errors.Cause(err) == core.ErrConflict {
		return domainErr
	}
	return errors.Wrap(err, msg)
}

// transition applies ev to enr through the table and persists it conditionally on the current status.
func (svc *Service) transition(ctx context.Context, tx core.DBExecutor, enr Enrollment, ev Event, now time.Time) (Enrollment, error) {
	to, ok := NextStatus(enr.Status, ev)
	if !ok {
		svc.metrics.RecordRejectedTransition(entityEnrollment, string(enr.Status), string(ev))
		return enr, ErrStatusChanged
	}
	paid := enr.Paid || ev == EventApprove
	if ev == EventResubmit {
		paid = false
	}
	if err := svc.repo.UpdateEnrollmentStatus(ctx, enr.ID, enr.Status, to, paid, now, tx); err != nil {
		return enr, conflictAs(err, ErrStatusChanged, "updating enrollment status")
	}
	enr.Status, enr.Paid, enr.UpdatedAt = to, paid, now
	return enr, nil
}

// transitionPayment applies ev to pmt through the table and persists it conditionally on the current status.
func (svc *Service) transitionPayment(ctx context.Context, tx core.DBExecutor, pmt Payment, ev Event, notes null.String, now time.Time) (Payment, error) {
	to, ok := NextPaymentStatus(pmt.Status, ev)
	if !ok {
		svc.metrics.RecordRejectedTransition(entityPayment, string(pmt.Status), string(ev))
		return pmt, ErrPaymentFinalized
	}
	if err := svc.repo.UpdatePaymentStatus(ctx, pmt.ID, pmt.Status, to, notes, now, tx); err != nil {
		return pmt, conflictAs(err, ErrPaymentFinalized, "updating payment status")
	}
	pmt.Status, pmt.Notes, pmt.UpdatedAt = to, notes, now
	return pmt, nil
}

func (svc *Service) emit(ctx context.Context, evt audit.Event) {
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = svc.clock.Now()
	}
	svc.sink.Emit(ctx, evt)
}

// HasAccess reports whether userID holds an ACTIVE or COMPLETED enrollment in courseID.
func (svc *Service) HasAccess(ctx context.Context, userID, courseID string) (bool, error) {
	enr, err := svc.repo.GetEnrollmentByUserCourse(ctx, userID, courseID)
	switch {
	case errors.Cause(err) == ErrNotFound:
		return false, nil
	case err != nil:
		return false, errors.Wrap(err, "finding enrollment")
	}
	return enr.Status.GrantsAccess(), nil
}
