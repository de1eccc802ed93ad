package enrollment_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pan-thu/lets-talk-sub000/core"
	"github.com/pan-thu/lets-talk-sub000/core/audit"
	"github.com/pan-thu/lets-talk-sub000/core/course"
	"github.com/pan-thu/lets-talk-sub000/core/enrollment"
	"github.com/pan-thu/lets-talk-sub000/core/user"
	"github.com/pan-thu/lets-talk-sub000/services/audit"
	"github.com/pan-thu/lets-talk-sub000/services/email"
	"github.com/pan-thu/lets-talk-sub000/storage/database/sqlx"
	"github.com/pan-thu/lets-talk-sub000/tests"
)

const proofURL = "https://files.masomo.test/proofs/receipt.png"

var ctx = context.Background()

type fixture struct {
	db         *sqlx.DB
	svc        *enrollment.Service
	repo       enrollment.Repository
	courseRepo course.Repository
	mailSvc    *emailsvc.ConsoleServiceMock
	recorder   *auditsvc.Recorder
	clock      *testutil.Clock

	admin   user.User
	teacher user.User
	student user.User
}

func setup(t *testing.T) *fixture {
	t.Helper()
	conf := testutil.NewConfig()
	core.ParseEmailTemplates(core.NoopLogger)

	f := &fixture{
		db:       testutil.PrepareDB(t),
		mailSvc:  emailsvc.NewConsoleServiceMock(conf),
		recorder: auditsvc.NewRecorder(),
		clock:    testutil.NewClock(time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)),
		admin:    testutil.NewUser("admin", user.RoleAdmin),
		teacher:  testutil.NewUser("teacher", user.RoleTeacher),
		student:  testutil.NewUser("student", user.RoleStudent),
	}
	f.repo = sqlxrepos.NewEnrollmentRepository(f.db)
	f.courseRepo = sqlxrepos.NewCourseRepository(f.db)
	f.svc = enrollment.NewService(
		f.db, f.repo, f.courseRepo, core.NewValidator(core.NewTranslator()),
		f.mailSvc, f.recorder, core.NoopLogger, core.NoopMetrics, f.clock, conf,
	)
	return f
}

func (f *fixture) paidCourse(t *testing.T) course.Course {
	return testutil.CreateCourse(t, f.courseRepo, f.teacher.ID, 4999, true)
}

// submit submits a proof for crs and returns the created payment.
func (f *fixture) submit(t *testing.T, usr user.User, crs course.Course) enrollment.Payment {
	t.Helper()
	res, err := f.svc.SubmitProof(ctx, usr, crs.ID, proofURL)
	require.NoError(t, err)
	pmt, err := f.repo.GetPaymentByReference(ctx, res.PaymentReferenceID)
	require.NoError(t, err)
	return pmt
}

func (f *fixture) enrollmentOf(t *testing.T, pmt enrollment.Payment) enrollment.Enrollment {
	t.Helper()
	enr, err := f.repo.GetEnrollment(ctx, pmt.EnrollmentID)
	require.NoError(t, err)
	return enr
}

func countRows(t *testing.T, db *sqlx.DB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, db.Get(&n, "SELECT COUNT(*) FROM "+table))
	return n
}

func TestService_SubmitProof(t *testing.T) {
	f := setup(t)
	crs := f.paidCourse(t)

	res, err := f.svc.SubmitProof(ctx, f.student, crs.ID, proofURL)
	require.NoError(t, err)
	assert.NotEmpty(t, res.Message)
	assert.Regexp(t, `^[A-Z0-9]{6}-[a-z0-9]{4}-\d{6}$`, res.PaymentReferenceID)

	pmt, err := f.repo.GetPaymentByReference(ctx, res.PaymentReferenceID)
	require.NoError(t, err)
	assert.Equal(t, enrollment.PaymentProofSubmitted, pmt.Status)
	assert.Equal(t, enrollment.ProviderManual, pmt.Provider)
	assert.Equal(t, crs.PriceCents, pmt.AmountCents)
	assert.Equal(t, proofURL, pmt.ProofImageURL.String)
	assert.Equal(t, f.student.Email, pmt.PayerEmail)

	enr := f.enrollmentOf(t, pmt)
	assert.Equal(t, enrollment.StatusPendingPayment, enr.Status)
	assert.False(t, enr.Paid)
	assert.Equal(t, f.student.ID, enr.UserID)

	assert.Equal(t, []audit.EventType{audit.PaymentSubmitted}, f.recorder.Types())
}

func TestService_SubmitProof_Errors(t *testing.T) {
	f := setup(t)
	paid := f.paidCourse(t)
	free := testutil.CreateCourse(t, f.courseRepo, f.teacher.ID, 0, true)
	draft := testutil.CreateCourse(t, f.courseRepo, f.teacher.ID, 1000, false)

	pending := testutil.NewUser("pending", user.RoleStudent)
	f.submit(t, pending, paid)

	active := testutil.NewUser("active", user.RoleStudent)
	_, err := f.svc.Approve(ctx, f.admin, f.submit(t, active, paid).ID)
	require.NoError(t, err)

	tests := []struct {
		name     string
		caller   user.User
		courseID string
		proofURL string
		wantKind core.ErrorKind
		wantErr  error
	}{
		{name: "course missing", caller: f.student, courseID: "missing", proofURL: proofURL, wantKind: core.KindNotFound, wantErr: course.ErrNotFound},
		{name: "free course", caller: f.student, courseID: free.ID, proofURL: proofURL, wantKind: core.KindBadRequest, wantErr: enrollment.ErrFreeCourse},
		{name: "unpublished course", caller: f.student, courseID: draft.ID, proofURL: proofURL, wantKind: core.KindBadRequest, wantErr: enrollment.ErrCourseUnpublished},
		{name: "already pending", caller: pending, courseID: paid.ID, proofURL: proofURL, wantKind: core.KindConflict, wantErr: enrollment.ErrPaymentPending},
		{name: "already active", caller: active, courseID: paid.ID, proofURL: proofURL, wantKind: core.KindConflict, wantErr: enrollment.ErrAlreadyEnrolled},
		{name: "invalid proof url", caller: f.student, courseID: paid.ID, proofURL: "not a url", wantKind: core.KindBadRequest},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.SubmitProof(ctx, tc.caller, tc.courseID, tc.proofURL)
			require.Error(t, err)
			assert.Equal(t, tc.wantKind, core.KindOf(err))
			if tc.wantErr != nil {
				assert.Equal(t, tc.wantErr, errors.Cause(err))
			}
		})
	}

	// exactly one pair per (user, course)
	assert.Equal(t, 2, countRows(t, f.db, "enrollments"))
	assert.Equal(t, 2, countRows(t, f.db, "payments"))
}

func TestService_SubmitProof_Resubmission(t *testing.T) {
	f := setup(t)
	crs := f.paidCourse(t)

	first := f.submit(t, f.student, crs)
	_, err := f.svc.Reject(ctx, f.admin, first.ID, "blurry receipt")
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	res, err := f.svc.SubmitProof(ctx, f.student, crs.ID, proofURL+"?v=2")
	require.NoError(t, err)
	assert.NotEqual(t, first.ReferenceID, res.PaymentReferenceID)

	pmt, err := f.repo.GetPaymentByReference(ctx, res.PaymentReferenceID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, pmt.ID, "payment row is reused")
	assert.Equal(t, enrollment.PaymentProofSubmitted, pmt.Status)
	assert.False(t, pmt.Notes.Valid)
	assert.Equal(t, proofURL+"?v=2", pmt.ProofImageURL.String)

	enr := f.enrollmentOf(t, pmt)
	assert.Equal(t, enrollment.StatusPendingPayment, enr.Status)
	assert.Equal(t, 1, countRows(t, f.db, "enrollments"))
	assert.Equal(t, 1, countRows(t, f.db, "payments"))
}

func TestService_EnrollFree(t *testing.T) {
	f := setup(t)
	free := testutil.CreateCourse(t, f.courseRepo, f.teacher.ID, 0, true)
	paid := f.paidCourse(t)

	enr, err := f.svc.EnrollFree(ctx, f.student, free.ID)
	require.NoError(t, err)
	assert.Equal(t, enrollment.StatusActive, enr.Status)

	_, err = f.svc.EnrollFree(ctx, f.student, free.ID)
	assert.Equal(t, enrollment.ErrAlreadyEnrolled, errors.Cause(err))

	_, err = f.svc.EnrollFree(ctx, f.student, paid.ID)
	assert.Equal(t, enrollment.ErrPaidCourse, errors.Cause(err))

	_, err = f.svc.SubmitProof(ctx, f.student, free.ID, proofURL)
	assert.Equal(t, enrollment.ErrFreeCourse, errors.Cause(err))

	// no payment ever exists for a free course
	assert.Equal(t, 0, countRows(t, f.db, "payments"))
}

func TestService_Approve(t *testing.T) {
	f := setup(t)
	crs := f.paidCourse(t)
	pmt := f.submit(t, f.student, crs)
	f.recorder.Reset()

	_, err := f.svc.Approve(ctx, f.student, pmt.ID)
	assert.Equal(t, enrollment.ErrAdminOnly, err)

	approved, err := f.svc.Approve(ctx, f.admin, pmt.ID)
	require.NoError(t, err)
	assert.Equal(t, enrollment.PaymentCompleted, approved.Status)

	enr := f.enrollmentOf(t, pmt)
	assert.Equal(t, enrollment.StatusActive, enr.Status)
	assert.True(t, enr.Paid)

	// terminal: approving again is refused
	_, err = f.svc.Approve(ctx, f.admin, pmt.ID)
	assert.Equal(t, core.KindConflict, core.KindOf(err))

	_, err = f.svc.Approve(ctx, f.admin, "missing")
	assert.Equal(t, core.KindNotFound, core.KindOf(err))

	assert.Equal(t, []audit.EventType{audit.PaymentApproved}, f.recorder.Types())
	sent := f.mailSvc.SentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, f.student.Email, sent[0].To[0].Address)
	assert.Contains(t, sent[0].TextContent, pmt.ReferenceID)
	assert.Contains(t, sent[0].TextContent, crs.Title)
}

func TestService_Reject(t *testing.T) {
	f := setup(t)
	crs := f.paidCourse(t)
	pmt := f.submit(t, f.student, crs)

	rejected, err := f.svc.Reject(ctx, f.admin, pmt.ID, "  amount does not match ")
	require.NoError(t, err)
	assert.Equal(t, enrollment.PaymentRejected, rejected.Status)
	assert.Equal(t, "amount does not match", rejected.Notes.String)

	// the enrollment is never left pending
	enr := f.enrollmentOf(t, pmt)
	assert.Equal(t, enrollment.StatusRejected, enr.Status)
	assert.False(t, enr.Paid)

	// a rejected payment cannot be revived by approval
	_, err = f.svc.Approve(ctx, f.admin, pmt.ID)
	assert.Equal(t, enrollment.ErrPaymentFinalized, errors.Cause(err))

	stored, err := f.repo.GetPayment(ctx, pmt.ID)
	require.NoError(t, err)
	assert.Equal(t, enrollment.PaymentRejected, stored.Status)

	sent := f.mailSvc.SentMessages()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].TextContent, "amount does not match")
}

func TestService_ApplyWebhookOutcome(t *testing.T) {
	tests := []struct {
		name           string
		outcome        enrollment.Outcome
		wantPayment    enrollment.PaymentStatus
		wantEnrollment enrollment.Status
		wantAudit      audit.EventType
	}{
		{name: "succeeded", outcome: enrollment.OutcomeSucceeded, wantPayment: enrollment.PaymentCompleted, wantEnrollment: enrollment.StatusActive, wantAudit: audit.PaymentApproved},
		{name: "failed", outcome: enrollment.OutcomeFailed, wantPayment: enrollment.PaymentError, wantEnrollment: enrollment.StatusRejected, wantAudit: audit.PaymentFailed},
		{name: "cancelled", outcome: enrollment.OutcomeCancelled, wantPayment: enrollment.PaymentRejected, wantEnrollment: enrollment.StatusRejected, wantAudit: audit.PaymentRejected},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := setup(t)
			pmt := f.submit(t, f.student, f.paidCourse(t))
			f.recorder.Reset()

			wo := enrollment.WebhookOutcome{
				Provider:    enrollment.ProviderStripe,
				EventID:     "evt_1",
				ReferenceID: pmt.ReferenceID,
				Outcome:     tc.outcome,
				AmountCents: 4999,
				Currency:    "usd",
			}
			got, err := f.svc.ApplyWebhookOutcome(ctx, wo)
			require.NoError(t, err)
			assert.Equal(t, tc.wantPayment, got.Status)
			assert.Equal(t, tc.wantEnrollment, f.enrollmentOf(t, pmt).Status)

			// redelivery is acknowledged without change
			again, err := f.svc.ApplyWebhookOutcome(ctx, wo)
			require.NoError(t, err)
			assert.Equal(t, tc.wantPayment, again.Status)
			assert.Equal(t, []audit.EventType{tc.wantAudit}, f.recorder.Types())
			assert.Equal(t, "provider:STRIPE", f.recorder.Events()[0].ActorID)
		})
	}
}

func TestService_ApplyWebhookOutcome_Errors(t *testing.T) {
	f := setup(t)
	pmt := f.submit(t, f.student, f.paidCourse(t))
	_, err := f.svc.Approve(ctx, f.admin, pmt.ID)
	require.NoError(t, err)

	_, err = f.svc.ApplyWebhookOutcome(ctx, enrollment.WebhookOutcome{ReferenceID: pmt.ReferenceID, Outcome: enrollment.OutcomeFailed})
	assert.Equal(t, enrollment.ErrPaymentFinalized, errors.Cause(err))

	_, err = f.svc.ApplyWebhookOutcome(ctx, enrollment.WebhookOutcome{ReferenceID: "nope", Outcome: enrollment.OutcomeSucceeded})
	assert.Equal(t, enrollment.ErrPaymentNotFound, errors.Cause(err))

	_, err = f.svc.ApplyWebhookOutcome(ctx, enrollment.WebhookOutcome{ReferenceID: pmt.ReferenceID, Outcome: "refunded"})
	assert.Equal(t, enrollment.ErrUnknownOutcome, err)
}

func TestService_ApplyWebhookOutcome_AmountMismatch(t *testing.T) {
	tests := []struct {
		name     string
		amount   int64
		currency string
	}{
		{name: "underpaid", amount: 100, currency: "USD"},
		{name: "other currency", amount: 4999, currency: "KES"},
		{name: "no amount reported"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := setup(t)
			pmt := f.submit(t, f.student, f.paidCourse(t))
			f.recorder.Reset()

			_, err := f.svc.ApplyWebhookOutcome(ctx, enrollment.WebhookOutcome{
				Provider:    enrollment.ProviderStripe,
				ReferenceID: pmt.ReferenceID,
				Outcome:     enrollment.OutcomeSucceeded,
				AmountCents: tc.amount,
				Currency:    tc.currency,
			})
			assert.Equal(t, enrollment.ErrAmountMismatch, errors.Cause(err))
			assert.Equal(t, core.KindConflict, core.KindOf(err))

			got, err := f.repo.GetPayment(ctx, pmt.ID)
			require.NoError(t, err)
			assert.Equal(t, enrollment.PaymentProofSubmitted, got.Status)
			enr := f.enrollmentOf(t, pmt)
			assert.Equal(t, enrollment.StatusPendingPayment, enr.Status)
			assert.False(t, enr.Paid)
			assert.Empty(t, f.recorder.Types())
		})
	}
}

func TestService_ListPayments(t *testing.T) {
	f := setup(t)
	crs := f.paidCourse(t)
	other := f.paidCourse(t)

	p1 := f.submit(t, f.student, crs)
	f.clock.Advance(time.Minute)
	p2 := f.submit(t, testutil.NewUser("s2", user.RoleStudent), crs)
	f.clock.Advance(time.Minute)
	p3 := f.submit(t, f.student, other)
	_, err := f.svc.Approve(ctx, f.admin, p1.ID)
	require.NoError(t, err)

	tests := []struct {
		name    string
		filter  enrollment.PaymentFilter
		wantIDs []string
	}{
		{name: "all, newest first", wantIDs: []string{p3.ID, p2.ID, p1.ID}},
		{name: "pending", filter: enrollment.PaymentFilter{Statuses: []enrollment.PaymentStatus{enrollment.PaymentProofSubmitted}}, wantIDs: []string{p3.ID, p2.ID}},
		{name: "course", filter: enrollment.PaymentFilter{CourseID: crs.ID}, wantIDs: []string{p2.ID, p1.ID}},
		{
			name: "course & status",
			filter: enrollment.PaymentFilter{
				CourseID: crs.ID,
				Statuses: []enrollment.PaymentStatus{enrollment.PaymentCompleted, enrollment.PaymentRejected},
			},
			wantIDs: []string{p1.ID},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			pmts, err := f.svc.ListPayments(ctx, f.admin, tc.filter)
			require.NoError(t, err)
			ids := make([]string, 0, len(pmts))
			for _, p := range pmts {
				ids = append(ids, p.ID)
			}
			assert.Equal(t, tc.wantIDs, ids)
		})
	}

	_, err = f.svc.ListPayments(ctx, f.teacher, enrollment.PaymentFilter{})
	assert.Equal(t, enrollment.ErrAdminOnly, err)

	_, err = f.svc.ListPayments(ctx, f.admin, enrollment.PaymentFilter{Statuses: []enrollment.PaymentStatus{"PAID"}})
	var vErr *core.ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, []core.FieldError{{Field: "status", Error: `unknown payment status "PAID"`}}, vErr.Fields)
	assert.Equal(t, core.KindBadRequest, core.KindOf(err))
}

func TestService_ConcurrentWriters(t *testing.T) {
	const writers = 8

	t.Run("submit proof", func(t *testing.T) {
		f := setup(t)
		crs := f.paidCourse(t)

		errs := make([]error, writers)
		var wg sync.WaitGroup
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = f.svc.SubmitProof(ctx, f.student, crs.ID, proofURL)
			}(i)
		}
		wg.Wait()

		var succeeded int
		for _, err := range errs {
			if err == nil {
				succeeded++
				continue
			}
			assert.Equal(t, core.KindConflict, core.KindOf(err), err.Error())
		}
		assert.Equal(t, 1, succeeded)

		var enrollments, payments int
		require.NoError(t, f.db.Get(&enrollments, "SELECT COUNT(*) FROM enrollments WHERE user_id = ? AND course_id = ?", f.student.ID, crs.ID))
		require.NoError(t, f.db.Get(&payments, "SELECT COUNT(*) FROM payments"))
		assert.Equal(t, 1, enrollments)
		assert.Equal(t, 1, payments)
	})

	t.Run("approve", func(t *testing.T) {
		f := setup(t)
		pmt := f.submit(t, f.student, f.paidCourse(t))
		f.recorder.Reset()

		errs := make([]error, writers)
		var wg sync.WaitGroup
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = f.svc.Approve(ctx, f.admin, pmt.ID)
			}(i)
		}
		wg.Wait()

		var succeeded int
		for _, err := range errs {
			if err == nil {
				succeeded++
				continue
			}
			assert.Equal(t, enrollment.ErrPaymentFinalized, errors.Cause(err), err.Error())
		}
		assert.Equal(t, 1, succeeded)
		assert.Equal(t, []audit.EventType{audit.PaymentApproved}, f.recorder.Types())
	})
}

func TestService_HasAccess(t *testing.T) {
	f := setup(t)
	crs := f.paidCourse(t)
	pmt := f.submit(t, f.student, crs)

	ok, err := f.svc.HasAccess(ctx, f.student.ID, crs.ID)
	require.NoError(t, err)
	assert.False(t, ok, "pending enrollments grant no access")

	_, err = f.svc.Approve(ctx, f.admin, pmt.ID)
	require.NoError(t, err)
	ok, err = f.svc.HasAccess(ctx, f.student.ID, crs.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.svc.HasAccess(ctx, "stranger", crs.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}
