package sqlxrepos

import (
	"context"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/pan-thu/lets-talk-sub000/core"
	"github.com/pan-thu/lets-talk-sub000/core/enrollment"
	"github.com/pan-thu/lets-talk-sub000/storage/database"
)

const (
	enrollmentColumns = "id, user_id, course_id, status, paid, progress, grade, last_accessed_at, enrolled_at, updated_at"
	paymentColumns    = "id, enrollment_id, amount_cents, currency, reference_id, provider, proof_image_url, " +
		"payer_email, status, notes, created_at, updated_at"
)

type enrollmentRepository struct {
	repo
}

var _ enrollment.Repository = (*enrollmentRepository)(nil) // interface compliance check

func NewEnrollmentRepository(exec core.DBExecutor) *enrollmentRepository {
	return &enrollmentRepository{repo{exec: exec}}
}

func (r enrollmentRepository) CreateEnrollment(ctx context.Context, enr enrollment.Enrollment, exec ...core.DBExecutor) (enrollment.Enrollment, error) {
	err := insert(ctx, r.getExec(exec),
		"INSERT INTO enrollments ("+enrollmentColumns+") VALUES "+
			"(:id, :user_id, :course_id, :status, :paid, :progress, :grade, :last_accessed_at, :enrolled_at, :updated_at)",
		enr, "inserting enrollment")
	if err != nil {
		return enrollment.Enrollment{}, err
	}
	return enr, nil
}

func (r enrollmentRepository) GetEnrollment(ctx context.Context, id string, exec ...core.DBExecutor) (enrollment.Enrollment, error) {
	var enr enrollment.Enrollment
	if err := get(ctx, r.getExec(exec), &enr, "SELECT "+enrollmentColumns+" FROM enrollments WHERE id = ?", id); err != nil {
		return enrollment.Enrollment{}, trapNoRows(err, enrollment.ErrNotFound, "finding enrollment")
	}
	return enr, nil
}

func (r enrollmentRepository) GetEnrollmentByUserCourse(ctx context.Context, userID, courseID string, exec ...core.DBExecutor) (enrollment.Enrollment, error) {
	var enr enrollment.Enrollment
	err := get(ctx, r.getExec(exec), &enr,
		"SELECT "+enrollmentColumns+" FROM enrollments WHERE user_id = ? AND course_id = ?", userID, courseID)
	if err != nil {
		return enrollment.Enrollment{}, trapNoRows(err, enrollment.ErrNotFound, "finding enrollment")
	}
	return enr, nil
}

func (r enrollmentRepository) UpdateEnrollmentStatus(
	ctx context.Context,
	id string,
	from, to enrollment.Status,
	paid bool,
	at time.Time,
	exec ...core.DBExecutor,
) error {
	res, err := execute(ctx, r.getExec(exec),
		"UPDATE enrollments SET status = ?, paid = ?, updated_at = ? WHERE id = ? AND status = ?",
		to, paid, at, id, from)
	return expectOne(res, err, "updating enrollment status")
}

func (r enrollmentRepository) CompleteEnrollment(
	ctx context.Context,
	id string,
	from, to enrollment.Status,
	grade float64,
	at time.Time,
	exec ...core.DBExecutor,
) error {
	res, err := execute(ctx, r.getExec(exec),
		"UPDATE enrollments SET status = ?, grade = ?, updated_at = ? WHERE id = ? AND status = ?",
		to, grade, at, id, from)
	return expectOne(res, err, "completing enrollment")
}

func (r enrollmentRepository) UpdateEnrollmentProgress(ctx context.Context, id string, progress float64, accessedAt time.Time, exec ...core.DBExecutor) error {
	res, err := execute(ctx, r.getExec(exec),
		"UPDATE enrollments SET progress = ?, last_accessed_at = ? WHERE id = ?",
		progress, accessedAt, id)
	if err = expectOne(res, err, "updating progress"); err == core.ErrConflict {
		return enrollment.ErrNotFound
	}
	return err
}

func (r enrollmentRepository) CreatePayment(ctx context.Context, pmt enrollment.Payment, exec ...core.DBExecutor) (enrollment.Payment, error) {
	err := insert(ctx, r.getExec(exec),
		"INSERT INTO payments ("+paymentColumns+") VALUES "+
			"(:id, :enrollment_id, :amount_cents, :currency, :reference_id, :provider, :proof_image_url, "+
			":payer_email, :status, :notes, :created_at, :updated_at)",
		pmt, "inserting payment")
	if err != nil {
		return enrollment.Payment{}, err
	}
	return pmt, nil
}

func (r enrollmentRepository) getPayment(ctx context.Context, exec core.DBExecutor, where string, arg interface{}) (enrollment.Payment, error) {
	var pmt enrollment.Payment
	if err := get(ctx, exec, &pmt, "SELECT "+paymentColumns+" FROM payments WHERE "+where+" = ?", arg); err != nil {
		return enrollment.Payment{}, trapNoRows(err, enrollment.ErrPaymentNotFound, "finding payment")
	}
	return pmt, nil
}

func (r enrollmentRepository) GetPayment(ctx context.Context, id string, exec ...core.DBExecutor) (enrollment.Payment, error) {
	return r.getPayment(ctx, r.getExec(exec), "id", id)
}

func (r enrollmentRepository) GetPaymentByEnrollment(ctx context.Context, enrollmentID string, exec ...core.DBExecutor) (enrollment.Payment, error) {
	return r.getPayment(ctx, r.getExec(exec), "enrollment_id", enrollmentID)
}

func (r enrollmentRepository) GetPaymentByReference(ctx context.Context, referenceID string, exec ...core.DBExecutor) (enrollment.Payment, error) {
	return r.getPayment(ctx, r.getExec(exec), "reference_id", referenceID)
}

func (r enrollmentRepository) UpdatePaymentStatus(
	ctx context.Context,
	id string,
	from, to enrollment.PaymentStatus,
	notes null.String,
	at time.Time,
	exec ...core.DBExecutor,
) error {
	res, err := execute(ctx, r.getExec(exec),
		"UPDATE payments SET status = ?, notes = ?, updated_at = ? WHERE id = ? AND status = ?",
		to, notes, at, id, from)
	return expectOne(res, err, "updating payment status")
}

func (r enrollmentRepository) ReplacePaymentAttempt(ctx context.Context, pmt enrollment.Payment, from enrollment.PaymentStatus, exec ...core.DBExecutor) error {
	res, err := execute(ctx, r.getExec(exec),
		"UPDATE payments SET amount_cents = ?, currency = ?, reference_id = ?, provider = ?, proof_image_url = ?, "+
			"payer_email = ?, status = ?, notes = NULL, updated_at = ? WHERE id = ? AND status = ?",
		pmt.AmountCents, pmt.Currency, pmt.ReferenceID, pmt.Provider, pmt.ProofImageURL,
		pmt.PayerEmail, pmt.Status, pmt.UpdatedAt, pmt.ID, from)
	if err != nil && database.IsUniqueViolation(err) {
		return core.ErrConflict
	}
	return expectOne(res, err, "replacing payment attempt")
}

func (r enrollmentRepository) FilterPayments(ctx context.Context, filter enrollment.PaymentFilter, exec ...core.DBExecutor) ([]enrollment.Payment, error) {
	var (
		conds []string
		args  []interface{}
	)
	if len(filter.Statuses) > 0 {
		q, inArgs, err := sqlx.In("p.status IN (?)", filter.Statuses)
		if err != nil {
			return nil, errors.Wrap(err, "building status filter")
		}
		conds = append(conds, q)
		args = append(args, inArgs...)
	}
	if filter.CourseID != "" {
		conds = append(conds, "e.course_id = ?")
		args = append(args, filter.CourseID)
	}

	query := "SELECT " + prefixColumns("p", paymentColumns) +
		" FROM payments p JOIN enrollments e ON e.id = p.enrollment_id"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY " + core.DBOrdering{Field: "p.created_at"}.String()

	pmts := make([]enrollment.Payment, 0)
	err := selectAll(ctx, r.getExec(exec), &pmts, query, args...)
	return pmts, errors.Wrap(err, "filtering payments")
}

func (r enrollmentRepository) UpsertCompletion(ctx context.Context, lc enrollment.LessonCompletion, exec ...core.DBExecutor) error {
	_, err := sqlx.NamedExecContext(ctx, r.getExec(exec),
		"INSERT INTO lesson_completions (id, user_id, lesson_id, enrollment_id, completed_at) "+
			"VALUES (:id, :user_id, :lesson_id, :enrollment_id, :completed_at) "+
			"ON CONFLICT (user_id, lesson_id, enrollment_id) DO NOTHING",
		lc)
	return errors.Wrap(err, "upserting lesson completion")
}

func (r enrollmentRepository) DeleteCompletion(ctx context.Context, userID, lessonID, enrollmentID string, exec ...core.DBExecutor) error {
	_, err := execute(ctx, r.getExec(exec),
		"DELETE FROM lesson_completions WHERE user_id = ? AND lesson_id = ? AND enrollment_id = ?",
		userID, lessonID, enrollmentID)
	return errors.Wrap(err, "deleting lesson completion")
}

func (r enrollmentRepository) CountCompletedLessons(ctx context.Context, enrollmentID, courseID string, exec ...core.DBExecutor) (int, error) {
	var cnt int
	err := get(ctx, r.getExec(exec), &cnt,
		"SELECT COUNT(*) FROM lesson_completions lc JOIN lessons l ON l.id = lc.lesson_id "+
			"WHERE lc.enrollment_id = ? AND l.course_id = ?",
		enrollmentID, courseID)
	return cnt, errors.Wrap(err, "counting completed lessons")
}

func (r enrollmentRepository) QueryCompletedLessonIDs(ctx context.Context, enrollmentID, courseID string, exec ...core.DBExecutor) ([]string, error) {
	ids := make([]string, 0)
	err := selectAll(ctx, r.getExec(exec), &ids,
		"SELECT lc.lesson_id FROM lesson_completions lc JOIN lessons l ON l.id = lc.lesson_id "+
			"WHERE lc.enrollment_id = ? AND l.course_id = ? ORDER BY l.position, l.created_at",
		enrollmentID, courseID)
	return ids, errors.Wrap(err, "querying completed lessons")
}

func prefixColumns(alias, columns string) string {
	cols := strings.Split(columns, ", ")
	for i, col := range cols {
		cols[i] = alias + "." + col
	}
	return strings.Join(cols, ", ")
}
