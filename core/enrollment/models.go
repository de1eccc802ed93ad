package enrollment

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/pan-thu/lets-talk-sub000/core"
)

// Status is the lifecycle status of an Enrollment.
type Status string

const (
	StatusPendingPayment Status = "PENDING_PAYMENT_CONFIRMATION"
	StatusActive         Status = "ACTIVE"
	StatusRejected       Status = "REJECTED"
	StatusCompleted      Status = "COMPLETED"
)

// GrantsAccess reports whether the enrolled user may follow the course.
func (s Status) GrantsAccess() bool {
	return s == StatusActive || s == StatusCompleted
}

// PaymentStatus is the lifecycle status of a Payment attempt.
type PaymentStatus string

const (
	PaymentProofSubmitted PaymentStatus = "PROOF_SUBMITTED"
	PaymentCompleted      PaymentStatus = "COMPLETED"
	PaymentRejected       PaymentStatus = "REJECTED"
	PaymentError          PaymentStatus = "ERROR"
)

// Payment providers
const (
	ProviderManual = "MANUAL"
	ProviderStripe = "STRIPE"
)

type Enrollment struct {
	ID             string       `json:"id" db:"id"`
	UserID         string       `json:"user_id" db:"user_id"`
	CourseID       string       `json:"course_id" db:"course_id"`
	Status         Status       `json:"status" db:"status"`
	Paid           bool         `json:"paid" db:"paid"`
	Progress       float64      `json:"progress" db:"progress"` // cached; recomputable from completions
	Grade          null.Float64 `json:"grade" db:"grade"`
	LastAccessedAt null.Time    `json:"last_accessed_at" db:"last_accessed_at"` // UTC
	EnrolledAt     time.Time    `json:"enrolled_at" db:"enrolled_at"`           // UTC
	UpdatedAt      time.Time    `json:"updated_at" db:"updated_at"`             // UTC
}

type Payment struct {
	ID            string        `json:"id" db:"id"`
	EnrollmentID  string        `json:"enrollment_id" db:"enrollment_id"`
	AmountCents   int64         `json:"amount_cents" db:"amount_cents"`
	Currency      string        `json:"currency" db:"currency"`
	ReferenceID   string        `json:"payment_reference_id" db:"reference_id"`
	Provider      string        `json:"provider" db:"provider"`
	ProofImageURL null.String   `json:"proof_image_url" db:"proof_image_url"`
	PayerEmail    string        `json:"-" db:"payer_email"`
	Status        PaymentStatus `json:"status" db:"status"`
	Notes         null.String   `json:"notes" db:"notes"`
	CreatedAt     time.Time     `json:"created_at" db:"created_at"` // UTC
	UpdatedAt     time.Time     `json:"updated_at" db:"updated_at"` // UTC
}

type LessonCompletion struct {
	ID           string    `json:"id" db:"id"`
	UserID       string    `json:"user_id" db:"user_id"`
	LessonID     string    `json:"lesson_id" db:"lesson_id"`
	EnrollmentID string    `json:"enrollment_id" db:"enrollment_id"`
	CompletedAt  time.Time `json:"completed_at" db:"completed_at"` // UTC
}

// SubmitProof contains the information a student provides as proof of an off-platform payment.
type SubmitProof struct {
	CourseID      string `json:"course_id" validate:"required"`
	ProofImageURL string `json:"proof_image_url" validate:"required,url"`
}

func (sp *SubmitProof) Validate(validate *validator.Validate) error {
	sp.CourseID = core.CleanString(sp.CourseID)
	sp.ProofImageURL = core.CleanString(sp.ProofImageURL)
	return validate.Struct(sp)
}

type SubmitProofResult struct {
	PaymentReferenceID string `json:"payment_reference_id"`
	Message            string `json:"message"`
}

// ToggleCompletion marks (or un-marks) one lesson done.
type ToggleCompletion struct {
	LessonID     string `json:"lesson_id" validate:"required"`
	CourseID     string `json:"course_id" validate:"required"`
	EnrollmentID string `json:"enrollment_id" validate:"required"`
	IsCompleted  bool   `json:"is_completed"`
}

func (tc *ToggleCompletion) Validate(validate *validator.Validate) error {
	tc.LessonID = core.CleanString(tc.LessonID)
	tc.CourseID = core.CleanString(tc.CourseID)
	tc.EnrollmentID = core.CleanString(tc.EnrollmentID)
	return validate.Struct(tc)
}

type ToggleResult struct {
	NewProgressPercentage float64 `json:"new_progress_percentage"`
}

type CourseProgress struct {
	Enrollment         Enrollment `json:"enrollment"`
	CompletedLessonIDs []string   `json:"completed_lesson_ids"`
	TotalLessons       int        `json:"total_lessons"`
}

// Grade is a teacher's final mark for an enrollment.
type Grade struct {
	Grade *float64 `json:"grade" validate:"required,gte=0,lte=100"`
}

func (g *Grade) Validate(validate *validator.Validate) error { return validate.Struct(g) }

type PaymentFilter struct {
	Statuses []PaymentStatus `query:"status"`
	CourseID string          `query:"course_id"`
}

func (pf *PaymentFilter) Clean() {
	pf.CourseID = core.CleanString(pf.CourseID)
}

func (pf *PaymentFilter) Validate() error {
	for _, status := range pf.Statuses {
		switch status {
		case PaymentProofSubmitted, PaymentCompleted, PaymentRejected, PaymentError:
		default:
			return core.NewValidationError(
				errors.New("invalid payment filter"),
				core.FieldError{Field: "status", Error: fmt.Sprintf("unknown payment status %q", status)},
			)
		}
	}
	return nil
}

// Outcome is the result of a payment as reported by an automated provider.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	OutcomeCancelled Outcome = "cancelled"
)

// WebhookOutcome is a provider-agnostic payment notification.
type WebhookOutcome struct {
	Provider    string
	EventID     string
	ReferenceID string
	Outcome     Outcome
	Reason      string
	OccurredAt  time.Time

	// as reported by the provider; minor units
	AmountCents int64
	Currency    string
}

// Settles reports whether the provider charged exactly what pmt asks for.
func (wo WebhookOutcome) Settles(pmt Payment) bool {
	return wo.AmountCents == pmt.AmountCents && strings.EqualFold(wo.Currency, pmt.Currency)
}
