package course

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/pan-thu/lets-talk-sub000/core"
)

type Course struct {
	ID          string    `json:"id" db:"id"`
	Title       string    `json:"title" db:"title"`
	TeacherID   string    `json:"teacher_id" db:"teacher_id"`
	PriceCents  int64     `json:"price_cents" db:"price_cents"`
	Currency    string    `json:"currency" db:"currency"`
	IsPublished bool      `json:"is_published" db:"is_published"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"` // UTC
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"` // UTC
}

// IsFree reports whether enrolling skips payment entirely.
func (c Course) IsFree() bool {
	return c.PriceCents <= 0
}

func (c Course) IsTaughtBy(userID string) bool {
	return userID != "" && c.TeacherID == userID
}

type Lesson struct {
	ID        string    `json:"id" db:"id"`
	CourseID  string    `json:"course_id" db:"course_id"`
	Title     string    `json:"title" db:"title"`
	Position  int       `json:"position" db:"position"`
	CreatedAt time.Time `json:"created_at" db:"created_at"` // UTC
}

// NewCourse contains information needed to create a new Course.
type NewCourse struct {
	Title       string `json:"title" validate:"required,notblank"`
	TeacherID   string `json:"teacher_id" validate:"required"`
	PriceCents  int64  `json:"price_cents" validate:"gte=0"`
	Currency    string `json:"currency" validate:"omitempty,len=3,alpha"`
	IsPublished bool   `json:"is_published"`
}

func (nc *NewCourse) Validate(validate *validator.Validate) error {
	nc.Title = core.CleanString(nc.Title)
	nc.TeacherID = core.CleanString(nc.TeacherID)
	nc.Currency = core.CleanString(nc.Currency)
	return validate.Struct(nc)
}

// NewLesson contains information needed to add a Lesson to a Course.
type NewLesson struct {
	CourseID string `json:"course_id" validate:"required"`
	Title    string `json:"title" validate:"required,notblank"`
	Position int    `json:"position" validate:"gte=0"`
}

func (nl *NewLesson) Validate(validate *validator.Validate) error {
	nl.Title = core.CleanString(nl.Title)
	return validate.Struct(nl)
}
