package livesession

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/pan-thu/lets-talk-sub000/core"
)

type LiveSession struct {
	ID           string      `json:"id" db:"id"`
	CourseID     string      `json:"course_id" db:"course_id"`
	Title        string      `json:"title" db:"title"`
	Description  string      `json:"description" db:"description"`
	StartTime    time.Time   `json:"start_time" db:"start_time"` // UTC
	EndTime      null.Time   `json:"end_time" db:"end_time"`     // UTC
	MeetingLink  string      `json:"meeting_link" db:"meeting_link"`
	RecordingURL null.String `json:"recording_url" db:"recording_url"`
	Week         null.Int    `json:"week" db:"week"`
	CreatedBy    string      `json:"created_by" db:"created_by"`
	CreatedAt    time.Time   `json:"created_at" db:"created_at"` // UTC
	UpdatedAt    time.Time   `json:"updated_at" db:"updated_at"` // UTC
}

func (ls LiveSession) HasRecording() bool {
	return ls.RecordingURL.Valid && ls.RecordingURL.String != ""
}

func (ls LiveSession) end() *time.Time {
	if !ls.EndTime.Valid {
		return nil
	}
	return &ls.EndTime.Time
}

// Status derives the session status at now.
func (ls LiveSession) Status(now time.Time, policy Policy) Status {
	return DeriveStatus(now, ls.StartTime, ls.end(), ls.HasRecording(), policy)
}

// SessionView is what a viewer gets to see of a session at a given instant.
type SessionView struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Week         *int       `json:"week"`
	StartTime    time.Time  `json:"start_time"`
	EndTime      *time.Time `json:"end_time"`
	Status       Status     `json:"status"`
	CanJoin      bool       `json:"can_join"`
	MeetingLink  string     `json:"meeting_link,omitempty"`
	RecordingURL string     `json:"recording_url,omitempty"`
}

// View renders ls at now; the meeting link is only exposed while joinable and the recording
// only once completed.
func (ls LiveSession) View(now time.Time, policy Policy) SessionView {
	status := ls.Status(now, policy)
	sv := SessionView{
		ID:          ls.ID,
		Title:       ls.Title,
		Description: ls.Description,
		StartTime:   ls.StartTime,
		EndTime:     ls.end(),
		Status:      status,
		CanJoin:     CanJoin(status),
	}
	if ls.Week.Valid {
		w := ls.Week.Int
		sv.Week = &w
	}
	if sv.CanJoin {
		sv.MeetingLink = ls.MeetingLink
	}
	if status == StatusCompleted {
		sv.RecordingURL = ls.RecordingURL.String
	}
	return sv
}

// NewSession contains information needed to schedule a session.
type NewSession struct {
	CourseID    string     `json:"course_id" validate:"required"`
	Title       string     `json:"title" validate:"required,notblank,max=200"`
	Description string     `json:"description" validate:"max=5000"`
	StartTime   time.Time  `json:"start_time" validate:"required"`
	EndTime     *time.Time `json:"end_time" validate:"omitempty,gtfield=StartTime"`
	MeetingLink string     `json:"meeting_link" validate:"required,url"`
	Week        *int       `json:"week" validate:"omitempty,gte=1"`
}

func (ns *NewSession) Validate(validate *validator.Validate) error {
	ns.CourseID = core.CleanString(ns.CourseID)
	ns.Title = core.CleanString(ns.Title)
	ns.Description = core.CleanString(ns.Description)
	ns.MeetingLink = core.CleanString(ns.MeetingLink)
	return validate.Struct(ns)
}

// UpdateSession replaces the editable fields of a session; nil fields are left unchanged.
type UpdateSession struct {
	Title       *string    `json:"title" validate:"omitempty,notblank,max=200"`
	Description *string    `json:"description" validate:"omitempty,max=5000"`
	StartTime   *time.Time `json:"start_time"`
	EndTime     *time.Time `json:"end_time"`
	ClearEnd    bool       `json:"clear_end_time"`
	MeetingLink *string    `json:"meeting_link" validate:"omitempty,url"`
	Week        *int       `json:"week" validate:"omitempty,gte=1"`
}

func (us *UpdateSession) Validate(validate *validator.Validate) error {
	for _, s := range []*string{us.Title, us.Description, us.MeetingLink} {
		if s != nil {
			*s = core.CleanString(*s)
		}
	}
	return validate.Struct(us)
}

type Recording struct {
	RecordingURL string `json:"recording_url" validate:"required,url"`
}

func (r *Recording) Validate(validate *validator.Validate) error {
	r.RecordingURL = core.CleanString(r.RecordingURL)
	return validate.Struct(r)
}
