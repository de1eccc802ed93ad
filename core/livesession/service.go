package livesession

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/pan-thu/lets-talk-sub000/core"
	"github.com/pan-thu/lets-talk-sub000/core/audit"
	"github.com/pan-thu/lets-talk-sub000/core/course"
	"github.com/pan-thu/lets-talk-sub000/core/user"
)

var (
	// errors
	ErrNotFound       = core.NewNotFoundError("live session not found")
	ErrNotViewer      = core.NewForbiddenError("you are not enrolled in this course")
	ErrNotTeacher     = core.NewForbiddenError("only the course teacher can manage its live sessions")
	ErrEndBeforeStart = core.NewBadRequestError("end time must be after start time")
)

type (
	Repository interface {
		CreateSession(ctx context.Context, ls LiveSession, exec ...core.DBExecutor) (LiveSession, error)
		GetSession(ctx context.Context, id string, exec ...core.DBExecutor) (LiveSession, error)
		// QuerySessions returns the sessions of a course ordered by start time.
		QuerySessions(ctx context.Context, courseID string, exec ...core.DBExecutor) ([]LiveSession, error)
		UpdateSession(ctx context.Context, ls LiveSession, exec ...core.DBExecutor) (LiveSession, error)
		DeleteSession(ctx context.Context, id string, exec ...core.DBExecutor) error
	}

	// AccessChecker tells whether a user holds an enrollment that grants access to a course.
	AccessChecker interface {
		HasAccess(ctx context.Context, userID, courseID string) (bool, error)
	}

	Service struct {
		repo       Repository
		courseRepo course.Repository
		access     AccessChecker
		validate   *validator.Validate
		sink       audit.Sink
		metrics    core.Metrics
		clock      core.Clock
		policy     Policy
	}
)

func NewService(
	repo Repository,
	courseRepo course.Repository,
	access AccessChecker,
	validate *validator.Validate,
	sink audit.Sink,
	metrics core.Metrics,
	clock core.Clock,
	conf *core.Config,
) *Service {
	return &Service{
		repo:       repo,
		courseRepo: courseRepo,
		access:     access,
		validate:   validate,
		sink:       sink,
		metrics:    metrics,
		clock:      clock,
		policy: Policy{
			JoinWindow:      conf.LiveSession.JoinWindow,
			DefaultDuration: conf.LiveSession.DefaultDuration,
		},
	}
}

// List returns the sessions of a course as seen by caller right now.
func (svc *Service) List(ctx context.Context, caller user.User, courseID string) ([]SessionView, error) {
	crs, err := svc.courseRepo.GetCourse(ctx, core.CleanString(courseID))
	if err != nil {
		return nil, errors.Wrap(err, "finding course")
	}
	if !caller.IsAdmin() && !crs.IsTaughtBy(caller.ID) {
		ok, err := svc.access.HasAccess(ctx, caller.ID, crs.ID)
		if err != nil {
			return nil, errors.Wrap(err, "checking enrollment")
		}
		if !ok {
			return nil, ErrNotViewer
		}
	}

	sessions, err := svc.repo.QuerySessions(ctx, crs.ID)
	if err != nil {
		return nil, errors.Wrap(err, "querying sessions")
	}

	now := svc.clock.Now()
	views := make([]SessionView, 0, len(sessions))
	for _, ls := range sessions {
		sv := ls.View(now, svc.policy)
		svc.metrics.RecordSessionStatus(string(sv.Status))
		views = append(views, sv)
	}
	return views, nil
}

func (svc *Service) ownedCourse(ctx context.Context, teacher user.User, courseID string) (course.Course, error) {
	crs, err := svc.courseRepo.GetCourse(ctx, courseID)
	if err != nil {
		return course.Course{}, errors.Wrap(err, "finding course")
	}
	if !crs.IsTaughtBy(teacher.ID) {
		return course.Course{}, ErrNotTeacher
	}
	return crs, nil
}

func (svc *Service) ownedSession(ctx context.Context, teacher user.User, id string) (LiveSession, error) {
	ls, err := svc.repo.GetSession(ctx, core.CleanString(id))
	if err != nil {
		return LiveSession{}, errors.Wrap(err, "finding session")
	}
	if _, err := svc.ownedCourse(ctx, teacher, ls.CourseID); err != nil {
		return LiveSession{}, err
	}
	return ls, nil
}

func (svc *Service) emit(ctx context.Context, typ audit.EventType, actor user.User, ls LiveSession, now time.Time) {
	svc.sink.Emit(ctx, audit.Event{
		Type:       typ,
		ActorID:    actor.ID,
		CourseID:   ls.CourseID,
		SessionID:  ls.ID,
		OccurredAt: now,
		Data: map[string]interface{}{
			"title":      ls.Title,
			"start_time": ls.StartTime,
		},
	})
}

// Create schedules a session in a course taught by teacher.
func (svc *Service) Create(ctx context.Context, teacher user.User, ns NewSession) (LiveSession, error) {
	if err := ns.Validate(svc.validate); err != nil {
		return LiveSession{}, err
	}
	crs, err := svc.ownedCourse(ctx, teacher, ns.CourseID)
	if err != nil {
		return LiveSession{}, err
	}

	now := svc.clock.Now()
	ls := LiveSession{
		ID:          uuid.New().String(),
		CourseID:    crs.ID,
		Title:       ns.Title,
		Description: ns.Description,
		StartTime:   ns.StartTime.UTC(),
		EndTime:     null.TimeFromPtr(utcPtr(ns.EndTime)),
		MeetingLink: ns.MeetingLink,
		Week:        null.IntFromPtr(ns.Week),
		CreatedBy:   teacher.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if ls, err = svc.repo.CreateSession(ctx, ls); err != nil {
		return LiveSession{}, errors.Wrap(err, "creating session")
	}
	svc.emit(ctx, audit.LiveScheduled, teacher, ls, now)
	return ls, nil
}

// Update changes the editable fields of a session.
func (svc *Service) Update(ctx context.Context, teacher user.User, id string, us UpdateSession) (LiveSession, error) {
	if err := us.Validate(svc.validate); err != nil {
		return LiveSession{}, err
	}
	ls, err := svc.ownedSession(ctx, teacher, id)
	if err != nil {
		return LiveSession{}, err
	}

	if us.Title != nil {
		ls.Title = *us.Title
	}
	if us.Description != nil {
		ls.Description = *us.Description
	}
	if us.StartTime != nil {
		ls.StartTime = us.StartTime.UTC()
	}
	switch {
	case us.ClearEnd:
		ls.EndTime = null.Time{}
	case us.EndTime != nil:
		ls.EndTime = null.TimeFrom(us.EndTime.UTC())
	}
	if us.MeetingLink != nil {
		ls.MeetingLink = *us.MeetingLink
	}
	if us.Week != nil {
		ls.Week = null.IntFrom(*us.Week)
	}
	if ls.EndTime.Valid && !ls.EndTime.Time.After(ls.StartTime) {
		return LiveSession{}, ErrEndBeforeStart
	}

	now := svc.clock.Now()
	ls.UpdatedAt = now
	if ls, err = svc.repo.UpdateSession(ctx, ls); err != nil {
		return LiveSession{}, errors.Wrap(err, "updating session")
	}
	svc.emit(ctx, audit.LiveUpdated, teacher, ls, now)
	return ls, nil
}

// Delete cancels a session.
func (svc *Service) Delete(ctx context.Context, teacher user.User, id string) error {
	ls, err := svc.ownedSession(ctx, teacher, id)
	if err != nil {
		return err
	}
	if err := svc.repo.DeleteSession(ctx, ls.ID); err != nil {
		return errors.Wrap(err, "deleting session")
	}
	svc.emit(ctx, audit.LiveCancelled, teacher, ls, svc.clock.Now())
	return nil
}

// UploadRecording attaches a recording, turning a past session from missed into completed.
func (svc *Service) UploadRecording(ctx context.Context, teacher user.User, id string, rec Recording) (LiveSession, error) {
	if err := rec.Validate(svc.validate); err != nil {
		return LiveSession{}, err
	}
	ls, err := svc.ownedSession(ctx, teacher, id)
	if err != nil {
		return LiveSession{}, err
	}

	now := svc.clock.Now()
	ls.RecordingURL = null.StringFrom(rec.RecordingURL)
	ls.UpdatedAt = now
	if ls, err = svc.repo.UpdateSession(ctx, ls); err != nil {
		return LiveSession{}, errors.Wrap(err, "saving recording")
	}
	svc.emit(ctx, audit.RecordingUploaded, teacher, ls, now)
	return ls, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
