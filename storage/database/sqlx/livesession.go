package sqlxrepos

import (
	"context"

	"github.com/pkg/errors"

	"github.com/pan-thu/lets-talk-sub000/core"
	"github.com/pan-thu/lets-talk-sub000/core/livesession"
)

const sessionColumns = "id, course_id, title, description, start_time, end_time, meeting_link, recording_url, " +
	"week, created_by, created_at, updated_at"

type liveSessionRepository struct {
	repo
}

var _ livesession.Repository = (*liveSessionRepository)(nil) // interface compliance check

func NewLiveSessionRepository(exec core.DBExecutor) *liveSessionRepository {
	return &liveSessionRepository{repo{exec: exec}}
}

func (r liveSessionRepository) CreateSession(ctx context.Context, ls livesession.LiveSession, exec ...core.DBExecutor) (livesession.LiveSession, error) {
	err := insert(ctx, r.getExec(exec),
		"INSERT INTO live_sessions ("+sessionColumns+") VALUES "+
			"(:id, :course_id, :title, :description, :start_time, :end_time, :meeting_link, :recording_url, "+
			":week, :created_by, :created_at, :updated_at)",
		ls, "inserting live session")
	if err != nil {
		return livesession.LiveSession{}, err
	}
	return ls, nil
}

func (r liveSessionRepository) GetSession(ctx context.Context, id string, exec ...core.DBExecutor) (livesession.LiveSession, error) {
	var ls livesession.LiveSession
	if err := get(ctx, r.getExec(exec), &ls, "SELECT "+sessionColumns+" FROM live_sessions WHERE id = ?", id); err != nil {
		return livesession.LiveSession{}, trapNoRows(err, livesession.ErrNotFound, "finding live session")
	}
	return ls, nil
}

func (r liveSessionRepository) QuerySessions(ctx context.Context, courseID string, exec ...core.DBExecutor) ([]livesession.LiveSession, error) {
	sessions := make([]livesession.LiveSession, 0)
	err := selectAll(ctx, r.getExec(exec), &sessions,
		"SELECT "+sessionColumns+" FROM live_sessions WHERE course_id = ? ORDER BY "+
			core.DBOrdering{Field: "start_time", Ascending: true}.String(),
		courseID)
	return sessions, errors.Wrap(err, "querying live sessions")
}

func (r liveSessionRepository) UpdateSession(ctx context.Context, ls livesession.LiveSession, exec ...core.DBExecutor) (livesession.LiveSession, error) {
	res, err := execute(ctx, r.getExec(exec),
		"UPDATE live_sessions SET title = ?, description = ?, start_time = ?, end_time = ?, meeting_link = ?, "+
			"recording_url = ?, week = ?, updated_at = ? WHERE id = ?",
		ls.Title, ls.Description, ls.StartTime, ls.EndTime, ls.MeetingLink, ls.RecordingURL, ls.Week, ls.UpdatedAt, ls.ID)
	if err = expectOne(res, err, "updating live session"); err == core.ErrConflict {
		return livesession.LiveSession{}, livesession.ErrNotFound
	}
	if err != nil {
		return livesession.LiveSession{}, err
	}
	return ls, nil
}

func (r liveSessionRepository) DeleteSession(ctx context.Context, id string, exec ...core.DBExecutor) error {
	res, err := execute(ctx, r.getExec(exec), "DELETE FROM live_sessions WHERE id = ?", id)
	if err = expectOne(res, err, "deleting live session"); err == core.ErrConflict {
		return livesession.ErrNotFound
	}
	return err
}
