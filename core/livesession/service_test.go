package livesession_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pan-thu/lets-talk-sub000/core"
	"github.com/pan-thu/lets-talk-sub000/core/audit"
	"github.com/pan-thu/lets-talk-sub000/core/course"
	"github.com/pan-thu/lets-talk-sub000/core/livesession"
	"github.com/pan-thu/lets-talk-sub000/core/user"
	"github.com/pan-thu/lets-talk-sub000/services/audit"
	"github.com/pan-thu/lets-talk-sub000/storage/database/sqlx"
	"github.com/pan-thu/lets-talk-sub000/tests"
)

var ctx = context.Background()

// accessList grants access to the listed user ids.
type accessList map[string]bool

func (a accessList) HasAccess(_ context.Context, userID, _ string) (bool, error) {
	return a[userID], nil
}

type fixture struct {
	svc      *livesession.Service
	repo     livesession.Repository
	recorder *auditsvc.Recorder
	clock    *testutil.Clock
	course   course.Course

	teacher  user.User
	student  user.User
	stranger user.User
	admin    user.User
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db := testutil.PrepareDB(t)
	courseRepo := sqlxrepos.NewCourseRepository(db)

	f := &fixture{
		repo:     sqlxrepos.NewLiveSessionRepository(db),
		recorder: auditsvc.NewRecorder(),
		clock:    testutil.NewClock(time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)),
		teacher:  testutil.NewUser("teacher", user.RoleTeacher),
		student:  testutil.NewUser("student", user.RoleStudent),
		stranger: testutil.NewUser("stranger", user.RoleStudent),
		admin:    testutil.NewUser("admin", user.RoleAdmin),
	}
	f.course = testutil.CreateCourse(t, courseRepo, f.teacher.ID, 0, true)
	f.svc = livesession.NewService(
		f.repo, courseRepo, accessList{f.student.ID: true},
		core.NewValidator(core.NewTranslator()), f.recorder, core.NoopMetrics, f.clock, testutil.NewConfig(),
	)
	return f
}

func (f *fixture) schedule(t *testing.T, start time.Time, end *time.Time) livesession.LiveSession {
	t.Helper()
	ls, err := f.svc.Create(ctx, f.teacher, livesession.NewSession{
		CourseID:    f.course.ID,
		Title:       "Office hours",
		StartTime:   start,
		EndTime:     end,
		MeetingLink: "https://meet.masomo.test/room",
	})
	require.NoError(t, err)
	return ls
}

func TestService_List(t *testing.T) {
	f := setup(t)
	now := f.clock.Now()
	end := now.Add(-time.Hour)

	past := f.schedule(t, now.Add(-3*time.Hour), &end)
	soon := f.schedule(t, now.Add(10*time.Minute), nil)
	later := f.schedule(t, now.Add(24*time.Hour), nil)

	views, err := f.svc.List(ctx, f.student, f.course.ID)
	require.NoError(t, err)
	require.Len(t, views, 3)

	assert.Equal(t, past.ID, views[0].ID)
	assert.Equal(t, livesession.StatusMissed, views[0].Status)
	assert.Empty(t, views[0].MeetingLink)

	assert.Equal(t, soon.ID, views[1].ID)
	assert.Equal(t, livesession.StatusJoinable, views[1].Status)
	assert.True(t, views[1].CanJoin)
	assert.Equal(t, "https://meet.masomo.test/room", views[1].MeetingLink)

	assert.Equal(t, later.ID, views[2].ID)
	assert.Equal(t, livesession.StatusUpcoming, views[2].Status)
	assert.False(t, views[2].CanJoin)

	// evaluated fresh on every read
	f.clock.Advance(30 * time.Minute)
	views, err = f.svc.List(ctx, f.student, f.course.ID)
	require.NoError(t, err)
	assert.Equal(t, livesession.StatusLive, views[1].Status)
}

func TestService_List_Access(t *testing.T) {
	f := setup(t)
	f.schedule(t, f.clock.Now().Add(time.Hour), nil)

	tests := []struct {
		name     string
		caller   user.User
		courseID string
		wantErr  error
	}{
		{name: "enrolled student", caller: f.student, courseID: f.course.ID},
		{name: "course teacher", caller: f.teacher, courseID: f.course.ID},
		{name: "admin", caller: f.admin, courseID: f.course.ID},
		{name: "not enrolled", caller: f.stranger, courseID: f.course.ID, wantErr: livesession.ErrNotViewer},
		{name: "missing course", caller: f.student, courseID: "missing", wantErr: course.ErrNotFound},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			views, err := f.svc.List(ctx, tc.caller, tc.courseID)
			if tc.wantErr != nil {
				assert.Equal(t, tc.wantErr, errors.Cause(err))
				return
			}
			require.NoError(t, err)
			assert.Len(t, views, 1)
		})
	}
}

func TestService_Create(t *testing.T) {
	f := setup(t)
	start := f.clock.Now().Add(time.Hour)
	before := start.Add(-time.Minute)
	week := 2

	tests := []struct {
		name     string
		caller   user.User
		ns       livesession.NewSession
		wantKind core.ErrorKind
	}{
		{
			name:   "ok",
			caller: f.teacher,
			ns:     livesession.NewSession{CourseID: f.course.ID, Title: "Week 2", StartTime: start, MeetingLink: "https://meet.masomo.test/w2", Week: &week},
		},
		{
			name:     "not the course teacher",
			caller:   testutil.NewUser("other", user.RoleTeacher),
			ns:       livesession.NewSession{CourseID: f.course.ID, Title: "Week 2", StartTime: start, MeetingLink: "https://meet.masomo.test/w2"},
			wantKind: core.KindForbidden,
		},
		{
			name:     "missing course",
			caller:   f.teacher,
			ns:       livesession.NewSession{CourseID: "missing", Title: "Week 2", StartTime: start, MeetingLink: "https://meet.masomo.test/w2"},
			wantKind: core.KindNotFound,
		},
		{
			name:     "blank title",
			caller:   f.teacher,
			ns:       livesession.NewSession{CourseID: f.course.ID, Title: "   ", StartTime: start, MeetingLink: "https://meet.masomo.test/w2"},
			wantKind: core.KindBadRequest,
		},
		{
			name:     "end before start",
			caller:   f.teacher,
			ns:       livesession.NewSession{CourseID: f.course.ID, Title: "Week 2", StartTime: start, EndTime: &before, MeetingLink: "https://meet.masomo.test/w2"},
			wantKind: core.KindBadRequest,
		},
		{
			name:     "bad link",
			caller:   f.teacher,
			ns:       livesession.NewSession{CourseID: f.course.ID, Title: "Week 2", StartTime: start, MeetingLink: "room 12"},
			wantKind: core.KindBadRequest,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f.recorder.Reset()
			ls, err := f.svc.Create(ctx, tc.caller, tc.ns)
			if tc.wantKind != core.KindInternal {
				assert.Equal(t, tc.wantKind, core.KindOf(err))
				assert.Empty(t, f.recorder.Events())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, int(2), ls.Week.Int)

			stored, err := f.repo.GetSession(ctx, ls.ID)
			require.NoError(t, err)
			assert.Equal(t, "Week 2", stored.Title)
			assert.True(t, stored.StartTime.Equal(start))
			assert.False(t, stored.EndTime.Valid)

			evts := f.recorder.Events()
			require.Len(t, evts, 1)
			assert.Equal(t, audit.LiveScheduled, evts[0].Type)
			assert.Equal(t, ls.ID, evts[0].SessionID)
			assert.Equal(t, f.course.ID, evts[0].CourseID)
		})
	}
}

func TestService_UpdateDeleteRecording(t *testing.T) {
	f := setup(t)
	start := f.clock.Now().Add(-4 * time.Hour)
	ls := f.schedule(t, start, nil)
	intruder := testutil.NewUser("other", user.RoleTeacher)

	// update
	title := "Office hours (moved)"
	end := start.Add(time.Hour)
	_, err := f.svc.Update(ctx, intruder, ls.ID, livesession.UpdateSession{Title: &title})
	assert.Equal(t, livesession.ErrNotTeacher, errors.Cause(err))

	badEnd := start.Add(-time.Hour)
	_, err = f.svc.Update(ctx, f.teacher, ls.ID, livesession.UpdateSession{EndTime: &badEnd})
	assert.Equal(t, livesession.ErrEndBeforeStart, errors.Cause(err))

	updated, err := f.svc.Update(ctx, f.teacher, ls.ID, livesession.UpdateSession{Title: &title, EndTime: &end})
	require.NoError(t, err)
	assert.Equal(t, title, updated.Title)
	assert.True(t, updated.EndTime.Time.Equal(end))

	views, err := f.svc.List(ctx, f.student, f.course.ID)
	require.NoError(t, err)
	assert.Equal(t, livesession.StatusMissed, views[0].Status)

	// recording turns missed into completed
	_, err = f.svc.UploadRecording(ctx, f.teacher, ls.ID, livesession.Recording{RecordingURL: "not-a-url"})
	assert.Equal(t, core.KindBadRequest, core.KindOf(err))

	_, err = f.svc.UploadRecording(ctx, f.teacher, ls.ID, livesession.Recording{RecordingURL: "https://files.masomo.test/rec.mp4"})
	require.NoError(t, err)

	views, err = f.svc.List(ctx, f.student, f.course.ID)
	require.NoError(t, err)
	assert.Equal(t, livesession.StatusCompleted, views[0].Status)
	assert.Equal(t, "https://files.masomo.test/rec.mp4", views[0].RecordingURL)

	// delete
	assert.Equal(t, livesession.ErrNotTeacher, errors.Cause(f.svc.Delete(ctx, intruder, ls.ID)))
	require.NoError(t, f.svc.Delete(ctx, f.teacher, ls.ID))
	assert.Equal(t, livesession.ErrNotFound, errors.Cause(f.svc.Delete(ctx, f.teacher, ls.ID)))

	_, err = f.svc.Update(ctx, f.teacher, "missing", livesession.UpdateSession{Title: &title})
	assert.Equal(t, core.KindNotFound, core.KindOf(err))

	assert.Equal(t, []audit.EventType{
		audit.LiveScheduled, audit.LiveUpdated, audit.RecordingUploaded, audit.LiveCancelled,
	}, f.recorder.Types())
}
