package testutil

import (
	"context"
	"fmt"
	"net/mail"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/pan-thu/lets-talk-sub000/core"
	"github.com/pan-thu/lets-talk-sub000/core/course"
	"github.com/pan-thu/lets-talk-sub000/core/user"
	"github.com/pan-thu/lets-talk-sub000/storage/database"
)

// PrepareDB returns a migrated SQLite database living in the test's temp dir.
func PrepareDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err = database.Migrate(context.Background(), db); err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	return db
}

// NewConfig returns the configuration used by tests.
func NewConfig() *core.Config {
	return &core.Config{
		Env:              "TEST",
		AppName:          "Masomo",
		TestMode:         true,
		SecretKey:        "test-secret-key",
		FrontendBaseURL:  "http://localhost:3000",
		DefaultFromEmail: mail.Address{Name: "Masomo", Address: "noreply@localhost"},
		Database:         core.DatabaseConfig{Engine: "sqlite"},
		Stripe:           core.StripeConfig{WebhookSecret: "whsec_test"},
		LiveSession: core.LiveSessionConfig{
			JoinWindow:      15 * time.Minute,
			DefaultDuration: 2 * time.Hour,
		},
	}
}

// Clock is a settable core.Clock.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

var _ core.Clock = (*Clock)(nil)

func NewClock(now time.Time) *Clock {
	return &Clock{now: now.UTC()}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Set(now time.Time) {
	c.mu.Lock()
	c.now = now.UTC()
	c.mu.Unlock()
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// NewUser returns a caller holding roles.
func NewUser(username string, roles ...string) user.User {
	return user.User{
		ID:       uuid.New().String(),
		Username: username,
		Email:    username + "@masomo.test",
		Roles:    roles,
	}
}

func CreateCourse(t *testing.T, repo course.Repository, teacherID string, priceCents int64, published bool) course.Course {
	t.Helper()
	now := time.Now().UTC()
	crs, err := repo.CreateCourse(context.Background(), course.Course{
		ID:          uuid.New().String(),
		Title:       "Course " + uuid.New().String()[:8],
		TeacherID:   teacherID,
		PriceCents:  priceCents,
		Currency:    "USD",
		IsPublished: published,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		t.Fatalf("CreateCourse() failed: %v", err)
	}
	return crs
}

func CreateLessons(t *testing.T, repo course.Repository, courseID string, n int) []course.Lesson {
	t.Helper()
	lessons := make([]course.Lesson, 0, n)
	for i := 0; i < n; i++ {
		lsn, err := repo.CreateLesson(context.Background(), course.Lesson{
			ID:        uuid.New().String(),
			CourseID:  courseID,
			Title:     fmt.Sprintf("Lesson %d", i+1),
			Position:  i + 1,
			CreatedAt: time.Now().UTC(),
		})
		if err != nil {
			t.Fatalf("CreateLessons() failed: %v", err)
		}
		lessons = append(lessons, lsn)
	}
	return lessons
}
