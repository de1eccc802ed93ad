package course

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/pan-thu/lets-talk-sub000/core"
)

var (
	// errors
	ErrNotFound       = core.NewNotFoundError("course not found")
	ErrLessonNotFound = core.NewNotFoundError("lesson not found in course")
)

const defaultCurrency = "USD"

type (
	Repository interface {
		CreateCourse(ctx context.Context, crs Course, exec ...core.DBExecutor) (Course, error)
		GetCourse(ctx context.Context, id string, exec ...core.DBExecutor) (Course, error)
		CreateLesson(ctx context.Context, lsn Lesson, exec ...core.DBExecutor) (Lesson, error)
		// GetLesson returns ErrLessonNotFound unless the lesson belongs to the course.
		GetLesson(ctx context.Context, courseID, lessonID string, exec ...core.DBExecutor) (Lesson, error)
		QueryLessons(ctx context.Context, courseID string, exec ...core.DBExecutor) ([]Lesson, error)
		CountLessons(ctx context.Context, courseID string, exec ...core.DBExecutor) (int, error)
	}

	// Service seeds the catalog; course authoring itself lives outside this codebase.
	Service struct {
		repo     Repository
		validate *validator.Validate
		clock    core.Clock
	}
)

func NewService(repo Repository, validate *validator.Validate, clock core.Clock) *Service {
	return &Service{repo: repo, validate: validate, clock: clock}
}

func (svc *Service) Create(ctx context.Context, nc NewCourse) (Course, error) {
	if err := nc.Validate(svc.validate); err != nil {
		return Course{}, err
	}
	currency := strings.ToUpper(nc.Currency)
	if currency == "" {
		currency = defaultCurrency
	}
	now := svc.clock.Now()
	crs, err := svc.repo.CreateCourse(ctx, Course{
		ID:          uuid.New().String(),
		Title:       nc.Title,
		TeacherID:   nc.TeacherID,
		PriceCents:  nc.PriceCents,
		Currency:    currency,
		IsPublished: nc.IsPublished,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	return crs, errors.Wrap(err, "creating course")
}

func (svc *Service) AddLesson(ctx context.Context, nl NewLesson) (Lesson, error) {
	if err := nl.Validate(svc.validate); err != nil {
		return Lesson{}, err
	}
	if _, err := svc.repo.GetCourse(ctx, nl.CourseID); err != nil {
		return Lesson{}, errors.Wrap(err, "finding course")
	}
	lsn, err := svc.repo.CreateLesson(ctx, Lesson{
		ID:        uuid.New().String(),
		CourseID:  nl.CourseID,
		Title:     nl.Title,
		Position:  nl.Position,
		CreatedAt: svc.clock.Now(),
	})
	return lsn, errors.Wrap(err, "creating lesson")
}

func (svc *Service) GetByID(ctx context.Context, id string) (Course, error) {
	return svc.repo.GetCourse(ctx, id)
}

func (svc *Service) Lessons(ctx context.Context, courseID string) ([]Lesson, error) {
	return svc.repo.QueryLessons(ctx, courseID)
}
