package sqlxrepos

import (
	"context"

	"github.com/pkg/errors"

	"github.com/pan-thu/lets-talk-sub000/core"
	"github.com/pan-thu/lets-talk-sub000/core/course"
)

const (
	courseColumns = "id, title, teacher_id, price_cents, currency, is_published, created_at, updated_at"
	lessonColumns = "id, course_id, title, position, created_at"
)

type courseRepository struct {
	repo
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(exec core.DBExecutor) *courseRepository {
	return &courseRepository{repo{exec: exec}}
}

func (r courseRepository) CreateCourse(ctx context.Context, crs course.Course, exec ...core.DBExecutor) (course.Course, error) {
	err := insert(ctx, r.getExec(exec),
		"INSERT INTO courses ("+courseColumns+") VALUES "+
			"(:id, :title, :teacher_id, :price_cents, :currency, :is_published, :created_at, :updated_at)",
		crs, "inserting course")
	if err != nil {
		return course.Course{}, err
	}
	return crs, nil
}

func (r courseRepository) GetCourse(ctx context.Context, id string, exec ...core.DBExecutor) (course.Course, error) {
	var crs course.Course
	if err := get(ctx, r.getExec(exec), &crs, "SELECT "+courseColumns+" FROM courses WHERE id = ?", id); err != nil {
		return course.Course{}, trapNoRows(err, course.ErrNotFound, "finding course")
	}
	return crs, nil
}

func (r courseRepository) CreateLesson(ctx context.Context, lsn course.Lesson, exec ...core.DBExecutor) (course.Lesson, error) {
	err := insert(ctx, r.getExec(exec),
		"INSERT INTO lessons ("+lessonColumns+") VALUES (:id, :course_id, :title, :position, :created_at)",
		lsn, "inserting lesson")
	if err != nil {
		return course.Lesson{}, err
	}
	return lsn, nil
}

func (r courseRepository) GetLesson(ctx context.Context, courseID, lessonID string, exec ...core.DBExecutor) (course.Lesson, error) {
	var lsn course.Lesson
	err := get(ctx, r.getExec(exec), &lsn,
		"SELECT "+lessonColumns+" FROM lessons WHERE id = ? AND course_id = ?", lessonID, courseID)
	if err != nil {
		return course.Lesson{}, trapNoRows(err, course.ErrLessonNotFound, "finding lesson")
	}
	return lsn, nil
}

func (r courseRepository) QueryLessons(ctx context.Context, courseID string, exec ...core.DBExecutor) ([]course.Lesson, error) {
	lessons := make([]course.Lesson, 0)
	err := selectAll(ctx, r.getExec(exec), &lessons,
		"SELECT "+lessonColumns+" FROM lessons WHERE course_id = ? ORDER BY position, created_at", courseID)
	return lessons, errors.Wrap(err, "querying lessons")
}

func (r courseRepository) CountLessons(ctx context.Context, courseID string, exec ...core.DBExecutor) (int, error) {
	var cnt int
	err := get(ctx, r.getExec(exec), &cnt, "SELECT COUNT(*) FROM lessons WHERE course_id = ?", courseID)
	return cnt, errors.Wrap(err, "counting lessons")
}
