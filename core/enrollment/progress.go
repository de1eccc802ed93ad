package enrollment

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/pan-thu/lets-talk-sub000/core"
	"github.com/pan-thu/lets-talk-sub000/core/audit"
	"github.com/pan-thu/lets-talk-sub000/core/course"
	"github.com/pan-thu/lets-talk-sub000/core/user"
)

// ComputeProgress returns the completed share of a course as a percentage rounded to 2 decimals.
func ComputeProgress(completed, total int) float64 {
	if total <= 0 || completed <= 0 {
		return 0
	}
	if completed > total {
		completed = total
	}
	pct := 100 * float64(completed) / float64(total)
	return math.Round(pct*100) / 100
}

// ToggleLessonCompletion marks or un-marks a lesson and returns the recomputed progress.
func (svc *Service) ToggleLessonCompletion(ctx context.Context, caller user.User, tc ToggleCompletion) (ToggleResult, error) {
	if err := tc.Validate(svc.validate); err != nil {
		return ToggleResult{}, err
	}

	now := svc.clock.Now()
	var progress float64
	err := core.RunInTx(ctx, svc.db, func(tx core.DBExecutor) error {
		enr, err := svc.repo.GetEnrollment(ctx, tc.EnrollmentID, tx)
		switch {
		case errors.Cause(err) == ErrNotFound:
			return ErrNotOwner
		case err != nil:
			return errors.Wrap(err, "finding enrollment")
		case enr.UserID != caller.ID, enr.CourseID != tc.CourseID, enr.Status != StatusActive:
			return ErrNotOwner
		}

		if _, err = svc.courseRepo.GetLesson(ctx, tc.CourseID, tc.LessonID, tx); err != nil {
			return errors.Wrap(err, "finding lesson")
		}

		if tc.IsCompleted {
			err = svc.repo.UpsertCompletion(ctx, LessonCompletion{
				ID:           uuid.New().String(),
				UserID:       caller.ID,
				LessonID:     tc.LessonID,
				EnrollmentID: enr.ID,
				CompletedAt:  now,
			}, tx)
		} else {
			err = svc.repo.DeleteCompletion(ctx, caller.ID, tc.LessonID, enr.ID, tx)
		}
		if err != nil {
			return errors.Wrap(err, "toggling completion")
		}

		progress, _, err = svc.recompute(ctx, tx, enr, now)
		return err
	})
	if err != nil {
		return ToggleResult{}, err
	}
	return ToggleResult{NewProgressPercentage: progress}, nil
}

// recompute derives progress from the completions of record and caches it on the enrollment.
func (svc *Service) recompute(ctx context.Context, tx core.DBExecutor, enr Enrollment, now time.Time) (float64, int, error) {
	defer func(start time.Time) {
		svc.metrics.RecordProgressRecompute(time.Since(start))
	}(time.Now())

	completed, err := svc.repo.CountCompletedLessons(ctx, enr.ID, enr.CourseID, tx)
	if err != nil {
		return 0, 0, errors.Wrap(err, "counting completed lessons")
	}
	total, err := svc.courseRepo.CountLessons(ctx, enr.CourseID, tx)
	if err != nil {
		return 0, 0, errors.Wrap(err, "counting lessons")
	}

	progress := ComputeProgress(completed, total)
	if err := svc.repo.UpdateEnrollmentProgress(ctx, enr.ID, progress, now, tx); err != nil {
		return 0, 0, errors.Wrap(err, "updating progress")
	}
	return progress, total, nil
}

// GetProgress returns the caller's progress in a course, refreshing the cached value when the
// enrollment grants access.
func (svc *Service) GetProgress(ctx context.Context, caller user.User, courseID string) (CourseProgress, error) {
	courseID = core.CleanString(courseID)
	if _, err := svc.courseRepo.GetCourse(ctx, courseID); err != nil {
		return CourseProgress{}, errors.Wrap(err, "finding course")
	}

	now := svc.clock.Now()
	var cp CourseProgress
	err := core.RunInTx(ctx, svc.db, func(tx core.DBExecutor) error {
		enr, err := svc.repo.GetEnrollmentByUserCourse(ctx, caller.ID, courseID, tx)
		if err != nil {
			return errors.Wrap(err, "finding enrollment")
		}

		if enr.Status.GrantsAccess() {
			if enr.Progress, cp.TotalLessons, err = svc.recompute(ctx, tx, enr, now); err != nil {
				return err
			}
			enr.LastAccessedAt.SetValid(now)
		} else if cp.TotalLessons, err = svc.courseRepo.CountLessons(ctx, courseID, tx); err != nil {
			return errors.Wrap(err, "counting lessons")
		}

		if cp.CompletedLessonIDs, err = svc.repo.QueryCompletedLessonIDs(ctx, enr.ID, courseID, tx); err != nil {
			return errors.Wrap(err, "querying completed lessons")
		}
		cp.Enrollment = enr
		return nil
	})
	return cp, err
}

// Complete records the teacher's final grade and closes the enrollment.
func (svc *Service) Complete(ctx context.Context, teacher user.User, enrollmentID string, grade Grade) (Enrollment, error) {
	if err := grade.Validate(svc.validate); err != nil {
		return Enrollment{}, err
	}

	now := svc.clock.Now()
	var (
		enr  Enrollment
		from Status
	)
	err := core.RunInTx(ctx, svc.db, func(tx core.DBExecutor) error {
		var err error
		if enr, err = svc.repo.GetEnrollment(ctx, core.CleanString(enrollmentID), tx); err != nil {
			return errors.Wrap(err, "finding enrollment")
		}
		var crs course.Course
		if crs, err = svc.courseRepo.GetCourse(ctx, enr.CourseID, tx); err != nil {
			return errors.Wrap(err, "finding course")
		}
		if !crs.IsTaughtBy(teacher.ID) {
			return ErrNotTeacher
		}

		from = enr.Status
		to, ok := NextStatus(enr.Status, EventComplete)
		if !ok {
			svc.metrics.RecordRejectedTransition(entityEnrollment, string(enr.Status), string(EventComplete))
			return ErrNotActive
		}
		if err = svc.repo.CompleteEnrollment(ctx, enr.ID, enr.Status, to, *grade.Grade, now, tx); err != nil {
			return conflictAs(err, ErrStatusChanged, "completing enrollment")
		}
		enr.Status, enr.UpdatedAt = to, now
		enr.Grade.SetValid(*grade.Grade)
		return nil
	})
	if err != nil {
		return Enrollment{}, err
	}

	svc.metrics.RecordTransition(entityEnrollment, string(from), string(enr.Status))
	svc.emit(ctx, audit.Event{
		Type:         audit.SubmissionGraded,
		ActorID:      teacher.ID,
		CourseID:     enr.CourseID,
		EnrollmentID: enr.ID,
		OccurredAt:   now,
		Data:         map[string]interface{}{"grade": *grade.Grade, "student_id": enr.UserID},
	})
	return enr, nil
}
