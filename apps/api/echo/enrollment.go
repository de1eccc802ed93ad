package echoapi

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/pan-thu/lets-talk-sub000/core/enrollment"
	"github.com/pan-thu/lets-talk-sub000/core/user"
)

type EnrollmentService interface {
	SubmitProof(ctx context.Context, caller user.User, courseID, proofImageURL string) (enrollment.SubmitProofResult, error)
	EnrollFree(ctx context.Context, caller user.User, courseID string) (enrollment.Enrollment, error)
	Approve(ctx context.Context, admin user.User, paymentID string) (enrollment.Payment, error)
	Reject(ctx context.Context, admin user.User, paymentID, reason string) (enrollment.Payment, error)
	ApplyWebhookOutcome(ctx context.Context, wo enrollment.WebhookOutcome) (enrollment.Payment, error)
	ListPayments(ctx context.Context, admin user.User, filter enrollment.PaymentFilter) ([]enrollment.Payment, error)
	ToggleLessonCompletion(ctx context.Context, caller user.User, tc enrollment.ToggleCompletion) (enrollment.ToggleResult, error)
	GetProgress(ctx context.Context, caller user.User, courseID string) (enrollment.CourseProgress, error)
	Complete(ctx context.Context, teacher user.User, enrollmentID string, grade enrollment.Grade) (enrollment.Enrollment, error)
}

var _ EnrollmentService = (*enrollment.Service)(nil)

type enrollmentApi struct {
	svc EnrollmentService
}

func registerEnrollmentAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc EnrollmentService) {
	api := enrollmentApi{svc: svc}

	cg := g.Group("/courses/:courseId", jwt)
	cg.POST("/payment-proof", api.submitProof)
	cg.POST("/enroll", api.enrollFree)
	cg.GET("/progress", api.progress)
	cg.POST("/lessons/:lessonId/completion", api.toggleCompletion)

	pg := g.Group("/payments", jwt, adminMiddleware())
	pg.GET("", api.queryPayments)
	pg.POST("/:id/approve", api.approve)
	pg.POST("/:id/reject", api.reject)

	g.POST("/enrollments/:id/complete", api.complete, jwt, teacherMiddleware())
}

// Handlers

func (api *enrollmentApi) submitProof(ctx echo.Context) error {
	var data proofRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to proofRequest")
	}
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}

	res, err := api.svc.SubmitProof(ctx.Request().Context(), usr, ctx.Param("courseId"), data.ProofImageURL)
	if err != nil {
		return errors.Wrap(err, "submitting payment proof")
	}
	return ctx.JSON(http.StatusCreated, res)
}

func (api *enrollmentApi) enrollFree(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}

	enr, err := api.svc.EnrollFree(ctx.Request().Context(), usr, ctx.Param("courseId"))
	if err != nil {
		return errors.Wrap(err, "enrolling")
	}
	return ctx.JSON(http.StatusCreated, enr)
}

func (api *enrollmentApi) progress(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}

	prog, err := api.svc.GetProgress(ctx.Request().Context(), usr, ctx.Param("courseId"))
	if err != nil {
		return errors.Wrap(err, "getting progress")
	}
	return ctx.JSON(http.StatusOK, prog)
}

func (api *enrollmentApi) toggleCompletion(ctx echo.Context) error {
	var data completionRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to completionRequest")
	}
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}

	res, err := api.svc.ToggleLessonCompletion(ctx.Request().Context(), usr, enrollment.ToggleCompletion{
		LessonID:     ctx.Param("lessonId"),
		CourseID:     ctx.Param("courseId"),
		EnrollmentID: data.EnrollmentID,
		IsCompleted:  data.IsCompleted,
	})
	if err != nil {
		return errors.Wrap(err, "toggling lesson completion")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *enrollmentApi) queryPayments(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}

	pmts, err := api.svc.ListPayments(ctx.Request().Context(), usr, bindPaymentFilter(ctx))
	if err != nil {
		return errors.Wrap(err, "listing payments")
	}
	return ctx.JSON(http.StatusOK, pmts)
}

func (api *enrollmentApi) approve(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}

	pmt, err := api.svc.Approve(ctx.Request().Context(), usr, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "approving payment")
	}
	return ctx.JSON(http.StatusOK, pmt)
}

func (api *enrollmentApi) reject(ctx echo.Context) error {
	var data rejectRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to rejectRequest")
	}
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}

	pmt, err := api.svc.Reject(ctx.Request().Context(), usr, ctx.Param("id"), data.Reason)
	if err != nil {
		return errors.Wrap(err, "rejecting payment")
	}
	return ctx.JSON(http.StatusOK, pmt)
}

func (api *enrollmentApi) complete(ctx echo.Context) error {
	var data enrollment.Grade
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Grade")
	}
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}

	enr, err := api.svc.Complete(ctx.Request().Context(), usr, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "completing enrollment")
	}
	return ctx.JSON(http.StatusOK, enr)
}
