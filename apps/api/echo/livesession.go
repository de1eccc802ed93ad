package echoapi

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/pan-thu/lets-talk-sub000/core/livesession"
	"github.com/pan-thu/lets-talk-sub000/core/user"
)

type LiveSessionService interface {
	List(ctx context.Context, caller user.User, courseID string) ([]livesession.SessionView, error)
	Create(ctx context.Context, teacher user.User, ns livesession.NewSession) (livesession.LiveSession, error)
	Update(ctx context.Context, teacher user.User, id string, us livesession.UpdateSession) (livesession.LiveSession, error)
	Delete(ctx context.Context, teacher user.User, id string) error
	UploadRecording(ctx context.Context, teacher user.User, id string, rec livesession.Recording) (livesession.LiveSession, error)
}

var _ LiveSessionService = (*livesession.Service)(nil)

type liveSessionApi struct {
	svc LiveSessionService
}

func registerLiveSessionAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc LiveSessionService) {
	api := liveSessionApi{svc: svc}

	cg := g.Group("/courses/:courseId/live-sessions", jwt)
	cg.GET("", api.query)
	cg.POST("", api.create, teacherMiddleware())

	dg := g.Group("/live-sessions/:id", jwt, teacherMiddleware())
	dg.PUT("", api.update)
	dg.DELETE("", api.destroy)
	dg.POST("/recording", api.uploadRecording)
}

// Handlers

func (api *liveSessionApi) query(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}

	views, err := api.svc.List(ctx.Request().Context(), usr, ctx.Param("courseId"))
	if err != nil {
		return errors.Wrap(err, "listing live sessions")
	}
	return ctx.JSON(http.StatusOK, views)
}

func (api *liveSessionApi) create(ctx echo.Context) error {
	var data livesession.NewSession
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSession")
	}
	data.CourseID = ctx.Param("courseId")
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}

	ls, err := api.svc.Create(ctx.Request().Context(), usr, data)
	if err != nil {
		return errors.Wrap(err, "creating live session")
	}
	return ctx.JSON(http.StatusCreated, ls)
}

func (api *liveSessionApi) update(ctx echo.Context) error {
	var data livesession.UpdateSession
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateSession")
	}
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}

	ls, err := api.svc.Update(ctx.Request().Context(), usr, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating live session")
	}
	return ctx.JSON(http.StatusOK, ls)
}

func (api *liveSessionApi) destroy(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}

	if err = api.svc.Delete(ctx.Request().Context(), usr, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting live session")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *liveSessionApi) uploadRecording(ctx echo.Context) error {
	var data livesession.Recording
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Recording")
	}
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}

	ls, err := api.svc.UploadRecording(ctx.Request().Context(), usr, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "uploading recording")
	}
	return ctx.JSON(http.StatusOK, ls)
}
