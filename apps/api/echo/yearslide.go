package echoapi

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/kodomo/core/yearslide"
)

type SlideService interface {
	Preview(ctx context.Context, nurseryID, targetYear int) (yearslide.Preview, error)
	Execute(ctx context.Context, req yearslide.Request) (yearslide.Result, error)
	History(ctx context.Context, nurseryID int) ([]yearslide.Result, error)
}

type yearSlideApi struct {
	svc      SlideService
	validate *validator.Validate
}

func registerYearSlideAPI(g *echo.Group, svc SlideService, validate *validator.Validate) {
	api := yearSlideApi{
		svc:      svc,
		validate: validate,
	}

	sg := g.Group("/year-slide")
	sg.GET("/preview", api.preview)
	sg.GET("/history", api.history)
	sg.POST("/execute", api.execute, rolesMiddleware(RoleDirector))
}

// Handlers

func (api *yearSlideApi) preview(ctx echo.Context) error {
	var q PreviewQuery
	if err := bindQuery(ctx, api.validate, &q); err != nil {
		return err
	}
	if err := authorizeNursery(ctx, q.NurseryID); err != nil {
		return err
	}

	p, err := api.svc.Preview(ctx.Request().Context(), q.NurseryID, q.TargetYear)
	if err != nil {
		return errors.Wrap(err, "previewing year slide")
	}
	return respondOK(ctx, "", p)
}

func (api *yearSlideApi) execute(ctx echo.Context) error {
	var data yearslide.Request
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to yearslide.Request")
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	data.ExecutedByUserID = claims.actingUserID(data.ExecutedByUserID)
	if err = data.Validate(api.validate); err != nil {
		return err
	}
	if err = authorizeNursery(ctx, data.NurseryID); err != nil {
		return err
	}

	res, err := api.svc.Execute(ctx.Request().Context(), data)
	if err != nil {
		// the failed result is part of the response
		return withData(errors.Wrap(err, "executing year slide"), res)
	}
	return respondOK(ctx, fmt.Sprintf("academic year %d is now the current year", res.NewYear), res)
}

func (api *yearSlideApi) history(ctx echo.Context) error {
	var q NurseryQuery
	if err := bindQuery(ctx, api.validate, &q); err != nil {
		return err
	}
	if err := authorizeNursery(ctx, q.NurseryID); err != nil {
		return err
	}

	logs, err := api.svc.History(ctx.Request().Context(), q.NurseryID)
	if err != nil {
		return errors.Wrap(err, "listing year slide history")
	}
	if logs == nil {
		logs = []yearslide.Result{}
	}
	return respondOK(ctx, "", logs)
}
