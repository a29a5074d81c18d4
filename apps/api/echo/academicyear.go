package echoapi

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/kodomo/core/academicyear"
)

type YearService interface {
	List(ctx context.Context, nurseryID int) ([]academicyear.AcademicYear, error)
	GetCurrent(ctx context.Context, nurseryID int) (academicyear.AcademicYear, error)
	GetFuture(ctx context.Context, nurseryID int) (academicyear.AcademicYear, error)
	Create(ctx context.Context, na academicyear.NewAcademicYear) (academicyear.AcademicYear, error)
	Update(ctx context.Context, nurseryID, year int, ua academicyear.UpdateAcademicYear) (academicyear.AcademicYear, error)
}

type academicYearApi struct {
	svc      YearService
	validate *validator.Validate
}

func registerAcademicYearAPI(g *echo.Group, svc YearService, validate *validator.Validate) {
	api := academicYearApi{
		svc:      svc,
		validate: validate,
	}

	yg := g.Group("/academic-years")
	yg.GET("", api.list)
	yg.GET("/current", api.current)
	yg.GET("/future", api.future)
	yg.POST("", api.create, rolesMiddleware(RoleDirector))
	yg.PUT("/:year", api.update, rolesMiddleware(RoleDirector))
}

// Handlers

func (api *academicYearApi) list(ctx echo.Context) error {
	var q NurseryQuery
	if err := bindQuery(ctx, api.validate, &q); err != nil {
		return err
	}
	if err := authorizeNursery(ctx, q.NurseryID); err != nil {
		return err
	}

	years, err := api.svc.List(ctx.Request().Context(), q.NurseryID)
	if err != nil {
		return errors.Wrap(err, "listing academic years")
	}
	if years == nil {
		years = []academicyear.AcademicYear{}
	}
	return respondOK(ctx, "", years)
}

func (api *academicYearApi) current(ctx echo.Context) error {
	var q NurseryQuery
	if err := bindQuery(ctx, api.validate, &q); err != nil {
		return err
	}
	if err := authorizeNursery(ctx, q.NurseryID); err != nil {
		return err
	}

	ay, err := api.svc.GetCurrent(ctx.Request().Context(), q.NurseryID)
	if err != nil {
		return errors.Wrap(err, "getting current academic year")
	}
	return respondOK(ctx, "", ay)
}

func (api *academicYearApi) future(ctx echo.Context) error {
	var q NurseryQuery
	if err := bindQuery(ctx, api.validate, &q); err != nil {
		return err
	}
	if err := authorizeNursery(ctx, q.NurseryID); err != nil {
		return err
	}

	ay, err := api.svc.GetFuture(ctx.Request().Context(), q.NurseryID)
	if err != nil {
		return errors.Wrap(err, "getting future academic year")
	}
	return respondOK(ctx, "", ay)
}

func (api *academicYearApi) create(ctx echo.Context) error {
	var data academicyear.NewAcademicYear
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAcademicYear")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	if err := authorizeNursery(ctx, data.NurseryID); err != nil {
		return err
	}

	ay, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating academic year")
	}
	return respondCreated(ctx, fmt.Sprintf("academic year %d created", ay.Year), ay)
}

func (api *academicYearApi) update(ctx echo.Context) error {
	year, err := parseIntParam(ctx, "year")
	if err != nil {
		return err
	}
	nurseryID, err := parseIntQuery(ctx, "nurseryId")
	if err != nil {
		return err
	}
	if err = authorizeNursery(ctx, nurseryID); err != nil {
		return err
	}

	var data academicyear.UpdateAcademicYear
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateAcademicYear")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	ay, err := api.svc.Update(ctx.Request().Context(), nurseryID, year, data)
	if err != nil {
		return errors.Wrap(err, "updating academic year")
	}
	return respondOK(ctx, fmt.Sprintf("academic year %d updated", ay.Year), ay)
}
