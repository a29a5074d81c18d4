package echoapi

import (
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

type (
	NurseryQuery struct {
		NurseryID int `query:"nurseryId" json:"nurseryId" validate:"required,min=1"`
	}

	YearQuery struct {
		NurseryID    int `query:"nurseryId" json:"nurseryId" validate:"required,min=1"`
		AcademicYear int `query:"academicYear" json:"academicYear" validate:"required,min=1900,max=9999"`
	}

	PreviewQuery struct {
		NurseryID  int `query:"nurseryId" json:"nurseryId" validate:"required,min=1"`
		TargetYear int `query:"targetYear" json:"targetYear" validate:"required,min=1900,max=9999"`
	}

	AvailableStaffQuery struct {
		NurseryID    int    `query:"nurseryId" json:"nurseryId" validate:"required,min=1"`
		AcademicYear int    `query:"academicYear" json:"academicYear" validate:"required,min=1900,max=9999"`
		ClassID      string `query:"classId" json:"classId" validate:"omitempty,max=50,classid"`
	}

	UnassignChildQuery struct {
		NurseryID    int `query:"nurseryId" json:"nurseryId" validate:"required,min=1"`
		AcademicYear int `query:"academicYear" json:"academicYear" validate:"required,min=1900,max=9999"`
		ChildID      int `param:"childId" json:"childId" validate:"required,min=1"`
	}
)

// bindQuery binds the path & query parameters of ctx to q, then validates it.
func bindQuery(ctx echo.Context, validate *validator.Validate, q interface{}) error {
	if err := ctx.Bind(q); err != nil {
		return errors.Wrap(err, "binding query")
	}
	return validate.Struct(q)
}
