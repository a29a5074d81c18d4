package echoapi

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/kodomo/core/assignment"
)

type AssignmentService interface {
	AssignChild(ctx context.Context, req assignment.AssignChildToClassRequest) (assignment.ChildAssignment, error)
	BulkAssignChildren(ctx context.Context, req assignment.BulkAssignChildrenRequest) ([]assignment.ChildAssignment, error)
	UnassignChild(ctx context.Context, nurseryID, year, childID int) (bool, error)
	AssignStaff(ctx context.Context, req assignment.AssignStaffToClassRequest) (assignment.StaffAssignment, error)
	UnassignStaff(ctx context.Context, req assignment.UnassignStaffFromClassRequest) (bool, error)
	ClassesWithChildren(ctx context.Context, nurseryID, year int) ([]assignment.ClassWithChildren, error)
	AvailableChildren(ctx context.Context, nurseryID, year int) ([]assignment.AvailableChild, error)
	ClassStaffAssignments(ctx context.Context, nurseryID, year int) ([]assignment.ClassStaff, error)
	AvailableStaff(ctx context.Context, nurseryID, year int, classID string) ([]assignment.AvailableStaff, error)
}

type assignmentApi struct {
	svc      AssignmentService
	validate *validator.Validate
}

func registerAssignmentAPI(g *echo.Group, svc AssignmentService, validate *validator.Validate) {
	api := assignmentApi{
		svc:      svc,
		validate: validate,
	}

	ag := g.Group("/class-assignments")

	cg := ag.Group("/children")
	cg.GET("", api.classesWithChildren)
	cg.GET("/available", api.availableChildren)
	cg.POST("", api.assignChild)
	cg.POST("/bulk", api.bulkAssignChildren)
	cg.DELETE("/:childId", api.unassignChild)

	sg := ag.Group("/staff")
	sg.GET("", api.classStaff)
	sg.GET("/available", api.availableStaff)
	sg.POST("", api.assignStaff)
	sg.DELETE("", api.unassignStaff)
}

// Children

func (api *assignmentApi) classesWithChildren(ctx echo.Context) error {
	var q YearQuery
	if err := bindQuery(ctx, api.validate, &q); err != nil {
		return err
	}
	if err := authorizeNursery(ctx, q.NurseryID); err != nil {
		return err
	}

	classes, err := api.svc.ClassesWithChildren(ctx.Request().Context(), q.NurseryID, q.AcademicYear)
	if err != nil {
		return errors.Wrap(err, "listing classes with children")
	}
	if classes == nil {
		classes = []assignment.ClassWithChildren{}
	}
	return respondOK(ctx, "", classes)
}

func (api *assignmentApi) availableChildren(ctx echo.Context) error {
	var q YearQuery
	if err := bindQuery(ctx, api.validate, &q); err != nil {
		return err
	}
	if err := authorizeNursery(ctx, q.NurseryID); err != nil {
		return err
	}

	children, err := api.svc.AvailableChildren(ctx.Request().Context(), q.NurseryID, q.AcademicYear)
	if err != nil {
		return errors.Wrap(err, "listing available children")
	}
	if children == nil {
		children = []assignment.AvailableChild{}
	}
	return respondOK(ctx, "", children)
}

func (api *assignmentApi) assignChild(ctx echo.Context) error {
	var data assignment.AssignChildToClassRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AssignChildToClassRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	if err := authorizeNursery(ctx, data.NurseryID); err != nil {
		return err
	}

	a, err := api.svc.AssignChild(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "assigning child")
	}
	return respondOK(ctx, fmt.Sprintf("child %d assigned to class %s", a.ChildID, a.ClassID), a)
}

func (api *assignmentApi) bulkAssignChildren(ctx echo.Context) error {
	var data assignment.BulkAssignChildrenRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to BulkAssignChildrenRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	if err := authorizeNursery(ctx, data.NurseryID); err != nil {
		return err
	}

	as, err := api.svc.BulkAssignChildren(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "assigning children")
	}
	return respondOK(ctx, fmt.Sprintf("%d children assigned to class %s", len(as), data.ClassID), as)
}

func (api *assignmentApi) unassignChild(ctx echo.Context) error {
	var q UnassignChildQuery
	if err := bindQuery(ctx, api.validate, &q); err != nil {
		return err
	}
	if err := authorizeNursery(ctx, q.NurseryID); err != nil {
		return err
	}

	removed, err := api.svc.UnassignChild(ctx.Request().Context(), q.NurseryID, q.AcademicYear, q.ChildID)
	if err != nil {
		return errors.Wrap(err, "unassigning child")
	}
	msg := fmt.Sprintf("child %d was not assigned to any class", q.ChildID)
	if removed {
		msg = fmt.Sprintf("child %d unassigned", q.ChildID)
	}
	return respondOK(ctx, msg, removed)
}

// Staff

func (api *assignmentApi) classStaff(ctx echo.Context) error {
	var q YearQuery
	if err := bindQuery(ctx, api.validate, &q); err != nil {
		return err
	}
	if err := authorizeNursery(ctx, q.NurseryID); err != nil {
		return err
	}

	classes, err := api.svc.ClassStaffAssignments(ctx.Request().Context(), q.NurseryID, q.AcademicYear)
	if err != nil {
		return errors.Wrap(err, "listing class staff")
	}
	if classes == nil {
		classes = []assignment.ClassStaff{}
	}
	return respondOK(ctx, "", classes)
}

func (api *assignmentApi) availableStaff(ctx echo.Context) error {
	var q AvailableStaffQuery
	if err := bindQuery(ctx, api.validate, &q); err != nil {
		return err
	}
	if err := authorizeNursery(ctx, q.NurseryID); err != nil {
		return err
	}

	staff, err := api.svc.AvailableStaff(ctx.Request().Context(), q.NurseryID, q.AcademicYear, q.ClassID)
	if err != nil {
		return errors.Wrap(err, "listing available staff")
	}
	if staff == nil {
		staff = []assignment.AvailableStaff{}
	}
	return respondOK(ctx, "", staff)
}

func (api *assignmentApi) assignStaff(ctx echo.Context) error {
	var data assignment.AssignStaffToClassRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AssignStaffToClassRequest")
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	data.AssignedByUserID = claims.actingUserID(data.AssignedByUserID)
	if err = data.Validate(api.validate); err != nil {
		return err
	}
	if err = authorizeNursery(ctx, data.NurseryID); err != nil {
		return err
	}

	a, err := api.svc.AssignStaff(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "assigning staff")
	}
	return respondOK(ctx, fmt.Sprintf("staff %d assigned to class %s", a.StaffID, a.ClassID), a)
}

func (api *assignmentApi) unassignStaff(ctx echo.Context) error {
	var data assignment.UnassignStaffFromClassRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UnassignStaffFromClassRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	if err := authorizeNursery(ctx, data.NurseryID); err != nil {
		return err
	}

	removed, err := api.svc.UnassignStaff(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "unassigning staff")
	}
	msg := fmt.Sprintf("staff %d was not assigned to class %s", data.StaffID, data.ClassID)
	if removed {
		msg = fmt.Sprintf("staff %d unassigned from class %s", data.StaffID, data.ClassID)
	}
	return respondOK(ctx, msg, removed)
}
