package assignment

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/kodomo/core"
)

// StaffRole is the role of a staff member within a class. The zero value means no particular role.
type StaffRole string

const (
	RoleNone             StaffRole = ""
	RoleMainTeacher      StaffRole = "MainTeacher"
	RoleAssistantTeacher StaffRole = "AssistantTeacher"
)

func (r StaffRole) IsValid() bool {
	switch r {
	case RoleNone, RoleMainTeacher, RoleAssistantTeacher:
		return true
	}
	return false
}

func (r StaffRole) priority() int {
	switch r {
	case RoleMainTeacher:
		return 0
	case RoleAssistantTeacher:
		return 1
	}
	return 2
}

type (
	ChildAssignment struct {
		AcademicYear int         `json:"academicYear"`
		NurseryID    int         `json:"nurseryId"`
		ChildID      int         `json:"childId"`
		ClassID      string      `json:"classId"`
		AssignedAt   time.Time   `json:"assignedAt"`
		Notes        null.String `json:"notes"`
	}

	StaffAssignment struct {
		AcademicYear     int         `json:"academicYear"`
		NurseryID        int         `json:"nurseryId"`
		StaffID          int         `json:"staffId"`
		ClassID          string      `json:"classId"`
		Role             StaffRole   `json:"assignmentRole"`
		Notes            null.String `json:"notes"`
		AssignedAt       time.Time   `json:"assignedAt"`
		AssignedByUserID null.Int    `json:"assignedByUserId"`
	}
)

// Requests

type (
	AssignChildToClassRequest struct {
		AcademicYear int         `json:"academicYear" validate:"required,min=1900,max=9999"`
		NurseryID    int         `json:"nurseryId" validate:"required,min=1"`
		ChildID      int         `json:"childId" validate:"required,min=1"`
		ClassID      string      `json:"classId" validate:"required,max=50,classid"`
		Notes        null.String `json:"notes"`
	}

	BulkAssignChildrenRequest struct {
		AcademicYear int         `json:"academicYear" validate:"required,min=1900,max=9999"`
		NurseryID    int         `json:"nurseryId" validate:"required,min=1"`
		ClassID      string      `json:"classId" validate:"required,max=50,classid"`
		ChildIDs     []int       `json:"childIds" validate:"required,min=1,max=200,dive,min=1"`
		Notes        null.String `json:"notes"`
	}

	AssignStaffToClassRequest struct {
		AcademicYear     int         `json:"academicYear" validate:"required,min=1900,max=9999"`
		NurseryID        int         `json:"nurseryId" validate:"required,min=1"`
		StaffID          int         `json:"staffId" validate:"required,min=1"`
		ClassID          string      `json:"classId" validate:"required,max=50,classid"`
		AssignmentRole   StaffRole   `json:"assignmentRole" validate:"staffrole"`
		Notes            null.String `json:"notes"`
		AssignedByUserID int         `json:"assignedByUserId" validate:"omitempty,min=1"`
	}

	UnassignStaffFromClassRequest struct {
		AcademicYear int    `json:"academicYear" validate:"required,min=1900,max=9999"`
		NurseryID    int    `json:"nurseryId" validate:"required,min=1"`
		StaffID      int    `json:"staffId" validate:"required,min=1"`
		ClassID      string `json:"classId" validate:"required,max=50,classid"`
	}
)

func (r AssignChildToClassRequest) Validate(validate *validator.Validate) error {
	return validate.Struct(r)
}

func (r BulkAssignChildrenRequest) Validate(validate *validator.Validate) error {
	return validate.Struct(r)
}

func (r AssignStaffToClassRequest) Validate(validate *validator.Validate) error {
	return validate.Struct(r)
}

func (r UnassignStaffFromClassRequest) Validate(validate *validator.Validate) error {
	return validate.Struct(r)
}

// Projections

type (
	AssignedChild struct {
		ChildID    int         `json:"childId"`
		Name       string      `json:"name"`
		BirthDate  core.Date   `json:"birthDate"`
		AssignedAt time.Time   `json:"assignedAt"`
		Notes      null.String `json:"notes"`
	}

	ClassWithChildren struct {
		ClassID        string          `json:"classId"`
		ClassName      string          `json:"className"`
		AgeGroup       int             `json:"ageGroup"`
		MaxCapacity    int             `json:"maxCapacity"`
		IsActive       bool            `json:"isActive"`
		ChildCount     int             `json:"childCount"`
		IsOverCapacity bool            `json:"isOverCapacity"`
		Children       []AssignedChild `json:"children"`
	}

	// AvailableChild is an active child without a class for the requested year.
	AvailableChild struct {
		ChildID   int       `json:"childId"`
		Name      string    `json:"name"`
		BirthDate core.Date `json:"birthDate"`
		// PreviousClassID is the class of the child during the preceding year, if any.
		PreviousClassID null.String `json:"previousClassId"`
	}

	AssignedStaff struct {
		StaffID        int         `json:"staffId"`
		Name           string      `json:"name"`
		Position       string      `json:"position"`
		AssignmentRole StaffRole   `json:"assignmentRole"`
		Notes          null.String `json:"notes"`
		AssignedAt     time.Time   `json:"assignedAt"`
	}

	ClassStaff struct {
		ClassID   string          `json:"classId"`
		ClassName string          `json:"className"`
		AgeGroup  int             `json:"ageGroup"`
		IsActive  bool            `json:"isActive"`
		Staff     []AssignedStaff `json:"staff"`
	}

	AvailableStaff struct {
		StaffID          int      `json:"staffId"`
		Name             string   `json:"name"`
		Position         string   `json:"position"`
		AssignedClassIDs []string `json:"assignedClassIds"`
	}
)
