package yearslide

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/kodomo/core"
)

type (
	// Request asks to turn the future academic year into the current one.
	Request struct {
		NurseryID        int         `json:"nurseryId" validate:"required,min=1"`
		TargetYear       int         `json:"targetYear" validate:"required,min=1900,max=9999"`
		Confirmed        bool        `json:"confirmed"`
		ExecutedByUserID int         `json:"executedByUserId" validate:"required,min=1"`
		Notes            null.String `json:"notes"`
	}

	ClassSummary struct {
		ClassID        string `json:"classId"`
		ClassName      string `json:"className"`
		AgeGroup       int    `json:"ageGroup"`
		MaxCapacity    int    `json:"maxCapacity"`
		ChildCount     int    `json:"childCount"`
		StaffCount     int    `json:"staffCount"`
		IsOverCapacity bool   `json:"isOverCapacity"`
		ChildIDs       []int  `json:"childIds"`
		StaffIDs       []int  `json:"staffIds"`
	}

	UnassignedChild struct {
		ChildID int    `json:"childId"`
		Name    string `json:"name"`
		// CurrentClassID is the class of the child during the current year, if any.
		CurrentClassID null.String `json:"currentClassId"`
	}

	UnassignedStaff struct {
		StaffID  int    `json:"staffId"`
		Name     string `json:"name"`
		Position string `json:"position"`
	}

	// Preview is what a year slide would do if executed now.
	Preview struct {
		NurseryID             int               `json:"nurseryId"`
		CurrentYear           int               `json:"currentYear"`
		TargetYear            int               `json:"targetYear"`
		TargetStartDate       core.Date         `json:"targetStartDate"`
		TargetEndDate         core.Date         `json:"targetEndDate"`
		AffectedChildrenCount int               `json:"affectedChildrenCount"`
		AffectedStaffCount    int               `json:"affectedStaffCount"`
		ClassSummaries        []ClassSummary    `json:"classSummaries"`
		UnassignedChildren    []UnassignedChild `json:"unassignedChildren"`
		UnassignedStaff       []UnassignedStaff `json:"unassignedStaff"`
		Warnings              []string          `json:"warnings"`
	}

	// Result is the outcome of a year slide. Every executed slide leaves one as an audit record.
	Result struct {
		ID                  uuid.UUID   `json:"id"`
		NurseryID           int         `json:"nurseryId"`
		Success             bool        `json:"success"`
		PreviousYear        int         `json:"previousYear"`
		NewYear             int         `json:"newYear"`
		SlidedChildrenCount int         `json:"slidedChildrenCount"`
		SlidedStaffCount    int         `json:"slidedStaffCount"`
		ExecutedAt          time.Time   `json:"executedAt"`
		ExecutedByUserID    int         `json:"executedByUserId"`
		ErrorMessage        null.String `json:"errorMessage"`
		Messages            []string    `json:"messages"`
		Notes               null.String `json:"notes"`
	}
)

func (r Request) Validate(validate *validator.Validate) error {
	return validate.Struct(r)
}
