package academicyear

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/kodomo/core"
)

type Status string

const (
	StatusCurrent Status = "current"
	StatusFuture  Status = "future"
	StatusPast    Status = "past"
)

// AcademicYear is one school year of a nursery, e.g. 2025 = Apr 1st 2025 - Mar 31st 2026.
type AcademicYear struct {
	NurseryID int         `json:"nurseryId"`
	Year      int         `json:"year"`
	StartDate core.Date   `json:"startDate"`
	EndDate   core.Date   `json:"endDate"`
	IsCurrent bool        `json:"isCurrent"`
	IsFuture  bool        `json:"isFuture"`
	Notes     null.String `json:"notes"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

func (ay AcademicYear) Status() Status {
	switch {
	case ay.IsCurrent:
		return StatusCurrent
	case ay.IsFuture:
		return StatusFuture
	default:
		return StatusPast
	}
}

// Contains tells whether d falls within the year (both ends included).
func (ay AcademicYear) Contains(d core.Date) bool {
	return !d.Before(ay.StartDate) && !d.After(ay.EndDate)
}

// NewAcademicYear registers a new year. Zero fields are derived from the current year.
type NewAcademicYear struct {
	NurseryID   int         `json:"nurseryId" validate:"required,min=1"`
	Year        int         `json:"year" validate:"omitempty,min=1900,max=9999"`
	StartDate   core.Date   `json:"startDate"`
	EndDate     core.Date   `json:"endDate"`
	IsFuture    *bool       `json:"isFuture"`
	CopyClasses *bool       `json:"copyClasses"`
	Notes       null.String `json:"notes"`
}

func (na NewAcademicYear) Validate(validate *validator.Validate) error {
	return validate.Struct(na)
}

type UpdateAcademicYear struct {
	StartDate *core.Date `json:"startDate"`
	EndDate   *core.Date `json:"endDate"`
	Notes     *string    `json:"notes"`
}

func (ua UpdateAcademicYear) Validate(validate *validator.Validate) error {
	return validate.Struct(ua)
}
