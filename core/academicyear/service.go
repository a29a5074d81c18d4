package academicyear

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/kodomo/core"
)

// ErrNotFound is returned by repositories when no row matches.
var ErrNotFound = errors.New("academic year not found")

type Repository interface {
	List(ctx context.Context, nurseryID int) ([]AcademicYear, error)
	Get(ctx context.Context, nurseryID, year int) (AcademicYear, error)
	GetCurrent(ctx context.Context, nurseryID int) (AcademicYear, error)
	GetFuture(ctx context.Context, nurseryID int) (AcademicYear, error)
	// Create inserts ay. When copyClassesFrom is not 0, the active classes of that year are copied
	// into the new year within the same transaction.
	// A core.StateError (Conflict) is returned when the year or the future slot is already taken.
	Create(ctx context.Context, ay AcademicYear, copyClassesFrom int) (AcademicYear, error)
	Update(ctx context.Context, ay AcademicYear) (AcademicYear, error)
}

type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

func ErrNotConfigured(nurseryID int) error {
	return core.NewStateError(core.CodeNotConfigured, "no current academic year is configured for nursery %d", nurseryID)
}

func errYearNotFound(year int) error {
	return core.NewStateError(core.CodeNotFound, "academic year %d not found", year)
}

// GetCurrent returns the current academic year of the nursery.
func (svc *Service) GetCurrent(ctx context.Context, nurseryID int) (AcademicYear, error) {
	ay, err := svc.repo.GetCurrent(ctx, nurseryID)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return AcademicYear{}, ErrNotConfigured(nurseryID)
		}
		return AcademicYear{}, errors.Wrap(err, "getting current academic year")
	}
	return ay, nil
}

func (svc *Service) GetFuture(ctx context.Context, nurseryID int) (AcademicYear, error) {
	ay, err := svc.repo.GetFuture(ctx, nurseryID)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return AcademicYear{}, core.NewStateError(core.CodeNotFound, "no future academic year is registered for nursery %d", nurseryID)
		}
		return AcademicYear{}, errors.Wrap(err, "getting future academic year")
	}
	return ay, nil
}

func (svc *Service) Get(ctx context.Context, nurseryID, year int) (AcademicYear, error) {
	ay, err := svc.repo.Get(ctx, nurseryID, year)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return AcademicYear{}, errYearNotFound(year)
		}
		return AcademicYear{}, errors.Wrap(err, "getting academic year")
	}
	return ay, nil
}

// List returns all the academic years of the nursery, oldest first.
func (svc *Service) List(ctx context.Context, nurseryID int) ([]AcademicYear, error) {
	years, err := svc.repo.List(ctx, nurseryID)
	if err != nil {
		return nil, errors.Wrap(err, "listing academic years")
	}
	sort.Slice(years, func(i, j int) bool { return years[i].Year < years[j].Year })
	return years, nil
}

// Create registers a new academic year.
// The first year of a nursery becomes its current year; afterwards only a single future year can be added.
func (svc *Service) Create(ctx context.Context, na NewAcademicYear) (AcademicYear, error) {
	years, err := svc.List(ctx, na.NurseryID)
	if err != nil {
		return AcademicYear{}, err
	}
	var current, future *AcademicYear
	for i := range years {
		switch years[i].Status() {
		case StatusCurrent:
			current = &years[i]
		case StatusFuture:
			future = &years[i]
		}
	}

	ay := AcademicYear{
		NurseryID: na.NurseryID,
		Year:      na.Year,
		StartDate: na.StartDate,
		EndDate:   na.EndDate,
		Notes:     na.Notes,
	}
	copyFrom := 0

	if current == nil {
		if na.IsFuture != nil && *na.IsFuture {
			return AcademicYear{}, core.NewStateError(core.CodeInvalidState,
				"a current academic year must be configured before registering a future one")
		}
		var flds []core.FieldError
		if ay.Year == 0 {
			flds = append(flds, core.FieldError{Field: "year", Error: "year is required"})
		}
		if ay.StartDate.IsZero() {
			flds = append(flds, core.FieldError{Field: "startDate", Error: "startDate is required"})
		}
		if ay.EndDate.IsZero() {
			flds = append(flds, core.FieldError{Field: "endDate", Error: "endDate is required"})
		}
		if len(flds) > 0 {
			return AcademicYear{}, core.NewValidationError(nil, flds...)
		}
		ay.IsCurrent = true
	} else {
		if na.IsFuture != nil && !*na.IsFuture {
			return AcademicYear{}, core.NewStateError(core.CodeInvalidState,
				"academic year %d is current; only a future year can be registered", current.Year)
		}
		if future != nil {
			return AcademicYear{}, core.NewStateError(core.CodeConflict,
				"academic year %d is already registered as the future year", future.Year)
		}
		if ay.Year == 0 {
			ay.Year = current.Year + 1
		}
		if ay.StartDate.IsZero() {
			ay.StartDate = current.EndDate.AddDays(1)
		}
		if ay.EndDate.IsZero() {
			ay.EndDate = ay.StartDate.AddDate(1, 0, -1)
		}
		if ay.Year != current.Year+1 {
			return AcademicYear{}, core.NewValidationError(nil, core.FieldError{
				Field: "year",
				Error: fmt.Sprintf("year must be %d, the year after the current academic year %d", current.Year+1, current.Year),
			})
		}
		ay.IsFuture = true
		if na.CopyClasses == nil || *na.CopyClasses {
			copyFrom = current.Year
		}
	}

	for _, y := range years {
		if y.Year == ay.Year {
			return AcademicYear{}, core.NewStateError(core.CodeConflict, "academic year %d already exists", ay.Year)
		}
	}
	if err = checkDates(ay, years); err != nil {
		return AcademicYear{}, err
	}

	now := svc.now().UTC()
	ay.CreatedAt = now
	ay.UpdatedAt = now

	created, err := svc.repo.Create(ctx, ay, copyFrom)
	if err != nil {
		if _, ok := core.ErrorCodeOf(err); ok {
			return AcademicYear{}, err
		}
		return AcademicYear{}, errors.Wrap(err, "creating academic year")
	}
	return created, nil
}

// Update edits the dates & notes of the future academic year. Current & past years are frozen.
func (svc *Service) Update(ctx context.Context, nurseryID, year int, ua UpdateAcademicYear) (AcademicYear, error) {
	ay, err := svc.Get(ctx, nurseryID, year)
	if err != nil {
		return AcademicYear{}, err
	}
	if !ay.IsFuture {
		return AcademicYear{}, core.NewStateError(core.CodeInvalidState,
			"academic year %d is %s and can no longer be edited", year, ay.Status())
	}

	if ua.StartDate != nil {
		ay.StartDate = *ua.StartDate
	}
	if ua.EndDate != nil {
		ay.EndDate = *ua.EndDate
	}
	if ua.Notes != nil {
		ay.Notes.SetValid(*ua.Notes)
	}

	years, err := svc.List(ctx, nurseryID)
	if err != nil {
		return AcademicYear{}, err
	}
	if err = checkDates(ay, years); err != nil {
		return AcademicYear{}, err
	}

	ay.UpdatedAt = svc.now().UTC()
	updated, err := svc.repo.Update(ctx, ay)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return AcademicYear{}, errYearNotFound(year)
		}
		return AcademicYear{}, errors.Wrap(err, "updating academic year")
	}
	return updated, nil
}

// checkDates makes sure ay is a valid range which does not overlap the other years of the nursery
// and keeps them in chronological order.
func checkDates(ay AcademicYear, others []AcademicYear) error {
	if !ay.StartDate.Before(ay.EndDate) {
		return core.NewValidationError(nil, core.FieldError{Field: "endDate", Error: endAfterStartText})
	}
	// the year is named after the calendar year it starts in
	if ay.StartDate.Year() != ay.Year {
		return core.NewValidationError(nil, core.FieldError{
			Field: "startDate",
			Error: fmt.Sprintf("startDate must fall in %d", ay.Year),
		})
	}
	for _, o := range others {
		switch {
		case o.Year == ay.Year:
			continue
		case o.Year < ay.Year && !o.EndDate.Before(ay.StartDate):
			return core.NewValidationError(nil, core.FieldError{
				Field: "startDate",
				Error: fmt.Sprintf("startDate must be after the end of academic year %d (%s)", o.Year, o.EndDate),
			})
		case o.Year > ay.Year && !ay.EndDate.Before(o.StartDate):
			return core.NewValidationError(nil, core.FieldError{
				Field: "endDate",
				Error: fmt.Sprintf("endDate must be before the start of academic year %d (%s)", o.Year, o.StartDate),
			})
		}
	}
	return nil
}
