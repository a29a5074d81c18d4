package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/kodomo/core"
	"github.com/trezcool/kodomo/core/academicyear"
)

type academicYearRepository struct {
	db *DB
}

var _ academicyear.Repository = (*academicYearRepository)(nil)

func NewAcademicYearRepository(db *DB) *academicYearRepository {
	return &academicYearRepository{db: db}
}

func (t *tables) nurseryYears(nurseryID int) []academicyear.AcademicYear {
	years := make([]academicyear.AcademicYear, 0)
	for k, ay := range t.years {
		if k.nurseryID == nurseryID {
			years = append(years, ay)
		}
	}
	sort.Slice(years, func(i, j int) bool { return years[i].Year < years[j].Year })
	return years
}

// checkYearFlags mirrors the partial unique indexes of the SQL schema.
func (t *tables) checkYearFlags(ay academicyear.AcademicYear) error {
	for k, other := range t.years {
		if k.nurseryID != ay.NurseryID || k.year == ay.Year {
			continue
		}
		if ay.IsCurrent && other.IsCurrent {
			return core.NewStateError(core.CodeConflict, "academic year %d is already the current year", other.Year)
		}
		if ay.IsFuture && other.IsFuture {
			return core.NewStateError(core.CodeConflict, "academic year %d is already registered as the future year", other.Year)
		}
	}
	return nil
}

func (repo *academicYearRepository) List(_ context.Context, nurseryID int) ([]academicyear.AcademicYear, error) {
	var years []academicyear.AcademicYear
	repo.db.read(func(t *tables) { years = t.nurseryYears(nurseryID) })
	return years, nil
}

func (repo *academicYearRepository) Get(_ context.Context, nurseryID, year int) (academicyear.AcademicYear, error) {
	var (
		ay academicyear.AcademicYear
		ok bool
	)
	repo.db.read(func(t *tables) { ay, ok = t.years[yearKey{nurseryID, year}] })
	if !ok {
		return academicyear.AcademicYear{}, academicyear.ErrNotFound
	}
	return ay, nil
}

func (repo *academicYearRepository) find(nurseryID int, match func(academicyear.AcademicYear) bool) (academicyear.AcademicYear, error) {
	var years []academicyear.AcademicYear
	repo.db.read(func(t *tables) { years = t.nurseryYears(nurseryID) })
	for _, ay := range years {
		if match(ay) {
			return ay, nil
		}
	}
	return academicyear.AcademicYear{}, academicyear.ErrNotFound
}

func (repo *academicYearRepository) GetCurrent(_ context.Context, nurseryID int) (academicyear.AcademicYear, error) {
	return repo.find(nurseryID, func(ay academicyear.AcademicYear) bool { return ay.IsCurrent })
}

func (repo *academicYearRepository) GetFuture(_ context.Context, nurseryID int) (academicyear.AcademicYear, error) {
	return repo.find(nurseryID, func(ay academicyear.AcademicYear) bool { return ay.IsFuture })
}

func (repo *academicYearRepository) Create(_ context.Context, ay academicyear.AcademicYear, copyClassesFrom int) (academicyear.AcademicYear, error) {
	err := repo.db.write(func(t *tables) error {
		key := yearKey{ay.NurseryID, ay.Year}
		if _, exists := t.years[key]; exists {
			return core.NewStateError(core.CodeConflict, "academic year %d already exists", ay.Year)
		}
		if err := t.checkYearFlags(ay); err != nil {
			return err
		}
		t.years[key] = ay

		if copyClassesFrom == 0 {
			return nil
		}
		for k, class := range t.classes {
			if k.nurseryID != ay.NurseryID || k.year != copyClassesFrom || !class.IsActive {
				continue
			}
			class.AcademicYear = ay.Year
			t.classes[classKey{ay.NurseryID, ay.Year, class.ID}] = class
		}
		return nil
	})
	if err != nil {
		return academicyear.AcademicYear{}, err
	}
	return ay, nil
}

func (repo *academicYearRepository) Update(_ context.Context, ay academicyear.AcademicYear) (academicyear.AcademicYear, error) {
	err := repo.db.write(func(t *tables) error {
		key := yearKey{ay.NurseryID, ay.Year}
		orig, ok := t.years[key]
		if !ok {
			return academicyear.ErrNotFound
		}
		ay.CreatedAt = orig.CreatedAt
		if err := t.checkYearFlags(ay); err != nil {
			return err
		}
		t.years[key] = ay
		return nil
	})
	if err != nil {
		return academicyear.AcademicYear{}, err
	}
	return ay, nil
}
