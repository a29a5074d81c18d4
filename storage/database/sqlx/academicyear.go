package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/kodomo/core"
	"github.com/trezcool/kodomo/core/academicyear"
)

const (
	yearColumns = `nursery_id, year, start_date, end_date, is_current, is_future, notes, created_at, updated_at`

	selectYearsQuery = `SELECT ` + yearColumns + ` FROM academic_years WHERE nursery_id = $1`

	insertYearQuery = `INSERT INTO academic_years (` + yearColumns + `)
		VALUES (:nursery_id, :year, :start_date, :end_date, :is_current, :is_future, :notes, :created_at, :updated_at)`

	copyClassesQuery = `INSERT INTO classes (nursery_id, academic_year, id, name, age_group, max_capacity, is_active)
		SELECT nursery_id, $2, id, name, age_group, max_capacity, is_active
		FROM classes WHERE nursery_id = $1 AND academic_year = $3 AND is_active`

	updateYearQuery = `UPDATE academic_years
		SET start_date = :start_date, end_date = :end_date, is_current = :is_current, is_future = :is_future,
			notes = :notes, updated_at = :updated_at
		WHERE nursery_id = :nursery_id AND year = :year`
)

type yearRow struct {
	NurseryID int         `db:"nursery_id"`
	Year      int         `db:"year"`
	StartDate core.Date   `db:"start_date"`
	EndDate   core.Date   `db:"end_date"`
	IsCurrent bool        `db:"is_current"`
	IsFuture  bool        `db:"is_future"`
	Notes     null.String `db:"notes"`
	CreatedAt time.Time   `db:"created_at"`
	UpdatedAt time.Time   `db:"updated_at"`
}

func newYearRow(ay academicyear.AcademicYear) yearRow {
	return yearRow{
		NurseryID: ay.NurseryID,
		Year:      ay.Year,
		StartDate: ay.StartDate,
		EndDate:   ay.EndDate,
		IsCurrent: ay.IsCurrent,
		IsFuture:  ay.IsFuture,
		Notes:     ay.Notes,
		CreatedAt: ay.CreatedAt.UTC(),
		UpdatedAt: ay.UpdatedAt.UTC(),
	}
}

func (r yearRow) toYear() academicyear.AcademicYear {
	return academicyear.AcademicYear{
		NurseryID: r.NurseryID,
		Year:      r.Year,
		StartDate: r.StartDate,
		EndDate:   r.EndDate,
		IsCurrent: r.IsCurrent,
		IsFuture:  r.IsFuture,
		Notes:     r.Notes,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func toYears(rows []yearRow) []academicyear.AcademicYear {
	years := make([]academicyear.AcademicYear, 0, len(rows))
	for _, r := range rows {
		years = append(years, r.toYear())
	}
	return years
}

type academicYearRepository struct {
	db *sqlx.DB
}

var _ academicyear.Repository = (*academicYearRepository)(nil) // interface compliance check

func NewAcademicYearRepository(db *sqlx.DB) *academicYearRepository {
	return &academicYearRepository{db: db}
}

func (repo *academicYearRepository) List(ctx context.Context, nurseryID int) ([]academicyear.AcademicYear, error) {
	var rows []yearRow
	if err := sqlx.SelectContext(ctx, repo.db, &rows, selectYearsQuery+` ORDER BY year`, nurseryID); err != nil {
		return nil, errors.Wrap(err, "selecting academic years")
	}
	return toYears(rows), nil
}

func (repo *academicYearRepository) getOne(ctx context.Context, query string, args ...interface{}) (academicyear.AcademicYear, error) {
	var row yearRow
	if err := sqlx.GetContext(ctx, repo.db, &row, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return academicyear.AcademicYear{}, academicyear.ErrNotFound
		}
		return academicyear.AcademicYear{}, errors.Wrap(err, "selecting academic year")
	}
	return row.toYear(), nil
}

func (repo *academicYearRepository) Get(ctx context.Context, nurseryID, year int) (academicyear.AcademicYear, error) {
	return repo.getOne(ctx, selectYearsQuery+` AND year = $2`, nurseryID, year)
}

func (repo *academicYearRepository) GetCurrent(ctx context.Context, nurseryID int) (academicyear.AcademicYear, error) {
	return repo.getOne(ctx, selectYearsQuery+` AND is_current`, nurseryID)
}

func (repo *academicYearRepository) GetFuture(ctx context.Context, nurseryID int) (academicyear.AcademicYear, error) {
	return repo.getOne(ctx, selectYearsQuery+` AND is_future`, nurseryID)
}

func (repo *academicYearRepository) Create(ctx context.Context, ay academicyear.AcademicYear, copyClassesFrom int) (academicyear.AcademicYear, error) {
	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		if _, err := tx.NamedExecContext(ctx, insertYearQuery, newYearRow(ay)); err != nil {
			if tErr := translateErr(err); tErr != err {
				return tErr
			}
			return errors.Wrap(err, "inserting academic year")
		}
		if copyClassesFrom == 0 {
			return nil
		}
		if _, err := tx.ExecContext(ctx, copyClassesQuery, ay.NurseryID, ay.Year, copyClassesFrom); err != nil {
			return errors.Wrap(err, "copying classes")
		}
		return nil
	})
	if err != nil {
		return academicyear.AcademicYear{}, err
	}
	return ay, nil
}

func (repo *academicYearRepository) Update(ctx context.Context, ay academicyear.AcademicYear) (academicyear.AcademicYear, error) {
	res, err := repo.db.NamedExecContext(ctx, updateYearQuery, newYearRow(ay))
	if err != nil {
		if tErr := translateErr(err); tErr != err {
			return academicyear.AcademicYear{}, tErr
		}
		return academicyear.AcademicYear{}, errors.Wrap(err, "updating academic year")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return academicyear.AcademicYear{}, academicyear.ErrNotFound
	}
	return repo.Get(ctx, ay.NurseryID, ay.Year)
}
