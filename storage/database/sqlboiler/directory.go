package boiledrepos

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
	"github.com/volatiletech/sqlboiler/v4/boil"
	"github.com/volatiletech/sqlboiler/v4/queries"

	"github.com/trezcool/kodomo/core"
	"github.com/trezcool/kodomo/core/nursery"
)

const (
	childColumns = `nursery_id, id, name, birth_date, is_active, withdrawn_at`
	staffColumns = `nursery_id, id, name, position, email, is_active`
	classColumns = `nursery_id, academic_year, id, name, age_group, max_capacity, is_active`
)

type (
	childModel struct {
		NurseryID   int       `boil:"nursery_id"`
		ID          int       `boil:"id"`
		Name        string    `boil:"name"`
		BirthDate   null.Time `boil:"birth_date"`
		IsActive    bool      `boil:"is_active"`
		WithdrawnAt null.Time `boil:"withdrawn_at"`
	}

	staffModel struct {
		NurseryID int         `boil:"nursery_id"`
		ID        int         `boil:"id"`
		Name      string      `boil:"name"`
		Position  string      `boil:"position"`
		Email     null.String `boil:"email"`
		IsActive  bool        `boil:"is_active"`
	}

	classModel struct {
		NurseryID    int    `boil:"nursery_id"`
		AcademicYear int    `boil:"academic_year"`
		ID           string `boil:"id"`
		Name         string `boil:"name"`
		AgeGroup     int    `boil:"age_group"`
		MaxCapacity  int    `boil:"max_capacity"`
		IsActive     bool   `boil:"is_active"`
	}
)

// directory reads the master data of the enrollment & HR modules with raw sqlboiler queries.
type directory struct {
	exec boil.ContextExecutor
}

var _ nursery.Directory = (*directory)(nil) // interface compliance check

func NewDirectory(exec boil.ContextExecutor) *directory {
	return &directory{exec: exec}
}

func (dir directory) unboilChild(m *childModel) nursery.Child {
	c := nursery.Child{
		NurseryID: m.NurseryID,
		ID:        m.ID,
		Name:      m.Name,
		IsActive:  m.IsActive,
	}
	if m.BirthDate.Valid {
		c.BirthDate = core.DateOf(m.BirthDate.Time)
	}
	if m.WithdrawnAt.Valid {
		c.WithdrawnAt = core.DateOf(m.WithdrawnAt.Time)
	}
	return c
}

func (dir directory) unboilStaff(m *staffModel) nursery.Staff {
	return nursery.Staff{
		NurseryID: m.NurseryID,
		ID:        m.ID,
		Name:      m.Name,
		Position:  m.Position,
		Email:     m.Email,
		IsActive:  m.IsActive,
	}
}

func (dir directory) unboilClass(m *classModel) nursery.Class {
	return nursery.Class(*m)
}

// trapNoRowsErr maps sql.ErrNoRows to nursery.ErrNotFound.
func trapNoRowsErr(err error) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return nursery.ErrNotFound
	}
	return err
}

func (dir directory) ListChildren(ctx context.Context, nurseryID int) ([]nursery.Child, error) {
	var models []*childModel
	q := queries.Raw(`SELECT `+childColumns+` FROM children WHERE nursery_id = $1 ORDER BY id`, nurseryID)
	if err := q.Bind(ctx, dir.exec, &models); err != nil {
		return nil, errors.Wrap(err, "selecting children")
	}
	children := make([]nursery.Child, 0, len(models))
	for _, m := range models {
		children = append(children, dir.unboilChild(m))
	}
	return children, nil
}

func (dir directory) ListStaff(ctx context.Context, nurseryID int) ([]nursery.Staff, error) {
	var models []*staffModel
	q := queries.Raw(`SELECT `+staffColumns+` FROM staff WHERE nursery_id = $1 ORDER BY id`, nurseryID)
	if err := q.Bind(ctx, dir.exec, &models); err != nil {
		return nil, errors.Wrap(err, "selecting staff")
	}
	staff := make([]nursery.Staff, 0, len(models))
	for _, m := range models {
		staff = append(staff, dir.unboilStaff(m))
	}
	return staff, nil
}

func (dir directory) ListClasses(ctx context.Context, nurseryID, year int) ([]nursery.Class, error) {
	var models []*classModel
	q := queries.Raw(
		`SELECT `+classColumns+` FROM classes WHERE nursery_id = $1 AND academic_year = $2 ORDER BY age_group, id`,
		nurseryID, year,
	)
	if err := q.Bind(ctx, dir.exec, &models); err != nil {
		return nil, errors.Wrap(err, "selecting classes")
	}
	classes := make([]nursery.Class, 0, len(models))
	for _, m := range models {
		classes = append(classes, dir.unboilClass(m))
	}
	return classes, nil
}

func (dir directory) GetChild(ctx context.Context, nurseryID, childID int) (nursery.Child, error) {
	m := new(childModel)
	q := queries.Raw(`SELECT `+childColumns+` FROM children WHERE nursery_id = $1 AND id = $2`, nurseryID, childID)
	if err := q.Bind(ctx, dir.exec, m); err != nil {
		return nursery.Child{}, errors.Wrap(trapNoRowsErr(err), "selecting child")
	}
	return dir.unboilChild(m), nil
}

func (dir directory) GetStaff(ctx context.Context, nurseryID, staffID int) (nursery.Staff, error) {
	m := new(staffModel)
	q := queries.Raw(`SELECT `+staffColumns+` FROM staff WHERE nursery_id = $1 AND id = $2`, nurseryID, staffID)
	if err := q.Bind(ctx, dir.exec, m); err != nil {
		return nursery.Staff{}, errors.Wrap(trapNoRowsErr(err), "selecting staff member")
	}
	return dir.unboilStaff(m), nil
}

func (dir directory) GetClass(ctx context.Context, nurseryID, year int, classID string) (nursery.Class, error) {
	m := new(classModel)
	q := queries.Raw(
		`SELECT `+classColumns+` FROM classes WHERE nursery_id = $1 AND academic_year = $2 AND id = $3`,
		nurseryID, year, classID,
	)
	if err := q.Bind(ctx, dir.exec, m); err != nil {
		return nursery.Class{}, errors.Wrap(trapNoRowsErr(err), "selecting class")
	}
	return dir.unboilClass(m), nil
}
