package boiledrepos

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/kodomo/core"
	"github.com/trezcool/kodomo/core/nursery"
)

var classCols = []string{"nursery_id", "academic_year", "id", "name", "age_group", "max_capacity", "is_active"}

func newMockDirectory(t *testing.T) (*directory, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewDirectory(db), mock
}

func Test_trapNoRowsErr(t *testing.T) {
	other := errors.New("connection reset")
	assert.Equal(t, nursery.ErrNotFound, trapNoRowsErr(sql.ErrNoRows))
	assert.Equal(t, nursery.ErrNotFound, trapNoRowsErr(errors.Wrap(sql.ErrNoRows, "binding")))
	assert.Equal(t, other, trapNoRowsErr(other))
}

func TestDirectory_GetClass(t *testing.T) {
	ctx := context.Background()
	dir, mock := newMockDirectory(t)

	query := regexp.QuoteMeta("FROM classes WHERE nursery_id = $1 AND academic_year = $2 AND id = $3")
	mock.ExpectQuery(query).
		WithArgs(1, 2025, "sakura").
		WillReturnRows(sqlmock.NewRows(classCols).AddRow(1, 2025, "sakura", "Sakura", 4, 20, true))
	mock.ExpectQuery(query).
		WithArgs(1, 2025, "ume").
		WillReturnRows(sqlmock.NewRows(classCols))

	class, err := dir.GetClass(ctx, 1, 2025, "sakura")
	require.NoError(t, err)
	assert.Equal(t, nursery.Class{
		NurseryID: 1, AcademicYear: 2025, ID: "sakura", Name: "Sakura", AgeGroup: 4, MaxCapacity: 20, IsActive: true,
	}, class)

	_, err = dir.GetClass(ctx, 1, 2025, "ume")
	assert.Equal(t, nursery.ErrNotFound, errors.Cause(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDirectory_ListChildren(t *testing.T) {
	ctx := context.Background()
	dir, mock := newMockDirectory(t)

	birth := time.Date(2020, time.June, 3, 0, 0, 0, 0, time.UTC)
	withdrawn := time.Date(2025, time.January, 31, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("FROM children WHERE nursery_id = $1 ORDER BY id")).
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"nursery_id", "id", "name", "birth_date", "is_active", "withdrawn_at"}).
			AddRow(1, 42, "Hana", birth, true, nil).
			AddRow(1, 43, "Sora", nil, false, withdrawn))

	children, err := dir.ListChildren(ctx, 1)
	require.NoError(t, err)
	require.Len(t, children, 2)
	assert.True(t, children[0].BirthDate.Equal(core.NewDate(2020, time.June, 3)))
	assert.True(t, children[0].WithdrawnAt.IsZero())
	assert.True(t, children[1].BirthDate.IsZero())
	assert.True(t, children[1].WithdrawnAt.Equal(core.NewDate(2025, time.January, 31)))
	assert.False(t, children[1].IsActive)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDirectory_GetStaff(t *testing.T) {
	ctx := context.Background()
	dir, mock := newMockDirectory(t)

	query := regexp.QuoteMeta("FROM staff WHERE nursery_id = $1 AND id = $2")
	mock.ExpectQuery(query).
		WithArgs(1, 7).
		WillReturnRows(sqlmock.NewRows([]string{"nursery_id", "id", "name", "position", "email", "is_active"}).
			AddRow(1, 7, "Yuki", "teacher", nil, true))
	mock.ExpectQuery(query).WithArgs(1, 9).WillReturnError(sql.ErrNoRows)

	staff, err := dir.GetStaff(ctx, 1, 7)
	require.NoError(t, err)
	assert.Equal(t, "Yuki", staff.Name)
	assert.False(t, staff.Email.Valid)

	_, err = dir.GetStaff(ctx, 1, 9)
	assert.Equal(t, nursery.ErrNotFound, errors.Cause(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}
