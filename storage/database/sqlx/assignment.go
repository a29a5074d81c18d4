package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/kodomo/core/assignment"
)

const (
	selectChildAssignmentsQuery = `SELECT academic_year, nursery_id, child_id, class_id, assigned_at, notes
		FROM class_child_assignments WHERE nursery_id = $1 AND academic_year = $2 ORDER BY child_id`

	selectStaffAssignmentsQuery = `SELECT academic_year, nursery_id, staff_id, class_id, assignment_role, notes,
			assigned_at, assigned_by_user_id
		FROM class_staff_assignments WHERE nursery_id = $1 AND academic_year = $2 ORDER BY class_id, staff_id`

	upsertChildAssignmentQuery = `INSERT INTO class_child_assignments
			(academic_year, nursery_id, child_id, class_id, assigned_at, notes)
		VALUES (:academic_year, :nursery_id, :child_id, :class_id, :assigned_at, :notes)
		ON CONFLICT (academic_year, nursery_id, child_id)
		DO UPDATE SET class_id = EXCLUDED.class_id, assigned_at = EXCLUDED.assigned_at, notes = EXCLUDED.notes`

	deleteChildAssignmentQuery = `DELETE FROM class_child_assignments
		WHERE nursery_id = $1 AND academic_year = $2 AND child_id = $3`

	upsertStaffAssignmentQuery = `INSERT INTO class_staff_assignments
			(academic_year, nursery_id, staff_id, class_id, assignment_role, notes, assigned_at, assigned_by_user_id)
		VALUES (:academic_year, :nursery_id, :staff_id, :class_id, :assignment_role, :notes, :assigned_at, :assigned_by_user_id)
		ON CONFLICT (academic_year, nursery_id, staff_id, class_id)
		DO UPDATE SET assignment_role = EXCLUDED.assignment_role, notes = EXCLUDED.notes,
			assigned_at = EXCLUDED.assigned_at, assigned_by_user_id = EXCLUDED.assigned_by_user_id`

	deleteStaffAssignmentQuery = `DELETE FROM class_staff_assignments
		WHERE nursery_id = $1 AND academic_year = $2 AND staff_id = $3 AND class_id = $4`
)

type childAssignmentRow struct {
	AcademicYear int         `db:"academic_year"`
	NurseryID    int         `db:"nursery_id"`
	ChildID      int         `db:"child_id"`
	ClassID      string      `db:"class_id"`
	AssignedAt   time.Time   `db:"assigned_at"`
	Notes        null.String `db:"notes"`
}

func (r childAssignmentRow) toAssignment() assignment.ChildAssignment {
	return assignment.ChildAssignment(r)
}

type staffAssignmentRow struct {
	AcademicYear     int         `db:"academic_year"`
	NurseryID        int         `db:"nursery_id"`
	StaffID          int         `db:"staff_id"`
	ClassID          string      `db:"class_id"`
	Role             null.String `db:"assignment_role"`
	Notes            null.String `db:"notes"`
	AssignedAt       time.Time   `db:"assigned_at"`
	AssignedByUserID null.Int    `db:"assigned_by_user_id"`
}

func newStaffAssignmentRow(a assignment.StaffAssignment) staffAssignmentRow {
	return staffAssignmentRow{
		AcademicYear:     a.AcademicYear,
		NurseryID:        a.NurseryID,
		StaffID:          a.StaffID,
		ClassID:          a.ClassID,
		Role:             null.NewString(string(a.Role), a.Role != assignment.RoleNone),
		Notes:            a.Notes,
		AssignedAt:       a.AssignedAt.UTC(),
		AssignedByUserID: a.AssignedByUserID,
	}
}

func (r staffAssignmentRow) toAssignment() assignment.StaffAssignment {
	return assignment.StaffAssignment{
		AcademicYear:     r.AcademicYear,
		NurseryID:        r.NurseryID,
		StaffID:          r.StaffID,
		ClassID:          r.ClassID,
		Role:             assignment.StaffRole(r.Role.String),
		Notes:            r.Notes,
		AssignedAt:       r.AssignedAt,
		AssignedByUserID: r.AssignedByUserID,
	}
}

func selectChildAssignments(ctx context.Context, q queryer, nurseryID, year int) ([]assignment.ChildAssignment, error) {
	var rows []childAssignmentRow
	if err := sqlx.SelectContext(ctx, q, &rows, selectChildAssignmentsQuery, nurseryID, year); err != nil {
		return nil, errors.Wrap(err, "selecting child assignments")
	}
	res := make([]assignment.ChildAssignment, 0, len(rows))
	for _, r := range rows {
		res = append(res, r.toAssignment())
	}
	return res, nil
}

func selectStaffAssignments(ctx context.Context, q queryer, nurseryID, year int) ([]assignment.StaffAssignment, error) {
	var rows []staffAssignmentRow
	if err := sqlx.SelectContext(ctx, q, &rows, selectStaffAssignmentsQuery, nurseryID, year); err != nil {
		return nil, errors.Wrap(err, "selecting staff assignments")
	}
	res := make([]assignment.StaffAssignment, 0, len(rows))
	for _, r := range rows {
		res = append(res, r.toAssignment())
	}
	return res, nil
}

type assignmentRepository struct {
	db *sqlx.DB
}

var _ assignment.Repository = (*assignmentRepository)(nil) // interface compliance check

func NewAssignmentRepository(db *sqlx.DB) *assignmentRepository {
	return &assignmentRepository{db: db}
}

func (repo *assignmentRepository) ListChildAssignments(ctx context.Context, nurseryID, year int) ([]assignment.ChildAssignment, error) {
	return selectChildAssignments(ctx, repo.db, nurseryID, year)
}

func (repo *assignmentRepository) ListStaffAssignments(ctx context.Context, nurseryID, year int) ([]assignment.StaffAssignment, error) {
	return selectStaffAssignments(ctx, repo.db, nurseryID, year)
}

func (repo *assignmentRepository) UpsertChildAssignments(ctx context.Context, assignments ...assignment.ChildAssignment) ([]assignment.ChildAssignment, error) {
	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		for _, a := range assignments {
			a.AssignedAt = a.AssignedAt.UTC()
			if _, err := tx.NamedExecContext(ctx, upsertChildAssignmentQuery, childAssignmentRow(a)); err != nil {
				return errors.Wrapf(err, "upserting assignment of child %d", a.ChildID)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return assignments, nil
}

func (repo *assignmentRepository) DeleteChildAssignment(ctx context.Context, nurseryID, year, childID int) (bool, error) {
	res, err := repo.db.ExecContext(ctx, deleteChildAssignmentQuery, nurseryID, year, childID)
	if err != nil {
		return false, errors.Wrap(err, "deleting child assignment")
	}
	n, err := res.RowsAffected()
	return n > 0, errors.Wrap(err, "counting deleted child assignments")
}

func (repo *assignmentRepository) UpsertStaffAssignment(ctx context.Context, a assignment.StaffAssignment) (assignment.StaffAssignment, error) {
	if _, err := repo.db.NamedExecContext(ctx, upsertStaffAssignmentQuery, newStaffAssignmentRow(a)); err != nil {
		return assignment.StaffAssignment{}, errors.Wrap(err, "upserting staff assignment")
	}
	return a, nil
}

func (repo *assignmentRepository) DeleteStaffAssignment(ctx context.Context, nurseryID, year, staffID int, classID string) (bool, error) {
	res, err := repo.db.ExecContext(ctx, deleteStaffAssignmentQuery, nurseryID, year, staffID, classID)
	if err != nil {
		return false, errors.Wrap(err, "deleting staff assignment")
	}
	n, err := res.RowsAffected()
	return n > 0, errors.Wrap(err, "counting deleted staff assignments")
}
