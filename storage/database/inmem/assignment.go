package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/kodomo/core/assignment"
)

type assignmentRepository struct {
	db *DB
}

var _ assignment.Repository = (*assignmentRepository)(nil)

func NewAssignmentRepository(db *DB) *assignmentRepository {
	return &assignmentRepository{db: db}
}

func (t *tables) childAssignments(nurseryID, year int) []assignment.ChildAssignment {
	res := make([]assignment.ChildAssignment, 0)
	for k, a := range t.childAs {
		if k.nurseryID == nurseryID && k.year == year {
			res = append(res, a)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ChildID < res[j].ChildID })
	return res
}

func (t *tables) staffAssignments(nurseryID, year int) []assignment.StaffAssignment {
	res := make([]assignment.StaffAssignment, 0)
	for k, a := range t.staffAs {
		if k.nurseryID == nurseryID && k.year == year {
			res = append(res, a)
		}
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].ClassID != res[j].ClassID {
			return res[i].ClassID < res[j].ClassID
		}
		return res[i].StaffID < res[j].StaffID
	})
	return res
}

func (repo *assignmentRepository) ListChildAssignments(_ context.Context, nurseryID, year int) ([]assignment.ChildAssignment, error) {
	var res []assignment.ChildAssignment
	repo.db.read(func(t *tables) { res = t.childAssignments(nurseryID, year) })
	return res, nil
}

func (repo *assignmentRepository) ListStaffAssignments(_ context.Context, nurseryID, year int) ([]assignment.StaffAssignment, error) {
	var res []assignment.StaffAssignment
	repo.db.read(func(t *tables) { res = t.staffAssignments(nurseryID, year) })
	return res, nil
}

func (repo *assignmentRepository) UpsertChildAssignments(_ context.Context, assignments ...assignment.ChildAssignment) ([]assignment.ChildAssignment, error) {
	err := repo.db.write(func(t *tables) error {
		for _, a := range assignments {
			t.childAs[childAssignmentKey{a.AcademicYear, a.NurseryID, a.ChildID}] = a
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return assignments, nil
}

func (repo *assignmentRepository) DeleteChildAssignment(_ context.Context, nurseryID, year, childID int) (bool, error) {
	var found bool
	err := repo.db.write(func(t *tables) error {
		key := childAssignmentKey{year, nurseryID, childID}
		_, found = t.childAs[key]
		delete(t.childAs, key)
		return nil
	})
	return found, err
}

func (repo *assignmentRepository) UpsertStaffAssignment(_ context.Context, a assignment.StaffAssignment) (assignment.StaffAssignment, error) {
	err := repo.db.write(func(t *tables) error {
		t.staffAs[staffAssignmentKey{a.AcademicYear, a.NurseryID, a.StaffID, a.ClassID}] = a
		return nil
	})
	return a, err
}

func (repo *assignmentRepository) DeleteStaffAssignment(_ context.Context, nurseryID, year, staffID int, classID string) (bool, error) {
	var found bool
	err := repo.db.write(func(t *tables) error {
		key := staffAssignmentKey{year, nurseryID, staffID, classID}
		_, found = t.staffAs[key]
		delete(t.staffAs, key)
		return nil
	})
	return found, err
}
