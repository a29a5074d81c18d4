package nursery

import (
	"context"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/kodomo/core"
)

var ErrNotFound = errors.New("not found")

type (
	// Child is an enrolled (or withdrawn) child of a nursery.
	Child struct {
		NurseryID   int       `json:"nurseryId"`
		ID          int       `json:"childId"`
		Name        string    `json:"name"`
		BirthDate   core.Date `json:"birthDate"`
		IsActive    bool      `json:"isActive"`
		WithdrawnAt core.Date `json:"withdrawnAt"`
	}

	Staff struct {
		NurseryID int         `json:"nurseryId"`
		ID        int         `json:"staffId"`
		Name      string      `json:"name"`
		Position  string      `json:"position"`
		Email     null.String `json:"email"`
		IsActive  bool        `json:"isActive"`
	}

	// Class is a group of children for one academic year. Classes are copied forward every year.
	Class struct {
		NurseryID    int    `json:"nurseryId"`
		AcademicYear int    `json:"academicYear"`
		ID           string `json:"classId"`
		Name         string `json:"className"`
		AgeGroup     int    `json:"ageGroup"`
		MaxCapacity  int    `json:"maxCapacity"`
		IsActive     bool   `json:"isActive"`
	}

	// Directory gives read access to the master data owned by the enrollment & HR modules.
	Directory interface {
		ListChildren(ctx context.Context, nurseryID int) ([]Child, error)
		ListStaff(ctx context.Context, nurseryID int) ([]Staff, error)
		ListClasses(ctx context.Context, nurseryID, year int) ([]Class, error)
		GetChild(ctx context.Context, nurseryID, childID int) (Child, error)
		GetStaff(ctx context.Context, nurseryID, staffID int) (Staff, error)
		GetClass(ctx context.Context, nurseryID, year int, classID string) (Class, error)
	}
)

func ChildrenByID(children []Child) map[int]Child {
	idx := make(map[int]Child, len(children))
	for _, c := range children {
		idx[c.ID] = c
	}
	return idx
}

func StaffByID(staff []Staff) map[int]Staff {
	idx := make(map[int]Staff, len(staff))
	for _, s := range staff {
		idx[s.ID] = s
	}
	return idx
}

func ClassesByID(classes []Class) map[string]Class {
	idx := make(map[string]Class, len(classes))
	for _, c := range classes {
		idx[c.ID] = c
	}
	return idx
}
