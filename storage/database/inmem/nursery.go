package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/kodomo/core/nursery"
)

type directory struct {
	db *DB
}

var _ nursery.Directory = (*directory)(nil)

func NewDirectory(db *DB) *directory {
	return &directory{db: db}
}

func (t *tables) nurseryChildren(nurseryID int) []nursery.Child {
	children := make([]nursery.Child, 0)
	for k, c := range t.children {
		if k.nurseryID == nurseryID {
			children = append(children, c)
		}
	}
	sort.Slice(children, func(i, j int) bool { return children[i].ID < children[j].ID })
	return children
}

func (t *tables) nurseryStaff(nurseryID int) []nursery.Staff {
	staff := make([]nursery.Staff, 0)
	for k, s := range t.staff {
		if k.nurseryID == nurseryID {
			staff = append(staff, s)
		}
	}
	sort.Slice(staff, func(i, j int) bool { return staff[i].ID < staff[j].ID })
	return staff
}

func (dir *directory) ListChildren(_ context.Context, nurseryID int) ([]nursery.Child, error) {
	var children []nursery.Child
	dir.db.read(func(t *tables) { children = t.nurseryChildren(nurseryID) })
	return children, nil
}

func (dir *directory) ListStaff(_ context.Context, nurseryID int) ([]nursery.Staff, error) {
	var staff []nursery.Staff
	dir.db.read(func(t *tables) { staff = t.nurseryStaff(nurseryID) })
	return staff, nil
}

func (dir *directory) ListClasses(_ context.Context, nurseryID, year int) ([]nursery.Class, error) {
	classes := make([]nursery.Class, 0)
	dir.db.read(func(t *tables) {
		for k, c := range t.classes {
			if k.nurseryID == nurseryID && k.year == year {
				classes = append(classes, c)
			}
		}
	})
	sort.Slice(classes, func(i, j int) bool { return classes[i].ID < classes[j].ID })
	return classes, nil
}

func (dir *directory) GetChild(_ context.Context, nurseryID, childID int) (nursery.Child, error) {
	var (
		child nursery.Child
		ok    bool
	)
	dir.db.read(func(t *tables) { child, ok = t.children[memberKey{nurseryID, childID}] })
	if !ok {
		return nursery.Child{}, nursery.ErrNotFound
	}
	return child, nil
}

func (dir *directory) GetStaff(_ context.Context, nurseryID, staffID int) (nursery.Staff, error) {
	var (
		staff nursery.Staff
		ok    bool
	)
	dir.db.read(func(t *tables) { staff, ok = t.staff[memberKey{nurseryID, staffID}] })
	if !ok {
		return nursery.Staff{}, nursery.ErrNotFound
	}
	return staff, nil
}

func (dir *directory) GetClass(_ context.Context, nurseryID, year int, classID string) (nursery.Class, error) {
	var (
		class nursery.Class
		ok    bool
	)
	dir.db.read(func(t *tables) { class, ok = t.classes[classKey{nurseryID, year, classID}] })
	if !ok {
		return nursery.Class{}, nursery.ErrNotFound
	}
	return class, nil
}
