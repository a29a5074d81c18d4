package inmemdb

import (
	"sync"

	"github.com/trezcool/kodomo/core/academicyear"
	"github.com/trezcool/kodomo/core/assignment"
	"github.com/trezcool/kodomo/core/nursery"
	"github.com/trezcool/kodomo/core/yearslide"
)

type (
	yearKey struct {
		nurseryID, year int
	}

	memberKey struct {
		nurseryID, id int
	}

	classKey struct {
		nurseryID, year int
		id              string
	}

	childAssignmentKey struct {
		year, nurseryID, childID int
	}

	staffAssignmentKey struct {
		year, nurseryID, staffID int
		classID                  string
	}

	tables struct {
		years    map[yearKey]academicyear.AcademicYear
		children map[memberKey]nursery.Child
		staff    map[memberKey]nursery.Staff
		classes  map[classKey]nursery.Class
		childAs  map[childAssignmentKey]assignment.ChildAssignment
		staffAs  map[staffAssignmentKey]assignment.StaffAssignment
		logs     []yearslide.Result
	}

	// DB is a process-local store. Writes are copy-on-write so that a failing transaction leaves no trace.
	DB struct {
		mutex sync.RWMutex
		data  *tables
	}
)

func Open() *DB {
	return &DB{data: newTables()}
}

func newTables() *tables {
	return &tables{
		years:    make(map[yearKey]academicyear.AcademicYear),
		children: make(map[memberKey]nursery.Child),
		staff:    make(map[memberKey]nursery.Staff),
		classes:  make(map[classKey]nursery.Class),
		childAs:  make(map[childAssignmentKey]assignment.ChildAssignment),
		staffAs:  make(map[staffAssignmentKey]assignment.StaffAssignment),
	}
}

func (t *tables) clone() *tables {
	c := newTables()
	for k, v := range t.years {
		c.years[k] = v
	}
	for k, v := range t.children {
		c.children[k] = v
	}
	for k, v := range t.staff {
		c.staff[k] = v
	}
	for k, v := range t.classes {
		c.classes[k] = v
	}
	for k, v := range t.childAs {
		c.childAs[k] = v
	}
	for k, v := range t.staffAs {
		c.staffAs[k] = v
	}
	c.logs = append(c.logs, t.logs...)
	return c
}

func (db *DB) read(fn func(t *tables)) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	fn(db.data)
}

// write applies fn to a copy of the tables; the copy replaces the tables only when fn succeeds.
func (db *DB) write(fn func(t *tables) error) error {
	db.mutex.Lock()
	defer db.mutex.Unlock()

	draft := db.data.clone()
	if err := fn(draft); err != nil {
		return err
	}
	db.data = draft
	return nil
}

// Reset drops all the data.
func (db *DB) Reset() {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	db.data = newTables()
}

// master data is owned by other modules, these are used to load it.

func (db *DB) SaveChildren(children ...nursery.Child) {
	_ = db.write(func(t *tables) error {
		for _, c := range children {
			t.children[memberKey{c.NurseryID, c.ID}] = c
		}
		return nil
	})
}

func (db *DB) SaveStaff(staff ...nursery.Staff) {
	_ = db.write(func(t *tables) error {
		for _, s := range staff {
			t.staff[memberKey{s.NurseryID, s.ID}] = s
		}
		return nil
	})
}

func (db *DB) SaveClasses(classes ...nursery.Class) {
	_ = db.write(func(t *tables) error {
		for _, c := range classes {
			t.classes[classKey{c.NurseryID, c.AcademicYear, c.ID}] = c
		}
		return nil
	})
}
