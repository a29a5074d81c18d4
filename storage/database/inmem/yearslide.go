package inmemdb

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/kodomo/core/academicyear"
	"github.com/trezcool/kodomo/core/assignment"
	"github.com/trezcool/kodomo/core/nursery"
	"github.com/trezcool/kodomo/core/yearslide"
)

type yearSlideStore struct {
	db *DB
}

var _ yearslide.Store = (*yearSlideStore)(nil)

func NewYearSlideStore(db *DB) *yearSlideStore {
	return &yearSlideStore{db: db}
}

// Slide holds the write lock of the whole DB for the duration of fn.
func (store *yearSlideStore) Slide(ctx context.Context, nurseryID int, fn func(tx yearslide.Tx) error) error {
	return store.db.write(func(t *tables) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return fn(&slideTx{t: t, nurseryID: nurseryID})
	})
}

func (store *yearSlideStore) SaveLog(_ context.Context, res yearslide.Result) error {
	return store.db.write(func(t *tables) error {
		t.logs = append(t.logs, res)
		return nil
	})
}

func (store *yearSlideStore) ListLogs(_ context.Context, nurseryID int) ([]yearslide.Result, error) {
	logs := make([]yearslide.Result, 0)
	store.db.read(func(t *tables) {
		for _, l := range t.logs {
			if l.NurseryID == nurseryID {
				logs = append(logs, l)
			}
		}
	})
	return logs, nil
}

type slideTx struct {
	t         *tables
	nurseryID int
}

var _ yearslide.Tx = (*slideTx)(nil)

func (tx *slideTx) Years(_ context.Context) ([]academicyear.AcademicYear, error) {
	return tx.t.nurseryYears(tx.nurseryID), nil
}

func (tx *slideTx) SetYearFlags(_ context.Context, year int, isCurrent, isFuture bool) error {
	key := yearKey{tx.nurseryID, year}
	ay, ok := tx.t.years[key]
	if !ok {
		return errors.Wrapf(academicyear.ErrNotFound, "setting flags of %d", year)
	}
	ay.IsCurrent = isCurrent
	ay.IsFuture = isFuture
	if err := tx.t.checkYearFlags(ay); err != nil {
		return err
	}
	tx.t.years[key] = ay
	return nil
}

func (tx *slideTx) Children(_ context.Context) ([]nursery.Child, error) {
	return tx.t.nurseryChildren(tx.nurseryID), nil
}

func (tx *slideTx) Staff(_ context.Context) ([]nursery.Staff, error) {
	return tx.t.nurseryStaff(tx.nurseryID), nil
}

func (tx *slideTx) ChildAssignments(_ context.Context, year int) ([]assignment.ChildAssignment, error) {
	return tx.t.childAssignments(tx.nurseryID, year), nil
}

func (tx *slideTx) StaffAssignments(_ context.Context, year int) ([]assignment.StaffAssignment, error) {
	return tx.t.staffAssignments(tx.nurseryID, year), nil
}

func (tx *slideTx) InsertLog(_ context.Context, res yearslide.Result) error {
	tx.t.logs = append(tx.t.logs, res)
	return nil
}
