package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/kodomo/core"
	"github.com/trezcool/kodomo/core/academicyear"
	"github.com/trezcool/kodomo/core/assignment"
	"github.com/trezcool/kodomo/core/nursery"
	"github.com/trezcool/kodomo/core/yearslide"
)

const (
	lockYearsQuery = selectYearsQuery + ` ORDER BY year FOR UPDATE`

	setYearFlagsQuery = `UPDATE academic_years SET is_current = $3, is_future = $4, updated_at = $5
		WHERE nursery_id = $1 AND year = $2`

	selectChildrenQuery = `SELECT nursery_id, id, name, birth_date, is_active, withdrawn_at
		FROM children WHERE nursery_id = $1 ORDER BY id`

	selectStaffQuery = `SELECT nursery_id, id, name, position, email, is_active
		FROM staff WHERE nursery_id = $1 ORDER BY id`

	logColumns = `id, nursery_id, success, previous_year, new_year, slided_children_count, slided_staff_count,
		executed_at, executed_by_user_id, error_message, messages, notes`

	insertLogQuery = `INSERT INTO year_slide_logs (` + logColumns + `)
		VALUES (:id, :nursery_id, :success, :previous_year, :new_year, :slided_children_count, :slided_staff_count,
			:executed_at, :executed_by_user_id, :error_message, :messages, :notes)`

	selectLogsQuery = `SELECT ` + logColumns + ` FROM year_slide_logs WHERE nursery_id = $1 ORDER BY executed_at DESC`
)

type childRow struct {
	NurseryID   int       `db:"nursery_id"`
	ID          int       `db:"id"`
	Name        string    `db:"name"`
	BirthDate   core.Date `db:"birth_date"`
	IsActive    bool      `db:"is_active"`
	WithdrawnAt core.Date `db:"withdrawn_at"`
}

type staffRow struct {
	NurseryID int         `db:"nursery_id"`
	ID        int         `db:"id"`
	Name      string      `db:"name"`
	Position  string      `db:"position"`
	Email     null.String `db:"email"`
	IsActive  bool        `db:"is_active"`
}

type logRow struct {
	ID                  uuid.UUID      `db:"id"`
	NurseryID           int            `db:"nursery_id"`
	Success             bool           `db:"success"`
	PreviousYear        int            `db:"previous_year"`
	NewYear             int            `db:"new_year"`
	SlidedChildrenCount int            `db:"slided_children_count"`
	SlidedStaffCount    int            `db:"slided_staff_count"`
	ExecutedAt          time.Time      `db:"executed_at"`
	ExecutedByUserID    int            `db:"executed_by_user_id"`
	ErrorMessage        null.String    `db:"error_message"`
	Messages            pq.StringArray `db:"messages"`
	Notes               null.String    `db:"notes"`
}

func newLogRow(res yearslide.Result) logRow {
	msgs := pq.StringArray(res.Messages)
	if msgs == nil {
		msgs = pq.StringArray{}
	}
	return logRow{
		ID:                  res.ID,
		NurseryID:           res.NurseryID,
		Success:             res.Success,
		PreviousYear:        res.PreviousYear,
		NewYear:             res.NewYear,
		SlidedChildrenCount: res.SlidedChildrenCount,
		SlidedStaffCount:    res.SlidedStaffCount,
		ExecutedAt:          res.ExecutedAt.UTC(),
		ExecutedByUserID:    res.ExecutedByUserID,
		ErrorMessage:        res.ErrorMessage,
		Messages:            msgs,
		Notes:               res.Notes,
	}
}

func (r logRow) toResult() yearslide.Result {
	msgs := []string(r.Messages)
	if msgs == nil {
		msgs = []string{}
	}
	return yearslide.Result{
		ID:                  r.ID,
		NurseryID:           r.NurseryID,
		Success:             r.Success,
		PreviousYear:        r.PreviousYear,
		NewYear:             r.NewYear,
		SlidedChildrenCount: r.SlidedChildrenCount,
		SlidedStaffCount:    r.SlidedStaffCount,
		ExecutedAt:          r.ExecutedAt,
		ExecutedByUserID:    r.ExecutedByUserID,
		ErrorMessage:        r.ErrorMessage,
		Messages:            msgs,
		Notes:               r.Notes,
	}
}

type yearSlideStore struct {
	db  *sqlx.DB
	now func() time.Time
}

var _ yearslide.Store = (*yearSlideStore)(nil) // interface compliance check

func NewYearSlideStore(db *sqlx.DB) *yearSlideStore {
	return &yearSlideStore{db: db, now: time.Now}
}

// Slide locks the academic year rows of the nursery (SELECT ... FOR UPDATE) before running fn,
// so a concurrent slide of the same nursery waits and then sees the flipped flags.
func (store *yearSlideStore) Slide(ctx context.Context, nurseryID int, fn func(tx yearslide.Tx) error) error {
	return withTx(ctx, store.db, func(tx *sqlx.Tx) error {
		var rows []yearRow
		if err := sqlx.SelectContext(ctx, tx, &rows, lockYearsQuery, nurseryID); err != nil {
			return errors.Wrap(err, "locking academic years")
		}
		return fn(&slideTx{tx: tx, nurseryID: nurseryID, years: toYears(rows), now: store.now})
	})
}

func (store *yearSlideStore) SaveLog(ctx context.Context, res yearslide.Result) error {
	_, err := store.db.NamedExecContext(ctx, insertLogQuery, newLogRow(res))
	return errors.Wrap(err, "inserting year slide log")
}

func (store *yearSlideStore) ListLogs(ctx context.Context, nurseryID int) ([]yearslide.Result, error) {
	var rows []logRow
	if err := sqlx.SelectContext(ctx, store.db, &rows, selectLogsQuery, nurseryID); err != nil {
		return nil, errors.Wrap(err, "selecting year slide logs")
	}
	logs := make([]yearslide.Result, 0, len(rows))
	for _, r := range rows {
		logs = append(logs, r.toResult())
	}
	return logs, nil
}

type slideTx struct {
	tx        *sqlx.Tx
	nurseryID int
	years     []academicyear.AcademicYear
	now       func() time.Time
}

var _ yearslide.Tx = (*slideTx)(nil)

func (stx *slideTx) Years(_ context.Context) ([]academicyear.AcademicYear, error) {
	return stx.years, nil
}

func (stx *slideTx) SetYearFlags(ctx context.Context, year int, isCurrent, isFuture bool) error {
	res, err := stx.tx.ExecContext(ctx, setYearFlagsQuery, stx.nurseryID, year, isCurrent, isFuture, stx.now().UTC())
	if err != nil {
		if tErr := translateErr(err); tErr != err {
			return tErr
		}
		return errors.Wrap(err, "updating academic year flags")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.Wrapf(academicyear.ErrNotFound, "updating flags of %d", year)
	}
	return nil
}

func (stx *slideTx) Children(ctx context.Context) ([]nursery.Child, error) {
	var rows []childRow
	if err := sqlx.SelectContext(ctx, stx.tx, &rows, selectChildrenQuery, stx.nurseryID); err != nil {
		return nil, errors.Wrap(err, "selecting children")
	}
	children := make([]nursery.Child, 0, len(rows))
	for _, r := range rows {
		children = append(children, nursery.Child(r))
	}
	return children, nil
}

func (stx *slideTx) Staff(ctx context.Context) ([]nursery.Staff, error) {
	var rows []staffRow
	if err := sqlx.SelectContext(ctx, stx.tx, &rows, selectStaffQuery, stx.nurseryID); err != nil {
		return nil, errors.Wrap(err, "selecting staff")
	}
	staff := make([]nursery.Staff, 0, len(rows))
	for _, r := range rows {
		staff = append(staff, nursery.Staff(r))
	}
	return staff, nil
}

func (stx *slideTx) ChildAssignments(ctx context.Context, year int) ([]assignment.ChildAssignment, error) {
	return selectChildAssignments(ctx, stx.tx, stx.nurseryID, year)
}

func (stx *slideTx) StaffAssignments(ctx context.Context, year int) ([]assignment.StaffAssignment, error) {
	return selectStaffAssignments(ctx, stx.tx, stx.nurseryID, year)
}

func (stx *slideTx) InsertLog(ctx context.Context, res yearslide.Result) error {
	_, err := stx.tx.NamedExecContext(ctx, insertLogQuery, newLogRow(res))
	return errors.Wrap(err, "inserting year slide log")
}
