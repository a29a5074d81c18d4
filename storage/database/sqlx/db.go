package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/kodomo/core"
)

const uniqueViolation = "23505"

// queryer is satisfied by both *sqlx.DB and *sqlx.Tx.
type queryer interface {
	sqlx.QueryerContext
	sqlx.ExecerContext
}

// withTx runs fn in a transaction, rolled back when fn fails or panics.
func withTx(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err = fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Wrapf(err, "rolling back (%v)", rbErr)
		}
		return err
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}

// translateErr turns the unique violations guarding the academic year flags into Conflict errors.
func translateErr(err error) error {
	pqErr, ok := errors.Cause(err).(*pq.Error)
	if !ok || pqErr.Code != uniqueViolation {
		return err
	}
	switch pqErr.Constraint {
	case "academic_years_pkey":
		return core.NewStateError(core.CodeConflict, "academic year already exists")
	case "academic_years_one_current_idx":
		return core.NewStateError(core.CodeConflict, "another academic year is already the current year")
	case "academic_years_one_future_idx":
		return core.NewStateError(core.CodeConflict, "a future academic year is already registered")
	}
	return core.NewStateError(core.CodeConflict, "%s", pqErr.Message)
}
