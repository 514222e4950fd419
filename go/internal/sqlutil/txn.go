package sqlutil

import (
	"context"
	"database/sql"
	"fmt"
)

// Run executes fn inside a *sql.Tx bound to a fresh Queries value.
// If fn returns an error the tx rolls back, else it commits.
func Run[T any](
	ctx context.Context,
	db *sql.DB,
	newQueries func(*sql.Tx) *T,
	fn func(q *T) error,
) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	q := newQueries(tx)
	if err := fn(q); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
