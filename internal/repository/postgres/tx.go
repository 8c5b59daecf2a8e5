package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

func withTx(ctx context.Context, db *sqlx.DB, fn func(*sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("tx begin: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("tx rollback: %v (original err: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("tx commit: %w", err)
	}
	return nil
}

// seedIfEmpty runs insert only when table has no rows. The table stays locked against
// concurrent writers until the transaction ends, so two instances starting together
// seed it once. table must be a trusted identifier.
func seedIfEmpty(ctx context.Context, db *sqlx.DB, table string, insert func(*sqlx.Tx) (int, error)) (int, error) {
	written := 0
	err := withTx(ctx, db, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `LOCK TABLE `+table+` IN SHARE ROW EXCLUSIVE MODE`); err != nil {
			return fmt.Errorf("lock %s: %w", table, err)
		}
		var n int
		if err := tx.GetContext(ctx, &n, `SELECT COUNT(*) FROM `+table); err != nil {
			return fmt.Errorf("count %s: %w", table, err)
		}
		if n > 0 {
			return nil
		}
		var err error
		written, err = insert(tx)
		return err
	})
	if err != nil {
		return 0, err
	}
	return written, nil
}
