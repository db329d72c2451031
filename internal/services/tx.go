package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const defaultTxTimeout = 10 * time.Second

// withTx runs fn inside one transaction bounded by timeout. Any error from fn, a
// cancelled context or a failed commit rolls everything back.
func withTx(ctx context.Context, db *sql.DB, timeout time.Duration, fn func(ctx context.Context, tx *sql.Tx) error) error {
	if timeout <= 0 {
		timeout = defaultTxTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(ctx, tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
