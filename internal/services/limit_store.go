package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rewardloop/backend/internal/config"
	"github.com/rewardloop/backend/internal/models"
)

// LimitCounterStore keeps per (user, limit type, period) award counts.
type LimitCounterStore struct {
	db *sql.DB
}

func NewLimitCounterStore(db *sql.DB) *LimitCounterStore {
	return &LimitCounterStore{db: db}
}

// LockTx creates the counter row if needed and locks it for the rest of tx, returning
// the current count. The unique key makes concurrent creators converge on one row.
func (s *LimitCounterStore) LockTx(ctx context.Context, tx *sql.Tx, userID int64, limitType config.LimitType, period time.Time) (int, error) {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO limit_counters (user_id, limit_type, period, count, updated_at)
		VALUES ($1, $2, $3, 0, $4)
		ON CONFLICT (user_id, limit_type, period) DO NOTHING`,
		userID, string(limitType), period, time.Now()); err != nil {
		return 0, fmt.Errorf("failed to create limit counter: %w", err)
	}

	var count int
	err := tx.QueryRowContext(ctx, `
		SELECT count
		FROM limit_counters
		WHERE user_id = $1 AND limit_type = $2 AND period = $3
		FOR UPDATE`,
		userID, string(limitType), period).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to lock limit counter: %w", err)
	}
	return count, nil
}

// IncrementTx adds by to a counter locked by LockTx. Counters never go down.
func (s *LimitCounterStore) IncrementTx(ctx context.Context, tx *sql.Tx, userID int64, limitType config.LimitType, period time.Time, by int) error {
	if by <= 0 {
		return fmt.Errorf("limit counter increment must be positive, got %d", by)
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE limit_counters
		SET count = count + $1, updated_at = $2
		WHERE user_id = $3 AND limit_type = $4 AND period = $5`,
		by, time.Now(), userID, string(limitType), period)
	if err != nil {
		return fmt.Errorf("failed to increment limit counter: %w", err)
	}

	if n, err := result.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return fmt.Errorf("limit counter %s/%d missing for increment", limitType, userID)
	}
	return nil
}

// Get reads a counter without locking; a missing row counts as zero.
func (s *LimitCounterStore) Get(ctx context.Context, userID int64, limitType config.LimitType, period time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT count
		FROM limit_counters
		WHERE user_id = $1 AND limit_type = $2 AND period = $3`,
		userID, string(limitType), period).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return count, nil
}

// ListForUser returns every counter row of a user across all periods, newest period first.
func (s *LimitCounterStore) ListForUser(ctx context.Context, userID int64) ([]models.LimitCounter, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, limit_type, period, count, updated_at
		FROM limit_counters
		WHERE user_id = $1
		ORDER BY period DESC, limit_type ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counters []models.LimitCounter
	for rows.Next() {
		var c models.LimitCounter
		if err := rows.Scan(&c.UserID, &c.LimitType, &c.Period, &c.Count, &c.UpdatedAt); err != nil {
			return nil, err
		}
		counters = append(counters, c)
	}
	return counters, rows.Err()
}
