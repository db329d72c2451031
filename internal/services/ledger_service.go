package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rewardloop/backend/internal/models"
)

// PointsLedger appends ledger entries and moves the balance in the same transaction.
type PointsLedger struct {
	db *sql.DB
}

func NewPointsLedger(db *sql.DB) *PointsLedger {
	return &PointsLedger{db: db}
}

// LockUserTx locks the user row for the rest of tx. Every balance mutation goes through
// this lock first, so all point operations for one user are serialised.
func (l *PointsLedger) LockUserTx(ctx context.Context, tx *sql.Tx, userID int64) (*models.User, error) {
	var user models.User
	err := tx.QueryRowContext(ctx, `
		SELECT id, points, updated_at
		FROM users
		WHERE id = $1
		FOR UPDATE`, userID).Scan(&user.ID, &user.Points, &user.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %d: %w", userID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// AppendTx records delta for a user locked by LockUserTx and applies it to the balance.
// A debit that would take the balance below zero fails with ErrInsufficientBalance.
func (l *PointsLedger) AppendTx(ctx context.Context, tx *sql.Tx, user *models.User, delta int64, reason string, note *string) (*models.LedgerEntry, error) {
	newBalance := user.Points + delta
	if newBalance < 0 {
		return nil, ErrInsufficientBalance
	}

	entry, err := l.createLedgerEntry(ctx, tx, user.ID, delta, newBalance, reason, note)
	if err != nil {
		return nil, err
	}

	if err := l.updateUserBalance(ctx, tx, user.ID, delta); err != nil {
		return nil, err
	}

	user.Points = newBalance
	return entry, nil
}

func (l *PointsLedger) createLedgerEntry(ctx context.Context, tx *sql.Tx, userID, delta, balance int64, reason string, note *string) (*models.LedgerEntry, error) {
	entry := &models.LedgerEntry{
		UserID:       userID,
		Delta:        delta,
		BalanceAfter: balance,
		Reason:       reason,
		Note:         note,
	}
	err := tx.QueryRowContext(ctx, `
		INSERT INTO ledger_entries (user_id, delta, balance_after, reason, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`,
		userID, delta, balance, reason, note, time.Now()).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to append ledger entry: %w", err)
	}
	return entry, nil
}

func (l *PointsLedger) updateUserBalance(ctx context.Context, tx *sql.Tx, userID, delta int64) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE users
		SET points = points + $1, updated_at = $2
		WHERE id = $3`,
		delta, time.Now(), userID)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return fmt.Errorf("balance update matched no row for user %d", userID)
	}
	return nil
}

// History returns the newest entries first.
func (l *PointsLedger) History(ctx context.Context, userID int64, limit int) ([]models.LedgerEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT id, user_id, delta, balance_after, reason, note, created_at
		FROM ledger_entries
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []models.LedgerEntry{}
	for rows.Next() {
		var e models.LedgerEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Delta, &e.BalanceAfter, &e.Reason, &e.Note, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Reconciliation compares a balance with the sum of its ledger.
type Reconciliation struct {
	UserID    int64 `json:"userId"`
	Balance   int64 `json:"balance"`
	LedgerSum int64 `json:"ledgerSum"`
}

func (r Reconciliation) Consistent() bool {
	return r.Balance == r.LedgerSum
}

// Reconcile reads the balance and the ledger sum in one snapshot.
func (l *PointsLedger) Reconcile(ctx context.Context, userID int64) (*Reconciliation, error) {
	rec := Reconciliation{UserID: userID}
	err := l.db.QueryRowContext(ctx, `
		SELECT u.points, COALESCE((SELECT SUM(delta) FROM ledger_entries WHERE user_id = u.id), 0)
		FROM users u
		WHERE u.id = $1`, userID).Scan(&rec.Balance, &rec.LedgerSum)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %d: %w", userID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
