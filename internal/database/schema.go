package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
)

// Migrations returns the schema statements in apply order. Every statement is idempotent.
//
// The unique constraints on limit_counters(user_id, limit_type, period),
// monthly_rankings(month, rank) and notifications(user_id, type, period_key)
// are what make concurrent awards and ranking replays safe.
func Migrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS users (
			id         BIGSERIAL PRIMARY KEY,
			email      TEXT NOT NULL UNIQUE,
			name       TEXT NOT NULL DEFAULT '',
			is_admin   BOOLEAN NOT NULL DEFAULT FALSE,
			points     BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS ledger_entries (
			id            BIGSERIAL PRIMARY KEY,
			user_id       BIGINT NOT NULL REFERENCES users(id),
			delta         BIGINT NOT NULL,
			balance_after BIGINT NOT NULL,
			reason        TEXT NOT NULL,
			note          TEXT,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_entries_user ON ledger_entries(user_id, created_at DESC)`,

		`CREATE TABLE IF NOT EXISTS limit_counters (
			user_id    BIGINT NOT NULL REFERENCES users(id),
			limit_type TEXT NOT NULL,
			period     TIMESTAMPTZ NOT NULL,
			count      INTEGER NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT uq_limit_counters UNIQUE (user_id, limit_type, period)
		)`,

		`CREATE TABLE IF NOT EXISTS rewards (
			id              BIGSERIAL PRIMARY KEY,
			name            TEXT NOT NULL,
			category        TEXT NOT NULL DEFAULT 'point_reward',
			points_required BIGINT NOT NULL DEFAULT 0,
			life_required   BIGINT NOT NULL DEFAULT 0,
			max_per_user    INTEGER,
			rank_required   INTEGER,
			rank_month      TIMESTAMPTZ,
			is_active       BOOLEAN NOT NULL DEFAULT TRUE
		)`,

		`CREATE TABLE IF NOT EXISTS redemption_requests (
			id               BIGSERIAL PRIMARY KEY,
			user_id          BIGINT NOT NULL REFERENCES users(id),
			reward_id        BIGINT NOT NULL REFERENCES rewards(id),
			points_used      BIGINT NOT NULL,
			status           TEXT NOT NULL DEFAULT 'PENDING',
			receiver_name    TEXT NOT NULL DEFAULT '',
			receiver_phone   TEXT NOT NULL DEFAULT '',
			receiver_address TEXT NOT NULL DEFAULT '',
			rejection_reason TEXT,
			processed_by     BIGINT,
			processed_at     TIMESTAMPTZ,
			created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_redemption_requests_user_reward ON redemption_requests(user_id, reward_id, status)`,

		`CREATE TABLE IF NOT EXISTS posts (
			id         BIGSERIAL PRIMARY KEY,
			user_id    BIGINT NOT NULL REFERENCES users(id),
			like_count INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_posts_created ON posts(created_at)`,

		`CREATE TABLE IF NOT EXISTS monthly_rankings (
			month      TIMESTAMPTZ NOT NULL,
			rank       INTEGER NOT NULL CHECK (rank > 0),
			user_id    BIGINT NOT NULL REFERENCES users(id),
			post_id    BIGINT NOT NULL REFERENCES posts(id),
			like_count INTEGER NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT uq_monthly_rankings UNIQUE (month, rank)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_monthly_rankings_user ON monthly_rankings(user_id)`,

		`CREATE TABLE IF NOT EXISTS notifications (
			id         BIGSERIAL PRIMARY KEY,
			user_id    BIGINT NOT NULL REFERENCES users(id),
			type       TEXT NOT NULL,
			period_key TEXT NOT NULL,
			metadata   JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT uq_notifications_period UNIQUE (user_id, type, period_key)
		)`,
	}
}

// Migrate applies the schema inside a single transaction.
func Migrate(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	defer tx.Rollback()

	for i, stmt := range Migrations() {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d failed: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration: %w", err)
	}

	log.Printf("[DATABASE] Schema up to date (%d statements)", len(Migrations()))
	return nil
}
