package models

import (
	"time"
)

// LedgerEntry is an immutable record of a single balance change.
type LedgerEntry struct {
	ID           int64     `json:"id" db:"id"`
	UserID       int64     `json:"userId" db:"user_id"`
	Delta        int64     `json:"delta" db:"delta"`
	BalanceAfter int64     `json:"balanceAfter" db:"balance_after"`
	Reason       string    `json:"reason" db:"reason"`
	Note         *string   `json:"note,omitempty" db:"note"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
}

// LimitCounter tallies awards per (user, limit type, period). Unique on all three.
type LimitCounter struct {
	UserID    int64     `json:"userId" db:"user_id"`
	LimitType string    `json:"limitType" db:"limit_type"`
	Period    time.Time `json:"period" db:"period"`
	Count     int       `json:"count" db:"count"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}
