package services

import (
	"context"
	"database/sql/driver"
	"errors"
	"log"

	"github.com/lib/pq"
	"github.com/rewardloop/backend/internal/metrics"
)

// Postgres error codes that mean "try the transaction again".
var retryableCodes = map[pq.ErrorCode]bool{
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"55P03": true, // lock_not_available, database.lock_timeout expired on a row lock
	"23505": true, // unique_violation, a concurrent insert of the same counter or ranking
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return retryableCodes[pqErr.Code]
	}
	return false
}

// withRetry runs fn and retries it once when it fails with a retryable database error.
// Business errors pass through untouched; anything else surfaces as *PersistenceError.
func withRetry(ctx context.Context, op string, fn func() error) error {
	err := fn()
	if err != nil && isRetryable(err) && ctx.Err() == nil {
		metrics.PersistenceRetries.WithLabelValues(op).Inc()
		log.Printf("[RETRY] %s hit a retryable error, retrying once: %v", op, err)
		err = fn()
	}
	if err == nil || isDomainError(err) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}
