package services

import (
	"errors"
	"fmt"

	"github.com/rewardloop/backend/internal/config"
)

var (
	ErrLimitExceeded       = errors.New("limit exceeded")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrNotFound            = errors.New("not found")
	ErrUnavailable         = errors.New("unavailable")
	ErrValidation          = errors.New("validation failed")
	ErrForbidden           = errors.New("forbidden")
)

// PersistenceError wraps a transaction or I/O failure that survived the retry.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: persistence failure: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// isDomainError reports whether err is part of the business taxonomy rather than a storage failure.
func isDomainError(err error) bool {
	var cfgErr *config.ConfigurationError
	var perr *PersistenceError
	switch {
	case errors.Is(err, ErrLimitExceeded),
		errors.Is(err, ErrInsufficientBalance),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrUnavailable),
		errors.Is(err, ErrValidation),
		errors.Is(err, ErrForbidden),
		errors.As(err, &cfgErr),
		errors.As(err, &perr):
		return true
	}
	return false
}
