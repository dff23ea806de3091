package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound               = errors.New("not found")
	ErrInvalidInput           = errors.New("invalid input")
	ErrForbidden              = errors.New("forbidden")
	ErrInsufficientCredits    = errors.New("insufficient credits")
	ErrConcurrencyConflict    = errors.New("concurrent balance update conflict")
	ErrPersistenceUnavailable = errors.New("persistence unavailable")

	// ErrDuplicateIdempotencyKey is returned by stores when an entry with the same
	// idempotency key already exists for the organization.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")
)

// InsufficientCreditsError is a recoverable, caller-facing condition.
type InsufficientCreditsError struct {
	Balance   int64
	Required  int64
	Shortfall int64
}

func NewInsufficientCreditsError(balance, required int64) *InsufficientCreditsError {
	return &InsufficientCreditsError{
		Balance:   balance,
		Required:  required,
		Shortfall: required - balance,
	}
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits: balance %d, required %d, shortfall %d", e.Balance, e.Required, e.Shortfall)
}

func (e *InsufficientCreditsError) Is(target error) bool {
	return target == ErrInsufficientCredits
}

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// OpError carries the operation and organization a persistence failure happened in.
type OpError struct {
	Op    string
	OrgID string
	Err   error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s org %s: %v", e.Op, e.OrgID, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether the operation may be re-run from the read step.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}
