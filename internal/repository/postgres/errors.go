package postgres

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"creatoros-backend/internal/domain"

	"github.com/lib/pq"
)

const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	classConnectionException = "08"
	classDataException       = "22"

	idempotencyIndex = "ledger_entries_org_idempotency_key"
)

// classifyError maps driver errors onto the domain taxonomy while keeping the
// original error in the chain.
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %v", domain.ErrNotFound, err)
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("%w: %v", domain.ErrPersistenceUnavailable, err)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code == codeUniqueViolation && pqErr.Constraint == idempotencyIndex:
			return fmt.Errorf("%w: %v", domain.ErrDuplicateIdempotencyKey, err)
		case pqErr.Code == codeSerializationFailure, pqErr.Code == codeDeadlockDetected:
			return fmt.Errorf("%w: %v", domain.ErrConcurrencyConflict, err)
		case pqErr.Code.Class() == classConnectionException:
			return fmt.Errorf("%w: %v", domain.ErrPersistenceUnavailable, err)
		case pqErr.Code.Class() == classDataException:
			// Malformed identifiers and out of range values come from the caller.
			return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
		}
		return err
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %v", domain.ErrPersistenceUnavailable, err)
	}
	return err
}
