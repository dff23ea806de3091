package postgres

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"net"
	"testing"

	"creatoros-backend/internal/domain"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestClassifyError(t *testing.T) {
	plain := errors.New("syntax error")

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"NoRows", sql.ErrNoRows, domain.ErrNotFound},
		{"BadConn", driver.ErrBadConn, domain.ErrPersistenceUnavailable},
		{"ConnDone", sql.ErrConnDone, domain.ErrPersistenceUnavailable},
		{"IdempotencyIndex", &pq.Error{Code: "23505", Constraint: idempotencyIndex}, domain.ErrDuplicateIdempotencyKey},
		{"Serialization", &pq.Error{Code: "40001"}, domain.ErrConcurrencyConflict},
		{"Deadlock", &pq.Error{Code: "40P01"}, domain.ErrConcurrencyConflict},
		{"ConnectionClass", &pq.Error{Code: "08003"}, domain.ErrPersistenceUnavailable},
		{"InvalidTextRepresentation", &pq.Error{Code: "22P02"}, domain.ErrInvalidInput},
		{"NumericOutOfRange", &pq.Error{Code: "22003"}, domain.ErrInvalidInput},
		{"Network", &net.OpError{Op: "dial", Err: errors.New("connection refused")}, domain.ErrPersistenceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, errors.Is(classifyError(tt.err), tt.want))
		})
	}

	t.Run("OtherUniqueViolationPassesThrough", func(t *testing.T) {
		err := classifyError(&pq.Error{Code: "23505", Constraint: "organizations_pkey"})
		assert.False(t, errors.Is(err, domain.ErrDuplicateIdempotencyKey))
	})

	t.Run("UnknownPassesThrough", func(t *testing.T) {
		assert.Equal(t, plain, classifyError(plain))
		assert.Nil(t, classifyError(nil))
	})
}
