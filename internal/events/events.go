package events

import (
	"context"
	"time"

	"creatoros-backend/internal/domain"
)

const TopicLedgerEntries = "ledger.entries"

// Publisher delivers domain events to a broker. Implementations must be safe for
// concurrent use.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, event any) error
	Close() error
}

// LedgerEntryCreated is emitted after a ledger entry has been committed.
type LedgerEntryCreated struct {
	EntryID      string                 `json:"entry_id"`
	OrgID        string                 `json:"org_id"`
	Kind         domain.TransactionKind `json:"kind"`
	Amount       int64                  `json:"amount"`
	BalanceAfter int64                  `json:"balance_after"`
	Description  string                 `json:"description"`
	JobID        *string                `json:"job_id,omitempty"`
	OccurredAt   time.Time              `json:"occurred_at"`
}

func NewLedgerEntryCreated(e *domain.LedgerEntry) LedgerEntryCreated {
	return LedgerEntryCreated{
		EntryID:      e.ID,
		OrgID:        e.OrgID,
		Kind:         e.Kind,
		Amount:       e.Amount,
		BalanceAfter: e.BalanceAfter,
		Description:  e.Description,
		JobID:        e.JobID,
		OccurredAt:   e.CreatedAt,
	}
}

// NoopPublisher drops every event. Used when no broker is configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(ctx context.Context, topic, key string, event any) error { return nil }
func (NoopPublisher) Close() error { return nil }
