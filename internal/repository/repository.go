package repository

import (
	"context"
	"time"

	"creatoros-backend/internal/domain"
)

type OrganizationRepository interface {
	// Create inserts the organization with a zero balance. Credits are added via the ledger.
	Create(ctx context.Context, org *domain.Organization) error
	GetByID(ctx context.Context, id string) (*domain.Organization, error)
	List(ctx context.Context) ([]domain.Organization, error)
	ReadBalance(ctx context.Context, id string) (int64, error)
}

// EntryFilter selects ledger entries for one organization.
type EntryFilter struct {
	Kind   domain.TransactionKind
	Since  time.Time
	Limit  int
	Offset int
}

type LedgerRepository interface {
	// AppendEntryAndUpdateBalance inserts entry and sets the organization's cached
	// balance to entry.BalanceAfter as one atomic unit, provided the stored balance
	// still equals expectedBalance. It returns domain.ErrConcurrencyConflict otherwise
	// and domain.ErrDuplicateIdempotencyKey when the key is already used. Nothing is
	// written on any error.
	AppendEntryAndUpdateBalance(ctx context.Context, entry *domain.LedgerEntry, expectedBalance int64) error
	GetEntry(ctx context.Context, orgID, entryID string) (*domain.LedgerEntry, error)
	FindByIdempotencyKey(ctx context.Context, orgID, key string) (*domain.LedgerEntry, error)
	// QueryEntries returns entries newest first together with the total matching count.
	QueryEntries(ctx context.Context, orgID string, filter EntryFilter) ([]domain.LedgerEntry, int64, error)
	EntriesSince(ctx context.Context, orgID string, since time.Time) ([]domain.LedgerEntry, error)
	Reconcile(ctx context.Context, orgID string) (*domain.ReconcileReport, error)
}
