package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"creatoros-backend/internal/domain"
	"creatoros-backend/internal/repository"
)

// Store keeps organizations and their ledgers in memory. A single mutex guards
// everything, so AppendEntryAndUpdateBalance is trivially atomic.
type Store struct {
	mu      sync.RWMutex
	orgs    map[string]*domain.Organization
	entries map[string][]domain.LedgerEntry // org id -> entries in append order
	byKey   map[string]map[string]int       // org id -> idempotency key -> index in entries
	seq     int64
}

func NewStore() *Store {
	return &Store{
		orgs:    make(map[string]*domain.Organization),
		entries: make(map[string][]domain.LedgerEntry),
		byKey:   make(map[string]map[string]int),
	}
}

func (s *Store) Create(ctx context.Context, org *domain.Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.orgs[org.ID]; exists {
		return fmt.Errorf("organization %s already exists: %w", org.ID, domain.ErrInvalidInput)
	}
	now := time.Now().UTC()
	org.CreditBalance = 0
	org.CreatedAt = now
	org.UpdatedAt = now

	stored := *org
	s.orgs[org.ID] = &stored
	return nil
}

func (s *Store) GetByID(ctx context.Context, id string) (*domain.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	org, ok := s.orgs[id]
	if !ok {
		return nil, fmt.Errorf("organization %s: %w", id, domain.ErrNotFound)
	}
	out := *org
	return &out, nil
}

func (s *Store) List(ctx context.Context) ([]domain.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orgs := make([]domain.Organization, 0, len(s.orgs))
	for _, o := range s.orgs {
		orgs = append(orgs, *o)
	}
	sort.Slice(orgs, func(i, j int) bool {
		if orgs[i].CreatedAt.Equal(orgs[j].CreatedAt) {
			return orgs[i].ID < orgs[j].ID
		}
		return orgs[i].CreatedAt.Before(orgs[j].CreatedAt)
	})
	return orgs, nil
}

func (s *Store) ReadBalance(ctx context.Context, id string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	org, ok := s.orgs[id]
	if !ok {
		return 0, fmt.Errorf("organization %s: %w", id, domain.ErrNotFound)
	}
	return org.CreditBalance, nil
}

func (s *Store) AppendEntryAndUpdateBalance(ctx context.Context, entry *domain.LedgerEntry, expectedBalance int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	org, ok := s.orgs[entry.OrgID]
	if !ok {
		return fmt.Errorf("organization %s: %w", entry.OrgID, domain.ErrNotFound)
	}
	if org.CreditBalance != expectedBalance {
		return fmt.Errorf("balance of organization %s changed since read: %w", entry.OrgID, domain.ErrConcurrencyConflict)
	}
	if entry.IdempotencyKey != nil {
		if _, dup := s.byKey[entry.OrgID][*entry.IdempotencyKey]; dup {
			return fmt.Errorf("key %q: %w", *entry.IdempotencyKey, domain.ErrDuplicateIdempotencyKey)
		}
	}

	s.seq++
	entry.Seq = s.seq

	stored := *entry
	stored.Metadata = entry.Metadata.Clone()
	s.entries[entry.OrgID] = append(s.entries[entry.OrgID], stored)
	if entry.IdempotencyKey != nil {
		keys, ok := s.byKey[entry.OrgID]
		if !ok {
			keys = make(map[string]int)
			s.byKey[entry.OrgID] = keys
		}
		keys[*entry.IdempotencyKey] = len(s.entries[entry.OrgID]) - 1
	}

	org.CreditBalance = entry.BalanceAfter
	org.UpdatedAt = entry.CreatedAt
	return nil
}

func (s *Store) GetEntry(ctx context.Context, orgID, entryID string) (*domain.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.entries[orgID] {
		if e.ID == entryID {
			out := e
			return &out, nil
		}
	}
	return nil, fmt.Errorf("ledger entry %s: %w", entryID, domain.ErrNotFound)
}

func (s *Store) FindByIdempotencyKey(ctx context.Context, orgID, key string) (*domain.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, ok := s.byKey[orgID][key]
	if !ok {
		return nil, fmt.Errorf("idempotency key %q: %w", key, domain.ErrNotFound)
	}
	out := s.entries[orgID][idx]
	return &out, nil
}

func (s *Store) QueryEntries(ctx context.Context, orgID string, filter repository.EntryFilter) ([]domain.LedgerEntry, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.entries[orgID]
	matched := make([]domain.LedgerEntry, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		e := all[i]
		if filter.Kind != "" && e.Kind != filter.Kind {
			continue
		}
		if !filter.Since.IsZero() && e.CreatedAt.Before(filter.Since) {
			continue
		}
		matched = append(matched, e)
	}

	total := int64(len(matched))
	if filter.Offset >= len(matched) {
		return []domain.LedgerEntry{}, total, nil
	}
	end := len(matched)
	if filter.Limit > 0 && filter.Offset+filter.Limit < end {
		end = filter.Offset + filter.Limit
	}
	page := make([]domain.LedgerEntry, end-filter.Offset)
	copy(page, matched[filter.Offset:end])
	return page, total, nil
}

func (s *Store) EntriesSince(ctx context.Context, orgID string, since time.Time) ([]domain.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.LedgerEntry
	for _, e := range s.entries[orgID] {
		if !e.CreatedAt.Before(since) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *Store) Reconcile(ctx context.Context, orgID string) (*domain.ReconcileReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	org, ok := s.orgs[orgID]
	if !ok {
		return nil, fmt.Errorf("organization %s: %w", orgID, domain.ErrNotFound)
	}

	report := &domain.ReconcileReport{OrgID: orgID, CachedBalance: org.CreditBalance}
	var prev int64
	for _, e := range s.entries[orgID] {
		report.LedgerSum += e.Amount
		report.Entries++
		if e.BalanceAfter != prev+e.Amount {
			report.ChainBreaks++
		}
		prev = e.BalanceAfter
	}
	report.LastBalanceAfter = prev
	return report, nil
}

var (
	_ repository.OrganizationRepository = (*Store)(nil)
	_ repository.LedgerRepository       = (*Store)(nil)
)
