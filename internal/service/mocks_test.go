package service_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"creatoros-backend/internal/domain"
	"creatoros-backend/internal/repository"

	"github.com/stretchr/testify/mock"
)

// MockOrgRepo
type MockOrgRepo struct {
	mock.Mock
}

func (m *MockOrgRepo) Create(ctx context.Context, org *domain.Organization) error {
	args := m.Called(ctx, org)
	return args.Error(0)
}
func (m *MockOrgRepo) GetByID(ctx context.Context, id string) (*domain.Organization, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Organization), args.Error(1)
}
func (m *MockOrgRepo) List(ctx context.Context) ([]domain.Organization, error) {
	args := m.Called(ctx)
	return args.Get(0).([]domain.Organization), args.Error(1)
}
func (m *MockOrgRepo) ReadBalance(ctx context.Context, id string) (int64, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(int64), args.Error(1)
}

// MockLedgerRepo
type MockLedgerRepo struct {
	mock.Mock
}

func (m *MockLedgerRepo) AppendEntryAndUpdateBalance(ctx context.Context, entry *domain.LedgerEntry, expectedBalance int64) error {
	args := m.Called(ctx, entry, expectedBalance)
	return args.Error(0)
}
func (m *MockLedgerRepo) GetEntry(ctx context.Context, orgID, entryID string) (*domain.LedgerEntry, error) {
	args := m.Called(ctx, orgID, entryID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.LedgerEntry), args.Error(1)
}
func (m *MockLedgerRepo) FindByIdempotencyKey(ctx context.Context, orgID, key string) (*domain.LedgerEntry, error) {
	args := m.Called(ctx, orgID, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.LedgerEntry), args.Error(1)
}
func (m *MockLedgerRepo) QueryEntries(ctx context.Context, orgID string, filter repository.EntryFilter) ([]domain.LedgerEntry, int64, error) {
	args := m.Called(ctx, orgID, filter)
	return args.Get(0).([]domain.LedgerEntry), args.Get(1).(int64), args.Error(2)
}
func (m *MockLedgerRepo) EntriesSince(ctx context.Context, orgID string, since time.Time) ([]domain.LedgerEntry, error) {
	args := m.Called(ctx, orgID, since)
	return args.Get(0).([]domain.LedgerEntry), args.Error(1)
}
func (m *MockLedgerRepo) Reconcile(ctx context.Context, orgID string) (*domain.ReconcileReport, error) {
	args := m.Called(ctx, orgID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ReconcileReport), args.Error(1)
}

type publishedEvent struct {
	topic string
	key   string
	event any
}

// recordingPublisher keeps every published event and optionally fails.
type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	fail   bool
}

func (p *recordingPublisher) Publish(ctx context.Context, topic, key string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("broker unavailable")
	}
	p.events = append(p.events, publishedEvent{topic: topic, key: key, event: event})
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) published() []publishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]publishedEvent(nil), p.events...)
}

// blockingPublisher holds every publish until its context ends, like a broker
// that never acknowledges.
type blockingPublisher struct {
	mu          sync.Mutex
	errs        []error
	hadDeadline []bool
	onPublish   func()
}

func (p *blockingPublisher) Publish(ctx context.Context, topic, key string, event any) error {
	if p.onPublish != nil {
		p.onPublish()
	}
	_, hasDeadline := ctx.Deadline()
	<-ctx.Done()

	p.mu.Lock()
	defer p.mu.Unlock()
	p.errs = append(p.errs, ctx.Err())
	p.hadDeadline = append(p.hadDeadline, hasDeadline)
	return ctx.Err()
}

func (p *blockingPublisher) Close() error { return nil }

func (p *blockingPublisher) results() ([]error, []bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]error(nil), p.errs...), append([]bool(nil), p.hadDeadline...)
}
