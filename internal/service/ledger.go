package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"creatoros-backend/internal/domain"
	"creatoros-backend/internal/events"
	"creatoros-backend/internal/logger"
	"creatoros-backend/internal/metrics"
	"creatoros-backend/internal/repository"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

const (
	maxDescriptionLength    = 256
	maxIdempotencyKeyLength = 128
	defaultUsageWindowDays  = 30
	maxUsageWindowDays      = 365

	scopeRefund = "refund"
	scopeSignup = "signup"
)

// reservedKeyScopes prefix the idempotency keys the service derives itself.
// Client supplied keys may not start with them.
var reservedKeyScopes = []string{scopeRefund, scopeSignup}

type LedgerOptions struct {
	MaxAttempts          int
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
	HistoryDefaultLimit  int
	HistoryMaxLimit      int
	EventsTopic          string
	PublishTimeout       time.Duration
	Now                  func() time.Time
}

func DefaultLedgerOptions() LedgerOptions {
	return LedgerOptions{
		MaxAttempts:          3,
		RetryInitialInterval: 10 * time.Millisecond,
		RetryMaxInterval:     100 * time.Millisecond,
		HistoryDefaultLimit:  20,
		HistoryMaxLimit:      100,
		EventsTopic:          events.TopicLedgerEntries,
		PublishTimeout:       time.Second,
		Now:                  func() time.Time { return time.Now().UTC() },
	}
}

type ledgerService struct {
	orgRepo    repository.OrganizationRepository
	ledgerRepo repository.LedgerRepository
	publisher  events.Publisher
	locks      *KeyedMutex
	opts       LedgerOptions
}

func NewLedgerService(orgRepo repository.OrganizationRepository, ledgerRepo repository.LedgerRepository, publisher events.Publisher, opts LedgerOptions) LedgerService {
	defaults := DefaultLedgerOptions()
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaults.MaxAttempts
	}
	if opts.RetryInitialInterval <= 0 {
		opts.RetryInitialInterval = defaults.RetryInitialInterval
	}
	if opts.RetryMaxInterval <= 0 {
		opts.RetryMaxInterval = defaults.RetryMaxInterval
	}
	if opts.HistoryDefaultLimit <= 0 {
		opts.HistoryDefaultLimit = defaults.HistoryDefaultLimit
	}
	if opts.HistoryMaxLimit <= 0 {
		opts.HistoryMaxLimit = defaults.HistoryMaxLimit
	}
	if opts.EventsTopic == "" {
		opts.EventsTopic = defaults.EventsTopic
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = defaults.PublishTimeout
	}
	if opts.Now == nil {
		opts.Now = defaults.Now
	}
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &ledgerService{
		orgRepo:    orgRepo,
		ledgerRepo: ledgerRepo,
		publisher:  publisher,
		locks:      NewKeyedMutex(),
		opts:       opts,
	}
}

// mutation is one balance-affecting write. A negative amount must be covered
// by the current balance.
type mutation struct {
	op             string
	orgID          string
	kind           domain.TransactionKind
	amount         int64
	description    string
	jobID          *string
	metadata       domain.Metadata
	idempotencyKey string
}

func (s *ledgerService) GetBalance(ctx context.Context, orgID string) (*domain.Balance, error) {
	org, err := s.orgRepo.GetByID(ctx, orgID)
	if err != nil {
		return nil, &domain.OpError{Op: "get_balance", OrgID: orgID, Err: err}
	}
	return &domain.Balance{
		OrgID:    org.ID,
		Credits:  org.CreditBalance,
		PlanTier: org.PlanTier,
	}, nil
}

func (s *ledgerService) Consume(ctx context.Context, orgID string, req ConsumeRequest) (*domain.LedgerResult, error) {
	if err := validateAmount(req.Amount); err != nil {
		return nil, err
	}
	if err := validateCommon(req.Description, req.Metadata, req.IdempotencyKey); err != nil {
		return nil, err
	}
	if req.JobID != nil && strings.TrimSpace(*req.JobID) == "" {
		return nil, domain.NewValidationError("job_id", "must not be blank")
	}

	return s.apply(ctx, mutation{
		op:             "consume",
		orgID:          orgID,
		kind:           domain.TransactionKindConsumption,
		amount:         -req.Amount,
		description:    strings.TrimSpace(req.Description),
		jobID:          req.JobID,
		metadata:       req.Metadata,
		idempotencyKey: req.IdempotencyKey,
	})
}

func (s *ledgerService) Grant(ctx context.Context, orgID string, req GrantRequest) (*domain.LedgerResult, error) {
	return s.credit(ctx, "grant", domain.TransactionKindGrant, orgID, req)
}

func (s *ledgerService) Purchase(ctx context.Context, orgID string, req GrantRequest) (*domain.LedgerResult, error) {
	return s.credit(ctx, "purchase", domain.TransactionKindPurchase, orgID, req)
}

// GrantSignup credits an organization's plan grant. The derived key makes it
// safe to re-run after a partial signup.
func (s *ledgerService) GrantSignup(ctx context.Context, orgID string, tier domain.PlanTier, amount int64) (*domain.LedgerResult, error) {
	if err := validateAmount(amount); err != nil {
		return nil, err
	}
	return s.apply(ctx, mutation{
		op:             "signup_grant",
		orgID:          orgID,
		kind:           domain.TransactionKindGrant,
		amount:         amount,
		description:    fmt.Sprintf("signup grant (%s plan)", tier),
		metadata:       domain.Metadata{"source": "signup"},
		idempotencyKey: derivedKey(scopeSignup, orgID),
	})
}

func (s *ledgerService) credit(ctx context.Context, op string, kind domain.TransactionKind, orgID string, req GrantRequest) (*domain.LedgerResult, error) {
	if err := validateAmount(req.Amount); err != nil {
		return nil, err
	}
	if err := validateCommon(req.Description, req.Metadata, req.IdempotencyKey); err != nil {
		return nil, err
	}

	return s.apply(ctx, mutation{
		op:             op,
		orgID:          orgID,
		kind:           kind,
		amount:         req.Amount,
		description:    strings.TrimSpace(req.Description),
		metadata:       req.Metadata,
		idempotencyKey: req.IdempotencyKey,
	})
}

func (s *ledgerService) Refund(ctx context.Context, orgID string, req RefundRequest) (*domain.LedgerResult, error) {
	if strings.TrimSpace(req.EntryID) == "" {
		return nil, domain.NewValidationError("entry_id", "is required")
	}
	if req.Amount < 0 {
		return nil, domain.NewValidationError("amount", "must not be negative")
	}
	if len(req.Reason) > maxDescriptionLength {
		return nil, domain.NewValidationError("reason", fmt.Sprintf("must be at most %d characters", maxDescriptionLength))
	}

	original, err := s.ledgerRepo.GetEntry(ctx, orgID, req.EntryID)
	if err != nil {
		return nil, &domain.OpError{Op: "refund", OrgID: orgID, Err: err}
	}
	if original.Kind != domain.TransactionKindConsumption {
		return nil, domain.NewValidationError("entry_id", "only consumption entries can be refunded")
	}

	consumed := -original.Amount
	amount := req.Amount
	if amount == 0 {
		amount = consumed
	}
	if amount > consumed {
		return nil, domain.NewValidationError("amount", fmt.Sprintf("exceeds consumed amount %d", consumed))
	}

	description := "refund: " + original.Description
	if reason := strings.TrimSpace(req.Reason); reason != "" {
		description = reason
	}

	return s.apply(ctx, mutation{
		op:             "refund",
		orgID:          orgID,
		kind:           domain.TransactionKindRefund,
		amount:         amount,
		description:    description,
		jobID:          original.JobID,
		metadata:       domain.Metadata{"refund_of": original.ID},
		idempotencyKey: derivedKey(scopeRefund, original.ID),
	})
}

func (s *ledgerService) Adjust(ctx context.Context, orgID string, req AdjustRequest) (*domain.LedgerResult, error) {
	if req.Amount == 0 {
		return nil, domain.NewValidationError("amount", "must not be zero")
	}
	if err := validateCommon(req.Description, req.Metadata, req.IdempotencyKey); err != nil {
		return nil, err
	}

	return s.apply(ctx, mutation{
		op:             "adjust",
		orgID:          orgID,
		kind:           domain.TransactionKindAdjustment,
		amount:         req.Amount,
		description:    strings.TrimSpace(req.Description),
		metadata:       req.Metadata,
		idempotencyKey: req.IdempotencyKey,
	})
}

// apply runs the read-check-write sequence for m under the organization's lock,
// re-running it when the store reports a concurrent update.
func (s *ledgerService) apply(ctx context.Context, m mutation) (*domain.LedgerResult, error) {
	start := time.Now()
	log := logger.WithOrg("ledger", m.orgID)

	unlock, err := s.locks.Lock(ctx, m.orgID)
	if err != nil {
		s.finish(m.op, err, start)
		return nil, &domain.OpError{Op: m.op, OrgID: m.orgID, Err: err}
	}
	defer unlock()

	var result *domain.LedgerResult
	attempt := 0
	operation := func() error {
		attempt++
		if attempt > 1 {
			metrics.RecordConflictRetry(m.op)
			log.Warn("Retrying ledger write after concurrent update", "op", m.op, "attempt", attempt)
		}
		r, err := s.applyOnce(ctx, m)
		if err != nil {
			if domain.IsRetryable(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		result = r
		return nil
	}

	if err := backoff.Retry(operation, s.newBackOff(ctx)); err != nil {
		s.finish(m.op, err, start)
		var insufficient *domain.InsufficientCreditsError
		if errors.As(err, &insufficient) {
			log.Info("Insufficient credits", "op", m.op, "balance", insufficient.Balance, "required", insufficient.Required)
		} else if !errors.Is(err, domain.ErrInvalidInput) {
			log.Error("Ledger write failed", "op", m.op, "attempts", attempt, "error", err)
		}
		return nil, &domain.OpError{Op: m.op, OrgID: m.orgID, Err: err}
	}

	if result.Replayed {
		metrics.RecordLedgerOperation(m.op, "replayed", time.Since(start))
		log.Info("Idempotent replay", "op", m.op, "entry_id", result.Entry.ID)
		return result, nil
	}

	metrics.RecordLedgerOperation(m.op, "ok", time.Since(start))
	metrics.RecordCredits(string(m.kind), m.amount)
	logger.LedgerWrite(ctx, m.orgID, string(m.kind), result.Entry.Amount, result.Entry.BalanceAfter, "entry_id", result.Entry.ID)

	// Still under the org lock, so events of one organization are handed over in
	// ledger order. The publisher must not block for long.
	s.publish(ctx, result.Entry)
	return result, nil
}

func (s *ledgerService) applyOnce(ctx context.Context, m mutation) (*domain.LedgerResult, error) {
	if m.idempotencyKey != "" {
		existing, err := s.ledgerRepo.FindByIdempotencyKey(ctx, m.orgID, m.idempotencyKey)
		if err == nil {
			return s.replay(ctx, m, existing)
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
	}

	balance, err := s.orgRepo.ReadBalance(ctx, m.orgID)
	if err != nil {
		return nil, err
	}
	if m.amount < 0 && balance+m.amount < 0 {
		return nil, domain.NewInsufficientCreditsError(balance, -m.amount)
	}
	if m.amount > 0 && balance > math.MaxInt64-m.amount {
		return nil, domain.NewValidationError("amount", "balance would overflow")
	}

	entry := &domain.LedgerEntry{
		ID:           uuid.NewString(),
		OrgID:        m.orgID,
		Amount:       m.amount,
		BalanceAfter: balance + m.amount,
		Kind:         m.kind,
		Description:  m.description,
		JobID:        m.jobID,
		Metadata:     m.metadata.Clone(),
		CreatedAt:    s.opts.Now(),
	}
	if m.idempotencyKey != "" {
		key := m.idempotencyKey
		entry.IdempotencyKey = &key
	}

	err = s.ledgerRepo.AppendEntryAndUpdateBalance(ctx, entry, balance)
	if errors.Is(err, domain.ErrDuplicateIdempotencyKey) {
		// Lost a race with a writer in another process using the same key.
		existing, findErr := s.ledgerRepo.FindByIdempotencyKey(ctx, m.orgID, m.idempotencyKey)
		if findErr != nil {
			return nil, findErr
		}
		return s.replay(ctx, m, existing)
	}
	if err != nil {
		return nil, err
	}

	return &domain.LedgerResult{Balance: entry.BalanceAfter, Entry: entry}, nil
}

// replay returns a previously committed entry for a repeated idempotency key.
// The balance reported is the current one, not the one at commit time.
func (s *ledgerService) replay(ctx context.Context, m mutation, existing *domain.LedgerEntry) (*domain.LedgerResult, error) {
	if existing.Kind != m.kind || existing.Amount != m.amount {
		return nil, domain.NewValidationError("idempotency_key", "already used for a different request")
	}
	balance, err := s.orgRepo.ReadBalance(ctx, m.orgID)
	if err != nil {
		return nil, err
	}
	return &domain.LedgerResult{Balance: balance, Entry: existing, Replayed: true}, nil
}

func (s *ledgerService) newBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.opts.RetryInitialInterval
	b.MaxInterval = s.opts.RetryMaxInterval
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(s.opts.MaxAttempts-1)), ctx)
}

// publish delivers the event of a committed entry. The entry is already durable,
// so the caller's cancellation must not drop it.
func (s *ledgerService) publish(ctx context.Context, entry *domain.LedgerEntry) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.PublishTimeout)
	defer cancel()

	err := s.publisher.Publish(ctx, s.opts.EventsTopic, entry.OrgID, events.NewLedgerEntryCreated(entry))
	if err != nil {
		metrics.RecordEventPublishFailure()
	}
	logger.ExternalServiceResult("events", "publish", err, "org_id", entry.OrgID, "entry_id", entry.ID)
}

func (s *ledgerService) finish(op string, err error, start time.Time) {
	metrics.RecordLedgerOperation(op, resultLabel(err), time.Since(start))
}

func (s *ledgerService) History(ctx context.Context, orgID string, filter HistoryFilter) (*domain.HistoryPage, error) {
	if filter.Kind != "" && !filter.Kind.Valid() {
		return nil, domain.NewValidationError("kind", fmt.Sprintf("unknown transaction kind %q", filter.Kind))
	}
	if filter.Limit < 0 {
		return nil, domain.NewValidationError("limit", "must not be negative")
	}
	if filter.Offset < 0 {
		return nil, domain.NewValidationError("offset", "must not be negative")
	}
	limit := filter.Limit
	if limit == 0 {
		limit = s.opts.HistoryDefaultLimit
	}
	if limit > s.opts.HistoryMaxLimit {
		limit = s.opts.HistoryMaxLimit
	}

	if _, err := s.orgRepo.ReadBalance(ctx, orgID); err != nil {
		return nil, &domain.OpError{Op: "history", OrgID: orgID, Err: err}
	}

	entries, total, err := s.ledgerRepo.QueryEntries(ctx, orgID, repository.EntryFilter{
		Kind:   filter.Kind,
		Limit:  limit,
		Offset: filter.Offset,
	})
	if err != nil {
		return nil, &domain.OpError{Op: "history", OrgID: orgID, Err: err}
	}

	return &domain.HistoryPage{
		Entries: entries,
		Total:   total,
		Limit:   limit,
		Offset:  filter.Offset,
		HasMore: int64(filter.Offset+len(entries)) < total,
	}, nil
}

func (s *ledgerService) UsageSummary(ctx context.Context, orgID string, windowDays int) (*domain.UsageSummary, error) {
	if windowDays == 0 {
		windowDays = defaultUsageWindowDays
	}
	if windowDays < 1 || windowDays > maxUsageWindowDays {
		return nil, domain.NewValidationError("window_days", fmt.Sprintf("must be between 1 and %d", maxUsageWindowDays))
	}

	if _, err := s.orgRepo.ReadBalance(ctx, orgID); err != nil {
		return nil, &domain.OpError{Op: "usage_summary", OrgID: orgID, Err: err}
	}

	to := s.opts.Now()
	from := to.AddDate(0, 0, -windowDays)
	entries, err := s.ledgerRepo.EntriesSince(ctx, orgID, from)
	if err != nil {
		return nil, &domain.OpError{Op: "usage_summary", OrgID: orgID, Err: err}
	}

	amount := func(e domain.LedgerEntry) int64 { return e.Amount }
	debits := lo.Filter(entries, func(e domain.LedgerEntry, _ int) bool { return e.Amount < 0 })
	credits := lo.Filter(entries, func(e domain.LedgerEntry, _ int) bool { return e.Amount > 0 })
	consumptions := lo.Filter(debits, func(e domain.LedgerEntry, _ int) bool {
		return e.Kind == domain.TransactionKindConsumption
	})
	byDescription := lo.MapValues(
		lo.GroupBy(consumptions, func(e domain.LedgerEntry) string { return e.Description }),
		func(group []domain.LedgerEntry, _ string) int64 { return -lo.SumBy(group, amount) },
	)

	consumed := -lo.SumBy(debits, amount)
	granted := lo.SumBy(credits, amount)
	return &domain.UsageSummary{
		OrgID:         orgID,
		WindowDays:    windowDays,
		From:          from,
		To:            to,
		TotalConsumed: consumed,
		TotalGranted:  granted,
		Net:           granted - consumed,
		ByDescription: byDescription,
	}, nil
}

func (s *ledgerService) Reconcile(ctx context.Context, orgID string) (*domain.ReconcileReport, error) {
	report, err := s.ledgerRepo.Reconcile(ctx, orgID)
	if err != nil {
		return nil, &domain.OpError{Op: "reconcile", OrgID: orgID, Err: err}
	}
	return report, nil
}

func validateAmount(amount int64) error {
	if amount <= 0 {
		return domain.NewValidationError("amount", "must be positive")
	}
	return nil
}

func validateCommon(description string, metadata domain.Metadata, idempotencyKey string) error {
	description = strings.TrimSpace(description)
	if description == "" {
		return domain.NewValidationError("description", "is required")
	}
	if len(description) > maxDescriptionLength {
		return domain.NewValidationError("description", fmt.Sprintf("must be at most %d characters", maxDescriptionLength))
	}
	if len(idempotencyKey) > maxIdempotencyKeyLength {
		return domain.NewValidationError("idempotency_key", fmt.Sprintf("must be at most %d characters", maxIdempotencyKeyLength))
	}
	if lo.ContainsBy(reservedKeyScopes, func(scope string) bool { return strings.HasPrefix(idempotencyKey, scope+":") }) {
		return domain.NewValidationError("idempotency_key", "uses a reserved prefix")
	}
	return metadata.Validate()
}

// derivedKey builds the idempotency key for writes the service issues on the
// caller's behalf, so the same source event can only be applied once.
func derivedKey(scope, id string) string {
	return scope + ":" + id
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrInsufficientCredits):
		return "insufficient_credits"
	case errors.Is(err, domain.ErrInvalidInput):
		return "invalid"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrConcurrencyConflict):
		return "conflict"
	case errors.Is(err, domain.ErrPersistenceUnavailable):
		return "unavailable"
	}
	return "error"
}
