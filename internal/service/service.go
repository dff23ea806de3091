package service

import (
	"context"

	"creatoros-backend/internal/domain"
)

type ConsumeRequest struct {
	Amount         int64
	Description    string
	JobID          *string
	Metadata       domain.Metadata
	IdempotencyKey string
}

type GrantRequest struct {
	Amount         int64
	Description    string
	Metadata       domain.Metadata
	IdempotencyKey string
}

type RefundRequest struct {
	EntryID string
	Amount  int64 // 0 refunds the full consumed amount
	Reason  string
}

type AdjustRequest struct {
	Amount         int64 // signed, never zero
	Description    string
	Metadata       domain.Metadata
	IdempotencyKey string
}

type HistoryFilter struct {
	Kind   domain.TransactionKind
	Limit  int
	Offset int
}

// LedgerService is the only writer of an organization's credit balance.
type LedgerService interface {
	GetBalance(ctx context.Context, orgID string) (*domain.Balance, error)
	Consume(ctx context.Context, orgID string, req ConsumeRequest) (*domain.LedgerResult, error)
	Grant(ctx context.Context, orgID string, req GrantRequest) (*domain.LedgerResult, error)
	Purchase(ctx context.Context, orgID string, req GrantRequest) (*domain.LedgerResult, error)
	GrantSignup(ctx context.Context, orgID string, tier domain.PlanTier, amount int64) (*domain.LedgerResult, error)
	Refund(ctx context.Context, orgID string, req RefundRequest) (*domain.LedgerResult, error)
	Adjust(ctx context.Context, orgID string, req AdjustRequest) (*domain.LedgerResult, error)
	History(ctx context.Context, orgID string, filter HistoryFilter) (*domain.HistoryPage, error)
	UsageSummary(ctx context.Context, orgID string, windowDays int) (*domain.UsageSummary, error)
	Reconcile(ctx context.Context, orgID string) (*domain.ReconcileReport, error)
}

type OrganizationService interface {
	CreateOrganization(ctx context.Context, name string, tier domain.PlanTier) (*domain.Organization, error)
	GetOrganization(ctx context.Context, id string) (*domain.Organization, error)
	ListOrganizations(ctx context.Context) ([]domain.Organization, error)
	// EnsureSignupGrant re-applies the plan grant of an organization whose signup
	// was interrupted. It returns nil when the plan has no grant.
	EnsureSignupGrant(ctx context.Context, orgID string) (*domain.LedgerResult, error)
}
