package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"creatoros-backend/internal/config"
	"creatoros-backend/internal/domain"
	"creatoros-backend/internal/logger"
	"creatoros-backend/internal/repository"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

const maxOrganizationNameLength = 128

type organizationService struct {
	orgRepo      repository.OrganizationRepository
	ledger       LedgerService
	signupGrants map[domain.PlanTier]int64
	now          func() time.Time
}

// NewOrganizationService returns a service that creates organizations and
// credits their plan's signup grant through ledger. A nil signupGrants uses
// config.DefaultSignupGrants.
func NewOrganizationService(orgRepo repository.OrganizationRepository, ledger LedgerService, signupGrants map[domain.PlanTier]int64) OrganizationService {
	if signupGrants == nil {
		signupGrants = PlanGrants(config.DefaultSignupGrants())
	}
	return &organizationService{
		orgRepo:      orgRepo,
		ledger:       ledger,
		signupGrants: signupGrants,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// PlanGrants converts the configured signup grants, keyed by tier name.
func PlanGrants(grants map[string]int64) map[domain.PlanTier]int64 {
	return lo.MapKeys(grants, func(_ int64, tier string) domain.PlanTier { return domain.PlanTier(tier) })
}

func (s *organizationService) ListOrganizations(ctx context.Context) ([]domain.Organization, error) {
	return s.orgRepo.List(ctx)
}

func (s *organizationService) GetOrganization(ctx context.Context, id string) (*domain.Organization, error) {
	return s.orgRepo.GetByID(ctx, id)
}

func (s *organizationService) CreateOrganization(ctx context.Context, name string, tier domain.PlanTier) (*domain.Organization, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.NewValidationError("name", "is required")
	}
	if len(name) > maxOrganizationNameLength {
		return nil, domain.NewValidationError("name", fmt.Sprintf("must be at most %d characters", maxOrganizationNameLength))
	}
	if tier == "" {
		tier = domain.PlanTierFree
	}
	if !tier.Valid() {
		return nil, domain.NewValidationError("plan_tier", fmt.Sprintf("unknown plan tier %q", tier))
	}

	now := s.now()
	org := &domain.Organization{
		ID:        uuid.NewString(),
		Name:      name,
		PlanTier:  tier,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.orgRepo.Create(ctx, org); err != nil {
		return nil, err
	}

	log := logger.WithOrg("organization", org.ID)
	log.Info("Organization created", "plan_tier", tier)

	grant := s.signupGrants[tier]
	if grant <= 0 {
		return org, nil
	}

	// The organization exists even if the grant fails. The reconciliation job
	// re-applies it through EnsureSignupGrant.
	result, err := s.ledger.GrantSignup(ctx, org.ID, tier, grant)
	if err != nil {
		log.Error("Signup grant failed", "error", err)
		return org, err
	}
	org.CreditBalance = result.Balance
	return org, nil
}

func (s *organizationService) EnsureSignupGrant(ctx context.Context, orgID string) (*domain.LedgerResult, error) {
	org, err := s.orgRepo.GetByID(ctx, orgID)
	if err != nil {
		return nil, err
	}
	grant := s.signupGrants[org.PlanTier]
	if grant <= 0 {
		return nil, nil
	}
	return s.ledger.GrantSignup(ctx, org.ID, org.PlanTier, grant)
}
