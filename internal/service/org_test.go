package service_test

import (
	"context"
	"errors"
	"testing"

	"creatoros-backend/internal/config"
	"creatoros-backend/internal/domain"
	"creatoros-backend/internal/repository/memory"
	"creatoros-backend/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestOrganizationService_CreateOrganization(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	ledger := service.NewLedgerService(store, store, nil, service.LedgerOptions{})
	svc := service.NewOrganizationService(store, ledger, nil)

	t.Run("SignupGrantByTier", func(t *testing.T) {
		for tier, want := range service.PlanGrants(config.DefaultSignupGrants()) {
			org, err := svc.CreateOrganization(ctx, "Studio "+string(tier), tier)
			require.NoError(t, err)
			assert.Equal(t, want, org.CreditBalance)

			bal, err := ledger.GetBalance(ctx, org.ID)
			require.NoError(t, err)
			assert.Equal(t, want, bal.Credits)

			page, err := ledger.History(ctx, org.ID, service.HistoryFilter{})
			require.NoError(t, err)
			require.Len(t, page.Entries, 1)
			assert.Equal(t, domain.TransactionKindGrant, page.Entries[0].Kind)
			require.NotNil(t, page.Entries[0].IdempotencyKey)
			assert.Equal(t, "signup:"+org.ID, *page.Entries[0].IdempotencyKey)
		}
	})

	t.Run("DefaultsToFree", func(t *testing.T) {
		org, err := svc.CreateOrganization(ctx, "Solo", "")
		require.NoError(t, err)
		assert.Equal(t, domain.PlanTierFree, org.PlanTier)
		assert.Equal(t, int64(100), org.CreditBalance)
	})

	t.Run("InvalidInput", func(t *testing.T) {
		_, err := svc.CreateOrganization(ctx, "  ", domain.PlanTierPro)
		assert.True(t, errors.Is(err, domain.ErrInvalidInput))
		_, err = svc.CreateOrganization(ctx, "Acme", "enterprise")
		assert.True(t, errors.Is(err, domain.ErrInvalidInput))
	})

	t.Run("ZeroGrantTier", func(t *testing.T) {
		noGrant := service.NewOrganizationService(store, ledger, map[domain.PlanTier]int64{})
		org, err := noGrant.CreateOrganization(ctx, "Trial", domain.PlanTierPro)
		require.NoError(t, err)
		assert.Zero(t, org.CreditBalance)
	})
}

func TestOrganizationService_EnsureSignupGrant(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	ledger := service.NewLedgerService(store, store, nil, service.LedgerOptions{})
	svc := service.NewOrganizationService(store, ledger, service.PlanGrants(map[string]int64{"pro": 250}))

	org, err := svc.CreateOrganization(ctx, "Acme", domain.PlanTierPro)
	require.NoError(t, err)
	assert.Equal(t, int64(250), org.CreditBalance)

	res, err := svc.EnsureSignupGrant(ctx, org.ID)
	require.NoError(t, err)
	assert.True(t, res.Replayed)
	assert.Equal(t, int64(250), res.Balance)

	t.Run("InterruptedSignup", func(t *testing.T) {
		half := &domain.Organization{ID: "org-half", Name: "Half", PlanTier: domain.PlanTierPro}
		require.NoError(t, store.Create(ctx, half))

		res, err := svc.EnsureSignupGrant(ctx, half.ID)
		require.NoError(t, err)
		assert.False(t, res.Replayed)
		assert.Equal(t, int64(250), res.Balance)
		assert.Equal(t, "signup", res.Entry.Metadata["source"])
	})

	t.Run("TierWithoutGrant", func(t *testing.T) {
		free := &domain.Organization{ID: "org-free", Name: "Free", PlanTier: domain.PlanTierFree}
		require.NoError(t, store.Create(ctx, free))

		res, err := svc.EnsureSignupGrant(ctx, free.ID)
		require.NoError(t, err)
		assert.Nil(t, res)
	})

	t.Run("UnknownOrganization", func(t *testing.T) {
		_, err := svc.EnsureSignupGrant(ctx, "ghost")
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	})
}

func TestPlanGrants(t *testing.T) {
	grants := service.PlanGrants(config.DefaultSignupGrants())
	assert.Equal(t, int64(100), grants[domain.PlanTierFree])
	assert.Equal(t, int64(20000), grants[domain.PlanTierAgency])
	assert.Len(t, grants, 4)
}

func TestOrganizationService_CreateFails(t *testing.T) {
	ctx := context.Background()
	orgRepo := new(MockOrgRepo)
	ledgerRepo := new(MockLedgerRepo)
	ledger := service.NewLedgerService(orgRepo, ledgerRepo, nil, service.LedgerOptions{})
	svc := service.NewOrganizationService(orgRepo, ledger, nil)

	orgRepo.On("Create", ctx, mock.Anything).Return(domain.ErrPersistenceUnavailable)

	_, err := svc.CreateOrganization(ctx, "Acme", domain.PlanTierCreator)
	assert.True(t, errors.Is(err, domain.ErrPersistenceUnavailable))
	ledgerRepo.AssertNotCalled(t, "AppendEntryAndUpdateBalance", mock.Anything, mock.Anything, mock.Anything)
}

func TestOrganizationService_GetAndList(t *testing.T) {
	ctx := context.Background()
	orgRepo := new(MockOrgRepo)
	svc := service.NewOrganizationService(orgRepo, nil, nil)

	org := &domain.Organization{ID: "org-1", Name: "Acme", PlanTier: domain.PlanTierPro}
	orgRepo.On("GetByID", ctx, "org-1").Return(org, nil)
	orgRepo.On("List", ctx).Return([]domain.Organization{*org}, nil)

	got, err := svc.GetOrganization(ctx, "org-1")
	require.NoError(t, err)
	assert.Equal(t, "Acme", got.Name)

	list, err := svc.ListOrganizations(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
