package jobs_test

import (
	"context"
	"errors"
	"testing"

	"creatoros-backend/internal/config"
	"creatoros-backend/internal/domain"
	"creatoros-backend/internal/jobs"
	"creatoros-backend/internal/repository/memory"
	"creatoros-backend/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// driftingLedger reports drift for one organization and fails for another.
type driftingLedger struct {
	service.LedgerService
	drifted string
	broken  string
}

func (d *driftingLedger) Reconcile(ctx context.Context, orgID string) (*domain.ReconcileReport, error) {
	if orgID == d.broken {
		return nil, domain.ErrPersistenceUnavailable
	}
	report, err := d.LedgerService.Reconcile(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if orgID == d.drifted {
		report.CachedBalance += 7
	}
	return report, nil
}

func TestReconcileAll(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	ledger := service.NewLedgerService(store, store, nil, service.LedgerOptions{})
	orgs := service.NewOrganizationService(store, ledger, nil)

	var ids []string
	for _, tier := range []domain.PlanTier{domain.PlanTierFree, domain.PlanTierPro, domain.PlanTierAgency} {
		org, err := orgs.CreateOrganization(ctx, "Org "+string(tier), tier)
		require.NoError(t, err)
		ids = append(ids, org.ID)
	}
	_, err := ledger.Consume(ctx, ids[0], service.ConsumeRequest{Amount: 40, Description: "render"})
	require.NoError(t, err)

	t.Run("AllConsistent", func(t *testing.T) {
		runner := jobs.NewJobRunner(&jobs.Services{Ledger: ledger, Org: orgs}, &config.Config{})
		reports, err := runner.ReconcileAll(ctx)
		require.NoError(t, err)
		assert.Empty(t, reports)
	})

	t.Run("ReportsDriftAndSkipsFailures", func(t *testing.T) {
		drifting := &driftingLedger{LedgerService: ledger, drifted: ids[1], broken: ids[2]}
		runner := jobs.NewJobRunner(&jobs.Services{Ledger: drifting, Org: orgs}, &config.Config{})
		reports, err := runner.ReconcileAll(ctx)
		require.NoError(t, err)
		require.Len(t, reports, 1)
		assert.Equal(t, ids[1], reports[0].OrgID)
		assert.Equal(t, int64(5007), reports[0].CachedBalance)
		assert.Equal(t, int64(5000), reports[0].LedgerSum)
	})

	t.Run("ScheduledEntryPointRecovers", func(t *testing.T) {
		runner := jobs.NewJobRunner(&jobs.Services{Ledger: ledger, Org: panickingOrgs{}}, &config.Config{})
		assert.NotPanics(t, runner.ReconcileBalances)
	})
}

func TestReconcileAll_RestoresInterruptedSignupGrant(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	ledger := service.NewLedgerService(store, store, nil, service.LedgerOptions{})
	orgs := service.NewOrganizationService(store, ledger, nil)
	runner := jobs.NewJobRunner(&jobs.Services{Ledger: ledger, Org: orgs}, &config.Config{})

	// Organization row committed, grant never applied.
	org := &domain.Organization{ID: "9b2f0d4e-5c1a-4f8e-9a77-2c1d3e4f5a6b", Name: "Half signed up", PlanTier: domain.PlanTierCreator}
	require.NoError(t, store.Create(ctx, org))

	reports, err := runner.ReconcileAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, reports)

	balance, err := ledger.GetBalance(ctx, org.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), balance.Credits)

	_, err = runner.ReconcileAll(ctx)
	require.NoError(t, err)
	page, err := ledger.History(ctx, org.ID, service.HistoryFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)

	t.Run("TierWithoutGrantIsLeftEmpty", func(t *testing.T) {
		noGrants := service.NewOrganizationService(store, ledger, map[domain.PlanTier]int64{})
		trial := &domain.Organization{ID: "0c7e1b2a-3d4f-4a5b-8c9d-0e1f2a3b4c5d", Name: "Trial", PlanTier: domain.PlanTierFree}
		require.NoError(t, store.Create(ctx, trial))

		runner := jobs.NewJobRunner(&jobs.Services{Ledger: ledger, Org: noGrants}, &config.Config{})
		_, err := runner.ReconcileAll(ctx)
		require.NoError(t, err)

		balance, err := ledger.GetBalance(ctx, trial.ID)
		require.NoError(t, err)
		assert.Zero(t, balance.Credits)
	})
}

func TestReconcileAll_ListFails(t *testing.T) {
	runner := jobs.NewJobRunner(&jobs.Services{Org: failingOrgs{}}, &config.Config{})
	_, err := runner.ReconcileAll(context.Background())
	assert.True(t, errors.Is(err, domain.ErrPersistenceUnavailable))
}

type failingOrgs struct{ service.OrganizationService }

func (failingOrgs) ListOrganizations(ctx context.Context) ([]domain.Organization, error) {
	return nil, domain.ErrPersistenceUnavailable
}

type panickingOrgs struct{ service.OrganizationService }

func (panickingOrgs) ListOrganizations(ctx context.Context) ([]domain.Organization, error) {
	panic("store exploded")
}
