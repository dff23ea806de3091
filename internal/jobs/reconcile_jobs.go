package jobs

import (
	"context"
	"fmt"
	"time"

	"creatoros-backend/internal/domain"
	"creatoros-backend/internal/logger"
	"creatoros-backend/internal/metrics"
)

const reconcileTimeout = 5 * time.Minute

// ReconcileBalances compares every organization's cached balance with its
// ledger. Drift is only reported. Organizations whose signup grant never landed
// get it re-applied through the ledger.
func (jr *JobRunner) ReconcileBalances() {
	jr.runWithRecovery("ReconcileBalances", func() {
		ctx, cancel := context.WithTimeout(context.Background(), reconcileTimeout)
		defer cancel()

		if _, err := jr.ReconcileAll(ctx); err != nil {
			logger.Error("Balance reconciliation failed", "error", err)
		}
	})
}

// ReconcileAll returns the reports of all inconsistent organizations. A failure
// to reconcile one organization is logged and does not stop the run.
func (jr *JobRunner) ReconcileAll(ctx context.Context) ([]domain.ReconcileReport, error) {
	orgs, err := jr.services.Org.ListOrganizations(ctx)
	if err != nil {
		return nil, fmt.Errorf("list organizations: %w", err)
	}

	var inconsistent []domain.ReconcileReport
	checked, restored := 0, 0
	for _, org := range orgs {
		if err := ctx.Err(); err != nil {
			return inconsistent, err
		}

		report, err := jr.services.Ledger.Reconcile(ctx, org.ID)
		if err != nil {
			logger.Error("Failed to reconcile organization",
				"org_id", org.ID,
				"org_name", org.Name,
				"error", err)
			continue
		}
		checked++

		if report.Entries == 0 {
			repaired, err := jr.restoreSignupGrant(ctx, org)
			if err != nil {
				logger.Error("Failed to restore signup grant", "org_id", org.ID, "error", err)
			} else if repaired != nil {
				report = repaired
				restored++
			}
		}

		if !report.Consistent() {
			logger.Error("Balance drift detected",
				"org_id", org.ID,
				"cached_balance", report.CachedBalance,
				"ledger_sum", report.LedgerSum,
				"last_balance_after", report.LastBalanceAfter,
				"chain_breaks", report.ChainBreaks)
			inconsistent = append(inconsistent, *report)
		}
	}

	metrics.SetInconsistentOrganizations(len(inconsistent))
	logger.Info("Completed balance reconciliation",
		"organizations", len(orgs),
		"checked", checked,
		"signup_grants_restored", restored,
		"inconsistent", len(inconsistent))
	return inconsistent, nil
}

// restoreSignupGrant re-applies the plan grant of an organization with an empty
// ledger and returns its fresh report, or nil when nothing was written.
func (jr *JobRunner) restoreSignupGrant(ctx context.Context, org domain.Organization) (*domain.ReconcileReport, error) {
	result, err := jr.services.Org.EnsureSignupGrant(ctx, org.ID)
	if err != nil || result == nil {
		return nil, err
	}
	logger.Warn("Restored missing signup grant",
		"org_id", org.ID,
		"plan_tier", org.PlanTier,
		"amount", result.Entry.Amount)
	return jr.services.Ledger.Reconcile(ctx, org.ID)
}
