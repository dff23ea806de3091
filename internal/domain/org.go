package domain

import "time"

type PlanTier string

const (
	PlanTierFree    PlanTier = "free"
	PlanTierCreator PlanTier = "creator"
	PlanTierPro     PlanTier = "pro"
	PlanTierAgency  PlanTier = "agency"
)

// Valid reports whether t is a known plan tier.
func (t PlanTier) Valid() bool {
	switch t {
	case PlanTierFree, PlanTierCreator, PlanTierPro, PlanTierAgency:
		return true
	}
	return false
}

// Organization is the tenant root. CreditBalance is a cache of the ledger sum and
// is only ever written together with a ledger entry.
type Organization struct {
	ID            string    `json:"id" db:"id"`
	Name          string    `json:"name" db:"name"`
	CreditBalance int64     `json:"credit_balance" db:"credit_balance"`
	PlanTier      PlanTier  `json:"plan_tier" db:"plan_tier"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

// Balance is the read model returned by GetBalance.
type Balance struct {
	OrgID    string   `json:"org_id"`
	Credits  int64    `json:"credits"`
	PlanTier PlanTier `json:"plan_tier"`
}
