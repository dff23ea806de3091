package domain

import "time"

type TransactionKind string

const (
	TransactionKindGrant       TransactionKind = "grant"
	TransactionKindPurchase    TransactionKind = "purchase"
	TransactionKindConsumption TransactionKind = "consumption"
	TransactionKindRefund      TransactionKind = "refund"
	TransactionKindAdjustment  TransactionKind = "adjustment"
)

// Valid reports whether k is one of the known transaction kinds.
func (k TransactionKind) Valid() bool {
	switch k {
	case TransactionKindGrant, TransactionKindPurchase, TransactionKindConsumption,
		TransactionKindRefund, TransactionKindAdjustment:
		return true
	}
	return false
}

// LedgerEntry is an immutable balance-affecting fact.
type LedgerEntry struct {
	Seq            int64           `json:"-" db:"seq"`
	ID             string          `json:"id" db:"id"`
	OrgID          string          `json:"org_id" db:"org_id"`
	Amount         int64           `json:"amount" db:"amount"` // positive for credit, negative for debit
	BalanceAfter   int64           `json:"balance_after" db:"balance_after"`
	Kind           TransactionKind `json:"kind" db:"kind"`
	Description    string          `json:"description" db:"description"`
	JobID          *string         `json:"job_id,omitempty" db:"job_id"`
	Metadata       Metadata        `json:"metadata,omitempty" db:"metadata"`
	IdempotencyKey *string         `json:"idempotency_key,omitempty" db:"idempotency_key"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
}

// BalanceBefore is the organization balance this entry was applied on top of.
func (e *LedgerEntry) BalanceBefore() int64 {
	return e.BalanceAfter - e.Amount
}

// LedgerResult is returned by every balance-affecting operation.
type LedgerResult struct {
	Balance  int64        `json:"balance"`
	Entry    *LedgerEntry `json:"entry"`
	Replayed bool         `json:"replayed"`
}

// HistoryPage is a page of entries, newest first.
type HistoryPage struct {
	Entries []LedgerEntry `json:"entries"`
	Total   int64         `json:"total"`
	Limit   int           `json:"limit"`
	Offset  int           `json:"offset"`
	HasMore bool          `json:"has_more"`
}

// UsageSummary aggregates entries within a trailing window. It is never persisted.
type UsageSummary struct {
	OrgID         string           `json:"org_id"`
	WindowDays    int              `json:"window_days"`
	From          time.Time        `json:"from"`
	To            time.Time        `json:"to"`
	TotalConsumed int64            `json:"total_consumed"`
	TotalGranted  int64            `json:"total_granted"`
	Net           int64            `json:"net"`
	ByDescription map[string]int64 `json:"by_description"`
}

// ReconcileReport compares the cached balance of an organization with its ledger.
type ReconcileReport struct {
	OrgID            string `json:"org_id" db:"org_id"`
	CachedBalance    int64  `json:"cached_balance" db:"cached_balance"`
	LedgerSum        int64  `json:"ledger_sum" db:"ledger_sum"`
	LastBalanceAfter int64  `json:"last_balance_after" db:"last_balance_after"`
	Entries          int64  `json:"entries" db:"entries"`
	ChainBreaks      int64  `json:"chain_breaks" db:"chain_breaks"`
}

// Consistent reports whether cache, sum and running chain all agree.
func (r *ReconcileReport) Consistent() bool {
	return r.CachedBalance == r.LedgerSum &&
		r.CachedBalance == r.LastBalanceAfter &&
		r.ChainBreaks == 0
}
