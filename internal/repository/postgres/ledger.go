package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"creatoros-backend/internal/domain"
	"creatoros-backend/internal/logger"
	"creatoros-backend/internal/repository"

	"github.com/jmoiron/sqlx"
)

type ledgerRepository struct {
	db *sqlx.DB
}

func NewLedgerRepository(db *sqlx.DB) repository.LedgerRepository {
	return &ledgerRepository{db: db}
}

const entryColumns = `seq, id, org_id, amount, balance_after, kind, COALESCE(description, '') AS description,
	job_id, metadata, idempotency_key, created_at`

func (r *ledgerRepository) AppendEntryAndUpdateBalance(ctx context.Context, entry *domain.LedgerEntry, expectedBalance int64) (err error) {
	logger.EnterMethod("ledgerRepository.AppendEntryAndUpdateBalance", "orgID", entry.OrgID, "kind", entry.Kind, "amount", entry.Amount)

	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		err = classifyError(err)
		logger.ExitMethodWithError("ledgerRepository.AppendEntryAndUpdateBalance", err, "orgID", entry.OrgID)
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
			logger.ExitMethodWithError("ledgerRepository.AppendEntryAndUpdateBalance", err, "orgID", entry.OrgID)
		}
	}()

	// Compare-and-set on the cached balance. The row lock taken here serializes
	// writers from every process until commit.
	res, err := tx.ExecContext(ctx,
		`UPDATE organizations SET credit_balance = $1, updated_at = $2 WHERE id = $3 AND credit_balance = $4`,
		entry.BalanceAfter, entry.CreatedAt, entry.OrgID, expectedBalance)
	if err != nil {
		return classifyError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return classifyError(err)
	}
	if affected == 0 {
		var exists bool
		if err = tx.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM organizations WHERE id = $1)`, entry.OrgID); err != nil {
			return classifyError(err)
		}
		if !exists {
			return fmt.Errorf("organization %s: %w", entry.OrgID, domain.ErrNotFound)
		}
		return fmt.Errorf("balance of organization %s changed since read: %w", entry.OrgID, domain.ErrConcurrencyConflict)
	}

	insert := `INSERT INTO ledger_entries (id, org_id, amount, balance_after, kind, description, job_id, metadata, idempotency_key, created_at)
	           VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING seq`
	err = tx.QueryRowxContext(ctx, insert,
		entry.ID, entry.OrgID, entry.Amount, entry.BalanceAfter, entry.Kind, entry.Description,
		entry.JobID, entry.Metadata, entry.IdempotencyKey, entry.CreatedAt,
	).Scan(&entry.Seq)
	if err != nil {
		return classifyError(err)
	}

	if err = tx.Commit(); err != nil {
		return classifyError(err)
	}

	logger.ExitMethod("ledgerRepository.AppendEntryAndUpdateBalance", "entryID", entry.ID, "seq", entry.Seq)
	return nil
}

func (r *ledgerRepository) GetEntry(ctx context.Context, orgID, entryID string) (*domain.LedgerEntry, error) {
	e := &domain.LedgerEntry{}
	query := `SELECT ` + entryColumns + ` FROM ledger_entries WHERE org_id = $1 AND id = $2`
	if err := r.db.GetContext(ctx, e, query, orgID, entryID); err != nil {
		return nil, classifyError(err)
	}
	return e, nil
}

func (r *ledgerRepository) FindByIdempotencyKey(ctx context.Context, orgID, key string) (*domain.LedgerEntry, error) {
	e := &domain.LedgerEntry{}
	query := `SELECT ` + entryColumns + ` FROM ledger_entries WHERE org_id = $1 AND idempotency_key = $2`
	if err := r.db.GetContext(ctx, e, query, orgID, key); err != nil {
		return nil, classifyError(err)
	}
	return e, nil
}

func (r *ledgerRepository) QueryEntries(ctx context.Context, orgID string, filter repository.EntryFilter) ([]domain.LedgerEntry, int64, error) {
	logger.EnterMethod("ledgerRepository.QueryEntries", "orgID", orgID, "kind", filter.Kind, "limit", filter.Limit, "offset", filter.Offset)

	where, args := entryWhere(orgID, filter)

	var total int64
	if err := r.db.GetContext(ctx, &total, `SELECT count(*) FROM ledger_entries WHERE `+where, args...); err != nil {
		err = classifyError(err)
		logger.ExitMethodWithError("ledgerRepository.QueryEntries", err, "orgID", orgID)
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM ledger_entries WHERE %s ORDER BY seq DESC LIMIT $%d OFFSET $%d`,
		entryColumns, where, len(args)+1, len(args)+2)
	args = append(args, filter.Limit, filter.Offset)

	entries := []domain.LedgerEntry{}
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		err = classifyError(err)
		logger.ExitMethodWithError("ledgerRepository.QueryEntries", err, "orgID", orgID)
		return nil, 0, err
	}

	logger.ExitMethod("ledgerRepository.QueryEntries", "orgID", orgID, "count", len(entries), "total", total)
	return entries, total, nil
}

func (r *ledgerRepository) EntriesSince(ctx context.Context, orgID string, since time.Time) ([]domain.LedgerEntry, error) {
	entries := []domain.LedgerEntry{}
	query := `SELECT ` + entryColumns + ` FROM ledger_entries WHERE org_id = $1 AND created_at >= $2 ORDER BY seq`
	if err := r.db.SelectContext(ctx, &entries, query, orgID, since); err != nil {
		return nil, classifyError(err)
	}
	return entries, nil
}

func (r *ledgerRepository) Reconcile(ctx context.Context, orgID string) (*domain.ReconcileReport, error) {
	query := `
		SELECT o.id AS org_id,
		       o.credit_balance AS cached_balance,
		       COALESCE(SUM(e.amount), 0) AS ledger_sum,
		       COALESCE((SELECT l.balance_after FROM ledger_entries l WHERE l.org_id = o.id ORDER BY l.seq DESC LIMIT 1), 0) AS last_balance_after,
		       COUNT(e.id) AS entries,
		       (SELECT count(*) FROM (
		            SELECT c.amount, c.balance_after,
		                   LAG(c.balance_after, 1, 0::bigint) OVER (ORDER BY c.seq) AS prev
		            FROM ledger_entries c WHERE c.org_id = o.id
		        ) chain WHERE chain.balance_after <> chain.prev + chain.amount) AS chain_breaks
		FROM organizations o
		LEFT JOIN ledger_entries e ON e.org_id = o.id
		WHERE o.id = $1
		GROUP BY o.id, o.credit_balance`

	report := &domain.ReconcileReport{}
	if err := r.db.GetContext(ctx, report, query, orgID); err != nil {
		return nil, classifyError(err)
	}
	return report, nil
}

func entryWhere(orgID string, filter repository.EntryFilter) (string, []interface{}) {
	clauses := []string{"org_id = $1"}
	args := []interface{}{orgID}
	if filter.Kind != "" {
		args = append(args, filter.Kind)
		clauses = append(clauses, fmt.Sprintf("kind = $%d", len(args)))
	}
	if !filter.Since.IsZero() {
		args = append(args, filter.Since)
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	return strings.Join(clauses, " AND "), args
}
