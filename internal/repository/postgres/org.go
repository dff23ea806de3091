package postgres

import (
	"context"
	"time"

	"creatoros-backend/internal/domain"
	"creatoros-backend/internal/repository"

	"github.com/jmoiron/sqlx"
)

type organizationRepository struct {
	db *sqlx.DB
}

func NewOrganizationRepository(db *sqlx.DB) repository.OrganizationRepository {
	return &organizationRepository{db: db}
}

const orgColumns = `id, name, credit_balance, plan_tier, created_at, updated_at`

func (r *organizationRepository) Create(ctx context.Context, o *domain.Organization) error {
	now := time.Now().UTC()
	query := `INSERT INTO organizations (id, name, credit_balance, plan_tier, created_at, updated_at)
	          VALUES ($1, $2, 0, $3, $4, $4)`
	if _, err := r.db.ExecContext(ctx, query, o.ID, o.Name, o.PlanTier, now); err != nil {
		return classifyError(err)
	}
	o.CreditBalance = 0
	o.CreatedAt = now
	o.UpdatedAt = now
	return nil
}

func (r *organizationRepository) GetByID(ctx context.Context, id string) (*domain.Organization, error) {
	o := &domain.Organization{}
	query := `SELECT ` + orgColumns + ` FROM organizations WHERE id = $1`
	if err := r.db.GetContext(ctx, o, query, id); err != nil {
		return nil, classifyError(err)
	}
	return o, nil
}

func (r *organizationRepository) List(ctx context.Context) ([]domain.Organization, error) {
	var orgs []domain.Organization
	query := `SELECT ` + orgColumns + ` FROM organizations ORDER BY created_at`
	if err := r.db.SelectContext(ctx, &orgs, query); err != nil {
		return nil, classifyError(err)
	}
	return orgs, nil
}

func (r *organizationRepository) ReadBalance(ctx context.Context, id string) (int64, error) {
	var balance int64
	query := `SELECT credit_balance FROM organizations WHERE id = $1`
	if err := r.db.GetContext(ctx, &balance, query, id); err != nil {
		return 0, classifyError(err)
	}
	return balance, nil
}
