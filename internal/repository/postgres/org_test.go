package postgres_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"creatoros-backend/internal/domain"
	"creatoros-backend/internal/repository/postgres"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrganizationRepository_Create(t *testing.T) {
	db, mock := newMockDB(t)
	repo := postgres.NewOrganizationRepository(db)
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		org := &domain.Organization{ID: "org-1", Name: "Acme", PlanTier: domain.PlanTierPro, CreditBalance: 999}

		mock.ExpectExec("INSERT INTO organizations").
			WithArgs("org-1", "Acme", sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.Create(ctx, org)
		assert.NoError(t, err)
		assert.Zero(t, org.CreditBalance)
		assert.False(t, org.CreatedAt.IsZero())
	})

	t.Run("ConnectionLost", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO organizations").
			WillReturnError(&pq.Error{Code: "08006"})

		err := repo.Create(ctx, &domain.Organization{ID: "org-2", Name: "Beta", PlanTier: domain.PlanTierFree})
		assert.True(t, errors.Is(err, domain.ErrPersistenceUnavailable))
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrganizationRepository_GetByID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := postgres.NewOrganizationRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	t.Run("Success", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"id", "name", "credit_balance", "plan_tier", "created_at", "updated_at"}).
			AddRow("org-1", "Acme", 1470, "creator", now, now)
		mock.ExpectQuery("SELECT (.+) FROM organizations WHERE id = \\$1").
			WithArgs("org-1").
			WillReturnRows(rows)

		org, err := repo.GetByID(ctx, "org-1")
		require.NoError(t, err)
		assert.Equal(t, int64(1470), org.CreditBalance)
		assert.Equal(t, domain.PlanTierCreator, org.PlanTier)
	})

	t.Run("NotFound", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM organizations WHERE id = \\$1").
			WithArgs("missing").
			WillReturnError(sql.ErrNoRows)

		_, err := repo.GetByID(ctx, "missing")
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrganizationRepository_ReadBalance(t *testing.T) {
	db, mock := newMockDB(t)
	repo := postgres.NewOrganizationRepository(db)
	ctx := context.Background()

	mock.ExpectQuery("SELECT credit_balance FROM organizations WHERE id = \\$1").
		WithArgs("org-1").
		WillReturnRows(sqlmock.NewRows([]string{"credit_balance"}).AddRow(970))

	balance, err := repo.ReadBalance(ctx, "org-1")
	assert.NoError(t, err)
	assert.Equal(t, int64(970), balance)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrganizationRepository_List(t *testing.T) {
	db, mock := newMockDB(t)
	repo := postgres.NewOrganizationRepository(db)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT (.+) FROM organizations ORDER BY created_at").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "credit_balance", "plan_tier", "created_at", "updated_at"}).
			AddRow("org-1", "Acme", 100, "free", now, now).
			AddRow("org-2", "Beta", 5000, "pro", now, now))

	orgs, err := repo.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, orgs, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}
