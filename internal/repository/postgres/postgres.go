package postgres

import (
	"creatoros-backend/internal/repository"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

type Store struct {
	db *sqlx.DB
	repository.OrganizationRepository
	repository.LedgerRepository
}

func NewStore(db *sqlx.DB) *Store {
	return &Store{
		db:                     db,
		OrganizationRepository: NewOrganizationRepository(db),
		LedgerRepository:       NewLedgerRepository(db),
	}
}

// Open connects to Postgres using the lib/pq driver.
func Open(dsn string) (*sqlx.DB, error) {
	return sqlx.Open("postgres", dsn)
}
