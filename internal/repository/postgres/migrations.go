package postgres

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"

	"creatoros-backend/internal/logger"

	"github.com/jmoiron/sqlx"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrate applies every embedded migration in file name order. Each file is
// idempotent, so running Migrate on an up-to-date database is a no-op.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	names, err := fs.Glob(migrationFiles, "migrations/*.sql")
	if err != nil {
		return fmt.Errorf("failed to list migrations: %w", err)
	}
	sort.Strings(names)

	for _, name := range names {
		body, err := migrationFiles.ReadFile(name)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", name, err)
		}
		if _, err := db.ExecContext(ctx, string(body)); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", name, classifyError(err))
		}
		logger.Debug("Applied migration", "file", name)
	}
	logger.Info("Database migrations applied", "count", len(names))
	return nil
}
