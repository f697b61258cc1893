package data

import (
	"context"
	"database/sql"

	"github.com/PratikB30/crewai-financial-doc-analyzer/internal/migrate"
)

// RunMigrations applies the analysis_jobs schema by delegating to the migrate package.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	return migrate.Run(ctx, db)
}

// PendingMigrations lists embedded migrations that have not been applied yet.
func PendingMigrations(ctx context.Context, db *sql.DB) ([]string, error) {
	return migrate.Pending(ctx, db)
}
