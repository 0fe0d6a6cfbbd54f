package postgres

import (
	"context"
	"fmt"

	"github.com/pressly/goose/v3"

	"ledgerlink/internal/infrastructure/postgres/migrations"
)

// RunMigrations applies the embedded migrations to the connected database.
func RunMigrations(ctx context.Context, db *DB) error {
	goose.SetBaseFS(migrations.Migrations)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db.DB, "."); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}
