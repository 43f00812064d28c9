package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mstanic/business-tracker/internal/db/migrations"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// RunMigrations applies all pending goose migrations. Goose runs over
// database/sql, so a short-lived stdlib connection is opened just for this.
func RunMigrations(ctx context.Context, host, port, dbName string) error {
	sqlDB, err := sql.Open("pgx", ConnString(host, port, dbName))
	if err != nil {
		return fmt.Errorf("open migrations db conn: %w", err)
	}
	defer func() {
		_ = sqlDB.Close()
	}()

	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	if err := goose.UpContext(ctx, sqlDB, "."); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}
