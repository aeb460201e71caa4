package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MigrationsDir is the directory inside the embedded filesystem holding the SQL files
const MigrationsDir = "migrations"

// Direction selects which way Migrate moves the schema
type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

// Migrations exposes the embedded migration files
func Migrations() embed.FS {
	return migrationsFS
}

func setupGoose() error {
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	return nil
}

// Migrate applies all pending migrations (Up) or rolls back the latest one (Down)
func Migrate(ctx context.Context, db *sql.DB, dir Direction) error {
	if err := setupGoose(); err != nil {
		return err
	}

	switch dir {
	case Up:
		if err := goose.UpContext(ctx, db, MigrationsDir); err != nil {
			return fmt.Errorf("failed to apply migrations: %w", err)
		}
	case Down:
		if err := goose.DownContext(ctx, db, MigrationsDir); err != nil {
			return fmt.Errorf("failed to roll back migration: %w", err)
		}
	default:
		return fmt.Errorf("unknown migration direction %q", dir)
	}

	return nil
}

// MigrationStatus prints applied and pending migrations through goose's logger
func MigrationStatus(ctx context.Context, db *sql.DB) error {
	if err := setupGoose(); err != nil {
		return err
	}
	if err := goose.StatusContext(ctx, db, MigrationsDir); err != nil {
		return fmt.Errorf("failed to read migration status: %w", err)
	}
	return nil
}

// Version returns the current schema version
func Version(ctx context.Context, db *sql.DB) (int64, error) {
	if err := setupGoose(); err != nil {
		return 0, err
	}
	v, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return v, nil
}
