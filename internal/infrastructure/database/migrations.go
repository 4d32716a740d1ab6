package database

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// newMigrator builds a migrate instance over the embedded audit schema
// migrations and the given connection.
func newMigrator(db *sql.DB) (*migrate.Migrate, error) {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("creating migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("creating migration source: %w", err)
	}

	return migrate.NewWithInstance("iofs", source, "postgres", driver)
}

// RunMigrations brings the audit schema (pipeline_runs, weather_requests
// and their procedures) up to the latest version. A dirty version from an
// interrupted earlier run is forced clean first.
func RunMigrations(db *sql.DB, logger *zap.Logger) error {
	m, err := newMigrator(db)
	if err != nil {
		return err
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("reading migration version: %w", err)
	}

	if dirty {
		logger.Warn("audit schema migrations are dirty, forcing clean", zap.Uint("version", version))
		if err := m.Force(int(version)); err != nil {
			return fmt.Errorf("forcing migration version: %w", err)
		}
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("running migrations: %w", err)
	}

	newVersion, _, err := m.Version()
	if err != nil {
		return fmt.Errorf("reading migration version after up: %w", err)
	}

	logger.Info("audit schema migrations completed", zap.Uint("version", newVersion))

	return nil
}

// MigrateDown rolls back the most recent audit schema migration.
func MigrateDown(db *sql.DB, logger *zap.Logger) error {
	m, err := newMigrator(db)
	if err != nil {
		return err
	}

	if err := m.Steps(-1); err != nil {
		return fmt.Errorf("rolling back migration: %w", err)
	}

	version, _, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("reading migration version after rollback: %w", err)
	}

	logger.Info("audit schema migration rolled back", zap.Uint("version", version))

	return nil
}

// MigrateToVersion migrates the audit schema to a specific version, up or
// down as needed.
func MigrateToVersion(db *sql.DB, targetVersion uint, logger *zap.Logger) error {
	m, err := newMigrator(db)
	if err != nil {
		return err
	}

	if err := m.Migrate(targetVersion); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrating to version %d: %w", targetVersion, err)
	}

	logger.Info("audit schema migrated", zap.Uint("version", targetVersion))

	return nil
}
