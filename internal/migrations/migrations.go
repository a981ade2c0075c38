// Package migrations applies the embedded link schema to a SQL database.
package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed sql
var migrationsFS embed.FS

// Dialect selects the migration set.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

type Migrator struct {
	migrate *migrate.Migrate
	source  source.Driver
	logger  *slog.Logger
}

// New prepares a Migrator over an open database handle. Closing the
// Migrator closes db.
func New(db *sql.DB, dialect Dialect, logger *slog.Logger) (*Migrator, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var (
		driver database.Driver
		err    error
	)
	switch dialect {
	case Postgres:
		driver, err = postgres.WithInstance(db, &postgres.Config{})
	case SQLite:
		driver, err = sqlite.WithInstance(db, &sqlite.Config{})
	default:
		return nil, fmt.Errorf("unsupported migration dialect %q", dialect)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s migration driver: %w", dialect, err)
	}

	src, err := iofs.New(migrationsFS, "sql/"+string(dialect))
	if err != nil {
		return nil, fmt.Errorf("failed to open migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, string(dialect), driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}

	return &Migrator{
		migrate: m,
		source:  src,
		logger:  logger.With("dialect", string(dialect)),
	}, nil
}

// Apply migrates db to the latest version and leaves it open, for handles
// such as in-memory SQLite that cannot be reopened.
func Apply(db *sql.DB, dialect Dialect, logger *slog.Logger) error {
	m, err := New(db, dialect, logger)
	if err != nil {
		return err
	}
	return m.Up()
}

// Up applies every pending migration. A dirty version left by a failed run
// is rolled back to the version before it, so the failed migration runs
// again. Up migrations must therefore be idempotent.
func (m *Migrator) Up() error {
	version, dirty, err := m.migrate.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	if dirty {
		prev, err := m.previousVersion(version)
		if err != nil {
			return err
		}
		m.logger.Warn("schema is dirty, retrying migration",
			"dirty_version", version,
			"forced_version", prev,
		)
		if err := m.migrate.Force(prev); err != nil {
			return fmt.Errorf("failed to clear dirty version: %w", err)
		}
	}

	if err := m.migrate.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			m.logger.Info("schema up to date", "version", version)
			return nil
		}
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	newVersion, _, _ := m.migrate.Version()
	m.logger.Info("schema migrated", "version", newVersion)
	return nil
}

// previousVersion returns the version preceding version in the source, or
// migrate.NilVersion when version is the first migration.
func (m *Migrator) previousVersion(version uint) (int, error) {
	prev, err := m.source.Prev(version)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return database.NilVersion, nil
	case err != nil:
		return 0, fmt.Errorf("failed to find version before %d: %w", version, err)
	}

	const maxInt = int(^uint(0) >> 1)
	if prev > uint(maxInt) {
		return 0, fmt.Errorf("schema version out of range: %d", prev)
	}
	return int(prev), nil
}

// Down rolls back one migration.
func (m *Migrator) Down() error {
	if err := m.migrate.Steps(-1); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			m.logger.Info("nothing to roll back")
			return nil
		}
		return fmt.Errorf("failed to roll back: %w", err)
	}

	version, _, _ := m.migrate.Version()
	m.logger.Info("schema rolled back", "version", version)
	return nil
}

// Version reports the applied version. A fresh database reports 0.
func (m *Migrator) Version() (uint, bool, error) {
	version, dirty, err := m.migrate.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

func (m *Migrator) Close() error {
	sourceErr, dbErr := m.migrate.Close()
	if sourceErr != nil {
		return fmt.Errorf("failed to close migration source: %w", sourceErr)
	}
	if dbErr != nil {
		return fmt.Errorf("failed to close migration database: %w", dbErr)
	}
	return nil
}
