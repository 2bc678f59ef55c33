// Package migrate applies versioned schema migrations before the application
// server starts. Migrations are plain SQL files embedded in the binary, with
// an optional directory override for out-of-band changes.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io"
	"log/slog"

	gomigrate "github.com/golang-migrate/migrate/v4"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file" // file:// source for MigrationsConfig.Dir
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver "pgx"

	"animelens/launchpad/internal/clients"
	"animelens/launchpad/internal/config"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// migrateHandle is the subset of *gomigrate.Migrate used by Migrator.
// Defining an interface here allows test doubles to be injected without a
// live database.
type migrateHandle interface {
	Up() error
	Steps(n int) error
	Version() (uint, bool, error)
	Close() (error, error)
}

// Status describes the current migration state of the database.
type Status struct {
	Version uint `json:"version"`
	Dirty   bool `json:"dirty"`
	// Applied is false on a fresh database with no version recorded yet.
	Applied bool `json:"applied"`
}

// Migrator runs schema migrations against Postgres.
type Migrator struct {
	cfg  config.MigrationsConfig
	dsn  string
	open func() (migrateHandle, error)
}

// New constructs a Migrator. No database connection is opened until one of
// Up, Down or Status is called.
func New(cfg config.MigrationsConfig, pg config.PostgresConfig) *Migrator {
	m := &Migrator{cfg: cfg, dsn: pg.DSN}
	m.open = m.realOpen
	return m
}

// Up applies all pending migrations. A database that is already current is
// not an error. A dirty version (a previously interrupted migration) is.
func (m *Migrator) Up(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	h, err := m.open()
	if err != nil {
		return err
	}
	defer closeHandle(h)

	if err := h.Up(); err != nil {
		if errors.Is(err, gomigrate.ErrNoChange) {
			slog.InfoContext(ctx, "migrations already current")
			return nil
		}
		return fmt.Errorf("applying migrations: %w", err)
	}

	version, _, err := h.Version()
	if err != nil {
		return fmt.Errorf("reading version after migrate: %w", err)
	}
	slog.InfoContext(ctx, "migrations applied", "version", version)
	return nil
}

// Down rolls back the most recent migration.
func (m *Migrator) Down(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	h, err := m.open()
	if err != nil {
		return err
	}
	defer closeHandle(h)

	if err := h.Steps(-1); err != nil {
		if errors.Is(err, gomigrate.ErrNoChange) {
			slog.InfoContext(ctx, "no migrations to roll back")
			return nil
		}
		return fmt.Errorf("rolling back migration: %w", err)
	}

	slog.InfoContext(ctx, "rolled back one migration")
	return nil
}

// Status reports the current schema version.
func (m *Migrator) Status(ctx context.Context) (Status, error) {
	if err := ctx.Err(); err != nil {
		return Status{}, err
	}

	h, err := m.open()
	if err != nil {
		return Status{}, err
	}
	defer closeHandle(h)

	version, dirty, err := h.Version()
	if errors.Is(err, gomigrate.ErrNilVersion) {
		return Status{}, nil
	}
	if err != nil {
		return Status{}, fmt.Errorf("reading migration version: %w", err)
	}

	return Status{Version: version, Dirty: dirty, Applied: true}, nil
}

// realOpen builds a golang-migrate handle over pgx. The source is either the
// embedded FS or, when configured, a migrations directory on disk.
func (m *Migrator) realOpen() (migrateHandle, error) {
	db, err := sql.Open("pgx", clients.NormalizeDSN(m.dsn))
	if err != nil {
		return nil, fmt.Errorf("opening postgres for migrations: %w", err)
	}
	return openWith(db, func() (migrateHandle, error) { return m.buildHandle(db) })
}

// openWith ties the lifetime of db to the handle build: once the handle
// exists its Close owns the connection, but on any build error the connection
// is closed here before the error propagates.
func openWith(db io.Closer, build func() (migrateHandle, error)) (migrateHandle, error) {
	h, err := build()
	if err != nil {
		db.Close() //nolint:errcheck
		return nil, err
	}
	return h, nil
}

func (m *Migrator) buildHandle(db *sql.DB) (migrateHandle, error) {
	driver, err := pgxmigrate.WithInstance(db, &pgxmigrate.Config{
		MigrationsTable: m.cfg.Table,
	})
	if err != nil {
		return nil, fmt.Errorf("building migration driver: %w", err)
	}

	if m.cfg.Dir != "" {
		h, err := gomigrate.NewWithDatabaseInstance("file://"+m.cfg.Dir, "pgx5", driver)
		if err != nil {
			return nil, fmt.Errorf("opening migrations dir %s: %w", m.cfg.Dir, err)
		}
		return h, nil
	}

	src, err := iofs.New(embeddedMigrations, "migrations")
	if err != nil {
		return nil, fmt.Errorf("opening embedded migrations: %w", err)
	}

	h, err := gomigrate.NewWithInstance("iofs", src, "pgx5", driver)
	if err != nil {
		return nil, fmt.Errorf("building migrator: %w", err)
	}
	return h, nil
}

// closeHandle releases both the source and database sides of the handle.
// Close errors are logged, not propagated; the migration outcome has already
// been decided by the time the handle closes.
func closeHandle(h migrateHandle) {
	srcErr, dbErr := h.Close()
	if srcErr != nil {
		slog.Warn("closing migration source", "error", srcErr)
	}
	if dbErr != nil {
		slog.Warn("closing migration database", "error", dbErr)
	}
}
