// Package store is the control plane's database layer: a pgxpool
// connection pool plus golang-migrate-driven schema migrations,
// following the same wrapper shape the example corpus uses around
// Postgres (parse DSN, build a pool, verify with Ping, expose the pool
// for callers to build their own queries against).
package store

import (
	"context"
	"embed"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a Postgres connection pool for the control plane.
type Store struct {
	pool *pgxpool.Pool
	dsn  string
}

// Open creates a connection pool against dsn and verifies connectivity.
func Open(ctx context.Context, dsn string) (*Store, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("store: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}

	return &Store{pool: pool, dsn: dsn}, nil
}

// Pool returns the underlying pgx pool for building queries.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// Close closes the connection pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ping verifies the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Migrate applies all pending migrations.
func (s *Store) Migrate() error {
	m, err := s.migrateInstance()
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("store: migrate up: %w", err)
	}
	return nil
}

// MigrateDown rolls back the given number of migration steps.
func (s *Store) MigrateDown(steps int) error {
	m, err := s.migrateInstance()
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Steps(-steps); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("store: migrate down: %w", err)
	}
	return nil
}

func (s *Store) migrateInstance() (*migrate.Migrate, error) {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("store: migrations source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, s.dsn)
	if err != nil {
		return nil, fmt.Errorf("store: migrate instance: %w", err)
	}
	return m, nil
}
