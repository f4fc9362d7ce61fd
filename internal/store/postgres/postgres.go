// Package postgres keeps the stream event log and component status in
// PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/alfredjeanlab/shingolive/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// migrationsTable keeps our schema version apart from other tools sharing
// the database.
const migrationsTable = "shingolive_migrations"

// connectTimeout bounds the initial ping.
const connectTimeout = 10 * time.Second

// PostgresStore is a store.Store on a *sql.DB.
type PostgresStore struct {
	queries
	db *sql.DB
}

var (
	_ store.Store = (*PostgresStore)(nil)
	_ store.Store = (*txStore)(nil)
)

// New connects to databaseURL and migrates the schema to the latest version.
func New(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One writer (the publish path) plus replay, export and pruning readers.
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(2)
	db.SetConnMaxIdleTime(time.Minute)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}
	return NewWithDB(db), nil
}

// NewWithDB wraps a database whose schema is already current.
func NewWithDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{queries: queries{db}, db: db}
}

func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	driver, err := migratepg.WithInstance(db, &migratepg.Config{MigrationsTable: migrationsTable})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migrator: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// RunInTransaction runs fn against a store bound to one transaction. The
// transaction commits when fn returns nil and rolls back otherwise.
func (s *PostgresStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = fn(&txStore{queries{tx}}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// txStore is the store handed to RunInTransaction callbacks.
type txStore struct {
	queries
}

// RunInTransaction joins the enclosing transaction.
func (s *txStore) RunInTransaction(_ context.Context, fn func(tx store.Store) error) error {
	return fn(s)
}

// Close does nothing; the transaction belongs to the outer store.
func (*txStore) Close() error { return nil }
