package postgres

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	// Import the PostgreSQL driver.
	_ "github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/hrygo/likewise/internal/profile"
	"github.com/hrygo/likewise/store"
)

// ============================================================================
// POSTGRESQL SUPPORT
// ============================================================================
// The catalog lives in a single `item` table. Required extensions:
// - pgvector (`vector` column, `<=>` cosine distance)
// - pg_trgm  (`similarity()` for anchor resolution)
// Full-text ranking uses the built-in 'simple' configuration so titles in
// any language tokenize the same way.
// ============================================================================

type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile == nil {
		return nil, errors.New("profile is nil")
	}

	db, err := sql.Open("postgres", profile.DSN)
	if err != nil {
		slog.Error("failed to open database", slog.String("error", err.Error()))
		return nil, errors.Wrap(err, "failed to open database")
	}

	// Read-only workload: each request issues at most three concurrent queries.
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(15 * time.Minute)

	if err := db.Ping(); err != nil {
		slog.Error("failed to ping database", slog.String("error", err.Error()))
		return nil, errors.Wrap(err, "failed to ping database")
	}

	return NewDBWithConn(db, profile), nil
}

// NewDBWithConn wraps an already opened connection pool.
func NewDBWithConn(db *sql.DB, profile *profile.Profile) store.Driver {
	return &DB{
		db:      db,
		profile: profile,
	}
}

func (d *DB) GetDB() *sql.DB {
	return d.db
}

func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) IsInitialized(ctx context.Context) (bool, error) {
	var exists bool
	err := d.db.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_catalog = current_database() AND table_name = 'item' AND table_type = 'BASE TABLE')").Scan(&exists)
	if err != nil {
		return false, errors.Wrap(err, "failed to check if database is initialized")
	}
	return exists, nil
}
