package db

import (
	"github.com/pkg/errors"

	"github.com/hrygo/likewise/internal/profile"
	"github.com/hrygo/likewise/store"
	"github.com/hrygo/likewise/store/db/postgres"
)

// ============================================================================
// DATABASE SUPPORT POLICY
// ============================================================================
// The catalog is served from PostgreSQL only. Recommendation queries need
// pgvector (semantic search) and pg_trgm (anchor resolution), neither of
// which has an embedded equivalent worth maintaining.
// ============================================================================

// NewDBDriver creates new db driver based on profile.
func NewDBDriver(profile *profile.Profile) (store.Driver, error) {
	var driver store.Driver
	var err error

	switch profile.Driver {
	case "postgres":
		driver, err = postgres.NewDB(profile)
	default:
		return nil, errors.Errorf("unknown db driver %q: only 'postgres' is supported", profile.Driver)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to create db driver")
	}
	return driver, nil
}
