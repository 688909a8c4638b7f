package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Schema bootstrap:
//
// 1. If the item table is missing, apply migration/{driver}/LATEST.sql with
//    the configured embedding dimension, in one transaction.
// 2. In demo mode, apply seed/{driver}/NN__description.sql in name order.
//
// The catalog itself is maintained by the ingestion tooling; the service only
// needs the table, its indexes and the two extensions to exist.

//go:embed migration
var migrationFS embed.FS

//go:embed seed
var seedFS embed.FS

const (
	// SeedFileNameSplit separates the order number from the description in a
	// seed file name, e.g. "01__catalog.sql".
	SeedFileNameSplit = "__"
	// LatestSchemaFileName is the full schema for fresh databases.
	LatestSchemaFileName = "LATEST.sql"
	// SchemaVersion is recorded in schema_version after bootstrap.
	SchemaVersion = "1"

	dimensionsPlaceholder   = "{{EMBEDDING_DIMENSIONS}}"
	defaultSchemaDimensions = 768
	modeDemo                = "demo"
)

// validateSeedFileName checks the "NN__description.sql" convention.
func validateSeedFileName(filename string) error {
	if !strings.Contains(filename, SeedFileNameSplit) {
		return errors.Errorf("invalid seed filename format (missing %s): %s", SeedFileNameSplit, filename)
	}
	parts := strings.SplitN(filename, SeedFileNameSplit, 2)
	if _, err := strconv.Atoi(parts[0]); err != nil {
		return errors.Errorf("seed filename must start with a number: %s", filename)
	}
	return nil
}

// renderSchema substitutes the embedding dimension into the schema template.
func renderSchema(schema string, dimensions int) string {
	if dimensions <= 0 {
		dimensions = defaultSchemaDimensions
	}
	return strings.ReplaceAll(schema, dimensionsPlaceholder, strconv.Itoa(dimensions))
}

// Migrate creates the catalog schema on a fresh database and seeds demo data
// in demo mode. It is a no-op for an initialized database in other modes.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.preMigrate(ctx); err != nil {
		return errors.Wrap(err, "failed to pre-migrate")
	}
	if s.profile.Mode == modeDemo {
		if err := s.seed(ctx); err != nil {
			return errors.Wrap(err, "failed to seed")
		}
	}
	return nil
}

func (s *Store) preMigrate(ctx context.Context) error {
	initialized, err := s.driver.IsInitialized(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to check if database is initialized")
	}
	if initialized {
		return nil
	}

	filePath := s.getMigrationBasePath() + LatestSchemaFileName
	bytes, err := migrationFS.ReadFile(filePath)
	if err != nil {
		return errors.Errorf("failed to read latest schema file: %s", err)
	}

	tx, err := s.driver.GetDB().BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to start transaction")
	}
	defer tx.Rollback()

	slog.Info("initializing new database with latest schema",
		slog.String("file", filePath),
		slog.Int("dimensions", s.profile.EmbeddingDimensions))
	if err := s.execute(ctx, tx, renderSchema(string(bytes), s.profile.EmbeddingDimensions)); err != nil {
		return errors.Errorf("failed to execute SQL file %s, err %s", filePath, err)
	}
	if err := s.execute(ctx, tx, "INSERT INTO schema_version (version) VALUES ('"+SchemaVersion+"') ON CONFLICT DO NOTHING"); err != nil {
		return errors.Wrap(err, "failed to record schema version")
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}
	slog.Info("database initialized successfully", slog.String("schemaVersion", SchemaVersion))
	return nil
}

func (s *Store) getMigrationBasePath() string {
	return fmt.Sprintf("migration/%s/", s.profile.Driver)
}

func (s *Store) getSeedBasePath() string {
	return fmt.Sprintf("seed/%s/", s.profile.Driver)
}

// seed applies the demo catalog. Seed files are idempotent.
func (s *Store) seed(ctx context.Context) error {
	filenames, err := fs.Glob(seedFS, fmt.Sprintf("%s*.sql", s.getSeedBasePath()))
	if err != nil {
		return errors.Wrap(err, "failed to read seed files")
	}
	sort.Strings(filenames)

	tx, err := s.driver.GetDB().BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to start transaction")
	}
	defer tx.Rollback()

	for _, filename := range filenames {
		base := filename[strings.LastIndex(filename, "/")+1:]
		if err := validateSeedFileName(base); err != nil {
			return err
		}
		bytes, err := seedFS.ReadFile(filename)
		if err != nil {
			return errors.Wrapf(err, "failed to read seed file, filename=%s", filename)
		}
		if err := s.execute(ctx, tx, string(bytes)); err != nil {
			return errors.Wrapf(err, "seed error: %s", filename)
		}
	}
	return tx.Commit()
}

// execute runs one or more statements. lib/pq accepts multi-statement
// strings when no arguments are bound.
func (s *Store) execute(ctx context.Context, tx *sql.Tx, stmt string) error {
	if _, err := tx.ExecContext(ctx, stmt); err != nil {
		return errors.Wrap(err, "failed to execute statement")
	}
	return nil
}
