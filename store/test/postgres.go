package test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/hrygo/likewise/internal/profile"
	"github.com/hrygo/likewise/store"
	pgdriver "github.com/hrygo/likewise/store/db/postgres"
)

const (
	testUser     = "testuser"
	testPassword = "testpassword"
	// pgvector images ship pg_trgm as a contrib extension.
	testImage = "pgvector/pgvector:pg16"
)

// testDimensions keeps fixture vectors readable.
const testDimensions = 3

// GetPostgresDSN returns a DSN for PostgreSQL testing.
// It uses testcontainers to create a fresh pgvector instance for each test.
func GetPostgresDSN(t *testing.T) string {
	// Check if a custom DSN is provided via environment variable
	if dsn := os.Getenv("POSTGRES_TEST_DSN"); dsn != "" {
		return dsn
	}

	pgContainer, err := postgres.Run(t.Context(),
		testImage,
		postgres.WithDatabase("likewise_test"),
		postgres.WithUsername(testUser),
		postgres.WithPassword(testPassword),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	t.Cleanup(func() {
		if err := pgContainer.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate postgres container: %v", err)
		}
	})

	connStr, err := pgContainer.ConnectionString(t.Context(), "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}
	return connStr
}

// NewTestingStore starts (or reuses) a database, creates the catalog table and
// seeds it with items.
func NewTestingStore(t *testing.T, items ...*store.Item) *store.Store {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container-backed store test in short mode")
	}

	p := &profile.Profile{Mode: "dev", Driver: "postgres", DSN: GetPostgresDSN(t), EmbeddingDimensions: testDimensions}
	driver, err := pgdriver.NewDB(p)
	if err != nil {
		t.Fatalf("failed to create db driver: %v", err)
	}
	ts := store.New(driver, p)
	t.Cleanup(func() {
		_ = ts.Close()
	})
	if err := ts.Migrate(t.Context()); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	db := driver.GetDB()
	if _, err := db.ExecContext(t.Context(), "TRUNCATE item"); err != nil {
		t.Fatalf("failed to reset catalog: %v", err)
	}
	for _, item := range items {
		if err := insertItem(t.Context(), db, item); err != nil {
			t.Fatalf("failed to insert item %s: %v", item.ID, err)
		}
	}

	return ts
}
