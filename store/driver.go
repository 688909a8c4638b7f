package store

import (
	"context"
	"database/sql"
)

// Driver is an interface for store driver.
// Request handling only reads; the embedding backfill is the one writer.
type Driver interface {
	GetDB() *sql.DB
	Close() error

	IsInitialized(ctx context.Context) (bool, error)

	// Item search related methods.
	LexicalSearch(ctx context.Context, opts *LexicalSearchOptions) ([]*ItemWithScore, error)
	VectorSearch(ctx context.Context, opts *VectorSearchOptions) ([]*ItemWithScore, error)
	RandomSample(ctx context.Context, opts *RandomSampleOptions) ([]*Item, error)
	FindSeedByTitle(ctx context.Context, find *FindSeed) (*ItemWithScore, error)

	// Embedding backfill.
	FindItemsWithoutEmbedding(ctx context.Context, find *FindItemsWithoutEmbedding) ([]*Item, error)
	UpdateItemEmbedding(ctx context.Context, update *UpdateItemEmbedding) error
}
