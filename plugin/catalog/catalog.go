// Package catalog declares the contracts of the external catalog providers
// (movie, series, anime and book databases). Clients live with the
// ingestion tooling; the recommender only consumes these interfaces.
package catalog

import (
	"context"

	"github.com/hrygo/likewise/store"
)

// Provider looks titles up in an external catalog.
type Provider interface {
	// Name matches store.Item.Source for items imported from this catalog.
	Name() string

	// SearchTop returns the best match for query, or nil when the catalog
	// has nothing. itemType may be empty.
	SearchTop(ctx context.Context, query string, itemType store.ItemType) (*store.Item, error)
}

// PosterFetcher is implemented by providers with a cheap detail endpoint.
type PosterFetcher interface {
	// FetchPoster returns the poster URL for an item of this catalog.
	FetchPoster(ctx context.Context, sourceID string, itemType store.ItemType) (string, error)
}
