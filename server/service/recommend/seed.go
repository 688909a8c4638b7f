package recommend

import (
	"context"
	"log/slog"
	"net/url"
	"strings"

	"github.com/pkg/errors"

	ai "github.com/hrygo/likewise/plugin/ai"
	"github.com/hrygo/likewise/plugin/ai/metrics"
	"github.com/hrygo/likewise/plugin/ai/timeout"
	"github.com/hrygo/likewise/plugin/catalog"
	"github.com/hrygo/likewise/server/internal/observability"
	"github.com/hrygo/likewise/store"
)

// SeedMinSimilarity is the trigram similarity a stored title needs to anchor a query.
const SeedMinSimilarity = 0.35

// SeedStore finds stored anchors.
type SeedStore interface {
	FindSeedByTitle(ctx context.Context, find *store.FindSeed) (*store.ItemWithScore, error)
}

// SeedResolver finds or synthesizes the anchor of a query.
type SeedResolver struct {
	store     SeedStore
	embedder  ai.EmbeddingService
	providers []catalog.Provider
}

// NewSeedResolver creates a resolver. Providers are tried in order.
func NewSeedResolver(st SeedStore, embedder ai.EmbeddingService, providers ...catalog.Provider) *SeedResolver {
	return &SeedResolver{
		store:     st,
		embedder:  embedder,
		providers: providers,
	}
}

// ResolveSeed resolves query to an anchor and an embedding, in order of
// preference: a stored title match, an external catalog match, and finally
// the query text alone. Network and store failures degrade to the next
// option. The only error returned wraps ai.ErrDimensionMismatch, which
// signals misconfiguration; the resolution is still usable without an
// embedding in that case.
func (r *SeedResolver) ResolveSeed(ctx context.Context, query string, filters store.RecommendationFilters) (*SeedResolution, error) {
	logger := observability.LoggerFromContext(ctx)
	query = strings.TrimSpace(query)

	if anchor := r.findStored(ctx, query, filters.Type, logger); anchor != nil {
		metrics.SeedResolutions.WithLabelValues("store").Inc()
		embedding := anchor.Item.Embedding
		if len(embedding) == 0 {
			var err error
			embedding, err = r.embed(ctx, anchor.Item.EmbeddingText(), logger)
			if err != nil {
				return &SeedResolution{Anchor: anchor}, err
			}
		}
		return &SeedResolution{Embedding: embedding, Anchor: anchor}, nil
	}

	if anchor := r.findInCatalogs(ctx, query, filters.Type, logger); anchor != nil {
		metrics.SeedResolutions.WithLabelValues("catalog").Inc()
		embedding, err := r.embed(ctx, anchor.Item.EmbeddingText(), logger)
		return &SeedResolution{Embedding: embedding, Anchor: anchor}, err
	}

	metrics.SeedResolutions.WithLabelValues("query").Inc()
	embedding, err := r.embed(ctx, query, logger)
	return &SeedResolution{Embedding: embedding}, err
}

func (r *SeedResolver) findStored(ctx context.Context, query string, itemType store.ItemType, logger *slog.Logger) *Anchor {
	if r.store == nil || query == "" {
		return nil
	}
	hit, err := r.store.FindSeedByTitle(ctx, &store.FindSeed{
		Query:         query,
		Type:          itemType,
		MinSimilarity: SeedMinSimilarity,
	})
	if err != nil {
		logger.WarnContext(ctx, "Stored seed lookup failed", "error", err)
		return nil
	}
	if hit == nil || hit.Item == nil {
		return nil
	}
	return &Anchor{Item: hit.Item.Clone(), Score: 1, PopularityKnown: true}
}

func (r *SeedResolver) findInCatalogs(ctx context.Context, query string, itemType store.ItemType, logger *slog.Logger) *Anchor {
	if query == "" {
		return nil
	}
	for _, p := range r.providers {
		item, err := func() (*store.Item, error) {
			ctx, cancel := context.WithTimeout(ctx, timeout.CatalogTimeout)
			defer cancel()
			return p.SearchTop(ctx, query, itemType)
		}()
		if err != nil {
			logger.WarnContext(ctx, "Catalog lookup failed",
				"provider", p.Name(),
				"error", err,
			)
			continue
		}
		if item != nil {
			item = item.Clone()
			if item.Source == "" {
				item.Source = p.Name()
			}
			return &Anchor{Item: item, Score: 0, PopularityKnown: false}
		}
	}
	return nil
}

// embed returns an empty embedding on provider failure. Only a dimension
// mismatch is reported.
func (r *SeedResolver) embed(ctx context.Context, text string, logger *slog.Logger) ([]float32, error) {
	if r.embedder == nil || strings.TrimSpace(text) == "" {
		return nil, nil
	}
	vec, err := r.embedder.Embed(ctx, text)
	if err != nil {
		metrics.EmbeddingRequests.WithLabelValues("error").Inc()
		if errors.Is(err, ai.ErrDimensionMismatch) {
			return nil, err
		}
		logger.WarnContext(ctx, "Query embedding failed, semantic search disabled", "error", err)
		return nil, nil
	}
	metrics.EmbeddingRequests.WithLabelValues("ok").Inc()
	return vec, nil
}

// EnrichmentResult is the outcome of a best-effort enrichment. Err is
// informational only and never fails the request.
type EnrichmentResult struct {
	Updated bool
	Err     error
}

// EnrichPoster replaces a missing or malformed anchor poster using the
// catalog the anchor came from, when that catalog can fetch posters.
// On any failure the previous value is kept.
func (r *SeedResolver) EnrichPoster(ctx context.Context, anchor *Anchor) EnrichmentResult {
	if anchor == nil || anchor.Item == nil || IsValidPosterURL(anchor.Item.PosterURL) {
		return EnrichmentResult{}
	}
	item := anchor.Item
	if item.Source == "" || item.SourceID == "" {
		return EnrichmentResult{}
	}

	for _, p := range r.providers {
		if p.Name() != item.Source {
			continue
		}
		fetcher, ok := p.(catalog.PosterFetcher)
		if !ok {
			return EnrichmentResult{}
		}

		ctx, cancel := context.WithTimeout(ctx, timeout.EnrichmentTimeout)
		defer cancel()
		poster, err := fetcher.FetchPoster(ctx, item.SourceID, item.Type)
		if err != nil {
			return EnrichmentResult{Err: errors.Wrapf(err, "fetch poster from %s", p.Name())}
		}
		if !IsValidPosterURL(poster) {
			return EnrichmentResult{Err: errors.Errorf("malformed poster url from %s: %q", p.Name(), poster)}
		}
		item.PosterURL = poster
		return EnrichmentResult{Updated: true}
	}
	return EnrichmentResult{}
}

// IsValidPosterURL reports whether s is an absolute http(s) URL.
func IsValidPosterURL(s string) bool {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "null", "undefined", "none", "n/a":
		return false
	}
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
