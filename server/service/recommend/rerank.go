package recommend

import (
	"context"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	ai "github.com/hrygo/likewise/plugin/ai"
	"github.com/hrygo/likewise/plugin/ai/metrics"
	"github.com/hrygo/likewise/plugin/ai/timeout"
	"github.com/hrygo/likewise/server/internal/observability"
	"github.com/hrygo/likewise/store"
)

const (
	synopsisExcerptRunes  = 300
	documentSynopsisRunes = 500
	topContextItems       = 3
)

// Reranker scores candidates with a heuristic baseline and, when services
// are configured, overrides the top candidates with external relevance.
type Reranker struct {
	chain []ai.RerankerService
	now   func() time.Time
}

// NewReranker creates a reranker over chain. An empty chain means heuristic only.
func NewReranker(chain []ai.RerankerService, now func() time.Time) *Reranker {
	if now == nil {
		now = time.Now
	}
	return &Reranker{chain: chain, now: now}
}

// RerankOptions carries the per-request context of a rerank call.
type RerankOptions struct {
	Locale string
	Anchor *store.Item
	// TopK caps the documents sent to external services (at most 100).
	TopK int
}

// HeuristicScore is fused + popularity/100 − |year − currentYear|/1000.
func HeuristicScore(c *Candidate, currentYear int) float64 {
	score := c.FusedScore + c.Item.Popularity/100
	if c.Item.Year != nil {
		score -= math.Abs(float64(*c.Item.Year-currentYear)) / 1000
	}
	return score
}

// Rerank sets RerankScore on every candidate and returns them sorted by it.
// The first TopK candidates, in the order given, are sent to the external
// services; the first service returning scores wins. Failures fall through
// to the next service and finally to the heuristic order.
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []*Candidate, opts RerankOptions) []*Candidate {
	year := r.now().Year()
	for _, c := range candidates {
		score := HeuristicScore(c, year)
		c.RerankScore = &score
	}
	if len(r.chain) > 0 && len(candidates) > 0 {
		r.applyExternal(ctx, query, candidates, opts)
	}
	sortCandidates(candidates, byRelevance)
	return candidates
}

// applyExternal overwrites RerankScore for the ids scored by the first
// service that answers.
func (r *Reranker) applyExternal(ctx context.Context, query string, candidates []*Candidate, opts RerankOptions) {
	logger := observability.LoggerFromContext(ctx)

	topK := opts.TopK
	if topK <= 0 || topK > timeout.MaxRerankDocuments {
		topK = timeout.MaxRerankDocuments
	}
	docs := make([]ai.RerankDocument, 0, min(topK, len(candidates)))
	for _, c := range candidates[:min(topK, len(candidates))] {
		docs = append(docs, rerankDocument(c.Item))
	}
	enhanced := EnhancedQuery(query, opts.Anchor, opts.Locale)

	for _, svc := range r.chain {
		if !svc.IsEnabled() {
			continue
		}
		results, err := func() ([]ai.RerankResult, error) {
			ctx, cancel := context.WithTimeout(ctx, timeout.RerankTimeout)
			defer cancel()
			return svc.Rerank(ctx, enhanced, docs, len(docs))
		}()
		if err != nil {
			metrics.RerankerRequests.WithLabelValues(svc.Name(), "error").Inc()
			logger.WarnContext(ctx, "Reranker failed, trying next",
				"service", svc.Name(),
				"error", err,
			)
			continue
		}
		if len(results) == 0 {
			metrics.RerankerRequests.WithLabelValues(svc.Name(), "empty").Inc()
			logger.DebugContext(ctx, "Reranker returned no scores", "service", svc.Name())
			continue
		}

		metrics.RerankerRequests.WithLabelValues(svc.Name(), "scored").Inc()
		scores := make(map[string]float64, len(results))
		for _, res := range results {
			scores[res.ID] = res.Score
		}
		for _, c := range candidates {
			if s, ok := scores[c.ID]; ok {
				c.RerankScore = &s
			}
		}
		logger.DebugContext(ctx, "Applied external rerank",
			"service", svc.Name(),
			"scored", len(scores),
		)
		return
	}
}

// EnhancedQuery describes the anchor for a cross-encoder: title, a synopsis
// excerpt, top genres, top creators and the locale. Without an anchor the
// raw query is used.
func EnhancedQuery(query string, anchor *store.Item, locale string) string {
	var parts []string
	if anchor == nil {
		parts = append(parts, strings.TrimSpace(query))
	} else {
		parts = append(parts, anchor.Title)
		if anchor.Synopsis != "" {
			parts = append(parts, truncateRunes(anchor.Synopsis, synopsisExcerptRunes))
		}
		if len(anchor.Genres) > 0 {
			parts = append(parts, "Genres: "+strings.Join(anchor.Genres[:min(topContextItems, len(anchor.Genres))], ", "))
		}
		if len(anchor.Creators) > 0 {
			parts = append(parts, "Creators: "+strings.Join(anchor.Creators[:min(topContextItems, len(anchor.Creators))], ", "))
		}
	}
	if locale != "" {
		parts = append(parts, "Locale: "+locale)
	}
	return strings.Join(parts, "\n")
}

func rerankDocument(item *store.Item) ai.RerankDocument {
	text := item.Title
	if item.Synopsis != "" {
		text += "\n" + truncateRunes(item.Synopsis, documentSynopsisRunes)
	}
	if len(item.Genres) > 0 {
		text += "\nGenres: " + strings.Join(item.Genres, ", ")
	}
	meta := map[string]any{
		"type":       string(item.Type),
		"popularity": item.Popularity,
	}
	if item.Year != nil {
		meta["year"] = *item.Year
	}
	if len(item.Genres) > 0 {
		meta["genres"] = item.Genres
	}
	return ai.RerankDocument{ID: item.ID, Text: text, Metadata: meta}
}

func truncateRunes(s string, n int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
