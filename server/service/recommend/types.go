// Package recommend builds "more like this" recommendations.
//
// One request runs a synchronous pipeline: seed resolution, hybrid
// retrieval, reranking, boost scoring and diversity selection, repeated
// with progressively looser filters until enough items are collected.
package recommend

import (
	"sort"

	"github.com/hrygo/likewise/server/retrieval"
	"github.com/hrygo/likewise/store"
)

// Mode selects the recommendation strategy.
type Mode string

const (
	// ModeSearch recommends items similar to a query title.
	ModeSearch Mode = "search"
	// ModeRandom samples matching items uniformly.
	ModeRandom Mode = "random"
)

const (
	// DefaultLimit is used when a request sets no limit.
	DefaultLimit = 10
	// MaxLimit is the largest accepted limit.
	MaxLimit = 100
	// MinimumResults is the smallest result count the pipeline tries to guarantee.
	MinimumResults = 5
)

// RecommendationRequest is the inbound request.
type RecommendationRequest struct {
	Query   string         `json:"query,omitempty"`
	Mode    Mode           `json:"mode,omitempty"`
	Type    store.ItemType `json:"type,omitempty"`
	YearMin *int           `json:"yearMin,omitempty"`
	YearMax *int           `json:"yearMax,omitempty"`
	PopMin  *float64       `json:"popMin,omitempty"`
	Limit   int            `json:"limit,omitempty"`
	Locale  string         `json:"locale,omitempty"`
}

// Filters returns the base filter set of the request.
func (r *RecommendationRequest) Filters() store.RecommendationFilters {
	return store.RecommendationFilters{
		Type:    r.Type,
		YearMin: r.YearMin,
		YearMax: r.YearMax,
		PopMin:  r.PopMin,
	}
}

// Anchor is the item a query is considered similar to.
type Anchor struct {
	Item *store.Item
	// Score is 1 for a stored match and 0 for a transient catalog match.
	Score float64
	// PopularityKnown is false for transient anchors.
	PopularityKnown bool
}

// SeedResolution is the output of seed resolution.
// Anchor is nil when neither the store nor a catalog matched the query.
type SeedResolution struct {
	Embedding []float32
	Anchor    *Anchor
}

// AnchorItem returns the anchor item or nil.
func (s *SeedResolution) AnchorItem() *store.Item {
	if s == nil || s.Anchor == nil {
		return nil
	}
	return s.Anchor.Item
}

// Debug reports how the result was produced.
type Debug struct {
	Relaxations     int `json:"relaxations"`
	TotalCandidates int `json:"totalCandidates"`
}

// RecommendationResult is the outbound payload. Items never contain the
// anchor, never repeat an id, and repeat a franchise only when the minimum
// result backfill had to.
type RecommendationResult struct {
	Anchor *store.Item   `json:"anchor"`
	Items  []*store.Item `json:"items"`
	Debug  Debug         `json:"debug"`
}

// Candidate is a retrieval candidate plus its request-scoped scoring.
type Candidate struct {
	*retrieval.Candidate
	Boosts        Boosts
	CombinedScore float64
}

func wrapCandidates(in []*retrieval.Candidate) []*Candidate {
	out := make([]*Candidate, len(in))
	for i, c := range in {
		out[i] = &Candidate{Candidate: c}
	}
	return out
}

// sortCandidates sorts by key descending, id ascending.
func sortCandidates(candidates []*Candidate, key func(*Candidate) float64) {
	sort.SliceStable(candidates, func(i, j int) bool {
		ki, kj := key(candidates[i]), key(candidates[j])
		if ki != kj {
			return ki > kj
		}
		return candidates[i].ID < candidates[j].ID
	})
}

func byCombined(c *Candidate) float64 { return c.CombinedScore }

func byRRF(c *Candidate) float64 { return c.RRFScore }

func byRelevance(c *Candidate) float64 { return c.Relevance() }
