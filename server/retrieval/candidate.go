package retrieval

import (
	"sort"

	"github.com/hrygo/likewise/store"
)

// Candidate is a per-request wrapper around a catalog item.
// FusedScore is always set; FTSScore and VectorScore are nil when the
// corresponding search did not return the item. Later pipeline stages set
// RerankScore. Candidates are never persisted.
//
// RRFScore is the plain reciprocal-rank score. FusedScore adds the
// semantic-only and both-lists enhancements on top of it, so only RRFScore
// guarantees that a top hit in both lists scores at least as high as
// every single-list hit.
type Candidate struct {
	ID          string
	Item        *store.Item
	FTSScore    *float64
	VectorScore *float64
	RRFScore    float64
	FusedScore  float64
	RerankScore *float64
}

// Relevance returns RerankScore when set, FusedScore otherwise.
func (c *Candidate) Relevance() float64 {
	if c.RerankScore != nil {
		return *c.RerankScore
	}
	return c.FusedScore
}

// Vector returns VectorScore, or 0 when the item was not a semantic hit.
func (c *Candidate) Vector() float64 {
	if c.VectorScore != nil {
		return *c.VectorScore
	}
	return 0
}

// SortByFused sorts candidates by fused score descending, id ascending.
func SortByFused(candidates []*Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].FusedScore != candidates[j].FusedScore {
			return candidates[i].FusedScore > candidates[j].FusedScore
		}
		return candidates[i].ID < candidates[j].ID
	})
}

func floatPtr(v float64) *float64 {
	return &v
}
