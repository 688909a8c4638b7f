package recommend

import (
	"math"

	"github.com/hrygo/likewise/plugin/ai/tokenizer"
	"github.com/hrygo/likewise/store"
)

// Boosts are the metadata-overlap signals of a candidate against the anchor.
// Every field is in [0, 1].
type Boosts struct {
	Creator    float64 `json:"creator"`
	Genre      float64 `json:"genre"`
	Tag        float64 `json:"tag"`
	Franchise  float64 `json:"franchise"`
	Synopsis   float64 `json:"synopsis"`
	Year       float64 `json:"year"`
	Popularity float64 `json:"popularity"`
	Rating     float64 `json:"rating"`
	Cast       float64 `json:"cast"`
}

// Weights is the single source of truth for the combined score.
type Weights struct {
	Vector     float64
	Rerank     float64
	Fused      float64
	Creator    float64
	Tag        float64
	Genre      float64
	Franchise  float64
	Synopsis   float64
	Year       float64
	Popularity float64
	Rating     float64
	Cast       float64
}

// DefaultWeights returns the production weights.
func DefaultWeights() Weights {
	return Weights{
		Vector:     0.28,
		Rerank:     0.25,
		Fused:      0.10,
		Creator:    0.18,
		Tag:        0.06,
		Genre:      0.08,
		Franchise:  0.05,
		Synopsis:   0.03,
		Year:       0.015,
		Popularity: 0.015,
		Rating:     0.01,
		Cast:       0.0,
	}
}

// High-relevance reservation thresholds.
const (
	ReserveCreatorMin = 0.19
	ReserveVectorMin  = 0.30
	reserveFloor      = 15
)

var synopsisTokenizer = tokenizer.New(
	tokenizer.WithMinLength(4),
	tokenizer.WithStopWords(
		"about", "after", "again", "against", "also", "among", "another", "around",
		"because", "been", "before", "being", "between", "both", "cannot", "could",
		"does", "doing", "down", "during", "each", "even", "every", "from", "further",
		"have", "having", "here", "himself", "herself", "into", "itself", "just",
		"more", "most", "much", "must", "only", "other", "over", "same", "should",
		"some", "such", "than", "that", "their", "them", "themselves", "then", "there",
		"these", "they", "this", "those", "through", "under", "until", "upon", "very",
		"what", "when", "where", "which", "while", "whom", "with", "within", "without",
		"would", "your", "yours", "will", "story", "film", "series", "book",
	),
)

// normalizedSet returns the NormalizeKey set of values, ignoring blanks.
func normalizedSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		if k := tokenizer.NormalizeKey(v); k != "" {
			set[k] = struct{}{}
		}
	}
	return set
}

func sharedCount(a, b []string) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	left := normalizedSet(a)
	n := 0
	for k := range normalizedSet(b) {
		if _, ok := left[k]; ok {
			n++
		}
	}
	return n
}

// CreatorBoost is the position-weighted overlap of the anchor's creators:
// 1.0 for the first, 0.7 for the second, 0.5 for the rest.
func CreatorBoost(anchor, item *store.Item) float64 {
	if anchor == nil || item == nil || len(anchor.Creators) == 0 || len(item.Creators) == 0 {
		return 0
	}
	theirs := normalizedSet(item.Creators)
	seen := map[string]struct{}{}
	var matched, total float64
	for _, creator := range anchor.Creators {
		key := tokenizer.NormalizeKey(creator)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		w := 0.5
		switch len(seen) {
		case 0:
			w = 1.0
		case 1:
			w = 0.7
		}
		seen[key] = struct{}{}
		total += w
		if _, ok := theirs[key]; ok {
			matched += w
		}
	}
	if total == 0 {
		return 0
	}
	return matched / total
}

// GenreBoost maps the shared genre count to {0, 0.4, 0.7, 1.0}.
func GenreBoost(anchor, item *store.Item) float64 {
	if anchor == nil || item == nil {
		return 0
	}
	switch n := sharedCount(anchor.Genres, item.Genres); {
	case n >= 3:
		return 1.0
	case n == 2:
		return 0.7
	case n == 1:
		return 0.4
	default:
		return 0
	}
}

// TagBoost maps the shared tag count to {0, 0.3, 0.5, 0.8, 1.0}.
func TagBoost(anchor, item *store.Item) float64 {
	if anchor == nil || item == nil {
		return 0
	}
	switch n := sharedCount(anchor.Tags, item.Tags); {
	case n >= 5:
		return 1.0
	case n >= 3:
		return 0.8
	case n == 2:
		return 0.5
	case n == 1:
		return 0.3
	default:
		return 0
	}
}

// FranchiseBoost is 1 when both items carry the same normalized franchise key.
func FranchiseBoost(anchor, item *store.Item) float64 {
	if anchor == nil || item == nil {
		return 0
	}
	a := tokenizer.NormalizeKey(anchor.FranchiseKey)
	if a == "" || a != tokenizer.NormalizeKey(item.FranchiseKey) {
		return 0
	}
	return 1
}

// SynopsisBoost scales the word Jaccard of both synopses from 0 at 0.15 to
// 1 at 0.6. Words shorter than four letters and stop words are ignored.
func SynopsisBoost(anchor, item *store.Item) float64 {
	if anchor == nil || item == nil || anchor.Synopsis == "" || item.Synopsis == "" {
		return 0
	}
	a := synopsisTokenizer.Set(anchor.Synopsis)
	b := synopsisTokenizer.Set(item.Synopsis)
	j := jaccard(a, b)
	switch {
	case j < 0.15:
		return 0
	case j >= 0.6:
		return 1
	default:
		return (j - 0.15) / 0.45
	}
}

// YearBoost rewards release years close to the anchor's.
func YearBoost(anchor, item *store.Item) float64 {
	if anchor == nil || item == nil || anchor.Year == nil || item.Year == nil {
		return 0
	}
	delta := absInt(*anchor.Year - *item.Year)
	switch {
	case delta <= 5:
		return 1.0
	case delta <= 10:
		return 0.5
	case delta <= 15 && *anchor.Year/10 == *item.Year/10:
		return 0.3
	case delta <= 15:
		return 0.2
	default:
		return 0
	}
}

// PopularityBoost rewards popularity close to the anchor's.
func PopularityBoost(anchor, item *store.Item) float64 {
	if anchor == nil || item == nil {
		return 0
	}
	return banded(math.Abs(anchor.Popularity-item.Popularity), [3]float64{20, 40, 60}, [3]float64{1.0, 0.5, 0.2})
}

// RatingBoost rewards ratings close to the anchor's.
func RatingBoost(anchor, item *store.Item) float64 {
	if anchor == nil || item == nil || anchor.Rating == nil || item.Rating == nil {
		return 0
	}
	return banded(math.Abs(*anchor.Rating-*item.Rating), [3]float64{10, 20, 30}, [3]float64{1.0, 0.6, 0.3})
}

// CastBoost is 1 for two or more shared cast members and 0.5 for one.
func CastBoost(anchor, item *store.Item) float64 {
	if anchor == nil || item == nil {
		return 0
	}
	switch n := sharedCount(anchor.Cast, item.Cast); {
	case n >= 2:
		return 1.0
	case n == 1:
		return 0.5
	default:
		return 0
	}
}

// ComputeBoosts evaluates every boost. A nil anchor yields all zeros; a
// transient anchor contributes no popularity signal.
func ComputeBoosts(anchor *Anchor, item *store.Item) Boosts {
	if anchor == nil || anchor.Item == nil || item == nil {
		return Boosts{}
	}
	a := anchor.Item
	b := Boosts{
		Creator:   CreatorBoost(a, item),
		Genre:     GenreBoost(a, item),
		Tag:       TagBoost(a, item),
		Franchise: FranchiseBoost(a, item),
		Synopsis:  SynopsisBoost(a, item),
		Year:      YearBoost(a, item),
		Rating:    RatingBoost(a, item),
		Cast:      CastBoost(a, item),
	}
	if anchor.PopularityKnown {
		b.Popularity = PopularityBoost(a, item)
	}
	return b
}

// CombinedScore is the weighted sum of retrieval, rerank and boost signals.
// When the anchor lists no creators the creator weight moves half to genre
// and half to synopsis.
func CombinedScore(c *Candidate, anchor *Anchor, w Weights) float64 {
	if anchor != nil && anchor.Item != nil && len(anchor.Item.Creators) == 0 {
		w.Genre += w.Creator / 2
		w.Synopsis += w.Creator / 2
		w.Creator = 0
	}
	var rerank float64
	if c.RerankScore != nil {
		rerank = *c.RerankScore
	}
	b := c.Boosts
	return w.Vector*c.Vector() +
		w.Rerank*rerank +
		w.Fused*c.FusedScore +
		w.Creator*b.Creator +
		w.Tag*b.Tag +
		w.Genre*b.Genre +
		w.Franchise*b.Franchise +
		w.Synopsis*b.Synopsis +
		w.Year*b.Year +
		w.Popularity*b.Popularity +
		w.Rating*b.Rating +
		w.Cast*b.Cast
}

// scoreCandidates computes boosts and the combined score in place.
func scoreCandidates(candidates []*Candidate, anchor *Anchor, w Weights) {
	for _, c := range candidates {
		c.Boosts = ComputeBoosts(anchor, c.Item)
		c.CombinedScore = CombinedScore(c, anchor, w)
	}
}

// ReserveHighRelevance splits candidates into the reserved set, which skips
// diversity filtering, and the remainder. Creator matches are reserved
// first, then strong semantic matches, up to max(15, ceil(desired/2)).
// Input order is kept within each group.
func ReserveHighRelevance(candidates []*Candidate, anchorID string, desired int) (reserved, remainder []*Candidate) {
	limit := max(reserveFloor, int(math.Ceil(float64(desired)*0.5)))
	taken := make(map[string]bool)

	for _, c := range candidates {
		if len(reserved) >= limit {
			break
		}
		if c.ID != anchorID && c.Boosts.Creator >= ReserveCreatorMin {
			reserved = append(reserved, c)
			taken[c.ID] = true
		}
	}
	for _, c := range candidates {
		if len(reserved) >= limit {
			break
		}
		if !taken[c.ID] && c.ID != anchorID && c.Vector() >= ReserveVectorMin {
			reserved = append(reserved, c)
			taken[c.ID] = true
		}
	}
	for _, c := range candidates {
		if !taken[c.ID] && c.ID != anchorID {
			remainder = append(remainder, c)
		}
	}
	return reserved, remainder
}

func banded(delta float64, bounds, values [3]float64) float64 {
	for i, bound := range bounds {
		if delta <= bound {
			return values[i]
		}
	}
	return 0
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for k := range a {
		if _, ok := b[k]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
