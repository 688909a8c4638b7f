package recommend

import (
	"math"
	"strconv"

	ai "github.com/hrygo/likewise/plugin/ai"
	"github.com/hrygo/likewise/plugin/ai/tokenizer"
	"github.com/hrygo/likewise/plugin/ai/vector"
	"github.com/hrygo/likewise/store"
)

// MMR tuning.
const (
	DefaultLambda       = 0.7
	titleVectorDims     = 128
	yearClosenessWindow = 30.0
	maxConsecutive      = 2
)

// DiversityOptions configures ApplyDiversityWithOptions.
type DiversityOptions struct {
	// Lambda trades relevance (1) against novelty (0). Zero means DefaultLambda.
	Lambda float64
	// BalanceTypes interleaves item types round-robin before MMR.
	BalanceTypes bool
}

// franchiseKey returns the grouping key of an item: its normalized
// franchise key, or its normalized title when it has none.
func franchiseKey(item *store.Item) string {
	if item == nil {
		return ""
	}
	if k := tokenizer.NormalizeKey(item.FranchiseKey); k != "" {
		return "franchise:" + k
	}
	return "title:" + tokenizer.NormalizeKey(item.Title)
}

// DedupeFranchises keeps the highest combined-score candidate of each
// franchise, preserving input order.
func DedupeFranchises(pool []*Candidate) []*Candidate {
	best := make(map[string]*Candidate, len(pool))
	for _, c := range pool {
		key := franchiseKey(c.Item)
		cur, ok := best[key]
		if !ok || c.CombinedScore > cur.CombinedScore ||
			(c.CombinedScore == cur.CombinedScore && c.ID < cur.ID) {
			best[key] = c
		}
	}
	out := make([]*Candidate, 0, len(best))
	for _, c := range pool {
		if best[franchiseKey(c.Item)] == c {
			out = append(out, c)
		}
	}
	return out
}

// mmrRelevance is the relevance used by MMR: the rerank or fused score,
// raised by half the semantic score for strong semantic matches.
func mmrRelevance(c *Candidate) float64 {
	rel := c.Relevance()
	if v := c.Vector(); v > 0.4 {
		rel += 0.5 * v
	}
	return rel
}

// similarity compares two items by genres, title tokens and release year.
type similarity struct {
	titles map[*store.Item][]float32
}

func newSimilarity() *similarity {
	return &similarity{titles: map[*store.Item][]float32{}}
}

func (s *similarity) titleVector(item *store.Item) []float32 {
	if v, ok := s.titles[item]; ok {
		return v
	}
	v := ai.HashEmbed(tokenizer.New().Terms(item.Title), titleVectorDims)
	s.titles[item] = v
	return v
}

func (s *similarity) between(a, b *store.Item) float64 {
	genre := jaccard(normalizedSet(a.Genres), normalizedSet(b.Genres))
	title := math.Max(0, vector.Cosine(s.titleVector(a), s.titleVector(b)))
	return 0.6*genre + 0.15*title + 0.25*yearCloseness(a, b)
}

// yearCloseness is 1 for the same year, falling linearly to 0 at 30 years apart.
func yearCloseness(a, b *store.Item) float64 {
	if a.Year == nil || b.Year == nil {
		return 0
	}
	delta := float64(absInt(*a.Year - *b.Year))
	if delta >= yearClosenessWindow {
		return 0
	}
	return 1 - delta/yearClosenessWindow
}

// MMRSelect greedily picks up to k candidates maximising
// λ·relevance − (1−λ)·max similarity to the already selected set.
// Ties go to the earlier candidate in pool.
func MMRSelect(pool []*Candidate, k int, lambda float64) []*Candidate {
	if k <= 0 || len(pool) == 0 {
		return nil
	}
	if lambda <= 0 || lambda > 1 {
		lambda = DefaultLambda
	}

	sim := newSimilarity()
	remaining := append([]*Candidate{}, pool...)
	relevance := make(map[*Candidate]float64, len(pool))
	for _, c := range pool {
		relevance[c] = mmrRelevance(c)
	}
	// maxSim[c] is the highest similarity of c to any selected candidate.
	maxSim := make(map[*Candidate]float64, len(pool))

	selected := make([]*Candidate, 0, min(k, len(pool)))
	for len(selected) < k && len(remaining) > 0 {
		bestIdx := 0
		bestScore := math.Inf(-1)
		for i, c := range remaining {
			score := relevance[c]
			if len(selected) > 0 {
				score = lambda*relevance[c] - (1-lambda)*maxSim[c]
			}
			if score > bestScore {
				bestIdx, bestScore = i, score
			}
		}

		pick := remaining[bestIdx]
		selected = append(selected, pick)
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
		for _, c := range remaining {
			if s := sim.between(pick.Item, c.Item); s > maxSim[c] {
				maxSim[c] = s
			}
		}
	}
	return selected
}

// balanceTypes interleaves candidates round-robin by type in
// store.ItemTypes order. Unknown types follow in input order.
func balanceTypes(pool []*Candidate) []*Candidate {
	buckets := make(map[store.ItemType][]*Candidate, len(store.ItemTypes))
	var other []*Candidate
	for _, c := range pool {
		if c.Item.Type.IsValid() {
			buckets[c.Item.Type] = append(buckets[c.Item.Type], c)
		} else {
			other = append(other, c)
		}
	}

	out := make([]*Candidate, 0, len(pool))
	for len(out) < len(pool)-len(other) {
		for _, t := range store.ItemTypes {
			if len(buckets[t]) > 0 {
				out = append(out, buckets[t][0])
				buckets[t] = buckets[t][1:]
			}
		}
	}
	return append(out, other...)
}

// ApplyDiversityWithOptions selects desired candidates: franchise dedupe,
// optional type balancing, MMR, then backfill by combined score from the
// deduped pool and finally from the original pool. The result has exactly
// desired items whenever pool holds that many.
func ApplyDiversityWithOptions(pool []*Candidate, desired int, opts DiversityOptions) []*Candidate {
	if desired <= 0 || len(pool) == 0 {
		return nil
	}

	deduped := DedupeFranchises(pool)
	if opts.BalanceTypes {
		deduped = balanceTypes(deduped)
	}
	selected := MMRSelect(deduped, desired, opts.Lambda)

	taken := make(map[string]bool, len(selected))
	for _, c := range selected {
		taken[c.ID] = true
	}
	backfill := func(from []*Candidate) {
		if len(selected) >= desired {
			return
		}
		rest := make([]*Candidate, 0, len(from))
		for _, c := range from {
			if !taken[c.ID] {
				rest = append(rest, c)
			}
		}
		sortCandidates(rest, byCombined)
		for _, c := range rest {
			if len(selected) >= desired {
				return
			}
			selected = append(selected, c)
			taken[c.ID] = true
		}
	}
	backfill(deduped)
	backfill(pool)
	return selected
}

// ApplyTemporalDiversity walks a ranked list and breaks up runs longer than
// two items that share a release year or primary genre by swapping in the
// next item that does not extend either run. The first item never moves.
func ApplyTemporalDiversity(ranked []*Candidate) []*Candidate {
	out := append([]*Candidate{}, ranked...)
	var (
		lastYear, lastGenre string
		yearRun, genreRun   int
	)
	extends := func(c *Candidate) bool {
		y, g := yearKey(c.Item), primaryGenre(c.Item)
		return (y != "" && y == lastYear && yearRun >= maxConsecutive) ||
			(g != "" && g == lastGenre && genreRun >= maxConsecutive)
	}

	for i := range out {
		if extends(out[i]) {
			for j := i + 1; j < len(out); j++ {
				if !extends(out[j]) {
					out[i], out[j] = out[j], out[i]
					yearRun, genreRun = 0, 0
					break
				}
			}
		}

		y, g := yearKey(out[i].Item), primaryGenre(out[i].Item)
		if y != "" && y == lastYear {
			yearRun++
		} else {
			lastYear, yearRun = y, 1
		}
		if g != "" && g == lastGenre {
			genreRun++
		} else {
			lastGenre, genreRun = g, 1
		}
	}
	return out
}

func yearKey(item *store.Item) string {
	if item == nil || item.Year == nil {
		return ""
	}
	return strconv.Itoa(*item.Year)
}

func primaryGenre(item *store.Item) string {
	if item == nil || len(item.Genres) == 0 {
		return ""
	}
	return tokenizer.NormalizeKey(item.Genres[0])
}
