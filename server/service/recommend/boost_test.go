package recommend

import (
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/likewise/server/retrieval"
	"github.com/hrygo/likewise/store"
)

type boostFunc func(anchor, item *store.Item) float64

var allBoosts = map[string]boostFunc{
	"creator":    CreatorBoost,
	"genre":      GenreBoost,
	"tag":        TagBoost,
	"franchise":  FranchiseBoost,
	"synopsis":   SynopsisBoost,
	"year":       YearBoost,
	"popularity": PopularityBoost,
	"rating":     RatingBoost,
	"cast":       CastBoost,
}

func TestCreatorBoost(t *testing.T) {
	anchor := &store.Item{Creators: []string{"Lana Wachowski", "Lilly Wachowski", "Joel Silver", "Grant Hill"}}

	tests := []struct {
		name     string
		creators []string
		expected float64
	}{
		{"first only", []string{"lana wachowski"}, 1.0 / 2.7},
		{"first two", []string{"Lilly Wachowski", "Lana Wachowski"}, 1.7 / 2.7},
		{"third and later", []string{"Joel Silver", "Grant Hill"}, 1.0 / 2.7},
		{"all", anchor.Creators, 1.0},
		{"none", []string{"Someone Else"}, 0},
		{"empty", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, CreatorBoost(anchor, &store.Item{Creators: tt.creators}), 1e-9)
		})
	}
}

func TestGenreAndTagBoost(t *testing.T) {
	genres := []string{"Drama", "Crime", "Thriller", "Mystery"}
	tags := []string{"a", "b", "c", "d", "e", "f"}
	anchor := &store.Item{Genres: genres, Tags: tags}

	for shared, expected := range []float64{0, 0.4, 0.7, 1.0, 1.0} {
		item := &store.Item{Genres: append([]string{"Western"}, genres[:shared]...)}
		assert.Equal(t, expected, GenreBoost(anchor, item), "shared genres %d", shared)
	}
	for shared, expected := range []float64{0, 0.3, 0.5, 0.8, 0.8, 1.0, 1.0} {
		item := &store.Item{Tags: tags[:shared]}
		assert.Equal(t, expected, TagBoost(anchor, item), "shared tags %d", shared)
	}

	// Case and accents do not matter.
	assert.Equal(t, 0.4, GenreBoost(&store.Item{Genres: []string{"Comédie"}}, &store.Item{Genres: []string{"comedie"}}))
}

func TestFranchiseBoost(t *testing.T) {
	assert.Equal(t, 1.0, FranchiseBoost(&store.Item{FranchiseKey: "Star Wars"}, &store.Item{FranchiseKey: "star-wars"}))
	assert.Equal(t, 0.0, FranchiseBoost(&store.Item{FranchiseKey: "star wars"}, &store.Item{FranchiseKey: "star trek"}))
	assert.Equal(t, 0.0, FranchiseBoost(&store.Item{}, &store.Item{}))
}

func TestSynopsisBoost(t *testing.T) {
	anchor := &store.Item{Synopsis: "hacker discovers reality simulation controlled machines"}

	assert.Equal(t, 1.0, SynopsisBoost(anchor, &store.Item{Synopsis: anchor.Synopsis}))
	assert.Equal(t, 0.0, SynopsisBoost(anchor, &store.Item{Synopsis: "pastry chef opens bakery"}))
	// Short words and stop words drop out, leaving {hacker, reality, mess}:
	// Jaccard 2/7 against the six anchor words.
	got := SynopsisBoost(anchor, &store.Item{Synopsis: "the hacker and his reality is a mess"})
	assert.InDelta(t, (2.0/7-0.15)/0.45, got, 1e-9)
}

func TestYearBoost(t *testing.T) {
	tests := []struct {
		anchor, item int
		expected     float64
	}{
		{2010, 2010, 1.0},
		{2010, 2015, 1.0},
		{2010, 2019, 0.5},
		{2000, 1990, 0.5},
		{2000, 1987, 0.2},
		{2010, 2025, 0.2},
		{2010, 2026, 0},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d-%d", tt.anchor, tt.item), func(t *testing.T) {
			got := YearBoost(&store.Item{Year: intPtr(tt.anchor)}, &store.Item{Year: intPtr(tt.item)})
			assert.Equal(t, tt.expected, got)
		})
	}
	assert.Equal(t, 0.0, YearBoost(&store.Item{}, &store.Item{Year: intPtr(2000)}))
}

func TestPopularityAndRatingBoost(t *testing.T) {
	for delta, expected := range map[float64]float64{0: 1, 20: 1, 30: 0.5, 40: 0.5, 55: 0.2, 61: 0} {
		got := PopularityBoost(&store.Item{Popularity: 10}, &store.Item{Popularity: 10 + delta})
		assert.Equal(t, expected, got, "popularity delta %v", delta)
	}
	for delta, expected := range map[float64]float64{5: 1, 15: 0.6, 25: 0.3, 31: 0} {
		got := RatingBoost(&store.Item{Rating: floatPtr(50)}, &store.Item{Rating: floatPtr(50 - delta)})
		assert.Equal(t, expected, got, "rating delta %v", delta)
	}
	assert.Equal(t, 0.0, RatingBoost(&store.Item{}, &store.Item{Rating: floatPtr(50)}))
}

func TestCastBoost(t *testing.T) {
	anchor := &store.Item{Cast: []string{"Keanu Reeves", "Carrie-Anne Moss"}}
	assert.Equal(t, 1.0, CastBoost(anchor, &store.Item{Cast: []string{"carrie anne moss", "Keanu Reeves"}}))
	assert.Equal(t, 0.5, CastBoost(anchor, &store.Item{Cast: []string{"Keanu Reeves"}}))
	assert.Equal(t, 0.0, CastBoost(anchor, &store.Item{}))
}

func TestBoosts_BoundsAndMissingFields(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	words := []string{"Drama", "Comedy", "Action", "Nolan", "Kon", "space", "dreams", "heist", "simulation", "memory"}
	pick := func() []string {
		out := make([]string, r.IntN(6))
		for i := range out {
			out[i] = words[r.IntN(len(words))]
		}
		return out
	}
	randomItem := func() *store.Item {
		item := &store.Item{
			Genres:       pick(),
			Tags:         pick(),
			Creators:     pick(),
			Cast:         pick(),
			Popularity:   r.Float64() * 100,
			FranchiseKey: words[r.IntN(len(words))],
		}
		for _, w := range pick() {
			item.Synopsis += w + " "
		}
		if r.IntN(2) == 0 {
			item.Year = intPtr(1950 + r.IntN(75))
			item.Rating = floatPtr(r.Float64() * 100)
		}
		return item
	}

	for i := 0; i < 500; i++ {
		a, b := randomItem(), randomItem()
		for name, fn := range allBoosts {
			v := fn(a, b)
			require.GreaterOrEqual(t, v, 0.0, name)
			require.LessOrEqual(t, v, 1.0, name)
		}
	}

	for name, fn := range allBoosts {
		full := randomItem()
		full.Year = intPtr(2000)
		full.Rating = floatPtr(80)
		assert.Zero(t, fn(nil, full), "%s with nil anchor", name)
		assert.Zero(t, fn(full, nil), "%s with nil item", name)
		if name != "popularity" {
			assert.Zero(t, fn(full, &store.Item{}), "%s with empty item", name)
		}
	}
	assert.Equal(t, Boosts{}, ComputeBoosts(nil, &store.Item{Genres: []string{"Drama"}}))
}

func TestComputeBoosts_TransientAnchorHasNoPopularity(t *testing.T) {
	item := &store.Item{Popularity: 50}
	assert.Equal(t, 1.0, ComputeBoosts(&Anchor{Item: &store.Item{Popularity: 50}, PopularityKnown: true}, item).Popularity)
	assert.Equal(t, 0.0, ComputeBoosts(&Anchor{Item: &store.Item{Popularity: 50}}, item).Popularity)
}

func TestCombinedScore(t *testing.T) {
	w := DefaultWeights()
	c := &Candidate{
		Candidate: &retrieval.Candidate{ID: "x", FusedScore: 0.5, VectorScore: floatPtr(0.8), RerankScore: floatPtr(0.6)},
		Boosts:    Boosts{Creator: 1, Genre: 1, Synopsis: 1},
	}

	withCreators := &Anchor{Item: &store.Item{Creators: []string{"Nolan"}}}
	expected := 0.28*0.8 + 0.25*0.6 + 0.10*0.5 + 0.18 + 0.08 + 0.03
	assert.InDelta(t, expected, CombinedScore(c, withCreators, w), 1e-12)

	// The creator weight moves to genre and synopsis.
	c.Boosts = Boosts{Genre: 1, Synopsis: 1}
	noCreators := &Anchor{Item: &store.Item{}}
	expected = 0.28*0.8 + 0.25*0.6 + 0.10*0.5 + (0.08 + 0.09) + (0.03 + 0.09)
	assert.InDelta(t, expected, CombinedScore(c, noCreators, w), 1e-12)

	// The caller's weights are not modified.
	assert.Equal(t, DefaultWeights(), w)
}

func TestReserveHighRelevance(t *testing.T) {
	mk := func(id string, creator, vec float64) *Candidate {
		return &Candidate{
			Candidate: &retrieval.Candidate{ID: id, VectorScore: floatPtr(vec)},
			Boosts:    Boosts{Creator: creator},
		}
	}
	candidates := []*Candidate{
		mk("vec1", 0, 0.5),
		mk("anchor", 1, 1),
		mk("creator1", 0.2, 0.1),
		mk("plain", 0.1, 0.1),
		mk("creator2", 0.19, 0.9),
	}

	reserved, remainder := ReserveHighRelevance(candidates, "anchor", 10)
	var reservedIDs, remainderIDs []string
	for _, c := range reserved {
		reservedIDs = append(reservedIDs, c.ID)
	}
	for _, c := range remainder {
		remainderIDs = append(remainderIDs, c.ID)
	}
	assert.Equal(t, []string{"creator1", "creator2", "vec1"}, reservedIDs)
	assert.Equal(t, []string{"plain"}, remainderIDs)
}

func TestReserveHighRelevance_Cap(t *testing.T) {
	var candidates []*Candidate
	for i := 0; i < 50; i++ {
		candidates = append(candidates, &Candidate{
			Candidate: &retrieval.Candidate{ID: fmt.Sprintf("c%02d", i), VectorScore: floatPtr(0.9)},
		})
	}

	reserved, remainder := ReserveHighRelevance(candidates, "", 10)
	assert.Len(t, reserved, 15)
	assert.Len(t, remainder, 35)

	reserved, _ = ReserveHighRelevance(candidates, "", 41)
	assert.Len(t, reserved, 21)
}
