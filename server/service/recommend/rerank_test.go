package recommend

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ai "github.com/hrygo/likewise/plugin/ai"
	"github.com/hrygo/likewise/server/retrieval"
	"github.com/hrygo/likewise/store"
)

type stubReranker struct {
	name    string
	enabled bool
	results []ai.RerankResult
	err     error

	calls int
	query string
	docs  []ai.RerankDocument
}

func (s *stubReranker) Name() string    { return s.name }
func (s *stubReranker) IsEnabled() bool { return s.enabled }
func (s *stubReranker) Rerank(ctx context.Context, query string, docs []ai.RerankDocument, topN int) ([]ai.RerankResult, error) {
	s.calls++
	s.query = query
	s.docs = docs
	if _, ok := ctx.Deadline(); !ok {
		return nil, errors.New("missing deadline")
	}
	return s.results, s.err
}

var fixedNow = func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) }

func rerankCandidates() []*Candidate {
	return []*Candidate{
		{Candidate: &retrieval.Candidate{ID: "old", FusedScore: 0.03, Item: &store.Item{ID: "old", Title: "Old", Popularity: 50, Year: intPtr(1924)}}},
		{Candidate: &retrieval.Candidate{ID: "new", FusedScore: 0.03, Item: &store.Item{ID: "new", Title: "New", Popularity: 50, Year: intPtr(2024)}}},
		{Candidate: &retrieval.Candidate{ID: "hit", FusedScore: 0.02, Item: &store.Item{ID: "hit", Title: "Hit", Popularity: 90}}},
	}
}

func TestHeuristicScore(t *testing.T) {
	c := &Candidate{Candidate: &retrieval.Candidate{FusedScore: 0.1, Item: &store.Item{Popularity: 40, Year: intPtr(2014)}}}
	assert.InDelta(t, 0.1+0.4-0.01, HeuristicScore(c, 2024), 1e-12)

	c.Item.Year = nil
	assert.InDelta(t, 0.5, HeuristicScore(c, 2024), 1e-12)
}

func TestReranker_HeuristicOnly(t *testing.T) {
	out := NewReranker(nil, fixedNow).Rerank(context.Background(), "q", rerankCandidates(), RerankOptions{})

	assert.Equal(t, []string{"hit", "new", "old"}, candidateIDs(out))
	for _, c := range out {
		require.NotNil(t, c.RerankScore)
	}
	assert.InDelta(t, 0.03+0.5-0.1, *out[2].RerankScore, 1e-12)
}

func TestReranker_ChainFallsThrough(t *testing.T) {
	failing := &stubReranker{name: "primary", enabled: true, err: errors.New("503")}
	disabled := &stubReranker{name: "disabled", enabled: false}
	empty := &stubReranker{name: "empty", enabled: true}
	scoring := &stubReranker{name: "secondary", enabled: true, results: []ai.RerankResult{
		{ID: "old", Score: 0.99},
		{ID: "unknown", Score: 0.5},
	}}

	r := NewReranker([]ai.RerankerService{failing, disabled, empty, scoring}, fixedNow)
	out := r.Rerank(context.Background(), "q", rerankCandidates(), RerankOptions{})

	assert.Equal(t, 1, failing.calls)
	assert.Equal(t, 0, disabled.calls)
	assert.Equal(t, 1, empty.calls)
	assert.Equal(t, 1, scoring.calls)

	// Only "old" is overwritten; the rest keep their heuristic score.
	assert.Equal(t, []string{"old", "hit", "new"}, candidateIDs(out))
	assert.Equal(t, 0.99, *out[0].RerankScore)
	assert.InDelta(t, 0.02+0.9, *out[1].RerankScore, 1e-12)
}

func TestReranker_AllServicesFailKeepsHeuristic(t *testing.T) {
	r := NewReranker([]ai.RerankerService{
		&stubReranker{name: "a", enabled: true, err: errors.New("down")},
		&stubReranker{name: "b", enabled: true, err: context.DeadlineExceeded},
	}, fixedNow)

	out := r.Rerank(context.Background(), "q", rerankCandidates(), RerankOptions{})
	assert.Equal(t, []string{"hit", "new", "old"}, candidateIDs(out))
}

func TestReranker_CapsDocuments(t *testing.T) {
	var candidates []*Candidate
	for i := 0; i < 150; i++ {
		id := string(rune('a'+i%26)) + strings.Repeat("x", i/26)
		candidates = append(candidates, &Candidate{Candidate: &retrieval.Candidate{ID: id, Item: &store.Item{ID: id, Title: id}}})
	}
	svc := &stubReranker{name: "s", enabled: true}
	NewReranker([]ai.RerankerService{svc}, fixedNow).Rerank(context.Background(), "q", candidates, RerankOptions{TopK: 500})
	assert.Len(t, svc.docs, 100)

	NewReranker([]ai.RerankerService{svc}, fixedNow).Rerank(context.Background(), "q", candidates, RerankOptions{TopK: 20})
	assert.Len(t, svc.docs, 20)
}

func TestReranker_SendsEnhancedQuery(t *testing.T) {
	svc := &stubReranker{name: "s", enabled: true}
	anchor := &store.Item{
		Title:    "Inception",
		Synopsis: strings.Repeat("dream ", 100),
		Genres:   []string{"Science Fiction", "Thriller", "Action", "Drama"},
		Creators: []string{"Christopher Nolan"},
	}
	NewReranker([]ai.RerankerService{svc}, fixedNow).Rerank(context.Background(), "inception", rerankCandidates(), RerankOptions{
		Anchor: anchor,
		Locale: "fr",
	})

	lines := strings.Split(svc.query, "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "Inception", lines[0])
	assert.Len(t, []rune(lines[1]), 300)
	assert.Equal(t, "Genres: Science Fiction, Thriller, Action", lines[2])
	assert.Equal(t, "Creators: Christopher Nolan", lines[3])
	assert.Equal(t, "Locale: fr", lines[4])

	require.Len(t, svc.docs, 3)
	assert.Equal(t, "old", svc.docs[0].ID)
	assert.Equal(t, "Old", svc.docs[0].Text)
	assert.Equal(t, map[string]any{"type": "", "popularity": 50.0, "year": 1924}, svc.docs[0].Metadata)
}

func TestReranker_DocumentsFollowFrontLoadedOrder(t *testing.T) {
	candidates := []*Candidate{
		{Candidate: &retrieval.Candidate{ID: "popular", FusedScore: 0.03, Item: &store.Item{ID: "popular", Title: "Popular", Popularity: 95}}},
		{Candidate: &retrieval.Candidate{ID: "semantic", FusedScore: 0.02, VectorScore: floatPtr(0.9), Item: &store.Item{ID: "semantic", Title: "Semantic", Popularity: 5}}},
	}
	svc := &stubReranker{name: "s", enabled: true, results: []ai.RerankResult{{ID: "semantic", Score: 0.8}}}

	out := NewReranker([]ai.RerankerService{svc}, fixedNow).Rerank(context.Background(), "q", frontLoadSemantic(candidates), RerankOptions{TopK: 1})

	require.Len(t, svc.docs, 1)
	assert.Equal(t, "semantic", svc.docs[0].ID)
	// popular keeps its heuristic 0.03 + 0.95.
	assert.Equal(t, []string{"popular", "semantic"}, candidateIDs(out))
	assert.Equal(t, 0.8, *out[1].RerankScore)
}

func TestEnhancedQuery_WithoutAnchor(t *testing.T) {
	assert.Equal(t, "space opera", EnhancedQuery("  space opera ", nil, ""))
}
