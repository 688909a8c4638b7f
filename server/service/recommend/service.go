package recommend

import (
	"context"
	"log/slog"
	"time"

	ai "github.com/hrygo/likewise/plugin/ai"
	"github.com/hrygo/likewise/plugin/ai/metrics"
	"github.com/hrygo/likewise/plugin/ai/timeout"
	"github.com/hrygo/likewise/plugin/ai/tokenizer"
	"github.com/hrygo/likewise/plugin/catalog"
	"github.com/hrygo/likewise/server/internal/observability"
	"github.com/hrygo/likewise/server/retrieval"
	"github.com/hrygo/likewise/store"
)

const (
	// FrontLoadVectorMin moves strong semantic matches ahead of reranking.
	FrontLoadVectorMin = 0.3
	// candidateMultiplier sizes each retrieval relative to the items still needed.
	candidateMultiplier = 4
	minCandidatePool    = 40
	maxCandidatePool    = 200
)

// Store is the read access the service needs.
type Store interface {
	retrieval.Searcher
	SeedStore
	RandomSample(ctx context.Context, opts *store.RandomSampleOptions) ([]*store.Item, error)
}

// Service builds recommendations.
type Service struct {
	store     Store
	seeds     *SeedResolver
	retriever *retrieval.CandidateRetriever
	reranker  *Reranker
	weights   Weights
	lambda    float64
	logger    *slog.Logger
}

// Option configures a Service.
type Option func(*serviceOptions)

type serviceOptions struct {
	rerankers []ai.RerankerService
	providers []catalog.Provider
	weights   Weights
	lambda    float64
	now       func() time.Time
	logger    *slog.Logger
}

// WithRerankers sets the external reranker chain, in fallback order.
func WithRerankers(chain ...ai.RerankerService) Option {
	return func(o *serviceOptions) { o.rerankers = chain }
}

// WithCatalogProviders sets the catalogs consulted for unknown titles.
func WithCatalogProviders(providers ...catalog.Provider) Option {
	return func(o *serviceOptions) { o.providers = providers }
}

// WithWeights overrides the combined-score weights.
func WithWeights(w Weights) Option {
	return func(o *serviceOptions) { o.weights = w }
}

// WithLambda overrides the MMR trade-off.
func WithLambda(lambda float64) Option {
	return func(o *serviceOptions) { o.lambda = lambda }
}

// WithClock sets the clock used by the heuristic reranker.
func WithClock(now func() time.Time) Option {
	return func(o *serviceOptions) { o.now = now }
}

// WithLogger sets the base logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *serviceOptions) { o.logger = logger }
}

// NewService creates a recommendation service. embedder may be nil, in
// which case only lexical retrieval is used.
func NewService(st Store, embedder ai.EmbeddingService, opts ...Option) *Service {
	o := &serviceOptions{
		weights: DefaultWeights(),
		lambda:  DefaultLambda,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return &Service{
		store:     st,
		seeds:     NewSeedResolver(st, embedder, o.providers...),
		retriever: retrieval.NewCandidateRetriever(st),
		reranker:  NewReranker(o.rerankers, o.now),
		weights:   o.weights,
		lambda:    o.lambda,
		logger:    o.logger,
	}
}

// Normalize fills request defaults: limit 10 clamped to [1, 100], and
// random mode when there is no query to search for.
func Normalize(req *RecommendationRequest) *RecommendationRequest {
	n := *req
	switch {
	case n.Limit <= 0:
		n.Limit = DefaultLimit
	case n.Limit > MaxLimit:
		n.Limit = MaxLimit
	}
	if n.Mode == "" {
		n.Mode = ModeSearch
	}
	if n.Mode == ModeSearch && tokenizer.Fold(n.Query) == "" {
		n.Mode = ModeRandom
	}
	return &n
}

// BuildRecommendations runs the pipeline for one request. It never fails:
// every error degrades to fewer items.
func (s *Service) BuildRecommendations(ctx context.Context, req *RecommendationRequest) *RecommendationResult {
	req = Normalize(req)
	reqCtx := observability.NewRequestContext(s.logger, string(req.Mode))
	ctx = observability.WithRequestContext(ctx, reqCtx)
	ctx, cancel := context.WithTimeout(ctx, timeout.RequestTimeout)
	defer cancel()

	var result *RecommendationResult
	if req.Mode == ModeRandom {
		result = s.buildRandom(ctx, req, reqCtx)
	} else {
		result = s.buildSearch(ctx, req, reqCtx)
	}

	outcome := "full"
	switch {
	case len(result.Items) == 0:
		outcome = "empty"
	case len(result.Items) < req.Limit:
		outcome = "short"
	}
	metrics.RecommendationRequests.WithLabelValues(string(req.Mode), outcome).Inc()
	metrics.RecommendationDuration.WithLabelValues(string(req.Mode)).Observe(reqCtx.Duration().Seconds())

	reqCtx.Info(ctx, "Recommendations built",
		slog.Int("items", len(result.Items)),
		slog.Int("relaxations", result.Debug.Relaxations),
		slog.Int("total_candidates", result.Debug.TotalCandidates),
		slog.Int64(observability.LogFieldDuration, reqCtx.DurationMs()),
	)
	return result
}

// buildRandom samples matching items; randomness is the store's.
func (s *Service) buildRandom(ctx context.Context, req *RecommendationRequest, reqCtx *observability.RequestContext) *RecommendationResult {
	result := &RecommendationResult{Items: []*store.Item{}}
	items, err := s.store.RandomSample(ctx, &store.RandomSampleOptions{
		Filters: req.Filters(),
		Limit:   req.Limit,
	})
	if err != nil {
		reqCtx.Warn(ctx, "Random sample failed", slog.String("error", err.Error()))
		return result
	}

	seen := make(map[string]bool, len(items))
	for _, item := range items {
		if len(result.Items) >= req.Limit {
			break
		}
		if item == nil || seen[item.ID] {
			continue
		}
		seen[item.ID] = true
		result.Items = append(result.Items, item)
	}
	result.Debug.TotalCandidates = len(seen)
	return result
}

// selection is the running result of a search request.
type selection struct {
	items      []*store.Item
	ids        map[string]bool
	franchises map[string]bool
}

func newSelection() *selection {
	return &selection{
		items:      []*store.Item{},
		ids:        map[string]bool{},
		franchises: map[string]bool{},
	}
}

// add appends item unless its id, or with uniqueFranchise its franchise,
// is already present.
func (sel *selection) add(item *store.Item, uniqueFranchise bool) bool {
	if sel.ids[item.ID] {
		return false
	}
	key := franchiseKey(item)
	if uniqueFranchise && sel.franchises[key] {
		return false
	}
	sel.ids[item.ID] = true
	sel.franchises[key] = true
	sel.items = append(sel.items, item)
	return true
}

func (s *Service) buildSearch(ctx context.Context, req *RecommendationRequest, reqCtx *observability.RequestContext) *RecommendationResult {
	desired := req.Limit
	base := req.Filters()

	seed, err := s.seeds.ResolveSeed(ctx, req.Query, base)
	if err != nil {
		reqCtx.Error(ctx, "Embedding misconfigured, semantic search disabled", err)
	}
	anchor := seed.Anchor
	if anchor != nil {
		if res := s.seeds.EnrichPoster(ctx, anchor); res.Err != nil {
			reqCtx.Debug(ctx, "Poster enrichment skipped", slog.String("error", res.Err.Error()))
		}
	}
	excluded := newAnchorFilter(anchor)

	result := &RecommendationResult{Anchor: seed.AnchorItem()}
	sel := newSelection()
	seen := map[string]bool{}

	steps := BuildRelaxations(base)
	for i, filters := range steps {
		if len(sel.items) >= desired {
			break
		}
		if i > 0 {
			result.Debug.Relaxations++
		}
		need := desired - len(sel.items)
		stepAttrs := []slog.Attr{
			slog.Int(observability.LogFieldStep, i),
			slog.String(observability.LogFieldFilters, filters.Key()),
		}

		retrieved, err := s.retriever.Retrieve(ctx, &retrieval.RetrieveOptions{
			Query:     req.Query,
			Embedding: seed.Embedding,
			Filters:   filters,
			Limit:     candidatePoolSize(need),
		})
		if err != nil {
			reqCtx.Warn(ctx, "Retrieval failed, skipping step", append(stepAttrs, slog.String("error", err.Error()))...)
			continue
		}
		candidates := make([]*Candidate, 0, len(retrieved))
		for _, c := range wrapCandidates(retrieved) {
			if excluded.matches(c.Item) {
				continue
			}
			seen[c.ID] = true
			if sel.ids[c.ID] {
				continue
			}
			candidates = append(candidates, c)
		}
		if len(candidates) == 0 {
			reqCtx.Debug(ctx, "No candidates at step", stepAttrs...)
			continue
		}

		picked := s.rankStep(ctx, req, anchor, candidates, need)
		added := 0
		for _, c := range picked {
			if len(sel.items) >= desired {
				break
			}
			if sel.add(c.Item, true) {
				added++
			}
		}
		reqCtx.Debug(ctx, "Relaxation step merged",
			append(stepAttrs,
				slog.Int("candidates", len(candidates)),
				slog.Int("added", added),
				slog.Int("total", len(sel.items)),
			)...,
		)
	}

	minimum := min(MinimumResults, desired)
	if len(sel.items) < minimum && len(steps) > 0 {
		s.backfill(ctx, req, seed, steps[len(steps)-1], excluded, sel, seen, reqCtx)
	}
	if len(sel.items) < minimum {
		reqCtx.Warn(ctx, "Insufficient recommendations",
			slog.Int("items", len(sel.items)),
			slog.Int("minimum", minimum),
		)
	}

	result.Items = sel.items
	result.Debug.TotalCandidates = len(seen)
	metrics.RecommendationRelaxations.Observe(float64(result.Debug.Relaxations))
	metrics.RecommendationCandidates.Observe(float64(len(seen)))
	return result
}

// rankStep turns one step's candidates into an ordered pick list:
// front-load, rerank, score, reserve, diversify, assemble, temporal pass.
func (s *Service) rankStep(ctx context.Context, req *RecommendationRequest, anchor *Anchor, candidates []*Candidate, need int) []*Candidate {
	candidates = frontLoadSemantic(candidates)

	var anchorItem *store.Item
	if anchor != nil {
		anchorItem = anchor.Item
	}
	candidates = s.reranker.Rerank(ctx, req.Query, candidates, RerankOptions{
		Locale: req.Locale,
		Anchor: anchorItem,
		TopK:   timeout.MaxRerankDocuments,
	})

	scoreCandidates(candidates, anchor, s.weights)
	sortCandidates(candidates, byCombined)

	anchorID := ""
	if anchorItem != nil {
		anchorID = anchorItem.ID
	}
	reserved, remainder := ReserveHighRelevance(candidates, anchorID, need)
	diversified := ApplyDiversityWithOptions(remainder, need, DiversityOptions{
		Lambda:       s.lambda,
		BalanceTypes: req.Type == "",
	})

	assembled := make([]*Candidate, 0, len(reserved)+len(diversified))
	assembled = append(assembled, reserved...)
	assembled = append(assembled, diversified...)
	sortCandidates(assembled, byCombined)
	return ApplyTemporalDiversity(assembled)
}

// backfill re-queries the most relaxed filter and fills the remaining
// slots by plain RRF score, deduplicating by id only.
func (s *Service) backfill(ctx context.Context, req *RecommendationRequest, seed *SeedResolution, filters store.RecommendationFilters, excluded anchorFilter, sel *selection, seen map[string]bool, reqCtx *observability.RequestContext) {
	retrieved, err := s.retriever.Retrieve(ctx, &retrieval.RetrieveOptions{
		Query:     req.Query,
		Embedding: seed.Embedding,
		Filters:   filters,
		Limit:     candidatePoolSize(req.Limit),
	})
	if err != nil {
		reqCtx.Warn(ctx, "Backfill retrieval failed", slog.String("error", err.Error()))
		return
	}

	candidates := wrapCandidates(retrieved)
	sortCandidates(candidates, byRRF)
	before := len(sel.items)
	for _, c := range candidates {
		if excluded.matches(c.Item) {
			continue
		}
		seen[c.ID] = true
		if len(sel.items) < req.Limit {
			sel.add(c.Item, false)
		}
	}
	reqCtx.Debug(ctx, "Minimum result backfill applied",
		slog.String(observability.LogFieldFilters, filters.Key()),
		slog.Int("added", len(sel.items)-before),
	)
}

// frontLoadSemantic moves candidates with vector score above
// FrontLoadVectorMin ahead of the rest, keeping relative order.
func frontLoadSemantic(candidates []*Candidate) []*Candidate {
	out := make([]*Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Vector() > FrontLoadVectorMin {
			out = append(out, c)
		}
	}
	for _, c := range candidates {
		if c.Vector() <= FrontLoadVectorMin {
			out = append(out, c)
		}
	}
	return out
}

func candidatePoolSize(need int) int {
	return min(max(need*candidateMultiplier, minCandidatePool), maxCandidatePool)
}

// anchorFilter recognises the anchor among candidates, by id and, for
// anchors that may not share the store's ids, by normalized title and year.
type anchorFilter struct {
	id    string
	title string
	year  *int
}

func newAnchorFilter(anchor *Anchor) anchorFilter {
	if anchor == nil || anchor.Item == nil {
		return anchorFilter{}
	}
	return anchorFilter{
		id:    anchor.Item.ID,
		title: tokenizer.NormalizeKey(anchor.Item.Title),
		year:  anchor.Item.Year,
	}
}

func (f anchorFilter) matches(item *store.Item) bool {
	if item == nil {
		return true
	}
	if f.id != "" && item.ID == f.id {
		return true
	}
	if f.title == "" || tokenizer.NormalizeKey(item.Title) != f.title {
		return false
	}
	if f.year == nil || item.Year == nil {
		return f.year == nil && item.Year == nil
	}
	return *f.year == *item.Year
}
