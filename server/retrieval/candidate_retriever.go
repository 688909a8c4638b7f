package retrieval

import (
	"context"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/hrygo/likewise/plugin/ai/rag"
	"github.com/hrygo/likewise/plugin/ai/vector"
	"github.com/hrygo/likewise/server/internal/observability"
	"github.com/hrygo/likewise/store"
)

// Fusion tuning constants.
const (
	// ProbeFillRatio triggers the popularity probe when the floored semantic
	// search fills less than this share of the limit.
	ProbeFillRatio = 0.8
	// ProbeMinScore is the semantic score a below-floor item needs to be merged.
	ProbeMinScore = 0.35
	// SemanticOnlyMinScore is the score above which a semantic-only hit is boosted.
	SemanticOnlyMinScore = 0.3
	// SemanticOnlyBoost scales the semantic score added to semantic-only hits.
	SemanticOnlyBoost = 0.1
	// BothListsMultiplier is applied to hits found by both searches.
	BothListsMultiplier = 1.2
)

// Searcher is the part of *store.Store the retriever reads from.
type Searcher interface {
	LexicalSearch(ctx context.Context, opts *store.LexicalSearchOptions) ([]*store.ItemWithScore, error)
	VectorSearch(ctx context.Context, opts *store.VectorSearchOptions) ([]*store.ItemWithScore, error)
}

// CandidateRetriever runs the lexical and semantic searches and fuses them.
type CandidateRetriever struct {
	searcher Searcher
	config   rag.StrategyConfig
}

// RetrieveOptions 检索选项
type RetrieveOptions struct {
	Query     string
	Embedding []float32
	Filters   store.RecommendationFilters
	Limit     int
}

// NewCandidateRetriever 创建候选检索器
func NewCandidateRetriever(searcher Searcher) *CandidateRetriever {
	return &CandidateRetriever{
		searcher: searcher,
		config:   rag.DefaultStrategyConfig(),
	}
}

// Retrieve runs both searches concurrently and returns the fused candidates
// sorted by enhanced fused score. One failing search degrades to the other;
// an error is returned only when every attempted search failed.
func (r *CandidateRetriever) Retrieve(ctx context.Context, opts *RetrieveOptions) ([]*Candidate, error) {
	// 日志携带请求追踪 ID
	logger := observability.LoggerFromContext(ctx)
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}

	doLexical := strings.TrimSpace(opts.Query) != ""
	doVector := !vector.IsZero(opts.Embedding)
	doProbe := doVector && opts.Filters.PopMin != nil

	var (
		lexical, semantic, probe []*store.ItemWithScore
		lexicalErr, vectorErr    error
		g                        errgroup.Group
	)

	// 并行执行全文检索、向量检索与流行度探测
	if doLexical {
		g.Go(func() error {
			lexical, lexicalErr = r.searcher.LexicalSearch(ctx, &store.LexicalSearchOptions{
				Query:   opts.Query,
				Filters: opts.Filters,
				Limit:   limit,
			})
			return nil
		})
	}
	if doVector {
		g.Go(func() error {
			semantic, vectorErr = r.searcher.VectorSearch(ctx, &store.VectorSearchOptions{
				Vector:  opts.Embedding,
				Filters: opts.Filters,
				Limit:   limit,
			})
			return nil
		})
	}
	if doProbe {
		unfloored := opts.Filters
		unfloored.PopMin = nil
		g.Go(func() error {
			var err error
			probe, err = r.searcher.VectorSearch(ctx, &store.VectorSearchOptions{
				Vector:  opts.Embedding,
				Filters: unfloored,
				Limit:   limit,
			})
			if err != nil {
				logger.WarnContext(ctx, "Popularity probe failed",
					"error", err,
				)
				probe = nil
			}
			return nil
		})
	}
	_ = g.Wait()

	if (!doLexical || lexicalErr != nil) && (!doVector || vectorErr != nil) && (doLexical || doVector) {
		return nil, errors.Errorf("all searches failed: lexical=%v, vector=%v", lexicalErr, vectorErr)
	}
	if lexicalErr != nil {
		logger.WarnContext(ctx, "Lexical search failed, using vector only",
			"error", lexicalErr,
		)
		lexical = nil
	}
	if vectorErr != nil {
		logger.WarnContext(ctx, "Vector search failed, using lexical only",
			"error", vectorErr,
		)
		semantic = nil
		probe = nil
	}

	if doProbe && float64(len(semantic)) < ProbeFillRatio*float64(limit) {
		before := len(semantic)
		semantic = mergeProbe(semantic, probe, *opts.Filters.PopMin)
		logger.DebugContext(ctx, "Applied popularity probe",
			"pop_min", *opts.Filters.PopMin,
			"merged", len(semantic)-before,
		)
	}

	candidates := r.fuse(lexical, semantic)

	logger.DebugContext(ctx, "Retrieved candidates",
		"filters", opts.Filters.Key(),
		"lexical", len(lexical),
		"vector", len(semantic),
		"fused", len(candidates),
	)
	return candidates, nil
}

// mergeProbe adds unfloored semantic hits that the popularity floor excluded
// and that clear ProbeMinScore, then re-sorts by score.
func mergeProbe(semantic, probe []*store.ItemWithScore, popMin float64) []*store.ItemWithScore {
	seen := make(map[string]bool, len(semantic))
	for _, hit := range semantic {
		seen[hit.Item.ID] = true
	}
	merged := append([]*store.ItemWithScore{}, semantic...)
	for _, hit := range probe {
		if seen[hit.Item.ID] || hit.Score <= ProbeMinScore || hit.Item.Popularity >= popMin {
			continue
		}
		seen[hit.Item.ID] = true
		merged = append(merged, hit)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].Score != merged[j].Score {
			return merged[i].Score > merged[j].Score
		}
		return merged[i].Item.ID < merged[j].Item.ID
	})
	return merged
}

// fuse applies RRF over the two ranked lists and the score enhancement:
// semantic-only hits above SemanticOnlyMinScore gain SemanticOnlyBoost×score,
// hits in both lists are multiplied by BothListsMultiplier.
func (r *CandidateRetriever) fuse(lexical, semantic []*store.ItemWithScore) []*Candidate {
	candidates := map[string]*Candidate{}
	lexicalRanked := make([]*rag.SearchResult, 0, len(lexical))
	for _, hit := range lexical {
		if _, dup := candidates[hit.Item.ID]; dup {
			continue
		}
		candidates[hit.Item.ID] = &Candidate{ID: hit.Item.ID, Item: hit.Item, FTSScore: floatPtr(hit.Score)}
		lexicalRanked = append(lexicalRanked, &rag.SearchResult{ID: hit.Item.ID, Score: hit.Score})
	}

	vectorRanked := make([]*rag.SearchResult, 0, len(semantic))
	for _, hit := range semantic {
		c, ok := candidates[hit.Item.ID]
		if !ok {
			c = &Candidate{ID: hit.Item.ID, Item: hit.Item}
			candidates[hit.Item.ID] = c
		} else if c.VectorScore != nil {
			continue
		}
		c.VectorScore = floatPtr(hit.Score)
		if len(c.Item.Embedding) == 0 {
			c.Item = hit.Item
		}
		vectorRanked = append(vectorRanked, &rag.SearchResult{ID: hit.Item.ID, Score: hit.Score})
	}

	fused := rag.FuseWithRRF(lexicalRanked, vectorRanked, r.config)
	results := make([]*Candidate, 0, len(fused))
	for _, f := range fused {
		c := candidates[f.ID]
		c.RRFScore = f.Score
		c.FusedScore = f.Score
		switch f.Source {
		case rag.SourceHybrid:
			c.FusedScore *= BothListsMultiplier
		case rag.SourceVector:
			if v := c.Vector(); v > SemanticOnlyMinScore {
				c.FusedScore += SemanticOnlyBoost * v
			}
		}
		results = append(results, c)
	}

	SortByFused(results)
	return results
}
