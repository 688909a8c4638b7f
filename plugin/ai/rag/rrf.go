// Package rag provides rank fusion for hybrid retrieval.
package rag

import (
	"sort"
)

// RRF (Reciprocal Rank Fusion) constants
const (
	RRFDampingFactor = 60 // k = 60 is a common default
)

// Result sources.
const (
	SourceLexical = "lexical"
	SourceVector  = "vector"
	SourceHybrid  = "hybrid"
)

// SearchResult is one ranked hit. Input lists must already be ordered best
// first; Score is informational and ignored by fusion.
type SearchResult struct {
	ID     string
	Score  float64
	Source string
}

// StrategyConfig contains weights for hybrid search.
type StrategyConfig struct {
	LexicalWeight float64
	VectorWeight  float64
}

// DefaultStrategyConfig weighs both lists equally.
func DefaultStrategyConfig() StrategyConfig {
	return StrategyConfig{
		LexicalWeight: 1.0,
		VectorWeight:  1.0,
	}
}

// RRFConfig contains configuration for RRF fusion.
type RRFConfig struct {
	DampingFactor int
}

// DefaultRRFConfig returns the default RRF configuration.
func DefaultRRFConfig() RRFConfig {
	return RRFConfig{
		DampingFactor: RRFDampingFactor,
	}
}

// FuseWithRRF fuses a lexical and a vector result list using Reciprocal Rank Fusion.
// RRF(d) = Σ weight_i / (k + rank_i(d)), rank starting at 1.
func FuseWithRRF(lexicalResults, vectorResults []*SearchResult, config StrategyConfig) []*SearchResult {
	return FuseWithRRFConfig(lexicalResults, vectorResults, config, DefaultRRFConfig())
}

// FuseWithRRFConfig fuses results with custom RRF configuration.
// The output is sorted by fused score descending with ties broken by id, and
// Source reports which lists contained the id.
func FuseWithRRFConfig(lexicalResults, vectorResults []*SearchResult, config StrategyConfig, rrfConfig RRFConfig) []*SearchResult {
	fused := fuse(
		[][]*SearchResult{lexicalResults, vectorResults},
		[]float64{config.LexicalWeight, config.VectorWeight},
		rrfConfig.DampingFactor,
	)

	inLexical := make(map[string]bool, len(lexicalResults))
	for _, r := range lexicalResults {
		inLexical[r.ID] = true
	}
	inVector := make(map[string]bool, len(vectorResults))
	for _, r := range vectorResults {
		inVector[r.ID] = true
	}
	for _, r := range fused {
		switch {
		case inLexical[r.ID] && inVector[r.ID]:
			r.Source = SourceHybrid
		case inLexical[r.ID]:
			r.Source = SourceLexical
		default:
			r.Source = SourceVector
		}
	}
	return fused
}

func fuse(resultLists [][]*SearchResult, weights []float64, k int) []*SearchResult {
	scoreMap := make(map[string]float64)

	for listIdx, results := range resultLists {
		weight := weights[listIdx]
		seen := make(map[string]bool, len(results))
		for rank, result := range results {
			// Only the best rank of a duplicated id counts.
			if seen[result.ID] {
				continue
			}
			seen[result.ID] = true
			scoreMap[result.ID] += weight / float64(k+rank+1)
		}
	}

	results := make([]*SearchResult, 0, len(scoreMap))
	for id, score := range scoreMap {
		results = append(results, &SearchResult{ID: id, Score: score})
	}

	// Sort by RRF score descending, id ascending for determinism
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})

	return results
}
