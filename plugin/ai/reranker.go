package ai

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
)

// RerankDocument is one candidate sent to a reranker.
type RerankDocument struct {
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// RerankResult represents a reranking result.
type RerankResult struct {
	ID    string  // Document id
	Index int     // Original index
	Score float64 // Relevance score
}

// RerankerService is the reranking service interface.
type RerankerService interface {
	// Name identifies the service in logs and metrics.
	Name() string

	// Rerank scores documents by relevance to query, highest first.
	Rerank(ctx context.Context, query string, documents []RerankDocument, topN int) ([]RerankResult, error)

	// IsEnabled returns whether the service is enabled.
	IsEnabled() bool
}

// crossEncoderReranker calls a SiliconFlow/Cohere style /v1/rerank endpoint.
type crossEncoderReranker struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

// NewCrossEncoderReranker creates the primary reranker service.
func NewCrossEncoderReranker(cfg *RerankerConfig, client *http.Client) RerankerService {
	if client == nil {
		client = &http.Client{}
	}
	return &crossEncoderReranker{
		apiKey:  cfg.CrossEncoderAPIKey,
		baseURL: strings.TrimSuffix(cfg.CrossEncoderBaseURL, "/"),
		model:   cfg.CrossEncoderModel,
		client:  client,
	}
}

func (s *crossEncoderReranker) Name() string {
	return "cross-encoder"
}

func (s *crossEncoderReranker) IsEnabled() bool {
	return s.apiKey != "" && s.baseURL != ""
}

func (s *crossEncoderReranker) Rerank(ctx context.Context, query string, documents []RerankDocument, topN int) ([]RerankResult, error) {
	if len(documents) == 0 {
		return nil, nil
	}

	texts := make([]string, len(documents))
	for i, doc := range documents {
		texts[i] = doc.Text
	}
	reqBody := map[string]any{
		"model":            s.model,
		"query":            query,
		"documents":        texts,
		"top_n":            topN,
		"return_documents": false,
	}

	var result struct {
		Results []struct {
			Index int     `json:"index"`
			Score float64 `json:"relevance_score"`
		} `json:"results"`
	}
	if err := postJSON(ctx, s.client, s.baseURL+"/v1/rerank", s.apiKey, reqBody, &result); err != nil {
		return nil, errors.Wrap(err, "cross-encoder rerank failed")
	}

	results := make([]RerankResult, 0, len(result.Results))
	for _, r := range result.Results {
		if r.Index < 0 || r.Index >= len(documents) {
			continue
		}
		results = append(results, RerankResult{ID: documents[r.Index].ID, Index: r.Index, Score: r.Score})
	}
	sortRerankResults(results)
	return results, nil
}

// httpReranker calls a generic reranker that accepts structured documents.
//
//	request:  {query, documents:[{id, text, metadata}], topN}
//	response: {results:[{id | index, relevanceScore}]}
type httpReranker struct {
	url    string
	apiKey string
	client *http.Client
}

// NewHTTPReranker creates the secondary reranker service.
func NewHTTPReranker(cfg *RerankerConfig, client *http.Client) RerankerService {
	if client == nil {
		client = &http.Client{}
	}
	return &httpReranker{
		url:    cfg.HTTPURL,
		apiKey: cfg.HTTPAPIKey,
		client: client,
	}
}

func (s *httpReranker) Name() string {
	return "http"
}

func (s *httpReranker) IsEnabled() bool {
	return s.url != ""
}

func (s *httpReranker) Rerank(ctx context.Context, query string, documents []RerankDocument, topN int) ([]RerankResult, error) {
	if len(documents) == 0 {
		return nil, nil
	}

	reqBody := struct {
		Query     string           `json:"query"`
		Documents []RerankDocument `json:"documents"`
		TopN      int              `json:"topN"`
	}{query, documents, topN}

	var result struct {
		Results []struct {
			ID             string   `json:"id"`
			Index          *int     `json:"index"`
			RelevanceScore *float64 `json:"relevanceScore"`
		} `json:"results"`
	}
	if err := postJSON(ctx, s.client, s.url, s.apiKey, reqBody, &result); err != nil {
		return nil, errors.Wrap(err, "http rerank failed")
	}

	byID := make(map[string]int, len(documents))
	for i, doc := range documents {
		byID[doc.ID] = i
	}

	results := make([]RerankResult, 0, len(result.Results))
	for _, r := range result.Results {
		if r.RelevanceScore == nil {
			continue
		}
		idx, ok := byID[r.ID]
		if !ok && r.Index != nil && *r.Index >= 0 && *r.Index < len(documents) {
			idx, ok = *r.Index, true
		}
		if !ok {
			continue
		}
		results = append(results, RerankResult{ID: documents[idx].ID, Index: idx, Score: *r.RelevanceScore})
	}
	sortRerankResults(results)
	return results, nil
}

func postJSON(ctx context.Context, client *http.Client, url, apiKey string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.Errorf("rerank API error: status %d: %s", resp.StatusCode, string(body))
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

// sortRerankResults sorts by score descending, original index ascending.
func sortRerankResults(results []RerankResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Index < results[j].Index
	})
}

// NewRerankerChain builds the configured services in fallback order
// (cross-encoder first, generic HTTP second), each behind a circuit breaker.
// It returns nil when reranking is disabled.
func NewRerankerChain(cfg *RerankerConfig, client *http.Client) []RerankerService {
	if !cfg.Enabled {
		return nil
	}
	var chain []RerankerService
	if cfg.HasCrossEncoder() {
		chain = append(chain, WithCircuitBreaker(NewCrossEncoderReranker(cfg, client), DefaultBreakerSettings()))
	}
	if cfg.HasHTTPReranker() {
		chain = append(chain, WithCircuitBreaker(NewHTTPReranker(cfg, client), DefaultBreakerSettings()))
	}
	return chain
}
