package ai

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var rerankDocs = []RerankDocument{
	{ID: "a", Text: "Interstellar"},
	{ID: "b", Text: "Paprika"},
	{ID: "c", Text: "Dune"},
}

func TestCrossEncoderReranker(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/rerank", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req struct {
			Model     string   `json:"model"`
			Query     string   `json:"query"`
			Documents []string `json:"documents"`
			TopN      int      `json:"top_n"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "BAAI/bge-reranker-v2-m3", req.Model)
		assert.Equal(t, []string{"Interstellar", "Paprika", "Dune"}, req.Documents)
		assert.Equal(t, 3, req.TopN)

		_, _ = w.Write([]byte(`{"results":[{"index":2,"relevance_score":0.4},{"index":0,"relevance_score":0.9},{"index":7,"relevance_score":1.0}]}`))
	}))
	defer server.Close()

	svc := NewCrossEncoderReranker(&RerankerConfig{
		CrossEncoderAPIKey:  "test-key",
		CrossEncoderBaseURL: server.URL + "/",
		CrossEncoderModel:   "BAAI/bge-reranker-v2-m3",
	}, server.Client())
	require.True(t, svc.IsEnabled())

	results, err := svc.Rerank(context.Background(), "Inception", rerankDocs, 3)
	require.NoError(t, err)
	// Out-of-range index 7 is dropped.
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ID)
	assert.InDelta(t, 0.9, results[0].Score, 1e-9)
	assert.Equal(t, "c", results[1].ID)
}

func TestHTTPReranker(t *testing.T) {
	tests := []struct {
		name     string
		response string
		wantIDs  []string
	}{
		{
			name:     "by id",
			response: `{"results":[{"id":"b","relevanceScore":0.2},{"id":"c","relevanceScore":0.8}]}`,
			wantIDs:  []string{"c", "b"},
		},
		{
			name:     "by index",
			response: `{"results":[{"index":0,"relevanceScore":0.5},{"index":1,"relevanceScore":0.7}]}`,
			wantIDs:  []string{"b", "a"},
		},
		{
			name:     "unknown ids and missing scores skipped",
			response: `{"results":[{"id":"zzz","relevanceScore":0.9},{"id":"a"}]}`,
			wantIDs:  []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				var req struct {
					Query     string           `json:"query"`
					Documents []RerankDocument `json:"documents"`
					TopN      int              `json:"topN"`
				}
				require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				assert.Equal(t, "Inception", req.Query)
				assert.Len(t, req.Documents, 3)
				_, _ = w.Write([]byte(tt.response))
			}))
			defer server.Close()

			svc := NewHTTPReranker(&RerankerConfig{HTTPURL: server.URL}, server.Client())
			results, err := svc.Rerank(context.Background(), "Inception", rerankDocs, 3)
			require.NoError(t, err)

			ids := []string{}
			for _, r := range results {
				ids = append(ids, r.ID)
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}
}

func TestHTTPReranker_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	svc := NewHTTPReranker(&RerankerConfig{HTTPURL: server.URL}, server.Client())
	_, err := svc.Rerank(context.Background(), "q", rerankDocs, 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

type failingReranker struct {
	calls atomic.Int32
}

func (f *failingReranker) Name() string    { return "failing" }
func (f *failingReranker) IsEnabled() bool { return true }
func (f *failingReranker) Rerank(context.Context, string, []RerankDocument, int) ([]RerankResult, error) {
	f.calls.Add(1)
	return nil, errors.New("upstream down")
}

func TestWithCircuitBreaker_OpensAfterFailures(t *testing.T) {
	inner := &failingReranker{}
	svc := WithCircuitBreaker(inner, BreakerSettings{
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     time.Minute,
		MinRequests: 3,
		FailRatio:   0.5,
	})
	assert.Equal(t, "failing", svc.Name())

	for i := 0; i < 3; i++ {
		_, err := svc.Rerank(context.Background(), "q", rerankDocs, 3)
		require.Error(t, err)
	}
	_, err := svc.Rerank(context.Background(), "q", rerankDocs, 3)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(3), inner.calls.Load())
}

func TestNewRerankerChain(t *testing.T) {
	assert.Nil(t, NewRerankerChain(&RerankerConfig{Enabled: false, HTTPURL: "http://x"}, nil))

	chain := NewRerankerChain(&RerankerConfig{
		Enabled:             true,
		CrossEncoderAPIKey:  "k",
		CrossEncoderBaseURL: "https://api.siliconflow.cn",
		HTTPURL:             "http://reranker:8080/rerank",
	}, nil)
	require.Len(t, chain, 2)
	assert.Equal(t, "cross-encoder", chain[0].Name())
	assert.Equal(t, "http", chain[1].Name())
}
