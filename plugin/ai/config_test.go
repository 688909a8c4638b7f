package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/likewise/internal/profile"
)

func TestNewConfigFromProfile(t *testing.T) {
	prof := &profile.Profile{
		EmbeddingProvider:   "siliconflow",
		EmbeddingModel:      "BAAI/bge-m3",
		EmbeddingDimensions: 1024,
		EmbeddingAPIKey:     "test-key",
		EmbeddingBaseURL:    "https://api.siliconflow.cn/v1",
		RerankEnabled:       true,
		CrossEncoderAPIKey:  "rerank-key",
		CrossEncoderBaseURL: "https://api.siliconflow.cn",
		CrossEncoderModel:   "BAAI/bge-reranker-v2-m3",
		HTTPRerankerURL:     "http://reranker:8080/rerank",
	}

	cfg := NewConfigFromProfile(prof)

	assert.Equal(t, "siliconflow", cfg.Embedding.Provider)
	assert.Equal(t, "BAAI/bge-m3", cfg.Embedding.Model)
	assert.Equal(t, 1024, cfg.Embedding.Dimensions)
	assert.Equal(t, 16, cfg.Embedding.BatchSize)
	assert.Equal(t, 4, cfg.Embedding.MaxInFlight)
	assert.True(t, cfg.Reranker.Enabled)
	assert.True(t, cfg.Reranker.HasCrossEncoder())
	assert.True(t, cfg.Reranker.HasHTTPReranker())
	require.NoError(t, cfg.Validate())
}

func TestNewConfigFromProfile_Defaults(t *testing.T) {
	cfg := NewConfigFromProfile(&profile.Profile{})

	assert.Equal(t, "local", cfg.Embedding.Provider)
	assert.Equal(t, 768, cfg.Embedding.Dimensions)
	assert.False(t, cfg.Reranker.Enabled)
	require.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name: "local embeddings",
			cfg:  Config{Embedding: EmbeddingConfig{Provider: "local", Dimensions: 768}},
		},
		{
			name: "ollama needs no key",
			cfg:  Config{Embedding: EmbeddingConfig{Provider: "ollama", Dimensions: 768}},
		},
		{
			name:    "openai without key",
			cfg:     Config{Embedding: EmbeddingConfig{Provider: "openai", Dimensions: 1536}},
			wantErr: true,
		},
		{
			name:    "unknown provider",
			cfg:     Config{Embedding: EmbeddingConfig{Provider: "carrier-pigeon", Dimensions: 8}},
			wantErr: true,
		},
		{
			name:    "zero dimensions",
			cfg:     Config{Embedding: EmbeddingConfig{Provider: "local"}},
			wantErr: true,
		},
		{
			name: "rerank enabled without services",
			cfg: Config{
				Embedding: EmbeddingConfig{Provider: "local", Dimensions: 768},
				Reranker:  RerankerConfig{Enabled: true},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
