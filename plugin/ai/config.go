package ai

import (
	"github.com/pkg/errors"

	"github.com/hrygo/likewise/internal/profile"
)

// Config represents AI configuration.
type Config struct {
	Embedding EmbeddingConfig
	Reranker  RerankerConfig
}

// EmbeddingConfig represents vector embedding configuration.
type EmbeddingConfig struct {
	Provider   string // local, siliconflow, openai, ollama
	Model      string // nomic-embed-text
	Dimensions int    // 768
	APIKey     string
	BaseURL    string

	BatchSize   int // texts per remote call (default: 16)
	MaxInFlight int // concurrent remote calls (default: 4)
}

// RerankerConfig represents the external reranker chain configuration.
type RerankerConfig struct {
	Enabled bool

	// Primary cross-encoder API (SiliconFlow/Cohere /v1/rerank shape).
	CrossEncoderModel   string // BAAI/bge-reranker-v2-m3
	CrossEncoderAPIKey  string
	CrossEncoderBaseURL string

	// Secondary generic HTTP reranker.
	HTTPURL    string
	HTTPAPIKey string
}

const (
	defaultEmbeddingBatchSize   = 16
	defaultEmbeddingMaxInFlight = 4
	defaultEmbeddingDimensions  = 768
)

// NewConfigFromProfile creates AI config from profile.
func NewConfigFromProfile(p *profile.Profile) *Config {
	cfg := &Config{
		Embedding: EmbeddingConfig{
			Provider:    p.EmbeddingProvider,
			Model:       p.EmbeddingModel,
			Dimensions:  p.EmbeddingDimensions,
			APIKey:      p.EmbeddingAPIKey,
			BaseURL:     p.EmbeddingBaseURL,
			BatchSize:   defaultEmbeddingBatchSize,
			MaxInFlight: defaultEmbeddingMaxInFlight,
		},
		Reranker: RerankerConfig{
			Enabled:             p.RerankEnabled,
			CrossEncoderModel:   p.CrossEncoderModel,
			CrossEncoderAPIKey:  p.CrossEncoderAPIKey,
			CrossEncoderBaseURL: p.CrossEncoderBaseURL,
			HTTPURL:             p.HTTPRerankerURL,
			HTTPAPIKey:          p.HTTPRerankerAPIKey,
		},
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "local"
	}
	if cfg.Embedding.Dimensions <= 0 {
		cfg.Embedding.Dimensions = defaultEmbeddingDimensions
	}
	return cfg
}

// HasCrossEncoder reports whether the primary reranker is configured.
func (c *RerankerConfig) HasCrossEncoder() bool {
	return c.CrossEncoderAPIKey != "" && c.CrossEncoderBaseURL != ""
}

// HasHTTPReranker reports whether the secondary reranker is configured.
func (c *RerankerConfig) HasHTTPReranker() bool {
	return c.HTTPURL != ""
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.Embedding.Provider {
	case "local", "ollama":
	case "siliconflow", "openai":
		if c.Embedding.APIKey == "" {
			return errors.Errorf("embedding API key is required for provider %q", c.Embedding.Provider)
		}
	default:
		return errors.Errorf("unsupported embedding provider: %s", c.Embedding.Provider)
	}

	if c.Embedding.Dimensions <= 0 {
		return errors.New("embedding dimensions must be positive")
	}

	if c.Reranker.Enabled && !c.Reranker.HasCrossEncoder() && !c.Reranker.HasHTTPReranker() {
		return errors.New("reranking is enabled but no reranker service is configured")
	}

	return nil
}
