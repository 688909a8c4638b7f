package ai

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"
	"golang.org/x/sync/errgroup"

	"github.com/hrygo/likewise/plugin/ai/timeout"
	"github.com/hrygo/likewise/plugin/ai/vector"
)

// ErrDimensionMismatch is returned when a provider answers with vectors of an
// unexpected size. It indicates misconfiguration and is never retried.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// EmbeddingService is the vector embedding service interface.
// Every returned vector has Dimensions() entries and unit L2 norm
// (the zero vector for text with no usable terms).
type EmbeddingService interface {
	// Embed generates vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates vectors for multiple texts, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the vector dimension.
	Dimensions() int
}

// NewEmbeddingService creates the EmbeddingService named by cfg.Provider.
func NewEmbeddingService(cfg *EmbeddingConfig) (EmbeddingService, error) {
	if cfg.Dimensions <= 0 {
		return nil, errors.New("embedding dimensions must be positive")
	}

	var clientConfig openai.ClientConfig
	switch cfg.Provider {
	case "", "local":
		return NewLocalEmbeddingService(cfg.Dimensions), nil

	case "siliconflow", "openai":
		// SiliconFlow is compatible with OpenAI API
		clientConfig = openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			clientConfig.BaseURL = cfg.BaseURL
		}

	case "ollama":
		clientConfig = openai.DefaultConfig("ollama")
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		clientConfig.BaseURL = strings.TrimSuffix(baseURL, "/") + "/v1"

	default:
		return nil, errors.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultEmbeddingBatchSize
	}
	maxInFlight := cfg.MaxInFlight
	if maxInFlight <= 0 {
		maxInFlight = defaultEmbeddingMaxInFlight
	}

	return &embeddingService{
		client:      openai.NewClientWithConfig(clientConfig),
		provider:    cfg.Provider,
		model:       cfg.Model,
		dimensions:  cfg.Dimensions,
		batchSize:   batchSize,
		maxInFlight: maxInFlight,
	}, nil
}

// embeddingClient is the part of *openai.Client the service needs.
type embeddingClient interface {
	CreateEmbeddings(ctx context.Context, conv openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
}

type embeddingService struct {
	client      embeddingClient
	provider    string
	model       string
	dimensions  int
	batchSize   int
	maxInFlight int
}

func (s *embeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, errors.New("empty embedding result")
	}
	return vectors[0], nil
}

// EmbedBatch splits texts into batches and embeds up to maxInFlight batches
// concurrently. The first failing batch cancels the rest.
func (s *embeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, errors.New("no texts provided for embedding")
	}

	vectors := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxInFlight)

	for start := 0; start < len(texts); start += s.batchSize {
		end := min(start+s.batchSize, len(texts))
		g.Go(func() error {
			batch, err := s.embedChunk(gctx, texts[start:end])
			if err != nil {
				return err
			}
			copy(vectors[start:end], batch)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

func (s *embeddingService) embedChunk(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout.EmbeddingTimeout)
	defer cancel()

	req := openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(s.model),
	}
	// Only OpenAI-hosted models accept a requested output size.
	if s.provider == "openai" {
		req.Dimensions = s.dimensions
	}

	resp, err := s.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, errors.Wrap(err, "create embeddings failed")
	}
	if len(resp.Data) != len(texts) {
		return nil, errors.Errorf("embedding response has %d vectors for %d inputs", len(resp.Data), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for i, data := range resp.Data {
		if len(data.Embedding) != s.dimensions {
			return nil, errors.Wrapf(ErrDimensionMismatch, "model %s returned %d dimensions, expected %d", s.model, len(data.Embedding), s.dimensions)
		}
		idx := data.Index
		if idx < 0 || idx >= len(texts) || vectors[idx] != nil {
			idx = i
		}
		vectors[idx] = vector.Normalize(data.Embedding)
	}
	return vectors, nil
}

func (s *embeddingService) Dimensions() int {
	return s.dimensions
}
