package ai

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hrygo/likewise/plugin/ai/cache"
)

// lazyEmbeddingService defers provider construction to first use.
// Construction happens exactly once even under concurrent first access;
// a construction error is sticky for the life of the process.
type lazyEmbeddingService struct {
	cfg   EmbeddingConfig
	build func(*EmbeddingConfig) (EmbeddingService, error)

	once sync.Once
	svc  EmbeddingService
	err  error
}

// NewLazyEmbeddingService returns an EmbeddingService that builds the
// configured provider on first use.
func NewLazyEmbeddingService(cfg *EmbeddingConfig) EmbeddingService {
	return newLazyEmbeddingService(cfg, NewEmbeddingService)
}

func newLazyEmbeddingService(cfg *EmbeddingConfig, build func(*EmbeddingConfig) (EmbeddingService, error)) *lazyEmbeddingService {
	return &lazyEmbeddingService{cfg: *cfg, build: build}
}

func (l *lazyEmbeddingService) get() (EmbeddingService, error) {
	l.once.Do(func() {
		l.svc, l.err = l.build(&l.cfg)
		if l.err != nil {
			slog.Error("failed to build embedding service",
				slog.String("provider", l.cfg.Provider),
				slog.String("error", l.err.Error()))
		}
	})
	return l.svc, l.err
}

func (l *lazyEmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	svc, err := l.get()
	if err != nil {
		return nil, err
	}
	return svc.Embed(ctx, text)
}

func (l *lazyEmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	svc, err := l.get()
	if err != nil {
		return nil, err
	}
	return svc.EmbedBatch(ctx, texts)
}

func (l *lazyEmbeddingService) Dimensions() int {
	return l.cfg.Dimensions
}

// cachedEmbeddingService memoises single-text embeddings.
// Seed queries repeat heavily ("Inception", "Dune"), batches do not.
type cachedEmbeddingService struct {
	EmbeddingService
	cache *cache.LRUCache[[]float32]
	ttl   time.Duration
	model string
}

// NewCachedEmbeddingService wraps svc with an LRU cache keyed by model and text.
func NewCachedEmbeddingService(svc EmbeddingService, model string, capacity int, ttl time.Duration) EmbeddingService {
	return &cachedEmbeddingService{
		EmbeddingService: svc,
		cache:            cache.NewLRUCache[[]float32](capacity, ttl),
		ttl:              ttl,
		model:            model,
	}
}

func (c *cachedEmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	key := "embed:" + c.model + ":" + text
	if v, ok := c.cache.Get(key); ok {
		return v, nil
	}
	v, err := c.EmbeddingService.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, v, c.ttl)
	return v, nil
}
