// Package embedding backfills stored vectors for catalog items that were
// ingested without one.
package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/likewise/plugin/ai"
	"github.com/hrygo/likewise/store"
)

// ItemStore is the part of *store.Store the runner uses.
type ItemStore interface {
	FindItemsWithoutEmbedding(ctx context.Context, find *store.FindItemsWithoutEmbedding) ([]*store.Item, error)
	UpdateItemEmbedding(ctx context.Context, update *store.UpdateItemEmbedding) error
}

type Runner struct {
	store            ItemStore
	embeddingService ai.EmbeddingService
	interval         time.Duration
	batchSize        int
}

// NewRunner creates an embedding backfill runner.
// Small batches keep memory flat; the remote provider batches again internally.
func NewRunner(store ItemStore, embeddingService ai.EmbeddingService) *Runner {
	return &Runner{
		store:            store,
		embeddingService: embeddingService,
		interval:         2 * time.Minute,
		batchSize:        16,
	}
}

// Run backfills once on startup and then on every tick until ctx is done.
func (r *Runner) Run(ctx context.Context) {
	r.RunOnce(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.RunOnce(ctx)
		case <-ctx.Done():
			slog.Info("embedding runner stopped")
			return
		}
	}
}

// RunOnce embeds one page of items without vectors and returns how many
// were stored.
func (r *Runner) RunOnce(ctx context.Context) int {
	items, err := r.store.FindItemsWithoutEmbedding(ctx, &store.FindItemsWithoutEmbedding{
		Limit: r.batchSize * 20, // one page per tick, processed in small batches
	})
	if err != nil {
		slog.Error("failed to find items without embedding", "error", err)
		return 0
	}
	if len(items) == 0 {
		return 0
	}

	slog.Info("processing items for embedding", "count", len(items))

	stored := 0
	for i := 0; i < len(items); i += r.batchSize {
		select {
		case <-ctx.Done():
			slog.Info("embedding processing cancelled", "processed", i, "total", len(items))
			return stored
		default:
		}

		end := min(i+r.batchSize, len(items))
		n, err := r.processBatch(ctx, items[i:end])
		stored += n
		if err != nil {
			slog.Error("failed to process batch", "error", err)
			// A wrong-sized vector will not fix itself on the next batch.
			if errors.Is(err, ai.ErrDimensionMismatch) {
				return stored
			}
			continue
		}
		slog.Info("batch processed", "count", len(items[i:end]), "progress", fmt.Sprintf("%d/%d", end, len(items)))
	}
	return stored
}

func (r *Runner) processBatch(ctx context.Context, items []*store.Item) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}

	texts := make([]string, len(items))
	for i, item := range items {
		texts[i] = item.EmbeddingText()
	}

	vectors, err := r.embeddingService.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, err
	}
	if len(vectors) != len(items) {
		return 0, errors.Errorf("embedding count mismatch: got %d, want %d", len(vectors), len(items))
	}

	stored := 0
	for i, item := range items {
		if err := r.store.UpdateItemEmbedding(ctx, &store.UpdateItemEmbedding{
			ID:        item.ID,
			Embedding: vectors[i],
		}); err != nil {
			slog.Error("failed to store embedding", "itemID", item.ID, "error", err)
			continue
		}
		stored++
	}
	return stored, nil
}
