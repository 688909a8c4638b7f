package ai

import (
	"context"
	"hash/fnv"
	"maps"
	"math"
	"slices"

	"github.com/pkg/errors"

	"github.com/hrygo/likewise/plugin/ai/tokenizer"
	"github.com/hrygo/likewise/plugin/ai/vector"
)

// localEmbeddingService is the offline fallback: a signed feature-hashing
// embedder over term frequencies plus adjacent-term bigrams.
type localEmbeddingService struct {
	dimensions int
	tokenizer  *tokenizer.Tokenizer
}

// NewLocalEmbeddingService creates a deterministic hashing embedder.
func NewLocalEmbeddingService(dimensions int) EmbeddingService {
	return &localEmbeddingService{
		dimensions: dimensions,
		tokenizer:  tokenizer.New(),
	}
}

func (s *localEmbeddingService) Embed(_ context.Context, text string) ([]float32, error) {
	return HashEmbed(s.tokenizer.Terms(text), s.dimensions), nil
}

func (s *localEmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, errors.New("no texts provided for embedding")
	}
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vectors[i], _ = s.Embed(ctx, text)
	}
	return vectors, nil
}

func (s *localEmbeddingService) Dimensions() int {
	return s.dimensions
}

// HashEmbed projects terms into a dims-sized L2-normalized vector.
// Each feature is hashed with FNV-1a; the top bit picks its sign so that
// collisions tend to cancel. Term counts are damped with 1+log(tf).
func HashEmbed(terms []string, dims int) []float32 {
	v := make([]float32, dims)
	if dims <= 0 || len(terms) == 0 {
		return v
	}

	counts := make(map[string]int, len(terms)*2)
	for i, term := range terms {
		counts[term]++
		if i > 0 {
			counts[terms[i-1]+" "+term]++
		}
	}

	// Sorted so float accumulation order, and therefore the output, is stable.
	for _, feature := range slices.Sorted(maps.Keys(counts)) {
		tf := counts[feature]
		h := fnv.New32a()
		_, _ = h.Write([]byte(feature))
		sum := h.Sum32()
		sign := float32(1)
		if sum&0x80000000 != 0 {
			sign = -1
		}
		v[int(sum%uint32(dims))] += sign * float32(1+math.Log(float64(tf)))
	}

	return vector.Normalize(v)
}
