package embedding

import (
	"context"
	"math"

	"github.com/cespare/xxhash/v2"
	"sentry/internal/adapter/analyzer"
	"sentry/internal/metrics"
)

// HashModel identifies the feature set of HashEmbedder. Change it whenever
// features or weights change so stored indexes are flagged for rebuild.
const HashModel = "hash-trigram-v1"

var featureWeights = map[byte]float64{
	'w': 1.0,
	's': 1.5,
	'g': 0.5,
}

// HashEmbedder projects log-line features into a fixed number of buckets with
// the hashing trick and L2-normalizes the result. It needs no model or network
// and is deterministic across processes.
type HashEmbedder struct {
	dimension int
	tokenizer *analyzer.Tokenizer
}

func NewHashEmbedder(dimension int) *HashEmbedder {
	if dimension <= 0 {
		dimension = 384
	}
	return &HashEmbedder{
		dimension: dimension,
		tokenizer: analyzer.NewTokenizer(3),
	}
}

func (e *HashEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		embeddings[i] = e.embedOne(text)
	}
	metrics.EmbeddingRequests.WithLabelValues("local", "ok").Inc()
	return embeddings, nil
}

func (e *HashEmbedder) embedOne(text string) []float32 {
	acc := make([]float64, e.dimension)
	for _, f := range e.tokenizer.Features(text) {
		h := xxhash.Sum64String(f)
		bucket := h % uint64(e.dimension)
		w := featureWeights[f[0]]
		if h>>63 == 1 {
			w = -w
		}
		acc[bucket] += w
	}

	var norm float64
	for _, v := range acc {
		norm += v * v
	}
	norm = math.Sqrt(norm)

	vec := make([]float32, e.dimension)
	if norm == 0 {
		return vec
	}
	for i, v := range acc {
		vec[i] = float32(v / norm)
	}
	return vec
}

func (e *HashEmbedder) Dimension() int {
	return e.dimension
}

func (e *HashEmbedder) ModelName() string {
	return HashModel
}
