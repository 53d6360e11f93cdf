package port

import (
	"context"

	"sentry/internal/domain"
)

// Embedder generates vector embeddings for text.
// Identical text must produce identical vectors for a given model.
type Embedder interface {
	// Embed generates embeddings for the given texts.
	// Returns a slice of vectors, one per input text.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the embedding vector dimension.
	Dimension() int

	// ModelName returns the name of the embedding model.
	ModelName() string
}

// BaselineIndex answers nearest-neighbor distance queries over known-normal vectors.
type BaselineIndex interface {
	// Nearest returns the minimum distance from vector to any stored entry.
	Nearest(vector []float32) (float64, error)

	// NearestEntry returns the closest stored entry and its distance.
	NearestEntry(vector []float32) (domain.Neighbor, error)

	// Len returns the number of stored entries.
	Len() int

	// Dimension returns the vector dimension of the stored entries.
	Dimension() int
}
