// Package embed implements the cached embedder (C5): a wrapper around a
// black-box embedding backend that splits batches into cache hits and
// misses, calls the backend once for the misses, L2-normalizes fresh
// rows, and writes them back to the persistent cache.
package embed

import (
	"context"
	"math"
)

// StaticDimensions is the embedding dimension produced by the static
// test backend.
const StaticDimensions = 256

// Backend is the black-box embedder collaborator: a stateless
// component mapping a batch of strings to an N×d float32 matrix. Real
// implementations typically prefix inputs with role markers ("query: "
// / "passage: ") and may or may not normalize on their own — the
// wrapper enforces normalization regardless.
type Backend interface {
	// EmbedQueries embeds a batch of query strings.
	EmbedQueries(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedPassages embeds a batch of passage strings.
	EmbedPassages(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension.
	Dimensions() int

	// ModelName returns the model identifier, used as part of the
	// cache key.
	ModelName() string
}

// normalizeVector returns v scaled to unit L2 norm. A zero vector is
// returned unchanged since it has no direction to normalize to.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}

	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}
