// Package embed turns chunk and query text into dense vectors.
package embed

import (
	"context"
	"math"
	"time"
)

const (
	// MaxBatchSize caps texts per embedding request.
	MaxBatchSize = 256

	// DefaultBatchSize is the batch size used when none is configured.
	DefaultBatchSize = 32

	// DefaultTimeout bounds a single remote embedding request.
	DefaultTimeout = 30 * time.Second

	// StaticDimensions is the default dimension of the static embedder.
	StaticDimensions = 256
)

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates the embedding of a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings aligned with texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension.
	Dimensions() int

	// ModelName identifies the model. A change of name or dimension means
	// stored vectors must be rebuilt.
	ModelName() string

	// Available reports whether the embedder can serve requests.
	Available(ctx context.Context) bool

	Close() error
}

// normalizeVector returns v scaled to unit length.
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
