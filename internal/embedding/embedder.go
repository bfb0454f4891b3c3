// Package embedding provides the embedding provider boundary: an interface,
// an HTTP client for Ollama-compatible providers, and a caching layer.
package embedding

import "context"

// Embedder produces vector embeddings for text. The provider may be slow on
// first call (model load); callers treat Embed as an opaque asynchronous call
// and add no retry logic of their own.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}
