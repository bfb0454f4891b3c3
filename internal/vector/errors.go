// Package vector provides cosine similarity and an HNSW approximate
// nearest-neighbor index over page embeddings.
package vector

import "errors"

var (
	// ErrDimensionMismatch is returned when a vector's length does not match
	// the configured dimension. This is a caller contract violation and is
	// propagated rather than degraded.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrNotInitialized is returned when the index is queried before it exists.
	ErrNotInitialized = errors.New("index not initialized")

	// ErrIndexFull is returned by Insert when the index is at capacity.
	ErrIndexFull = errors.New("index at capacity")

	// ErrCapacityConfig is returned when index parameters are invalid
	// (dimensions or max elements below 1).
	ErrCapacityConfig = errors.New("invalid index capacity configuration")
)
