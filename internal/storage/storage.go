// Package storage defines the persistence interface for page records.
package storage

import (
	"context"

	"github.com/smriti-ai/smriti/internal/models"
)

// Storage defines page record persistence. URL is the natural key: Upsert
// updates the existing row for a URL and keeps its ID, or inserts a new row
// with a fresh monotonically increasing ID. The store is the source of truth;
// the vector index is a rebuildable projection over it.
type Storage interface {
	// Upsert inserts or updates the page for url and returns the stored record,
	// including its assigned ID.
	Upsert(ctx context.Context, url, title string, embedding []float32) (*models.Page, error)

	// GetAll returns every page in insertion (ID) order.
	GetAll(ctx context.Context) ([]*models.Page, error)

	// GetByIDs returns the pages matching ids. Missing IDs are silently
	// omitted; result order is unspecified and callers must re-rank.
	GetByIDs(ctx context.Context, ids []int64) ([]*models.Page, error)

	// GetByURL returns the page for url, or nil when absent.
	GetByURL(ctx context.Context, url string) (*models.Page, error)

	// DeleteAll removes every page.
	DeleteAll(ctx context.Context) error

	// Count returns the total number of pages.
	Count(ctx context.Context) (int64, error)

	Close() error
}
