// Package data implements bulk corpus operations: snapshot export, snapshot
// import, and clearing the whole corpus.
package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/smriti-ai/smriti/internal/config"
	"github.com/smriti-ai/smriti/internal/index"
	"github.com/smriti-ai/smriti/internal/models"
	"github.com/smriti-ai/smriti/internal/storage"
)

// ErrInvalidFormat is returned when a snapshot cannot be imported: wrong
// version or no records array.
var ErrInvalidFormat = errors.New("invalid snapshot format")

// Porter moves the corpus in and out of the portable snapshot format.
type Porter struct {
	storage storage.Storage
	manager *index.Manager
	cfg     *config.Store
	logger  *zap.Logger
}

// PorterOption configures a Porter.
type PorterOption func(*Porter)

// WithLogger sets a logger for bulk operation events.
func WithLogger(l *zap.Logger) PorterOption {
	return func(p *Porter) { p.logger = l }
}

// NewPorter creates a porter with the given dependencies.
func NewPorter(store storage.Storage, manager *index.Manager, cfg *config.Store, opts ...PorterOption) *Porter {
	p := &Porter{
		storage: store,
		manager: manager,
		cfg:     cfg,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Export dumps every stored page into a snapshot, embeddings included.
func (p *Porter) Export(ctx context.Context) (*models.Snapshot, error) {
	pages, err := p.storage.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load records for export: %w", err)
	}

	cfg := p.cfg.Load()
	snapshot := &models.Snapshot{
		Version:    models.SnapshotVersion,
		ExportDate: time.Now().UTC(),
		Settings: models.SnapshotSettings{
			Dimensions:  cfg.Embedding.Dimensions,
			ResultCount: cfg.Search.ResultCount,
			AutoIndex:   cfg.Search.AutoIndexOrDefault(),
		},
		Records: make([]models.SnapshotRecord, 0, len(pages)),
	}
	for _, page := range pages {
		snapshot.Records = append(snapshot.Records, models.SnapshotRecord{
			URL:       page.URL,
			Title:     page.Title,
			Embedding: page.Embedding,
			Timestamp: page.Timestamp,
		})
	}
	p.logger.Info("corpus exported", zap.Int("records", len(snapshot.Records)))
	return snapshot, nil
}

// Import merges snapshot records into the store. Records whose URL already
// exists are skipped, as are duplicates within the snapshot itself (first
// occurrence wins). When anything was imported the index is rebuilt so the
// new records become searchable.
func (p *Porter) Import(ctx context.Context, snapshot *models.Snapshot) (*models.ImportResult, error) {
	if snapshot == nil || snapshot.Records == nil {
		return nil, ErrInvalidFormat
	}
	if snapshot.Version != models.SnapshotVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidFormat, snapshot.Version)
	}

	result := &models.ImportResult{}
	seen := make(map[string]bool, len(snapshot.Records))
	for _, record := range snapshot.Records {
		if record.URL == "" || seen[record.URL] {
			result.Skipped++
			continue
		}
		seen[record.URL] = true

		existing, err := p.storage.GetByURL(ctx, record.URL)
		if err != nil {
			return nil, fmt.Errorf("check existing record: %w", err)
		}
		if existing != nil {
			result.Skipped++
			continue
		}
		if _, err := p.storage.Upsert(ctx, record.URL, record.Title, record.Embedding); err != nil {
			return nil, fmt.Errorf("store imported record: %w", err)
		}
		result.Imported++
	}

	if result.Imported > 0 {
		if err := p.manager.Rebuild(ctx); err != nil {
			return nil, fmt.Errorf("rebuild after import: %w", err)
		}
	}
	p.logger.Info("snapshot imported",
		zap.Int("imported", result.Imported),
		zap.Int("skipped", result.Skipped))
	return result, nil
}

// Clear deletes every record and resets the index to a fresh, empty, ready
// state. Record IDs are not reused afterwards.
func (p *Porter) Clear(ctx context.Context) error {
	if err := p.storage.DeleteAll(ctx); err != nil {
		return fmt.Errorf("clear records: %w", err)
	}
	if err := p.manager.Reset(); err != nil {
		return fmt.Errorf("reset index: %w", err)
	}
	p.logger.Info("corpus cleared")
	return nil
}
