// Package index provides the lifecycle manager for the approximate index:
// initialization, incremental insertion, full rebuild, and teardown.
package index

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"go.uber.org/zap"

	"github.com/smriti-ai/smriti/internal/config"
	"github.com/smriti-ai/smriti/internal/models"
	"github.com/smriti-ai/smriti/internal/storage"
	"github.com/smriti-ai/smriti/internal/vector"
)

// State is the lifecycle state of the approximate index.
type State string

const (
	// StateUninitialized means no build has been attempted yet.
	StateUninitialized State = "uninitialized"
	// StateInitializing means a build or rebuild is in progress; searches
	// must use the exact fallback path because the previous index has
	// already been discarded.
	StateInitializing State = "initializing"
	// StateReady means the index is usable.
	StateReady State = "ready"
	// StateFailed means index allocation failed; only a fresh rebuild
	// attempt can recover.
	StateFailed State = "failed"
)

// rebuildBatchSize is the number of records inserted between yield points
// during a full rebuild, so long rebuilds do not starve concurrent searches.
const rebuildBatchSize = 256

// Manager orchestrates the approximate index lifecycle and is the sole
// authority on index readiness. Mutating operations (Initialize, Rebuild,
// AddIncremental, Reset) are serialized; IsReady and Current are safe to call
// concurrently.
type Manager struct {
	storage storage.Storage
	cfg     *config.Store
	logger  *zap.Logger

	rebuildMu sync.Mutex // serializes mutating operations

	mu    sync.RWMutex // guards state and index
	state State
	index *vector.HNSWIndex
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLogger sets a logger for lifecycle events.
func WithLogger(l *zap.Logger) ManagerOption {
	return func(m *Manager) { m.logger = l }
}

// NewManager creates a lifecycle manager over the given store. A fresh config
// snapshot is taken at every (re)build, so settings updates to index
// parameters take effect on the next explicit rebuild.
func NewManager(store storage.Storage, cfg *config.Store, opts ...ManagerOption) *Manager {
	m := &Manager{
		storage: store,
		cfg:     cfg,
		logger:  zap.NewNop(),
		state:   StateUninitialized,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// hnswConfig extracts the index parameters from a config snapshot.
func hnswConfig(cfg *config.Config) vector.HNSWConfig {
	return vector.HNSWConfig{
		Dimensions:     cfg.Embedding.Dimensions,
		MaxElements:    cfg.Index.MaxElements,
		M:              cfg.Index.M,
		EfConstruction: cfg.Index.EfConstruction,
		EfSearch:       cfg.Index.EfSearch,
	}
}

// Initialize builds a fresh index from every valid record in the store, in
// store iteration order. Per-record insertion errors are logged and skipped;
// failure to allocate the index is fatal and leaves the manager Failed.
// The previous index is discarded up front, so concurrent searches fall back
// to the exact path while the build runs.
func (m *Manager) Initialize(ctx context.Context) error {
	m.rebuildMu.Lock()
	defer m.rebuildMu.Unlock()

	m.setState(StateInitializing, nil)

	// One snapshot for the whole build, so a settings update mid-build
	// cannot split the parameters between old and new values.
	cfg := m.cfg.Load()
	fresh, err := vector.NewHNSWIndex(hnswConfig(cfg))
	if err != nil {
		m.setState(StateFailed, nil)
		return fmt.Errorf("allocate index: %w", err)
	}

	pages, err := m.storage.GetAll(ctx)
	if err != nil {
		m.setState(StateFailed, nil)
		return fmt.Errorf("load records for index build: %w", err)
	}

	dimensions := cfg.Embedding.Dimensions
	inserted, skipped := 0, 0
	for i, page := range pages {
		if i > 0 && i%rebuildBatchSize == 0 {
			if err := ctx.Err(); err != nil {
				m.setState(StateFailed, nil)
				return fmt.Errorf("index build canceled: %w", err)
			}
			runtime.Gosched()
		}
		if !page.HasValidEmbedding(dimensions) {
			skipped++
			continue
		}
		if err := fresh.Insert(page.ID, page.Embedding); err != nil {
			m.logger.Warn("skipping record during index build",
				zap.Int64("id", page.ID),
				zap.String("url", page.URL),
				zap.Error(err),
			)
			skipped++
			continue
		}
		inserted++
	}

	m.setState(StateReady, fresh)
	m.logger.Info("index build complete",
		zap.Int("inserted", inserted),
		zap.Int("skipped", skipped),
		zap.Int("total_records", len(pages)),
	)
	return nil
}

// Rebuild discards the current index and reconstructs it from the store,
// picking up any updated index configuration. This is the only way changes to
// max_elements, m, or ef take effect.
func (m *Manager) Rebuild(ctx context.Context) error {
	return m.Initialize(ctx)
}

// AddIncremental inserts one record into the live index. When the index is
// not Ready the call is a logged no-op: the record stays retrievable via the
// exact fallback until the next rebuild.
func (m *Manager) AddIncremental(page *models.Page) error {
	m.rebuildMu.Lock()
	defer m.rebuildMu.Unlock()

	m.mu.RLock()
	state, idx := m.state, m.index
	m.mu.RUnlock()

	if state != StateReady || idx == nil {
		m.logger.Warn("incremental add skipped, index not ready",
			zap.String("state", string(state)),
			zap.Int64("id", page.ID),
		)
		return nil
	}
	if err := idx.Insert(page.ID, page.Embedding); err != nil {
		return fmt.Errorf("incremental insert id %d: %w", page.ID, err)
	}
	return nil
}

// Reset swaps in a fresh empty index under the current configuration and
// marks the manager Ready at zero points. Used after a full clear so
// post-clear searches do not spuriously fall back.
func (m *Manager) Reset() error {
	m.rebuildMu.Lock()
	defer m.rebuildMu.Unlock()

	fresh, err := vector.NewHNSWIndex(hnswConfig(m.cfg.Load()))
	if err != nil {
		m.setState(StateFailed, nil)
		return fmt.Errorf("allocate index: %w", err)
	}
	m.setState(StateReady, fresh)
	return nil
}

// IsReady reports whether the approximate index can serve queries.
func (m *Manager) IsReady() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state == StateReady && m.index != nil
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Current returns the live index, or nil when none is usable.
func (m *Manager) Current() *vector.HNSWIndex {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state != StateReady {
		return nil
	}
	return m.index
}

// Size returns the number of points in the live index, 0 when not ready.
func (m *Manager) Size() int {
	return m.Current().Size()
}

func (m *Manager) setState(state State, idx *vector.HNSWIndex) {
	m.mu.Lock()
	prev := m.state
	m.state = state
	m.index = idx
	m.mu.Unlock()
	if prev != state {
		m.logger.Info("index state transition",
			zap.String("from", string(prev)),
			zap.String("to", string(state)),
		)
	}
}
