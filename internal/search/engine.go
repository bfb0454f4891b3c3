// Package search provides the retrieval service: approximate queries against
// the HNSW index with an exact brute-force fallback, post-hoc domain
// filtering, and index/store stats.
package search

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/smriti-ai/smriti/internal/config"
	"github.com/smriti-ai/smriti/internal/embedding"
	"github.com/smriti-ai/smriti/internal/index"
	"github.com/smriti-ai/smriti/internal/models"
	"github.com/smriti-ai/smriti/internal/storage"
	"github.com/smriti-ai/smriti/internal/vector"
)

// perRecordOverheadBytes is the fixed bookkeeping estimate per stored record
// used in the stats memory approximation, on top of the raw float32 payload.
const perRecordOverheadBytes = 200

// Engine is the public query surface over the record store and the index
// lifecycle manager. One Engine instance serves the whole process.
type Engine struct {
	storage  storage.Storage
	embedder embedding.Embedder
	manager  *index.Manager
	cfg      *config.Store
	logger   *zap.Logger

	settingsMu sync.Mutex // serializes read-modify-write settings updates
	persist    func(*config.Config) error
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets a logger for search events.
func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// WithSettingsPersistence sets the function used to persist settings after an
// UpdateSettings merge, typically config.Save bound to the loaded config path.
func WithSettingsPersistence(persist func(*config.Config) error) EngineOption {
	return func(e *Engine) { e.persist = persist }
}

// NewEngine creates the retrieval engine with its dependencies.
func NewEngine(
	store storage.Storage,
	embedder embedding.Embedder,
	manager *index.Manager,
	cfg *config.Store,
	opts ...EngineOption,
) *Engine {
	e := &Engine{
		storage:  store,
		embedder: embedder,
		manager:  manager,
		cfg:      cfg,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Search answers a query with up to K pages ordered by descending similarity.
// The approximate index answers when ready; otherwise, or on any approximate
// error other than a dimension mismatch, the exact fallback ranks every valid
// record. A dimension mismatch on the query vector is a caller contract
// violation and propagates.
func (e *Engine) Search(ctx context.Context, query *models.SearchQuery) (*models.SearchResponse, error) {
	startTime := time.Now()
	// One snapshot per request so a concurrent settings update cannot change
	// limits or dimensions mid-search.
	cfg := e.cfg.Load()
	if err := query.Validate(cfg.Search.ResultCount); err != nil {
		return nil, err
	}

	vec := query.Vector
	if len(vec) == 0 {
		embedded, err := e.embedder.Embed(ctx, query.Query)
		if err != nil {
			return nil, fmt.Errorf("embed query: %w", err)
		}
		vec = embedded
	}
	if len(vec) != cfg.Embedding.Dimensions {
		return nil, vector.ErrDimensionMismatch
	}

	filter := ParseDomainFilter(query.DomainFilter)
	fetchK := query.K
	if !filter.IsEmpty() {
		// Over-fetch so filtering still leaves K results.
		fetchK = maxInt(query.K*3, 15)
	}

	pages, source, fallbackReason, err := e.fetchCandidates(ctx, vec, fetchK, cfg.Embedding.Dimensions)
	if err != nil {
		return nil, err
	}

	pages = filter.FilterPages(pages)
	if len(pages) > query.K {
		pages = pages[:query.K]
	}

	response := &models.SearchResponse{
		Results:        make([]*models.SearchResult, 0, len(pages)),
		Total:          len(pages),
		QueryTime:      time.Since(startTime).Milliseconds(),
		Query:          query.Query,
		Source:         source,
		FallbackReason: fallbackReason,
	}
	for i, page := range pages {
		score, _ := vector.CosineSimilarity(vec, page.Embedding)
		response.Results = append(response.Results, &models.SearchResult{
			Page:  page,
			Score: score,
			Rank:  i + 1,
		})
	}
	return response, nil
}

// fetchCandidates returns up to fetchK pages in similarity-ranked order,
// choosing the approximate or exact path. The reason for taking the exact
// path is returned as a value rather than threaded through error handling, so
// callers and tests can observe why a fallback happened.
func (e *Engine) fetchCandidates(ctx context.Context, vec []float32, fetchK, dimensions int) ([]*models.Page, models.SearchSource, string, error) {
	if idx := e.manager.Current(); idx != nil {
		candidates, err := idx.Search(vec, fetchK)
		switch {
		case err == nil:
			pages, mapErr := e.resolveCandidates(ctx, candidates)
			if mapErr != nil {
				return nil, "", "", mapErr
			}
			return pages, models.SourceApproximate, "", nil
		case errors.Is(err, vector.ErrDimensionMismatch):
			return nil, "", "", err
		default:
			e.logger.Warn("approximate query failed, using exact fallback", zap.Error(err))
			pages, fbErr := e.exactSearch(ctx, vec, fetchK, dimensions)
			return pages, models.SourceExact, err.Error(), fbErr
		}
	}

	reason := fmt.Sprintf("index %s", e.manager.State())
	pages, err := e.exactSearch(ctx, vec, fetchK, dimensions)
	return pages, models.SourceExact, reason, err
}

// resolveCandidates maps index hits back to records, preserving the rank
// order returned by the index and dropping ids with no record: the store and
// index may have briefly diverged.
func (e *Engine) resolveCandidates(ctx context.Context, candidates []vector.Candidate) ([]*models.Page, error) {
	if len(candidates) == 0 {
		return []*models.Page{}, nil
	}
	ids := make([]int64, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ID
	}
	pages, err := e.storage.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve index hits: %w", err)
	}
	byID := make(map[int64]*models.Page, len(pages))
	for _, p := range pages {
		byID[p.ID] = p
	}
	ordered := make([]*models.Page, 0, len(candidates))
	for _, c := range candidates {
		if page, ok := byID[c.ID]; ok {
			ordered = append(ordered, page)
		}
	}
	return ordered, nil
}

// exactSearch is the brute-force fallback: rank every valid record by cosine
// similarity, descending. Deterministic for a fixed store and query.
func (e *Engine) exactSearch(ctx context.Context, vec []float32, k, dimensions int) ([]*models.Page, error) {
	pages, err := e.storage.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load records for exact search: %w", err)
	}

	type scored struct {
		page  *models.Page
		score float64
	}
	candidates := make([]scored, 0, len(pages))
	for _, page := range pages {
		if !page.HasValidEmbedding(dimensions) {
			continue
		}
		score, err := vector.CosineSimilarity(vec, page.Embedding)
		if err != nil {
			continue
		}
		candidates = append(candidates, scored{page: page, score: score})
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })
	if len(candidates) > k {
		candidates = candidates[:k]
	}
	out := make([]*models.Page, len(candidates))
	for i, c := range candidates {
		out[i] = c.page
	}
	return out, nil
}

// AvailableDomains returns the sorted distinct hosts across stored pages.
func (e *Engine) AvailableDomains(ctx context.Context) ([]string, error) {
	pages, err := e.storage.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load records for domain listing: %w", err)
	}
	return UniqueDomains(pages), nil
}

// UpdateSettings merges a partial settings patch, persists the merged config
// when persistence is wired, and reports whether any index topology field
// changed. It never triggers a rebuild; that remains the caller's explicit
// follow-up.
func (e *Engine) UpdateSettings(patch *config.SettingsPatch) (bool, error) {
	if err := patch.Validate(); err != nil {
		return false, err
	}
	e.settingsMu.Lock()
	defer e.settingsMu.Unlock()

	// Patch a copy and swap it in, so in-flight searches keep reading a
	// consistent snapshot. Apply never writes through the AutoIndex pointer,
	// so the shallow copy is safe.
	next := *e.cfg.Load()
	topologyChanged := patch.Apply(&next)
	if e.persist != nil {
		if err := e.persist(&next); err != nil {
			return topologyChanged, fmt.Errorf("persist settings: %w", err)
		}
	}
	e.cfg.Replace(&next)
	return topologyChanged, nil
}

// Stats reports index and store health. It never fails: on an internal error
// a degraded object is returned with Error set and counts zeroed.
func (e *Engine) Stats(ctx context.Context) *models.IndexStats {
	cfg := e.cfg.Load()
	stats := &models.IndexStats{
		State:  string(e.manager.State()),
		Config: configSnapshot(cfg),
	}

	pages, err := e.storage.GetAll(ctx)
	if err != nil {
		stats.Error = err.Error()
		return stats
	}

	dimensions := cfg.Embedding.Dimensions
	var oldest, newest time.Time
	for _, page := range pages {
		if page.HasValidEmbedding(dimensions) {
			stats.ValidEmbeddings++
		} else {
			stats.InvalidEmbeddings++
		}
		if oldest.IsZero() || page.Timestamp.Before(oldest) {
			oldest = page.Timestamp
		}
		if page.Timestamp.After(newest) {
			newest = page.Timestamp
		}
	}
	stats.TotalPages = len(pages)
	stats.IndexSize = e.manager.Size()
	stats.EstimatedMemoryBytes = int64(stats.ValidEmbeddings)*int64(dimensions)*4 +
		int64(stats.TotalPages)*perRecordOverheadBytes
	if !oldest.IsZero() {
		stats.OldestEntry = &oldest
	}
	if !newest.IsZero() {
		stats.NewestEntry = &newest
	}
	return stats
}

func configSnapshot(cfg *config.Config) models.ConfigSnapshot {
	return models.ConfigSnapshot{
		Dimensions:     cfg.Embedding.Dimensions,
		MaxElements:    cfg.Index.MaxElements,
		M:              cfg.Index.M,
		EfConstruction: cfg.Index.EfConstruction,
		EfSearch:       cfg.Index.EfSearch,
		ResultCount:    cfg.Search.ResultCount,
		AutoIndex:      cfg.Search.AutoIndexOrDefault(),
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
