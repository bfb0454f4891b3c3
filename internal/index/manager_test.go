package index

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/smriti-ai/smriti/internal/config"
	"github.com/smriti-ai/smriti/internal/storage"
)

func newTestManager(t *testing.T, dimensions int) (*Manager, storage.Storage, *config.Store) {
	t.Helper()
	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "pages.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })

	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Embedding.Dimensions = dimensions
	confStore := config.NewStore(cfg)

	return NewManager(store, confStore), store, confStore
}

// setMaxElements swaps in a config snapshot with a changed max_elements.
func setMaxElements(confStore *config.Store, n int) {
	cfg := *confStore.Load()
	cfg.Index.MaxElements = n
	confStore.Replace(&cfg)
}

func seedPages(t *testing.T, store storage.Storage, vecs ...[]float32) {
	t.Helper()
	ctx := context.Background()
	for i, v := range vecs {
		url := "https://example.com/" + string(rune('a'+i))
		if _, err := store.Upsert(ctx, url, url, v); err != nil {
			t.Fatal(err)
		}
	}
}

func TestManager_InitialState(t *testing.T) {
	m, _, _ := newTestManager(t, 3)
	if m.State() != StateUninitialized {
		t.Errorf("state=%s, want uninitialized", m.State())
	}
	if m.IsReady() {
		t.Error("new manager should not be ready")
	}
	if m.Current() != nil {
		t.Error("Current should be nil before initialize")
	}
	if m.Size() != 0 {
		t.Error("Size should be 0 before initialize")
	}
}

func TestManager_InitializeIndexesValidRecords(t *testing.T) {
	m, store, _ := newTestManager(t, 3)
	seedPages(t, store,
		[]float32{1, 0, 0},
		[]float32{0, 1, 0},
		[]float32{1, 1}, // wrong dimension, counted but excluded
	)

	if err := m.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}
	if m.State() != StateReady {
		t.Fatalf("state=%s, want ready", m.State())
	}
	if !m.IsReady() {
		t.Error("IsReady should be true")
	}
	if m.Size() != 2 {
		t.Errorf("index size=%d, want 2 (invalid embedding excluded)", m.Size())
	}
}

func TestManager_RebuildPicksUpConfigChange(t *testing.T) {
	m, store, confStore := newTestManager(t, 2)
	seedPages(t, store, []float32{1, 0}, []float32{0, 1})
	ctx := context.Background()

	if err := m.Initialize(ctx); err != nil {
		t.Fatal(err)
	}
	if got := m.Current().Config().MaxElements; got != 10000 {
		t.Fatalf("max elements=%d, want 10000", got)
	}

	setMaxElements(confStore, 20000)
	if err := m.Rebuild(ctx); err != nil {
		t.Fatal(err)
	}
	if got := m.Current().Config().MaxElements; got != 20000 {
		t.Errorf("max elements after rebuild=%d, want 20000", got)
	}
	if m.Size() != 2 {
		t.Errorf("size after rebuild=%d, want 2", m.Size())
	}
}

func TestManager_InitializeFailsWithBadConfig(t *testing.T) {
	m, _, confStore := newTestManager(t, 3)
	setMaxElements(confStore, -1)

	if err := m.Initialize(context.Background()); err == nil {
		t.Fatal("expected allocation error")
	}
	if m.State() != StateFailed {
		t.Errorf("state=%s, want failed", m.State())
	}

	// A fresh attempt with fixed config recovers from Failed.
	setMaxElements(confStore, 100)
	if err := m.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}
	if m.State() != StateReady {
		t.Errorf("state=%s, want ready after recovery", m.State())
	}
}

func TestManager_AddIncremental(t *testing.T) {
	m, store, _ := newTestManager(t, 2)
	ctx := context.Background()

	page, err := store.Upsert(ctx, "https://a.com", "a", []float32{1, 0})
	if err != nil {
		t.Fatal(err)
	}

	// Not ready: a warned no-op, not an error.
	if err := m.AddIncremental(page); err != nil {
		t.Errorf("AddIncremental before ready should be a no-op, got %v", err)
	}

	if err := m.Initialize(ctx); err != nil {
		t.Fatal(err)
	}
	if m.Size() != 1 {
		t.Fatalf("size=%d, want 1", m.Size())
	}

	page2, _ := store.Upsert(ctx, "https://b.com", "b", []float32{0, 1})
	if err := m.AddIncremental(page2); err != nil {
		t.Fatal(err)
	}
	if m.Size() != 2 {
		t.Errorf("size=%d, want 2 after incremental add", m.Size())
	}
}

func TestManager_ResetReadyEmpty(t *testing.T) {
	m, store, _ := newTestManager(t, 2)
	seedPages(t, store, []float32{1, 0})
	ctx := context.Background()

	if err := m.Initialize(ctx); err != nil {
		t.Fatal(err)
	}
	if err := m.Reset(); err != nil {
		t.Fatal(err)
	}
	if m.State() != StateReady {
		t.Errorf("state=%s, want ready after reset", m.State())
	}
	if m.Size() != 0 {
		t.Errorf("size=%d, want 0 after reset", m.Size())
	}
}

func TestManager_RebuildIdempotent(t *testing.T) {
	m, store, _ := newTestManager(t, 3)
	seedPages(t, store,
		[]float32{1, 0, 0},
		[]float32{0.9, 0.1, 0},
		[]float32{0, 1, 0},
	)
	ctx := context.Background()
	query := []float32{1, 0, 0}

	if err := m.Initialize(ctx); err != nil {
		t.Fatal(err)
	}
	first, err := m.Current().Search(query, 3)
	if err != nil {
		t.Fatal(err)
	}

	if err := m.Rebuild(ctx); err != nil {
		t.Fatal(err)
	}
	second, err := m.Current().Search(query, 3)
	if err != nil {
		t.Fatal(err)
	}

	if len(first) != len(second) {
		t.Fatalf("result counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Errorf("rank %d: %d vs %d", i, first[i].ID, second[i].ID)
		}
	}

	// Every indexed ID resolves to a stored record with a valid embedding.
	ids := make([]int64, 0, len(second))
	for _, c := range second {
		ids = append(ids, c.ID)
	}
	pages, err := store.GetByIDs(ctx, ids)
	if err != nil {
		t.Fatal(err)
	}
	if len(pages) != len(ids) {
		t.Errorf("dangling index entries: %d ids, %d records", len(ids), len(pages))
	}
	for _, p := range pages {
		if !p.HasValidEmbedding(3) {
			t.Errorf("record %d has invalid embedding in index", p.ID)
		}
	}
}
