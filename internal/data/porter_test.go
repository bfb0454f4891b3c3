package data

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/smriti-ai/smriti/internal/config"
	"github.com/smriti-ai/smriti/internal/index"
	"github.com/smriti-ai/smriti/internal/models"
	"github.com/smriti-ai/smriti/internal/storage"
)

func newTestPorter(t *testing.T, dimensions int) (*Porter, storage.Storage, *index.Manager) {
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

	manager := index.NewManager(store, confStore)
	return NewPorter(store, manager, confStore), store, manager
}

func TestExport(t *testing.T) {
	porter, store, _ := newTestPorter(t, 3)
	ctx := context.Background()
	if _, err := store.Upsert(ctx, "https://a.com/1", "A", []float32{1, 0, 0}); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Upsert(ctx, "https://b.com/1", "B", []float32{0, 1, 0}); err != nil {
		t.Fatal(err)
	}

	snapshot, err := porter.Export(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if snapshot.Version != models.SnapshotVersion {
		t.Errorf("version=%d, want %d", snapshot.Version, models.SnapshotVersion)
	}
	if snapshot.ExportDate.IsZero() {
		t.Error("export date unset")
	}
	if snapshot.Settings.Dimensions != 3 {
		t.Errorf("settings dimensions=%d, want 3", snapshot.Settings.Dimensions)
	}
	if len(snapshot.Records) != 2 {
		t.Fatalf("got %d records, want 2", len(snapshot.Records))
	}
	if snapshot.Records[0].URL != "https://a.com/1" || len(snapshot.Records[0].Embedding) != 3 {
		t.Errorf("record 0 = %+v", snapshot.Records[0])
	}
}

func TestExportEmptyCorpus(t *testing.T) {
	porter, _, _ := newTestPorter(t, 3)
	snapshot, err := porter.Export(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if snapshot.Records == nil || len(snapshot.Records) != 0 {
		t.Errorf("empty corpus should export an empty records array, got %v", snapshot.Records)
	}
}

func TestImport(t *testing.T) {
	porter, store, manager := newTestPorter(t, 3)
	ctx := context.Background()

	// Pre-existing record: the matching snapshot record must be skipped.
	if _, err := store.Upsert(ctx, "https://known.com/x", "Known", []float32{1, 0, 0}); err != nil {
		t.Fatal(err)
	}

	snapshot := &models.Snapshot{
		Version: models.SnapshotVersion,
		Records: []models.SnapshotRecord{
			{URL: "https://a.com/1", Title: "A", Embedding: []float32{1, 0, 0}},
			{URL: "https://known.com/x", Title: "Known", Embedding: []float32{0, 1, 0}},
			{URL: "https://a.com/1", Title: "A again", Embedding: []float32{0, 0, 1}},
			{URL: "https://b.com/1", Title: "B", Embedding: []float32{0, 1, 0}},
		},
	}
	result, err := porter.Import(ctx, snapshot)
	if err != nil {
		t.Fatal(err)
	}
	if result.Imported != 2 || result.Skipped != 2 {
		t.Errorf("imported=%d skipped=%d, want 2/2", result.Imported, result.Skipped)
	}
	if n, _ := store.Count(ctx); n != 3 {
		t.Errorf("store count=%d, want 3", n)
	}
	if !manager.IsReady() {
		t.Error("index should be rebuilt and ready after a non-empty import")
	}
	if manager.Size() != 3 {
		t.Errorf("index size=%d, want 3", manager.Size())
	}
}

func TestImportNothingNewSkipsRebuild(t *testing.T) {
	porter, store, manager := newTestPorter(t, 3)
	ctx := context.Background()
	if _, err := store.Upsert(ctx, "https://a.com/1", "A", []float32{1, 0, 0}); err != nil {
		t.Fatal(err)
	}

	result, err := porter.Import(ctx, &models.Snapshot{
		Version: models.SnapshotVersion,
		Records: []models.SnapshotRecord{
			{URL: "https://a.com/1", Title: "A", Embedding: []float32{1, 0, 0}},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if result.Imported != 0 || result.Skipped != 1 {
		t.Errorf("imported=%d skipped=%d, want 0/1", result.Imported, result.Skipped)
	}
	if manager.State() != index.StateUninitialized {
		t.Errorf("state=%s; an all-skipped import should not touch the index", manager.State())
	}
}

func TestImportInvalidFormat(t *testing.T) {
	porter, _, _ := newTestPorter(t, 3)
	ctx := context.Background()

	tests := []struct {
		name     string
		snapshot *models.Snapshot
	}{
		{"nil snapshot", nil},
		{"nil records", &models.Snapshot{Version: models.SnapshotVersion}},
		{"wrong version", &models.Snapshot{Version: 99, Records: []models.SnapshotRecord{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := porter.Import(ctx, tt.snapshot); !errors.Is(err, ErrInvalidFormat) {
				t.Errorf("err=%v, want ErrInvalidFormat", err)
			}
		})
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	porter, store, _ := newTestPorter(t, 3)
	ctx := context.Background()
	if _, err := store.Upsert(ctx, "https://a.com/1", "A", []float32{0.5, 0.5, 0}); err != nil {
		t.Fatal(err)
	}

	snapshot, err := porter.Export(ctx)
	if err != nil {
		t.Fatal(err)
	}

	// Import into a fresh corpus.
	porter2, store2, _ := newTestPorter(t, 3)
	result, err := porter2.Import(ctx, snapshot)
	if err != nil {
		t.Fatal(err)
	}
	if result.Imported != 1 {
		t.Fatalf("imported=%d, want 1", result.Imported)
	}
	restored, err := store2.GetByURL(ctx, "https://a.com/1")
	if err != nil {
		t.Fatal(err)
	}
	if restored == nil || restored.Title != "A" || len(restored.Embedding) != 3 {
		t.Errorf("restored record = %+v", restored)
	}
}

func TestClear(t *testing.T) {
	porter, store, manager := newTestPorter(t, 3)
	ctx := context.Background()
	if _, err := store.Upsert(ctx, "https://a.com/1", "A", []float32{1, 0, 0}); err != nil {
		t.Fatal(err)
	}
	if err := manager.Initialize(ctx); err != nil {
		t.Fatal(err)
	}

	if err := porter.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	if n, _ := store.Count(ctx); n != 0 {
		t.Errorf("store count=%d, want 0", n)
	}
	if !manager.IsReady() {
		t.Error("index should be ready and empty after clear")
	}
	if manager.Size() != 0 {
		t.Errorf("index size=%d, want 0", manager.Size())
	}

	// IDs keep growing after a clear.
	page, err := store.Upsert(ctx, "https://b.com/1", "B", []float32{0, 1, 0})
	if err != nil {
		t.Fatal(err)
	}
	if page.ID == 1 {
		t.Error("record ids should not be reused after clear")
	}
}
