package ingest

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/smriti-ai/smriti/internal/config"
	"github.com/smriti-ai/smriti/internal/embedding"
	"github.com/smriti-ai/smriti/internal/index"
	"github.com/smriti-ai/smriti/internal/models"
	"github.com/smriti-ai/smriti/internal/storage"
)

func newTestIngester(t *testing.T, dimensions int) (*Ingester, storage.Storage, *index.Manager, *config.Store) {
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
	ing := NewIngester(store, embedding.NewMockEmbedder(dimensions), manager, confStore)
	return ing, store, manager, confStore
}

func TestIngestPage(t *testing.T) {
	ing, store, manager, _ := newTestIngester(t, 4)
	ctx := context.Background()
	if err := manager.Initialize(ctx); err != nil {
		t.Fatal(err)
	}

	page, err := ing.IngestPage(ctx, &models.PageInput{
		URL:     "https://example.com/article",
		Title:   "An Article",
		Content: "some page text",
	})
	if err != nil {
		t.Fatal(err)
	}
	if page.ID == 0 {
		t.Error("page should get a store id")
	}
	if !page.HasValidEmbedding(4) {
		t.Error("page should carry a valid embedding")
	}

	stored, err := store.GetByURL(ctx, "https://example.com/article")
	if err != nil {
		t.Fatal(err)
	}
	if stored == nil || stored.ID != page.ID {
		t.Error("page not found in store after ingest")
	}
	if manager.Size() != 1 {
		t.Errorf("index size=%d, want 1 after auto-index insert", manager.Size())
	}
}

func TestIngestPage_EmptyURL(t *testing.T) {
	ing, _, _, _ := newTestIngester(t, 4)
	if _, err := ing.IngestPage(context.Background(), &models.PageInput{Title: "x"}); !errors.Is(err, ErrEmptyURL) {
		t.Errorf("err=%v, want ErrEmptyURL", err)
	}
}

func TestIngestPage_AutoIndexDisabled(t *testing.T) {
	ing, _, manager, confStore := newTestIngester(t, 4)
	off := false
	cfg := *confStore.Load()
	cfg.Search.AutoIndex = &off
	confStore.Replace(&cfg)
	ctx := context.Background()
	if err := manager.Initialize(ctx); err != nil {
		t.Fatal(err)
	}

	if _, err := ing.IngestPage(ctx, &models.PageInput{URL: "https://example.com/a", Content: "text"}); err != nil {
		t.Fatal(err)
	}
	if manager.Size() != 0 {
		t.Errorf("index size=%d, want 0 with auto-index off", manager.Size())
	}
}

func TestIngestPage_ReingestKeepsSingleRecord(t *testing.T) {
	ing, store, manager, _ := newTestIngester(t, 4)
	ctx := context.Background()
	if err := manager.Initialize(ctx); err != nil {
		t.Fatal(err)
	}

	first, err := ing.IngestPage(ctx, &models.PageInput{URL: "https://example.com/a", Content: "v1"})
	if err != nil {
		t.Fatal(err)
	}
	second, err := ing.IngestPage(ctx, &models.PageInput{URL: "https://example.com/a", Content: "v2, revisited"})
	if err != nil {
		t.Fatal(err)
	}
	if first.ID != second.ID {
		t.Errorf("re-ingest changed id %d -> %d", first.ID, second.ID)
	}
	if n, _ := store.Count(ctx); n != 1 {
		t.Errorf("store count=%d, want 1", n)
	}
	if manager.Size() != 1 {
		t.Errorf("index size=%d, want 1 after re-ingest", manager.Size())
	}
}

func TestEmbeddingText(t *testing.T) {
	tests := []struct {
		name  string
		input *models.PageInput
		want  string
	}{
		{
			"title and content",
			&models.PageInput{URL: "https://a.com", Title: "Title", Content: "body  text"},
			"Title\nbody text",
		},
		{
			"content only",
			&models.PageInput{URL: "https://a.com", Content: " body "},
			"body",
		},
		{
			"title only falls back to title - url",
			&models.PageInput{URL: "https://a.com", Title: "Title"},
			"Title - https://a.com",
		},
		{
			"nothing but url",
			&models.PageInput{URL: "https://a.com"},
			"https://a.com",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := embeddingText(tt.input); got != tt.want {
				t.Errorf("embeddingText=%q, want %q", got, tt.want)
			}
		})
	}
}

func TestImportableURL(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://example.com", true},
		{"http://example.com", true},
		{"", false},
		{"   ", false},
		{"chrome://settings", false},
		{"about:blank", false},
		{"file:///etc/hosts", false},
	}
	for _, tt := range tests {
		if got := importableURL(tt.url); got != tt.want {
			t.Errorf("importableURL(%q)=%v, want %v", tt.url, got, tt.want)
		}
	}
}

func waitForJob(t *testing.T, job *Job) JobProgress {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		progress := job.Progress()
		if progress.Done {
			return progress
		}
		select {
		case <-deadline:
			t.Fatal("history import did not finish")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestHistoryImport(t *testing.T) {
	ing, store, manager, _ := newTestIngester(t, 4)
	ctx := context.Background()
	if err := manager.Initialize(ctx); err != nil {
		t.Fatal(err)
	}

	// One existing record: history entries for known URLs are skipped.
	if _, err := ing.IngestPage(ctx, &models.PageInput{URL: "https://known.com/x", Content: "text"}); err != nil {
		t.Fatal(err)
	}

	items := []models.HistoryItem{
		{URL: "https://a.com/1", Title: "A"},
		{URL: "https://known.com/x", Title: "Known"},
		{URL: "chrome://newtab", Title: "New Tab"},
		{URL: "", Title: "Blank"},
		{URL: "https://b.com/2", Title: "B"},
	}

	job := ing.StartHistoryImport(ctx, items)
	if job.ID == "" {
		t.Fatal("job should get an id")
	}
	progress := waitForJob(t, job)

	if progress.Error != "" {
		t.Fatalf("unexpected job error: %s", progress.Error)
	}
	if progress.Total != 5 || progress.Processed != 5 {
		t.Errorf("processed=%d/%d, want 5/5", progress.Processed, progress.Total)
	}
	if progress.Indexed != 2 {
		t.Errorf("indexed=%d, want 2 (known, internal, and blank skipped)", progress.Indexed)
	}
	if n, _ := store.Count(ctx); n != 3 {
		t.Errorf("store count=%d, want 3", n)
	}
	if got := ing.JobByID(job.ID); got != job {
		t.Error("JobByID should return the started job")
	}
	if ing.JobByID("nope") != nil {
		t.Error("unknown job id should return nil")
	}
}

func TestHistoryImport_MultipleBatches(t *testing.T) {
	ing, store, manager, _ := newTestIngester(t, 4)
	ctx := context.Background()
	if err := manager.Initialize(ctx); err != nil {
		t.Fatal(err)
	}

	items := make([]models.HistoryItem, 23)
	for i := range items {
		items[i] = models.HistoryItem{
			URL:   "https://example.com/p" + string(rune('a'+i%26)) + string(rune('a'+i/26)),
			Title: "Page",
		}
	}

	progress := waitForJob(t, ing.StartHistoryImport(ctx, items))
	if progress.Error != "" {
		t.Fatalf("unexpected job error: %s", progress.Error)
	}
	if progress.Processed != 23 || progress.Indexed != 23 {
		t.Errorf("processed=%d indexed=%d, want 23/23", progress.Processed, progress.Indexed)
	}
	if n, _ := store.Count(ctx); n != 23 {
		t.Errorf("store count=%d, want 23", n)
	}
	if manager.Size() != 23 {
		t.Errorf("index size=%d, want 23", manager.Size())
	}
}
