package ingest

import (
	"context"
	"net/url"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/smriti-ai/smriti/internal/models"
	"github.com/smriti-ai/smriti/pkg/utils"
)

// historyBatchSize is how many history entries are embedded per provider
// call during a batch import.
const historyBatchSize = 10

// JobProgress is a point-in-time snapshot of a history import job.
type JobProgress struct {
	Processed int    `json:"processed"`
	Indexed   int    `json:"indexed"`
	Total     int    `json:"total"`
	Done      bool   `json:"done"`
	Error     string `json:"error,omitempty"`
}

// Job tracks one asynchronous history import.
type Job struct {
	ID string

	mu        sync.Mutex
	processed int
	indexed   int
	total     int
	done      bool
	err       string
}

// Progress returns a consistent snapshot of the job state.
func (j *Job) Progress() JobProgress {
	j.mu.Lock()
	defer j.mu.Unlock()
	return JobProgress{
		Processed: j.processed,
		Indexed:   j.indexed,
		Total:     j.total,
		Done:      j.done,
		Error:     j.err,
	}
}

func (j *Job) advance(processed, indexed int) {
	j.mu.Lock()
	j.processed += processed
	j.indexed += indexed
	j.mu.Unlock()
}

func (j *Job) finish(err error) {
	j.mu.Lock()
	j.done = true
	if err != nil {
		j.err = err.Error()
	}
	j.mu.Unlock()
}

// StartHistoryImport launches a background job that ingests browser history
// entries in batches and returns immediately with the job handle. History
// entries carry no body, so each one is embedded from "title - url". Entries
// with a blank URL, a non-http(s) scheme, or a URL already in the store are
// counted as processed and skipped.
func (ing *Ingester) StartHistoryImport(ctx context.Context, items []models.HistoryItem) *Job {
	job := &Job{ID: uuid.New().String(), total: len(items)}
	ing.registerJob(job)

	go func() {
		job.finish(ing.runHistoryImport(ctx, job, items))
	}()
	return job
}

// JobByID returns a previously started job, or nil when unknown.
func (ing *Ingester) JobByID(id string) *Job {
	ing.jobsMu.RLock()
	defer ing.jobsMu.RUnlock()
	return ing.jobs[id]
}

func (ing *Ingester) registerJob(job *Job) {
	ing.jobsMu.Lock()
	if ing.jobs == nil {
		ing.jobs = make(map[string]*Job)
	}
	ing.jobs[job.ID] = job
	ing.jobsMu.Unlock()
}

func (ing *Ingester) runHistoryImport(ctx context.Context, job *Job, items []models.HistoryItem) error {
	for start := 0; start < len(items); start += historyBatchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := start + historyBatchSize
		if end > len(items) {
			end = len(items)
		}
		batch := items[start:end]

		candidates, skipped, err := ing.selectNewEntries(ctx, batch)
		if err != nil {
			return err
		}
		if len(candidates) == 0 {
			job.advance(len(batch), 0)
			continue
		}

		texts := make([]string, len(candidates))
		for i, item := range candidates {
			if title := normalize(item.Title); title != "" {
				texts[i] = title + " - " + item.URL
			} else {
				texts[i] = item.URL
			}
		}
		embeddings, err := ing.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			job.advance(skipped, 0)
			return err
		}

		indexed := 0
		for i, item := range candidates {
			page, err := ing.storage.Upsert(ctx, item.URL, utils.Truncate(item.Title, maxTitleChars), embeddings[i])
			if err != nil {
				ing.logger.Warn("history entry not stored",
					zap.String("url", item.URL),
					zap.Error(err))
				continue
			}
			indexed++
			if ing.cfg.Load().Search.AutoIndexOrDefault() {
				if err := ing.manager.AddIncremental(page); err != nil {
					ing.logger.Warn("incremental index insert failed",
						zap.Int64("id", page.ID),
						zap.Error(err))
				}
			}
		}
		job.advance(len(batch), indexed)
	}
	ing.logger.Info("history import finished",
		zap.String("job_id", job.ID),
		zap.Int("total", job.total))
	return nil
}

// selectNewEntries filters a batch down to the entries worth embedding and
// reports how many were skipped.
func (ing *Ingester) selectNewEntries(ctx context.Context, batch []models.HistoryItem) ([]models.HistoryItem, int, error) {
	candidates := make([]models.HistoryItem, 0, len(batch))
	for _, item := range batch {
		if !importableURL(item.URL) {
			continue
		}
		existing, err := ing.storage.GetByURL(ctx, item.URL)
		if err != nil {
			return nil, 0, err
		}
		if existing != nil {
			continue
		}
		candidates = append(candidates, item)
	}
	return candidates, len(batch) - len(candidates), nil
}

// importableURL reports whether a history URL should be imported: non-blank
// and served over http or https. Browser-internal schemes (chrome://,
// about:, file://) carry nothing worth retrieving.
func importableURL(rawURL string) bool {
	if strings.TrimSpace(rawURL) == "" {
		return false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}
