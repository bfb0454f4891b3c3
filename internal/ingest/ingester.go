// Package ingest handles getting visited pages into the record store and the
// index: single-page capture and batch browser-history imports.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/smriti-ai/smriti/internal/config"
	"github.com/smriti-ai/smriti/internal/embedding"
	"github.com/smriti-ai/smriti/internal/index"
	"github.com/smriti-ai/smriti/internal/models"
	"github.com/smriti-ai/smriti/internal/storage"
	"github.com/smriti-ai/smriti/pkg/utils"
)

// maxEmbedChars caps the text sent to the embedding provider; page bodies can
// be arbitrarily large and the model truncates long inputs anyway.
const maxEmbedChars = 4000

// maxTitleChars caps stored titles; some pages put entire paragraphs there.
const maxTitleChars = 500

// ErrEmptyURL is returned when a page input has no URL.
var ErrEmptyURL = errors.New("page url is required")

// Ingester stores pages and keeps the index in sync with new records.
type Ingester struct {
	storage  storage.Storage
	embedder embedding.Embedder
	manager  *index.Manager
	cfg      *config.Store
	logger   *zap.Logger

	jobsMu sync.RWMutex
	jobs   map[string]*Job
}

// IngesterOption configures an Ingester.
type IngesterOption func(*Ingester)

// WithLogger sets a logger for ingestion events.
func WithLogger(l *zap.Logger) IngesterOption {
	return func(ing *Ingester) { ing.logger = l }
}

// NewIngester creates an ingester with the given dependencies.
func NewIngester(
	store storage.Storage,
	embedder embedding.Embedder,
	manager *index.Manager,
	cfg *config.Store,
	opts ...IngesterOption,
) *Ingester {
	ing := &Ingester{
		storage:  store,
		embedder: embedder,
		manager:  manager,
		cfg:      cfg,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(ing)
	}
	return ing
}

// IngestPage embeds a page and upserts it by URL. When auto-indexing is on
// and the index is ready, the record is also inserted incrementally so it is
// searchable without a rebuild.
func (ing *Ingester) IngestPage(ctx context.Context, input *models.PageInput) (*models.Page, error) {
	if strings.TrimSpace(input.URL) == "" {
		return nil, ErrEmptyURL
	}

	vec, err := ing.embedder.Embed(ctx, embeddingText(input))
	if err != nil {
		return nil, fmt.Errorf("embed page: %w", err)
	}

	page, err := ing.storage.Upsert(ctx, input.URL, utils.Truncate(input.Title, maxTitleChars), vec)
	if err != nil {
		return nil, fmt.Errorf("store page: %w", err)
	}
	ing.logger.Debug("page ingested",
		zap.Int64("id", page.ID),
		zap.String("url", page.URL))

	if ing.cfg.Load().Search.AutoIndexOrDefault() {
		if err := ing.manager.AddIncremental(page); err != nil {
			// The record is safely stored; the next rebuild picks it up.
			ing.logger.Warn("incremental index insert failed",
				zap.Int64("id", page.ID),
				zap.Error(err))
		}
	}
	return page, nil
}

// embeddingText builds the text to embed for a page: normalized title and
// content, capped at maxEmbedChars. A page with no content falls back to
// "title - url" so history entries without bodies still get a usable vector.
func embeddingText(input *models.PageInput) string {
	title := normalize(input.Title)
	content := normalize(input.Content)
	var text string
	switch {
	case title != "" && content != "":
		text = title + "\n" + content
	case content != "":
		text = content
	case title != "":
		text = title + " - " + input.URL
	default:
		text = input.URL
	}
	if len(text) > maxEmbedChars {
		text = text[:maxEmbedChars]
	}
	return text
}

// normalize trims and collapses whitespace runs to single spaces.
func normalize(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
