// Package models defines core data structures for pages, queries, and search results.
package models

import "time"

// Page represents one indexed page with its embedding.
type Page struct {
	ID        int64     `json:"id" db:"id"`
	URL       string    `json:"url" db:"url"`
	Title     string    `json:"title" db:"title"`
	Embedding []float32 `json:"-" db:"-"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
}

// HasValidEmbedding reports whether the page embedding matches the given
// dimension. Pages failing this are excluded from both the approximate index
// and the exact fallback ranking.
func (p *Page) HasValidEmbedding(dimensions int) bool {
	return len(p.Embedding) == dimensions && dimensions > 0
}

// PageInput is the input for ingesting a page.
type PageInput struct {
	URL     string `json:"url"`
	Title   string `json:"title,omitempty"`
	Content string `json:"content"`
}

// HistoryItem is one entry of a batch history ingestion request.
type HistoryItem struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}
