package models

import "time"

// SnapshotVersion is the current export snapshot format version.
const SnapshotVersion = 1

// Snapshot is the portable export format. Embeddings are plain numeric
// sequences so snapshots survive process and machine boundaries; record IDs
// are intentionally absent because they are not portable.
type Snapshot struct {
	Version    int              `json:"version"`
	ExportDate time.Time        `json:"export_date"`
	Settings   SnapshotSettings `json:"settings"`
	Records    []SnapshotRecord `json:"records"`
}

// SnapshotSettings captures the settings in effect at export time.
type SnapshotSettings struct {
	Dimensions  int  `json:"dimensions"`
	ResultCount int  `json:"result_count"`
	AutoIndex   bool `json:"auto_index"`
}

// SnapshotRecord is one exported page.
type SnapshotRecord struct {
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	Embedding []float32 `json:"embedding"`
	Timestamp time.Time `json:"timestamp"`
}

// ImportResult reports the outcome of a snapshot import.
type ImportResult struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}
