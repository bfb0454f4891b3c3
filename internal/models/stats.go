package models

import "time"

// ConfigSnapshot is the index and search configuration as reported by stats.
type ConfigSnapshot struct {
	Dimensions     int  `json:"dimensions"`
	MaxElements    int  `json:"max_elements"`
	M              int  `json:"m"`
	EfConstruction int  `json:"ef_construction"`
	EfSearch       int  `json:"ef_search"`
	ResultCount    int  `json:"result_count"`
	AutoIndex      bool `json:"auto_index"`
}

// IndexStats reports index and store health. Stats collection never fails
// outright; on internal errors a degraded object is returned with Error set
// and counts zeroed.
type IndexStats struct {
	State                string         `json:"state"`
	TotalPages           int            `json:"total_pages"`
	ValidEmbeddings      int            `json:"valid_embeddings"`
	InvalidEmbeddings    int            `json:"invalid_embeddings"`
	IndexSize            int            `json:"index_size"`
	EstimatedMemoryBytes int64          `json:"estimated_memory_bytes"`
	Config               ConfigSnapshot `json:"config"`
	OldestEntry          *time.Time     `json:"oldest_entry,omitempty"`
	NewestEntry          *time.Time     `json:"newest_entry,omitempty"`
	Error                string         `json:"error,omitempty"`
}
