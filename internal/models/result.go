package models

// SearchSource identifies which path produced a search result set.
type SearchSource string

const (
	// SourceApproximate means the HNSW index answered the query.
	SourceApproximate SearchSource = "approximate"
	// SourceExact means brute-force cosine ranking over the store answered it.
	SourceExact SearchSource = "exact"
)

// SearchResult represents a single search hit.
type SearchResult struct {
	Page  *Page   `json:"page"`
	Score float64 `json:"score"`
	Rank  int     `json:"rank"`
}

// SearchResponse is the response for a search request. Source records which
// path answered the query; FallbackReason names why the exact path was used
// when Source is exact.
type SearchResponse struct {
	Results        []*SearchResult `json:"results"`
	Total          int             `json:"total"`
	QueryTime      int64           `json:"query_time_ms"`
	Query          string          `json:"query,omitempty"`
	Source         SearchSource    `json:"source"`
	FallbackReason string          `json:"fallback_reason,omitempty"`
}
