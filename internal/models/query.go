package models

import "errors"

// ErrInvalidQuery is returned for a search request with neither query text
// nor a vector.
var ErrInvalidQuery = errors.New("query or vector must be provided")

// SearchQuery represents a search request. Either Query (to be embedded) or
// Vector (a pre-computed embedding) must be set.
type SearchQuery struct {
	Query        string    `json:"query,omitempty"`
	Vector       []float32 `json:"vector,omitempty"`
	K            int       `json:"k,omitempty"`
	DomainFilter string    `json:"domain_filter,omitempty"`
}

// Validate ensures the search query has valid fields and normalizes K.
// defaultK is used when K is unset; K is capped at 100.
func (q *SearchQuery) Validate(defaultK int) error {
	if q.Query == "" && len(q.Vector) == 0 {
		return ErrInvalidQuery
	}
	if q.K <= 0 {
		q.K = defaultK
	}
	if q.K <= 0 {
		q.K = 5
	}
	if q.K > 100 {
		q.K = 100
	}
	return nil
}
