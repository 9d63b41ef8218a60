package models

import "fmt"

// SearchQuery represents a search request over indexed units.
type SearchQuery struct {
	Query   string            `json:"query"`
	Limit   int               `json:"limit,omitempty"`
	Offset  int               `json:"offset,omitempty"`
	Filters map[string]string `json:"filters,omitempty"` // exact term filters on string fields
	Facets  []string          `json:"facets,omitempty"`  // string fields to facet on
}

// Validate ensures the search query has valid fields and sets defaults.
// An empty query string is allowed when filters are present (facet browsing).
func (q *SearchQuery) Validate() error {
	if q.Query == "" && len(q.Filters) == 0 {
		return fmt.Errorf("query or filters required")
	}
	if q.Limit <= 0 {
		q.Limit = 10
	}
	if q.Limit > 100 {
		q.Limit = 100
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	return nil
}

// SearchHit is one search result: the unit's natural key, its score, and the
// stored record fields.
type SearchHit struct {
	Key   string  `json:"key"`
	Score float64 `json:"score"`
	Unit  Record  `json:"unit,omitempty"`
}

// SearchResponse is the result of a search over indexed units.
type SearchResponse struct {
	Hits   []*SearchHit              `json:"hits"`
	Total  uint64                    `json:"total"`
	Facets map[string]map[string]int `json:"facets,omitempty"`
	TookMS int64                     `json:"took_ms"`
}
