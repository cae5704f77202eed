package models

import (
	"fmt"
	"strings"
)

// SearchQuery is a filtered similarity search request.
type SearchQuery struct {
	Query         string   `json:"query"`
	K             int      `json:"k,omitempty"`
	SourceFilter  []string `json:"source_filter,omitempty"`
	EntityFilter  []string `json:"entity_filter,omitempty"`
	MinConfidence float64  `json:"min_confidence,omitempty"`
}

// Validate checks the query and normalizes k: zero takes defaultK, values
// above maxK are capped, negative values are invalid. An empty query is
// invalid.
func (q *SearchQuery) Validate(defaultK, maxK int) error {
	if strings.TrimSpace(q.Query) == "" {
		return fmt.Errorf("%w: query cannot be empty", ErrInvalidInput)
	}
	if q.K < 0 {
		return fmt.Errorf("%w: k must be >= 1, got %d", ErrInvalidInput, q.K)
	}
	if q.K == 0 {
		q.K = defaultK
	}
	if q.K > maxK {
		q.K = maxK
	}
	if q.MinConfidence < 0 || q.MinConfidence > 1 {
		return fmt.Errorf("%w: min_confidence must be in [0,1]", ErrInvalidInput)
	}
	return nil
}

// QueryRequest asks the orchestrator for a synthesized, cited answer.
type QueryRequest struct {
	Query string `json:"query"`
	K     int    `json:"k,omitempty"`
}

// Validate applies the same k normalization as SearchQuery.Validate.
func (r *QueryRequest) Validate(defaultK, maxK int) error {
	q := SearchQuery{Query: r.Query, K: r.K}
	if err := q.Validate(defaultK, maxK); err != nil {
		return err
	}
	r.K = q.K
	return nil
}

// BuildRequest asks for an index build or rebuild.
type BuildRequest struct {
	IndexName    string `json:"index_name,omitempty"`
	ForceRebuild bool   `json:"force_rebuild,omitempty"`
}
