package models

// SearchHit is one similarity search result with attribution attached.
type SearchHit struct {
	ChunkID         string            `json:"chunk_id"`
	Content         string            `json:"content"`
	Source          SourceInfo        `json:"source"`
	Similarity      float64           `json:"similarity_score"`
	Confidence      float64           `json:"confidence"`
	Excerpt         string            `json:"excerpt,omitempty"`
	Entities        []string          `json:"entities,omitempty"`
	TemporalContext string            `json:"temporal_context,omitempty"`
	ChunkType       string            `json:"chunk_type,omitempty"`
	Extra           map[string]string `json:"chunk_metadata,omitempty"`

	// SourceTrust is the per-source trust weight blended into Confidence.
	SourceTrust float64 `json:"-"`
	// Seq is the chunk's insertion sequence (ordering tie-breaker).
	Seq uint32 `json:"-"`
}

// SearchResponse is the response for a filtered similarity search.
type SearchResponse struct {
	Hits         []SearchHit `json:"hits"`
	SearchTimeMs float64     `json:"search_time_ms"`
	TotalResults int         `json:"total_results"`
	Query        string      `json:"query"`
}

// Response modes for synthesized answers.
const (
	ModeEnhanced = "enhanced" // narrative generated and citation-checked
	ModeDegraded = "degraded" // direct excerpts, no narrative generation
)

// SourceAttribution is one cited source in a synthesized answer.
type SourceAttribution struct {
	Source       string  `json:"source"`
	EvidenceText string  `json:"evidence_text"`
	Citation     string  `json:"citation"`
	Confidence   float64 `json:"confidence"`
	URL          string  `json:"url,omitempty"`
}

// QueryResponse is the orchestrator's final payload.
type QueryResponse struct {
	Response                string              `json:"response"`
	Sources                 []SourceAttribution `json:"sources"`
	DiscoveryPathways       []string            `json:"discovery_pathways"`
	AttributionQuality      float64             `json:"attribution_quality"`
	CitationReadiness       float64             `json:"citation_readiness"`
	SourceVerificationScore float64             `json:"source_verification_score"`
	Mode                    string              `json:"mode"`
	QueryTimeMs             float64             `json:"query_time_ms"`
}

// BuildResponse reports the outcome of an index build.
type BuildResponse struct {
	Status        string  `json:"status"`
	IndexName     string  `json:"index_name"`
	ChunksIndexed int     `json:"chunks_indexed"`
	ChunksFailed  int     `json:"chunks_failed"`
	BuildTimeMs   float64 `json:"build_time_ms"`
}
