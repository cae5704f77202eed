// Package models defines core data structures for chunks, queries, and responses.
package models

import "strings"

// SourceInfo is the source descriptor attached to every chunk.
type SourceInfo struct {
	Source          string `json:"source" db:"source"`
	Title           string `json:"title,omitempty" db:"title"`
	URL             string `json:"url,omitempty" db:"url"`
	Author          string `json:"author,omitempty" db:"author"`
	ParagraphNumber int    `json:"paragraph_number,omitempty" db:"paragraph_number"`
	ContentType     string `json:"content_type,omitempty" db:"content_type"`
}

// Complete reports whether the descriptor carries full attribution
// (publication, title, and author).
func (s *SourceInfo) Complete() bool {
	return s.Source != "" && s.Title != "" && s.Author != ""
}

// Citable reports whether the descriptor is ready for a formal citation:
// a resolvable URL plus author or title.
func (s *SourceInfo) Citable() bool {
	return s.Source != "" && s.URL != "" && (s.Author != "" || s.Title != "")
}

// Citation renders a basic citation string for the descriptor.
func (s *SourceInfo) Citation() string {
	var b strings.Builder
	if s.Title != "" {
		b.WriteString("\"" + s.Title + "\"")
	}
	if s.Author != "" {
		if b.Len() > 0 {
			b.WriteString(" by ")
		}
		b.WriteString(s.Author)
	}
	if s.Source != "" {
		if b.Len() > 0 {
			b.WriteString(", ")
		}
		b.WriteString(s.Source)
	}
	if s.URL != "" {
		b.WriteString(" (" + s.URL + ")")
	}
	return b.String()
}

// Chunk is the immutable unit of indexed content. Created once during
// ingestion and never mutated; removal happens only through a rebuild.
type Chunk struct {
	ID              string            `json:"chunk_id"`
	Content         string            `json:"content"`
	Source          SourceInfo        `json:"source"`
	Entities        []string          `json:"entities,omitempty"`
	TemporalContext string            `json:"temporal_context,omitempty"`
	ChunkType       string            `json:"chunk_type,omitempty"`
	Extra           map[string]string `json:"extra,omitempty"`

	// Seq is the insertion sequence assigned by the vector index. It is the
	// deterministic tie-breaker for equal-score search hits.
	Seq uint32 `json:"-"`
}

// DedupEntities returns entities with duplicates removed, preserving the
// order of first appearance. Comparison is case-insensitive; the first
// spelling wins.
func DedupEntities(entities []string) []string {
	if len(entities) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(entities))
	out := make([]string, 0, len(entities))
	for _, e := range entities {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		key := strings.ToLower(e)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, e)
	}
	return out
}
