// Package ingest loads content batches into the corpus store and the live
// index, either from POSTed payloads or from a watched drop directory.
package ingest

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/cratedig/liner/internal/models"
)

// record is one entry in a content batch. Two shapes are accepted: a plain
// chunk, or a knowledge-graph relationship that gets flattened into a chunk.
type record struct {
	ChunkID         string            `json:"chunk_id"`
	Content         string            `json:"content"`
	Source          string            `json:"source"`
	Title           string            `json:"title"`
	URL             string            `json:"url"`
	Author          string            `json:"author"`
	ParagraphNumber int               `json:"paragraph_number"`
	ContentType     string            `json:"content_type"`
	Entities        []string          `json:"entities"`
	TemporalContext string            `json:"temporal_context"`
	ChunkType       string            `json:"chunk_type"`
	Metadata        map[string]string `json:"metadata"`

	FromEntity       string `json:"from_entity"`
	ToEntity         string `json:"to_entity"`
	RelationshipType string `json:"relationship_type"`
	Evidence         string `json:"evidence"`
}

// ParseBatch decodes a JSON array of records into chunks. Records without an
// id get a generated one; entities are deduplicated preserving order and
// first spelling.
func ParseBatch(data []byte) ([]models.Chunk, error) {
	var records []record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("%w: decoding batch: %v", models.ErrInvalidInput, err)
	}

	chunks := make([]models.Chunk, 0, len(records))
	for i, r := range records {
		c, err := r.toChunk()
		if err != nil {
			return nil, fmt.Errorf("%w: record %d: %v", models.ErrInvalidInput, i, err)
		}
		chunks = append(chunks, c)
	}
	return chunks, nil
}

// LoadBatchFile reads and parses a batch file.
func LoadBatchFile(path string) ([]models.Chunk, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading batch file: %w", err)
	}
	return ParseBatch(data)
}

func (r record) toChunk() (models.Chunk, error) {
	content := strings.TrimSpace(r.Content)
	entities := r.Entities
	chunkType := r.ChunkType

	if content == "" && r.FromEntity != "" && r.ToEntity != "" {
		content = flattenRelationship(r)
		entities = append([]string{r.FromEntity, r.ToEntity}, entities...)
		if chunkType == "" {
			chunkType = "relationship"
		}
	}
	if content == "" {
		return models.Chunk{}, fmt.Errorf("record has no content")
	}

	id := strings.TrimSpace(r.ChunkID)
	if id == "" {
		id = uuid.NewString()
	}
	return models.Chunk{
		ID:      id,
		Content: content,
		Source: models.SourceInfo{
			Source:          r.Source,
			Title:           r.Title,
			URL:             r.URL,
			Author:          r.Author,
			ParagraphNumber: r.ParagraphNumber,
			ContentType:     r.ContentType,
		},
		Entities:        models.DedupEntities(entities),
		TemporalContext: r.TemporalContext,
		ChunkType:       chunkType,
		Extra:           r.Metadata,
	}, nil
}

// flattenRelationship renders a relationship record as prose so it embeds and
// retrieves like any other chunk.
func flattenRelationship(r record) string {
	rel := strings.ReplaceAll(strings.TrimSpace(r.RelationshipType), "_", " ")
	if rel == "" {
		rel = "is connected to"
	}
	s := fmt.Sprintf("%s %s %s.", r.FromEntity, rel, r.ToEntity)
	if ev := strings.TrimSpace(r.Evidence); ev != "" {
		s += " " + ev
	}
	return s
}
