package ingest

import (
	"errors"
	"testing"

	"github.com/cratedig/liner/internal/models"
)

func TestParseBatchChunkRecords(t *testing.T) {
	data := []byte(`[
		{
			"chunk_id": "c1",
			"content": "Kind of Blue was recorded in two sessions in 1959.",
			"source": "liner_notes",
			"title": "Kind of Blue",
			"author": "Bill Evans",
			"url": "https://example.com/kob",
			"paragraph_number": 2,
			"content_type": "liner_notes",
			"entities": ["Miles Davis", "miles davis", "Bill Evans"],
			"temporal_context": "1959",
			"chunk_type": "passage",
			"metadata": {"label": "Columbia"}
		},
		{"content": "A chunk without an id."}
	]`)

	chunks, err := ParseBatch(data)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks", len(chunks))
	}

	c := chunks[0]
	if c.ID != "c1" || c.Source.Author != "Bill Evans" || c.Source.ParagraphNumber != 2 {
		t.Errorf("chunk = %+v", c)
	}
	if len(c.Entities) != 2 {
		t.Errorf("entities not deduplicated: %v", c.Entities)
	}
	if c.Entities[0] != "Miles Davis" {
		t.Errorf("dedup should keep the first spelling, got %q", c.Entities[0])
	}
	if c.Extra["label"] != "Columbia" {
		t.Errorf("metadata = %v", c.Extra)
	}

	if chunks[1].ID == "" {
		t.Error("missing id should be generated")
	}
}

func TestParseBatchRelationshipRecords(t *testing.T) {
	data := []byte(`[
		{
			"from_entity": "John Coltrane",
			"to_entity": "Miles Davis",
			"relationship_type": "played_with",
			"evidence": "Coltrane joined the quintet in 1955.",
			"source": "biography"
		}
	]`)

	chunks, err := ParseBatch(data)
	if err != nil {
		t.Fatal(err)
	}
	c := chunks[0]
	want := "John Coltrane played with Miles Davis. Coltrane joined the quintet in 1955."
	if c.Content != want {
		t.Errorf("content = %q, want %q", c.Content, want)
	}
	if c.ChunkType != "relationship" {
		t.Errorf("chunk_type = %q", c.ChunkType)
	}
	if len(c.Entities) != 2 || c.Entities[0] != "John Coltrane" || c.Entities[1] != "Miles Davis" {
		t.Errorf("entities = %v", c.Entities)
	}
}

func TestParseBatchRejectsEmptyRecords(t *testing.T) {
	if _, err := ParseBatch([]byte(`[{"chunk_id": "x"}]`)); !errors.Is(err, models.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
	if _, err := ParseBatch([]byte(`{not json`)); !errors.Is(err, models.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}
