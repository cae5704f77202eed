// Package storage persists the chunk corpus and source registry. The store is
// the authoritative record; vector indexes are rebuilt from it.
package storage

import (
	"context"

	"github.com/cratedig/liner/internal/models"
)

// SourceRecord is a registered source with its trust weight.
type SourceRecord struct {
	Name         string
	Trust        float64
	CanonicalURL string
}

// Store is the corpus persistence interface.
type Store interface {
	// AddChunks inserts or replaces chunks by id.
	AddChunks(ctx context.Context, chunks []models.Chunk) error
	// ListChunks returns all chunks in insertion order.
	ListChunks(ctx context.Context) ([]models.Chunk, error)
	// CountChunks returns the number of stored chunks.
	CountChunks(ctx context.Context) (int, error)
	// UpsertSource registers a source or updates its trust and URL.
	UpsertSource(ctx context.Context, rec SourceRecord) error
	// ListSources returns all registered sources keyed by lowercased name.
	ListSources(ctx context.Context) (map[string]SourceRecord, error)
	Close() error
}
