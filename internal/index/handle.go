// Package index manages named vector indexes: building them from the corpus
// store, serving filtered searches, and persisting snapshots for fast starts.
package index

import (
	"strings"
	"sync"
	"time"

	"github.com/cratedig/liner/internal/hnsw"
	"github.com/cratedig/liner/internal/models"
)

// Scored is a search hit: the chunk, its similarity to the query, and its
// insertion sequence for stable tie-breaking downstream.
type Scored struct {
	Chunk      *models.Chunk
	Seq        uint32
	Similarity float64
}

// Handle is one live index: the HNSW graph plus the chunk metadata and the
// vocabulary sets that drive filter validation and trust weighting. Reads and
// writes are serialized by an internal RWMutex; a rebuild produces a fresh
// Handle that the manager swaps in atomically.
type Handle struct {
	mu       sync.RWMutex
	graph    *hnsw.Graph
	bySeq    []*models.Chunk
	byID     map[string]uint32
	sources  map[string]string // lowercased -> display form
	entities map[string]string
	trust    map[string]float64 // lowercased source -> weight
	builtAt  time.Time
}

// NewHandle creates an empty index with the given construction parameters and
// trust weights (lowercased source name to weight).
func NewHandle(cfg hnsw.Config, trust map[string]float64) *Handle {
	t := make(map[string]float64, len(trust))
	for name, w := range trust {
		t[strings.ToLower(name)] = w
	}
	return &Handle{
		graph:    hnsw.New(cfg),
		byID:     make(map[string]uint32),
		sources:  make(map[string]string),
		entities: make(map[string]string),
		trust:    t,
		builtAt:  time.Now(),
	}
}

// Insert adds a chunk and its vector. Re-inserting an existing id updates the
// stored metadata without adding a graph node.
func (h *Handle) Insert(chunk models.Chunk, vec []float32) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if seq, ok := h.byID[chunk.ID]; ok {
		chunk.Seq = seq
		h.bySeq[seq] = &chunk
		h.absorbVocab(&chunk)
		return nil
	}

	seq, err := h.graph.Insert(chunk.ID, vec)
	if err != nil {
		return err
	}
	chunk.Seq = seq
	h.bySeq = append(h.bySeq, &chunk)
	h.byID[chunk.ID] = seq
	h.absorbVocab(&chunk)
	return nil
}

func (h *Handle) absorbVocab(c *models.Chunk) {
	if name := strings.TrimSpace(c.Source.Source); name != "" {
		h.sources[strings.ToLower(name)] = name
	}
	for _, e := range c.Entities {
		if e = strings.TrimSpace(e); e != "" {
			h.entities[strings.ToLower(e)] = e
		}
	}
}

// Search returns up to k hits nearest the query vector. A non-nil filter
// restricts hits to chunks it accepts.
func (h *Handle) Search(query []float32, k int, filter func(*models.Chunk) bool) []Scored {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var seqFilter func(uint32) bool
	if filter != nil {
		seqFilter = func(seq uint32) bool { return filter(h.bySeq[seq]) }
	}
	found := h.graph.Search(query, k, seqFilter)
	out := make([]Scored, len(found))
	for i, r := range found {
		out[i] = Scored{Chunk: h.bySeq[r.Seq], Seq: r.Seq, Similarity: r.Similarity}
	}
	return out
}

// KnownSource reports whether any indexed chunk carries the source.
func (h *Handle) KnownSource(name string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.sources[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

// KnownEntity reports whether any indexed chunk mentions the entity.
func (h *Handle) KnownEntity(name string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.entities[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

// TrustWeight returns the configured trust for a source, defaulting to 1.
func (h *Handle) TrustWeight(source string) float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if w, ok := h.trust[strings.ToLower(strings.TrimSpace(source))]; ok {
		return w
	}
	return 1.0
}

// SourceVocabulary returns the display names of every source in the index.
func (h *Handle) SourceVocabulary() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.sources))
	for _, display := range h.sources {
		out = append(out, display)
	}
	return out
}

// Len returns the number of indexed chunks.
func (h *Handle) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.bySeq)
}

// BuiltAt returns when this handle was created.
func (h *Handle) BuiltAt() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.builtAt
}
