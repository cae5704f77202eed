package index

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/cratedig/liner/internal/embed"
	"github.com/cratedig/liner/internal/hnsw"
	"github.com/cratedig/liner/internal/models"
	"github.com/cratedig/liner/internal/storage"
)

type memStore struct {
	mu      sync.Mutex
	chunks  []models.Chunk
	sources map[string]storage.SourceRecord
}

func newMemStore() *memStore {
	return &memStore{sources: make(map[string]storage.SourceRecord)}
}

func (s *memStore) AddChunks(_ context.Context, chunks []models.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = append(s.chunks, chunks...)
	return nil
}

func (s *memStore) ListChunks(_ context.Context) ([]models.Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Chunk, len(s.chunks))
	copy(out, s.chunks)
	return out, nil
}

func (s *memStore) CountChunks(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chunks), nil
}

func (s *memStore) UpsertSource(_ context.Context, rec storage.SourceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sources[rec.Name] = rec
	return nil
}

func (s *memStore) ListSources(_ context.Context) (map[string]storage.SourceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]storage.SourceRecord, len(s.sources))
	for k, v := range s.sources {
		out[k] = v
	}
	return out, nil
}

func (s *memStore) Close() error { return nil }

// blockingEmbedder gates EmbedBatch on a channel so tests can hold a build
// open while probing the manager.
type blockingEmbedder struct {
	embed.Embedder
	release chan struct{}
	started chan struct{}
	once    sync.Once
}

func (b *blockingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([]embed.BatchResult, error) {
	b.once.Do(func() { close(b.started) })
	<-b.release
	return b.Embedder.EmbedBatch(ctx, texts)
}

func testChunks(n int) []models.Chunk {
	chunks := make([]models.Chunk, n)
	for i := range chunks {
		chunks[i] = models.Chunk{
			ID:      fmt.Sprintf("c%d", i),
			Content: fmt.Sprintf("chunk %d about artist %d and their recordings", i, i%5),
			Source:  models.SourceInfo{Source: "liner_notes", Title: fmt.Sprintf("Record %d", i)},
		}
	}
	return chunks
}

func newTestManager(t *testing.T, store storage.Store, embedder embed.Embedder) *Manager {
	t.Helper()
	cfg := hnsw.Config{Dimensions: 32, M: 8, EfConstruction: 32, EfSearch: 16, Seed: 1}
	return NewManager(store, embedder, cfg, map[string]float64{"liner_notes": 0.9},
		filepath.Join(t.TempDir(), "indexes"), 2, zap.NewNop())
}

func TestBuildFromStore(t *testing.T) {
	store := newMemStore()
	if err := store.AddChunks(context.Background(), testChunks(30)); err != nil {
		t.Fatal(err)
	}
	m := newTestManager(t, store, embed.NewMockEmbedder(32))

	stats, err := m.Build(context.Background(), "cultural", false)
	if err != nil {
		t.Fatal(err)
	}
	if stats.ChunksIndexed != 30 || stats.ChunksFailed != 0 {
		t.Fatalf("stats = %+v", stats)
	}

	h, err := m.Get("cultural")
	if err != nil {
		t.Fatal(err)
	}
	if h.Len() != 30 {
		t.Errorf("index has %d chunks", h.Len())
	}
	if !h.KnownSource("Liner_Notes") {
		t.Error("source vocabulary should be case-insensitive")
	}
	if w := h.TrustWeight("liner_notes"); w != 0.9 {
		t.Errorf("trust = %f", w)
	}
}

func TestBuildSkipsExistingWithoutForce(t *testing.T) {
	store := newMemStore()
	store.AddChunks(context.Background(), testChunks(5))
	m := newTestManager(t, store, embed.NewMockEmbedder(32))

	if _, err := m.Build(context.Background(), "cultural", false); err != nil {
		t.Fatal(err)
	}
	store.AddChunks(context.Background(), testChunks(5)[:1])

	stats, err := m.Build(context.Background(), "cultural", false)
	if err != nil {
		t.Fatal(err)
	}
	if !stats.Skipped {
		t.Fatal("expected skip when index exists and force is false")
	}

	stats, err = m.Build(context.Background(), "cultural", true)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Skipped {
		t.Fatal("force rebuild should not skip")
	}
}

func TestConcurrentBuildRejected(t *testing.T) {
	store := newMemStore()
	store.AddChunks(context.Background(), testChunks(10))

	be := &blockingEmbedder{
		Embedder: embed.NewMockEmbedder(32),
		release:  make(chan struct{}),
		started:  make(chan struct{}),
	}
	m := newTestManager(t, store, be)

	done := make(chan error, 1)
	go func() {
		_, err := m.Build(context.Background(), "cultural", false)
		done <- err
	}()

	<-be.started
	if _, err := m.Build(context.Background(), "cultural", false); !errors.Is(err, models.ErrBuildInProgress) {
		t.Fatalf("err = %v, want ErrBuildInProgress", err)
	}
	// A different index name is not blocked by this build.
	close(be.release)
	if err := <-done; err != nil {
		t.Fatal(err)
	}

	if _, err := m.Build(context.Background(), "cultural", false); err != nil {
		t.Fatalf("build after completion should succeed: %v", err)
	}
}

func TestBuildReportsPartialFailures(t *testing.T) {
	store := newMemStore()
	chunks := testChunks(6)
	store.AddChunks(context.Background(), chunks)

	m := newTestManager(t, store, &failingEmbedder{inner: embed.NewMockEmbedder(32), failID: "chunk 2"})

	stats, err := m.Build(context.Background(), "cultural", false)
	var partial *models.PartialIngestFailure
	if !errors.As(err, &partial) {
		t.Fatalf("err = %v, want PartialIngestFailure", err)
	}
	if stats.ChunksIndexed != 5 || stats.ChunksFailed != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	if len(partial.Failed) != 1 || partial.Failed[0].ChunkID != "c2" {
		t.Fatalf("failures = %+v", partial.Failed)
	}

	// The index is still live with the chunks that embedded.
	h, err := m.Get("cultural")
	if err != nil {
		t.Fatal(err)
	}
	if h.Len() != 5 {
		t.Errorf("index has %d chunks, want 5", h.Len())
	}
}

type failingEmbedder struct {
	inner  embed.Embedder
	failID string
}

func (f *failingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return f.inner.Embed(ctx, text)
}

func (f *failingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([]embed.BatchResult, error) {
	results, err := f.inner.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	for i, text := range texts {
		if len(text) >= len(f.failID) && text[:len(f.failID)] == f.failID {
			results[i] = embed.BatchResult{Err: errors.New("provider rejected input")}
		}
	}
	return results, nil
}

func (f *failingEmbedder) Dimensions() int { return f.inner.Dimensions() }
func (f *failingEmbedder) Close() error    { return nil }

func TestSnapshotRoundTrip(t *testing.T) {
	store := newMemStore()
	store.AddChunks(context.Background(), testChunks(20))
	m := newTestManager(t, store, embed.NewMockEmbedder(32))

	if _, err := m.Build(context.Background(), "cultural", false); err != nil {
		t.Fatal(err)
	}
	h, _ := m.Get("cultural")

	m2 := NewManager(store, embed.NewMockEmbedder(32), m.hcfg, m.trust, m.indexDir, 2, zap.NewNop())
	if err := m2.LoadAll(); err != nil {
		t.Fatal(err)
	}
	h2, err := m2.Get("cultural")
	if err != nil {
		t.Fatal(err)
	}
	if h2.Len() != h.Len() {
		t.Fatalf("loaded %d chunks, want %d", h2.Len(), h.Len())
	}

	query, _ := embed.NewMockEmbedder(32).Embed(context.Background(), "artist 3 recordings")
	orig := h.Search(query, 5, nil)
	loaded := h2.Search(query, 5, nil)
	if len(orig) != len(loaded) {
		t.Fatal("loaded index disagrees on result count")
	}
	for i := range orig {
		if orig[i].Chunk.ID != loaded[i].Chunk.ID {
			t.Fatalf("loaded index disagrees at position %d", i)
		}
	}
}

func TestGetUnknownIndex(t *testing.T) {
	m := newTestManager(t, newMemStore(), embed.NewMockEmbedder(32))
	if _, err := m.Get("nope"); !errors.Is(err, models.ErrUnknownIndex) {
		t.Fatalf("err = %v", err)
	}
}

func TestInsertChunksCreatesIndex(t *testing.T) {
	store := newMemStore()
	m := newTestManager(t, store, embed.NewMockEmbedder(32))

	n, err := m.InsertChunks(context.Background(), "cultural", testChunks(4))
	if err != nil {
		t.Fatal(err)
	}
	if n != 4 {
		t.Fatalf("inserted %d", n)
	}
	h, err := m.Get("cultural")
	if err != nil {
		t.Fatal(err)
	}
	if h.Len() != 4 {
		t.Errorf("index has %d chunks", h.Len())
	}
}
