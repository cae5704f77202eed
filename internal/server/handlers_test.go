package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/cratedig/liner/internal/embed"
	"github.com/cratedig/liner/internal/gen"
	"github.com/cratedig/liner/internal/hnsw"
	"github.com/cratedig/liner/internal/index"
	"github.com/cratedig/liner/internal/ingest"
	"github.com/cratedig/liner/internal/models"
	"github.com/cratedig/liner/internal/orchestrator"
	"github.com/cratedig/liner/internal/search"
	"github.com/cratedig/liner/internal/storage"
)

type memStore struct {
	mu     sync.Mutex
	chunks []models.Chunk
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
	return append([]models.Chunk(nil), s.chunks...), nil
}

func (s *memStore) CountChunks(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chunks), nil
}

func (s *memStore) UpsertSource(context.Context, storage.SourceRecord) error { return nil }

func (s *memStore) ListSources(context.Context) (map[string]storage.SourceRecord, error) {
	return nil, nil
}

func (s *memStore) Close() error { return nil }

func newTestServer(t *testing.T) (*Server, *memStore) {
	t.Helper()
	logger := zap.NewNop()
	store := &memStore{}
	embedder := embed.NewMockEmbedder(64)
	cfg := hnsw.Config{Dimensions: 64, M: 8, EfConstruction: 64, EfSearch: 32, Seed: 1}
	manager := index.NewManager(store, embedder, cfg, nil, filepath.Join(t.TempDir(), "idx"), 2, logger)

	chunks := make([]models.Chunk, 8)
	for i := range chunks {
		chunks[i] = models.Chunk{
			ID:      fmt.Sprintf("c%d", i),
			Content: fmt.Sprintf("Miles Davis session notes passage %d", i),
			Source:  models.SourceInfo{Source: "liner_notes", Title: "Kind of Blue"},
		}
	}
	if err := store.AddChunks(context.Background(), chunks); err != nil {
		t.Fatal(err)
	}
	if _, err := manager.Build(context.Background(), "cultural", false); err != nil {
		t.Fatal(err)
	}

	searcher := search.NewService(manager, embedder,
		search.Config{DefaultK: 5, MaxK: 20, CandidateK: 100, ExcerptWindow: 200}, logger)
	orch := orchestrator.New(searcher, manager, gen.Disabled{}, orchestrator.Config{
		IndexName: "cultural", DefaultK: 5, MaxK: 20, MinContextHits: 10, MaxAttempts: 2,
	}, logger)
	ingestor := ingest.NewIngestor(store, manager, "cultural", 2, logger)

	srv := New(Config{Host: "127.0.0.1", Port: 0, MaxConcurrentQueries: 4, RequestTimeout: 10 * time.Second},
		searcher, orch, manager, ingestor, gen.Disabled{}, "cultural", logger)
	return srv, store
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func TestSearchEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/search",
		map[string]any{"query": "Miles Davis sessions", "k": 3})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	var resp models.SearchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Hits) != 3 {
		t.Fatalf("hits = %d", len(resp.Hits))
	}
	if resp.Hits[0].Confidence < resp.Hits[1].Confidence {
		t.Error("hits not ordered by confidence")
	}
}

func TestSearchEndpointRejectsEmptyQuery(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv, http.MethodPost, "/api/v1/search", map[string]any{"query": " "})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestSearchEndpointUnknownIndex(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv, http.MethodPost, "/api/v1/search",
		map[string]any{"query": "x", "index_name": "missing"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestQueryEndpointDegradesWithoutGenerator(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/query",
		map[string]any{"query": "Tell me about the Miles Davis sessions"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	var resp models.QueryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Mode != models.ModeDegraded {
		t.Fatalf("mode = %s, want degraded with a disabled generator", resp.Mode)
	}
	if resp.Response == "" || len(resp.Sources) == 0 {
		t.Error("degraded response should still carry content and attributions")
	}
}

func TestBuildEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/index/build",
		map[string]any{"index_name": "cultural"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	var resp models.BuildResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "exists" {
		t.Fatalf("status = %q, want exists without force", resp.Status)
	}

	rec = doJSON(t, srv, http.MethodPost, "/api/v1/index/build",
		map[string]any{"index_name": "cultural", "force_rebuild": true})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "built" || resp.ChunksIndexed != 8 {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestIngestEndpoint(t *testing.T) {
	srv, store := newTestServer(t)

	batch := []map[string]any{
		{"content": "Coltrane's sheets of sound defined his late fifties playing.",
			"source": "biography", "entities": []string{"John Coltrane"}},
		{"from_entity": "John Coltrane", "to_entity": "Miles Davis",
			"relationship_type": "played_with", "source": "biography"},
	}
	rec := doJSON(t, srv, http.MethodPost, "/api/v1/ingest", batch)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	var resp struct {
		Stored  int `json:"stored"`
		Indexed int `json:"indexed"`
		Failed  int `json:"failed"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Stored != 2 || resp.Indexed != 2 || resp.Failed != 0 {
		t.Fatalf("resp = %+v", resp)
	}

	n, _ := store.CountChunks(context.Background())
	if n != 10 {
		t.Errorf("store has %d chunks, want 10", n)
	}
}

func TestIngestEndpointRejectsBadBatch(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/ingest", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestStatusAndHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/api/v1/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var status struct {
		Indexes []struct {
			Name   string `json:"name"`
			Chunks int    `json:"chunks"`
		} `json:"indexes"`
		Generator string `json:"generator"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatal(err)
	}
	if len(status.Indexes) != 1 || status.Indexes[0].Chunks != 8 {
		t.Fatalf("status = %+v", status)
	}
	if status.Generator != "open" {
		t.Errorf("generator state = %q", status.Generator)
	}

	rec = doJSON(t, srv, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d", rec.Code)
	}
}
