package embed

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cratedig/liner/internal/models"
	"github.com/cratedig/liner/pkg/utils"
	"go.uber.org/zap"
)

type embeddingRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

// fakeProvider serves an OpenAI-compatible embeddings endpoint.
func fakeProvider(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/embeddings", handler)
	return httptest.NewServer(mux)
}

func writeEmbeddings(w http.ResponseWriter, n, dim int) {
	type item struct {
		Object    string    `json:"object"`
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	}
	items := make([]item, n)
	for i := range items {
		vec := make([]float32, dim)
		vec[i%dim] = 1
		items[i] = item{Object: "embedding", Index: i, Embedding: vec}
	}
	json.NewEncoder(w).Encode(map[string]any{
		"object": "list",
		"data":   items,
		"model":  "test-model",
	})
}

func newTestEmbedder(t *testing.T, url string, dims, batch, retries int) *OpenAIEmbedder {
	t.Helper()
	e, err := NewOpenAIEmbedder(OpenAIConfig{
		APIKey:     "test-key",
		BaseURL:    url,
		Model:      "test-model",
		Dimensions: dims,
		BatchSize:  batch,
		MaxRetries: retries,
		Timeout:    5 * time.Second,
	}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func TestEmbedRetriesThrottling(t *testing.T) {
	var calls int32
	srv := fakeProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":{"message":"rate limited","type":"rate_limit_error"}}`))
			return
		}
		writeEmbeddings(w, 1, 8)
	})
	defer srv.Close()

	e := newTestEmbedder(t, srv.URL, 8, 10, 5)
	vec, err := e.Embed(context.Background(), "miles davis")
	if err != nil {
		t.Fatalf("expected retry to succeed: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
	if d := utils.Dot(vec, vec); d < 0.999 || d > 1.001 {
		t.Errorf("vector not unit length, |v|^2 = %f", d)
	}
}

func TestEmbedClientErrorIsNotRetried(t *testing.T) {
	var calls int32
	srv := fakeProvider(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"bad input","type":"invalid_request_error"}}`))
	})
	defer srv.Close()

	e := newTestEmbedder(t, srv.URL, 8, 10, 5)
	if _, err := e.Embed(context.Background(), "x"); err == nil {
		t.Fatal("expected error")
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("calls = %d, want 1 (no retries on 4xx)", got)
	}
}

func TestEmbedDimensionMismatch(t *testing.T) {
	srv := fakeProvider(t, func(w http.ResponseWriter, r *http.Request) {
		writeEmbeddings(w, 1, 4)
	})
	defer srv.Close()

	e := newTestEmbedder(t, srv.URL, 8, 10, 3)
	_, err := e.Embed(context.Background(), "x")
	if !errors.Is(err, models.ErrDimensionMismatch) {
		t.Fatalf("err = %v, want ErrDimensionMismatch", err)
	}
}

func TestEmbedBatchIsolatesSubBatchFailures(t *testing.T) {
	srv := fakeProvider(t, func(w http.ResponseWriter, r *http.Request) {
		var req embeddingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		for _, in := range req.Input {
			if strings.Contains(in, "poison") {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(`{"error":{"message":"rejected","type":"invalid_request_error"}}`))
				return
			}
		}
		writeEmbeddings(w, len(req.Input), 8)
	})
	defer srv.Close()

	e := newTestEmbedder(t, srv.URL, 8, 2, 0)
	texts := []string{"a", "b", "poison pill", "d", "e", "f"}
	results, err := e.EmbedBatch(context.Background(), texts)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != len(texts) {
		t.Fatalf("results = %d, want %d", len(results), len(texts))
	}
	// Sub-batch of size 2: items 2 and 3 share the poisoned call.
	for i, r := range results {
		wantErr := i == 2 || i == 3
		if wantErr && r.Err == nil {
			t.Errorf("item %d: expected error", i)
		}
		if !wantErr && (r.Err != nil || r.Vector == nil) {
			t.Errorf("item %d: expected vector, got err=%v", i, r.Err)
		}
	}
}

func TestMockEmbedderDeterministic(t *testing.T) {
	m := NewMockEmbedder(64)
	a1, _ := m.Embed(context.Background(), "Blue Note pressing")
	a2, _ := m.Embed(context.Background(), "Blue Note pressing")
	b, _ := m.Embed(context.Background(), "completely unrelated text here")

	if utils.Dot(a1, a2) < 0.999 {
		t.Error("identical texts should produce identical vectors")
	}
	if utils.Dot(a1, b) > 0.99 {
		t.Error("unrelated texts should not be near-identical")
	}
}
