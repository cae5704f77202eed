package embed

import (
	"context"
	"hash/fnv"
	"strings"

	"github.com/cratedig/liner/pkg/utils"
)

// MockEmbedder produces deterministic unit vectors from token hashes. It is
// used by tests and by local runs without provider credentials; identical
// texts always map to identical vectors, and texts sharing tokens land closer
// together than unrelated ones.
type MockEmbedder struct {
	dimensions int
}

// NewMockEmbedder creates a mock embedder with the given vector width.
func NewMockEmbedder(dimensions int) *MockEmbedder {
	if dimensions <= 0 {
		dimensions = 1024
	}
	return &MockEmbedder{dimensions: dimensions}
}

func (m *MockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, m.dimensions)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(tok))
		sum := h.Sum32()
		idx := int(sum) % m.dimensions
		if idx < 0 {
			idx += m.dimensions
		}
		// Signed contribution so vectors spread over the sphere.
		if sum&1 == 0 {
			vec[idx] += 1
		} else {
			vec[idx] -= 1
		}
	}
	utils.NormalizeL2(vec)
	if isZero(vec) {
		vec[0] = 1
	}
	return vec, nil
}

func (m *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([]BatchResult, error) {
	results := make([]BatchResult, len(texts))
	for i, t := range texts {
		v, err := m.Embed(ctx, t)
		results[i] = BatchResult{Vector: v, Err: err}
	}
	return results, nil
}

func (m *MockEmbedder) Dimensions() int { return m.dimensions }

func (m *MockEmbedder) Close() error { return nil }

func isZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
