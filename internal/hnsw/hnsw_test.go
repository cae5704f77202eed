package hnsw

import (
	"bytes"
	"fmt"
	"math/rand"
	"testing"

	"github.com/cratedig/liner/pkg/utils"
)

func testConfig(dims int) Config {
	return Config{Dimensions: dims, M: 8, EfConstruction: 64, EfSearch: 32, Seed: 1}
}

func randomUnit(rng *rand.Rand, dims int) []float32 {
	v := make([]float32, dims)
	for i := range v {
		v[i] = float32(rng.NormFloat64())
	}
	utils.NormalizeL2(v)
	return v
}

func buildRandom(t *testing.T, cfg Config, n int, dataSeed int64) (*Graph, [][]float32) {
	t.Helper()
	rng := rand.New(rand.NewSource(dataSeed))
	g := New(cfg)
	vecs := make([][]float32, n)
	for i := 0; i < n; i++ {
		vecs[i] = randomUnit(rng, cfg.Dimensions)
		if _, err := g.Insert(fmt.Sprintf("chunk-%d", i), vecs[i]); err != nil {
			t.Fatal(err)
		}
	}
	return g, vecs
}

func TestSearchEmptyGraph(t *testing.T) {
	g := New(testConfig(8))
	if got := g.Search(make([]float32, 8), 5, nil); got != nil {
		t.Fatalf("expected nil from empty graph, got %d results", len(got))
	}
}

func TestInsertDimensionMismatch(t *testing.T) {
	g := New(testConfig(8))
	if _, err := g.Insert("x", make([]float32, 4)); err == nil {
		t.Fatal("expected dimension error")
	}
}

func TestSearchReturnsAtMostK(t *testing.T) {
	g, vecs := buildRandom(t, testConfig(16), 50, 7)
	results := g.Search(vecs[0], 10, nil)
	if len(results) != 10 {
		t.Fatalf("got %d results, want 10", len(results))
	}
	for i := 1; i < len(results); i++ {
		if results[i].Similarity > results[i-1].Similarity {
			t.Fatal("results not sorted by similarity descending")
		}
	}
	if results[0].ID != "chunk-0" {
		t.Errorf("query vector's own node should rank first, got %s", results[0].ID)
	}
}

func TestSearchRecallAgainstBruteForce(t *testing.T) {
	cfg := testConfig(16)
	g, _ := buildRandom(t, cfg, 200, 11)

	rng := rand.New(rand.NewSource(99))
	var hits, total int
	for q := 0; q < 20; q++ {
		query := randomUnit(rng, cfg.Dimensions)
		exact := g.bruteScan(query, func(uint32) bool { return true })[:10]
		got := g.Search(query, 10, nil)
		want := make(map[uint32]bool, 10)
		for _, s := range exact {
			want[s.seq] = true
		}
		for _, r := range got {
			if want[r.Seq] {
				hits++
			}
		}
		total += 10
	}
	if recall := float64(hits) / float64(total); recall < 0.9 {
		t.Errorf("recall = %.2f, want >= 0.90", recall)
	}
}

func TestFilteredSearchDeliversK(t *testing.T) {
	cfg := testConfig(16)
	g, _ := buildRandom(t, cfg, 300, 13)

	// Sparse filter: every 25th node qualifies, 12 in total.
	accept := func(seq uint32) bool { return seq%25 == 0 }
	rng := rand.New(rand.NewSource(5))
	query := randomUnit(rng, cfg.Dimensions)

	results := g.Search(query, 10, accept)
	if len(results) != 10 {
		t.Fatalf("filtered search returned %d results, want 10", len(results))
	}
	for _, r := range results {
		if r.Seq%25 != 0 {
			t.Fatalf("result %d does not satisfy the filter", r.Seq)
		}
	}
}

func TestFilteredSearchExhaustsSmallPopulation(t *testing.T) {
	cfg := testConfig(16)
	g, _ := buildRandom(t, cfg, 100, 17)

	accept := func(seq uint32) bool { return seq == 3 || seq == 42 || seq == 77 }
	rng := rand.New(rand.NewSource(6))
	results := g.Search(randomUnit(rng, cfg.Dimensions), 10, accept)
	if len(results) != 3 {
		t.Fatalf("got %d results, want all 3 accepted nodes", len(results))
	}
}

func TestTieBreakByInsertionOrder(t *testing.T) {
	cfg := testConfig(4)
	g := New(cfg)
	v := []float32{1, 0, 0, 0}
	for i := 0; i < 5; i++ {
		dup := make([]float32, 4)
		copy(dup, v)
		if _, err := g.Insert(fmt.Sprintf("dup-%d", i), dup); err != nil {
			t.Fatal(err)
		}
	}
	results := g.Search(v, 5, nil)
	if len(results) != 5 {
		t.Fatalf("got %d results", len(results))
	}
	for i, r := range results {
		if r.Seq != uint32(i) {
			t.Fatalf("equal-similarity results out of insertion order: pos %d has seq %d", i, r.Seq)
		}
	}
}

func TestDeterministicRebuild(t *testing.T) {
	cfg := testConfig(16)
	g1, _ := buildRandom(t, cfg, 80, 23)
	g2, _ := buildRandom(t, cfg, 80, 23)

	rng := rand.New(rand.NewSource(31))
	for q := 0; q < 5; q++ {
		query := randomUnit(rng, cfg.Dimensions)
		r1 := g1.Search(query, 10, nil)
		r2 := g2.Search(query, 10, nil)
		if len(r1) != len(r2) {
			t.Fatal("rebuilds disagree on result count")
		}
		for i := range r1 {
			if r1[i].Seq != r2[i].Seq {
				t.Fatalf("rebuilds disagree at position %d: %d vs %d", i, r1[i].Seq, r2[i].Seq)
			}
		}
	}
}

func TestGraphRoundTrip(t *testing.T) {
	cfg := testConfig(16)
	g, _ := buildRandom(t, cfg, 60, 29)

	var buf bytes.Buffer
	if err := g.WriteGraph(&buf); err != nil {
		t.Fatal(err)
	}
	loaded, err := ReadGraph(&buf, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Len() != g.Len() {
		t.Fatalf("loaded %d nodes, want %d", loaded.Len(), g.Len())
	}

	rng := rand.New(rand.NewSource(37))
	for q := 0; q < 5; q++ {
		query := randomUnit(rng, cfg.Dimensions)
		orig := g.Search(query, 10, nil)
		got := loaded.Search(query, 10, nil)
		if len(orig) != len(got) {
			t.Fatal("loaded graph disagrees on result count")
		}
		for i := range orig {
			if orig[i].Seq != got[i].Seq || orig[i].ID != got[i].ID {
				t.Fatalf("loaded graph disagrees at position %d", i)
			}
		}
	}
}

func TestReadGraphRejectsGarbage(t *testing.T) {
	if _, err := ReadGraph(bytes.NewReader([]byte{1, 2, 3}), testConfig(8)); err == nil {
		t.Fatal("expected corruption error")
	}
}
