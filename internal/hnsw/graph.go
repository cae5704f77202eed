// Package hnsw implements a hierarchical navigable small world graph for
// approximate nearest neighbor search over unit vectors. The graph is not
// safe for concurrent use; callers serialize access.
package hnsw

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/cratedig/liner/internal/models"
	"github.com/cratedig/liner/pkg/utils"
)

// Config holds the graph construction and search parameters.
type Config struct {
	Dimensions     int
	M              int // max neighbors per node above layer 0; layer 0 keeps 2M
	EfConstruction int
	EfSearch       int
	Seed           int64
}

func (c Config) withDefaults() Config {
	if c.M <= 0 {
		c.M = 16
	}
	if c.EfConstruction <= 0 {
		c.EfConstruction = 200
	}
	if c.EfSearch <= 0 {
		c.EfSearch = 100
	}
	return c
}

// Graph is an HNSW index. Node identity is the insertion sequence number,
// which also breaks similarity ties so results are stable across runs.
type Graph struct {
	cfg      Config
	ml       float64
	rng      *rand.Rand
	vectors  [][]float32
	ids      []string
	levels   []int
	links    [][][]uint32 // node -> layer -> neighbor seqs
	entry    int32
	maxLevel int
}

// New creates an empty graph. The seed fixes the level assignment sequence so
// identical insertion orders produce identical graphs.
func New(cfg Config) *Graph {
	cfg = cfg.withDefaults()
	return &Graph{
		cfg:   cfg,
		ml:    1.0 / math.Log(float64(cfg.M)),
		rng:   rand.New(rand.NewSource(cfg.Seed)),
		entry: -1,
	}
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.vectors) }

// Config returns the construction parameters.
func (g *Graph) Config() Config { return g.cfg }

// ID returns the external id of a node.
func (g *Graph) ID(seq uint32) string { return g.ids[seq] }

// Vector returns the stored vector of a node. The caller must not mutate it.
func (g *Graph) Vector(seq uint32) []float32 { return g.vectors[seq] }

func (g *Graph) randomLevel() int {
	return int(-math.Log(g.rng.Float64()+1e-12) * g.ml)
}

func (g *Graph) maxNeighbors(layer int) int {
	if layer == 0 {
		return 2 * g.cfg.M
	}
	return g.cfg.M
}

// Insert adds a vector under the given id and returns its sequence number.
func (g *Graph) Insert(id string, vec []float32) (uint32, error) {
	if len(vec) != g.cfg.Dimensions {
		return 0, fmt.Errorf("%w: got %d, want %d", models.ErrDimensionMismatch, len(vec), g.cfg.Dimensions)
	}
	seq := uint32(len(g.vectors))
	level := g.randomLevel()

	g.vectors = append(g.vectors, vec)
	g.ids = append(g.ids, id)
	g.levels = append(g.levels, level)
	layers := make([][]uint32, level+1)
	g.links = append(g.links, layers)

	if g.entry < 0 {
		g.entry = int32(seq)
		g.maxLevel = level
		return seq, nil
	}

	ep := uint32(g.entry)
	// Greedy descent through the layers above the new node's level.
	for layer := g.maxLevel; layer > level; layer-- {
		ep = g.greedyClosest(vec, ep, layer)
	}

	top := level
	if top > g.maxLevel {
		top = g.maxLevel
	}
	for layer := top; layer >= 0; layer-- {
		found := g.searchLayer(vec, []uint32{ep}, g.cfg.EfConstruction, layer, nil)
		neighbors := g.selectClosest(found, g.cfg.M)
		g.links[seq][layer] = neighbors
		for _, n := range neighbors {
			g.links[n][layer] = append(g.links[n][layer], seq)
			if cap := g.maxNeighbors(layer); len(g.links[n][layer]) > cap {
				g.links[n][layer] = g.pruneNeighbors(n, g.links[n][layer], cap)
			}
		}
		if len(found) > 0 {
			ep = found[0].seq
		}
	}

	if level > g.maxLevel {
		g.maxLevel = level
		g.entry = int32(seq)
	}
	return seq, nil
}

// greedyClosest walks a single layer toward the query, one best neighbor at a
// time, and returns the local minimum.
func (g *Graph) greedyClosest(query []float32, ep uint32, layer int) uint32 {
	best := ep
	bestSim := utils.Dot(query, g.vectors[best])
	for {
		improved := false
		for _, n := range g.neighborsAt(best, layer) {
			if sim := utils.Dot(query, g.vectors[n]); sim > bestSim {
				best, bestSim = n, sim
				improved = true
			}
		}
		if !improved {
			return best
		}
	}
}

func (g *Graph) neighborsAt(seq uint32, layer int) []uint32 {
	if layer >= len(g.links[seq]) {
		return nil
	}
	return g.links[seq][layer]
}

type scored struct {
	seq uint32
	sim float64
}

// searchLayer is the beam search over one layer. It returns up to ef nodes
// ordered best first. When accept is non-nil only accepted nodes enter the
// result set, but rejected nodes still guide the walk.
func (g *Graph) searchLayer(query []float32, eps []uint32, ef, layer int, accept func(uint32) bool) []scored {
	visited := make(map[uint32]bool, ef*4)
	var candidates maxHeap // best first
	var results minHeap    // worst first, bounded by ef

	for _, ep := range eps {
		if visited[ep] {
			continue
		}
		visited[ep] = true
		s := scored{ep, utils.Dot(query, g.vectors[ep])}
		candidates.push(s)
		if accept == nil || accept(ep) {
			results.push(s)
		}
	}

	for candidates.len() > 0 {
		c := candidates.pop()
		if results.len() >= ef && c.sim < results.peek().sim {
			break
		}
		for _, n := range g.neighborsAt(c.seq, layer) {
			if visited[n] {
				continue
			}
			visited[n] = true
			sim := utils.Dot(query, g.vectors[n])
			if results.len() < ef || sim > results.peek().sim {
				candidates.push(scored{n, sim})
				if accept == nil || accept(n) {
					results.push(scored{n, sim})
					if results.len() > ef {
						results.pop()
					}
				}
			}
		}
	}

	out := results.drainDescending()
	return out
}

// selectClosest keeps the m best candidates as neighbor links.
func (g *Graph) selectClosest(found []scored, m int) []uint32 {
	if len(found) > m {
		found = found[:m]
	}
	out := make([]uint32, len(found))
	for i, s := range found {
		out[i] = s.seq
	}
	return out
}

// pruneNeighbors trims an overflowing neighbor list back to cap, keeping the
// links closest to the node itself.
func (g *Graph) pruneNeighbors(seq uint32, neighbors []uint32, cap int) []uint32 {
	scoredN := make([]scored, len(neighbors))
	for i, n := range neighbors {
		scoredN[i] = scored{n, utils.Dot(g.vectors[seq], g.vectors[n])}
	}
	sortScored(scoredN)
	out := make([]uint32, cap)
	for i := 0; i < cap; i++ {
		out[i] = scoredN[i].seq
	}
	return out
}
