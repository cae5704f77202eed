package hnsw

import "github.com/cratedig/liner/pkg/utils"

// filterBreadth widens the beam when a filter is active so the walk does not
// starve on sparse predicates.
const filterBreadth = 4

// Result is a search hit ordered by similarity descending, insertion sequence
// ascending.
type Result struct {
	Seq        uint32
	ID         string
	Similarity float64
}

// Search returns up to k nearest neighbors of query. A non-nil filter
// restricts results to accepted sequence numbers; when the graph walk cannot
// surface k accepted nodes, the remaining accepted nodes are scanned directly
// so a filtered search never returns fewer hits than the corpus holds.
func (g *Graph) Search(query []float32, k int, filter func(uint32) bool) []Result {
	if k <= 0 || g.entry < 0 {
		return nil
	}

	ef := g.cfg.EfSearch
	if ef < k {
		ef = k
	}
	if filter != nil {
		ef *= filterBreadth
	}

	ep := uint32(g.entry)
	for layer := g.maxLevel; layer > 0; layer-- {
		ep = g.greedyClosest(query, ep, layer)
	}
	found := g.searchLayer(query, []uint32{ep}, ef, 0, filter)

	if filter != nil && len(found) < k {
		found = g.bruteScan(query, filter)
	}

	if len(found) > k {
		found = found[:k]
	}
	results := make([]Result, len(found))
	for i, s := range found {
		results[i] = Result{Seq: s.seq, ID: g.ids[s.seq], Similarity: utils.ClampUnit(s.sim)}
	}
	return results
}

// bruteScan scores every accepted node. It runs only when the graph walk
// under-delivers on a filtered search, which is rare and bounded by the
// filter's selectivity.
func (g *Graph) bruteScan(query []float32, filter func(uint32) bool) []scored {
	var out []scored
	for seq := range g.vectors {
		s := uint32(seq)
		if !filter(s) {
			continue
		}
		out = append(out, scored{s, utils.Dot(query, g.vectors[s])})
	}
	sortScored(out)
	return out
}
