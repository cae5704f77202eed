package hnsw

import "sort"

// sortScored orders by similarity descending, sequence ascending. The
// sequence tiebreak keeps equal-similarity orderings stable across runs.
func sortScored(s []scored) {
	sort.Slice(s, func(i, j int) bool {
		if s[i].sim != s[j].sim {
			return s[i].sim > s[j].sim
		}
		return s[i].seq < s[j].seq
	})
}

// maxHeap pops the highest-similarity entry first.
type maxHeap struct{ items []scored }

func (h *maxHeap) len() int { return len(h.items) }

func (h *maxHeap) push(s scored) {
	h.items = append(h.items, s)
	i := len(h.items) - 1
	for i > 0 {
		parent := (i - 1) / 2
		if !maxLess(h.items[parent], h.items[i]) {
			break
		}
		h.items[parent], h.items[i] = h.items[i], h.items[parent]
		i = parent
	}
}

func (h *maxHeap) pop() scored {
	top := h.items[0]
	last := len(h.items) - 1
	h.items[0] = h.items[last]
	h.items = h.items[:last]
	h.siftDown(0)
	return top
}

func (h *maxHeap) siftDown(i int) {
	n := len(h.items)
	for {
		best := i
		if l := 2*i + 1; l < n && maxLess(h.items[best], h.items[l]) {
			best = l
		}
		if r := 2*i + 2; r < n && maxLess(h.items[best], h.items[r]) {
			best = r
		}
		if best == i {
			return
		}
		h.items[i], h.items[best] = h.items[best], h.items[i]
		i = best
	}
}

// maxLess reports whether a ranks below b in the max-heap ordering.
func maxLess(a, b scored) bool {
	if a.sim != b.sim {
		return a.sim < b.sim
	}
	return a.seq > b.seq
}

// minHeap pops the lowest-similarity entry first, which makes it a bounded
// best-ef set: overflow evicts the current worst.
type minHeap struct{ items []scored }

func (h *minHeap) len() int { return len(h.items) }

func (h *minHeap) peek() scored { return h.items[0] }

func (h *minHeap) push(s scored) {
	h.items = append(h.items, s)
	i := len(h.items) - 1
	for i > 0 {
		parent := (i - 1) / 2
		if !minLess(h.items[i], h.items[parent]) {
			break
		}
		h.items[parent], h.items[i] = h.items[i], h.items[parent]
		i = parent
	}
}

func (h *minHeap) pop() scored {
	top := h.items[0]
	last := len(h.items) - 1
	h.items[0] = h.items[last]
	h.items = h.items[:last]
	h.siftDown(0)
	return top
}

func (h *minHeap) siftDown(i int) {
	n := len(h.items)
	for {
		best := i
		if l := 2*i + 1; l < n && minLess(h.items[l], h.items[best]) {
			best = l
		}
		if r := 2*i + 2; r < n && minLess(h.items[r], h.items[best]) {
			best = r
		}
		if best == i {
			return
		}
		h.items[i], h.items[best] = h.items[best], h.items[i]
		i = best
	}
}

// minLess reports whether a ranks below b in the min-heap ordering.
func minLess(a, b scored) bool {
	if a.sim != b.sim {
		return a.sim < b.sim
	}
	return a.seq > b.seq
}

// drainDescending empties the heap and returns entries best first.
func (h *minHeap) drainDescending() []scored {
	out := make([]scored, len(h.items))
	for i := len(h.items) - 1; i >= 0; i-- {
		out[i] = h.pop()
	}
	return out
}
