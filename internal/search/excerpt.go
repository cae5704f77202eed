package search

import (
	"strings"
	"unicode"
)

// makeExcerpt returns a window of content centered on the first query term
// match, snapped to word boundaries. Without a match it returns the leading
// window.
func makeExcerpt(content, query string, window int) string {
	if len(content) <= window {
		return content
	}

	pos := firstTermMatch(content, query)
	start := pos - window/2
	if start < 0 {
		start = 0
	}
	end := start + window
	if end > len(content) {
		end = len(content)
		start = end - window
	}

	// Snap to word boundaries.
	if start > 0 {
		if i := strings.IndexFunc(content[start:end], unicode.IsSpace); i >= 0 {
			start += i + 1
		}
	}
	if end < len(content) {
		if i := strings.LastIndexFunc(content[start:end], unicode.IsSpace); i > 0 {
			end = start + i
		}
	}

	excerpt := strings.TrimSpace(content[start:end])
	if start > 0 {
		excerpt = "..." + excerpt
	}
	if end < len(content) {
		excerpt += "..."
	}
	return excerpt
}

// firstTermMatch locates the earliest occurrence of any query term longer
// than two characters, case-insensitively.
func firstTermMatch(content, query string) int {
	lower := strings.ToLower(content)
	best := -1
	for _, term := range strings.Fields(strings.ToLower(query)) {
		if len(term) <= 2 {
			continue
		}
		if i := strings.Index(lower, term); i >= 0 && (best < 0 || i < best) {
			best = i
		}
	}
	if best < 0 {
		return 0
	}
	return best
}
