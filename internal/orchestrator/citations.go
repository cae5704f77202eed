package orchestrator

import (
	"fmt"
	"strings"

	"github.com/cratedig/liner/internal/models"
)

// citedSources scans generated text for mentions of known source names,
// case-insensitively. The vocabulary is every source in the index, not just
// the retrieved ones, so a citation of an unretrieved source is caught.
func citedSources(text string, vocabulary []string) []string {
	lower := strings.ToLower(text)
	var cited []string
	for _, name := range vocabulary {
		if name == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(name)) {
			cited = append(cited, name)
		}
	}
	return cited
}

// validateCitations rejects text that cites a source outside the retrieved
// grounding set.
func validateCitations(text string, vocabulary []string, retrieved map[string]bool) error {
	for _, name := range citedSources(text, vocabulary) {
		if !retrieved[strings.ToLower(name)] {
			return fmt.Errorf("%w: cited source %q was not retrieved", models.ErrHallucinationRejected, name)
		}
	}
	return nil
}

// hitSourceSet collects the lowercased source names of the grounding hits.
func hitSourceSet(hits []models.SearchHit) map[string]bool {
	set := make(map[string]bool, len(hits))
	for _, h := range hits {
		if name := strings.TrimSpace(h.Source.Source); name != "" {
			set[strings.ToLower(name)] = true
		}
	}
	return set
}
