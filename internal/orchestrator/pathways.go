package orchestrator

import (
	"fmt"

	"github.com/cratedig/liner/internal/models"
)

const maxPathways = 3

// pathways suggests follow-up explorations built only from entities that
// actually appear in the grounding hits.
func pathways(hits []models.SearchHit) []string {
	var entities []string
	for _, h := range hits {
		entities = append(entities, h.Entities...)
	}
	entities = models.DedupEntities(entities)
	if len(entities) == 0 {
		return []string{}
	}

	var out []string
	if len(entities) >= 2 {
		out = append(out, fmt.Sprintf("Explore connections between %s and %s", entities[0], entities[1]))
	}
	out = append(out, fmt.Sprintf("Find influences on %s", entities[0]))
	if len(entities) >= 2 {
		out = append(out, fmt.Sprintf("Discover artists similar to %s", entities[1]))
	} else {
		out = append(out, fmt.Sprintf("Discover artists similar to %s", entities[0]))
	}
	if len(out) > maxPathways {
		out = out[:maxPathways]
	}
	return out
}
