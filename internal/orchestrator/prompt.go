package orchestrator

import (
	"fmt"
	"strings"

	"github.com/cratedig/liner/internal/models"
)

// systemPrompt frames the generator as a cultural guide that may only speak
// from the provided context.
func systemPrompt() string {
	return strings.TrimSpace(`
You are a knowledgeable cultural guide helping people explore music history,
artists, recordings, and the connections between them.

Rules:
- Answer only from the numbered context passages below. Do not use outside knowledge.
- Cite the source of every claim by its source name, e.g. (liner_notes).
- Cite only sources that appear in the context. Never invent a source.
- If the context does not answer the question, say so plainly.
- Keep the tone warm and curious, like liner notes written for a friend.`)
}

// buildPrompt renders the retrieved hits as numbered context passages with
// their source descriptors.
func buildPrompt(query string, hits []models.SearchHit) string {
	var b strings.Builder
	b.WriteString("Context passages:\n\n")
	for i, h := range hits {
		fmt.Fprintf(&b, "[%d] %s\n", i+1, h.Content)
		fmt.Fprintf(&b, "    source: %s", displaySource(h))
		if h.TemporalContext != "" {
			fmt.Fprintf(&b, " | period: %s", h.TemporalContext)
		}
		if len(h.Entities) > 0 {
			fmt.Fprintf(&b, " | mentions: %s", strings.Join(h.Entities, ", "))
		}
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "Question: %s\n", query)
	return b.String()
}

func displaySource(h models.SearchHit) string {
	if h.Source.Source != "" {
		return h.Source.Source
	}
	if h.Source.Title != "" {
		return h.Source.Title
	}
	return "unknown"
}

// degradedSynthesis builds a retrieval-only answer when generation is
// unavailable or its output was rejected.
func degradedSynthesis(query string, hits []models.SearchHit) string {
	var b strings.Builder
	b.WriteString("I found relevant material but couldn't synthesize a full response. ")
	b.WriteString("Here is what the sources say:\n\n")
	n := len(hits)
	if n > 3 {
		n = 3
	}
	for i := 0; i < n; i++ {
		h := hits[i]
		excerpt := h.Excerpt
		if excerpt == "" {
			excerpt = h.Content
		}
		fmt.Fprintf(&b, "- %s (%s)\n", excerpt, displaySource(h))
	}
	return b.String()
}

// emptyResponse is the degraded answer for a query with no grounding hits.
func (o *Orchestrator) emptyResponse(query string) *models.QueryResponse {
	return &models.QueryResponse{
		Response: fmt.Sprintf(
			"I couldn't find any indexed material related to %q. "+
				"Try rephrasing, or broaden the question to an artist, recording, or era.", query),
		Sources:           []models.SourceAttribution{},
		DiscoveryPathways: []string{},
		Mode:              models.ModeDegraded,
	}
}
