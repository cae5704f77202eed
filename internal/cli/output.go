// Package cli renders command output for terminal and JSON consumers.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/cratedig/liner/internal/models"
	"github.com/cratedig/liner/pkg/utils"
)

// WriteSearchResults prints search hits, as indented JSON or readable text.
func WriteSearchResults(w io.Writer, resp *models.SearchResponse, asJSON bool) error {
	if asJSON {
		return writeJSON(w, resp)
	}
	if len(resp.Hits) == 0 {
		fmt.Fprintf(w, "No results for %q\n", resp.Query)
		return nil
	}
	fmt.Fprintf(w, "%d results for %q (%.1fms)\n\n", resp.TotalResults, resp.Query, resp.SearchTimeMs)
	for i, h := range resp.Hits {
		fmt.Fprintf(w, "%d. [%.3f] %s\n", i+1, h.Confidence, headline(h))
		excerpt := h.Excerpt
		if excerpt == "" {
			excerpt = utils.Truncate(h.Content, 200)
		}
		fmt.Fprintf(w, "   %s\n", excerpt)
		if len(h.Entities) > 0 {
			fmt.Fprintf(w, "   entities: %s\n", strings.Join(h.Entities, ", "))
		}
		fmt.Fprintln(w)
	}
	return nil
}

func headline(h models.SearchHit) string {
	if h.Source.Title != "" {
		if h.Source.Source != "" {
			return fmt.Sprintf("%s (%s)", h.Source.Title, h.Source.Source)
		}
		return h.Source.Title
	}
	if h.Source.Source != "" {
		return h.Source.Source
	}
	return h.ChunkID
}

// WriteQueryResponse prints a query answer with its attributions and
// discovery pathways.
func WriteQueryResponse(w io.Writer, resp *models.QueryResponse, asJSON bool) error {
	if asJSON {
		return writeJSON(w, resp)
	}
	fmt.Fprintln(w, resp.Response)
	fmt.Fprintln(w)

	if len(resp.Sources) > 0 {
		fmt.Fprintln(w, "Sources:")
		for _, s := range resp.Sources {
			fmt.Fprintf(w, "  - %s (confidence %.2f)\n", s.Citation, s.Confidence)
		}
		fmt.Fprintln(w)
	}
	if len(resp.DiscoveryPathways) > 0 {
		fmt.Fprintln(w, "Keep exploring:")
		for _, p := range resp.DiscoveryPathways {
			fmt.Fprintf(w, "  - %s\n", p)
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "mode: %s | attribution %.2f | citation-ready %.2f | verification %.2f | %.1fms\n",
		resp.Mode, resp.AttributionQuality, resp.CitationReadiness,
		resp.SourceVerificationScore, resp.QueryTimeMs)
	return nil
}

// WriteBuildResponse prints the outcome of an index build.
func WriteBuildResponse(w io.Writer, resp *models.BuildResponse, asJSON bool) error {
	if asJSON {
		return writeJSON(w, resp)
	}
	fmt.Fprintf(w, "index %s: %s, %d chunks indexed", resp.IndexName, resp.Status, resp.ChunksIndexed)
	if resp.ChunksFailed > 0 {
		fmt.Fprintf(w, ", %d failed", resp.ChunksFailed)
	}
	fmt.Fprintf(w, " (%.1fms)\n", resp.BuildTimeMs)
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
