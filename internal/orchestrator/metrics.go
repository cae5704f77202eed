package orchestrator

import "github.com/cratedig/liner/internal/models"

// qualityMetrics computes the response quality scores over the grounding
// hits: the fraction with complete attribution, the fraction citable, and the
// confidence-weighted mean trust.
func qualityMetrics(hits []models.SearchHit) (attribution, readiness, verification float64) {
	if len(hits) == 0 {
		return 0, 0, 0
	}
	var complete, citable int
	var weightedTrust, totalConfidence float64
	for _, h := range hits {
		if h.Source.Complete() {
			complete++
		}
		if h.Source.Citable() {
			citable++
		}
		weightedTrust += h.Confidence * h.SourceTrust
		totalConfidence += h.Confidence
	}
	attribution = float64(complete) / float64(len(hits))
	readiness = float64(citable) / float64(len(hits))
	if totalConfidence > 0 {
		verification = weightedTrust / totalConfidence
	}
	return attribution, readiness, verification
}

// attributions converts the top hits into response attributions, capped at
// the requested k.
func attributions(hits []models.SearchHit, k int) []models.SourceAttribution {
	if len(hits) > k {
		hits = hits[:k]
	}
	out := make([]models.SourceAttribution, len(hits))
	for i, h := range hits {
		evidence := h.Excerpt
		if evidence == "" {
			evidence = h.Content
		}
		out[i] = models.SourceAttribution{
			Source:       h.Source.Source,
			EvidenceText: evidence,
			Citation:     h.Source.Citation(),
			Confidence:   h.Confidence,
			URL:          h.Source.URL,
		}
	}
	return out
}
