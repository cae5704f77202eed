// Package orchestrator runs the retrieval-and-synthesis pipeline: search for
// grounding context, generate a cited response, verify the citations, and
// degrade to a retrieval-only answer when generation cannot be trusted.
package orchestrator

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/cratedig/liner/internal/breaker"
	"github.com/cratedig/liner/internal/gen"
	"github.com/cratedig/liner/internal/index"
	"github.com/cratedig/liner/internal/models"
	"github.com/cratedig/liner/internal/search"
)

// pipeline states, logged per request.
const (
	stateReceived  = "received"
	stateSearched  = "searched"
	stateGenerated = "generated"
	stateDegraded  = "degraded"
	stateResponded = "responded"
)

// Config holds the pipeline parameters.
type Config struct {
	IndexName      string
	DefaultK       int
	MaxK           int
	MinContextHits int // grounding set floor; k is widened to this for retrieval
	MaxAttempts    int // generation attempts before degrading
}

// Orchestrator coordinates search and generation for query requests.
type Orchestrator struct {
	searcher  *search.Service
	manager   *index.Manager
	generator gen.Generator
	cfg       Config
	logger    *zap.Logger
}

// New creates an orchestrator.
func New(searcher *search.Service, manager *index.Manager, generator gen.Generator,
	cfg Config, logger *zap.Logger) *Orchestrator {
	if cfg.DefaultK <= 0 {
		cfg.DefaultK = 5
	}
	if cfg.MaxK <= 0 {
		cfg.MaxK = 20
	}
	if cfg.MinContextHits <= 0 {
		cfg.MinContextHits = 10
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 2
	}
	return &Orchestrator{searcher: searcher, manager: manager, generator: generator, cfg: cfg, logger: logger}
}

// Query answers a question with a cited, source-grounded response. Requests
// that cannot be generated safely still return a useful degraded answer; only
// invalid input or a failed search is an error.
func (o *Orchestrator) Query(ctx context.Context, req models.QueryRequest) (*models.QueryResponse, error) {
	start := time.Now()

	if err := req.Validate(o.cfg.DefaultK, o.cfg.MaxK); err != nil {
		return nil, err
	}
	k := req.K
	log := o.logger.With(zap.String("query", req.Query))
	log.Debug("query pipeline", zap.String("state", stateReceived))

	// Retrieval fetches at least the grounding floor; the response still
	// surfaces only the requested k attributions.
	contextK := k
	if contextK < o.cfg.MinContextHits {
		contextK = o.cfg.MinContextHits
	}
	searchResp, err := o.searcher.Search(ctx, o.cfg.IndexName, models.SearchQuery{
		Query: req.Query,
		K:     contextK,
	})
	if err != nil {
		return nil, err
	}
	hits := searchResp.Hits
	log.Debug("query pipeline", zap.String("state", stateSearched), zap.Int("hits", len(hits)))

	if len(hits) == 0 {
		resp := o.emptyResponse(req.Query)
		resp.QueryTimeMs = elapsedMs(start)
		log.Info("query answered", zap.String("state", stateResponded), zap.String("mode", resp.Mode))
		return resp, nil
	}

	text, mode := o.synthesize(ctx, req.Query, hits, log)

	resp := &models.QueryResponse{
		Response:          text,
		Sources:           attributions(hits, k),
		DiscoveryPathways: pathways(hits),
		Mode:              mode,
		QueryTimeMs:       elapsedMs(start),
	}
	resp.AttributionQuality, resp.CitationReadiness, resp.SourceVerificationScore = qualityMetrics(hits)
	log.Info("query answered",
		zap.String("state", stateResponded),
		zap.String("mode", mode),
		zap.Int("sources", len(resp.Sources)))
	return resp, nil
}

// synthesize attempts cited generation, retrying once on a citation
// violation, and falls back to degraded synthesis when generation is
// unavailable or untrustworthy.
func (o *Orchestrator) synthesize(ctx context.Context, query string, hits []models.SearchHit, log *zap.Logger) (string, string) {
	if o.generator.State() == breaker.StateOpen {
		log.Info("query pipeline", zap.String("state", stateDegraded), zap.String("reason", "generator circuit open"))
		return degradedSynthesis(query, hits), models.ModeDegraded
	}

	system := systemPrompt()
	prompt := buildPrompt(query, hits)
	vocab := o.sourceVocabulary()

	// Generation is detached from request cancellation: an abandoned
	// request discards the result instead of wasting the provider call.
	genCtx := context.WithoutCancel(ctx)

	for attempt := 1; attempt <= o.cfg.MaxAttempts; attempt++ {
		text, err := o.generator.Generate(genCtx, system, prompt)
		if err != nil {
			log.Warn("generation unavailable", zap.Int("attempt", attempt), zap.Error(err))
			break
		}
		if err := validateCitations(text, vocab, hitSourceSet(hits)); err != nil {
			if errors.Is(err, models.ErrHallucinationRejected) && attempt < o.cfg.MaxAttempts {
				log.Warn("generated response cited unretrieved sources, regenerating",
					zap.Int("attempt", attempt))
				continue
			}
			log.Warn("generated response rejected", zap.Int("attempt", attempt), zap.Error(err))
			break
		}
		if ctx.Err() != nil {
			log.Info("caller gone, discarding generated response")
			break
		}
		log.Debug("query pipeline", zap.String("state", stateGenerated), zap.Int("attempt", attempt))
		return text, models.ModeEnhanced
	}

	log.Info("query pipeline", zap.String("state", stateDegraded))
	return degradedSynthesis(query, hits), models.ModeDegraded
}

func (o *Orchestrator) sourceVocabulary() []string {
	h, err := o.manager.Get(o.cfg.IndexName)
	if err != nil {
		return nil
	}
	return h.SourceVocabulary()
}

func elapsedMs(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}
