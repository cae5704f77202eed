// Package search runs filtered vector searches and blends similarity with
// per-source trust into the confidence that orders results.
package search

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cratedig/liner/internal/embed"
	"github.com/cratedig/liner/internal/index"
	"github.com/cratedig/liner/internal/models"
	"github.com/cratedig/liner/pkg/utils"
)

// Config holds the ranking parameters.
type Config struct {
	DefaultK      int
	MaxK          int
	CandidateK    int // graph candidates fetched before trust blending reorders them
	ExcerptWindow int
}

// Service executes searches against a named index.
type Service struct {
	manager  *index.Manager
	embedder embed.Embedder
	cfg      Config
	logger   *zap.Logger
}

// NewService creates a search service.
func NewService(manager *index.Manager, embedder embed.Embedder, cfg Config, logger *zap.Logger) *Service {
	if cfg.DefaultK <= 0 {
		cfg.DefaultK = 5
	}
	if cfg.MaxK <= 0 {
		cfg.MaxK = 20
	}
	if cfg.CandidateK < cfg.MaxK {
		cfg.CandidateK = 100
	}
	if cfg.ExcerptWindow <= 0 {
		cfg.ExcerptWindow = 200
	}
	return &Service{manager: manager, embedder: embedder, cfg: cfg, logger: logger}
}

// Search validates the query, embeds it, and returns hits ordered by blended
// confidence. Filters naming only unknown sources or entities short-circuit
// to an empty result without an embedding call.
func (s *Service) Search(ctx context.Context, indexName string, q models.SearchQuery) (*models.SearchResponse, error) {
	start := time.Now()

	if err := q.Validate(s.cfg.DefaultK, s.cfg.MaxK); err != nil {
		return nil, err
	}
	k := q.K
	handle, err := s.manager.Get(indexName)
	if err != nil {
		return nil, err
	}

	filter, empty := buildFilter(handle, q.SourceFilter, q.EntityFilter)
	if empty {
		return &models.SearchResponse{
			Query:        q.Query,
			SearchTimeMs: float64(time.Since(start).Microseconds()) / 1000,
		}, nil
	}

	vec, err := s.embedder.Embed(ctx, q.Query)
	if err != nil {
		return nil, err
	}

	hits := s.rank(handle, vec, k, q, filter)

	s.logger.Debug("search complete",
		zap.String("index", indexName),
		zap.Int("hits", len(hits)),
		zap.Duration("elapsed", time.Since(start)))

	return &models.SearchResponse{
		Hits:         hits,
		TotalResults: len(hits),
		Query:        q.Query,
		SearchTimeMs: float64(time.Since(start).Microseconds()) / 1000,
	}, nil
}

// rank fetches a wide candidate set, blends trust into confidence, and cuts
// to k. The wide fetch keeps high-trust chunks reachable even when raw
// similarity alone would not place them in the top k.
func (s *Service) rank(handle *index.Handle, vec []float32, k int, q models.SearchQuery, filter func(*models.Chunk) bool) []models.SearchHit {
	candidateK := s.cfg.CandidateK
	if candidateK < k {
		candidateK = k
	}
	candidates := handle.Search(vec, candidateK, filter)

	hits := make([]models.SearchHit, 0, len(candidates))
	for _, c := range candidates {
		trust := handle.TrustWeight(c.Chunk.Source.Source)
		confidence := utils.ClampUnit(c.Similarity * trust)
		if confidence < q.MinConfidence {
			continue
		}
		hits = append(hits, models.SearchHit{
			ChunkID:         c.Chunk.ID,
			Content:         c.Chunk.Content,
			Source:          c.Chunk.Source,
			Similarity:      c.Similarity,
			Confidence:      confidence,
			Excerpt:         makeExcerpt(c.Chunk.Content, q.Query, s.cfg.ExcerptWindow),
			Entities:        c.Chunk.Entities,
			TemporalContext: c.Chunk.TemporalContext,
			ChunkType:       c.Chunk.ChunkType,
			Extra:           c.Chunk.Extra,
			SourceTrust:     trust,
			Seq:             c.Seq,
		})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Confidence != hits[j].Confidence {
			return hits[i].Confidence > hits[j].Confidence
		}
		return hits[i].Seq < hits[j].Seq
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

// buildFilter translates the query's source and entity filters into a chunk
// predicate. Unknown filter values are dropped; if a filter dimension ends up
// with no known values the whole search is empty by construction.
func buildFilter(handle *index.Handle, sources, entities []string) (func(*models.Chunk) bool, bool) {
	sourceSet, sourceEmpty := knownSet(sources, handle.KnownSource)
	entitySet, entityEmpty := knownSet(entities, handle.KnownEntity)
	if sourceEmpty || entityEmpty {
		return nil, true
	}
	if sourceSet == nil && entitySet == nil {
		return nil, false
	}

	return func(c *models.Chunk) bool {
		if sourceSet != nil {
			if _, ok := sourceSet[strings.ToLower(c.Source.Source)]; !ok {
				return false
			}
		}
		if entitySet != nil {
			found := false
			for _, e := range c.Entities {
				if _, ok := entitySet[strings.ToLower(e)]; ok {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
		return true
	}, false
}

// knownSet lowercases the filter values and keeps only those present in the
// index vocabulary. The second return is true when values were given but none
// are known.
func knownSet(values []string, known func(string) bool) (map[string]struct{}, bool) {
	if len(values) == 0 {
		return nil, false
	}
	set := make(map[string]struct{})
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if known(v) {
			set[strings.ToLower(v)] = struct{}{}
		}
	}
	if len(set) == 0 {
		return nil, true
	}
	return set, false
}
