package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/cratedig/liner/internal/ingest"
	"github.com/cratedig/liner/internal/models"
)

type searchRequest struct {
	Query         string   `json:"query"`
	K             int      `json:"k"`
	SourceFilter  []string `json:"source_filter,omitempty"`
	EntityFilter  []string `json:"entity_filter,omitempty"`
	MinConfidence float64  `json:"min_confidence,omitempty"`
	IndexName     string   `json:"index_name,omitempty"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.querySem.Acquire(r.Context(), 1); err != nil {
		s.respondError(w, http.StatusServiceUnavailable, "server busy")
		return
	}
	defer s.querySem.Release(1)

	indexName := req.IndexName
	if indexName == "" {
		indexName = s.indexName
	}
	resp, err := s.searcher.Search(r.Context(), indexName, models.SearchQuery{
		Query:         req.Query,
		K:             req.K,
		SourceFilter:  req.SourceFilter,
		EntityFilter:  req.EntityFilter,
		MinConfidence: req.MinConfidence,
	})
	if err != nil {
		s.respondMappedError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req models.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.querySem.Acquire(r.Context(), 1); err != nil {
		s.respondError(w, http.StatusServiceUnavailable, "server busy")
		return
	}
	defer s.querySem.Release(1)

	resp, err := s.orch.Query(r.Context(), req)
	if err != nil {
		s.respondMappedError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleBuild(w http.ResponseWriter, r *http.Request) {
	var req models.BuildRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	name := req.IndexName
	if name == "" {
		name = s.indexName
	}

	stats, err := s.manager.Build(r.Context(), name, req.ForceRebuild)
	var partial *models.PartialIngestFailure
	switch {
	case err == nil:
	case errors.As(err, &partial):
		// The index is live; the response carries the failure count.
	default:
		s.respondMappedError(w, err)
		return
	}

	status := "built"
	if stats.Skipped {
		status = "exists"
	}
	s.respondJSON(w, http.StatusOK, models.BuildResponse{
		Status:        status,
		IndexName:     stats.IndexName,
		ChunksIndexed: stats.ChunksIndexed,
		ChunksFailed:  stats.ChunksFailed,
		BuildTimeMs:   float64(stats.Duration.Microseconds()) / 1000,
	})
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 32<<20))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "reading request body")
		return
	}
	chunks, err := ingest.ParseBatch(body)
	if err != nil {
		s.respondMappedError(w, err)
		return
	}

	indexed, err := s.ingestor.IngestBatch(r.Context(), chunks)
	var partial *models.PartialIngestFailure
	failed := 0
	switch {
	case err == nil:
	case errors.As(err, &partial):
		failed = len(partial.Failed)
	default:
		s.respondMappedError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"stored":  len(chunks),
		"indexed": indexed,
		"failed":  failed,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	type indexStatus struct {
		Name    string    `json:"name"`
		Chunks  int       `json:"chunks"`
		BuiltAt time.Time `json:"built_at"`
	}
	var indexes []indexStatus
	for _, name := range s.manager.Names() {
		h, err := s.manager.Get(name)
		if err != nil {
			continue
		}
		indexes = append(indexes, indexStatus{Name: name, Chunks: h.Len(), BuiltAt: h.BuiltAt()})
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"indexes":   indexes,
		"generator": s.generator.State().String(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// respondMappedError translates pipeline errors to HTTP statuses.
func (s *Server) respondMappedError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrInvalidInput):
		s.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, models.ErrUnknownIndex):
		s.respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, models.ErrBuildInProgress):
		s.respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, models.ErrProviderThrottled):
		s.respondError(w, http.StatusTooManyRequests, "provider throttled, retry later")
	case errors.Is(err, models.ErrIndexCorrupt),
		errors.Is(err, models.ErrProviderUnavailable):
		s.respondError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.logger.Error("request failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("encoding response", zap.Error(err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, msg string) {
	s.respondJSON(w, status, map[string]string{"error": msg})
}
