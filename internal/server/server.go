// Package server exposes the search, query, build, and ingest operations over
// HTTP.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/cratedig/liner/internal/gen"
	"github.com/cratedig/liner/internal/index"
	"github.com/cratedig/liner/internal/ingest"
	"github.com/cratedig/liner/internal/orchestrator"
	"github.com/cratedig/liner/internal/search"
)

// Config holds the HTTP server settings.
type Config struct {
	Host                 string
	Port                 int
	MaxConcurrentQueries int
	RequestTimeout       time.Duration
}

// Server wires the HTTP routes to the pipeline components. Query-path
// concurrency is bounded by a weighted semaphore so a burst degrades to
// queueing instead of overload.
type Server struct {
	httpServer *http.Server
	router     chi.Router

	searcher  *search.Service
	orch      *orchestrator.Orchestrator
	manager   *index.Manager
	ingestor  *ingest.Ingestor
	generator gen.Generator
	indexName string

	querySem *semaphore.Weighted
	logger   *zap.Logger
}

// New creates a server.
func New(cfg Config, searcher *search.Service, orch *orchestrator.Orchestrator,
	manager *index.Manager, ingestor *ingest.Ingestor, generator gen.Generator,
	indexName string, logger *zap.Logger) *Server {
	if cfg.MaxConcurrentQueries <= 0 {
		cfg.MaxConcurrentQueries = 32
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}

	s := &Server{
		searcher:  searcher,
		orch:      orch,
		manager:   manager,
		ingestor:  ingestor,
		generator: generator,
		indexName: indexName,
		querySem:  semaphore.NewWeighted(int64(cfg.MaxConcurrentQueries)),
		logger:    logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(middleware.Compress(5))
	r.Use(s.requestLogger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/search", s.handleSearch)
		r.Post("/query", s.handleQuery)
		r.Post("/index/build", s.handleBuild)
		r.Post("/ingest", s.handleIngest)
		r.Get("/status", s.handleStatus)
	})
	r.Get("/health", s.handleHealth)

	s.router = r
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// Router returns the HTTP handler, for tests.
func (s *Server) Router() http.Handler { return s.router }

// Start begins serving. It blocks until the listener fails or Shutdown is
// called.
func (s *Server) Start() error {
	s.logger.Info("http server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)))
	})
}
