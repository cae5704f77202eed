// Command liner serves and queries a source-aware vector index for cultural
// content.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/cratedig/liner/internal/cli"
	"github.com/cratedig/liner/internal/config"
	"github.com/cratedig/liner/internal/embed"
	"github.com/cratedig/liner/internal/gen"
	"github.com/cratedig/liner/internal/hnsw"
	"github.com/cratedig/liner/internal/index"
	"github.com/cratedig/liner/internal/ingest"
	"github.com/cratedig/liner/internal/models"
	"github.com/cratedig/liner/internal/orchestrator"
	"github.com/cratedig/liner/internal/search"
	"github.com/cratedig/liner/internal/server"
	"github.com/cratedig/liner/internal/storage"
	"github.com/cratedig/liner/pkg/utils"
)

const version = "0.3.0"

func main() {
	godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "server":
		err = runServer(os.Args[2:])
	case "build":
		err = runBuild(os.Args[2:])
	case "search":
		err = runSearch(os.Args[2:])
	case "query":
		err = runQuery(os.Args[2:])
	case "ingest":
		err = runIngest(os.Args[2:])
	case "status":
		err = runStatus(os.Args[2:])
	case "version":
		fmt.Printf("liner %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`liner - source-aware retrieval and synthesis for cultural content

Usage:
  liner server  [-config path]
  liner build   [-config path] [-index name] [-force] [-json] [-server url]
  liner search  [-config path] [-k n] [-sources a,b] [-entities a,b]
                [-min-confidence f] [-json] [-server url] "query"
  liner query   [-config path] [-k n] [-json] [-server url] "question"
  liner ingest  [-config path] [-server url] batch.json
  liner status  [-config path] [-server url]
  liner version
  liner help
`)
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		if os.IsNotExist(errors.Unwrap(err)) {
			return config.Default(), nil
		}
		return nil, err
	}
	return cfg, nil
}

// components bundles the wired pipeline for direct-mode commands and the
// server.
type components struct {
	cfg       *config.Config
	logger    *zap.Logger
	store     storage.Store
	embedder  embed.Embedder
	generator gen.Generator
	manager   *index.Manager
	searcher  *search.Service
	orch      *orchestrator.Orchestrator
	ingestor  *ingest.Ingestor
}

func initComponents(cfg *config.Config, needGenerator bool) (*components, error) {
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	store, err := storage.NewSQLiteStore(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("opening corpus store: %w", err)
	}

	embedder, err := buildEmbedder(cfg, logger)
	if err != nil {
		store.Close()
		return nil, err
	}

	var generator gen.Generator = gen.Disabled{}
	if needGenerator {
		generator, err = buildGenerator(cfg, logger)
		if err != nil {
			store.Close()
			return nil, err
		}
	}

	hcfg := hnsw.Config{
		Dimensions:     cfg.Embedding.Dimensions,
		M:              cfg.Index.MaxDegree,
		EfConstruction: cfg.Index.EfConstruction,
		EfSearch:       cfg.Index.EfSearch,
		Seed:           cfg.Index.Seed,
	}
	manager := index.NewManager(store, embedder, hcfg, cfg.Search.TrustWeights,
		cfg.Storage.IndexDir, cfg.Ingest.MaxInflightBatches, logger)
	if err := manager.LoadAll(); err != nil {
		// A corrupt snapshot is recoverable by rebuild; keep starting.
		logger.Warn("index snapshot load failed, rebuild to recover", zap.Error(err))
	}

	searcher := search.NewService(manager, embedder, search.Config{
		DefaultK:      cfg.Search.DefaultK,
		MaxK:          cfg.Search.MaxK,
		CandidateK:    cfg.Search.CandidateK,
		ExcerptWindow: cfg.Search.ExcerptWindow,
	}, logger)

	orch := orchestrator.New(searcher, manager, generator, orchestrator.Config{
		IndexName:      cfg.Index.DefaultName,
		DefaultK:       cfg.Search.DefaultK,
		MaxK:           cfg.Search.MaxK,
		MinContextHits: cfg.Search.MinContextHits,
		MaxAttempts:    2,
	}, logger)

	ingestor := ingest.NewIngestor(store, manager, cfg.Index.DefaultName,
		cfg.Ingest.MaxInflightBatches, logger)

	return &components{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		embedder:  embedder,
		generator: generator,
		manager:   manager,
		searcher:  searcher,
		orch:      orch,
		ingestor:  ingestor,
	}, nil
}

func (c *components) close() {
	c.generator.Close()
	c.embedder.Close()
	c.store.Close()
	c.logger.Sync()
}

func buildEmbedder(cfg *config.Config, logger *zap.Logger) (embed.Embedder, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if cfg.Embedding.Provider == "mock" || apiKey == "" {
		logger.Info("using mock embedder", zap.Int("dimensions", cfg.Embedding.Dimensions))
		return embed.NewMockEmbedder(cfg.Embedding.Dimensions), nil
	}
	return embed.NewOpenAIEmbedder(embed.OpenAIConfig{
		APIKey:     apiKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		BatchSize:  cfg.Embedding.BatchSize,
		MaxRetries: cfg.Embedding.MaxRetries,
		Timeout:    time.Duration(cfg.Embedding.TimeoutSeconds) * time.Second,
	}, logger)
}

func buildGenerator(cfg *config.Config, logger *zap.Logger) (gen.Generator, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if cfg.Generation.Provider == "disabled" || apiKey == "" {
		logger.Info("generation disabled, queries will degrade to retrieval-only")
		return gen.Disabled{}, nil
	}
	return gen.NewOpenAIGenerator(gen.OpenAIConfig{
		APIKey:           apiKey,
		BaseURL:          cfg.Generation.BaseURL,
		Model:            cfg.Generation.Model,
		MaxTokens:        cfg.Generation.MaxTokens,
		MaxRetries:       cfg.Generation.MaxRetries,
		Timeout:          time.Duration(cfg.Generation.TimeoutSeconds) * time.Second,
		BreakerThreshold: cfg.Generation.BreakerThreshold,
		BreakerCooldown:  time.Duration(cfg.Generation.BreakerCooldownSecs) * time.Second,
	}, logger)
}

func runServer(args []string) error {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "config file path")
	fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	c, err := initComponents(cfg, true)
	if err != nil {
		return err
	}
	defer c.close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if dir := cfg.Ingest.ContentDir; dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating content directory: %w", err)
		}
		watcher, err := ingest.NewWatcher(dir, c.ingestor, c.logger)
		if err != nil {
			return fmt.Errorf("starting content watcher: %w", err)
		}
		watcher.Start(ctx)
		defer watcher.Stop()
		c.logger.Info("watching content directory", zap.String("dir", dir))
	}

	srv := server.New(server.Config{
		Host:                 cfg.Server.Host,
		Port:                 cfg.Server.Port,
		MaxConcurrentQueries: cfg.Server.MaxConcurrentQueries,
		RequestTimeout:       time.Duration(cfg.Server.RequestTimeoutSecs) * time.Second,
	}, c.searcher, c.orch, c.manager, c.ingestor, c.generator, cfg.Index.DefaultName, c.logger)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		c.logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}

func runBuild(args []string) error {
	fs := flag.NewFlagSet("build", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "config file path")
	indexName := fs.String("index", "", "index name (default from config)")
	force := fs.Bool("force", false, "rebuild even if the index exists")
	asJSON := fs.Bool("json", false, "JSON output")
	serverURL := fs.String("server", "", "server URL for remote build")
	fs.Parse(args)

	req := models.BuildRequest{IndexName: *indexName, ForceRebuild: *force}

	if *serverURL != "" {
		resp, err := cli.NewClient(*serverURL).Build(context.Background(), req)
		if err != nil {
			return err
		}
		return cli.WriteBuildResponse(os.Stdout, resp, *asJSON)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	c, err := initComponents(cfg, false)
	if err != nil {
		return err
	}
	defer c.close()

	name := req.IndexName
	if name == "" {
		name = cfg.Index.DefaultName
	}
	stats, err := c.manager.Build(context.Background(), name, req.ForceRebuild)
	var partial *models.PartialIngestFailure
	if err != nil && !errors.As(err, &partial) {
		return err
	}
	status := "built"
	if stats.Skipped {
		status = "exists"
	}
	return cli.WriteBuildResponse(os.Stdout, &models.BuildResponse{
		Status:        status,
		IndexName:     stats.IndexName,
		ChunksIndexed: stats.ChunksIndexed,
		ChunksFailed:  stats.ChunksFailed,
		BuildTimeMs:   float64(stats.Duration.Microseconds()) / 1000,
	}, *asJSON)
}

func runSearch(args []string) error {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "config file path")
	k := fs.Int("k", 0, "number of results")
	indexName := fs.String("index", "", "index name (default from config)")
	sources := fs.String("sources", "", "comma-separated source filter")
	entities := fs.String("entities", "", "comma-separated entity filter")
	minConfidence := fs.Float64("min-confidence", 0, "minimum blended confidence")
	asJSON := fs.Bool("json", false, "JSON output")
	serverURL := fs.String("server", "", "server URL for remote search")
	fs.Parse(args)

	if fs.NArg() < 1 {
		return fmt.Errorf("search requires a query argument")
	}
	q := models.SearchQuery{
		Query:         strings.Join(fs.Args(), " "),
		K:             *k,
		SourceFilter:  splitList(*sources),
		EntityFilter:  splitList(*entities),
		MinConfidence: *minConfidence,
	}

	if *serverURL != "" {
		resp, err := cli.NewClient(*serverURL).Search(context.Background(), q)
		if err != nil {
			return err
		}
		return cli.WriteSearchResults(os.Stdout, resp, *asJSON)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	c, err := initComponents(cfg, false)
	if err != nil {
		return err
	}
	defer c.close()

	name := *indexName
	if name == "" {
		name = cfg.Index.DefaultName
	}
	resp, err := c.searcher.Search(context.Background(), name, q)
	if err != nil {
		return err
	}
	return cli.WriteSearchResults(os.Stdout, resp, *asJSON)
}

func runQuery(args []string) error {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "config file path")
	k := fs.Int("k", 0, "number of attributed sources")
	asJSON := fs.Bool("json", false, "JSON output")
	serverURL := fs.String("server", "", "server URL for remote query")
	fs.Parse(args)

	if fs.NArg() < 1 {
		return fmt.Errorf("query requires a question argument")
	}
	req := models.QueryRequest{Query: strings.Join(fs.Args(), " "), K: *k}

	if *serverURL != "" {
		resp, err := cli.NewClient(*serverURL).Query(context.Background(), req)
		if err != nil {
			return err
		}
		return cli.WriteQueryResponse(os.Stdout, resp, *asJSON)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	c, err := initComponents(cfg, true)
	if err != nil {
		return err
	}
	defer c.close()

	resp, err := c.orch.Query(context.Background(), req)
	if err != nil {
		return err
	}
	return cli.WriteQueryResponse(os.Stdout, resp, *asJSON)
}

func runIngest(args []string) error {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "config file path")
	serverURL := fs.String("server", "", "server URL for remote ingest")
	fs.Parse(args)

	if fs.NArg() < 1 {
		return fmt.Errorf("ingest requires a batch file argument")
	}
	path := fs.Arg(0)

	if *serverURL != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		resp, err := cli.NewClient(*serverURL).Ingest(context.Background(), data)
		if err != nil {
			return err
		}
		fmt.Printf("stored %v, indexed %v, failed %v\n", resp["stored"], resp["indexed"], resp["failed"])
		return nil
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	c, err := initComponents(cfg, false)
	if err != nil {
		return err
	}
	defer c.close()

	n, err := c.ingestor.IngestFile(context.Background(), path)
	var partial *models.PartialIngestFailure
	if err != nil && !errors.As(err, &partial) {
		return err
	}
	fmt.Printf("ingested %d chunks", n)
	if partial != nil {
		fmt.Printf(" (%d failed)", len(partial.Failed))
	}
	fmt.Println()
	return nil
}

func runStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "config file path")
	serverURL := fs.String("server", "", "server URL")
	fs.Parse(args)

	if *serverURL != "" {
		status, err := cli.NewClient(*serverURL).Status(context.Background())
		if err != nil {
			return err
		}
		out, _ := jsonIndent(status)
		fmt.Println(out)
		return nil
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	c, err := initComponents(cfg, false)
	if err != nil {
		return err
	}
	defer c.close()

	n, err := c.store.CountChunks(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("corpus: %d chunks\n", n)
	for _, name := range c.manager.Names() {
		h, err := c.manager.Get(name)
		if err != nil {
			continue
		}
		fmt.Printf("index %s: %d chunks, built %s\n", name, h.Len(), h.BuiltAt().Format(time.RFC3339))
	}
	return nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func jsonIndent(v any) (string, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(out), nil
}
