// Package config provides configuration loading and structs for the liner server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug      bool             `yaml:"debug"`
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Generation GenerationConfig `yaml:"generation"`
	Index      IndexConfig      `yaml:"index"`
	Search     SearchConfig     `yaml:"search"`
	Ingest     IngestConfig     `yaml:"ingest"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host                 string `yaml:"host"`
	Port                 int    `yaml:"port"`
	MaxConcurrentQueries int    `yaml:"max_concurrent_queries"`
	RequestTimeoutSecs   int    `yaml:"request_timeout_seconds"`
}

// StorageConfig holds paths for the corpus database and index blobs.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
	IndexDir     string `yaml:"index_dir"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider       string `yaml:"provider"` // "openai" or "mock"
	Model          string `yaml:"model"`
	BaseURL        string `yaml:"base_url"`
	Dimensions     int    `yaml:"dimensions"`
	BatchSize      int    `yaml:"batch_size"`
	MaxRetries     int    `yaml:"max_retries"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// GenerationConfig holds text-generation provider and circuit breaker settings.
type GenerationConfig struct {
	Provider            string `yaml:"provider"` // "openai" or "disabled"
	Model               string `yaml:"model"`
	BaseURL             string `yaml:"base_url"`
	MaxTokens           int    `yaml:"max_tokens"`
	MaxRetries          int    `yaml:"max_retries"`
	TimeoutSeconds      int    `yaml:"timeout_seconds"`
	BreakerThreshold    int    `yaml:"breaker_threshold"`
	BreakerCooldownSecs int    `yaml:"breaker_cooldown_seconds"`
}

// IndexConfig holds the navigable small-world graph construction parameters.
type IndexConfig struct {
	DefaultName    string `yaml:"default_name"`
	MaxDegree      int    `yaml:"max_degree"`      // max out-degree per node (layer > 0)
	EfConstruction int    `yaml:"ef_construction"` // construction-time search breadth
	EfSearch       int    `yaml:"ef_search"`       // query-time search breadth
	Seed           int64  `yaml:"seed"`            // level RNG seed, for reproducible builds
}

// SearchConfig holds search service settings.
type SearchConfig struct {
	DefaultK       int                `yaml:"default_k"`
	MaxK           int                `yaml:"max_k"`
	MinContextHits int                `yaml:"min_context_hits"` // grounding context floor for query synthesis
	CandidateK     int                `yaml:"candidate_k"`      // candidates fetched before trust blending
	ExcerptWindow  int                `yaml:"excerpt_window"`   // excerpt width in characters
	TrustWeights   map[string]float64 `yaml:"trust_weights"`    // per-source trust, default 1.0
}

// IngestConfig holds content ingestion settings.
type IngestConfig struct {
	ContentDir         string `yaml:"content_dir"`          // drop directory watched for .json batches
	MaxInflightBatches int    `yaml:"max_inflight_batches"` // embedding batch admission bound
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.IndexDir = expandPath(cfg.Storage.IndexDir, configDir)
	if cfg.Ingest.ContentDir != "" {
		cfg.Ingest.ContentDir = expandPath(cfg.Ingest.ContentDir, configDir)
	}

	return &cfg, nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative
// to configDir; other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
