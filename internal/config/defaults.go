package config

// Default returns a config with all defaults applied, for running without a
// config file.
func Default() *Config {
	var cfg Config
	ApplyDefaults(&cfg)
	return &cfg
}

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.MaxConcurrentQueries == 0 {
		cfg.Server.MaxConcurrentQueries = 32
	}
	if cfg.Server.RequestTimeoutSecs == 0 {
		cfg.Server.RequestTimeoutSecs = 60
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/liner/data/db/corpus.db"
	}
	if cfg.Storage.IndexDir == "" {
		cfg.Storage.IndexDir = "/usr/local/var/liner/data/indices"
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "openai"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "text-embedding-3-small"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 1024
	}
	if cfg.Embedding.BatchSize == 0 {
		cfg.Embedding.BatchSize = 10
	}
	if cfg.Embedding.MaxRetries == 0 {
		cfg.Embedding.MaxRetries = 5
	}
	if cfg.Embedding.TimeoutSeconds == 0 {
		cfg.Embedding.TimeoutSeconds = 30
	}
	if cfg.Generation.Provider == "" {
		cfg.Generation.Provider = "openai"
	}
	if cfg.Generation.Model == "" {
		cfg.Generation.Model = "gpt-4o-mini"
	}
	if cfg.Generation.MaxTokens == 0 {
		cfg.Generation.MaxTokens = 2000
	}
	if cfg.Generation.MaxRetries == 0 {
		cfg.Generation.MaxRetries = 2
	}
	if cfg.Generation.TimeoutSeconds == 0 {
		cfg.Generation.TimeoutSeconds = 45
	}
	if cfg.Generation.BreakerThreshold == 0 {
		cfg.Generation.BreakerThreshold = 5
	}
	if cfg.Generation.BreakerCooldownSecs == 0 {
		cfg.Generation.BreakerCooldownSecs = 30
	}
	if cfg.Index.DefaultName == "" {
		cfg.Index.DefaultName = "main"
	}
	if cfg.Index.MaxDegree == 0 {
		cfg.Index.MaxDegree = 16
	}
	if cfg.Index.EfConstruction == 0 {
		cfg.Index.EfConstruction = 200
	}
	if cfg.Index.EfSearch == 0 {
		cfg.Index.EfSearch = 100
	}
	if cfg.Index.Seed == 0 {
		cfg.Index.Seed = 1
	}
	if cfg.Search.DefaultK == 0 {
		cfg.Search.DefaultK = 5
	}
	if cfg.Search.MaxK == 0 {
		cfg.Search.MaxK = 20
	}
	if cfg.Search.MinContextHits == 0 {
		cfg.Search.MinContextHits = 10
	}
	if cfg.Search.CandidateK == 0 {
		cfg.Search.CandidateK = 100
	}
	if cfg.Search.ExcerptWindow == 0 {
		cfg.Search.ExcerptWindow = 200
	}
	if cfg.Ingest.MaxInflightBatches == 0 {
		cfg.Ingest.MaxInflightBatches = 4
	}
}
