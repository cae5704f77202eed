package index

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/cratedig/liner/internal/embed"
	"github.com/cratedig/liner/internal/hnsw"
	"github.com/cratedig/liner/internal/models"
	"github.com/cratedig/liner/internal/storage"
)

// BuildStats summarizes a completed build.
type BuildStats struct {
	IndexName     string
	ChunksIndexed int
	ChunksFailed  int
	Duration      time.Duration
	Skipped       bool // index already existed and force was false
}

// Manager owns the named indexes. Builds run against a fresh handle and swap
// it in when done, so searches keep hitting the previous index until the new
// one is complete.
type Manager struct {
	mu       sync.Mutex
	handles  map[string]*Handle
	building map[string]bool

	store       storage.Store
	embedder    embed.Embedder
	hcfg        hnsw.Config
	trust       map[string]float64
	indexDir    string
	maxInflight int64
	logger      *zap.Logger
}

// NewManager creates a manager. Trust weights from the store's source
// registry are merged over the configured ones at build time.
func NewManager(store storage.Store, embedder embed.Embedder, hcfg hnsw.Config,
	trust map[string]float64, indexDir string, maxInflight int, logger *zap.Logger) *Manager {
	if maxInflight <= 0 {
		maxInflight = 4
	}
	return &Manager{
		handles:     make(map[string]*Handle),
		building:    make(map[string]bool),
		store:       store,
		embedder:    embedder,
		hcfg:        hcfg,
		trust:       trust,
		indexDir:    indexDir,
		maxInflight: int64(maxInflight),
		logger:      logger,
	}
}

// Get returns the named index or ErrUnknownIndex.
func (m *Manager) Get(name string) (*Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.handles[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrUnknownIndex, name)
	}
	return h, nil
}

// Names returns the names of all live indexes.
func (m *Manager) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.handles))
	for name := range m.handles {
		out = append(out, name)
	}
	return out
}

// Build constructs the named index from the corpus store. At most one build
// per name runs at a time; a second concurrent request gets
// ErrBuildInProgress. With force false an existing index is left untouched.
func (m *Manager) Build(ctx context.Context, name string, force bool) (BuildStats, error) {
	m.mu.Lock()
	if m.building[name] {
		m.mu.Unlock()
		return BuildStats{}, fmt.Errorf("%w: %s", models.ErrBuildInProgress, name)
	}
	if _, exists := m.handles[name]; exists && !force {
		n := m.handles[name].Len()
		m.mu.Unlock()
		return BuildStats{IndexName: name, ChunksIndexed: n, Skipped: true}, nil
	}
	m.building[name] = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.building, name)
		m.mu.Unlock()
	}()

	start := time.Now()
	stats, err := m.build(ctx, name)
	stats.IndexName = name
	stats.Duration = time.Since(start)
	return stats, err
}

func (m *Manager) build(ctx context.Context, name string) (BuildStats, error) {
	chunks, err := m.store.ListChunks(ctx)
	if err != nil {
		return BuildStats{}, fmt.Errorf("loading corpus: %w", err)
	}
	trust, err := m.effectiveTrust(ctx)
	if err != nil {
		return BuildStats{}, err
	}

	vectors, failures, err := m.embedAll(ctx, chunks)
	if err != nil {
		return BuildStats{}, err
	}

	h := NewHandle(m.hcfg, trust)
	indexed := 0
	for i, c := range chunks {
		if vectors[i] == nil {
			continue
		}
		if err := h.Insert(c, vectors[i]); err != nil {
			failures = append(failures, models.ChunkFailure{ChunkID: c.ID, Reason: err.Error()})
			continue
		}
		indexed++
	}

	if err := h.Save(m.snapshotPath(name)); err != nil {
		m.logger.Warn("index snapshot write failed", zap.String("index", name), zap.Error(err))
	}

	m.mu.Lock()
	m.handles[name] = h
	m.mu.Unlock()

	m.logger.Info("index built",
		zap.String("index", name),
		zap.Int("indexed", indexed),
		zap.Int("failed", len(failures)))

	stats := BuildStats{ChunksIndexed: indexed, ChunksFailed: len(failures)}
	if len(failures) > 0 {
		return stats, &models.PartialIngestFailure{Succeeded: indexed, Failed: failures}
	}
	return stats, nil
}

// embedAll embeds the corpus in parallel shards bounded by maxInflight.
// Failed items come back as nil vectors with a matching failure record.
func (m *Manager) embedAll(ctx context.Context, chunks []models.Chunk) ([][]float32, []models.ChunkFailure, error) {
	vectors := make([][]float32, len(chunks))
	var (
		failMu   sync.Mutex
		failures []models.ChunkFailure
	)

	const shardSize = 50
	sem := semaphore.NewWeighted(m.maxInflight)
	g, gctx := errgroup.WithContext(ctx)

	for start := 0; start < len(chunks); start += shardSize {
		end := start + shardSize
		if end > len(chunks) {
			end = len(chunks)
		}
		start, end := start, end

		if err := sem.Acquire(gctx, 1); err != nil {
			return nil, nil, err
		}
		g.Go(func() error {
			defer sem.Release(1)

			texts := make([]string, end-start)
			for i := start; i < end; i++ {
				texts[i-start] = chunks[i].Content
			}
			results, err := m.embedder.EmbedBatch(gctx, texts)
			if err != nil {
				return err
			}
			for i, r := range results {
				if r.Err != nil {
					failMu.Lock()
					failures = append(failures, models.ChunkFailure{
						ChunkID: chunks[start+i].ID,
						Reason:  r.Err.Error(),
					})
					failMu.Unlock()
					continue
				}
				vectors[start+i] = r.Vector
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, fmt.Errorf("embedding corpus: %w", err)
	}
	return vectors, failures, nil
}

// InsertChunks embeds and inserts chunks into a live index, creating it when
// missing. Failed chunks are reported without blocking the rest.
func (m *Manager) InsertChunks(ctx context.Context, name string, chunks []models.Chunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}
	m.mu.Lock()
	h, ok := m.handles[name]
	if !ok {
		trust, err := m.effectiveTrust(ctx)
		if err != nil {
			m.mu.Unlock()
			return 0, err
		}
		h = NewHandle(m.hcfg, trust)
		m.handles[name] = h
	}
	m.mu.Unlock()

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	results, err := m.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, err
	}

	var failures []models.ChunkFailure
	inserted := 0
	for i, r := range results {
		if r.Err != nil {
			failures = append(failures, models.ChunkFailure{ChunkID: chunks[i].ID, Reason: r.Err.Error()})
			continue
		}
		if err := h.Insert(chunks[i], r.Vector); err != nil {
			failures = append(failures, models.ChunkFailure{ChunkID: chunks[i].ID, Reason: err.Error()})
			continue
		}
		inserted++
	}
	if len(failures) > 0 {
		return inserted, &models.PartialIngestFailure{Succeeded: inserted, Failed: failures}
	}
	return inserted, nil
}

// LoadAll restores every snapshot found in the index directory. A corrupt
// snapshot fails the load; the caller decides whether to rebuild.
func (m *Manager) LoadAll() error {
	entries, err := os.ReadDir(m.indexDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".idx") {
			continue
		}
		name := strings.TrimSuffix(e.Name(), ".idx")
		h, err := Load(filepath.Join(m.indexDir, e.Name()), m.hcfg)
		if err != nil {
			return fmt.Errorf("loading index %s: %w", name, err)
		}
		m.mu.Lock()
		m.handles[name] = h
		m.mu.Unlock()
		m.logger.Info("index loaded", zap.String("index", name), zap.Int("chunks", h.Len()))
	}
	return nil
}

func (m *Manager) snapshotPath(name string) string {
	return filepath.Join(m.indexDir, name+".idx")
}

// effectiveTrust merges the store's source registry over the configured
// weights.
func (m *Manager) effectiveTrust(ctx context.Context) (map[string]float64, error) {
	trust := make(map[string]float64, len(m.trust))
	for name, w := range m.trust {
		trust[strings.ToLower(name)] = w
	}
	records, err := m.store.ListSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading source registry: %w", err)
	}
	for name, rec := range records {
		trust[name] = rec.Trust
	}
	return trust, nil
}
