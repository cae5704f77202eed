package ingest

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/cratedig/liner/internal/index"
	"github.com/cratedig/liner/internal/models"
	"github.com/cratedig/liner/internal/storage"
)

// Ingestor persists chunks and inserts them into the live index. In-flight
// batches are bounded by a semaphore; callers over the limit block rather
// than drop.
type Ingestor struct {
	store     storage.Store
	manager   *index.Manager
	indexName string
	sem       *semaphore.Weighted
	logger    *zap.Logger
}

// NewIngestor creates an ingestor targeting the named index.
func NewIngestor(store storage.Store, manager *index.Manager, indexName string,
	maxInflight int, logger *zap.Logger) *Ingestor {
	if maxInflight <= 0 {
		maxInflight = 4
	}
	return &Ingestor{
		store:     store,
		manager:   manager,
		indexName: indexName,
		sem:       semaphore.NewWeighted(int64(maxInflight)),
		logger:    logger,
	}
}

// IngestBatch stores the chunks and inserts them into the index. The store
// write happens first so a failed insert is recoverable by rebuild. Returns
// the number of chunks live in the index; a partial embedding failure is
// reported alongside the successes.
func (in *Ingestor) IngestBatch(ctx context.Context, chunks []models.Chunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}
	if err := in.sem.Acquire(ctx, 1); err != nil {
		return 0, err
	}
	defer in.sem.Release(1)

	if err := in.store.AddChunks(ctx, chunks); err != nil {
		return 0, err
	}
	inserted, err := in.manager.InsertChunks(ctx, in.indexName, chunks)
	if err != nil {
		in.logger.Warn("ingest batch partially failed",
			zap.Int("stored", len(chunks)),
			zap.Int("indexed", inserted),
			zap.Error(err))
		return inserted, err
	}
	in.logger.Info("ingested batch",
		zap.String("index", in.indexName),
		zap.Int("chunks", inserted))
	return inserted, nil
}

// IngestFile loads a batch file and ingests it.
func (in *Ingestor) IngestFile(ctx context.Context, path string) (int, error) {
	chunks, err := LoadBatchFile(path)
	if err != nil {
		return 0, err
	}
	return in.IngestBatch(ctx, chunks)
}
