package models

import (
	"errors"
	"fmt"
	"strings"
)

// Error taxonomy for the retrieval pipeline. Callers classify with errors.Is.
var (
	// ErrInvalidInput covers bad queries, k out of bounds, and malformed filters.
	// Reported to the caller, never retried.
	ErrInvalidInput = errors.New("invalid input")

	// ErrProviderThrottled is a rate-limit signal from a remote provider.
	// Retried with backoff up to a bound before surfacing.
	ErrProviderThrottled = errors.New("provider throttled")

	// ErrProviderUnavailable means the remote provider could not serve the
	// call after retries (or the circuit is open).
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrDimensionMismatch means an embedding did not match the configured
	// dimension. Fatal: it signals a provider or model version change.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrIndexCorrupt means a persisted index blob failed validation at load
	// time. The index cannot serve until rebuilt.
	ErrIndexCorrupt = errors.New("index corrupt")

	// ErrBuildInProgress means a build is already running for the index name.
	ErrBuildInProgress = errors.New("index build already in progress")

	// ErrUnknownIndex means no index with the requested name is loaded.
	ErrUnknownIndex = errors.New("unknown index")

	// ErrHallucinationRejected is internal to the orchestrator: the generated
	// answer cited a source absent from the retrieval context. Triggers
	// regenerate-then-degrade and is never surfaced raw to the caller.
	ErrHallucinationRejected = errors.New("generated answer cites a source outside the retrieval context")
)

// ChunkFailure records one chunk that could not be ingested.
type ChunkFailure struct {
	ChunkID string `json:"chunk_id"`
	Reason  string `json:"reason"`
}

// PartialIngestFailure reports per-chunk ingestion failures so the caller can
// re-submit only the failed subset. Succeeded is the count that made it in.
type PartialIngestFailure struct {
	Succeeded int
	Failed    []ChunkFailure
}

func (e *PartialIngestFailure) Error() string {
	ids := make([]string, 0, len(e.Failed))
	for _, f := range e.Failed {
		ids = append(ids, f.ChunkID)
	}
	return fmt.Sprintf("ingested %d chunks, %d failed: %s", e.Succeeded, len(e.Failed), strings.Join(ids, ", "))
}
