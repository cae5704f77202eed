package embed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/cratedig/liner/internal/models"
	"github.com/cratedig/liner/pkg/utils"
)

// OpenAIConfig configures the remote embedding gateway.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int
	BatchSize  int
	MaxRetries int
	Timeout    time.Duration
}

// OpenAIEmbedder calls an OpenAI-compatible embeddings endpoint. Large inputs
// are split into sub-batches so a provider failure is isolated to the
// sub-batch it hit.
type OpenAIEmbedder struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions int
	batchSize  int
	maxRetries int
	timeout    time.Duration
	logger     *zap.Logger
}

// NewOpenAIEmbedder creates an embedder against the configured endpoint.
func NewOpenAIEmbedder(cfg OpenAIConfig, logger *zap.Logger) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("embedding API key is required")
	}
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("embedding dimensions must be positive, got %d", cfg.Dimensions)
	}
	cc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		cc.BaseURL = cfg.BaseURL
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 10
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &OpenAIEmbedder{
		client:     openai.NewClientWithConfig(cc),
		model:      openai.EmbeddingModel(cfg.Model),
		dimensions: cfg.Dimensions,
		batchSize:  batch,
		maxRetries: cfg.MaxRetries,
		timeout:    timeout,
		logger:     logger,
	}, nil
}

// Embed embeds a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.callWithRetry(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in sub-batches. A sub-batch that exhausts retries
// marks only its own items failed; the remaining sub-batches still run.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([]BatchResult, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	results := make([]BatchResult, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := start + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		if err := ctx.Err(); err != nil {
			for i := start; i < len(texts); i++ {
				results[i].Err = err
			}
			return results, nil
		}
		vecs, err := e.callWithRetry(ctx, texts[start:end])
		if err != nil {
			e.logger.Warn("embedding sub-batch failed",
				zap.Int("start", start),
				zap.Int("size", end-start),
				zap.Error(err))
			for i := start; i < end; i++ {
				results[i].Err = err
			}
			continue
		}
		for i, v := range vecs {
			results[start+i].Vector = v
		}
	}
	return results, nil
}

// Dimensions reports the configured vector width.
func (e *OpenAIEmbedder) Dimensions() int { return e.dimensions }

// Close releases resources. The underlying HTTP client needs no teardown.
func (e *OpenAIEmbedder) Close() error { return nil }

func (e *OpenAIEmbedder) callWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	var vecs [][]float32

	op := func() error {
		callCtx, cancel := context.WithTimeout(ctx, e.timeout)
		defer cancel()

		resp, err := e.client.CreateEmbeddings(callCtx, openai.EmbeddingRequestStrings{
			Input: texts,
			Model: e.model,
		})
		if err != nil {
			return classifyProviderError(err)
		}
		if len(resp.Data) != len(texts) {
			return backoff.Permanent(fmt.Errorf("provider returned %d embeddings for %d inputs", len(resp.Data), len(texts)))
		}
		out := make([][]float32, len(texts))
		for _, d := range resp.Data {
			if d.Index < 0 || d.Index >= len(texts) {
				return backoff.Permanent(fmt.Errorf("provider returned out-of-range index %d", d.Index))
			}
			if len(d.Embedding) != e.dimensions {
				return backoff.Permanent(fmt.Errorf("%w: got %d, want %d",
					models.ErrDimensionMismatch, len(d.Embedding), e.dimensions))
			}
			v := make([]float32, len(d.Embedding))
			copy(v, d.Embedding)
			utils.NormalizeL2(v)
			out[d.Index] = v
		}
		vecs = out
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(e.maxRetries)), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return nil, err
	}
	return vecs, nil
}

// classifyProviderError decides whether an error is worth retrying. Throttling
// and server-side failures are transient; other client errors are permanent.
func classifyProviderError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("%w: %v", models.ErrProviderThrottled, err)
		case apiErr.HTTPStatusCode >= 500:
			return err
		case apiErr.HTTPStatusCode >= 400:
			return backoff.Permanent(err)
		}
	}
	// Timeouts and transport errors are retriable.
	return err
}
