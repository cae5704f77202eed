package gen

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/cratedig/liner/internal/breaker"
	"github.com/cratedig/liner/internal/models"
)

// OpenAIConfig configures the chat-completion gateway.
type OpenAIConfig struct {
	APIKey           string
	BaseURL          string
	Model            string
	MaxTokens        int
	MaxRetries       int
	Timeout          time.Duration
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

// OpenAIGenerator calls an OpenAI-compatible chat endpoint through a circuit
// breaker. When the breaker is open, Generate fails fast with
// ErrProviderUnavailable and never touches the network.
type OpenAIGenerator struct {
	client     *openai.Client
	model      string
	maxTokens  int
	maxRetries int
	timeout    time.Duration
	brk        *breaker.Breaker
	logger     *zap.Logger
}

// NewOpenAIGenerator creates a generator against the configured endpoint.
func NewOpenAIGenerator(cfg OpenAIConfig, logger *zap.Logger) (*OpenAIGenerator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("generation API key is required")
	}
	cc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		cc.BaseURL = cfg.BaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	threshold := cfg.BreakerThreshold
	if threshold <= 0 {
		threshold = 5
	}
	cooldown := cfg.BreakerCooldown
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &OpenAIGenerator{
		client:     openai.NewClientWithConfig(cc),
		model:      cfg.Model,
		maxTokens:  cfg.MaxTokens,
		maxRetries: cfg.MaxRetries,
		timeout:    timeout,
		brk:        breaker.New(threshold, cooldown),
		logger:     logger,
	}, nil
}

// Generate runs a chat completion. A timed-out call is abandoned, not left
// running: the call context is detached from cancellation only by its own
// deadline, and the result of a late response is discarded with the breaker
// already notified.
func (g *OpenAIGenerator) Generate(ctx context.Context, system, prompt string) (string, error) {
	if err := g.brk.Allow(); err != nil {
		return "", fmt.Errorf("%w: circuit open", models.ErrProviderUnavailable)
	}

	text, err := g.generateWithRetry(ctx, system, prompt)
	if err != nil {
		g.brk.Failure()
		g.logger.Warn("generation failed", zap.Error(err), zap.String("breaker", g.brk.State().String()))
		return "", err
	}
	g.brk.Success()
	return text, nil
}

func (g *OpenAIGenerator) generateWithRetry(ctx context.Context, system, prompt string) (string, error) {
	var text string

	op := func() error {
		callCtx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()

		resp, err := g.client.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
			Model:     g.model,
			MaxTokens: g.maxTokens,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: system},
				{Role: openai.ChatMessageRoleUser, Content: prompt},
			},
		})
		if err != nil {
			return classifyProviderError(err)
		}
		if len(resp.Choices) == 0 {
			return backoff.Permanent(fmt.Errorf("provider returned no choices"))
		}
		text = resp.Choices[0].Message.Content
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(g.maxRetries)), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return "", err
	}
	return text, nil
}

// State exposes the circuit position.
func (g *OpenAIGenerator) State() breaker.State { return g.brk.State() }

func (g *OpenAIGenerator) Close() error { return nil }

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
	return err
}
