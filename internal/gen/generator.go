// Package gen produces grounded prose from a remote chat-completion provider,
// guarded by a circuit breaker so a flapping provider degrades queries instead
// of stalling them.
package gen

import (
	"context"

	"github.com/cratedig/liner/internal/breaker"
)

// Generator synthesizes a response from a system prompt and a user prompt.
type Generator interface {
	// Generate returns the provider's completion text.
	Generate(ctx context.Context, system, prompt string) (string, error)
	// State exposes the circuit position for status reporting.
	State() breaker.State
	Close() error
}
