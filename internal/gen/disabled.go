package gen

import (
	"context"

	"github.com/cratedig/liner/internal/breaker"
	"github.com/cratedig/liner/internal/models"
)

// Disabled is the generator used when no provider is configured. Every call
// fails fast, so queries always take the degraded path.
type Disabled struct{}

func (Disabled) Generate(context.Context, string, string) (string, error) {
	return "", models.ErrProviderUnavailable
}

func (Disabled) State() breaker.State { return breaker.StateOpen }

func (Disabled) Close() error { return nil }
