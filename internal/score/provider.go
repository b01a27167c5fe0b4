// Package score provides the seam to the external model-inference
// collaborator. The engine never implements the model itself; it only
// consumes a probability and applies a threshold.
package score

import (
	"context"

	"github.com/openrisk/kestrel/internal/domain"
)

// Provider returns the model's fraud probability, in [0,1], for a
// transaction. It is invoked only when no rule matched. Failures must be
// returned as errors wrapping domain.ErrProvider, never coerced into a
// score.
type Provider interface {
	Score(ctx context.Context, tx *domain.Transaction) (float64, error)
}

// Func adapts a plain function to the Provider interface.
type Func func(ctx context.Context, tx *domain.Transaction) (float64, error)

// Score implements Provider.
func (f Func) Score(ctx context.Context, tx *domain.Transaction) (float64, error) {
	return f(ctx, tx)
}
