package score

import (
	"context"

	"github.com/openrisk/kestrel/internal/domain"
)

// Heuristic is a deterministic local provider used when no inference
// endpoint is configured. It scores on coarse transaction features only
// and exists so single-node deployments and tests have a reproducible
// model seam; production deployments point ProviderConfig.URL at a real
// inference service instead.
type Heuristic struct{}

// Score implements Provider. Deterministic: the same transaction always
// yields the same score.
func (Heuristic) Score(_ context.Context, tx *domain.Transaction) (float64, error) {
	s := 0.1
	if tx.Amount > 10000 {
		s += 0.2
	}
	if tx.PaymentMode == domain.PaymentCard {
		s += 0.1
	}
	return s, nil
}
