// Package velocity provides rolling transaction counts for frequency
// rules.
package velocity

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/openrisk/kestrel/internal/domain"
)

// Service computes per-payer transaction velocity. Counts are served from
// cache counters when available and fall back to the transaction history
// in the repository.
type Service struct {
	repo  domain.Repository
	cache domain.Cache
}

// NewService creates a velocity service. Either dependency may be nil;
// with both nil every count is zero.
func NewService(repo domain.Repository, cache domain.Cache) *Service {
	return &Service{repo: repo, cache: cache}
}

// Record notes one evaluated transaction in the rolling window. Counter
// failures are logged, not propagated: velocity is advisory context, not
// part of the decision's durability.
func (s *Service) Record(ctx context.Context, tx *domain.Transaction, window time.Duration) {
	if s.cache == nil || tx.PayerID == "" {
		return
	}
	if _, err := s.cache.IncrementCounter(ctx, counterKey(tx.PayerID), window); err != nil {
		slog.Warn("failed to increment velocity counter",
			"payer_id", tx.PayerID,
			"error", err,
		)
	}
}

// Count returns the payer's transaction count within the window. The
// cached counter answers first; the repository is the fallback when no
// counter exists (for example after a restart).
func (s *Service) Count(ctx context.Context, payerID string, window time.Duration) (int64, error) {
	if payerID == "" {
		return 0, fmt.Errorf("%w: payerID is required", domain.ErrValidation)
	}

	if s.cache != nil {
		n, err := s.cache.GetCounter(ctx, counterKey(payerID))
		if err != nil {
			slog.Warn("velocity counter read failed, falling back to repository",
				"payer_id", payerID,
				"error", err,
			)
		} else if n > 0 {
			return n, nil
		}
	}

	if s.repo != nil {
		since := time.Now().Add(-window)
		n, err := s.repo.CountTransactionsByPayer(ctx, payerID, since)
		if err != nil {
			return 0, fmt.Errorf("failed to count transactions: %w", err)
		}
		return n, nil
	}

	return 0, nil
}

// Getter returns the Count method shaped as the rule evaluator's
// VelocityGetter seam.
func (s *Service) Getter() func(ctx context.Context, payerID string, window time.Duration) (int64, error) {
	return s.Count
}

func counterKey(payerID string) string {
	return "velocity:" + payerID
}
