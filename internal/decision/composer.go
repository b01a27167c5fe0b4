// Package decision composes rule and model signals into one verdict per
// transaction.
package decision

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/openrisk/kestrel/internal/domain"
	"github.com/openrisk/kestrel/internal/metrics"
	"github.com/openrisk/kestrel/internal/rules"
	"github.com/openrisk/kestrel/internal/score"
	"github.com/openrisk/kestrel/internal/velocity"
)

// ModelReason is attached to model-sourced fraud verdicts.
const ModelReason = "Model detected suspicious pattern"

// Composer orchestrates one evaluation: rules first, then (only when no
// rule matched) the score provider. It holds no state between calls.
type Composer struct {
	evaluator *rules.Evaluator
	provider  score.Provider
	threshold float64

	repo     domain.Repository
	bus      domain.EventBus
	velocity *velocity.Service
	window   time.Duration
	metrics  *metrics.Collector
}

// Config wires a composer. Provider and Evaluator are required; the rest
// are optional collaborators.
type Config struct {
	Evaluator *rules.Evaluator
	Provider  score.Provider

	// Threshold is the model score strictly above which a transaction is
	// fraud. Rules are unaffected by it.
	Threshold float64

	Repository     domain.Repository
	Bus            domain.EventBus
	Velocity       *velocity.Service
	VelocityWindow time.Duration
	Metrics        *metrics.Collector
}

// NewComposer creates a decision composer.
func NewComposer(cfg Config) *Composer {
	threshold := cfg.Threshold
	if threshold <= 0 {
		threshold = 0.5
	}
	window := cfg.VelocityWindow
	if window <= 0 {
		window = time.Hour
	}
	return &Composer{
		evaluator: cfg.Evaluator,
		provider:  cfg.Provider,
		threshold: threshold,
		repo:      cfg.Repository,
		bus:       cfg.Bus,
		velocity:  cfg.Velocity,
		window:    window,
		metrics:   cfg.Metrics,
	}
}

// Decide produces exactly one Decision for tx.
//
// A rule match short-circuits the model: rules always override model
// opinion, and the provider is never invoked on a match. When the
// decision write fails, the in-memory decision is still returned together
// with an error wrapping domain.ErrPersistence so callers can flag the
// missing durability.
func (c *Composer) Decide(ctx context.Context, tx *domain.Transaction) (*domain.Decision, error) {
	start := time.Now()

	if err := tx.Validate(); err != nil {
		return nil, err
	}

	if c.repo != nil {
		if err := c.repo.SaveTransaction(ctx, tx); err != nil {
			// Evaluation proceeds; the decision write below decides
			// whether durability is flagged.
			slog.Error("failed to save transaction",
				"tx_id", tx.ID,
				"error", err,
			)
		}
	}

	matched, err := c.evaluator.Evaluate(ctx, tx)
	if err != nil {
		return nil, err
	}

	d := &domain.Decision{
		ID:            uuid.New().String(),
		TransactionID: tx.ID,
		CreatedAt:     time.Now().UTC(),
	}

	if matched != nil {
		d.IsFraud = true
		d.Source = domain.SourceRule
		d.Reason = matched.Reason
		d.Score = matched.Severity
		d.RuleID = matched.ID
	} else {
		modelScore, err := c.provider.Score(ctx, tx)
		if err != nil {
			if c.metrics != nil {
				c.metrics.RecordProviderError()
			}
			return nil, fmt.Errorf("score transaction %s: %w", tx.ID, err)
		}

		d.Source = domain.SourceModel
		d.Score = modelScore
		d.IsFraud = modelScore > c.threshold
		if d.IsFraud {
			d.Reason = ModelReason
		}
	}

	c.record(ctx, tx, d, time.Since(start))

	if c.repo != nil {
		if err := c.repo.SaveDecision(ctx, d); err != nil {
			if c.metrics != nil {
				c.metrics.RecordPersistenceError()
			}
			slog.Error("failed to save decision",
				"tx_id", tx.ID,
				"decision_id", d.ID,
				"error", err,
			)
			return d, fmt.Errorf("%w: save decision for %s: %v", domain.ErrPersistence, tx.ID, err)
		}
	}

	c.publish(ctx, d)
	return d, nil
}

// record updates velocity counters and metrics for a completed
// evaluation.
func (c *Composer) record(ctx context.Context, tx *domain.Transaction, d *domain.Decision, elapsed time.Duration) {
	if c.velocity != nil {
		c.velocity.Record(ctx, tx, c.window)
	}
	if c.metrics != nil {
		c.metrics.RecordDecision(d.Source, d.IsFraud, d.Score, elapsed)
	}
}

// publish fans the decision out on the event bus; fraud verdicts also go
// to the alert topic. Fire-and-forget.
func (c *Composer) publish(ctx context.Context, d *domain.Decision) {
	if c.bus == nil {
		return
	}

	payload, err := json.Marshal(d)
	if err != nil {
		return
	}

	if err := c.bus.Publish(ctx, domain.TopicDecision, payload); err != nil {
		slog.Error("failed to publish decision", "decision_id", d.ID, "error", err)
	}
	if d.IsFraud {
		if err := c.bus.Publish(ctx, domain.TopicAlert, payload); err != nil {
			slog.Error("failed to publish alert", "decision_id", d.ID, "error", err)
		}
	}
}
