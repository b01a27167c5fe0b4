package rules

import (
	"context"
	"log/slog"
	"time"

	"github.com/openrisk/kestrel/internal/domain"
)

// VelocityGetter returns the payer's rolling transaction count within a
// time window.
type VelocityGetter func(ctx context.Context, payerID string, window time.Duration) (int64, error)

// Evaluator applies the active rule set to a transaction in order and
// returns the first matching rule, or nil when nothing matches.
type Evaluator struct {
	store    *Store
	velocity VelocityGetter
	window   time.Duration

	// RuleFailureHook, when set, is invoked for every rule whose
	// evaluation errors (the rule is skipped, never matched).
	RuleFailureHook func(ruleID string)
}

// NewEvaluator creates an evaluator over the given store. velocity may be
// nil; frequency rules then evaluate against a count of zero.
func NewEvaluator(store *Store, velocity VelocityGetter, window time.Duration) *Evaluator {
	if window <= 0 {
		window = time.Hour
	}
	return &Evaluator{
		store:    store,
		velocity: velocity,
		window:   window,
	}
}

// Evaluate runs the active rules in order against tx. The first rule
// whose predicate holds wins; inactive rules are not in the snapshot and
// are never evaluated. A rule whose evaluation errors fails closed: it is
// skipped and logged while the remaining rules still run.
func (e *Evaluator) Evaluate(ctx context.Context, tx *domain.Transaction) (*domain.Rule, error) {
	snap := e.store.Snapshot()
	if snap == nil || len(snap.rules) == 0 {
		return nil, nil
	}

	activation := e.activationFor(ctx, tx, snap)

	for _, cr := range snap.rules {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		out, _, err := cr.program.Eval(activation)
		if err != nil {
			slog.Warn("rule evaluation failed, skipping rule",
				"rule_id", cr.rule.ID,
				"tx_id", tx.ID,
				"error", err,
			)
			if e.RuleFailureHook != nil {
				e.RuleFailureHook(cr.rule.ID)
			}
			continue
		}

		if matched, ok := out.Value().(bool); ok && matched {
			return cr.rule, nil
		}
	}

	return nil, nil
}

// activationFor builds the CEL variable bindings for one transaction.
// The velocity count is fetched only when an active rule references it.
func (e *Evaluator) activationFor(ctx context.Context, tx *domain.Transaction, snap *Snapshot) map[string]any {
	var velocityCount float64
	if snap.needsVelocity && e.velocity != nil && tx.PayerID != "" {
		n, err := e.velocity(ctx, tx.PayerID, e.window)
		if err != nil {
			slog.Warn("velocity lookup failed, counting zero",
				"payer_id", tx.PayerID,
				"error", err,
			)
		} else {
			velocityCount = float64(n)
		}
	}

	return map[string]any{
		FieldAmount:        tx.Amount,
		FieldHour:          float64(tx.Timestamp.Hour()),
		FieldVelocityCount: velocityCount,
		FieldChannel:       string(tx.Channel),
		FieldPaymentMode:   string(tx.PaymentMode),
		FieldPayerID:       tx.PayerID,
		FieldPayeeID:       tx.PayeeID,
		FieldDevice:        tx.Device,
		FieldBrowser:       tx.Browser,
	}
}
