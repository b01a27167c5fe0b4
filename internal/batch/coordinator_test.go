package batch

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/openrisk/kestrel/internal/decision"
	"github.com/openrisk/kestrel/internal/domain"
	"github.com/openrisk/kestrel/internal/rules"
	"github.com/openrisk/kestrel/internal/score"
)

func batchComposer(t *testing.T, provider score.Provider) *decision.Composer {
	t.Helper()
	store, err := rules.NewStore(context.Background(), nil)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	_, err = store.Create(context.Background(), &domain.Rule{
		ID:        "high-amount",
		Name:      "High Amount",
		Type:      domain.RuleTypeAmount,
		Predicate: domain.Predicate{Field: rules.FieldAmount, Operator: domain.OpGT, Value: 50000.0},
		Reason:    "Unusually high transaction amount",
		Severity:  0.85,
		Active:    true,
	})
	if err != nil {
		t.Fatalf("failed to create rule: %v", err)
	}
	return decision.NewComposer(decision.Config{
		Evaluator: rules.NewEvaluator(store, nil, time.Hour),
		Provider:  provider,
		Threshold: 0.5,
	})
}

func batchTx(id string, amount float64) *domain.Transaction {
	return &domain.Transaction{
		ID:          id,
		Amount:      amount,
		Timestamp:   time.Date(2026, 8, 28, 14, 0, 0, 0, time.UTC),
		Channel:     domain.ChannelWeb,
		PaymentMode: domain.PaymentCard,
	}
}

func TestRunEvaluatesAllTransactions(t *testing.T) {
	provider := score.Func(func(ctx context.Context, tx *domain.Transaction) (float64, error) {
		return 0.1, nil
	})
	c := NewCoordinator(batchComposer(t, provider), 4)

	var txs []*domain.Transaction
	for i := 0; i < 20; i++ {
		amount := 100.0
		if i%5 == 0 {
			amount = 60000
		}
		txs = append(txs, batchTx(fmt.Sprintf("tx-%d", i), amount))
	}

	results := c.Run(context.Background(), txs)
	if len(results) != len(txs) {
		t.Fatalf("expected %d results, got %d", len(txs), len(results))
	}

	for i := 0; i < 20; i++ {
		res := results[fmt.Sprintf("tx-%d", i)]
		if res.Err != nil {
			t.Fatalf("tx-%d: unexpected error %v", i, res.Err)
		}
		wantFraud := i%5 == 0
		if res.Decision.IsFraud != wantFraud {
			t.Errorf("tx-%d: expected fraud=%v, got %v", i, wantFraud, res.Decision.IsFraud)
		}
	}
}

func TestRunOneFailureDoesNotAbortBatch(t *testing.T) {
	provider := score.Func(func(ctx context.Context, tx *domain.Transaction) (float64, error) {
		if tx.ID == "bad" {
			return 0, fmt.Errorf("%w: inference down", domain.ErrProvider)
		}
		return 0.1, nil
	})
	c := NewCoordinator(batchComposer(t, provider), 4)

	results := c.Run(context.Background(), []*domain.Transaction{
		batchTx("ok-1", 100),
		batchTx("bad", 100),
		batchTx("ok-2", 100),
	})

	if !errors.Is(results["bad"].Err, domain.ErrProvider) {
		t.Errorf("expected ErrProvider for bad tx, got %v", results["bad"].Err)
	}
	for _, id := range []string{"ok-1", "ok-2"} {
		if results[id].Err != nil {
			t.Errorf("%s: expected success, got %v", id, results[id].Err)
		}
		if results[id].Decision == nil {
			t.Errorf("%s: expected a decision", id)
		}
	}
}

func TestRunDuplicateIDsLastWriteWins(t *testing.T) {
	provider := score.Func(func(ctx context.Context, tx *domain.Transaction) (float64, error) {
		return 0.0, nil
	})
	c := NewCoordinator(batchComposer(t, provider), 1)

	results := c.Run(context.Background(), []*domain.Transaction{
		batchTx("dup", 60000), // rule fraud
		batchTx("dup", 100),   // model, not fraud
	})

	if len(results) != 1 {
		t.Fatalf("expected duplicates to collapse to one entry, got %d", len(results))
	}
	res := results["dup"]
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if res.Decision.IsFraud {
		t.Error("expected the later submission's verdict to win")
	}
}

func TestRunCancelledContext(t *testing.T) {
	provider := score.Func(func(ctx context.Context, tx *domain.Transaction) (float64, error) {
		return 0.1, nil
	})
	c := NewCoordinator(batchComposer(t, provider), 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := c.Run(ctx, []*domain.Transaction{
		batchTx("tx-1", 100),
		batchTx("tx-2", 100),
	})

	for id, res := range results {
		if !errors.Is(res.Err, context.Canceled) {
			t.Errorf("%s: expected context.Canceled, got %v", id, res.Err)
		}
	}
}

func TestRunEmptyInput(t *testing.T) {
	c := NewCoordinator(batchComposer(t, score.Heuristic{}), 4)

	results := c.Run(context.Background(), nil)
	if results == nil {
		t.Fatal("expected non-nil result map")
	}
	if len(results) != 0 {
		t.Errorf("expected empty result map, got %d entries", len(results))
	}
}
