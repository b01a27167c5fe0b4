package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/openrisk/kestrel/internal/domain"
)

func newTestRepo(t *testing.T) domain.Repository {
	t.Helper()
	repo, err := New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "kestrel-test.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func storedTx(id, payer string, amount float64, ts time.Time) *domain.Transaction {
	return &domain.Transaction{
		ID:          id,
		Amount:      amount,
		Timestamp:   ts,
		Channel:     domain.ChannelMobile,
		PaymentMode: domain.PaymentUPI,
		PayerID:     payer,
		PayeeID:     "payee-1",
		Device:      "pixel-9",
		Browser:     "chrome",
		CreatedAt:   time.Now().UTC(),
	}
}

func TestTransactionRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	ts := time.Date(2026, 8, 28, 14, 0, 0, 0, time.UTC)
	if err := repo.SaveTransaction(ctx, storedTx("tx-1", "payer-1", 1234.5, ts)); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	got, err := repo.GetTransaction(ctx, "tx-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Amount != 1234.5 {
		t.Errorf("expected amount 1234.5, got %v", got.Amount)
	}
	if got.Channel != domain.ChannelMobile || got.PaymentMode != domain.PaymentUPI {
		t.Errorf("enums did not survive round trip: %s / %s", got.Channel, got.PaymentMode)
	}
	if !got.Timestamp.Equal(ts) {
		t.Errorf("expected timestamp %v, got %v", ts, got.Timestamp)
	}
}

func TestTransactionReplayKeepsFirstRow(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	ts := time.Now().UTC()
	if err := repo.SaveTransaction(ctx, storedTx("tx-1", "payer-1", 100, ts)); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if err := repo.SaveTransaction(ctx, storedTx("tx-1", "payer-1", 999, ts)); err != nil {
		t.Fatalf("replay save failed: %v", err)
	}

	got, err := repo.GetTransaction(ctx, "tx-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Amount != 100 {
		t.Errorf("expected first stored amount 100, got %v", got.Amount)
	}
}

func TestGetTransactionNotFound(t *testing.T) {
	repo := newTestRepo(t)
	if _, err := repo.GetTransaction(context.Background(), "ghost"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCountTransactionsByPayer(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for i, age := range []time.Duration{time.Minute, 30 * time.Minute, 3 * time.Hour} {
		tx := storedTx("tx-"+string(rune('a'+i)), "payer-1", 100, now.Add(-age))
		if err := repo.SaveTransaction(ctx, tx); err != nil {
			t.Fatalf("save failed: %v", err)
		}
	}
	if err := repo.SaveTransaction(ctx, storedTx("tx-other", "payer-2", 100, now)); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	n, err := repo.CountTransactionsByPayer(ctx, "payer-1", now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 transactions within the hour, got %d", n)
	}
}

func testRule(id string, priority int, seq int64) *domain.Rule {
	now := time.Now().UTC()
	return &domain.Rule{
		ID:          id,
		Name:        "Rule " + id,
		Description: "test rule",
		Type:        domain.RuleTypeAmount,
		Predicate: domain.Predicate{
			Field:    "amount",
			Operator: domain.OpGT,
			Value:    50000.0,
		},
		Reason:    "too big",
		Severity:  0.85,
		Active:    true,
		Priority:  priority,
		Seq:       seq,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestRuleUpsertAndRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if err := repo.SaveRule(ctx, testRule("r1", 10, 1)); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	got, err := repo.GetRule(ctx, "r1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Predicate.Field != "amount" || got.Predicate.Operator != domain.OpGT {
		t.Errorf("predicate did not survive: %+v", got.Predicate)
	}
	if v, ok := got.Predicate.Value.(float64); !ok || v != 50000.0 {
		t.Errorf("expected numeric literal 50000, got %v (%T)", got.Predicate.Value, got.Predicate.Value)
	}
	if !got.Active || got.Severity != 0.85 || got.Priority != 10 || got.Seq != 1 {
		t.Errorf("fields did not survive: %+v", got)
	}

	// Upsert flips activation in place.
	upd := testRule("r1", 10, 1)
	upd.Active = false
	if err := repo.SaveRule(ctx, upd); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	got, _ = repo.GetRule(ctx, "r1")
	if got.Active {
		t.Error("expected upsert to persist the toggle")
	}
}

func TestRuleStringPredicateRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	r := testRule("r-str", 10, 1)
	r.Type = domain.RuleTypeLocationDevice
	r.Predicate = domain.Predicate{Field: "channel", Operator: domain.OpEQ, Value: "mobile"}
	if err := repo.SaveRule(ctx, r); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	got, err := repo.GetRule(ctx, "r-str")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if v, ok := got.Predicate.Value.(string); !ok || v != "mobile" {
		t.Errorf("expected string literal, got %v (%T)", got.Predicate.Value, got.Predicate.Value)
	}
}

func TestListRulesOrdering(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	for _, r := range []*domain.Rule{
		testRule("late", 20, 1),
		testRule("tie-b", 10, 3),
		testRule("first", 10, 2),
	} {
		if err := repo.SaveRule(ctx, r); err != nil {
			t.Fatalf("save failed: %v", err)
		}
	}

	list, err := repo.ListRules(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}

	want := []string{"first", "tie-b", "late"}
	if len(list) != len(want) {
		t.Fatalf("expected %d rules, got %d", len(want), len(list))
	}
	for i, id := range want {
		if list[i].ID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, list[i].ID)
		}
	}
}

func TestDeleteRule(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if err := repo.SaveRule(ctx, testRule("r1", 10, 1)); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if err := repo.DeleteRule(ctx, "r1"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := repo.GetRule(ctx, "r1"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := repo.DeleteRule(ctx, "r1"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing rule, got %v", err)
	}
}

func TestDecisionRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	d := &domain.Decision{
		ID:            "d1",
		TransactionID: "tx-1",
		IsFraud:       true,
		Source:        domain.SourceRule,
		Reason:        "Unusually high transaction amount",
		Score:         0.85,
		RuleID:        "r1",
		CreatedAt:     time.Now().UTC(),
	}
	if err := repo.SaveDecision(ctx, d); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	got, err := repo.GetDecision(ctx, "d1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !got.IsFraud || got.Source != domain.SourceRule || got.RuleID != "r1" || got.Score != 0.85 {
		t.Errorf("decision did not survive round trip: %+v", got)
	}
}

func TestDecisionAppendOnly(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	d := &domain.Decision{
		ID:            "d1",
		TransactionID: "tx-1",
		Source:        domain.SourceModel,
		Score:         0.2,
		CreatedAt:     time.Now().UTC(),
	}
	if err := repo.SaveDecision(ctx, d); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	// A second write with the same id must be rejected, not overwrite.
	if err := repo.SaveDecision(ctx, d); !errors.Is(err, domain.ErrPersistence) {
		t.Errorf("expected ErrPersistence on duplicate decision id, got %v", err)
	}
}

func TestSaveFraudReport(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	r := &domain.FraudReport{
		ID:                "fr-1",
		TransactionID:     "tx-1",
		ReportingEntityID: "bank-042",
		Details:           "customer disputed charge",
		ReportedAt:        time.Now().UTC(),
	}
	if err := repo.SaveFraudReport(ctx, r); err != nil {
		t.Fatalf("save failed: %v", err)
	}
}

func TestRebind(t *testing.T) {
	pg := &SQLRepository{driver: "postgres"}
	got := pg.rebind("INSERT INTO t (a, b) VALUES (?, ?)")
	want := "INSERT INTO t (a, b) VALUES ($1, $2)"
	if got != want {
		t.Errorf("rebind = %q, want %q", got, want)
	}

	sq := &SQLRepository{driver: "sqlite"}
	if got := sq.rebind("SELECT ?"); got != "SELECT ?" {
		t.Errorf("sqlite rebind must be identity, got %q", got)
	}
}
