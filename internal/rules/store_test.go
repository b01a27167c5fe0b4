package rules

import (
	"context"
	"errors"
	"testing"

	"github.com/openrisk/kestrel/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(context.Background(), nil)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return store
}

func amountRule(id string, priority int, threshold float64) *domain.Rule {
	return &domain.Rule{
		ID:       id,
		Name:     "Amount " + id,
		Type:     domain.RuleTypeAmount,
		Predicate: domain.Predicate{
			Field:    FieldAmount,
			Operator: domain.OpGT,
			Value:    threshold,
		},
		Severity: 0.9,
		Active:   true,
		Priority: priority,
	}
}

func TestStoreCreateAssignsDefaults(t *testing.T) {
	store := newTestStore(t)

	created, err := store.Create(context.Background(), &domain.Rule{
		Name: "No Frills",
		Type: domain.RuleTypeAmount,
		Predicate: domain.Predicate{
			Field: FieldAmount, Operator: domain.OpGT, Value: 100.0,
		},
		Active: true,
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if created.ID == "" {
		t.Error("expected generated rule id")
	}
	if created.Severity != 1.0 {
		t.Errorf("expected default severity 1.0, got %v", created.Severity)
	}
	if created.Reason != "No Frills" {
		t.Errorf("expected reason to default to name, got %q", created.Reason)
	}
	if created.CreatedAt.IsZero() || created.UpdatedAt.IsZero() {
		t.Error("expected timestamps to be set")
	}
}

func TestStoreCreateDuplicateID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Create(ctx, amountRule("r1", 10, 100)); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	_, err := store.Create(ctx, amountRule("r1", 20, 200))
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation for duplicate id, got %v", err)
	}
}

func TestStoreCreateRejectsBadRule(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	cases := []*domain.Rule{
		{Name: "", Type: domain.RuleTypeAmount, Predicate: domain.Predicate{Field: FieldAmount, Operator: domain.OpGT, Value: 1.0}},
		{Name: "bad type", Type: "geolocation", Predicate: domain.Predicate{Field: FieldAmount, Operator: domain.OpGT, Value: 1.0}},
		{Name: "bad severity", Type: domain.RuleTypeAmount, Severity: 1.5, Predicate: domain.Predicate{Field: FieldAmount, Operator: domain.OpGT, Value: 1.0}},
		{Name: "bad predicate", Type: domain.RuleTypeAmount, Predicate: domain.Predicate{Field: "nope", Operator: domain.OpGT, Value: 1.0}},
	}
	for _, r := range cases {
		if _, err := store.Create(ctx, r); !errors.Is(err, domain.ErrValidation) {
			t.Errorf("rule %q: expected ErrValidation, got %v", r.Name, err)
		}
	}
	if store.Count() != 0 {
		t.Errorf("expected empty store after rejected creates, got %d rules", store.Count())
	}
}

func TestStoreOrdering(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// Insert out of priority order; ties broken by creation sequence.
	for _, r := range []*domain.Rule{
		amountRule("late", 20, 1),
		amountRule("first", 10, 1),
		amountRule("tie-a", 10, 1),
		amountRule("tie-b", 10, 1),
	} {
		if _, err := store.Create(ctx, r); err != nil {
			t.Fatalf("create %s failed: %v", r.ID, err)
		}
	}

	list := store.List("")
	want := []string{"first", "tie-a", "tie-b", "late"}
	if len(list) != len(want) {
		t.Fatalf("expected %d rules, got %d", len(want), len(list))
	}
	for i, id := range want {
		if list[i].ID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, list[i].ID)
		}
	}
}

func TestStoreListTypeFilter(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Create(ctx, amountRule("amt", 10, 1)); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	freq := &domain.Rule{
		ID:   "freq",
		Name: "Frequency",
		Type: domain.RuleTypeFrequency,
		Predicate: domain.Predicate{
			Field: FieldVelocityCount, Operator: domain.OpGT, Value: 5.0,
		},
		Active: true,
	}
	if _, err := store.Create(ctx, freq); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	list := store.List(domain.RuleTypeFrequency)
	if len(list) != 1 || list[0].ID != "freq" {
		t.Errorf("expected only the frequency rule, got %v", list)
	}
}

func TestStoreUpdatePreservesOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Create(ctx, amountRule("a", 10, 1)); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := store.Create(ctx, amountRule("b", 10, 1)); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	upd := amountRule("a", 10, 999)
	upd.Name = "Renamed"
	updated, err := store.Update(ctx, "a", upd)
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.Name != "Renamed" {
		t.Errorf("expected updated name, got %q", updated.Name)
	}

	list := store.List("")
	if list[0].ID != "a" || list[1].ID != "b" {
		t.Errorf("expected update to preserve creation order, got %s, %s", list[0].ID, list[1].ID)
	}
}

func TestStoreUpdateUnknownRule(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Update(context.Background(), "ghost", amountRule("ghost", 10, 1))
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreToggleUpdatesSnapshot(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Create(ctx, amountRule("r1", 10, 1)); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	before := store.Snapshot()
	if before.Len() != 1 {
		t.Fatalf("expected 1 active rule, got %d", before.Len())
	}

	toggled, err := store.Toggle(ctx, "r1", false)
	if err != nil {
		t.Fatalf("toggle failed: %v", err)
	}
	if toggled.Active {
		t.Error("expected rule to be inactive after toggle")
	}

	after := store.Snapshot()
	if after.Len() != 0 {
		t.Errorf("expected 0 active rules in snapshot, got %d", after.Len())
	}
	if after.Version <= before.Version {
		t.Errorf("expected snapshot version to advance, got %d -> %d", before.Version, after.Version)
	}

	// Toggling back restores the rule without recompiling it away.
	if _, err := store.Toggle(ctx, "r1", true); err != nil {
		t.Fatalf("toggle back failed: %v", err)
	}
	if store.Snapshot().Len() != 1 {
		t.Error("expected rule active again after second toggle")
	}
}

func TestStoreDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Create(ctx, amountRule("r1", 10, 1)); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := store.Delete(ctx, "r1"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := store.Get("r1"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := store.Delete(ctx, "r1"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound for double delete, got %v", err)
	}
}

func TestSeedInstallsDefaultsOnce(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := Seed(ctx, store); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	if store.Count() != len(SeedRules()) {
		t.Fatalf("expected %d seeded rules, got %d", len(SeedRules()), store.Count())
	}

	// Seeding again must not duplicate or error.
	if err := Seed(ctx, store); err != nil {
		t.Fatalf("second seed failed: %v", err)
	}
	if store.Count() != len(SeedRules()) {
		t.Errorf("expected seed to be idempotent, got %d rules", store.Count())
	}
}
