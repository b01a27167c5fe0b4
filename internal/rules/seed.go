package rules

import (
	"context"

	"github.com/openrisk/kestrel/internal/domain"
)

// SeedRules returns the default rule set installed on first start when
// the rule table is empty. Everything here can be edited or deleted
// through the rule management API afterwards.
func SeedRules() []*domain.Rule {
	return []*domain.Rule{
		{
			ID:          "rule-high-amount",
			Name:        "High Amount Transaction",
			Description: "Flag transactions with unusually high amounts",
			Type:        domain.RuleTypeAmount,
			Predicate:   domain.Predicate{Field: FieldAmount, Operator: domain.OpGT, Value: 50000.0},
			Reason:      "Unusually high transaction amount",
			Severity:    0.85,
			Active:      true,
			Priority:    10,
		},
		{
			ID:          "rule-unusual-hour",
			Name:        "Unusual Hour",
			Description: "Flag transactions initiated between midnight and 05:00",
			Type:        domain.RuleTypeLocationDevice,
			Predicate:   domain.Predicate{Field: FieldHour, Operator: domain.OpLT, Value: 5.0},
			Reason:      "Transaction at unusual hour",
			Severity:    0.75,
			Active:      true,
			Priority:    20,
		},
		{
			ID:          "rule-rapid-transactions",
			Name:        "Rapid Transactions",
			Description: "Flag payers with more than 5 transactions in the rolling window",
			Type:        domain.RuleTypeFrequency,
			Predicate:   domain.Predicate{Field: FieldVelocityCount, Operator: domain.OpGT, Value: 5.0},
			Reason:      "Too many transactions in a short period",
			Severity:    0.8,
			Active:      true,
			Priority:    30,
		},
	}
}

// Seed installs the default rules into an empty store. Existing rules are
// left alone.
func Seed(ctx context.Context, store *Store) error {
	if store.Count() > 0 {
		return nil
	}
	for _, r := range SeedRules() {
		if _, err := store.Create(ctx, r); err != nil {
			return err
		}
	}
	return nil
}
