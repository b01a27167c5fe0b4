package domain

import (
	"fmt"
	"time"
)

// RuleType categorizes a rule for listing and filtering. It never affects
// evaluation order.
type RuleType string

const (
	RuleTypeAmount         RuleType = "transaction_amount"
	RuleTypeFrequency      RuleType = "transaction_frequency"
	RuleTypeLocationDevice RuleType = "location_device"
)

// ParseRuleType validates a rule type string.
func ParseRuleType(s string) (RuleType, error) {
	switch RuleType(s) {
	case RuleTypeAmount, RuleTypeFrequency, RuleTypeLocationDevice:
		return RuleType(s), nil
	}
	return "", fmt.Errorf("%w: unknown rule type %q", ErrValidation, s)
}

// Operator is a comparison operator in a rule predicate.
type Operator string

const (
	OpGT Operator = ">"
	OpGE Operator = ">="
	OpLT Operator = "<"
	OpLE Operator = "<="
	OpEQ Operator = "=="
	OpNE Operator = "!="
)

// Predicate is the typed condition of a rule: a field compared against a
// literal. Predicates are validated and compiled at rule creation time;
// no free-form expression text is ever executed.
type Predicate struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    any      `json:"value"`
}

// Rule is a named, orderable, toggleable predicate over a Transaction.
// Rules are mutable through the rule manager only; deleting a rule removes
// it from future evaluations and never touches past decisions.
type Rule struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Type        RuleType  `json:"ruleType"`
	Predicate   Predicate `json:"predicate"`

	// Reason is attached to decisions produced by this rule.
	Reason string `json:"reason"`

	// Severity is the decision score assigned on a match, in (0,1].
	Severity float64 `json:"severity"`

	Active bool `json:"active"`

	// Priority orders evaluation, ascending. Ties are broken by creation
	// sequence, so insertion order is stable across restarts.
	Priority int   `json:"priority"`
	Seq      int64 `json:"-"`

	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// Condition renders the predicate as a human-readable condition string,
// e.g. `amount > 50000`.
func (r *Rule) Condition() string {
	switch v := r.Predicate.Value.(type) {
	case string:
		return fmt.Sprintf("%s %s %q", r.Predicate.Field, r.Predicate.Operator, v)
	default:
		return fmt.Sprintf("%s %s %v", r.Predicate.Field, r.Predicate.Operator, v)
	}
}
