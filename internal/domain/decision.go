package domain

import "time"

// Source attributes a decision to the signal that produced it.
type Source string

const (
	SourceRule  Source = "rule"
	SourceModel Source = "model"
)

// Decision is the engine's verdict for one transaction. Decisions are
// append-only facts: there is no update path, and a later review is a new
// event referencing the decision, never a mutation of it.
type Decision struct {
	ID            string  `json:"id"`
	TransactionID string  `json:"transactionId"`
	IsFraud       bool    `json:"isFraud"`
	Source        Source  `json:"source"`
	Reason        string  `json:"reason"` // empty when not fraud
	Score         float64 `json:"score"`  // in [0,1]

	// RuleID is set when Source is SourceRule.
	RuleID string `json:"ruleId,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}
