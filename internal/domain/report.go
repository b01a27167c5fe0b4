package domain

import (
	"fmt"
	"time"
)

// FraudReport is a human-submitted claim that a transaction was
// fraudulent. Reports are append-only and independent of decisions; they
// feed later recall/precision comparisons against predicted verdicts.
type FraudReport struct {
	ID                string    `json:"id"`
	TransactionID     string    `json:"transactionId"`
	ReportingEntityID string    `json:"reportingEntityId"`
	Details           string    `json:"details,omitempty"`
	ReportedAt        time.Time `json:"reportedAt"`
}

// Validate checks the required report fields.
func (r *FraudReport) Validate() error {
	if r.TransactionID == "" {
		return fmt.Errorf("%w: transaction id is required", ErrValidation)
	}
	if r.ReportingEntityID == "" {
		return fmt.Errorf("%w: reporting entity id is required", ErrValidation)
	}
	return nil
}
