// Package domain defines the core types and interfaces for Kestrel.
package domain

import (
	"fmt"
	"time"
)

// Channel identifies how a transaction was initiated.
type Channel string

const (
	ChannelWeb    Channel = "web"
	ChannelMobile Channel = "mobile"
	ChannelAPI    Channel = "api"
)

// ParseChannel validates a channel string. An empty value maps to the
// documented default, ChannelWeb.
func ParseChannel(s string) (Channel, error) {
	switch Channel(s) {
	case ChannelWeb, ChannelMobile, ChannelAPI:
		return Channel(s), nil
	case "":
		return ChannelWeb, nil
	}
	return "", fmt.Errorf("%w: unknown channel %q", ErrValidation, s)
}

// PaymentMode identifies the payment rail used by a transaction.
type PaymentMode string

const (
	PaymentCard PaymentMode = "card"
	PaymentUPI  PaymentMode = "upi"
	PaymentNEFT PaymentMode = "neft"
	PaymentRTGS PaymentMode = "rtgs"
)

// ParsePaymentMode validates a payment mode string. An empty value maps to
// the documented default, PaymentCard.
func ParsePaymentMode(s string) (PaymentMode, error) {
	switch PaymentMode(s) {
	case PaymentCard, PaymentUPI, PaymentNEFT, PaymentRTGS:
		return PaymentMode(s), nil
	case "":
		return PaymentCard, nil
	}
	return "", fmt.Errorf("%w: unknown payment mode %q", ErrValidation, s)
}

// Transaction is an immutable input record submitted for evaluation.
// It is created by the caller and never mutated; each submitted instance
// is evaluated exactly once.
type Transaction struct {
	ID          string      `json:"id"`
	Amount      float64     `json:"amount"`
	Timestamp   time.Time   `json:"timestamp"`
	Channel     Channel     `json:"channel"`
	PaymentMode PaymentMode `json:"paymentMode"`

	// Party and device metadata, free-form and optional.
	PayerID string `json:"payerId,omitempty"`
	PayeeID string `json:"payeeId,omitempty"`
	Device  string `json:"device,omitempty"`
	Browser string `json:"browser,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// Validate checks the required invariants for a submitted transaction.
func (t *Transaction) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("%w: transaction id is required", ErrValidation)
	}
	if t.Amount < 0 {
		return fmt.Errorf("%w: amount must be non-negative", ErrValidation)
	}
	if t.Timestamp.IsZero() {
		return fmt.Errorf("%w: timestamp is required", ErrValidation)
	}
	return nil
}
