package score

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/openrisk/kestrel/internal/domain"
)

// HTTPProvider calls a model-inference service over HTTP. Every call
// carries a timeout; a timeout or non-2xx response surfaces as
// domain.ErrProvider so callers can apply their own fallback policy.
type HTTPProvider struct {
	url     string
	timeout time.Duration
	client  *http.Client
}

// NewHTTPProvider creates a provider for the given inference endpoint.
func NewHTTPProvider(cfg domain.ProviderConfig) *HTTPProvider {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &HTTPProvider{
		url:     cfg.URL,
		timeout: timeout,
		client:  &http.Client{Timeout: timeout},
	}
}

// scoreRequest is the wire format sent to the inference service.
type scoreRequest struct {
	TransactionID string  `json:"transaction_id"`
	Amount        float64 `json:"transaction_amount"`
	Channel       string  `json:"transaction_channel"`
	PaymentMode   string  `json:"transaction_payment_mode"`
	PayerID       string  `json:"payer_id,omitempty"`
	PayeeID       string  `json:"payee_id,omitempty"`
	Device        string  `json:"payer_device,omitempty"`
	Browser       string  `json:"payer_browser,omitempty"`
}

// scoreResponse is the wire format returned by the inference service.
type scoreResponse struct {
	FraudScore float64 `json:"fraud_score"`
}

// Score implements Provider.
func (p *HTTPProvider) Score(ctx context.Context, tx *domain.Transaction) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	body, err := json.Marshal(scoreRequest{
		TransactionID: tx.ID,
		Amount:        tx.Amount,
		Channel:       string(tx.Channel),
		PaymentMode:   string(tx.PaymentMode),
		PayerID:       tx.PayerID,
		PayeeID:       tx.PayeeID,
		Device:        tx.Device,
		Browser:       tx.Browser,
	})
	if err != nil {
		return 0, fmt.Errorf("%w: encode request: %v", domain.ErrProvider, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("%w: build request: %v", domain.ErrProvider, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrProvider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, fmt.Errorf("%w: inference service returned %d", domain.ErrProvider, resp.StatusCode)
	}

	var sr scoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return 0, fmt.Errorf("%w: decode response: %v", domain.ErrProvider, err)
	}

	if sr.FraudScore < 0 || sr.FraudScore > 1 {
		return 0, fmt.Errorf("%w: score %.4f out of range [0,1]", domain.ErrProvider, sr.FraudScore)
	}

	return sr.FraudScore, nil
}
