package score

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/openrisk/kestrel/internal/domain"
)

func scoreTx() *domain.Transaction {
	return &domain.Transaction{
		ID:          "tx-1",
		Amount:      1200,
		Timestamp:   time.Now(),
		Channel:     domain.ChannelWeb,
		PaymentMode: domain.PaymentCard,
		PayerID:     "payer-1",
	}
}

func TestHTTPProviderScore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		if req["transaction_id"] != "tx-1" {
			t.Errorf("expected transaction_id tx-1, got %v", req["transaction_id"])
		}
		json.NewEncoder(w).Encode(map[string]float64{"fraud_score": 0.42})
	}))
	defer srv.Close()

	p := NewHTTPProvider(domain.ProviderConfig{URL: srv.URL, Timeout: time.Second})
	got, err := p.Score(context.Background(), scoreTx())
	if err != nil {
		t.Fatalf("score failed: %v", err)
	}
	if got != 0.42 {
		t.Errorf("expected 0.42, got %v", got)
	}
}

func TestHTTPProviderNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := NewHTTPProvider(domain.ProviderConfig{URL: srv.URL, Timeout: time.Second})
	_, err := p.Score(context.Background(), scoreTx())
	if !errors.Is(err, domain.ErrProvider) {
		t.Errorf("expected ErrProvider, got %v", err)
	}
}

func TestHTTPProviderTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	p := NewHTTPProvider(domain.ProviderConfig{URL: srv.URL, Timeout: 20 * time.Millisecond})
	_, err := p.Score(context.Background(), scoreTx())
	if !errors.Is(err, domain.ErrProvider) {
		t.Errorf("expected ErrProvider on timeout, got %v", err)
	}
}

func TestHTTPProviderOutOfRangeScore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]float64{"fraud_score": 1.7})
	}))
	defer srv.Close()

	p := NewHTTPProvider(domain.ProviderConfig{URL: srv.URL, Timeout: time.Second})
	_, err := p.Score(context.Background(), scoreTx())
	if !errors.Is(err, domain.ErrProvider) {
		t.Errorf("expected ErrProvider for out-of-range score, got %v", err)
	}
}

func TestHeuristicDeterministic(t *testing.T) {
	h := Heuristic{}
	tx := scoreTx()

	first, err := h.Score(context.Background(), tx)
	if err != nil {
		t.Fatalf("score failed: %v", err)
	}
	second, _ := h.Score(context.Background(), tx)
	if first != second {
		t.Errorf("expected deterministic score, got %v then %v", first, second)
	}
	if first < 0 || first > 1 {
		t.Errorf("score %v out of range [0,1]", first)
	}
}

func TestHeuristicRanksHighAmounts(t *testing.T) {
	h := Heuristic{}

	small := scoreTx()
	small.Amount = 10

	large := scoreTx()
	large.ID = "tx-2"
	large.Amount = 50000

	lo, _ := h.Score(context.Background(), small)
	hi, _ := h.Score(context.Background(), large)
	if hi <= lo {
		t.Errorf("expected larger amount to score higher, got %v vs %v", hi, lo)
	}
}
