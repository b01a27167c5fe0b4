package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/openrisk/kestrel/internal/batch"
	"github.com/openrisk/kestrel/internal/decision"
	"github.com/openrisk/kestrel/internal/domain"
	"github.com/openrisk/kestrel/internal/metrics"
	"github.com/openrisk/kestrel/internal/rules"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	composer    *decision.Composer
	coordinator *batch.Coordinator
	store       *rules.Store
	repo        domain.Repository
	cache       domain.Cache
	bus         domain.EventBus
	metrics     *metrics.Collector
	version     string
	validate    *validator.Validate
}

// NewHandler creates a new API handler.
func NewHandler(composer *decision.Composer, coordinator *batch.Coordinator, store *rules.Store, repo domain.Repository, cache domain.Cache, bus domain.EventBus, collector *metrics.Collector, version string) *Handler {
	return &Handler{
		composer:    composer,
		coordinator: coordinator,
		store:       store,
		repo:        repo,
		cache:       cache,
		bus:         bus,
		metrics:     collector,
		version:     version,
		validate:    validator.New(),
	}
}

// DetectRequest is the request body for POST /api/fraud/detect and each
// element of the batch endpoint.
type DetectRequest struct {
	TransactionID string   `json:"transaction_id" validate:"required"`
	Amount        *float64 `json:"transaction_amount" validate:"required"`
	Date          string   `json:"transaction_date,omitempty"`
	Channel       string   `json:"transaction_channel,omitempty"`
	PaymentMode   string   `json:"transaction_payment_mode,omitempty"`
	PayerID       string   `json:"payer_id,omitempty"`
	PayeeID       string   `json:"payee_id,omitempty"`
	Device        string   `json:"payer_device,omitempty"`
	Browser       string   `json:"payer_browser,omitempty"`
}

// toTransaction validates and converts the wire request into a domain
// transaction.
func (req *DetectRequest) toTransaction() (*domain.Transaction, error) {
	channel, err := domain.ParseChannel(req.Channel)
	if err != nil {
		return nil, err
	}

	mode, err := domain.ParsePaymentMode(req.PaymentMode)
	if err != nil {
		return nil, err
	}

	ts, err := parseTimestamp(req.Date)
	if err != nil {
		return nil, err
	}

	var amount float64
	if req.Amount != nil {
		amount = *req.Amount
	}

	tx := &domain.Transaction{
		ID:          req.TransactionID,
		Amount:      amount,
		Timestamp:   ts,
		Channel:     channel,
		PaymentMode: mode,
		PayerID:     req.PayerID,
		PayeeID:     req.PayeeID,
		Device:      req.Device,
		Browser:     req.Browser,
		CreatedAt:   time.Now().UTC(),
	}

	if err := tx.Validate(); err != nil {
		return nil, err
	}
	return tx, nil
}

var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func parseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Now().UTC(), nil
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unparseable transaction_date %q", domain.ErrValidation, s)
}

// DetectResponse is the verdict for one transaction.
type DetectResponse struct {
	TransactionID string  `json:"transaction_id"`
	IsFraud       bool    `json:"is_fraud"`
	FraudSource   string  `json:"fraud_source"`
	FraudReason   string  `json:"fraud_reason"`
	FraudScore    float64 `json:"fraud_score"`

	// Durable is false when the verdict was computed but its write to
	// storage failed.
	Durable bool `json:"durable"`
}

func detectResponse(d *domain.Decision, durable bool) DetectResponse {
	return DetectResponse{
		TransactionID: d.TransactionID,
		IsFraud:       d.IsFraud,
		FraudSource:   string(d.Source),
		FraudReason:   d.Reason,
		FraudScore:    d.Score,
		Durable:       durable,
	}
}

// Detect handles POST /api/fraud/detect.
func (h *Handler) Detect(w http.ResponseWriter, r *http.Request) {
	var req DetectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if err := h.validate.Struct(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "transaction_id and transaction_amount are required",
		})
		return
	}

	tx, err := req.toTransaction()
	if err != nil {
		writeError(w, err)
		return
	}

	d, err := h.composer.Decide(r.Context(), tx)
	if err != nil {
		// A persistence failure still yields a usable verdict; it is
		// returned with durability flagged off.
		if d != nil && errors.Is(err, domain.ErrPersistence) {
			writeJSON(w, http.StatusOK, detectResponse(d, false))
			return
		}
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, detectResponse(d, true))
}

// BatchEntry is one per-transaction outcome of the batch endpoint.
// Either the verdict fields or Error is populated.
type BatchEntry struct {
	TransactionID string  `json:"transaction_id"`
	IsFraud       bool    `json:"is_fraud"`
	FraudSource   string  `json:"fraud_source,omitempty"`
	FraudReason   string  `json:"fraud_reason,omitempty"`
	FraudScore    float64 `json:"fraud_score"`
	Durable       bool    `json:"durable"`
	Error         string  `json:"error,omitempty"`
}

// DetectBatch handles POST /api/fraud/detect/batch. The body is either a
// bare JSON array of transactions or `{"transactions": [...]}`. The
// response is the mapping from transaction id to outcome; duplicate ids
// collapse to the last completed evaluation.
func (h *Handler) DetectBatch(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "failed to read request body",
		})
		return
	}

	var reqs []DetectRequest
	if err := json.Unmarshal(body, &reqs); err != nil {
		var envelope struct {
			Transactions []DetectRequest `json:"transactions"`
		}
		if err := json.Unmarshal(body, &envelope); err != nil || envelope.Transactions == nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "request body must be a JSON array of transactions or {\"transactions\": [...]}",
			})
			return
		}
		reqs = envelope.Transactions
	}

	if h.metrics != nil {
		h.metrics.RecordBatch(len(reqs))
	}

	entries := make(map[string]BatchEntry, len(reqs))
	var txs []*domain.Transaction

	for i := range reqs {
		req := &reqs[i]
		if req.TransactionID == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": fmt.Sprintf("transaction at index %d is missing transaction_id", i),
			})
			return
		}

		if err := h.validate.Struct(req); err != nil {
			entries[req.TransactionID] = BatchEntry{
				TransactionID: req.TransactionID,
				Error:         "transaction_amount is required",
			}
			continue
		}

		tx, err := req.toTransaction()
		if err != nil {
			entries[req.TransactionID] = BatchEntry{
				TransactionID: req.TransactionID,
				Error:         err.Error(),
			}
			continue
		}
		txs = append(txs, tx)
	}

	for txID, res := range h.coordinator.Run(r.Context(), txs) {
		switch {
		case res.Decision != nil && (res.Err == nil || errors.Is(res.Err, domain.ErrPersistence)):
			resp := detectResponse(res.Decision, res.Err == nil)
			entries[txID] = BatchEntry{
				TransactionID: resp.TransactionID,
				IsFraud:       resp.IsFraud,
				FraudSource:   resp.FraudSource,
				FraudReason:   resp.FraudReason,
				FraudScore:    resp.FraudScore,
				Durable:       resp.Durable,
			}
		default:
			entries[txID] = BatchEntry{
				TransactionID: txID,
				Error:         res.Err.Error(),
			}
		}
	}

	writeJSON(w, http.StatusOK, entries)
}

// ReportRequest is the request body for POST /api/fraud/report.
type ReportRequest struct {
	TransactionID     string `json:"transaction_id" validate:"required"`
	ReportingEntityID string `json:"reporting_entity_id" validate:"required"`
	Details           string `json:"fraud_details,omitempty"`
}

// ReportResponse acknowledges a fraud report. FailureCode is 0 on
// success, 404 when the transaction is unknown, 500 on a write failure.
type ReportResponse struct {
	TransactionID         string `json:"transaction_id"`
	ReportingAcknowledged bool   `json:"reporting_acknowledged"`
	FailureCode           int    `json:"failure_code"`
}

// Report handles POST /api/fraud/report.
func (h *Handler) Report(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req ReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if err := h.validate.Struct(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "transaction_id and reporting_entity_id are required",
		})
		return
	}

	// Reports are only accepted for transactions the engine has seen.
	if _, err := h.repo.GetTransaction(ctx, req.TransactionID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, ReportResponse{
				TransactionID: req.TransactionID,
				FailureCode:   http.StatusNotFound,
			})
			return
		}
		writeJSON(w, http.StatusInternalServerError, ReportResponse{
			TransactionID: req.TransactionID,
			FailureCode:   http.StatusInternalServerError,
		})
		return
	}

	report := &domain.FraudReport{
		ID:                uuid.New().String(),
		TransactionID:     req.TransactionID,
		ReportingEntityID: req.ReportingEntityID,
		Details:           req.Details,
		ReportedAt:        time.Now().UTC(),
	}

	if err := h.repo.SaveFraudReport(ctx, report); err != nil {
		slog.Error("failed to save fraud report",
			"tx_id", req.TransactionID,
			"error", err,
		)
		writeJSON(w, http.StatusInternalServerError, ReportResponse{
			TransactionID: req.TransactionID,
			FailureCode:   http.StatusInternalServerError,
		})
		return
	}

	if h.bus != nil {
		if payload, err := json.Marshal(report); err == nil {
			_ = h.bus.Publish(ctx, domain.TopicReport, payload)
		}
	}

	writeJSON(w, http.StatusOK, ReportResponse{
		TransactionID:         req.TransactionID,
		ReportingAcknowledged: true,
		FailureCode:           0,
	})
}

// RuleRequest is the request body for creating or updating a rule.
type RuleRequest struct {
	ID          string           `json:"id,omitempty"`
	Name        string           `json:"name" validate:"required"`
	Description string           `json:"description,omitempty"`
	Type        string           `json:"ruleType" validate:"required"`
	Predicate   domain.Predicate `json:"predicate"`
	Reason      string           `json:"reason,omitempty"`
	Severity    float64          `json:"severity,omitempty"`
	Active      bool             `json:"active"`
	Priority    int              `json:"priority"`
}

func (req *RuleRequest) toRule() (*domain.Rule, error) {
	ruleType, err := domain.ParseRuleType(req.Type)
	if err != nil {
		return nil, err
	}

	return &domain.Rule{
		ID:          req.ID,
		Name:        req.Name,
		Description: req.Description,
		Type:        ruleType,
		Predicate:   req.Predicate,
		Reason:      req.Reason,
		Severity:    req.Severity,
		Active:      req.Active,
		Priority:    req.Priority,
	}, nil
}

// ListRules handles GET /api/rules with an optional ?type= filter.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	var typeFilter domain.RuleType
	if t := r.URL.Query().Get("type"); t != "" {
		parsed, err := domain.ParseRuleType(t)
		if err != nil {
			writeError(w, err)
			return
		}
		typeFilter = parsed
	}

	list := h.store.List(typeFilter)
	writeJSON(w, http.StatusOK, map[string]any{
		"rules": list,
		"count": len(list),
	})
}

// GetRule handles GET /api/rules/{id}.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	rule, err := h.store.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

// CreateRule handles POST /api/rules. The predicate is validated and
// compiled before the rule is accepted.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	var req RuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if err := h.validate.Struct(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "name and ruleType are required",
		})
		return
	}

	rule, err := req.toRule()
	if err != nil {
		writeError(w, err)
		return
	}

	created, err := h.store.Create(r.Context(), rule)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

// UpdateRule handles PUT /api/rules/{id}.
func (h *Handler) UpdateRule(w http.ResponseWriter, r *http.Request) {
	var req RuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if err := h.validate.Struct(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "name and ruleType are required",
		})
		return
	}

	rule, err := req.toRule()
	if err != nil {
		writeError(w, err)
		return
	}

	updated, err := h.store.Update(r.Context(), chi.URLParam(r, "id"), rule)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

// ToggleRuleRequest is the request body for PUT /api/rules/{id}/toggle.
type ToggleRuleRequest struct {
	Active *bool `json:"active"`
}

// ToggleRule handles PUT /api/rules/{id}/toggle. The switch takes effect
// atomically: evaluations started after it never see the old state.
func (h *Handler) ToggleRule(w http.ResponseWriter, r *http.Request) {
	var req ToggleRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Active == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "active (boolean) is required",
		})
		return
	}

	rule, err := h.store.Toggle(r.Context(), chi.URLParam(r, "id"), *req.Active)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, rule)
}

// DeleteRule handles DELETE /api/rules/{id}. Past decisions that
// reference the rule are unaffected.
func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetDecision handles GET /api/decisions/{id}.
func (h *Handler) GetDecision(w http.ResponseWriter, r *http.Request) {
	d, err := h.repo.GetDecision(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// GetTransaction handles GET /api/transactions/{id}.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	tx, err := h.repo.GetTransaction(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// writeError maps domain error classes to HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrProvider):
		status = http.StatusBadGateway
	}

	writeJSON(w, status, map[string]string{
		"error": err.Error(),
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
