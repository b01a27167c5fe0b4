// Package metrics exposes Prometheus instrumentation for the engine.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/openrisk/kestrel/internal/domain"
)

// Collector records engine-level metrics on its own registry.
type Collector struct {
	registry *prometheus.Registry

	decisions         *prometheus.CounterVec
	evalDuration      prometheus.Histogram
	scoreDistribution prometheus.Histogram
	providerErrors    prometheus.Counter
	persistenceErrors prometheus.Counter
	ruleFailures      *prometheus.CounterVec
	batchSize         prometheus.Histogram
}

// NewCollector creates a collector with all engine metrics registered.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()

	return &Collector{
		registry: registry,
		decisions: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "kestrel_decisions_total",
			Help: "Decisions produced, by source and verdict",
		}, []string{"source", "verdict"}),
		evalDuration: promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
			Name:    "kestrel_evaluation_duration_seconds",
			Help:    "Time taken to evaluate a transaction",
			Buckets: prometheus.DefBuckets,
		}),
		scoreDistribution: promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
			Name:    "kestrel_fraud_score_distribution",
			Help:    "Distribution of decision fraud scores",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		}),
		providerErrors: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "kestrel_provider_errors_total",
			Help: "Score provider failures (unavailable, timeout, bad response)",
		}),
		persistenceErrors: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "kestrel_persistence_errors_total",
			Help: "Failed decision or report writes",
		}),
		ruleFailures: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "kestrel_rule_failures_total",
			Help: "Rules skipped because their evaluation errored",
		}, []string{"rule_id"}),
		batchSize: promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
			Name:    "kestrel_batch_size",
			Help:    "Number of transactions per batch request",
			Buckets: []float64{1, 5, 10, 50, 100, 500, 1000},
		}),
	}
}

// RecordDecision counts one decision and observes its score and latency.
func (c *Collector) RecordDecision(source domain.Source, fraud bool, scoreVal float64, d time.Duration) {
	verdict := "pass"
	if fraud {
		verdict = "fraud"
	}
	c.decisions.WithLabelValues(string(source), verdict).Inc()
	c.scoreDistribution.Observe(scoreVal)
	c.evalDuration.Observe(d.Seconds())
}

// RecordProviderError counts a score provider failure.
func (c *Collector) RecordProviderError() { c.providerErrors.Inc() }

// RecordPersistenceError counts a failed decision or report write.
func (c *Collector) RecordPersistenceError() { c.persistenceErrors.Inc() }

// RecordRuleFailure counts a rule skipped due to an evaluation error.
func (c *Collector) RecordRuleFailure(ruleID string) {
	c.ruleFailures.WithLabelValues(ruleID).Inc()
}

// RecordBatch observes the size of a batch request.
func (c *Collector) RecordBatch(n int) { c.batchSize.Observe(float64(n)) }

// Handler returns the HTTP handler serving the /metrics endpoint.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
