// Package metrics exposes Prometheus instrumentation for enrichment batches
// and their sources. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "leadfactory"

// Metrics holds the collectors registered for one process.
type Metrics struct {
	BatchesStarted  prometheus.Counter
	BatchesFinished *prometheus.CounterVec
	BatchDuration   prometheus.Histogram
	BatchesActive   prometheus.Gauge
	Businesses      *prometheus.CounterVec
	SourceCalls     *prometheus.CounterVec
	SourceDuration  *prometheus.HistogramVec
	SourceCostUSD   *prometheus.CounterVec
	MatchScores     prometheus.Histogram
	gatherer        prometheus.Gatherer
}

// New registers the collectors on reg. Pass prometheus.NewRegistry() in tests.
func New(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		BatchesStarted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_started_total",
			Help:      "Enrichment batches accepted.",
		}),
		BatchesFinished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_finished_total",
			Help:      "Enrichment batches finished, by final status.",
		}, []string{"status"}),
		BatchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Wall time of enrichment batches.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 14),
		}),
		BatchesActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "batches_active",
			Help:      "Enrichment batches currently running.",
		}),
		Businesses: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "businesses_total",
			Help:      "Businesses processed, by outcome.",
		}, []string{"outcome"}),
		SourceCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_calls_total",
			Help:      "Source adapter calls, by source and result.",
		}, []string{"source", "result"}),
		SourceDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_call_duration_seconds",
			Help:      "Latency of source adapter calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source"}),
		SourceCostUSD: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_cost_usd_total",
			Help:      "Provider spend attributed to successful enrichments.",
		}, []string{"source"}),
		MatchScores: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "match_score",
			Help:      "Match scores of accepted enrichment results.",
			Buckets:   prometheus.LinearBuckets(0.5, 0.05, 10),
		}),
		gatherer: reg,
	}
}

// BatchStarted records an accepted batch.
func (m *Metrics) BatchStarted() {
	if m == nil {
		return
	}
	m.BatchesStarted.Inc()
	m.BatchesActive.Inc()
}

// BatchFinished records a batch reaching a terminal status.
func (m *Metrics) BatchFinished(status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.BatchesActive.Dec()
	m.BatchesFinished.WithLabelValues(status).Inc()
	m.BatchDuration.Observe(elapsed.Seconds())
}

// Business records one business outcome.
func (m *Metrics) Business(outcome string) {
	if m == nil {
		return
	}
	m.Businesses.WithLabelValues(outcome).Inc()
}

// SourceCall records one adapter call. result is "hit", "miss" or "error".
func (m *Metrics) SourceCall(source, result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.SourceCalls.WithLabelValues(source, result).Inc()
	m.SourceDuration.WithLabelValues(source).Observe(elapsed.Seconds())
}

// Accepted records the score and cost of a result kept for a business.
func (m *Metrics) Accepted(source string, score, costUSD float64) {
	if m == nil {
		return
	}
	m.MatchScores.Observe(score)
	if costUSD > 0 {
		m.SourceCostUSD.WithLabelValues(source).Add(costUSD)
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
