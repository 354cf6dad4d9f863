// Package metrics holds the Prometheus collectors exported on /metrics.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	HTTPRequests       *prometheus.CounterVec
	HTTPDuration       *prometheus.HistogramVec
	Reconciliations    *prometheus.CounterVec
	UnknownLabels      *prometheus.CounterVec
	ExplainOutcomes    *prometheus.CounterVec
	ExplainRunDuration prometheus.Histogram
	AggregateRequests  prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "threadlens",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern, method and status code.",
		}, []string{"route", "method", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "threadlens",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		Reconciliations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "threadlens",
			Name:      "reconciliations_total",
			Help:      "Thread reconciliations by winning status source.",
		}, []string{"status_source"}),
		UnknownLabels: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "threadlens",
			Name:      "unknown_sentiment_labels_total",
			Help:      "Classifier labels that matched neither taxonomy, by source.",
		}, []string{"source"}),
		ExplainOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "threadlens",
			Name:      "explain_threads_total",
			Help:      "Threads processed by the LLM explain worker, by outcome.",
		}, []string{"outcome"}),
		ExplainRunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "threadlens",
			Name:      "explain_run_duration_seconds",
			Help:      "Wall time of one explain batch.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		AggregateRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "threadlens",
			Name:      "monthly_aggregations_total",
			Help:      "Monthly aggregate computations.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.HTTPRequests,
			m.HTTPDuration,
			m.Reconciliations,
			m.UnknownLabels,
			m.ExplainOutcomes,
			m.ExplainRunDuration,
			m.AggregateRequests,
		)
	}
	return m
}

func (m *Metrics) ObserveHTTP(route, method string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(route, method).Observe(elapsed.Seconds())
}

func (m *Metrics) IncReconciliation(statusSource string) {
	if m == nil {
		return
	}
	m.Reconciliations.WithLabelValues(statusSource).Inc()
}

func (m *Metrics) IncUnknownLabel(source string) {
	if m == nil {
		return
	}
	m.UnknownLabels.WithLabelValues(source).Inc()
}

// Explain outcomes.
const (
	OutcomeExplained = "explained"
	OutcomeFailed    = "failed"
)

func (m *Metrics) IncExplain(outcome string) {
	if m == nil {
		return
	}
	m.ExplainOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveExplainRun(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ExplainRunDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) IncAggregate() {
	if m == nil {
		return
	}
	m.AggregateRequests.Inc()
}
