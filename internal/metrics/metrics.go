package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the reporter.
type Metrics struct {
	// Ingestion metrics
	EventsIngested  *prometheus.CounterVec
	IngestDuration  *prometheus.HistogramVec
	EventsDropped   *prometheus.CounterVec
	RevenueRecorded *prometheus.CounterVec

	// View refresh metrics
	RefreshDuration *prometheus.HistogramVec
	RefreshFailures *prometheus.CounterVec
	RefreshTotal    *prometheus.CounterVec

	// Query metrics
	QueryDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics with the given
// registerer. Pass prometheus.DefaultRegisterer in production wiring and a
// fresh registry in tests.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		EventsIngested: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_ingested_total",
				Help:      "Events processed by the ingestion consumer",
			},
			[]string{"source", "result"},
		),
		IngestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "ingest_duration_seconds",
				Help:      "Per-event ingestion latency in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"source"},
		),
		EventsDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_dropped_total",
				Help:      "Unprocessable messages acknowledged and dropped",
			},
			[]string{"reason"},
		),
		RevenueRecorded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "revenue_records_total",
				Help:      "Revenue records created by source",
			},
			[]string{"source"},
		),
		RefreshDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "view_refresh_duration_seconds",
				Help:      "Aggregate view refresh duration in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
			},
			[]string{"view"},
		),
		RefreshFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "view_refresh_failures_total",
				Help:      "Failed aggregate view refreshes",
			},
			[]string{"view"},
		),
		RefreshTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "view_refresh_total",
				Help:      "Completed refresh cycles by trigger",
			},
			[]string{"trigger"},
		),
		QueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "report_query_duration_seconds",
				Help:      "Report query latency in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"report", "status"},
		),
	}
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordIngest records one processed message and its outcome.
func (m *Metrics) RecordIngest(source, result string, duration time.Duration) {
	m.EventsIngested.WithLabelValues(source, result).Inc()
	m.IngestDuration.WithLabelValues(source).Observe(duration.Seconds())
}

// RecordDrop records an unprocessable message that was acknowledged and dropped.
func (m *Metrics) RecordDrop(reason string) {
	m.EventsDropped.WithLabelValues(reason).Inc()
}

// RecordRevenue records a created revenue record.
func (m *Metrics) RecordRevenue(source string) {
	m.RevenueRecorded.WithLabelValues(source).Inc()
}

// RecordRefresh records one view refresh attempt.
func (m *Metrics) RecordRefresh(view string, duration time.Duration, err error) {
	m.RefreshDuration.WithLabelValues(view).Observe(duration.Seconds())
	if err != nil {
		m.RefreshFailures.WithLabelValues(view).Inc()
	}
}

// RecordRefreshCycle records a completed refresh cycle.
func (m *Metrics) RecordRefreshCycle(trigger string) {
	m.RefreshTotal.WithLabelValues(trigger).Inc()
}

// RecordQuery records a report query and its outcome.
func (m *Metrics) RecordQuery(report, status string, duration time.Duration) {
	m.QueryDuration.WithLabelValues(report, status).Observe(duration.Seconds())
}
