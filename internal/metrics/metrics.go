// Package metrics exposes Prometheus metrics for the reconciler, the name
// cache and the search queue. A nil *Service is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Service holds the registered collectors.
type Service struct {
	gatherer prometheus.Gatherer

	reconcileRuns     *prometheus.CounterVec
	reconcileDuration prometheus.Histogram
	retriesEnqueued   prometheus.Counter
	nameLookups       *prometheus.CounterVec
	nameCacheSize     prometheus.Gauge
	queueDepth        prometheus.Gauge
}

// New creates the collectors and registers them with reg. A nil reg uses
// a fresh registry.
func New(reg *prometheus.Registry) *Service {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &Service{
		gatherer: reg,

		reconcileRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sceneward_failed_snatch_runs_total",
				Help: "Total number of failed snatch reconciliation passes by outcome",
			},
			[]string{"outcome"}, // completed, failed, skipped, disabled
		),

		reconcileDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sceneward_failed_snatch_duration_seconds",
				Help:    "Duration of failed snatch reconciliation passes",
				Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
			},
		),

		retriesEnqueued: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "sceneward_retries_enqueued_total",
				Help: "Total number of retry work items enqueued",
			},
		),

		nameLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sceneward_name_cache_lookups_total",
				Help: "Total number of name cache lookups by result",
			},
			[]string{"result"}, // hit, miss
		),

		nameCacheSize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "sceneward_name_cache_entries",
				Help: "Number of entries in the name cache",
			},
		),

		queueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "sceneward_search_queue_depth",
				Help: "Number of work items waiting in the search queue",
			},
		),
	}

	reg.MustRegister(
		m.reconcileRuns,
		m.reconcileDuration,
		m.retriesEnqueued,
		m.nameLookups,
		m.nameCacheSize,
		m.queueDepth,
	)

	return m
}

// Handler returns the HTTP handler for the /metrics endpoint.
func (m *Service) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// ReconcileRun records one reconciliation pass. Skipped and disabled
// passes do not observe a duration.
func (m *Service) ReconcileRun(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.reconcileRuns.WithLabelValues(outcome).Inc()
	if outcome == "completed" || outcome == "failed" {
		m.reconcileDuration.Observe(d.Seconds())
	}
}

func (m *Service) RetryEnqueued() {
	if m == nil {
		return
	}
	m.retriesEnqueued.Inc()
}

func (m *Service) NameLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.nameLookups.WithLabelValues(result).Inc()
}

func (m *Service) SetNameCacheSize(n int) {
	if m == nil {
		return
	}
	m.nameCacheSize.Set(float64(n))
}

func (m *Service) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}
