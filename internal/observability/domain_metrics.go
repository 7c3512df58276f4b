package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	translationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tabletalk_translations_total",
			Help: "Total number of translation attempts by strategy and outcome.",
		},
		[]string{"strategy", "outcome"},
	)
	translationDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tabletalk_translation_duration_seconds",
			Help:    "Time spent inside a single translation strategy.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"strategy"},
	)
	translationCacheEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tabletalk_translation_cache_events_total",
			Help: "Translation cache activity by event (hit, miss, store, invalidate).",
		},
		[]string{"event"},
	)
	providerCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tabletalk_provider_calls_total",
			Help: "Total number of model provider calls by provider and outcome.",
		},
		[]string{"provider", "outcome"},
	)
	providerCallLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tabletalk_provider_call_latency_ms",
			Help:    "Model provider round-trip latency in milliseconds.",
			Buckets: []float64{50, 100, 250, 500, 1000, 2000, 5000, 10000, 20000},
		},
		[]string{"provider"},
	)
	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tabletalk_active_sessions",
			Help: "Current number of live analysis sessions.",
		},
	)
	datasetLoadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tabletalk_dataset_loads_total",
			Help: "Total number of dataset loads by source (upload, object, postgres, demo).",
		},
		[]string{"source"},
	)
	datasetLoadRows = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tabletalk_dataset_load_rows",
			Help:    "Row counts of loaded datasets.",
			Buckets: []float64{10, 100, 1000, 10000, 50000, 100000, 500000},
		},
	)
)

func init() {
	prometheus.MustRegister(
		translationsTotal,
		translationDurationSeconds,
		translationCacheEventsTotal,
		providerCallsTotal,
		providerCallLatencyMs,
		activeSessions,
		datasetLoadsTotal,
		datasetLoadRows,
	)
}

func ObserveTranslation(strategy, outcome string, elapsed time.Duration) {
	translationsTotal.WithLabelValues(strategy, outcome).Inc()
	translationDurationSeconds.WithLabelValues(strategy).Observe(elapsed.Seconds())
}

func ObserveTranslationCache(event string) {
	translationCacheEventsTotal.WithLabelValues(event).Inc()
}

func ObserveProviderCall(provider, outcome string, elapsed time.Duration) {
	providerCallsTotal.WithLabelValues(provider, outcome).Inc()
	providerCallLatencyMs.WithLabelValues(provider).Observe(float64(elapsed.Milliseconds()))
}

func SetActiveSessions(n int) {
	if n < 0 {
		n = 0
	}
	activeSessions.Set(float64(n))
}

func ObserveDatasetLoad(source string, rows int) {
	datasetLoadsTotal.WithLabelValues(source).Inc()
	if rows >= 0 {
		datasetLoadRows.Observe(float64(rows))
	}
}
