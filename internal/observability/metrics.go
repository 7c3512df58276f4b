package observability

import "github.com/prometheus/client_golang/prometheus"

// askLatencyBuckets extends the default buckets past 10s. Ask requests
// ride a provider call whose timeout is 15s, so the default tail would
// lump every slow translation into +Inf.
var askLatencyBuckets = append(prometheus.DefBuckets, 20)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tabletalk_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tabletalk_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: askLatencyBuckets,
		},
		[]string{"method", "path", "status"},
	)

	httpRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tabletalk_http_requests_in_flight",
			Help: "HTTP requests currently being served.",
		},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal, httpRequestDurationSeconds, httpRequestsInFlight)
}
