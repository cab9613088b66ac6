package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MatchAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "punchclock",
		Name:      "match_attempts_total",
		Help:      "Total number of identity match attempts by outcome",
	}, []string{"outcome"})

	LivenessResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "punchclock",
		Name:      "liveness_results_total",
		Help:      "Total number of finished liveness checks by status",
	}, []string{"status"})

	Punches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "punchclock",
		Name:      "punches_total",
		Help:      "Total number of punch requests by kind and reason",
	}, []string{"kind", "reason"})

	RegisteredIdentities = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "punchclock",
		Name:      "registered_identities",
		Help:      "Number of registered identities",
	})

	ExtractDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "punchclock",
		Name:      "extract_duration_seconds",
		Help:      "Duration of face vector extraction",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
	}, []string{"extractor"})

	StoreDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "punchclock",
		Name:      "store_duration_seconds",
		Help:      "Duration of persistence operations",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
	}, []string{"backend", "op"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "punchclock",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "punchclock",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)
