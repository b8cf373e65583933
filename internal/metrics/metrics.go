package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opm_gateway_requests_total",
			Help: "Total number of batch requests received",
		},
		[]string{"status"},
	)

	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opm_gateway_events_total",
			Help: "Total number of batch elements by outcome",
		},
		[]string{"outcome"},
	)

	EventBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "opm_gateway_event_bytes_total",
			Help: "Total bytes of batch body data received",
		},
	)

	AuthFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "opm_gateway_auth_failures_total",
			Help: "Total number of rejected server tokens",
		},
	)

	SinkDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "opm_gateway_sink_duration_seconds",
			Help:    "Duration of bulk sink writes in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	SinkErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "opm_gateway_sink_errors_total",
			Help: "Total number of failed bulk sink writes",
		},
	)

	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opm_gateway_rate_limit_hits_total",
			Help: "Total number of rate limit hits",
		},
		[]string{"server_id"},
	)

	DLQWrites = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "opm_gateway_dlq_writes_total",
			Help: "Total number of elements written to the dead letter queue",
		},
	)
)
