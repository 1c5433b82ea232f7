package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Sync engine collectors. Labels are restricted to small enumerations so
// farmer, org and field ids never reach the metric space.
var (
	FieldSyncs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldsync_field_syncs_total",
			Help: "Field synchronizations by mode and result.",
		},
		[]string{"mode", "result"},
	)

	Operations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldsync_operations_total",
			Help: "Field operations persisted, by kind (raw, normalized, failed).",
		},
		[]string{"kind"},
	)

	RemoteRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldsync_remote_requests_total",
			Help: "Requests sent to the remote platform API by endpoint and status.",
		},
		[]string{"endpoint", "status"},
	)

	RemoteLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fieldsync_remote_request_duration_seconds",
			Help:    "Latency of remote platform API requests in seconds.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"endpoint"},
	)

	TokenRefreshes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldsync_token_refresh_total",
			Help: "OAuth token refresh attempts by result.",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(FieldSyncs, Operations, RemoteRequests, RemoteLatency, TokenRefreshes)
}

// ObserveRemote records one remote request. status 0 means the request never
// produced an HTTP response.
func ObserveRemote(endpoint string, status int, took time.Duration) {
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	RemoteRequests.WithLabelValues(endpoint, label).Inc()
	RemoteLatency.WithLabelValues(endpoint).Observe(took.Seconds())
}
