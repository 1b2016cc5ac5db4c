// Package metrics exposes Prometheus collectors for proxy traffic.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healthproxy_requests_total",
			Help: "Proxied requests by feature and client-facing status code",
		},
		[]string{"feature", "status"},
	)

	upstreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "healthproxy_upstream_request_duration_seconds",
			Help:    "Time until the upstream provider answered with status and headers",
			Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 40, 80},
		},
		[]string{"provider", "feature"},
	)

	upstreamErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healthproxy_upstream_errors_total",
			Help: "Non-2xx upstream answers and transport failures by provider",
		},
		[]string{"provider", "status"},
	)

	streamedBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healthproxy_streamed_bytes_total",
			Help: "Bytes relayed to clients from upstream event streams",
		},
		[]string{"feature"},
	)
)

// ObserveRequest counts one handled request.
func ObserveRequest(feature string, status int) {
	requestsTotal.WithLabelValues(feature, strconv.Itoa(status)).Inc()
}

// ObserveUpstream records how long an upstream call took to produce headers.
func ObserveUpstream(provider, feature string, elapsed time.Duration) {
	upstreamDuration.WithLabelValues(provider, feature).Observe(elapsed.Seconds())
}

// ObserveUpstreamError counts an upstream failure. status is 0 for transport errors.
func ObserveUpstreamError(provider string, status int) {
	label := "transport"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	upstreamErrors.WithLabelValues(provider, label).Inc()
}

// AddStreamedBytes adds n relayed bytes for feature.
func AddStreamedBytes(feature string, n int) {
	streamedBytes.WithLabelValues(feature).Add(float64(n))
}
