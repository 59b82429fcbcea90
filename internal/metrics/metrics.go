package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal tracks outbound API calls (by route name, method, and status).
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authr_api_requests_total",
			Help: "Total number of outbound API requests made (by route, method, and status).",
		},
		[]string{"route", "method", "status"},
	)

	// RequestDuration measures the duration of outbound API calls.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "authr_api_request_duration_seconds",
			Help:    "Duration of outbound API requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms → ~16s
		},
		[]string{"route", "method"},
	)

	// TransportErrors counts requests that never produced an HTTP response.
	TransportErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authr_api_transport_errors_total",
			Help: "Number of outbound requests that failed before a response was received.",
		},
		[]string{"route", "method"},
	)

	// AuthFailures counts rejected auth-flow calls (login, register, refresh, logout).
	AuthFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authr_auth_failures_total",
			Help: "Number of auth-flow calls rejected by the server (by operation and status).",
		},
		[]string{"op", "status"},
	)
)

// IncRequest increments the request counter.
func IncRequest(route, method string, status int) {
	RequestsTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
}

// IncTransportError increments the transport error counter.
func IncTransportError(route, method string) {
	TransportErrors.WithLabelValues(route, method).Inc()
}

// IncAuthFailure increments the auth failure counter.
func IncAuthFailure(op string, status int) {
	AuthFailures.WithLabelValues(op, strconv.Itoa(status)).Inc()
}

// ObserveDuration records elapsed time since start into a HistogramVec or SummaryVec.
func ObserveDuration(v any, start time.Time, labels ...string) {
	duration := time.Since(start).Seconds()
	switch metric := v.(type) {
	case *prometheus.HistogramVec:
		metric.WithLabelValues(labels...).Observe(duration)
	case *prometheus.SummaryVec:
		metric.WithLabelValues(labels...).Observe(duration)
	}
}
