package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the Prometheus instruments for the session and CSRF
// surfaces.
type Metrics struct {
	RequestCounter    *prometheus.CounterVec
	RequestDuration   *prometheus.HistogramVec
	SessionsCreated   prometheus.Counter
	SessionsDestroyed *prometheus.CounterVec
	CSRFFailures      *prometheus.CounterVec
	RateLimited       *prometheus.CounterVec
}

// NewMetrics registers and returns the service metrics on the default
// registry.
func NewMetrics() *Metrics {
	return &Metrics{
		RequestCounter: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "teamgate",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "teamgate",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
		SessionsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "teamgate",
			Name:      "sessions_created_total",
			Help:      "Total number of sessions issued",
		}),
		SessionsDestroyed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "teamgate",
			Name:      "sessions_destroyed_total",
			Help:      "Total number of sessions destroyed by reason",
		}, []string{"reason"}),
		CSRFFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "teamgate",
			Name:      "csrf_failures_total",
			Help:      "Total number of rejected CSRF verifications",
		}, []string{"reason"}),
		RateLimited: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "teamgate",
			Name:      "rate_limited_total",
			Help:      "Total number of rate limited requests",
		}, []string{"group"}),
	}
}
