// Package metrics provides Prometheus instrumentation for the authorization
// service. Decision counters and latency are the monitoring side channel:
// they observe decisions but never influence them.
package metrics

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "authd",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "authd",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// DecisionsTotal counts authorization decisions by outcome and decline reason.
	// Approved decisions carry reason "none".
	DecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "authd",
			Name:      "decisions_total",
			Help:      "Total authorization decisions by outcome and reason code.",
		},
		[]string{"decision", "reason"},
	)

	// DecisionDuration observes end-to-end decision latency, including the
	// wait for the per-account section.
	DecisionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "authd",
			Name:      "decision_duration_seconds",
			Help:      "Authorization decision duration in seconds.",
			Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
		},
	)

	// LockTimeoutsTotal counts per-account lock acquisitions abandoned at the
	// wait bound (each one is a fail-closed "system busy" decline).
	LockTimeoutsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "authd",
			Name:      "lock_timeouts_total",
			Help:      "Total per-account lock acquisition timeouts.",
		},
	)

	// RefdataReloadsTotal counts reference data reloads by result.
	RefdataReloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "authd",
			Name:      "refdata_reloads_total",
			Help:      "Total blacklist/policy reference data reloads by result.",
		},
		[]string{"result"},
	)

	// ActiveFeedClients tracks connected decision-feed WebSocket clients.
	ActiveFeedClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "authd",
			Name:      "active_feed_clients",
			Help:      "Number of currently connected decision feed clients.",
		},
	)

	// BatchReplaysTotal counts batch replay runs by result.
	BatchReplaysTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "authd",
			Name:      "batch_replays_total",
			Help:      "Total batch replay runs by result.",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		DecisionsTotal,
		DecisionDuration,
		LockTimeoutsTotal,
		RefdataReloadsTotal,
		ActiveFeedClients,
		BatchReplaysTotal,
	)
}

// ObserveDecision records one decision outcome and its latency.
func ObserveDecision(decision, reason string, elapsed time.Duration) {
	DecisionsTotal.WithLabelValues(decision, reason).Inc()
	DecisionDuration.Observe(elapsed.Seconds())
}

// Middleware returns a gin middleware that records request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(), // Uses route pattern, not actual path (avoids cardinality explosion)
		))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			statusBucket(c.Writer.Status()),
		).Inc()
	}
}

// Handler returns the Prometheus metrics HTTP handler for the /metrics endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// statusBucket groups HTTP status codes into buckets (2xx, 3xx, 4xx, 5xx).
func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
