// Package metrics is the prometheus wiring shared by execd and
// containerd.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP is the small collector set that execd and containerd expose at
// GET /metrics. It satisfies both internal/controller's
// and internal/broker's Metrics interfaces structurally.
type HTTP struct {
	registry    *prometheus.Registry
	requests    *prometheus.CounterVec
	failures    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	rateLimited prometheus.Counter
}

// New registers a fresh collector set under namespace (e.g. "execd",
// "containerd") and returns it along with its own registry.
func New(namespace string) *HTTP {
	reg := prometheus.NewRegistry()
	h := &HTTP{
		registry: reg,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total requests by route and outcome.",
		}, []string{"route", "outcome"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lifecycle_failures_total",
			Help:      "Container lifecycle failures by stage.",
		}, []string{"stage"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "execution_duration_seconds",
			Help:      "Execution duration by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_rejections_total",
			Help:      "Requests rejected by the per-IP rate limiter.",
		}),
	}
	reg.MustRegister(h.requests, h.failures, h.duration, h.rateLimited)
	return h
}

// ObserveRequest increments the requests_total counter.
func (h *HTTP) ObserveRequest(route, outcome string) {
	h.requests.WithLabelValues(route, outcome).Inc()
}

// ObserveLifecycleFailure increments lifecycle_failures_total for stage
// (pull, create, start, attach).
func (h *HTTP) ObserveLifecycleFailure(stage string) {
	h.failures.WithLabelValues(stage).Inc()
}

// ObserveExecutionDuration records how long an execute request took.
func (h *HTTP) ObserveExecutionDuration(route string, seconds float64) {
	h.duration.WithLabelValues(route).Observe(seconds)
}

// ObserveRateLimited increments the rate-limit rejection counter.
func (h *HTTP) ObserveRateLimited() {
	h.rateLimited.Inc()
}

// Handler exposes the collector set for GET /metrics.
func (h *HTTP) Handler() http.Handler {
	return promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{})
}
