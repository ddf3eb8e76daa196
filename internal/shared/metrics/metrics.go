package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "khub"

// Registry owns every collector the service exports. It is not the
// prometheus default registry; each App builds its own.
type Registry struct {
	reg *prometheus.Registry

	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	httpInFlight    prometheus.Gauge
	ingestSubmitted *prometheus.CounterVec
	callbacks       *prometheus.CounterVec
	aiRequests      *prometheus.CounterVec
}

func New() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests processed.",
		}, []string{"method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "HTTP requests currently being served.",
		}),
		ingestSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "submissions_total",
			Help:      "Source submissions by source type and outcome.",
		}, []string{"source_type", "outcome"}),
		callbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "callbacks_total",
			Help:      "Processing status callbacks by reported status and outcome.",
		}, []string{"status", "outcome"}),
		aiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ai",
			Name:      "requests_total",
			Help:      "Calls to the external AI service by operation and outcome.",
		}, []string{"operation", "outcome"}),
	}
	r.reg.MustRegister(
		r.httpRequests,
		r.httpDuration,
		r.httpInFlight,
		r.ingestSubmitted,
		r.callbacks,
		r.aiRequests,
		collectors.NewGoCollector(),
	)
	return r
}

// Gatherer exposes the underlying registry for tests.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// Handler exposes metrics in Prometheus text format.
func (r *Registry) Handler() gin.HandlerFunc {
	h := promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
	return gin.WrapH(h)
}

// Middleware records request counts and latency keyed by the route template.
func (r *Registry) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		r.httpInFlight.Inc()
		defer r.httpInFlight.Dec()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		r.httpRequests.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		r.httpDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// IncSubmission counts a submitSource outcome ("accepted", "rejected", "storage_failed", ...).
func (r *Registry) IncSubmission(sourceType, outcome string) {
	if r == nil {
		return
	}
	r.ingestSubmitted.WithLabelValues(sourceType, outcome).Inc()
}

// IncCallback counts a status callback outcome ("applied", "unknown_file", "rejected", "failed").
func (r *Registry) IncCallback(status, outcome string) {
	if r == nil {
		return
	}
	r.callbacks.WithLabelValues(status, outcome).Inc()
}

// IncAIRequest counts an AI service call outcome.
func (r *Registry) IncAIRequest(operation, outcome string) {
	if r == nil {
		return
	}
	r.aiRequests.WithLabelValues(operation, outcome).Inc()
}
