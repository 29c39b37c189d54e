package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mindforu"

// Sync run results
const (
	ResultSuccess = "success"
	ResultPartial = "partial"
	ResultFailure = "failure"
)

// Metrics holds the service collectors and the registry they live in
type Metrics struct {
	registry *prometheus.Registry

	SyncRuns            *prometheus.CounterVec
	SyncCalls           *prometheus.CounterVec
	SyncDuration        prometheus.Histogram
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	WebhookEvents       *prometheus.CounterVec
}

// New creates the collectors and registers them, with the Go and process
// collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		SyncRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sync_runs_total",
				Help:      "Total number of call sync runs",
			},
			[]string{"result"},
		),
		SyncCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sync_calls_total",
				Help:      "Calls seen by the sync, by outcome",
			},
			[]string{"outcome"},
		),
		SyncDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "sync_duration_seconds",
				Help:      "Duration of call sync runs",
				Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests",
			},
			[]string{"method", "route"},
		),
		WebhookEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "webhook_events_total",
				Help:      "Webhook events received, by source and type",
			},
			[]string{"source", "type"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.SyncRuns,
		m.SyncCalls,
		m.SyncDuration,
		m.HTTPRequests,
		m.HTTPRequestDuration,
		m.WebhookEvents,
	)
	return m
}

// Registry exposes the registry, mainly for tests
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveSync records one finished sync run
func (m *Metrics) ObserveSync(result string, inserted, skipped int, took time.Duration) {
	if m == nil {
		return
	}
	m.SyncRuns.WithLabelValues(result).Inc()
	m.SyncCalls.WithLabelValues("inserted").Add(float64(inserted))
	m.SyncCalls.WithLabelValues("skipped").Add(float64(skipped))
	m.SyncDuration.Observe(took.Seconds())
}

// WebhookEvent counts one received webhook event
func (m *Metrics) WebhookEvent(source, eventType string) {
	if m == nil {
		return
	}
	m.WebhookEvents.WithLabelValues(source, eventType).Inc()
}

// Middleware counts requests by route template, so path parameters do not
// explode the label space.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.HTTPRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPRequestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}
