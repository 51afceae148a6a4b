// Package metrics exposes the autopilot's Prometheus metrics on a private
// registry so several instances can coexist in tests.
package metrics

import (
	"strconv"
	"time"

	"autopilot/types"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "autopilot"

// Metrics holds all collectors
type Metrics struct {
	registry *prometheus.Registry

	// Cycle metrics
	CyclesTotal   *prometheus.CounterVec
	CycleDuration *prometheus.HistogramVec
	Phase         *prometheus.GaugeVec

	// Publishing and activity
	PostsPublished *prometheus.CounterVec
	ActivityTotal  *prometheus.CounterVec
	RetriesTotal   *prometheus.CounterVec

	// HTTP
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.CyclesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cycles_total",
		Help:      "Completed cycles by outcome",
	}, []string{"outcome"})

	m.CycleDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "cycle_duration_seconds",
		Help:      "Wall time of a cycle",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
	}, []string{"outcome"})

	m.Phase = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "phase",
		Help:      "1 for the current cycle phase, 0 otherwise",
	}, []string{"phase"})

	m.PostsPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "posts_published_total",
		Help:      "Posts leaving the schedule by final status",
	}, []string{"status"})

	m.ActivityTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "activity_entries_total",
		Help:      "Activity log entries by agent and status",
	}, []string{"agent", "status"})

	m.RetriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "generation_retries_total",
		Help:      "Rate-limited generation calls that were retried",
	}, []string{"op"})

	m.httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests",
	}, []string{"method", "endpoint", "status"})

	m.httpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "endpoint"})

	m.registry.MustRegister(
		m.CyclesTotal, m.CycleDuration, m.Phase,
		m.PostsPublished, m.ActivityTotal, m.RetriesTotal,
		m.httpRequestsTotal, m.httpRequestDuration,
	)
	return m
}

// Registry is exposed for tests
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// CycleFinished implements cycle.Observer
func (m *Metrics) CycleFinished(outcome string, elapsed time.Duration) {
	m.CyclesTotal.WithLabelValues(outcome).Inc()
	m.CycleDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// PostPublished implements publisher.Observer
func (m *Metrics) PostPublished(status types.PostStatus) {
	m.PostsPublished.WithLabelValues(string(status)).Inc()
}

// SetPhase marks p as the only active phase; pass it to state.Manager.OnPhaseChange
func (m *Metrics) SetPhase(p types.CyclePhase) {
	m.Phase.Reset()
	m.Phase.WithLabelValues(string(p)).Set(1)
}

// ActivityRecorded counts an activity entry; pass it to activity.OnRecord
func (m *Metrics) ActivityRecorded(e types.ActivityLogEntry) {
	m.ActivityTotal.WithLabelValues(e.AgentName, string(e.Status)).Inc()
}

// RetryObserved matches generation.RetryPolicy.OnRetry
func (m *Metrics) RetryObserved(op string, _ int, _ time.Duration, _ error) {
	m.RetriesTotal.WithLabelValues(op).Inc()
}

// Middleware collects HTTP metrics
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unknown"
		}
		m.httpRequestsTotal.WithLabelValues(c.Request.Method, endpoint, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpRequestDuration.WithLabelValues(c.Request.Method, endpoint).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() gin.HandlerFunc {
	handler := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return func(c *gin.Context) {
		handler.ServeHTTP(c.Writer, c.Request)
	}
}
