// Package metrics exposes low-cardinality Prometheus instruments for the
// mediation core.
package metrics

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics bundles the service's Prometheus instruments.
type Metrics struct {
	Registry *prometheus.Registry

	requestDuration   *prometheus.HistogramVec
	inFlight          prometheus.Gauge
	usageIngested     *prometheus.CounterVec
	rateLimitDecision *prometheus.CounterVec
	stateTransitions  *prometheus.CounterVec
	webhookDeliveries *prometheus.CounterVec
}

// New builds the instrument set on a fresh registry so tests can hold
// independent instances.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		Registry: registry,
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by route and status.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "In-flight HTTP requests.",
		}),
		usageIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "usage_records_total",
			Help: "Usage record submissions by outcome.",
		}, []string{"status"}),
		rateLimitDecision: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rate_limit_decisions_total",
			Help: "Rate limiter decisions by endpoint category.",
		}, []string{"category", "decision"}),
		stateTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sim_state_transitions_total",
			Help: "Applied SIM lifecycle transitions by action.",
		}, []string{"action"}),
		webhookDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "webhook_deliveries_total",
			Help: "Webhook delivery attempts by outcome.",
		}, []string{"status"}),
	}

	registry.MustRegister(
		m.requestDuration,
		m.inFlight,
		m.usageIngested,
		m.rateLimitDecision,
		m.stateTransitions,
		m.webhookDeliveries,
	)
	return m
}

// GinMiddleware records request duration and in-flight metrics.
func GinMiddleware(m *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		route := normalizeRoute(c.FullPath())
		m.inFlight.Inc()
		start := time.Now()
		c.Next()
		m.inFlight.Dec()

		m.requestDuration.WithLabelValues(
			route,
			c.Request.Method,
			strconv.Itoa(c.Writer.Status()),
		).Observe(time.Since(start).Seconds())
	}
}

// RecordUsageIngest counts a usage submission outcome (accepted, duplicate, failed).
func (m *Metrics) RecordUsageIngest(status string) {
	if m == nil {
		return
	}
	m.usageIngested.WithLabelValues(strings.ToLower(status)).Inc()
}

// RecordRateLimitAllowed counts an allowed request for a category.
func (m *Metrics) RecordRateLimitAllowed(category string) {
	if m == nil {
		return
	}
	m.rateLimitDecision.WithLabelValues(category, "allowed").Inc()
}

// RecordRateLimitDenied counts a rejected request for a category.
func (m *Metrics) RecordRateLimitDenied(category string) {
	if m == nil {
		return
	}
	m.rateLimitDecision.WithLabelValues(category, "denied").Inc()
}

// RecordStateTransition counts an applied lifecycle transition.
func (m *Metrics) RecordStateTransition(action string) {
	if m == nil {
		return
	}
	m.stateTransitions.WithLabelValues(strings.ToLower(action)).Inc()
}

// RecordWebhookDelivery counts a delivery attempt outcome.
func (m *Metrics) RecordWebhookDelivery(status string) {
	if m == nil {
		return
	}
	m.webhookDeliveries.WithLabelValues(strings.ToLower(status)).Inc()
}

func normalizeRoute(route string) string {
	route = strings.TrimSpace(route)
	if route == "" {
		return "unknown"
	}
	return route
}
