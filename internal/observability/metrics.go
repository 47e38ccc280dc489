package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/upb/agent-control-plane/models"
)

const namespace = "control_plane"

// Metrics holds the control plane's Prometheus collectors on a private
// registry. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
	auditEvents    *prometheus.CounterVec
	policyDecision *prometheus.CounterVec
	routedRequests *prometheus.CounterVec
	upstreamErrors *prometheus.CounterVec
	rateLimited    prometheus.Counter
	pendingGauge   prometheus.GaugeFunc
}

// NewMetrics registers every collector. pending reports the current number
// of pending approvals and may be nil.
func NewMetrics(pending func() float64) *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status",
		}, []string{"route", "method", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		auditEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_events_total",
			Help:      "Audit events appended by type",
		}, []string{"type"}),
		policyDecision: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "policy_decisions_total",
			Help:      "Tool call decisions by outcome",
		}, []string{"decision"}),
		routedRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "routed_requests_total",
			Help:      "Model router decisions by tier",
		}, []string{"tier"}),
		upstreamErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_errors_total",
			Help:      "Failed upstream provider calls by tier",
		}, []string{"tier"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_requests_total",
			Help:      "Requests rejected by the rate limiter",
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.httpDuration,
		m.auditEvents,
		m.policyDecision,
		m.routedRequests,
		m.upstreamErrors,
		m.rateLimited,
	)

	if pending != nil {
		m.pendingGauge = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "approvals_pending",
			Help:      "Approvals currently awaiting a decision",
		}, pending)
		reg.MustRegister(m.pendingGauge)
	}
	return m
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry, mainly for tests
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) ObserveHTTP(route, method string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(route, method).Observe(elapsed.Seconds())
}

// ObserveAuditEvent is installed as the audit store's append hook and
// derives the domain counters from event payloads.
func (m *Metrics) ObserveAuditEvent(e models.AuditEvent) {
	if m == nil {
		return
	}
	m.auditEvents.WithLabelValues(string(e.Type)).Inc()

	switch e.Type {
	case models.AuditEventToolCallDecision:
		if d, ok := e.Payload["decision"].(models.Decision); ok {
			m.policyDecision.WithLabelValues(string(d)).Inc()
		} else if d, ok := e.Payload["decision"].(string); ok {
			m.policyDecision.WithLabelValues(d).Inc()
		}
	case models.AuditEventModelRouted:
		if tier, ok := e.Payload["tier"].(string); ok {
			m.routedRequests.WithLabelValues(tier).Inc()
		}
	}
}

func (m *Metrics) UpstreamError(tier models.Tier) {
	if m == nil {
		return
	}
	m.upstreamErrors.WithLabelValues(string(tier)).Inc()
}

func (m *Metrics) RateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}
