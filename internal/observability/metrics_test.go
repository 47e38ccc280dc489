package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/agent-control-plane/models"
)

func TestMetrics_ObserveAuditEvent(t *testing.T) {
	m := NewMetrics(nil)

	m.ObserveAuditEvent(models.AuditEvent{Type: models.AuditEventToolCallDecision, Payload: map[string]any{"decision": models.DecisionDeny}})
	m.ObserveAuditEvent(models.AuditEvent{Type: models.AuditEventToolCallDecision, Payload: map[string]any{"decision": "deny"}})
	m.ObserveAuditEvent(models.AuditEvent{Type: models.AuditEventModelRouted, Payload: map[string]any{"tier": "local"}})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.auditEvents.WithLabelValues("tool_call_decision")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.policyDecision.WithLabelValues("deny")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.routedRequests.WithLabelValues("local")))
}

func TestMetrics_HTTPAndCounters(t *testing.T) {
	m := NewMetrics(func() float64 { return 3 })

	m.ObserveHTTP("/v1/policies", http.MethodGet, 200, 10*time.Millisecond)
	m.RateLimited()
	m.UpstreamError(models.TierPremium)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("/v1/policies", "GET", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rateLimited))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.upstreamErrors.WithLabelValues("premium")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.pendingGauge))
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics(nil)
	m.RateLimited()

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "control_plane_rate_limited_requests_total 1"))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveHTTP("/", "GET", 200, time.Millisecond)
		m.ObserveAuditEvent(models.AuditEvent{Type: models.AuditEventModelRouted})
		m.RateLimited()
		m.UpstreamError(models.TierCheap)
	})
}

func TestNewLogger(t *testing.T) {
	for _, format := range []string{"json", "console", "text", ""} {
		logger, err := NewLogger("info", format)
		require.NoError(t, err)
		assert.NotNil(t, logger)
	}

	_, err := NewLogger("loud", "json")
	assert.Error(t, err)

	_, err = NewLogger("info", "xml")
	assert.Error(t, err)
}
