package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/upb/agent-control-plane/models"
	"github.com/upb/agent-control-plane/services/approval"
	"github.com/upb/agent-control-plane/services/audit"
	"github.com/upb/agent-control-plane/services/policy"
	"go.uber.org/zap"
)

// MockAuditLogger is a mock implementation of AuditLogger
type MockAuditLogger struct {
	mock.Mock
}

func (m *MockAuditLogger) Append(eventType models.AuditEventType, payload map[string]any) (models.AuditEvent, error) {
	args := m.Called(eventType, payload)
	return models.AuditEvent{Type: eventType, Payload: payload}, args.Error(0)
}

func newAuditStore(t *testing.T) *audit.Store {
	t.Helper()
	store, err := audit.NewStore(audit.Options{Path: filepath.Join(t.TempDir(), "audit.ndjson")}, zap.NewNop())
	require.NoError(t, err)
	return store
}

func newApprovalStore(t *testing.T) *approval.Store {
	t.Helper()
	return approval.NewStore(10*time.Minute, filepath.Join(t.TempDir(), "approvals.json"), zap.NewNop())
}

func newEngine(t *testing.T, rules ...models.PolicyRule) *policy.Engine {
	t.Helper()
	return policy.NewEngine(policy.Config{
		DefaultDecision: models.DecisionAllow,
		Rules:           rules,
		OverridesPath:   filepath.Join(t.TempDir(), "policy-overrides.json"),
	}, nil, zap.NewNop())
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func withURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func decodeMap(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&out))
	return out
}

func eventTypes(events []models.AuditEvent) []models.AuditEventType {
	out := make([]models.AuditEventType, len(events))
	for i, e := range events {
		out[i] = e.Type
	}
	return out
}
