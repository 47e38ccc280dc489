package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/upb/agent-control-plane/models"
	"github.com/upb/agent-control-plane/services/audit"
	"go.uber.org/zap"
)

func TestHandleIntercept_Validation(t *testing.T) {
	tests := []struct {
		name          string
		body          string
		expectedError string
	}{
		{name: "malformed json", body: `{`, expectedError: "Request body must be an object"},
		{name: "array body", body: `[]`, expectedError: "Request body must be an object"},
		{name: "missing tool name", body: `{"params":{}}`, expectedError: "toolName is required"},
		{name: "empty tool name", body: `{"toolName":"","params":{}}`, expectedError: "toolName is required"},
		{name: "params not object", body: `{"toolName":"exec","params":"ls"}`, expectedError: "params must be an object"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auditLog := new(MockAuditLogger)
			handler := NewToolCallHandler(newEngine(t), newApprovalStore(t), auditLog, zap.NewNop())

			w := httptest.NewRecorder()
			handler.HandleIntercept(w, jsonRequest(http.MethodPost, "/v1/tool-calls/intercept", tt.body))

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tt.expectedError, decodeMap(t, w)["error"])
			auditLog.AssertNotCalled(t, "Append", mock.Anything, mock.Anything)
		})
	}
}

func TestHandleIntercept_Allow(t *testing.T) {
	auditLog := new(MockAuditLogger)
	auditLog.On("Append", models.AuditEventToolCallIntercepted, mock.Anything).Return(nil).Once()
	auditLog.On("Append", models.AuditEventToolCallDecision, mock.MatchedBy(func(p map[string]any) bool {
		return p["decision"] == "allow" && p["ruleId"] == nil && p["toolName"] == "read"
	})).Return(nil).Once()

	handler := NewToolCallHandler(newEngine(t), newApprovalStore(t), auditLog, zap.NewNop())

	w := httptest.NewRecorder()
	handler.HandleIntercept(w, jsonRequest(http.MethodPost, "/v1/tool-calls/intercept",
		`{"toolName":"read","params":{"path":"/tmp/a"}}`))

	assert.Equal(t, http.StatusOK, w.Code)
	body := decodeMap(t, w)
	assert.Equal(t, "allow", body["decision"])
	assert.Equal(t, "No rule matched; default decision applied", body["reason"])
	assert.NotContains(t, body, "ruleId")
	auditLog.AssertExpectations(t)
}

func TestHandleIntercept_Deny(t *testing.T) {
	engine := newEngine(t, models.PolicyRule{
		ID:       "deny-rm",
		Match:    models.MatchCriteria{ToolNames: []string{"exec"}, CommandRegex: []string{`rm\s+-rf`}},
		Decision: models.DecisionDeny,
		Reason:   "destructive command",
	})
	auditStore := newAuditStore(t)
	handler := NewToolCallHandler(engine, newApprovalStore(t), auditStore, zap.NewNop())

	w := httptest.NewRecorder()
	handler.HandleIntercept(w, jsonRequest(http.MethodPost, "/v1/tool-calls/intercept",
		`{"toolName":"exec","params":{"command":"RM -RF /"}}`))

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeMap(t, w)
	assert.Equal(t, "deny", body["decision"])
	assert.Equal(t, "deny-rm", body["ruleId"])
	assert.Equal(t, "destructive command", body["reason"])

	events := auditStore.List(audit.ListOptions{})
	assert.Equal(t, []models.AuditEventType{
		models.AuditEventToolCallDecision,
		models.AuditEventToolCallIntercepted,
	}, eventTypes(events))
}

func TestHandleIntercept_AskCreatesApproval(t *testing.T) {
	engine := newEngine(t, models.PolicyRule{
		ID:       "ask-email",
		Match:    models.MatchCriteria{ToolNames: []string{"send_email"}},
		Decision: models.DecisionAsk,
		Reason:   "outbound email needs review",
	})
	approvals := newApprovalStore(t)
	auditStore := newAuditStore(t)
	handler := NewToolCallHandler(engine, approvals, auditStore, zap.NewNop())

	w := httptest.NewRecorder()
	handler.HandleIntercept(w, jsonRequest(http.MethodPost, "/v1/tool-calls/intercept",
		`{"toolName":"send_email","params":{"to":"a@b.c"},"context":{"channel":"slack","sessionId":7}}`))

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeMap(t, w)
	assert.Equal(t, "ask", body["decision"])
	assert.Equal(t, "ask-email", body["ruleId"])
	assert.NotEmpty(t, body["expiresAt"])

	approvalID, _ := body["approvalId"].(string)
	require.NotEmpty(t, approvalID)

	stored, ok := approvals.Get(approvalID)
	require.True(t, ok)
	assert.Equal(t, models.ApprovalStatusPending, stored.Status)
	assert.Equal(t, "outbound email needs review", stored.Reason)
	require.NotNil(t, stored.ToolCall.Context)
	assert.Equal(t, "slack", stored.ToolCall.Context.Channel)
	assert.Empty(t, stored.ToolCall.Context.SessionID)

	events := auditStore.List(audit.ListOptions{})
	assert.Equal(t, []models.AuditEventType{
		models.AuditEventApprovalCreated,
		models.AuditEventToolCallDecision,
		models.AuditEventToolCallIntercepted,
	}, eventTypes(events))
	assert.Equal(t, approvalID, events[0].Payload["approvalId"])
}

func TestHandleIntercept_AuditFailureDoesNotFailRequest(t *testing.T) {
	auditLog := new(MockAuditLogger)
	auditLog.On("Append", mock.Anything, mock.Anything).Return(errors.New("disk full"))

	handler := NewToolCallHandler(newEngine(t), newApprovalStore(t), auditLog, zap.NewNop())

	w := httptest.NewRecorder()
	handler.HandleIntercept(w, jsonRequest(http.MethodPost, "/v1/tool-calls/intercept",
		`{"toolName":"read","params":{}}`))

	assert.Equal(t, http.StatusOK, w.Code)
	auditLog.AssertNumberOfCalls(t, "Append", 2)
}

func TestInterceptRequestToolCall(t *testing.T) {
	t.Run("without context", func(t *testing.T) {
		call := InterceptRequest{ToolName: "read", Params: map[string]any{}}.ToolCall()
		assert.Equal(t, "read", call.ToolName)
		assert.Nil(t, call.Context)
	})

	t.Run("non string context fields are dropped", func(t *testing.T) {
		call := InterceptRequest{
			ToolName: "exec",
			Params:   map[string]any{"command": "ls"},
			Context: map[string]any{
				"source":  "agent",
				"userId":  42.0,
				"message": []any{"x"},
			},
		}.ToolCall()
		require.NotNil(t, call.Context)
		assert.Equal(t, "agent", call.Context.Source)
		assert.Empty(t, call.Context.UserID)
		assert.Empty(t, call.Context.Message)
	})

	t.Run("context of wrong type is ignored", func(t *testing.T) {
		call := InterceptRequest{ToolName: "read", Params: map[string]any{}, Context: "cli"}.ToolCall()
		assert.Nil(t, call.Context)
	})
}
