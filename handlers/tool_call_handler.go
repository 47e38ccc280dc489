package handlers

import (
	"net/http"
	"time"

	"github.com/upb/agent-control-plane/middleware"
	"github.com/upb/agent-control-plane/models"
	"go.uber.org/zap"
)

// AskResponse is returned when a tool call needs human review
type AskResponse struct {
	Decision   models.Decision `json:"decision"`
	ApprovalID string          `json:"approvalId"`
	Reason     string          `json:"reason"`
	ExpiresAt  time.Time       `json:"expiresAt"`
	RuleID     string          `json:"ruleId,omitempty"`
}

// ToolCallHandler evaluates intercepted tool calls against the policy engine
type ToolCallHandler struct {
	engine    PolicyEngine
	approvals ApprovalStore
	audit     AuditLogger
	logger    *zap.Logger
}

// NewToolCallHandler creates a new ToolCallHandler
func NewToolCallHandler(engine PolicyEngine, approvals ApprovalStore, auditLog AuditLogger, logger *zap.Logger) *ToolCallHandler {
	return &ToolCallHandler{
		engine:    engine,
		approvals: approvals,
		audit:     auditLog,
		logger:    logger,
	}
}

// HandleIntercept handles POST /v1/tool-calls/intercept
func (h *ToolCallHandler) HandleIntercept(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestIDFromContext(r.Context())

	var req InterceptRequest
	if err := bindJSON(r, &req, describeIntercept); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	call := req.ToolCall()

	var ctxPayload any
	if call.Context != nil {
		ctxPayload = call.Context
	}
	recordAudit(h.audit, h.logger, requestID, models.AuditEventToolCallIntercepted, map[string]any{
		"toolName": call.ToolName,
		"context":  ctxPayload,
	})

	decision := h.engine.Decide(call)
	recordAudit(h.audit, h.logger, requestID, models.AuditEventToolCallDecision, map[string]any{
		"toolName": call.ToolName,
		"decision": string(decision.Decision),
		"ruleId":   nilIfEmpty(decision.RuleID),
		"reason":   decision.Reason,
	})

	h.logger.Debug("tool call decided",
		zap.String("request_id", requestID),
		zap.String("tool", call.ToolName),
		zap.String("decision", string(decision.Decision)),
		zap.String("rule_id", decision.RuleID))

	if decision.Decision != models.DecisionAsk {
		writeOK(w, decision, h.logger)
		return
	}

	approval, err := h.approvals.Create(call, decision.Reason)
	if err != nil {
		h.logger.Error("failed to create approval",
			zap.String("request_id", requestID),
			zap.String("tool", call.ToolName),
			zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}

	recordAudit(h.audit, h.logger, requestID, models.AuditEventApprovalCreated, map[string]any{
		"approvalId": approval.ID,
		"toolName":   call.ToolName,
		"ruleId":     nilIfEmpty(decision.RuleID),
		"reason":     decision.Reason,
	})

	writeOK(w, AskResponse{
		Decision:   models.DecisionAsk,
		ApprovalID: approval.ID,
		Reason:     decision.Reason,
		ExpiresAt:  approval.ExpiresAt,
		RuleID:     decision.RuleID,
	}, h.logger)
}
