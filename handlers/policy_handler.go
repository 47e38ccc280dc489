package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/upb/agent-control-plane/middleware"
	"github.com/upb/agent-control-plane/models"
	"github.com/upb/agent-control-plane/utils"
	"go.uber.org/zap"
)

// DeleteResponse acknowledges a removed rule
type DeleteResponse struct {
	Deleted bool `json:"deleted"`
}

// PolicyHandler handles policy rule management requests
type PolicyHandler struct {
	engine PolicyEngine
	audit  AuditLogger
	logger *zap.Logger
}

// NewPolicyHandler creates a new PolicyHandler
func NewPolicyHandler(engine PolicyEngine, auditLog AuditLogger, logger *zap.Logger) *PolicyHandler {
	return &PolicyHandler{
		engine: engine,
		audit:  auditLog,
		logger: logger,
	}
}

// HandleListPolicies handles GET /v1/policies
func (h *PolicyHandler) HandleListPolicies(w http.ResponseWriter, r *http.Request) {
	writeOK(w, itemsOf(h.engine.Rules()), h.logger)
}

// HandleGetPolicy handles GET /v1/policies/{id}
func (h *PolicyHandler) HandleGetPolicy(w http.ResponseWriter, r *http.Request) {
	rule, err := h.engine.Rule(chi.URLParam(r, "id"))
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	writeOK(w, rule, h.logger)
}

// HandleCreatePolicy handles POST /v1/policies
func (h *PolicyHandler) HandleCreatePolicy(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestIDFromContext(r.Context())

	var req CreatePolicyRequest
	if err := bindJSON(r, &req, describeCreatePolicy); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	rule := req.Rule()

	if err := h.engine.AddRule(rule); err != nil {
		h.logger.Warn("failed to add policy rule",
			zap.String("request_id", requestID),
			zap.String("rule_id", rule.ID),
			zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}

	h.recordChange(requestID, "create", rule.ID)
	if err := utils.WriteCreated(w, rule); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}

// HandleUpdatePolicy handles PUT /v1/policies/{id}
func (h *PolicyHandler) HandleUpdatePolicy(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	var req UpdatePolicyRequest
	if err := bindJSON(r, &req, describeUpdatePolicy); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	updated, err := h.engine.UpdateRule(id, req.Update())
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.recordChange(requestID, "update", id)
	writeOK(w, updated, h.logger)
}

// HandleDeletePolicy handles DELETE /v1/policies/{id}
func (h *PolicyHandler) HandleDeletePolicy(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	if err := h.engine.DeleteRule(id); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.recordChange(requestID, "delete", id)
	writeOK(w, DeleteResponse{Deleted: true}, h.logger)
}

func (h *PolicyHandler) recordChange(requestID, action, ruleID string) {
	recordAudit(h.audit, h.logger, requestID, models.AuditEventPolicyChanged, map[string]any{
		"action": action,
		"ruleId": ruleID,
	})
	h.logger.Info("policy rule changed",
		zap.String("request_id", requestID),
		zap.String("action", action),
		zap.String("rule_id", ruleID))
}
