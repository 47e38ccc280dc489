package handlers

import (
	"net/http"
	"time"

	"github.com/upb/agent-control-plane/models"
	"go.uber.org/zap"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	OK bool `json:"ok"`
}

// ReadinessResponse reports the state of the control plane's stores
type ReadinessResponse struct {
	OK               bool   `json:"ok"`
	Timestamp        string `json:"timestamp"`
	PendingApprovals int    `json:"pendingApprovals"`
	PolicyRules      int    `json:"policyRules"`
}

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	engine    PolicyEngine
	approvals ApprovalStore
	logger    *zap.Logger
}

// NewHealthHandler creates a new HealthHandler. engine and approvals may be
// nil when only liveness is served.
func NewHealthHandler(engine PolicyEngine, approvals ApprovalStore, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		engine:    engine,
		approvals: approvals,
		logger:    logger,
	}
}

// HandleHealth handles GET /health
// Basic health check - always returns 200 if service is running
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeOK(w, HealthResponse{OK: true}, h.logger)
}

// HandleReadiness handles GET /health/ready
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	resp := ReadinessResponse{
		OK:        true,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if h.engine != nil {
		resp.PolicyRules = len(h.engine.Rules())
	}
	if h.approvals != nil {
		resp.PendingApprovals = len(h.approvals.List(models.ApprovalStatusPending))
	}
	writeOK(w, resp, h.logger)
}
