package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/upb/agent-control-plane/middleware"
	"github.com/upb/agent-control-plane/models"
	"github.com/upb/agent-control-plane/services"
	"go.uber.org/zap"
)

// ItemsResponse wraps a collection in {"items": [...]}
type ItemsResponse[T any] struct {
	Items []T `json:"items"`
}

func itemsOf[T any](items []T) ItemsResponse[T] {
	if items == nil {
		items = []T{}
	}
	return ItemsResponse[T]{Items: items}
}

// ApprovalHandler exposes the approval queue to reviewers
type ApprovalHandler struct {
	approvals ApprovalStore
	audit     AuditLogger
	logger    *zap.Logger
}

// NewApprovalHandler creates a new ApprovalHandler
func NewApprovalHandler(approvals ApprovalStore, auditLog AuditLogger, logger *zap.Logger) *ApprovalHandler {
	return &ApprovalHandler{
		approvals: approvals,
		audit:     auditLog,
		logger:    logger,
	}
}

// HandleList handles GET /v1/approvals
func (h *ApprovalHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	status := models.ApprovalStatus(r.URL.Query().Get("status"))
	if status != "" && !status.IsValid() {
		badRequest(w, "invalid status", h.logger)
		return
	}
	writeOK(w, itemsOf(h.approvals.List(status)), h.logger)
}

// HandleGet handles GET /v1/approvals/{id}
func (h *ApprovalHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	approval, ok := h.approvals.Get(chi.URLParam(r, "id"))
	if !ok {
		HandleServiceError(w, services.NewNotFoundError("not found"), h.logger)
		return
	}
	writeOK(w, approval, h.logger)
}

// HandleDecide handles POST /v1/approvals/{id}/decision
func (h *ApprovalHandler) HandleDecide(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	var req DecisionRequest
	if err := bindJSON(r, &req, fixedMessage("decision and actor are required")); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	actor, note := req.Actor, req.Note

	approval, found, err := h.approvals.Decide(id, models.ApprovalDecision{
		Status: req.Decision,
		Actor:  actor,
		Note:   note,
	})
	if err != nil {
		h.logger.Error("failed to record approval decision",
			zap.String("request_id", requestID),
			zap.String("approval_id", id),
			zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}
	if !found {
		HandleServiceError(w, services.NewNotFoundError("not found"), h.logger)
		return
	}

	recordAudit(h.audit, h.logger, requestID, models.AuditEventApprovalDecided, map[string]any{
		"approvalId": approval.ID,
		"decision":   string(approval.Status),
		"actor":      actor,
		"note":       nilIfEmpty(note),
	})

	h.logger.Info("approval decided",
		zap.String("request_id", requestID),
		zap.String("approval_id", approval.ID),
		zap.String("status", string(approval.Status)),
		zap.String("actor", actor))

	writeOK(w, approval, h.logger)
}
