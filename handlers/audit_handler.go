package handlers

import (
	"net/http"

	"github.com/upb/agent-control-plane/models"
	"github.com/upb/agent-control-plane/services/audit"
	"github.com/upb/agent-control-plane/utils"
	"go.uber.org/zap"
)

// AuditHandler serves the audit log and the metrics derived from it
type AuditHandler struct {
	events    AuditReader
	approvals ApprovalStore
	logger    *zap.Logger
}

// NewAuditHandler creates a new AuditHandler
func NewAuditHandler(events AuditReader, approvals ApprovalStore, logger *zap.Logger) *AuditHandler {
	return &AuditHandler{
		events:    events,
		approvals: approvals,
		logger:    logger,
	}
}

// HandleListEvents handles GET /v1/audit/events
func (h *AuditHandler) HandleListEvents(w http.ResponseWriter, r *http.Request) {
	eventType := models.AuditEventType(r.URL.Query().Get("type"))
	if eventType != "" && !eventType.IsValid() {
		badRequest(w, "invalid audit type", h.logger)
		return
	}

	limit, err := utils.QueryInt(r, "limit", audit.DefaultListLimit)
	if err != nil {
		badRequest(w, "limit must be an integer", h.logger)
		return
	}

	writeOK(w, itemsOf(h.events.List(audit.ListOptions{Type: eventType, Limit: limit})), h.logger)
}

// HandleSummary handles GET /v1/metrics/summary
func (h *AuditHandler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	window, err := utils.QueryInt(r, "windowMinutes", audit.DefaultSummaryWindow)
	if err != nil {
		badRequest(w, "windowMinutes must be an integer", h.logger)
		return
	}

	summary := h.events.Summary(window)
	audit.MergeApprovalCounts(&summary, h.approvals.List(""))
	writeOK(w, summary, h.logger)
}

// HandleTimeseries handles GET /v1/metrics/timeseries
func (h *AuditHandler) HandleTimeseries(w http.ResponseWriter, r *http.Request) {
	window, err := utils.QueryInt(r, "windowMinutes", audit.DefaultTimeseriesWindow)
	if err != nil {
		badRequest(w, "windowMinutes must be an integer", h.logger)
		return
	}
	bucket, err := utils.QueryInt(r, "bucketMinutes", audit.DefaultTimeseriesBucket)
	if err != nil {
		badRequest(w, "bucketMinutes must be an integer", h.logger)
		return
	}

	writeOK(w, h.events.Timeseries(window, bucket), h.logger)
}
