package handlers

import (
	"net/http"
	"unicode/utf8"

	"github.com/upb/agent-control-plane/middleware"
	"github.com/upb/agent-control-plane/models"
	"go.uber.org/zap"
)

// SanitizeHandler screens tool output coming in and messages going out
type SanitizeHandler struct {
	sanitizer Sanitizer
	audit     AuditLogger
	logger    *zap.Logger
}

// NewSanitizeHandler creates a new SanitizeHandler
func NewSanitizeHandler(sanitizer Sanitizer, auditLog AuditLogger, logger *zap.Logger) *SanitizeHandler {
	return &SanitizeHandler{
		sanitizer: sanitizer,
		audit:     auditLog,
		logger:    logger,
	}
}

// HandleSanitizeToolResult handles POST /v1/tool-results/sanitize
func (h *SanitizeHandler) HandleSanitizeToolResult(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestIDFromContext(r.Context())

	var req SanitizeRequest
	if err := bindJSON(r, &req, fixedMessage("output is required")); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	output := *req.Output

	result := h.sanitizer.SanitizeToolResult(output)
	recordAudit(h.audit, h.logger, requestID, models.AuditEventToolResultSanitized, map[string]any{
		"redactions":           result.Redactions,
		"promptInjectionFlags": result.PromptInjectionFlags,
		"outputLength":         utf8.RuneCountInString(output),
	})

	if len(result.PromptInjectionFlags) > 0 {
		h.logger.Warn("prompt injection patterns in tool output",
			zap.String("request_id", requestID),
			zap.Strings("flags", result.PromptInjectionFlags))
	}

	writeOK(w, result, h.logger)
}

// HandleCheckOutbound handles POST /v1/outbound/check
func (h *SanitizeHandler) HandleCheckOutbound(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestIDFromContext(r.Context())

	var req OutboundRequest
	if err := bindJSON(r, &req, fixedMessage("message is required")); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	message := *req.Message

	result := h.sanitizer.CheckOutboundMessage(message)
	recordAudit(h.audit, h.logger, requestID, models.AuditEventOutboundMessageChecked, map[string]any{
		"allowed":       result.Allowed,
		"deniedPattern": nilIfEmpty(result.DeniedPattern),
		"redactions":    result.Redactions,
		"messageLength": utf8.RuneCountInString(message),
	})

	if !result.Allowed {
		h.logger.Warn("outbound message blocked",
			zap.String("request_id", requestID),
			zap.String("pattern", result.DeniedPattern))
	}

	writeOK(w, result, h.logger)
}
