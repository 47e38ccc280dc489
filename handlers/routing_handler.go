package handlers

import (
	"net/http"

	"github.com/upb/agent-control-plane/middleware"
	"github.com/upb/agent-control-plane/models"
	"github.com/upb/agent-control-plane/services"
	"github.com/upb/agent-control-plane/services/routing"
	"github.com/upb/agent-control-plane/utils"
	"go.uber.org/zap"
)

const chatCompletionsEndpoint = "/v1/chat/completions"

// RoutingHandler serves the model router and the tiered chat proxy
type RoutingHandler struct {
	router   ModelRouter
	proxy    Forwarder
	audit    AuditLogger
	upstream UpstreamRecorder
	logger   *zap.Logger
}

// NewRoutingHandler creates a new RoutingHandler. upstream may be nil.
func NewRoutingHandler(router ModelRouter, proxy Forwarder, auditLog AuditLogger, upstream UpstreamRecorder, logger *zap.Logger) *RoutingHandler {
	return &RoutingHandler{
		router:   router,
		proxy:    proxy,
		audit:    auditLog,
		upstream: upstream,
		logger:   logger,
	}
}

// HandleRoute handles POST /v1/model-router/route
func (h *RoutingHandler) HandleRoute(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestIDFromContext(r.Context())

	var body RouteModelRequest
	if err := bindJSON(r, &body, describeRouteModel); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	req := body.RouteRequest()

	decision := h.router.Route(req)
	cost := routing.EstimateCost(h.router.Config(), decision.Tier, req.Prompt)
	recordAudit(h.audit, h.logger, requestID, models.AuditEventModelRouted, cost.AuditPayload(decision))

	writeOK(w, decision, h.logger)
}

// HandleChatCompletions handles POST /v1/chat/completions
func (h *RoutingHandler) HandleChatCompletions(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestIDFromContext(r.Context())

	body, err := utils.DecodeObject(r)
	if err != nil {
		badRequest(w, "Chat completion request body must be an object", h.logger)
		return
	}

	prompt := routing.ExtractPrompt(body)
	if prompt == "" {
		badRequest(w, "prompt or messages content is required", h.logger)
		return
	}

	requestedModel, _ := body["requestedModel"].(string)
	decision := h.router.Route(routing.RouteRequest{
		Prompt:         prompt,
		Metadata:       parseMetadata(body["metadata"]),
		RequestedModel: requestedModel,
	})

	result, err := h.proxy.Forward(r.Context(), body, decision)
	if err != nil {
		if h.upstream != nil {
			h.upstream.UpstreamError(decision.Tier)
		}
		h.logger.Warn("chat completion forwarding failed",
			zap.String("request_id", requestID),
			zap.String("tier", string(decision.Tier)),
			zap.String("model", decision.Model),
			zap.Error(err))
		if err := utils.WriteBadGateway(w, services.GetErrorMessage(err)); err != nil {
			h.logger.Error("failed to write bad gateway response", zap.Error(err))
		}
		return
	}

	cost := routing.EstimateCost(h.router.Config(), result.Route.Tier, prompt)
	payload := cost.AuditPayload(result.Route)
	payload["endpoint"] = chatCompletionsEndpoint
	payload["providerUrl"] = result.ProviderURL
	recordAudit(h.audit, h.logger, requestID, models.AuditEventModelRouted, payload)

	w.Header().Set("x-route-tier", string(result.Route.Tier))
	w.Header().Set("x-route-model", result.Route.Model)
	w.Header().Set("x-route-reason", result.Route.Reason)
	if result.ContentType != "" {
		w.Header().Set("Content-Type", result.ContentType)
	}
	if err := utils.WriteJSON(w, result.Status, result.Body); err != nil {
		h.logger.Error("failed to relay upstream response",
			zap.String("request_id", requestID),
			zap.Error(err))
	}
}

func parseMetadata(raw any) *routing.RouteMetadata {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil
	}
	taskType, _ := m["taskType"].(string)
	return &routing.RouteMetadata{
		IsHeartbeat: truthy(m["isHeartbeat"]),
		TaskType:    taskType,
	}
}

// truthy mirrors loose JSON truthiness: false, 0, "" and null are false
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != ""
	default:
		return true
	}
}
