package handlers

import (
	"context"

	"github.com/upb/agent-control-plane/models"
	"github.com/upb/agent-control-plane/services/audit"
	"github.com/upb/agent-control-plane/services/policy"
	"github.com/upb/agent-control-plane/services/prompt"
	"github.com/upb/agent-control-plane/services/routing"
	"go.uber.org/zap"
)

// AuditLogger appends events to the audit log
type AuditLogger interface {
	Append(eventType models.AuditEventType, payload map[string]any) (models.AuditEvent, error)
}

// AuditReader serves the audit query endpoints
type AuditReader interface {
	List(opts audit.ListOptions) []models.AuditEvent
	Summary(windowMinutes int) models.MetricsSummary
	Timeseries(windowMinutes, bucketMinutes int) models.MetricsTimeseries
}

// PolicyEngine decides tool calls and manages the rule list
type PolicyEngine interface {
	Decide(call models.ToolCallRecord) models.PolicyDecision
	Rules() []models.PolicyRule
	Rule(id string) (models.PolicyRule, error)
	AddRule(rule models.PolicyRule) error
	UpdateRule(id string, update policy.RuleUpdate) (models.PolicyRule, error)
	DeleteRule(id string) error
}

// ApprovalStore tracks human reviews of "ask" decisions
type ApprovalStore interface {
	Create(call models.ToolCallRecord, reason string) (models.ApprovalRequest, error)
	Get(id string) (models.ApprovalRequest, bool)
	List(status models.ApprovalStatus) []models.ApprovalRequest
	Decide(id string, decision models.ApprovalDecision) (models.ApprovalRequest, bool, error)
}

// Sanitizer redacts tool output and screens outbound messages
type Sanitizer interface {
	SanitizeToolResult(text string) prompt.SanitizeResult
	CheckOutboundMessage(message string) prompt.OutboundResult
}

// ModelRouter picks a tier for a prompt
type ModelRouter interface {
	Route(req routing.RouteRequest) models.RouteDecision
	Config() routing.Config
}

// Forwarder relays a chat completion to the routed provider
type Forwarder interface {
	Forward(ctx context.Context, body map[string]any, route models.RouteDecision) (*routing.ForwardResult, error)
	Endpoint(tier models.Tier) (string, error)
}

// UpstreamRecorder counts failed provider calls
type UpstreamRecorder interface {
	UpstreamError(tier models.Tier)
}

// recordAudit appends an event and logs, rather than fails on, a write error.
// The event is still held in memory when the durable append fails.
func recordAudit(log AuditLogger, logger *zap.Logger, requestID string, eventType models.AuditEventType, payload map[string]any) {
	if _, err := log.Append(eventType, payload); err != nil {
		logger.Error("failed to append audit event",
			zap.String("request_id", requestID),
			zap.String("type", string(eventType)),
			zap.Error(err))
	}
}

// nilIfEmpty renders an empty string as a JSON null
func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
