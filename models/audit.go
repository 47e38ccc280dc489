package models

import "time"

// AuditEventType enumerates the control-plane actions recorded in the audit log
type AuditEventType string

const (
	AuditEventToolCallIntercepted    AuditEventType = "tool_call_intercepted"
	AuditEventToolCallDecision       AuditEventType = "tool_call_decision"
	AuditEventApprovalCreated        AuditEventType = "approval_created"
	AuditEventApprovalDecided        AuditEventType = "approval_decided"
	AuditEventToolResultSanitized    AuditEventType = "tool_result_sanitized"
	AuditEventOutboundMessageChecked AuditEventType = "outbound_message_checked"
	AuditEventModelRouted            AuditEventType = "model_routed"
	AuditEventPolicyChanged          AuditEventType = "policy_changed"
)

// IsValid reports whether t is a known event type
func (t AuditEventType) IsValid() bool {
	switch t {
	case AuditEventToolCallIntercepted, AuditEventToolCallDecision,
		AuditEventApprovalCreated, AuditEventApprovalDecided,
		AuditEventToolResultSanitized, AuditEventOutboundMessageChecked,
		AuditEventModelRouted, AuditEventPolicyChanged:
		return true
	}
	return false
}

// AuditEvent is an immutable timestamped record appended to the audit log
type AuditEvent struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Type      AuditEventType `json:"type"`
	Payload   map[string]any `json:"payload"`
}
