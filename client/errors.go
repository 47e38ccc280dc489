package client

import (
	"fmt"
	"time"

	"github.com/upb/agent-control-plane/models"
)

// PolicyDeniedError is returned when the control plane denies a tool call
type PolicyDeniedError struct {
	Reason     string
	RuleID     string
	ApprovalID string
}

func (e *PolicyDeniedError) Error() string {
	return e.Reason
}

// NotApprovedError is returned when an approval ends in any state other
// than approved
type NotApprovedError struct {
	ApprovalID string
	Status     models.ApprovalStatus
	DecidedBy  string
}

func (e *NotApprovedError) Error() string {
	if e.Status == models.ApprovalStatusExpired {
		return "Approval expired"
	}
	return "Rejected by approver"
}

// ApprovalTimeoutError is returned when an approval is still pending after
// the poll timeout
type ApprovalTimeoutError struct {
	ApprovalID string
	Timeout    time.Duration
}

func (e *ApprovalTimeoutError) Error() string {
	return fmt.Sprintf("Approval %s timed out after %dms", e.ApprovalID, e.Timeout.Milliseconds())
}

// OutboundBlockedError is returned when an outbound message hits a deny pattern
type OutboundBlockedError struct {
	Pattern string
}

func (e *OutboundBlockedError) Error() string {
	pattern := e.Pattern
	if pattern == "" {
		pattern = "policy"
	}
	return "Outbound message blocked: " + pattern
}

// RequestError is a non-2xx response from the control plane
type RequestError struct {
	StatusCode int
	Message    string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("Control plane request failed (%d): %s", e.StatusCode, e.Message)
}
