package models

import "time"

// ApprovalStatus tracks the lifecycle of a human review
type ApprovalStatus string

const (
	ApprovalStatusPending  ApprovalStatus = "pending"
	ApprovalStatusApproved ApprovalStatus = "approved"
	ApprovalStatusRejected ApprovalStatus = "rejected"
	ApprovalStatusExpired  ApprovalStatus = "expired"
)

// IsValid reports whether s is a known status
func (s ApprovalStatus) IsValid() bool {
	switch s {
	case ApprovalStatusPending, ApprovalStatusApproved, ApprovalStatusRejected, ApprovalStatusExpired:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is possible
func (s ApprovalStatus) IsTerminal() bool {
	return s == ApprovalStatusApproved || s == ApprovalStatusRejected || s == ApprovalStatusExpired
}

// ApprovalRequest is the durable record of a review for an "ask" tool call
type ApprovalRequest struct {
	ID        string         `json:"id"`
	ToolCall  ToolCallRecord `json:"toolCall"`
	Reason    string         `json:"reason"`
	Status    ApprovalStatus `json:"status"`
	CreatedAt time.Time      `json:"createdAt"`
	ExpiresAt time.Time      `json:"expiresAt"`
	DecidedAt *time.Time     `json:"decidedAt,omitempty"`
	DecidedBy string         `json:"decidedBy,omitempty"`
	Note      string         `json:"note,omitempty"`
}

// ApprovalDecision is a reviewer verdict on a pending approval
type ApprovalDecision struct {
	Status ApprovalStatus
	Actor  string
	Note   string
}
