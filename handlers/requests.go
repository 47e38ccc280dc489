package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/upb/agent-control-plane/models"
	"github.com/upb/agent-control-plane/services"
	"github.com/upb/agent-control-plane/services/policy"
	"github.com/upb/agent-control-plane/services/routing"
	"github.com/upb/agent-control-plane/utils"
)

// InterceptRequest is the body of POST /v1/tool-calls/intercept
type InterceptRequest struct {
	ToolName string         `json:"toolName" validate:"required"`
	Params   map[string]any `json:"params" validate:"required"`
	// Context is kept loose: a non-object value or non-string fields are dropped
	Context any `json:"context"`
}

// ToolCall converts the request into a tool call record
func (req InterceptRequest) ToolCall() models.ToolCallRecord {
	call := models.ToolCallRecord{ToolName: req.ToolName, Params: req.Params}
	raw, ok := req.Context.(map[string]any)
	if !ok {
		return call
	}
	str := func(key string) string {
		s, _ := raw[key].(string)
		return s
	}
	call.Context = &models.ToolCallContext{
		SessionID: str("sessionId"),
		Channel:   str("channel"),
		Source:    str("source"),
		UserID:    str("userId"),
		Message:   str("message"),
	}
	return call
}

func describeIntercept(field string, _ error) string {
	switch field {
	case "toolName":
		return "toolName is required"
	case "params":
		return "params must be an object"
	}
	return "Request body must be an object"
}

// DecisionRequest is the body of POST /v1/approvals/{id}/decision
type DecisionRequest struct {
	Decision models.ApprovalStatus `json:"decision" validate:"required,oneof=approved rejected"`
	Actor    string                `json:"actor" validate:"required"`
	Note     string                `json:"note"`
}

// CreatePolicyRequest is the body of POST /v1/policies
type CreatePolicyRequest struct {
	ID          string                `json:"id" validate:"required"`
	Match       *models.MatchCriteria `json:"match" validate:"required"`
	Decision    models.Decision       `json:"decision" validate:"required,oneof=allow ask deny"`
	Description string                `json:"description"`
	Reason      string                `json:"reason"`
}

// Rule converts the request into a policy rule
func (req CreatePolicyRequest) Rule() models.PolicyRule {
	rule := models.PolicyRule{
		ID:          req.ID,
		Description: req.Description,
		Decision:    req.Decision,
		Reason:      req.Reason,
	}
	if req.Match != nil {
		rule.Match = req.Match.Clone()
	}
	return rule
}

func describeCreatePolicy(field string, cause error) string {
	switch {
	case field == "decision":
		return "decision must be allow, ask, or deny"
	case strings.HasPrefix(field, "match."):
		return "match is invalid: " + cause.Error()
	}
	return "id, match, and decision are required"
}

// UpdatePolicyRequest is the body of PUT /v1/policies/{id}. Absent fields
// are left untouched.
type UpdatePolicyRequest struct {
	Match       *models.MatchCriteria `json:"match"`
	Decision    *models.Decision      `json:"decision" validate:"omitnil,oneof=allow ask deny"`
	Description *string               `json:"description"`
	Reason      *string               `json:"reason"`
}

// Update converts the request into an engine update
func (req UpdatePolicyRequest) Update() policy.RuleUpdate {
	return policy.RuleUpdate{
		Match:       req.Match,
		Decision:    req.Decision,
		Description: req.Description,
		Reason:      req.Reason,
	}
}

func describeUpdatePolicy(field string, cause error) string {
	switch field {
	case "":
		return "Request body must be an object"
	case "decision":
		return "decision must be allow, ask, or deny"
	}
	return "invalid rule update: " + cause.Error()
}

// SanitizeRequest is the body of POST /v1/tool-results/sanitize
type SanitizeRequest struct {
	Output *string `json:"output" validate:"required"`
}

// OutboundRequest is the body of POST /v1/outbound/check
type OutboundRequest struct {
	Message *string `json:"message" validate:"required"`
}

// RouteModelRequest is the body of POST /v1/model-router/route
type RouteModelRequest struct {
	Prompt         *string `json:"prompt" validate:"required"`
	RequestedModel string  `json:"requestedModel"`
	// Metadata flags use loose truthiness, so they are read untyped
	Metadata any `json:"metadata"`
}

// RouteRequest converts the request for the router
func (req RouteModelRequest) RouteRequest() routing.RouteRequest {
	out := routing.RouteRequest{
		RequestedModel: req.RequestedModel,
		Metadata:       parseMetadata(req.Metadata),
	}
	if req.Prompt != nil {
		out.Prompt = *req.Prompt
	}
	return out
}

func describeRouteModel(field string, _ error) string {
	if field == "requestedModel" {
		return "requestedModel must be a string"
	}
	return "prompt is required"
}

// fixedMessage reports every binding failure with the same message
func fixedMessage(message string) func(string, error) string {
	return func(string, error) string { return message }
}

// bindJSON decodes the request body into dst and validates it. Failures
// become validation errors whose message describe picks from the first
// offending field, "" when the body itself is unusable.
func bindJSON(r *http.Request, dst any, describe func(field string, cause error) string) error {
	if err := utils.DecodeJSON(r, dst); err != nil {
		var typeErr *json.UnmarshalTypeError
		field := ""
		if errors.As(err, &typeErr) {
			field = typeErr.Field
		}
		return services.NewValidationError(describe(field, err))
	}

	if err := utils.ValidateStruct(dst); err != nil {
		verr := services.NewValidationError(describe(utils.GetValidationField(err), err))
		for field, msg := range utils.GetValidationFields(err) {
			verr.WithDetail(field, msg)
		}
		return verr
	}
	return nil
}
