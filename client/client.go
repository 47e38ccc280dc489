// Package client talks to a running control plane on behalf of an agent
// framework: it intercepts tool calls, waits on approvals and sanitizes
// what flows in and out of the agent.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/upb/agent-control-plane/models"
	"github.com/upb/agent-control-plane/services/prompt"
	"github.com/upb/agent-control-plane/services/routing"
	"go.uber.org/zap"
)

// InterceptResponse is the server's verdict on a tool call
type InterceptResponse struct {
	Decision   models.Decision `json:"decision"`
	Reason     string          `json:"reason"`
	RuleID     string          `json:"ruleId,omitempty"`
	ApprovalID string          `json:"approvalId,omitempty"`
	ExpiresAt  string          `json:"expiresAt,omitempty"`
}

// Client is safe for concurrent use
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger
}

// Option customizes a Client
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// WithLogger sets the logger; the default discards everything
func WithLogger(l *zap.Logger) Option {
	return func(cl *Client) { cl.logger = l }
}

// New creates a client. cfg is copied and normalized.
func New(cfg Config, opts ...Option) *Client {
	c := &Client{
		cfg:        cfg.normalized(),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Config returns the effective configuration
func (c *Client) Config() Config {
	return c.cfg
}

// InterceptToolCall submits call for a policy decision
func (c *Client) InterceptToolCall(ctx context.Context, call models.ToolCallRecord) (InterceptResponse, error) {
	if call.Params == nil {
		call.Params = map[string]any{}
	}
	var resp InterceptResponse
	err := c.do(ctx, http.MethodPost, "/v1/tool-calls/intercept", call, &resp)
	return resp, err
}

// EnforceToolCallPolicy returns nil only when call may run. An ask decision
// blocks until the approval is decided, ctx is done or the poll times out.
func (c *Client) EnforceToolCallPolicy(ctx context.Context, call models.ToolCallRecord) error {
	verdict, err := c.InterceptToolCall(ctx, call)
	if err != nil {
		return err
	}

	switch verdict.Decision {
	case models.DecisionAllow:
		return nil
	case models.DecisionDeny:
		return &PolicyDeniedError{Reason: verdict.Reason, RuleID: verdict.RuleID}
	}

	if verdict.ApprovalID == "" {
		return &PolicyDeniedError{Reason: "Approval required but approval id missing", RuleID: verdict.RuleID}
	}

	c.logger.Info("waiting for approval",
		zap.String("approval_id", verdict.ApprovalID),
		zap.String("tool", call.ToolName))

	approval, err := c.WaitForApproval(ctx, verdict.ApprovalID)
	if err != nil {
		return err
	}
	if approval.Status != models.ApprovalStatusApproved {
		return &NotApprovedError{ApprovalID: approval.ID, Status: approval.Status, DecidedBy: approval.DecidedBy}
	}
	return nil
}

// GetApproval fetches one approval
func (c *Client) GetApproval(ctx context.Context, id string) (models.ApprovalRequest, error) {
	var approval models.ApprovalRequest
	err := c.do(ctx, http.MethodGet, "/v1/approvals/"+url.PathEscape(id), nil, &approval)
	return approval, err
}

// WaitForApproval polls the approval until it leaves pending. It returns
// *ApprovalTimeoutError after the configured poll timeout and ctx.Err()
// when ctx ends first.
func (c *Client) WaitForApproval(ctx context.Context, id string) (models.ApprovalRequest, error) {
	deadline := time.Now().Add(c.cfg.PollTimeout)
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return models.ApprovalRequest{}, ctx.Err()
		case <-timer.C:
		}

		approval, err := c.GetApproval(ctx, id)
		if err != nil {
			return models.ApprovalRequest{}, err
		}
		if approval.Status != models.ApprovalStatusPending {
			return approval, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return models.ApprovalRequest{}, &ApprovalTimeoutError{ApprovalID: id, Timeout: c.cfg.PollTimeout}
		}
		timer.Reset(min(c.cfg.PollInterval, remaining))
	}
}

// SanitizeToolResult returns the server's full sanitization result
func (c *Client) SanitizeToolResult(ctx context.Context, output string) (prompt.SanitizeResult, error) {
	var res prompt.SanitizeResult
	err := c.do(ctx, http.MethodPost, "/v1/tool-results/sanitize", map[string]string{"output": output}, &res)
	return res, err
}

// SanitizeToolOutput returns output with secrets redacted
func (c *Client) SanitizeToolOutput(ctx context.Context, output string) (string, error) {
	res, err := c.SanitizeToolResult(ctx, output)
	if err != nil {
		return "", err
	}
	if len(res.PromptInjectionFlags) > 0 {
		c.logger.Warn("tool output flagged for prompt injection",
			zap.Strings("flags", res.PromptInjectionFlags))
	}
	return res.Sanitized, nil
}

// CheckOutboundMessage returns the server's full outbound verdict
func (c *Client) CheckOutboundMessage(ctx context.Context, message string) (prompt.OutboundResult, error) {
	var res prompt.OutboundResult
	err := c.do(ctx, http.MethodPost, "/v1/outbound/check", map[string]string{"message": message}, &res)
	return res, err
}

// ValidateOutboundMessage returns the sanitized message, or
// *OutboundBlockedError when a deny pattern matched
func (c *Client) ValidateOutboundMessage(ctx context.Context, message string) (string, error) {
	res, err := c.CheckOutboundMessage(ctx, message)
	if err != nil {
		return "", err
	}
	if !res.Allowed {
		return "", &OutboundBlockedError{Pattern: res.DeniedPattern}
	}
	return res.Sanitized, nil
}

// RouteModel asks the router which tier and model would serve req
func (c *Client) RouteModel(ctx context.Context, req routing.RouteRequest) (models.RouteDecision, error) {
	var decision models.RouteDecision
	err := c.do(ctx, http.MethodPost, "/v1/model-router/route", req, &decision)
	return decision, err
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("x-api-key", c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("control plane request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errBody struct {
			Error string `json:"error"`
		}
		message := http.StatusText(resp.StatusCode)
		if json.Unmarshal(raw, &errBody) == nil && errBody.Error != "" {
			message = errBody.Error
		}
		return &RequestError{StatusCode: resp.StatusCode, Message: message}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
