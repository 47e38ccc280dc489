package client

import "context"

// Hooks adapts the client to an agent framework's lifecycle hooks. Events
// are loosely typed maps or strings; each hook returns the event to pass on.
type Hooks struct {
	client *Client
	strict bool
}

// NewHooks binds hooks to c using c's Strict setting
func NewHooks(c *Client) *Hooks {
	return &Hooks{client: c, strict: c.cfg.Strict}
}

// BeforeToolCall enforces policy on the tool call inside event. Events
// without a tool name pass through unless strict.
func (h *Hooks) BeforeToolCall(ctx context.Context, event any) (any, error) {
	call, ok, err := ExtractToolCall(event, h.strict)
	if err != nil || !ok {
		return event, err
	}
	if err := h.client.EnforceToolCallPolicy(ctx, call); err != nil {
		return nil, err
	}
	return event, nil
}

// ToolResultPersist replaces the tool output in event with its sanitized form
func (h *Hooks) ToolResultPersist(ctx context.Context, event any) (any, error) {
	output, ok, err := ExtractStringField(event, ToolOutputFields, h.strict, "tool_result_persist")
	if err != nil || !ok {
		return event, err
	}
	sanitized, err := h.client.SanitizeToolOutput(ctx, output)
	if err != nil {
		return nil, err
	}
	return AssignStringField(event, ToolOutputFields, sanitized), nil
}

// MessageSending blocks denied replies and redacts the rest
func (h *Hooks) MessageSending(ctx context.Context, event any) (any, error) {
	message, ok, err := ExtractStringField(event, OutboundMessageFields, h.strict, "message_sending")
	if err != nil || !ok {
		return event, err
	}
	sanitized, err := h.client.ValidateOutboundMessage(ctx, message)
	if err != nil {
		return nil, err
	}
	return AssignStringField(event, OutboundMessageFields, sanitized), nil
}
