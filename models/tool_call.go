package models

// ToolCallContext carries optional routing hints about where a tool call came from
type ToolCallContext struct {
	SessionID string `json:"sessionId,omitempty" yaml:"sessionId,omitempty"`
	Channel   string `json:"channel,omitempty" yaml:"channel,omitempty"`
	Source    string `json:"source,omitempty" yaml:"source,omitempty"`
	UserID    string `json:"userId,omitempty" yaml:"userId,omitempty"`
	Message   string `json:"message,omitempty" yaml:"message,omitempty"`
}

// ToolCallRecord is a structured action request from an agent, evaluated before execution
type ToolCallRecord struct {
	ToolName string           `json:"toolName"`
	Params   map[string]any   `json:"params"`
	Context  *ToolCallContext `json:"context,omitempty"`
}

// Source returns the context source or an empty string
func (c ToolCallRecord) Source() string {
	if c.Context == nil {
		return ""
	}
	return c.Context.Source
}

// Channel returns the context channel or an empty string
func (c ToolCallRecord) Channel() string {
	if c.Context == nil {
		return ""
	}
	return c.Context.Channel
}

// Message returns the context message or an empty string
func (c ToolCallRecord) Message() string {
	if c.Context == nil {
		return ""
	}
	return c.Context.Message
}
