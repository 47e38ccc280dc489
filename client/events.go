package client

import (
	"fmt"
	"strings"

	"github.com/upb/agent-control-plane/models"
)

// Key aliases accepted in agent framework events, in lookup order
var (
	toolNameKeys  = []string{"toolName", "tool_name", "name"}
	nestedToolKey = []string{"tool", "call"}
	paramsKeys    = []string{"params", "arguments", "args", "input"}
	contextKeys   = []string{"context", "meta"}
	sessionKeys   = []string{"sessionId", "session_id"}
	userKeys      = []string{"userId", "user_id", "actorId"}
	messageKeys   = []string{"message", "text", "prompt"}

	// ToolOutputFields names the string field carrying a tool result
	ToolOutputFields = []string{"output", "result", "text"}
	// OutboundMessageFields names the string field carrying a reply
	OutboundMessageFields = []string{"message", "text", "content"}
)

// ExtractToolCall reads a tool call from a framework event. The name may sit
// at the root or under "tool"/"call"; params default to an empty object.
// Without a tool name it reports false, or an error when strict.
func ExtractToolCall(event any, strict bool) (models.ToolCallRecord, bool, error) {
	root, _ := event.(map[string]any)
	nested := pickObject(root, nestedToolKey)

	name := firstNonEmpty(pickString(root, toolNameKeys), pickString(nested, []string{"name", "toolName", "tool_name"}))
	if name == "" {
		if strict {
			return models.ToolCallRecord{}, false, fmt.Errorf("before_tool_call event missing tool name")
		}
		return models.ToolCallRecord{}, false, nil
	}

	params := pickObject(root, paramsKeys)
	if params == nil {
		params = pickObject(nested, paramsKeys)
	}
	if params == nil {
		params = map[string]any{}
	}

	meta := pickObject(root, contextKeys)
	lookup := func(keys []string) string {
		return firstNonEmpty(pickString(root, keys), pickString(meta, keys))
	}
	ctx := models.ToolCallContext{
		SessionID: lookup(sessionKeys),
		Channel:   lookup([]string{"channel"}),
		Source:    lookup([]string{"source"}),
		UserID:    lookup(userKeys),
		Message:   lookup(messageKeys),
	}

	call := models.ToolCallRecord{ToolName: name, Params: params}
	if ctx != (models.ToolCallContext{}) {
		call.Context = &ctx
	}
	return call, true, nil
}

// ExtractStringField returns the event itself when it is a string, or the
// first non-empty string under candidates. It reports false when nothing
// matches, or an error naming hook when strict.
func ExtractStringField(event any, candidates []string, strict bool, hook string) (string, bool, error) {
	if s, ok := event.(string); ok {
		return s, true, nil
	}
	root, _ := event.(map[string]any)
	if v := pickString(root, candidates); v != "" {
		return v, true, nil
	}
	if strict {
		return "", false, fmt.Errorf("%s event missing required string field: %s", hook, strings.Join(candidates, ", "))
	}
	return "", false, nil
}

// AssignStringField writes value back into event. A string event is
// replaced; a map has its first existing string candidate overwritten, or
// the first candidate added. Other events are returned unchanged.
func AssignStringField(event any, candidates []string, value string) any {
	if _, ok := event.(string); ok {
		return value
	}
	root, ok := event.(map[string]any)
	if !ok || root == nil || len(candidates) == 0 {
		return event
	}
	for _, key := range candidates {
		if _, isString := root[key].(string); isString {
			root[key] = value
			return root
		}
	}
	root[candidates[0]] = value
	return root
}

func pickString(src map[string]any, keys []string) string {
	for _, key := range keys {
		if s, ok := src[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func pickObject(src map[string]any, keys []string) map[string]any {
	for _, key := range keys {
		if obj, ok := src[key].(map[string]any); ok {
			return obj
		}
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
