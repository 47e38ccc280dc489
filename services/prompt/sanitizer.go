// Package prompt redacts secrets from tool output, flags prompt-injection
// markers and gates outbound messages.
package prompt

import (
	"strings"

	"github.com/upb/agent-control-plane/internal/patterns"
	"go.uber.org/zap"
)

// RedactionMarker replaces every redacted match
const RedactionMarker = "[REDACTED]"

// Config lists the pattern sets the sanitizer applies. A nil slice selects
// the built-in catalog; an empty non-nil slice disables that check.
type Config struct {
	RedactionPatterns       []string `yaml:"redactionPatterns"`
	PromptInjectionPatterns []string `yaml:"promptInjectionPatterns"`
	DenyOutboundPatterns    []string `yaml:"denyOutboundPatterns"`
}

// SanitizeResult is the outcome of sanitizing a tool result
type SanitizeResult struct {
	Sanitized            string   `json:"sanitized"`
	Redactions           []string `json:"redactions"`
	PromptInjectionFlags []string `json:"promptInjectionFlags"`
}

// OutboundResult is the outcome of checking an outbound message
type OutboundResult struct {
	Allowed       bool     `json:"allowed"`
	Sanitized     string   `json:"sanitized"`
	DeniedPattern string   `json:"deniedPattern,omitempty"`
	Redactions    []string `json:"redactions"`
}

// Sanitizer applies the configured pattern sets
type Sanitizer struct {
	cfg      Config
	patterns *patterns.Cache
	logger   *zap.Logger
}

// NewSanitizer creates a sanitizer. cache may be nil.
func NewSanitizer(cfg Config, cache *patterns.Cache, logger *zap.Logger) *Sanitizer {
	if cfg.RedactionPatterns == nil {
		cfg.RedactionPatterns = DefaultRedactionPatterns
	}
	if cfg.PromptInjectionPatterns == nil {
		cfg.PromptInjectionPatterns = DefaultPromptInjectionPatterns
	}
	if cfg.DenyOutboundPatterns == nil {
		cfg.DenyOutboundPatterns = DefaultDenyOutboundPatterns
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sanitizer{cfg: cfg, patterns: cache, logger: logger}
}

// SanitizeToolResult redacts every redaction pattern in order, each applied
// to the output of the previous one, then records the injection markers
// still present in the result.
func (s *Sanitizer) SanitizeToolResult(text string) SanitizeResult {
	sanitized := text
	redactions := []string{}

	for _, pattern := range s.cfg.RedactionPatterns {
		re, err := s.patterns.Compile(pattern)
		if err != nil {
			s.logger.Warn("skipping invalid redaction pattern", zap.String("pattern", pattern), zap.Error(err))
			continue
		}
		if !re.MatchString(sanitized) {
			continue
		}
		redactions = append(redactions, pattern)
		sanitized = re.ReplaceAllLiteralString(sanitized, RedactionMarker)
	}

	return SanitizeResult{
		Sanitized:            sanitized,
		Redactions:           redactions,
		PromptInjectionFlags: containsAny(sanitized, s.cfg.PromptInjectionPatterns),
	}
}

// CheckOutboundMessage sanitizes message and blocks it when the sanitized
// text contains a deny pattern.
func (s *Sanitizer) CheckOutboundMessage(message string) OutboundResult {
	res := s.SanitizeToolResult(message)
	out := OutboundResult{
		Allowed:    true,
		Sanitized:  res.Sanitized,
		Redactions: res.Redactions,
	}

	if denied := containsAny(res.Sanitized, s.cfg.DenyOutboundPatterns); len(denied) > 0 {
		out.Allowed = false
		out.DeniedPattern = denied[0]
	}
	return out
}

// containsAny returns the patterns found in text as case-insensitive
// substrings, in configured order.
func containsAny(text string, list []string) []string {
	lower := strings.ToLower(text)
	found := []string{}
	for _, p := range list {
		if strings.Contains(lower, strings.ToLower(p)) {
			found = append(found, p)
		}
	}
	return found
}
