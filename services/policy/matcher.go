package policy

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"slices"
	"strings"

	"github.com/upb/agent-control-plane/internal/patterns"
	"github.com/upb/agent-control-plane/models"
	"go.uber.org/zap"
)

// homeDir is the expansion target for "~/" path candidates and prefixes
const homeDir = "/home/user"

var pathToken = regexp.MustCompile(`^~?/?[\w./-]+/?$`)

// Matcher decides whether a tool call satisfies a rule's criteria.
// It holds no state besides the compiled pattern cache.
type Matcher struct {
	patterns *patterns.Cache
	logger   *zap.Logger
}

// NewMatcher creates a matcher. cache may be nil.
func NewMatcher(cache *patterns.Cache, logger *zap.Logger) *Matcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Matcher{patterns: cache, logger: logger}
}

// Matches reports whether call satisfies every criterion present in criteria
func (m *Matcher) Matches(criteria models.MatchCriteria, call models.ToolCallRecord) bool {
	if len(criteria.ToolNames) > 0 && !slices.Contains(criteria.ToolNames, call.ToolName) {
		return false
	}

	if len(criteria.Sources) > 0 && !slices.Contains(criteria.Sources, call.Source()) {
		return false
	}

	if len(criteria.Channels) > 0 && !slices.Contains(criteria.Channels, call.Channel()) {
		return false
	}

	if len(criteria.CommandRegex) > 0 && !m.matchesCommand(criteria.CommandRegex, commandText(call)) {
		return false
	}

	if len(criteria.PathPrefixes) > 0 && !matchesPathPrefix(criteria.PathPrefixes, pathCandidates(call.Params)) {
		return false
	}

	host, hasHost := extractHost(call.Params)
	if len(criteria.HostAllowlist) > 0 {
		if !hasHost || !hostInList(host, criteria.HostAllowlist) {
			return false
		}
	}

	// A denylisted host never matches, even if the allowlist accepted it.
	if len(criteria.HostDenylist) > 0 && hasHost && hostInList(host, criteria.HostDenylist) {
		return false
	}

	return true
}

func (m *Matcher) matchesCommand(list []string, text string) bool {
	for _, p := range list {
		re, err := m.patterns.Compile(p)
		if err != nil {
			m.logger.Warn("skipping invalid command pattern", zap.String("pattern", p), zap.Error(err))
			continue
		}
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// commandText is params.command when present, else the context message
func commandText(call models.ToolCallRecord) string {
	if v, ok := call.Params["command"]; ok && v != nil {
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprint(v)
	}
	return call.Message()
}

// NormalizePath expands a leading "~/" and cleans the path, keeping a trailing slash
func NormalizePath(p string) string {
	if strings.HasPrefix(p, "~/") {
		p = homeDir + "/" + p[2:]
	}
	cleaned := path.Clean(p)
	if strings.HasSuffix(p, "/") && cleaned != "/" {
		cleaned += "/"
	}
	return cleaned
}

// pathCandidates collects normalized paths from params.path, params.paths and
// slash-bearing tokens of params.command, without duplicates
func pathCandidates(params map[string]any) []string {
	var raw []string

	if p, ok := params["path"].(string); ok {
		raw = append(raw, p)
	}

	if list, ok := params["paths"].([]any); ok {
		for _, item := range list {
			if p, ok := item.(string); ok {
				raw = append(raw, p)
			}
		}
	} else if list, ok := params["paths"].([]string); ok {
		raw = append(raw, list...)
	}

	if cmd, ok := params["command"].(string); ok {
		for _, token := range strings.Fields(cmd) {
			if strings.Contains(token, "/") && pathToken.MatchString(token) {
				raw = append(raw, token)
			}
		}
	}

	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, NormalizePath(p))
	}
	return out
}

func matchesPathPrefix(prefixes, candidates []string) bool {
	for _, c := range candidates {
		for _, prefix := range prefixes {
			if strings.HasPrefix(c, NormalizePath(prefix)) {
				return true
			}
		}
	}
	return false
}

// extractHost prefers params.host, then the hostname of params.url
func extractHost(params map[string]any) (string, bool) {
	if h, ok := params["host"].(string); ok {
		return strings.ToLower(h), true
	}

	raw, ok := params["url"].(string)
	if !ok {
		return "", false
	}
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return "", false
	}
	return strings.ToLower(u.Hostname()), true
}

// hostInList reports an exact or subdomain match of host against list
func hostInList(host string, list []string) bool {
	for _, entry := range list {
		entry = strings.ToLower(entry)
		if host == entry || strings.HasSuffix(host, "."+entry) {
			return true
		}
	}
	return false
}
