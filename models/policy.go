package models

// Decision is the outcome assigned to a tool call by the policy engine
type Decision string

const (
	DecisionAllow Decision = "allow"
	DecisionAsk   Decision = "ask"
	DecisionDeny  Decision = "deny"
)

// IsValid reports whether d is one of allow, ask or deny
func (d Decision) IsValid() bool {
	switch d {
	case DecisionAllow, DecisionAsk, DecisionDeny:
		return true
	}
	return false
}

// MatchCriteria lists the optional dimensions a rule matches on.
// An empty criterion matches every call.
type MatchCriteria struct {
	ToolNames     []string `json:"toolNames,omitempty" yaml:"toolNames,omitempty"`
	Sources       []string `json:"sources,omitempty" yaml:"sources,omitempty"`
	Channels      []string `json:"channels,omitempty" yaml:"channels,omitempty"`
	CommandRegex  []string `json:"commandRegex,omitempty" yaml:"commandRegex,omitempty"`
	PathPrefixes  []string `json:"pathPrefixes,omitempty" yaml:"pathPrefixes,omitempty"`
	HostAllowlist []string `json:"hostAllowlist,omitempty" yaml:"hostAllowlist,omitempty"`
	HostDenylist  []string `json:"hostDenylist,omitempty" yaml:"hostDenylist,omitempty"`
}

// Clone returns a deep copy of the criteria
func (m MatchCriteria) Clone() MatchCriteria {
	return MatchCriteria{
		ToolNames:     cloneStrings(m.ToolNames),
		Sources:       cloneStrings(m.Sources),
		Channels:      cloneStrings(m.Channels),
		CommandRegex:  cloneStrings(m.CommandRegex),
		PathPrefixes:  cloneStrings(m.PathPrefixes),
		HostAllowlist: cloneStrings(m.HostAllowlist),
		HostDenylist:  cloneStrings(m.HostDenylist),
	}
}

// PolicyRule is one entry of the ordered rule list. Priority is list order.
type PolicyRule struct {
	ID          string        `json:"id" yaml:"id"`
	Description string        `json:"description,omitempty" yaml:"description,omitempty"`
	Match       MatchCriteria `json:"match" yaml:"match"`
	Decision    Decision      `json:"decision" yaml:"decision"`
	Reason      string        `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// Clone returns a deep copy of the rule
func (r PolicyRule) Clone() PolicyRule {
	r.Match = r.Match.Clone()
	return r
}

// PolicyDecision is the result of evaluating a tool call against the rule list
type PolicyDecision struct {
	Decision Decision `json:"decision"`
	RuleID   string   `json:"ruleId,omitempty"`
	Reason   string   `json:"reason"`
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
