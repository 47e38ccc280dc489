package policy

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/upb/agent-control-plane/internal/fsutil"
	"github.com/upb/agent-control-plane/internal/patterns"
	"github.com/upb/agent-control-plane/models"
	"github.com/upb/agent-control-plane/services"
	"go.uber.org/zap"
)

const noMatchReason = "No rule matched; default decision applied"

// Config holds the engine's initial rule set
type Config struct {
	DefaultDecision models.Decision
	Rules           []models.PolicyRule
	// OverridesPath is the JSON array file that replaces Rules when present.
	// Empty disables persistence.
	OverridesPath string
}

// RuleUpdate carries the fields of a rule that an update may change.
// Nil fields are left untouched.
type RuleUpdate struct {
	Match       *models.MatchCriteria `json:"match,omitempty"`
	Decision    *models.Decision      `json:"decision,omitempty"`
	Description *string               `json:"description,omitempty"`
	Reason      *string               `json:"reason,omitempty"`
}

// Engine owns the ordered rule list and the overrides file
type Engine struct {
	mu              sync.RWMutex
	rules           []models.PolicyRule
	defaultDecision models.Decision
	overridesPath   string
	matcher         *Matcher
	logger          *zap.Logger
}

// NewEngine creates an engine from cfg. A readable overrides file that
// parses to a valid rule array replaces cfg.Rules entirely; anything else
// in that file is logged and ignored.
func NewEngine(cfg Config, matcher *Matcher, logger *zap.Logger) *Engine {
	if matcher == nil {
		matcher = NewMatcher(nil, logger)
	}
	e := &Engine{
		rules:           cloneRules(cfg.Rules),
		defaultDecision: cfg.DefaultDecision,
		overridesPath:   cfg.OverridesPath,
		matcher:         matcher,
		logger:          logger,
	}
	if !e.defaultDecision.IsValid() {
		e.defaultDecision = models.DecisionAsk
	}

	if overrides, ok := e.loadOverrides(); ok {
		e.rules = overrides
		logger.Info("policy overrides loaded",
			zap.String("path", e.overridesPath),
			zap.Int("rules", len(overrides)))
	}
	return e
}

func (e *Engine) loadOverrides() ([]models.PolicyRule, bool) {
	if e.overridesPath == "" {
		return nil, false
	}

	data, err := os.ReadFile(e.overridesPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			e.logger.Warn("failed to read policy overrides", zap.String("path", e.overridesPath), zap.Error(err))
		}
		return nil, false
	}

	var rules []models.PolicyRule
	if err := json.Unmarshal(data, &rules); err != nil {
		e.logger.Warn("ignoring unparsable policy overrides", zap.String("path", e.overridesPath), zap.Error(err))
		return nil, false
	}
	if rules == nil {
		// "null" is not an array
		return nil, false
	}
	for _, r := range rules {
		if err := ValidateRule(r); err != nil {
			e.logger.Warn("ignoring policy overrides with invalid rule",
				zap.String("path", e.overridesPath),
				zap.String("rule_id", r.ID),
				zap.Error(err))
			return nil, false
		}
	}
	return rules, true
}

// Decide returns the decision of the first rule matching call, or the default decision
func (e *Engine) Decide(call models.ToolCallRecord) models.PolicyDecision {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, rule := range e.rules {
		if !e.matcher.Matches(rule.Match, call) {
			continue
		}
		return models.PolicyDecision{
			Decision: rule.Decision,
			RuleID:   rule.ID,
			Reason:   ruleReason(rule),
		}
	}

	return models.PolicyDecision{
		Decision: e.defaultDecision,
		Reason:   noMatchReason,
	}
}

func ruleReason(rule models.PolicyRule) string {
	switch {
	case rule.Reason != "":
		return rule.Reason
	case rule.Description != "":
		return rule.Description
	default:
		return fmt.Sprintf("Matched rule %s", rule.ID)
	}
}

// DefaultDecision returns the decision applied when no rule matches
func (e *Engine) DefaultDecision() models.Decision {
	return e.defaultDecision
}

// Rules returns a copy of the active rule list in priority order
func (e *Engine) Rules() []models.PolicyRule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return cloneRules(e.rules)
}

// Rule returns a copy of the rule with the given id
func (e *Engine) Rule(id string) (models.PolicyRule, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	idx := e.indexLocked(id)
	if idx < 0 {
		return models.PolicyRule{}, services.NewRuleNotFoundError(id)
	}
	return e.rules[idx].Clone(), nil
}

// AddRule appends rule at the lowest priority and persists the rule list
func (e *Engine) AddRule(rule models.PolicyRule) error {
	if err := ValidateRule(rule); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.indexLocked(rule.ID) >= 0 {
		return services.NewDuplicateRuleError(rule.ID)
	}

	next := append(cloneRules(e.rules), rule.Clone())
	return e.commitLocked(next)
}

// UpdateRule changes the supplied fields of rule id, persists, and returns a copy
func (e *Engine) UpdateRule(id string, update RuleUpdate) (models.PolicyRule, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	idx := e.indexLocked(id)
	if idx < 0 {
		return models.PolicyRule{}, services.NewRuleNotFoundError(id)
	}

	updated := e.rules[idx].Clone()
	if update.Match != nil {
		updated.Match = update.Match.Clone()
	}
	if update.Decision != nil {
		updated.Decision = *update.Decision
	}
	if update.Description != nil {
		updated.Description = *update.Description
	}
	if update.Reason != nil {
		updated.Reason = *update.Reason
	}
	if err := ValidateRule(updated); err != nil {
		return models.PolicyRule{}, err
	}

	next := cloneRules(e.rules)
	next[idx] = updated
	if err := e.commitLocked(next); err != nil {
		return models.PolicyRule{}, err
	}
	return updated.Clone(), nil
}

// DeleteRule removes rule id and persists the rule list
func (e *Engine) DeleteRule(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	idx := e.indexLocked(id)
	if idx < 0 {
		return services.NewRuleNotFoundError(id)
	}

	next := make([]models.PolicyRule, 0, len(e.rules)-1)
	next = append(next, cloneRules(e.rules[:idx])...)
	next = append(next, cloneRules(e.rules[idx+1:])...)
	return e.commitLocked(next)
}

// commitLocked persists next and only then makes it the active list
func (e *Engine) commitLocked(next []models.PolicyRule) error {
	if e.overridesPath != "" {
		if err := fsutil.WriteJSONAtomic(e.overridesPath, next); err != nil {
			e.logger.Error("failed to persist policy overrides",
				zap.String("path", e.overridesPath),
				zap.Error(err))
			return services.WrapInternal("failed to persist policy rules", err)
		}
	}
	e.rules = next
	return nil
}

func (e *Engine) indexLocked(id string) int {
	for i, r := range e.rules {
		if r.ID == id {
			return i
		}
	}
	return -1
}

// ValidateRule checks that a rule has an id, a known decision and compilable patterns
func ValidateRule(rule models.PolicyRule) error {
	if rule.ID == "" {
		return services.NewValidationError("id, match, and decision are required")
	}
	if !rule.Decision.IsValid() {
		return services.NewValidationError("decision must be allow, ask, or deny")
	}
	if err := patterns.Validate(rule.Match.CommandRegex); err != nil {
		return services.NewValidationError(fmt.Sprintf("rule '%s' has an invalid commandRegex: %v", rule.ID, err))
	}
	return nil
}

func cloneRules(in []models.PolicyRule) []models.PolicyRule {
	out := make([]models.PolicyRule, len(in))
	for i, r := range in {
		out[i] = r.Clone()
	}
	return out
}
