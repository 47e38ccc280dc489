package routing

import (
	"unicode/utf8"

	"github.com/upb/agent-control-plane/models"
)

// CostEstimate is the audit payload describing the price of a routed prompt
type CostEstimate struct {
	PromptLength          int
	EstimatedTokens       int
	TierCostPerMillion    float64
	PremiumCostPerMillion float64
}

// EstimateCost approximates token usage at four characters per token
func EstimateCost(cfg Config, tier models.Tier, prompt string) CostEstimate {
	n := utf8.RuneCountInString(prompt)
	return CostEstimate{
		PromptLength:          n,
		EstimatedTokens:       (n + 3) / 4,
		TierCostPerMillion:    cfg.CostPerMillion(tier),
		PremiumCostPerMillion: cfg.Premium.CostPerMillionTokens,
	}
}

// AuditPayload renders the decision and estimate as a model_routed payload
func (e CostEstimate) AuditPayload(decision models.RouteDecision) map[string]any {
	return map[string]any{
		"tier":                  string(decision.Tier),
		"model":                 decision.Model,
		"reason":                decision.Reason,
		"promptLength":          e.PromptLength,
		"estimatedTokens":       e.EstimatedTokens,
		"tierCostPerMillion":    e.TierCostPerMillion,
		"premiumCostPerMillion": e.PremiumCostPerMillion,
	}
}
