package models

// Tier is a cost/capability class for model routing
type Tier string

const (
	TierLocal   Tier = "local"
	TierCheap   Tier = "cheap"
	TierPremium Tier = "premium"
)

// RouteDecision is the router's choice of tier and model for a prompt
type RouteDecision struct {
	Tier   Tier   `json:"tier"`
	Model  string `json:"model"`
	Reason string `json:"reason"`
}
