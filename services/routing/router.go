package routing

import (
	"strings"
	"unicode/utf8"

	"github.com/upb/agent-control-plane/models"
)

// Route reasons
const (
	ReasonHeartbeat = "Heartbeat or routine status prompt routed to local model"
	ReasonPremium   = "High-complexity prompt routed to premium model"
	ReasonCheap     = "Routine prompt routed to low-cost cloud model"
	ReasonDefault   = "Default cloud route"
)

// RouteMetadata carries caller hints about the prompt
type RouteMetadata struct {
	IsHeartbeat bool   `json:"isHeartbeat,omitempty"`
	TaskType    string `json:"taskType,omitempty"`
}

// RouteRequest is the input to Router.Route
type RouteRequest struct {
	Prompt         string         `json:"prompt"`
	Metadata       *RouteMetadata `json:"metadata,omitempty"`
	RequestedModel string         `json:"requestedModel,omitempty"`
}

// Router picks a tier and model for a prompt. It is stateless.
type Router struct {
	cfg Config
}

func NewRouter(cfg Config) *Router {
	return &Router{cfg: cfg}
}

// Config returns the routing configuration the router was built with
func (r *Router) Config() Config {
	return r.cfg
}

// Route classifies req. Heartbeats go local; long prompts or premium
// keywords go premium; everything else goes cheap.
func (r *Router) Route(req RouteRequest) models.RouteDecision {
	lower := strings.ToLower(req.Prompt)

	if req.isHeartbeat() || containsKeyword(lower, r.cfg.Local.HeartbeatKeywords) {
		return models.RouteDecision{Tier: models.TierLocal, Model: r.cfg.Local.Model, Reason: ReasonHeartbeat}
	}

	if r.longPrompt(req.Prompt) || containsKeyword(lower, r.cfg.Complexity.PremiumKeywords) {
		model := r.cfg.Premium.Model
		if req.RequestedModel != "" {
			model = req.RequestedModel
		}
		return models.RouteDecision{Tier: models.TierPremium, Model: model, Reason: ReasonPremium}
	}

	if containsKeyword(lower, r.cfg.Complexity.CheapKeywords) {
		return models.RouteDecision{Tier: models.TierCheap, Model: r.cfg.Cheap.Model, Reason: ReasonCheap}
	}
	return models.RouteDecision{Tier: models.TierCheap, Model: r.cfg.Cheap.Model, Reason: ReasonDefault}
}

// longPrompt applies the premium length threshold; zero disables it
func (r *Router) longPrompt(prompt string) bool {
	limit := r.cfg.Complexity.PremiumPromptChars
	return limit > 0 && utf8.RuneCountInString(prompt) >= limit
}

func (req RouteRequest) isHeartbeat() bool {
	return req.Metadata != nil && (req.Metadata.IsHeartbeat || req.Metadata.TaskType == "heartbeat")
}

// containsKeyword reports whether lower contains any keyword, ignoring case
func containsKeyword(lower string, keywords []string) bool {
	for _, k := range keywords {
		if k != "" && strings.Contains(lower, strings.ToLower(k)) {
			return true
		}
	}
	return false
}
