// Package routing classifies prompts into cost tiers and forwards chat
// completion requests to the upstream provider for the chosen tier.
package routing

import (
	"fmt"
	"time"

	"github.com/upb/agent-control-plane/models"
)

const (
	defaultChatCompletionsPath = "/chat/completions"
	defaultRequestTimeoutMs    = 30000
	defaultMaxConcurrent       = 64
)

// LocalTier is the on-box model used for heartbeat traffic
type LocalTier struct {
	Model                string   `yaml:"model"`
	MaxPromptChars       int      `yaml:"maxPromptChars"`
	HeartbeatKeywords    []string `yaml:"heartbeatKeywords"`
	CostPerMillionTokens float64  `yaml:"costPerMillionTokens"`
}

// CloudTier is a hosted model class
type CloudTier struct {
	Model                string  `yaml:"model"`
	CostPerMillionTokens float64 `yaml:"costPerMillionTokens"`
}

// Provider is an OpenAI-compatible upstream endpoint
type Provider struct {
	BaseURL             string            `yaml:"baseUrl"`
	ChatCompletionsPath string            `yaml:"chatCompletionsPath"`
	APIKeyEnv           string            `yaml:"apiKeyEnv"`
	StaticHeaders       map[string]string `yaml:"staticHeaders"`
}

// Providers maps every tier to its upstream
type Providers struct {
	Local            Provider `yaml:"local"`
	Cheap            Provider `yaml:"cheap"`
	Premium          Provider `yaml:"premium"`
	RequestTimeoutMs int      `yaml:"requestTimeoutMs"`
	MaxConcurrent    int      `yaml:"maxConcurrent"`
}

// Complexity holds the heuristics that separate premium from cheap prompts
type Complexity struct {
	PremiumPromptChars int      `yaml:"premiumPromptChars"`
	PremiumKeywords    []string `yaml:"premiumKeywords"`
	CheapKeywords      []string `yaml:"cheapKeywords"`
}

// Config is the routing section of the control-plane configuration
type Config struct {
	Local      LocalTier  `yaml:"local"`
	Cheap      CloudTier  `yaml:"cheap"`
	Premium    CloudTier  `yaml:"premium"`
	Providers  Providers  `yaml:"providers"`
	Complexity Complexity `yaml:"complexity"`
}

// DefaultConfig returns a routing setup pointing at a local Ollama instance
// and OpenAI for the cloud tiers.
func DefaultConfig() Config {
	return Config{
		Local: LocalTier{
			Model:             "llama3.2:3b",
			MaxPromptChars:    2000,
			HeartbeatKeywords: []string{"heartbeat", "status check", "ping"},
		},
		Cheap:   CloudTier{Model: "gpt-4o-mini", CostPerMillionTokens: 0.6},
		Premium: CloudTier{Model: "gpt-4o", CostPerMillionTokens: 10},
		Providers: Providers{
			Local:            Provider{BaseURL: "http://127.0.0.1:11434/v1"},
			Cheap:            Provider{BaseURL: "https://api.openai.com/v1", APIKeyEnv: "OPENAI_API_KEY"},
			Premium:          Provider{BaseURL: "https://api.openai.com/v1", APIKeyEnv: "OPENAI_API_KEY"},
			RequestTimeoutMs: defaultRequestTimeoutMs,
			MaxConcurrent:    defaultMaxConcurrent,
		},
		Complexity: Complexity{
			PremiumPromptChars: 4000,
			PremiumKeywords:    []string{"architecture", "refactor", "prove", "security review"},
			CheapKeywords:      []string{"summarize", "translate", "format"},
		},
	}
}

// Validate checks that every tier names a model and an upstream
func (c Config) Validate() error {
	tiers := []struct {
		tier     models.Tier
		model    string
		provider Provider
	}{
		{models.TierLocal, c.Local.Model, c.Providers.Local},
		{models.TierCheap, c.Cheap.Model, c.Providers.Cheap},
		{models.TierPremium, c.Premium.Model, c.Providers.Premium},
	}
	for _, t := range tiers {
		if t.model == "" {
			return fmt.Errorf("routing.%s.model is required", t.tier)
		}
		if t.provider.BaseURL == "" {
			return fmt.Errorf("routing.providers.%s.baseUrl is required", t.tier)
		}
	}
	if c.Providers.RequestTimeoutMs < 0 {
		return fmt.Errorf("routing.providers.requestTimeoutMs must not be negative")
	}
	if c.Complexity.PremiumPromptChars < 0 {
		return fmt.Errorf("routing.complexity.premiumPromptChars must not be negative")
	}
	return nil
}

// RequestTimeout returns the hard upstream timeout
func (c Config) RequestTimeout() time.Duration {
	ms := c.Providers.RequestTimeoutMs
	if ms <= 0 {
		ms = defaultRequestTimeoutMs
	}
	return time.Duration(ms) * time.Millisecond
}

func (c Config) provider(tier models.Tier) Provider {
	switch tier {
	case models.TierLocal:
		return c.Providers.Local
	case models.TierPremium:
		return c.Providers.Premium
	default:
		return c.Providers.Cheap
	}
}

// CostPerMillion returns the configured per-million-token price of tier
func (c Config) CostPerMillion(tier models.Tier) float64 {
	switch tier {
	case models.TierLocal:
		return c.Local.CostPerMillionTokens
	case models.TierPremium:
		return c.Premium.CostPerMillionTokens
	default:
		return c.Cheap.CostPerMillionTokens
	}
}
