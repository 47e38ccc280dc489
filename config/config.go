package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/upb/agent-control-plane/internal/patterns"
	"github.com/upb/agent-control-plane/models"
	"github.com/upb/agent-control-plane/services/policy"
	"github.com/upb/agent-control-plane/services/prompt"
	"github.com/upb/agent-control-plane/services/ratelimit"
	"github.com/upb/agent-control-plane/services/routing"
	"github.com/upb/agent-control-plane/utils"
	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is read when CONFIG_PATH is unset. Its absence means
// built-in defaults.
const DefaultConfigPath = "config/control-plane.yaml"

// Config represents the complete application configuration
type Config struct {
	Environment         string              `yaml:"environment"`
	Server              ServerConfig        `yaml:"server"`
	Auth                AuthConfig          `yaml:"auth"`
	Approvals           ApprovalsConfig     `yaml:"approvals"`
	Audit               AuditConfig         `yaml:"audit"`
	Policy              PolicyConfig        `yaml:"policy"`
	PolicyOverridesPath string              `yaml:"policyOverridesPath"`
	Routing             routing.Config      `yaml:"routing"`
	RateLimit           *ratelimit.Config   `yaml:"rateLimit"`
	Observability       ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	// TrustProxyHeaders takes the client address from X-Forwarded-For and
	// X-Real-IP. Enable only behind a proxy that overwrites them.
	TrustProxyHeaders bool `yaml:"trustProxyHeaders"`
}

// AuthConfig holds the optional shared API key guard
type AuthConfig struct {
	Required   bool   `yaml:"required"`
	APIKeyEnv  string `yaml:"apiKeyEnv"`
	HeaderName string `yaml:"headerName"`
}

// ApprovalsConfig holds the approval store settings
type ApprovalsConfig struct {
	TTLMs       int    `yaml:"ttlMs" validate:"gt=0"`
	PersistPath string `yaml:"persistPath" validate:"required"`
}

// AuditConfig holds the audit store settings. Zero MaxFileSizeBytes and
// RetentionDays disable rotation and pruning.
type AuditConfig struct {
	PersistPath       string `yaml:"persistPath" validate:"required"`
	MaxInMemoryEvents int    `yaml:"maxInMemoryEvents" validate:"min=1"`
	MaxFileSizeBytes  int64  `yaml:"maxFileSizeBytes" validate:"gte=0"`
	RetentionDays     int    `yaml:"retentionDays" validate:"gte=0"`
}

// PolicyConfig holds the initial rule set and the sanitizer pattern lists
type PolicyConfig struct {
	DefaultDecision models.Decision     `yaml:"defaultDecision" validate:"oneof=allow ask deny"`
	Rules           []models.PolicyRule `yaml:"rules"`
	Sanitizer       prompt.Config       `yaml:",inline"`
}

// ObservabilityConfig holds logging and metrics configuration
type ObservabilityConfig struct {
	LogLevel       string `yaml:"logLevel" validate:"oneof=debug info warn error"`
	LogFormat      string `yaml:"logFormat" validate:"oneof=json text console"`
	MetricsEnabled bool   `yaml:"metricsEnabled"`
}

// Defaults returns the configuration used when no file is present
func Defaults() Config {
	return Config{
		Environment: "development",
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            3000,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 5 * time.Second,
		},
		Auth: AuthConfig{
			APIKeyEnv:  "CONTROL_PLANE_API_KEY",
			HeaderName: "x-api-key",
		},
		Approvals: ApprovalsConfig{
			TTLMs:       900000,
			PersistPath: "data/approvals.json",
		},
		Audit: AuditConfig{
			PersistPath:       "data/audit.log",
			MaxInMemoryEvents: 5000,
		},
		Policy: PolicyConfig{
			DefaultDecision: models.DecisionAsk,
		},
		PolicyOverridesPath: "data/policy-overrides.json",
		Routing:             routing.DefaultConfig(),
		Observability: ObservabilityConfig{
			LogLevel:       "info",
			LogFormat:      "json",
			MetricsEnabled: true,
		},
	}
}

// New loads .env, the config file named by CONFIG_PATH and the environment
// overrides, then validates the result
func New(ctx context.Context) (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := Defaults()

	path, explicit := os.LookupEnv("CONFIG_PATH")
	if !explicit || path == "" {
		path = DefaultConfigPath
		explicit = false
	}
	if err := loadFile(path, &cfg); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadFile decodes a YAML (or JSON) file over cfg. Keys absent from the
// file keep their defaults.
func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Environment = getEnv("ENVIRONMENT", cfg.Environment)

	// A platform-assigned PORT implies listening on all interfaces
	if value := os.Getenv("PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			cfg.Server.Port = p
			cfg.Server.Host = "0.0.0.0"
		}
	} else {
		cfg.Server.Port = getEnvAsInt("SERVER_PORT", cfg.Server.Port)
	}
	cfg.Server.Host = getEnv("SERVER_HOST", cfg.Server.Host)
	cfg.Server.ShutdownTimeout = getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", cfg.Server.ShutdownTimeout)
	cfg.Server.TrustProxyHeaders = getEnvAsBool("SERVER_TRUST_PROXY_HEADERS", cfg.Server.TrustProxyHeaders)

	cfg.Auth.Required = getEnvAsBool("CONTROL_PLANE_AUTH_REQUIRED", cfg.Auth.Required)

	cfg.Approvals.PersistPath = getEnv("APPROVALS_PERSIST_PATH", cfg.Approvals.PersistPath)
	cfg.Audit.PersistPath = getEnv("AUDIT_PERSIST_PATH", cfg.Audit.PersistPath)
	cfg.PolicyOverridesPath = getEnv("POLICY_OVERRIDES_PATH", cfg.PolicyOverridesPath)

	cfg.Observability.LogLevel = getEnv("LOG_LEVEL", cfg.Observability.LogLevel)
	cfg.Observability.LogFormat = getEnv("LOG_FORMAT", cfg.Observability.LogFormat)
	cfg.Observability.MetricsEnabled = getEnvAsBool("METRICS_ENABLED", cfg.Observability.MetricsEnabled)
}

// Validate checks the configuration for values no component can run with
func (c *Config) Validate() error {
	if err := utils.ValidateStruct(c); err != nil {
		return err
	}

	for i, rule := range c.Policy.Rules {
		if err := policy.ValidateRule(rule); err != nil {
			return fmt.Errorf("policy.rules[%d]: %w", i, err)
		}
	}

	// injection and outbound lists are plain substrings; only redactions compile
	if err := patterns.Validate(c.Policy.Sanitizer.RedactionPatterns); err != nil {
		return fmt.Errorf("policy.redactionPatterns: %w", err)
	}

	if err := c.Routing.Validate(); err != nil {
		return err
	}

	if c.RateLimit != nil && !c.RateLimit.Enabled() {
		return fmt.Errorf("rateLimit requires windowMs > 0 and maxRequests > 0")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ApprovalTTL returns the approval lifetime as a duration
func (c *ApprovalsConfig) ApprovalTTL() time.Duration {
	return time.Duration(c.TTLMs) * time.Millisecond
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
