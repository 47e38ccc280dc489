package client

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	DefaultBaseURL      = "http://127.0.0.1:3000"
	DefaultPollInterval = time.Second
	DefaultPollTimeout  = 120 * time.Second

	minPollInterval = 50 * time.Millisecond
	minPollTimeout  = time.Second
)

// Config is the immutable client configuration. Zero fields take defaults
// in New.
type Config struct {
	BaseURL      string
	APIKey       string
	PollInterval time.Duration
	PollTimeout  time.Duration
	// Strict makes the event extractors fail on events they cannot read
	// instead of passing them through untouched
	Strict bool
}

// envSpec mirrors Config with the units the environment uses
type envSpec struct {
	BaseURL        string `envconfig:"BASE_URL"`
	APIKey         string `envconfig:"API_KEY"`
	PollIntervalMs int    `envconfig:"POLL_INTERVAL_MS"`
	PollTimeoutMs  int    `envconfig:"POLL_TIMEOUT_MS"`
	Strict         bool   `envconfig:"STRICT"`
}

// envPrefixes are read in order; later prefixes override earlier ones
var envPrefixes = []string{"CONTROL_PLANE", "OPENCLAW_CP"}

// ConfigFromEnv reads CONTROL_PLANE_* and then OPENCLAW_CP_* variables once
// and returns the resulting value. Unset variables keep their defaults.
func ConfigFromEnv() (Config, error) {
	env := envSpec{
		BaseURL:        DefaultBaseURL,
		PollIntervalMs: int(DefaultPollInterval.Milliseconds()),
		PollTimeoutMs:  int(DefaultPollTimeout.Milliseconds()),
	}
	for _, prefix := range envPrefixes {
		if err := envconfig.Process(prefix, &env); err != nil {
			return Config{}, fmt.Errorf("read %s_* environment: %w", prefix, err)
		}
	}

	return Config{
		BaseURL:      env.BaseURL,
		APIKey:       env.APIKey,
		PollInterval: time.Duration(env.PollIntervalMs) * time.Millisecond,
		PollTimeout:  time.Duration(env.PollTimeoutMs) * time.Millisecond,
		Strict:       env.Strict,
	}, nil
}

// normalized applies defaults and lower bounds
func (c Config) normalized() Config {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	c.APIKey = strings.TrimSpace(c.APIKey)

	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	c.PollInterval = max(c.PollInterval, minPollInterval)

	if c.PollTimeout <= 0 {
		c.PollTimeout = DefaultPollTimeout
	}
	c.PollTimeout = max(c.PollTimeout, minPollTimeout)
	return c
}
