package middleware

import (
	"crypto/subtle"
	"net/http"
	"os"

	"github.com/upb/agent-control-plane/utils"
	"go.uber.org/zap"
)

// AuthConfig describes the optional static API key guard
type AuthConfig struct {
	Required   bool
	APIKeyEnv  string
	HeaderName string
}

// AuthMiddleware checks a static API key sent in a configured header
type AuthMiddleware struct {
	cfg    AuthConfig
	apiKey string
	logger *zap.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware. The expected key is read
// from cfg.APIKeyEnv once, here. lookupEnv defaults to os.Getenv.
func NewAuthMiddleware(cfg AuthConfig, lookupEnv func(string) string, logger *zap.Logger) *AuthMiddleware {
	if lookupEnv == nil {
		lookupEnv = os.Getenv
	}
	if cfg.HeaderName == "" {
		cfg.HeaderName = "x-api-key"
	}
	m := &AuthMiddleware{cfg: cfg, logger: logger}
	if cfg.Required && cfg.APIKeyEnv != "" {
		m.apiKey = lookupEnv(cfg.APIKeyEnv)
	}
	if cfg.Required && m.apiKey == "" {
		logger.Error("api key auth required but key env is empty", zap.String("env", cfg.APIKeyEnv))
	}
	return m
}

// RequireAuth rejects requests without the configured API key. It is a
// pass-through when auth is not required.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	if !m.cfg.Required {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := GetRequestIDFromContext(r.Context())

		if m.apiKey == "" {
			_ = utils.WriteInternalServerError(w, "Missing required API key env: "+m.cfg.APIKeyEnv)
			return
		}

		provided := r.Header.Get(m.cfg.HeaderName)
		if subtle.ConstantTimeCompare([]byte(provided), []byte(m.apiKey)) != 1 {
			m.logger.Warn("rejected request with missing or invalid api key",
				zap.String("request_id", requestID),
				zap.String("path", r.URL.Path))
			_ = utils.WriteUnauthorized(w, "unauthorized")
			return
		}

		next.ServeHTTP(w, r)
	})
}
