package middleware

import (
	"net"
	"net/http"
	"strconv"

	"github.com/upb/agent-control-plane/services/ratelimit"
	"github.com/upb/agent-control-plane/utils"
	"go.uber.org/zap"
)

// RateLimitRecorder is notified of every rejected request
type RateLimitRecorder interface {
	RateLimited()
}

// RateLimitMiddleware admits requests through a sliding-window limiter
// keyed by client IP
type RateLimitMiddleware struct {
	limiter  *ratelimit.Limiter
	recorder RateLimitRecorder
	logger   *zap.Logger
}

// NewRateLimitMiddleware creates the HTTP adapter. recorder may be nil.
func NewRateLimitMiddleware(limiter *ratelimit.Limiter, recorder RateLimitRecorder, logger *zap.Logger) *RateLimitMiddleware {
	return &RateLimitMiddleware{limiter: limiter, recorder: recorder, logger: logger}
}

// Limit rejects requests over the window budget with 429 and Retry-After
func (m *RateLimitMiddleware) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientKey(r)
		res := m.limiter.Allow(key)
		if !res.Allowed {
			if m.recorder != nil {
				m.recorder.RateLimited()
			}
			m.logger.Info("rate limited",
				zap.String("request_id", GetRequestIDFromContext(r.Context())),
				zap.String("client", key),
				zap.Duration("retry_after", res.RetryAfter))
			_ = utils.WriteTooManyRequests(w, "Too many requests", res.RetryAfter)
			return
		}

		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		next.ServeHTTP(w, r.WithContext(WithClientKey(r.Context(), key)))
	})
}

// clientKey is the socket peer IP without the port. RemoteAddr only
// reflects forwarded headers when the server is configured to trust them.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if host == "" {
		return "unknown"
	}
	return host
}
