package middleware

import (
	"context"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// Context key type to avoid collisions
type contextKey string

const (
	// RequestIDKey is the context key for a request ID set outside chi
	RequestIDKey contextKey = "request_id"

	// ClientKeyKey is the context key for the rate limiter's client key
	ClientKeyKey contextKey = "client_key"
)

// GetRequestIDFromContext retrieves the request ID from context, preferring
// the one assigned by chi's RequestID middleware
func GetRequestIDFromContext(ctx context.Context) string {
	if id := chimw.GetReqID(ctx); id != "" {
		return id
	}
	if val := ctx.Value(RequestIDKey); val != nil {
		if requestID, ok := val.(string); ok {
			return requestID
		}
	}
	return ""
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetClientKeyFromContext retrieves the rate limiter key for the request
func GetClientKeyFromContext(ctx context.Context) string {
	if val, ok := ctx.Value(ClientKeyKey).(string); ok {
		return val
	}
	return ""
}

// WithClientKey adds the rate limiter key to the context
func WithClientKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, ClientKeyKey, key)
}
