package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/upb/agent-control-plane/app"
	"github.com/upb/agent-control-plane/middleware"
	"github.com/upb/agent-control-plane/utils"
)

// requestTimeout bounds a whole request. It sits above the upstream proxy
// timeout so that a slow provider surfaces as 502 rather than 503.
const requestTimeout = 90 * time.Second

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(chimw.RequestID)
	if deps.Config.Server.TrustProxyHeaders {
		r.Use(chimw.RealIP)
	}
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(requestTimeout))
	if deps.Metrics != nil {
		r.Use(middleware.Instrument(deps.Metrics))
	}

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:     []string{"*"},
		AllowedMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:     []string{"Content-Type", "x-api-key", "Authorization"},
		ExposedHeaders:     []string{"x-route-tier", "x-route-model", "x-route-reason", "Retry-After"},
		OptionsPassthrough: true,
	}))
	r.Use(preflight)

	// Health check endpoints
	r.Get("/health", deps.HealthHandler.HandleHealth)
	r.Get("/health/ready", deps.HealthHandler.HandleReadiness)

	if deps.Metrics != nil && deps.Config.Observability.MetricsEnabled {
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(deps.AuthMiddleware.RequireAuth)
		if deps.RateLimitMiddleware != nil {
			r.Use(deps.RateLimitMiddleware.Limit)
		}

		r.Post("/tool-calls/intercept", deps.ToolCallHandler.HandleIntercept)

		r.Route("/approvals", func(r chi.Router) {
			r.Get("/", deps.ApprovalHandler.HandleList)
			r.Get("/{id}", deps.ApprovalHandler.HandleGet)
			r.Post("/{id}/decision", deps.ApprovalHandler.HandleDecide)
		})

		r.Post("/tool-results/sanitize", deps.SanitizeHandler.HandleSanitizeToolResult)
		r.Post("/outbound/check", deps.SanitizeHandler.HandleCheckOutbound)

		r.Post("/model-router/route", deps.RoutingHandler.HandleRoute)
		r.Post("/chat/completions", deps.RoutingHandler.HandleChatCompletions)

		r.Route("/policies", func(r chi.Router) {
			r.Get("/", deps.PolicyHandler.HandleListPolicies)
			r.Post("/", deps.PolicyHandler.HandleCreatePolicy)
			r.Get("/{id}", deps.PolicyHandler.HandleGetPolicy)
			r.Put("/{id}", deps.PolicyHandler.HandleUpdatePolicy)
			r.Delete("/{id}", deps.PolicyHandler.HandleDeletePolicy)
		})

		r.Get("/audit/events", deps.AuditHandler.HandleListEvents)
		r.Get("/metrics/summary", deps.AuditHandler.HandleSummary)
		r.Get("/metrics/timeseries", deps.AuditHandler.HandleTimeseries)
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "endpoint not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteError(w, http.StatusMethodNotAllowed, "method not allowed", nil)
	})

	return r
}

// preflight answers every OPTIONS request with 204 once CORS headers are set
func preflight(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			utils.WriteNoContent(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}
