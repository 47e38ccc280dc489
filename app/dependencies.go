package app

import (
	"context"
	"fmt"

	"github.com/upb/agent-control-plane/config"
	"github.com/upb/agent-control-plane/handlers"
	"github.com/upb/agent-control-plane/internal/observability"
	"github.com/upb/agent-control-plane/internal/patterns"
	"github.com/upb/agent-control-plane/middleware"
	"github.com/upb/agent-control-plane/models"
	"github.com/upb/agent-control-plane/services/approval"
	"github.com/upb/agent-control-plane/services/audit"
	"github.com/upb/agent-control-plane/services/policy"
	"github.com/upb/agent-control-plane/services/prompt"
	"github.com/upb/agent-control-plane/services/ratelimit"
	"github.com/upb/agent-control-plane/services/routing"
	"go.uber.org/zap"
)

// patternCacheEntries bounds the compiled regex cache shared by the matcher
// and the sanitizer
const patternCacheEntries = 1024

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *observability.Metrics

	// Stores and services
	Patterns  *patterns.Cache
	Engine    *policy.Engine
	Approvals *approval.Store
	Audit     *audit.Store
	Sanitizer *prompt.Sanitizer
	Router    *routing.Router
	Proxy     *routing.Proxy
	// Limiter is nil when no rate limit is configured
	Limiter *ratelimit.Limiter

	// Middleware
	AuthMiddleware      *middleware.AuthMiddleware
	RateLimitMiddleware *middleware.RateLimitMiddleware

	// Handlers
	HealthHandler   *handlers.HealthHandler
	ToolCallHandler *handlers.ToolCallHandler
	ApprovalHandler *handlers.ApprovalHandler
	SanitizeHandler *handlers.SanitizeHandler
	RoutingHandler  *handlers.RoutingHandler
	PolicyHandler   *handlers.PolicyHandler
	AuditHandler    *handlers.AuditHandler
}

// NewDependencies creates and wires up all application dependencies.
// Persisted state is loaded here; corrupt files are logged and skipped.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initServices(cfg); err != nil {
		deps.Close(ctx)
		return nil, err
	}
	deps.initMiddleware(cfg)
	deps.initHandlers()

	logger.Info("all dependencies initialized successfully",
		zap.Int("policy_rules", len(deps.Engine.Rules())),
		zap.String("default_decision", string(deps.Engine.DefaultDecision())),
		zap.Bool("rate_limit", deps.Limiter != nil),
		zap.Bool("auth_required", cfg.Auth.Required))
	return deps, nil
}

// initServices builds the stores and services in dependency order
func (d *Dependencies) initServices(cfg *config.Config) error {
	cache, err := patterns.New(patternCacheEntries)
	if err != nil {
		return fmt.Errorf("failed to initialize pattern cache: %w", err)
	}
	d.Patterns = cache

	d.Engine = policy.NewEngine(policy.Config{
		DefaultDecision: cfg.Policy.DefaultDecision,
		Rules:           cfg.Policy.Rules,
		OverridesPath:   cfg.PolicyOverridesPath,
	}, policy.NewMatcher(cache, d.Logger), d.Logger)

	d.Approvals = approval.NewStore(cfg.Approvals.ApprovalTTL(), cfg.Approvals.PersistPath, d.Logger)

	d.Metrics = observability.NewMetrics(func() float64 {
		return float64(d.Approvals.StatusCounts()[models.ApprovalStatusPending])
	})

	d.Audit, err = audit.NewStore(audit.Options{
		Path:              cfg.Audit.PersistPath,
		MaxInMemoryEvents: cfg.Audit.MaxInMemoryEvents,
		MaxFileSizeBytes:  cfg.Audit.MaxFileSizeBytes,
		RetentionDays:     cfg.Audit.RetentionDays,
	}, d.Logger, audit.WithAppendHook(d.Metrics.ObserveAuditEvent))
	if err != nil {
		return fmt.Errorf("failed to initialize audit store: %w", err)
	}

	d.Sanitizer = prompt.NewSanitizer(cfg.Policy.Sanitizer, cache, d.Logger)
	d.Router = routing.NewRouter(cfg.Routing)
	d.Proxy = routing.NewProxy(cfg.Routing, d.Logger)

	if cfg.RateLimit != nil && cfg.RateLimit.Enabled() {
		d.Limiter = ratelimit.NewLimiter(*cfg.RateLimit, d.Logger)
	}

	d.Logger.Info("services initialized",
		zap.String("approvals_path", cfg.Approvals.PersistPath),
		zap.String("audit_path", d.Audit.Path()),
		zap.String("overrides_path", cfg.PolicyOverridesPath))
	return nil
}

func (d *Dependencies) initMiddleware(cfg *config.Config) {
	d.AuthMiddleware = middleware.NewAuthMiddleware(middleware.AuthConfig{
		Required:   cfg.Auth.Required,
		APIKeyEnv:  cfg.Auth.APIKeyEnv,
		HeaderName: cfg.Auth.HeaderName,
	}, nil, d.Logger)

	if d.Limiter != nil {
		d.RateLimitMiddleware = middleware.NewRateLimitMiddleware(d.Limiter, d.Metrics, d.Logger)
	}
}

func (d *Dependencies) initHandlers() {
	d.HealthHandler = handlers.NewHealthHandler(d.Engine, d.Approvals, d.Logger)
	d.ToolCallHandler = handlers.NewToolCallHandler(d.Engine, d.Approvals, d.Audit, d.Logger)
	d.ApprovalHandler = handlers.NewApprovalHandler(d.Approvals, d.Audit, d.Logger)
	d.SanitizeHandler = handlers.NewSanitizeHandler(d.Sanitizer, d.Audit, d.Logger)
	d.RoutingHandler = handlers.NewRoutingHandler(d.Router, d.Proxy, d.Audit, d.Metrics, d.Logger)
	d.PolicyHandler = handlers.NewPolicyHandler(d.Engine, d.Audit, d.Logger)
	d.AuditHandler = handlers.NewAuditHandler(d.Audit, d.Approvals, d.Logger)
}

// Close releases the pattern cache and flushes the logger. Stores write
// through on every mutation, so there is nothing else to flush.
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	if d.Patterns != nil {
		d.Patterns.Close()
		d.Patterns = nil
	}

	// Sync logger
	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	return nil
}
