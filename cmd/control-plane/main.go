package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/upb/agent-control-plane/app"
	"github.com/upb/agent-control-plane/config"
	"github.com/upb/agent-control-plane/internal/observability"
	"github.com/upb/agent-control-plane/routes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// minSweepInterval keeps a tiny approval TTL from spinning the expiry sweep
const minSweepInterval = time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "control-plane: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.New(ctx)
	if err != nil {
		return err
	}

	logger, err := observability.NewLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	deps, err := app.NewDependencies(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize dependencies", zap.Error(err))
		return err
	}
	defer deps.Close(context.Background())

	ln, err := net.Listen("tcp", cfg.Server.Address())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Server.Address(), err)
	}

	return serve(ctx, ln, deps)
}

// serve runs the HTTP server and the background sweeps until ctx is done,
// then drains in-flight requests for at most the shutdown timeout.
func serve(ctx context.Context, ln net.Listener, deps *app.Dependencies) error {
	cfg := deps.Config
	logger := deps.Logger

	srv := &http.Server{
		Handler:           routes.SetupRoutes(deps),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("control plane listening",
			zap.String("addr", ln.Addr().String()),
			zap.String("environment", cfg.Environment))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server", zap.Duration("timeout", cfg.Server.ShutdownTimeout))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	})

	if deps.Limiter != nil {
		g.Go(func() error {
			deps.Limiter.StartCleanupWorker(gctx, deps.Limiter.Window())
			return nil
		})
	}

	g.Go(func() error {
		sweepApprovals(gctx, deps, max(cfg.Approvals.ApprovalTTL(), minSweepInterval))
		return nil
	})

	err := g.Wait()
	logger.Info("server stopped")
	return err
}

// sweepApprovals expires overdue approvals on every tick so that the
// persisted snapshot does not keep stale pending entries between reads
func sweepApprovals(ctx context.Context, deps *app.Dependencies, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := deps.Approvals.ExpireDue()
			if err != nil {
				deps.Logger.Warn("failed to persist expired approvals", zap.Error(err))
				continue
			}
			if n > 0 {
				deps.Logger.Info("expired overdue approvals", zap.Int("count", n))
			}
		}
	}
}
