// Package ratelimit implements per-client sliding-window admission control.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Config bounds requests per client over a rolling window
type Config struct {
	WindowMs    int `yaml:"windowMs"`
	MaxRequests int `yaml:"maxRequests"`
}

// Enabled reports whether both limits are set
func (c Config) Enabled() bool {
	return c.WindowMs > 0 && c.MaxRequests > 0
}

// Window returns the rolling window as a duration
func (c Config) Window() time.Duration {
	return time.Duration(c.WindowMs) * time.Millisecond
}

// Result is the admission verdict for one request
type Result struct {
	Allowed bool
	// Remaining is the number of further requests admitted in the current window
	Remaining int
	// RetryAfter is how long until the oldest in-window request ages out
	RetryAfter time.Duration
}

// Limiter tracks recent request timestamps per client key
type Limiter struct {
	mu      sync.Mutex
	window  time.Duration
	max     int
	clients map[string][]time.Time
	now     func() time.Time
	logger  *zap.Logger
}

// Option customizes a Limiter
type Option func(*Limiter)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

func NewLimiter(cfg Config, logger *zap.Logger, opts ...Option) *Limiter {
	l := &Limiter{
		window:  cfg.Window(),
		max:     cfg.MaxRequests,
		clients: make(map[string][]time.Time),
		now:     time.Now,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Window returns the rolling window length
func (l *Limiter) Window() time.Duration {
	return l.window
}

// Allow records a request for key if it fits in the window
func (l *Limiter) Allow(key string) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	recent := l.trim(l.clients[key], now)

	if len(recent) >= l.max {
		l.clients[key] = recent
		return Result{
			Allowed:    false,
			RetryAfter: recent[0].Add(l.window).Sub(now),
		}
	}

	recent = append(recent, now)
	l.clients[key] = recent
	return Result{Allowed: true, Remaining: l.max - len(recent)}
}

// trim drops timestamps that have left the window. Timestamps are
// appended in order so the survivors form a suffix.
func (l *Limiter) trim(ts []time.Time, now time.Time) []time.Time {
	i := 0
	for i < len(ts) && now.Sub(ts[i]) >= l.window {
		i++
	}
	return ts[i:]
}

// Reap forgets clients with no requests inside the window and returns how
// many were removed.
func (l *Limiter) Reap() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for key, ts := range l.clients {
		recent := l.trim(ts, now)
		if len(recent) == 0 {
			delete(l.clients, key)
			removed++
			continue
		}
		l.clients[key] = recent
	}
	return removed
}

// Len returns the number of tracked clients
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// StartCleanupWorker reaps idle clients every interval until ctx is done
func (l *Limiter) StartCleanupWorker(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = l.window
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := l.Reap(); n > 0 {
				l.logger.Debug("reaped idle rate limit clients", zap.Int("count", n))
			}
		}
	}
}
