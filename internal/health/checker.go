// Package health runs periodic dependency checks for the daemon: the
// wallet store and every configured chain RPC.
package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tide-labs/tide/internal/infra/metrics"
)

// DefaultInterval is how often checks run.
const DefaultInterval = 60 * time.Second

// checkTimeout bounds one check.
const checkTimeout = 10 * time.Second

// Check defines a single health check with optional recovery action.
type Check struct {
	Name      string
	CheckFn   func(ctx context.Context) error
	RecoverFn func(ctx context.Context) error
}

// Status represents the result of a health check.
type Status struct {
	Name      string    `json:"name"`
	Healthy   bool      `json:"healthy"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Checker runs periodic health checks.
type Checker struct {
	mu       sync.RWMutex
	checks   []Check
	statuses []Status
	interval time.Duration
	timeout  time.Duration
	log      *zap.Logger
}

// NewChecker creates a checker over checks. A zero interval means
// DefaultInterval.
func NewChecker(interval time.Duration, logger *zap.Logger, checks ...Check) *Checker {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Checker{interval: interval, timeout: checkTimeout, checks: checks, log: logger}
}

// ─── Check Constructors ─────────────────────────────────────────────────────

// SQLiteCheck pings the wallet store database.
func SQLiteCheck(db interface{ Ping() error }) Check {
	return Check{
		Name:    "sqlite",
		CheckFn: func(context.Context) error { return db.Ping() },
	}
}

// RPCCheck wraps a chain client's Ping under the given name, e.g. "rpc_solana".
// reconnect, when non-nil, runs after a failed ping.
func RPCCheck(name string, ping, reconnect func(ctx context.Context) error) Check {
	return Check{
		Name: name,
		CheckFn: func(ctx context.Context) error {
			if err := ping(ctx); err != nil {
				return fmt.Errorf("rpc unreachable: %w", err)
			}
			return nil
		},
		RecoverFn: reconnect,
	}
}

// Run starts the health check loop. Call in a goroutine.
func (c *Checker) Run(ctx context.Context) {
	c.runAll(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.runAll(ctx)
		}
	}
}

func (c *Checker) runAll(ctx context.Context) {
	statuses := make([]Status, len(c.checks))
	for i, check := range c.checks {
		s := Status{
			Name:      check.Name,
			CheckedAt: time.Now(),
		}
		cctx, cancel := context.WithTimeout(ctx, c.timeout)
		err := check.CheckFn(cctx)
		cancel()
		if err != nil {
			s.Error = err.Error()
			c.log.Warn("health check failed", zap.String("check", check.Name), zap.Error(err))
			c.tryRecover(ctx, check)
		} else {
			s.Healthy = true
		}

		gauge := 0.0
		if s.Healthy {
			gauge = 1
		}
		metrics.HealthCheckStatus.WithLabelValues(check.Name).Set(gauge)
		statuses[i] = s
	}

	c.mu.Lock()
	c.statuses = statuses
	c.mu.Unlock()
}

// tryRecover runs check's recovery with a fresh timeout; the check's own
// deadline may already be spent.
func (c *Checker) tryRecover(ctx context.Context, check Check) {
	if check.RecoverFn == nil {
		return
	}
	rctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := check.RecoverFn(rctx); err != nil {
		c.log.Warn("health recovery failed", zap.String("check", check.Name), zap.Error(err))
		return
	}
	c.log.Info("health recovery succeeded", zap.String("check", check.Name))
}

// Statuses returns the latest health check results.
func (c *Checker) Statuses() []Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result := make([]Status, len(c.statuses))
	copy(result, c.statuses)
	return result
}

// IsHealthy returns true if all checks pass.
func (c *Checker) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.statuses {
		if !s.Healthy {
			return false
		}
	}
	return true
}
