// Package health provides periodic health checks with optional recovery.
package health

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/zlx-network/swarmd/internal/infra/metrics"
)

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

// Checker runs periodic health checks with auto-recovery.
type Checker struct {
	mu       sync.RWMutex
	checks   []Check
	statuses []Status
	interval time.Duration
}

// NewChecker creates a checker that runs checks every interval.
func NewChecker(interval time.Duration, checks ...Check) *Checker {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	return &Checker{interval: interval, checks: checks}
}

// Run starts the health check loop. Call in a goroutine.
func (c *Checker) Run(ctx context.Context) {
	// Run immediately on start
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
		if err := check.CheckFn(ctx); err != nil {
			s.Healthy = false
			s.Error = err.Error()
			log.Printf("[health] %s: %v", check.Name, err)
			if check.RecoverFn != nil {
				if rerr := check.RecoverFn(ctx); rerr != nil {
					log.Printf("[health] %s: recover: %v", check.Name, rerr)
				}
			}
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

// ─── Check Implementations ──────────────────────────────────────────────────

// Pinger is satisfied by the history database.
type Pinger interface {
	Ping() error
}

// SQLiteCheck verifies the history ledger is reachable.
func SQLiteCheck(db Pinger) Check {
	return Check{
		Name: "sqlite",
		CheckFn: func(ctx context.Context) error {
			return db.Ping()
		},
	}
}

// ConsistencyChecker is satisfied by the signaling hub.
type ConsistencyChecker interface {
	CheckConsistency() error
}

// DirectoryCheck verifies swarm memberships agree with live sessions.
func DirectoryCheck(hub ConsistencyChecker) Check {
	return Check{
		Name: "directory",
		CheckFn: func(ctx context.Context) error {
			return hub.CheckConsistency()
		},
	}
}

// CertificateCheck fails once the certificate is within warn of expiry.
// reload, if set, is tried as recovery so a renewed file on disk is picked
// up even without a watcher.
func CertificateCheck(notAfter func() time.Time, warn time.Duration, reload func() error) Check {
	check := Check{
		Name: "certificate",
		CheckFn: func(ctx context.Context) error {
			return checkExpiry(notAfter(), time.Now(), warn)
		},
	}
	if reload != nil {
		check.RecoverFn = func(ctx context.Context) error { return reload() }
	}
	return check
}

func checkExpiry(notAfter, now time.Time, warn time.Duration) error {
	if notAfter.IsZero() {
		return fmt.Errorf("no certificate loaded")
	}
	left := notAfter.Sub(now)
	if left <= 0 {
		return fmt.Errorf("certificate expired %s ago", (-left).Round(time.Second))
	}
	if left < warn {
		return fmt.Errorf("certificate expires in %s", left.Round(time.Second))
	}
	return nil
}
