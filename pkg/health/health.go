package health

import (
	"context"
	"fmt"
	"time"
)

// CheckType represents the type of health check
type CheckType string

const (
	CheckTypeHTTP CheckType = "http"
	CheckTypeTCP  CheckType = "tcp"
	CheckTypeExec CheckType = "exec"
)

// Result represents the outcome of a health check
type Result struct {
	Healthy   bool
	Message   string
	CheckedAt time.Time
	Duration  time.Duration
}

// Checker is the interface that all health checkers must implement
type Checker interface {
	// Check performs the health check and returns the result
	Check(ctx context.Context) Result

	// Type returns the type of health check
	Type() CheckType
}

// WaitConfig controls the readiness poll loop.
type WaitConfig struct {
	// Timeout is the overall deadline for the service to become ready.
	Timeout time.Duration

	// Interval is the pause between failed checks.
	Interval time.Duration
}

// DefaultWaitConfig matches the stack's container startup expectations:
// services get three minutes to come up, probed every five seconds.
func DefaultWaitConfig() WaitConfig {
	return WaitConfig{
		Timeout:  180 * time.Second,
		Interval: 5 * time.Second,
	}
}

// WaitFor polls the checker until it reports healthy or the deadline
// passes. The returned error carries the last failure message so callers
// can surface what the service was stuck on.
func WaitFor(ctx context.Context, checker Checker, cfg WaitConfig) error {
	deadline := time.Now().Add(cfg.Timeout)
	var last Result
	for {
		last = checker.Check(ctx)
		if last.Healthy {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("timed out after %s: %s", cfg.Timeout, last.Message)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(cfg.Interval):
		}
	}
}
