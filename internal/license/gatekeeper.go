// Package license gates job admission on the availability of the external
// toolchain license seat.
package license

import (
	"context"
	"log"
	"os/exec"
	"sync"
	"time"

	"github.com/verigrid/questad/internal/domain"
)

// CheckFunc probes the license server. A nil return means a seat is
// available; any error, including connectivity failures, means unavailable.
type CheckFunc func(ctx context.Context) error

// CommandCheck builds a CheckFunc that runs the configured license-status
// command (typically an lmstat wrapper) and treats a non-zero exit as
// unavailable.
func CommandCheck(command string, args ...string) CheckFunc {
	return func(ctx context.Context) error {
		return exec.CommandContext(ctx, command, args...).Run()
	}
}

// Gatekeeper polls the license server on an interval and answers synchronous
// admission checks for the dispatcher. The cached status is the only shared
// state and is mutated exclusively by the gatekeeper itself.
type Gatekeeper struct {
	check    CheckFunc
	interval time.Duration
	onChange func(domain.LicenseStatus)

	mu     sync.RWMutex
	status domain.LicenseStatus
}

// New creates a gatekeeper. onChange is invoked (outside the lock) whenever
// availability flips; it may be nil.
func New(check CheckFunc, interval time.Duration, onChange func(domain.LicenseStatus)) *Gatekeeper {
	return &Gatekeeper{check: check, interval: interval, onChange: onChange}
}

// Check probes the license server once and refreshes the cached status.
// The returned snapshot is what callers should act on; a connectivity error
// is indistinguishable from "no seat free" on purpose.
func (g *Gatekeeper) Check(ctx context.Context) domain.LicenseStatus {
	err := g.check(ctx)
	now := time.Now()
	next := now.Add(g.interval)

	status := domain.LicenseStatus{
		Available: err == nil,
		CheckedAt: now,
		NextCheck: &next,
	}

	g.mu.Lock()
	changed := g.status.Available != status.Available || g.status.CheckedAt.IsZero()
	g.status = status
	g.mu.Unlock()

	if changed {
		if err != nil {
			log.Printf("[license] unavailable: %v", err)
		} else {
			log.Printf("[license] seat available")
		}
		if g.onChange != nil {
			g.onChange(status)
		}
	}
	return status
}

// Status returns the cached snapshot without touching the license server.
func (g *Gatekeeper) Status() domain.LicenseStatus {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.status
}

// Run refreshes the cached status on the configured interval until the
// context is cancelled.
func (g *Gatekeeper) Run(ctx context.Context) error {
	g.Check(ctx)

	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			g.Check(ctx)
		}
	}
}
