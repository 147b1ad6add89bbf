// Package retention removes workspaces and records of old finished jobs on
// a cron schedule.
package retention

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/verigrid/questad/internal/jobstore"
	"github.com/verigrid/questad/internal/workspace"
)

// Sweeper deletes terminal jobs older than MaxAge. Running and queued jobs
// are never touched.
type Sweeper struct {
	store      *jobstore.Store
	workspaces *workspace.Manager
	schedule   cron.Schedule
	maxAge     time.Duration
}

// New parses the cron expression and builds a sweeper.
func New(store *jobstore.Store, workspaces *workspace.Manager, cronExpr string, maxAge time.Duration) (*Sweeper, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(cronExpr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", cronExpr, err)
	}
	return &Sweeper{
		store:      store,
		workspaces: workspaces,
		schedule:   schedule,
		maxAge:     maxAge,
	}, nil
}

// Run waits for each scheduled slot and sweeps, until the context ends.
func (s *Sweeper) Run(ctx context.Context) error {
	for {
		next := s.schedule.Next(time.Now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		if n, err := s.Sweep(); err != nil {
			log.Printf("[retention] sweep failed: %v", err)
		} else if n > 0 {
			log.Printf("[retention] removed %d expired jobs", n)
		}
	}
}

// Sweep removes all terminal jobs that completed before the retention
// cutoff and returns how many were deleted.
func (s *Sweeper) Sweep() (int, error) {
	cutoff := time.Now().Add(-s.maxAge)
	jobs, err := s.store.ListTerminalBefore(cutoff)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, job := range jobs {
		if err := s.workspaces.Remove(job.ID); err != nil {
			log.Printf("[retention] job %s: removing workspace: %v", job.ID, err)
			continue
		}
		if err := s.store.DeleteJob(job.ID); err != nil {
			log.Printf("[retention] job %s: deleting record: %v", job.ID, err)
			continue
		}
		deleted++
	}
	return deleted, nil
}
