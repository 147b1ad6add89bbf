// Package dispatch owns the job lifecycle: admission through the license
// gatekeeper, the single global run slot, pipeline execution, timeout and
// cancellation supervision, and report parsing on completion.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/verigrid/questad/internal/domain"
	"github.com/verigrid/questad/internal/events"
	"github.com/verigrid/questad/internal/jobstore"
	"github.com/verigrid/questad/internal/license"
	"github.com/verigrid/questad/internal/pipeline"
	"github.com/verigrid/questad/internal/protocol"
	"github.com/verigrid/questad/internal/workspace"
)

// PipelineRunner executes a job's stage pipeline in its workspace.
type PipelineRunner interface {
	Run(ctx context.Context, job *domain.Job, workspace string, emit pipeline.EmitFunc) error
}

// WorkspaceWatcher is notified when jobs start and stop occupying the run
// slot, so tool-written workspace files can be observed while they run.
type WorkspaceWatcher interface {
	AddJob(jobID string) error
	RemoveJob(jobID string)
}

// Config holds the dispatcher settings.
type Config struct {
	ProjectsRoot string
	Tick         time.Duration // dispatch retry interval for license-denied jobs
}

// Dispatcher serializes job admission through the license gatekeeper and
// a single run slot: the toolchain license is single-seat, so at most one
// job is running system-wide at any instant.
type Dispatcher struct {
	store      *jobstore.Store
	gatekeeper *license.Gatekeeper
	runner     PipelineRunner
	workspaces *workspace.Manager
	broker     *events.Broker
	cfg        Config
	watcher    WorkspaceWatcher

	mu      sync.Mutex
	jobs    map[string]*domain.Job
	queue   []string
	current *activeRun
	wake    chan struct{}
}

// activeRun tracks the job occupying the run slot. cancel carries the
// reason with it; the first caller wins and later calls are no-ops.
type activeRun struct {
	jobID  string
	cancel context.CancelFunc
	done   chan struct{}

	once   sync.Once
	reason domain.CancelReason
}

func (ar *activeRun) cancelWith(reason domain.CancelReason) {
	ar.once.Do(func() {
		ar.reason = reason
		ar.cancel()
	})
}

// New creates a dispatcher. Jobs left non-terminal by a previous process
// are marked failed so the queue starts clean.
func New(store *jobstore.Store, gatekeeper *license.Gatekeeper, runner PipelineRunner, workspaces *workspace.Manager, broker *events.Broker, cfg Config) (*Dispatcher, error) {
	if cfg.Tick == 0 {
		cfg.Tick = 5 * time.Second
	}
	d := &Dispatcher{
		store:      store,
		gatekeeper: gatekeeper,
		runner:     runner,
		workspaces: workspaces,
		broker:     broker,
		cfg:        cfg,
		jobs:       make(map[string]*domain.Job),
		wake:       make(chan struct{}, 1),
	}
	if err := d.recoverInterrupted(); err != nil {
		return nil, err
	}
	return d, nil
}

// SetWatcher attaches the workspace watcher. Optional; nil means workspace
// file changes are not observed.
func (d *Dispatcher) SetWatcher(w WorkspaceWatcher) {
	d.watcher = w
}

func (d *Dispatcher) recoverInterrupted() error {
	jobs, err := d.store.ListJobs("")
	if err != nil {
		return fmt.Errorf("loading jobs: %w", err)
	}
	for _, job := range jobs {
		if job.Status.IsTerminal() {
			continue
		}
		now := time.Now()
		job.Status = domain.StatusFailed
		job.Error = "interrupted by server restart"
		job.CompletedAt = &now
		if err := d.store.UpsertJob(job); err != nil {
			return err
		}
		log.Printf("[dispatcher] job %s marked failed after restart", job.ID)
	}
	return nil
}

// Submit validates a submission, creates the job workspace and enqueues the
// job. Only validation problems are surfaced to the caller; everything
// after admission is observed through job status.
func (d *Dispatcher) Submit(projectID string, jobType domain.JobType, cfg domain.JobConfig) (*domain.Job, error) {
	if err := cfg.Validate(jobType); err != nil {
		return nil, err
	}

	job := &domain.Job{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		Type:      jobType,
		Status:    domain.StatusPending,
		Config:    cfg,
		CreatedAt: time.Now(),
	}

	_, includeDirs, err := d.workspaces.Create(job.ID, filepath.Join(d.cfg.ProjectsRoot, projectID))
	if err != nil {
		return nil, fmt.Errorf("preparing workspace: %w", err)
	}
	// Generated include dirs extend any the user supplied; order matters
	// for the tool search path.
	job.Config.IncludeDirectories = append(job.Config.IncludeDirectories, includeDirs...)

	d.mu.Lock()
	d.jobs[job.ID] = job
	d.setStatusLocked(job, domain.StatusQueued)
	d.queue = append(d.queue, job.ID)
	d.mu.Unlock()

	d.publishSystemStatus()
	d.kick()

	log.Printf("[dispatcher] job %s queued (%s, project %s)", job.ID, jobType, projectID)
	return job.Clone(), nil
}

// Cancel requests cooperative cancellation. It is idempotent: cancelling a
// job that is already terminal is a no-op.
func (d *Dispatcher) Cancel(jobID string) error {
	return d.cancelWithReason(jobID, domain.CancelUser)
}

func (d *Dispatcher) cancelWithReason(jobID string, reason domain.CancelReason) error {
	d.mu.Lock()

	job, ok := d.jobs[jobID]
	if !ok {
		d.mu.Unlock()
		stored, err := d.store.GetJob(jobID)
		if err != nil {
			return err
		}
		if stored == nil {
			return domain.ErrJobNotFound
		}
		// Known only to the store, so it is from a previous process and
		// already terminal.
		return nil
	}

	if job.Status.IsTerminal() {
		d.mu.Unlock()
		return nil
	}

	if d.current != nil && d.current.jobID == jobID {
		ar := d.current
		d.mu.Unlock()
		ar.cancelWith(reason)
		return nil
	}

	// Not yet running: drop from the queue and finish it here.
	d.removeFromQueueLocked(jobID)
	job.CancelReason = reason
	now := time.Now()
	job.CompletedAt = &now
	d.setStatusLocked(job, domain.StatusCancelled)
	d.mu.Unlock()

	d.publishSystemStatus()
	return nil
}

// ForceDelete tears a job down unconditionally: any active process group is
// terminated, then the record and workspace are removed. Intended as an
// administrative escape hatch; it always succeeds.
func (d *Dispatcher) ForceDelete(jobID string) error {
	d.mu.Lock()
	var ar *activeRun
	if d.current != nil && d.current.jobID == jobID {
		ar = d.current
	}
	d.removeFromQueueLocked(jobID)
	delete(d.jobs, jobID)
	d.mu.Unlock()

	if ar != nil {
		ar.cancelWith(domain.CancelUser)
		select {
		case <-ar.done:
		case <-time.After(30 * time.Second):
			log.Printf("[dispatcher] job %s: teardown timed out waiting for process exit", jobID)
		}
	}

	if err := d.store.DeleteJob(jobID); err != nil {
		log.Printf("[dispatcher] job %s: deleting record: %v", jobID, err)
	}
	if err := d.workspaces.Remove(jobID); err != nil {
		log.Printf("[dispatcher] job %s: removing workspace: %v", jobID, err)
	}

	d.publishSystemStatus()
	log.Printf("[dispatcher] job %s force-deleted", jobID)
	return nil
}

// Get returns a snapshot of one job.
func (d *Dispatcher) Get(jobID string) (*domain.Job, error) {
	d.mu.Lock()
	if job, ok := d.jobs[jobID]; ok {
		cp := job.Clone()
		d.mu.Unlock()
		return cp, nil
	}
	d.mu.Unlock()

	job, err := d.store.GetJob(jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, domain.ErrJobNotFound
	}
	return job, nil
}

// List returns job snapshots, optionally filtered by project.
func (d *Dispatcher) List(projectID string) ([]*domain.Job, error) {
	jobs, err := d.store.ListJobs(projectID)
	if err != nil {
		return nil, err
	}
	// In-memory state is fresher for live jobs.
	d.mu.Lock()
	for i, job := range jobs {
		if live, ok := d.jobs[job.ID]; ok {
			jobs[i] = live.Clone()
		}
	}
	d.mu.Unlock()
	return jobs, nil
}

// SystemStatus returns the process-wide snapshot.
func (d *Dispatcher) SystemStatus() domain.SystemStatus {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.systemStatusLocked()
}

func (d *Dispatcher) systemStatusLocked() domain.SystemStatus {
	status := domain.SystemStatus{
		License:     d.gatekeeper.Status(),
		QueueLength: len(d.queue),
	}
	if d.current != nil {
		id := d.current.jobID
		status.CurrentJob = &id
	}
	return status
}

// Run drives admission until the context is cancelled. Queued jobs denied a
// license are retried every tick; they are never failed for license
// unavailability.
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-d.wake:
		case <-ticker.C:
		}
		d.tryDispatch(ctx)
	}
}

// kick nudges the dispatch loop without blocking.
func (d *Dispatcher) kick() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *Dispatcher) tryDispatch(ctx context.Context) {
	d.mu.Lock()
	if d.current != nil || len(d.queue) == 0 {
		d.mu.Unlock()
		return
	}
	candidate := d.queue[0]
	d.mu.Unlock()

	// License check does network I/O; never hold the lock across it.
	if !d.gatekeeper.Check(ctx).Available {
		return
	}

	d.mu.Lock()
	if d.current != nil || len(d.queue) == 0 || d.queue[0] != candidate {
		d.mu.Unlock()
		return
	}
	job, ok := d.jobs[candidate]
	if !ok || job.Status != domain.StatusQueued {
		d.queue = d.queue[1:]
		d.mu.Unlock()
		d.kick()
		return
	}
	d.queue = d.queue[1:]

	runCtx, cancel := context.WithCancel(ctx)
	ar := &activeRun{jobID: job.ID, cancel: cancel, done: make(chan struct{})}
	d.current = ar

	now := time.Now()
	job.StartedAt = &now
	d.setStatusLocked(job, domain.StatusRunning)
	d.mu.Unlock()

	d.publishSystemStatus()
	log.Printf("[dispatcher] job %s running", job.ID)

	if d.watcher != nil {
		if err := d.watcher.AddJob(job.ID); err != nil {
			log.Printf("[dispatcher] job %s: watching workspace: %v", job.ID, err)
		}
	}
	go d.runJob(runCtx, job, ar)
}

// runJob executes the pipeline under timeout supervision, parses reports on
// success, and frees the run slot. It must never panic the process: any
// pipeline error terminates only this job.
func (d *Dispatcher) runJob(ctx context.Context, job *domain.Job, ar *activeRun) {
	defer close(ar.done)

	// Timeout supervisor: wall clock from StartedAt, queue wait excluded.
	timer := time.AfterFunc(time.Duration(job.Config.Timeout)*time.Second, func() {
		log.Printf("[dispatcher] job %s exceeded %ds timeout", job.ID, job.Config.Timeout)
		ar.cancelWith(domain.CancelTimeout)
	})
	defer timer.Stop()

	runErr := d.runner.Run(ctx, job.Clone(), d.workspaces.Path(job.ID), func(ev pipeline.Event) {
		d.handlePipelineEvent(job, ev)
	})

	timer.Stop()

	if runErr == nil {
		// Results must be persisted before the terminal status event so
		// observers of "completed" can immediately fetch them.
		results, warnings := d.parseResults(job)
		if err := d.store.SaveResults(job.ID, results, warnings); err != nil {
			log.Printf("[dispatcher] job %s: saving results: %v", job.ID, err)
		}
		d.mu.Lock()
		job.ResultWarnings = warnings
	} else {
		d.mu.Lock()
	}

	now := time.Now()
	job.CompletedAt = &now

	switch {
	case runErr == nil:
		d.setStatusLocked(job, domain.StatusCompleted)
	case errors.Is(runErr, context.Canceled), errors.Is(runErr, context.DeadlineExceeded):
		job.CancelReason = ar.reason
		if job.CancelReason == "" {
			job.CancelReason = domain.CancelUser
		}
		d.setStatusLocked(job, domain.StatusCancelled)
	default:
		var stageErr *domain.StageExitError
		if errors.As(runErr, &stageErr) && stageErr.StderrTail != "" {
			job.Error = stageErr.StderrTail
		} else {
			job.Error = runErr.Error()
		}
		d.setStatusLocked(job, domain.StatusFailed)
	}

	d.current = nil
	d.mu.Unlock()

	if d.watcher != nil {
		d.watcher.RemoveJob(job.ID)
	}
	d.publishSystemStatus()
	d.kick()
	log.Printf("[dispatcher] job %s finished: %s", job.ID, job.Status)
}

// handlePipelineEvent folds a pipeline observation into the job and
// republishes it. Progress is monotonic per job.
func (d *Dispatcher) handlePipelineEvent(job *domain.Job, ev pipeline.Event) {
	d.mu.Lock()
	advanced := ev.Progress > job.Progress || ev.Stage != job.CurrentStep
	if ev.Progress > job.Progress {
		job.Progress = ev.Progress
	}
	job.CurrentStep = ev.Stage
	progress := job.Progress
	status := job.Status
	d.mu.Unlock()

	if ev.Line != "" {
		d.broker.Publish(events.Event{
			Kind:  events.KindJobLogs,
			JobID: job.ID,
			Payload: protocol.JobLogsMessage{
				JobID:  job.ID,
				Stage:  ev.Stage,
				Line:   ev.Line,
				Stderr: ev.Stderr,
			},
		})
	}
	if advanced {
		d.broker.Publish(events.Event{
			Kind:  events.KindJobProgress,
			JobID: job.ID,
			Payload: protocol.JobProgressMessage{
				JobID:       job.ID,
				Progress:    progress,
				Status:      string(status),
				CurrentStep: ev.Stage,
			},
		})
	}
}

// HandleWorkspaceChange is the workspace watcher callback: tool-written
// files surface as a log-metadata event for the job's subscribers.
func (d *Dispatcher) HandleWorkspaceChange(jobID string, files []string) {
	d.broker.Publish(events.Event{
		Kind:    events.KindJobLogs,
		JobID:   jobID,
		Payload: protocol.JobLogsMessage{JobID: jobID, Files: files},
	})
}

// setStatusLocked applies a forward transition, persists the job and
// publishes the status event. Callers hold d.mu.
func (d *Dispatcher) setStatusLocked(job *domain.Job, next domain.JobStatus) {
	if !job.Status.CanTransition(next) {
		log.Printf("[dispatcher] job %s: refusing %s -> %s", job.ID, job.Status, next)
		return
	}
	job.Status = next
	if err := d.store.UpsertJob(job); err != nil {
		log.Printf("[dispatcher] job %s: persisting: %v", job.ID, err)
	}
	d.broker.Publish(events.Event{
		Kind:    events.KindJobStatus,
		JobID:   job.ID,
		Payload: protocol.JobStatusMessage{JobID: job.ID, Status: string(next)},
	})
}

func (d *Dispatcher) removeFromQueueLocked(jobID string) {
	for i, id := range d.queue {
		if id == jobID {
			d.queue = append(d.queue[:i], d.queue[i+1:]...)
			return
		}
	}
}

func (d *Dispatcher) publishSystemStatus() {
	d.mu.Lock()
	status := d.systemStatusLocked()
	d.mu.Unlock()
	d.broker.Publish(events.Event{
		Kind:    events.KindSystemStatus,
		Payload: protocol.SystemStatusMessage{System: status},
	})
}
