package pipeline

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/verigrid/questad/internal/domain"
)

// Event is one observation from a running pipeline: a captured output line,
// a progress advance, or both. Progress always carries the current overall
// percentage.
type Event struct {
	Stage    string
	Progress int
	Line     string // empty for progress-only events
	Stderr   bool
}

// EmitFunc receives pipeline events in process-output order.
type EmitFunc func(Event)

const defaultGrace = 5 * time.Second

// Runner executes stage pipelines in job workspaces. It reports only
// whether tool invocations exited zero; pass/fail of the design itself is
// the report parsers' concern.
type Runner struct {
	Toolchain       Toolchain
	StderrTailLines int
	Grace           time.Duration // SIGTERM to SIGKILL escalation window
}

// Run executes the job's stages in order. A stage's non-zero exit aborts the
// pipeline with a *domain.StageExitError; a stage that cannot be spawned
// aborts with a *domain.ProcessSpawnError; context cancellation terminates
// the current process group and returns the context error.
func (r *Runner) Run(ctx context.Context, job *domain.Job, workspace string, emit EmitFunc) error {
	var tr tracker

	for _, stage := range Stages(r.Toolchain, job) {
		if err := ctx.Err(); err != nil {
			return err
		}
		emit(Event{Stage: stage.Name, Progress: tr.StageStart(stage)})
		log.Printf("[pipeline] job %s: %s stage starting (%s)", job.ID, stage.Name, stage.Tool)

		if err := r.runStage(ctx, job.ID, stage, workspace, &tr, emit); err != nil {
			return err
		}

		emit(Event{Stage: stage.Name, Progress: tr.StageDone(stage)})
		log.Printf("[pipeline] job %s: %s stage done", job.ID, stage.Name)
	}
	return nil
}

func (r *Runner) runStage(ctx context.Context, jobID string, stage Stage, workspace string, tr *tracker, emit EmitFunc) error {
	logFile, err := os.OpenFile(filepath.Join(workspace, stage.LogName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening %s: %w", stage.LogName, err)
	}
	defer logFile.Close()

	cmd := exec.Command(stage.Tool, stage.Args...)
	cmd.Dir = workspace
	setProcessGroup(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return &domain.ProcessSpawnError{Stage: stage.Name, Err: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return &domain.ProcessSpawnError{Stage: stage.Name, Err: err}
	}

	if err := cmd.Start(); err != nil {
		return &domain.ProcessSpawnError{Stage: stage.Name, Err: err}
	}

	run := &stageRun{
		stage:    stage,
		tracker:  tr,
		logFile:  logFile,
		emit:     emit,
		tailSize: r.StderrTailLines,
	}
	if run.tailSize <= 0 {
		run.tailSize = 20
	}

	done := make(chan struct{})
	go func() {
		run.consume(stdout, false)
		done <- struct{}{}
	}()
	go func() {
		run.consume(stderr, true)
		done <- struct{}{}
	}()

	// Termination watcher: on cancel, signal the whole process group and
	// escalate after the grace window.
	waited := make(chan struct{})
	go func() {
		grace := r.Grace
		if grace == 0 {
			grace = defaultGrace
		}
		select {
		case <-waited:
		case <-ctx.Done():
			log.Printf("[pipeline] job %s: terminating %s stage", jobID, stage.Name)
			terminateProcessGroup(cmd)
			select {
			case <-waited:
			case <-time.After(grace):
				killProcessGroup(cmd)
			}
		}
	}()

	<-done
	<-done
	err = cmd.Wait()
	close(waited)

	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return &domain.StageExitError{
				Stage:      stage.Name,
				ExitCode:   exitErr.ExitCode(),
				StderrTail: run.tail(),
			}
		}
		return fmt.Errorf("%s stage: %w", stage.Name, err)
	}
	return nil
}

// stageRun gathers the per-stage output state shared by the two stream
// readers: the append-only log file, the stderr tail ring and the tracker.
type stageRun struct {
	stage    Stage
	tracker  *tracker
	logFile  *os.File
	emit     EmitFunc
	tailSize int

	mu        sync.Mutex
	tailLines []string
}

func (sr *stageRun) consume(r io.Reader, isStderr bool) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()

		sr.mu.Lock()
		sr.logFile.WriteString(line + "\n")
		if isStderr {
			sr.tailLines = append(sr.tailLines, line)
			if len(sr.tailLines) > sr.tailSize {
				sr.tailLines = sr.tailLines[1:]
			}
		}
		progress, _ := sr.tracker.Observe(sr.stage, line)
		sr.mu.Unlock()

		sr.emit(Event{Stage: sr.stage.Name, Progress: progress, Line: line, Stderr: isStderr})
	}
}

func (sr *stageRun) tail() string {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	return strings.Join(sr.tailLines, "\n")
}
