package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/verigrid/questad/internal/domain"
)

func jobForTest(t *testing.T, jobType domain.JobType) *domain.Job {
	t.Helper()
	cfg := domain.JobConfig{DutTop: "tb_top", Timeout: 60}
	if jobType == domain.JobFormal {
		cfg.FormalMode = domain.ModeCDC
	}
	return &domain.Job{ID: "job-test", Type: jobType, Config: cfg}
}

// writeStub writes an executable shell script standing in for a tool binary.
func writeStub(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0755); err != nil {
		t.Fatal(err)
	}
	return path
}

type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (er *eventRecorder) emit(ev Event) {
	er.mu.Lock()
	er.events = append(er.events, ev)
	er.mu.Unlock()
}

func (er *eventRecorder) all() []Event {
	er.mu.Lock()
	defer er.mu.Unlock()
	return append([]Event(nil), er.events...)
}

func TestRunner_AllStagesSucceed(t *testing.T) {
	bin := t.TempDir()
	workspace := t.TempDir()

	tc := Toolchain{
		Vlog: writeStub(t, bin, "vlog", `echo "-- Compiling module tb_top"; echo "Top level modules: tb_top"`),
		Vopt: writeStub(t, bin, "vopt", `echo "Optimizing tb_top"`),
		Vsim: writeStub(t, bin, "vsim", `echo "# Loading work.tb_top"; echo "# \$finish reached"`),
	}

	r := &Runner{Toolchain: tc}
	rec := &eventRecorder{}

	if err := r.Run(context.Background(), jobForTest(t, domain.JobSimulation), workspace, rec.emit); err != nil {
		t.Fatalf("Run() = %v", err)
	}

	for _, name := range []string{"compile.log", "optimize.log", "simulate.log"} {
		data, err := os.ReadFile(filepath.Join(workspace, name))
		if err != nil {
			t.Fatalf("missing %s: %v", name, err)
		}
		if len(data) == 0 {
			t.Errorf("%s is empty", name)
		}
	}

	events := rec.all()
	last := -1
	for _, ev := range events {
		if ev.Progress < last {
			t.Fatalf("progress regressed: %d -> %d", last, ev.Progress)
		}
		last = ev.Progress
	}
	if last != 100 {
		t.Errorf("final progress = %d, want 100", last)
	}
}

func TestRunner_StageFailureAbortsPipeline(t *testing.T) {
	bin := t.TempDir()
	workspace := t.TempDir()

	tc := Toolchain{
		Vlog: writeStub(t, bin, "vlog", `echo "compiling"; echo "ERROR: syntax" >&2; exit 1`),
		Vopt: writeStub(t, bin, "vopt", `echo "should never run"`),
		Vsim: writeStub(t, bin, "vsim", `echo "should never run"`),
	}

	r := &Runner{Toolchain: tc}
	err := r.Run(context.Background(), jobForTest(t, domain.JobSimulation), workspace, func(Event) {})

	var stageErr *domain.StageExitError
	if !errors.As(err, &stageErr) {
		t.Fatalf("Run() = %v, want *StageExitError", err)
	}
	if stageErr.Stage != "compile" || stageErr.ExitCode != 1 {
		t.Errorf("stage error = %+v", stageErr)
	}
	if !strings.Contains(stageErr.StderrTail, "syntax") {
		t.Errorf("StderrTail = %q, want to contain 'syntax'", stageErr.StderrTail)
	}

	// Later stages must never produce log files.
	for _, name := range []string{"optimize.log", "simulate.log"} {
		if _, err := os.Stat(filepath.Join(workspace, name)); !os.IsNotExist(err) {
			t.Errorf("%s exists after aborted pipeline", name)
		}
	}
}

func TestRunner_StderrTailIsBounded(t *testing.T) {
	bin := t.TempDir()
	workspace := t.TempDir()

	tc := Toolchain{
		Vlog: writeStub(t, bin, "vlog", `i=0; while [ $i -lt 50 ]; do echo "ERROR line $i" >&2; i=$((i+1)); done; exit 2`),
	}

	r := &Runner{Toolchain: tc, StderrTailLines: 5}
	err := r.Run(context.Background(), jobForTest(t, domain.JobSimulation), workspace, func(Event) {})

	var stageErr *domain.StageExitError
	if !errors.As(err, &stageErr) {
		t.Fatalf("Run() = %v", err)
	}
	lines := strings.Split(stageErr.StderrTail, "\n")
	if len(lines) != 5 {
		t.Fatalf("tail has %d lines, want 5", len(lines))
	}
	if lines[4] != "ERROR line 49" {
		t.Errorf("last tail line = %q, want the final stderr line", lines[4])
	}
}

func TestRunner_SpawnErrorForMissingTool(t *testing.T) {
	workspace := t.TempDir()
	tc := Toolchain{Vlog: filepath.Join(workspace, "does-not-exist")}

	r := &Runner{Toolchain: tc}
	err := r.Run(context.Background(), jobForTest(t, domain.JobSimulation), workspace, func(Event) {})

	var spawnErr *domain.ProcessSpawnError
	if !errors.As(err, &spawnErr) {
		t.Fatalf("Run() = %v, want *ProcessSpawnError", err)
	}
	if spawnErr.Stage != "compile" {
		t.Errorf("Stage = %q, want compile", spawnErr.Stage)
	}
}

func TestRunner_CancellationTerminatesStage(t *testing.T) {
	bin := t.TempDir()
	workspace := t.TempDir()

	tc := Toolchain{
		Vlog: writeStub(t, bin, "vlog", `echo "compiling"; sleep 30`),
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Runner{Toolchain: tc, Grace: 500 * time.Millisecond}

	errCh := make(chan error, 1)
	go func() {
		errCh <- r.Run(ctx, jobForTest(t, domain.JobSimulation), workspace, func(Event) {})
	}()

	time.Sleep(200 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	// Partial log captured before termination remains retrievable.
	data, err := os.ReadFile(filepath.Join(workspace, "compile.log"))
	if err != nil || len(data) == 0 {
		t.Errorf("compile.log missing or empty after cancel: %v", err)
	}
}

func TestRunner_FormalPipelineRunsQverify(t *testing.T) {
	bin := t.TempDir()
	workspace := t.TempDir()

	tc := Toolchain{
		Vlog:    writeStub(t, bin, "vlog", `echo "Top level modules: top"`),
		Qverify: writeStub(t, bin, "qverify", `echo "Running analysis"; echo "Generating report"`),
	}

	r := &Runner{Toolchain: tc}
	if err := r.Run(context.Background(), jobForTest(t, domain.JobFormal), workspace, func(Event) {}); err != nil {
		t.Fatalf("Run() = %v", err)
	}
	if _, err := os.Stat(filepath.Join(workspace, "formal.log")); err != nil {
		t.Errorf("formal.log missing: %v", err)
	}
}
