package domain

import (
	"errors"
	"fmt"
)

// ErrJobNotFound is returned when a job ID does not resolve to a known job.
var ErrJobNotFound = errors.New("job not found")

// ValidationError rejects a submission before a job record is created.
// It is the only error surfaced synchronously to the submitting caller.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ProcessSpawnError means a tool binary could not be started at all,
// typically a misconfigured toolchain path. The job fails without retry.
type ProcessSpawnError struct {
	Stage string
	Err   error
}

func (e *ProcessSpawnError) Error() string {
	return fmt.Sprintf("spawning %s stage: %v", e.Stage, e.Err)
}

func (e *ProcessSpawnError) Unwrap() error { return e.Err }

// StageExitError means a pipeline stage exited non-zero. Remaining stages
// are skipped and the captured stderr tail becomes the job error.
type StageExitError struct {
	Stage      string
	ExitCode   int
	StderrTail string
}

func (e *StageExitError) Error() string {
	if e.StderrTail == "" {
		return fmt.Sprintf("%s stage exited with code %d", e.Stage, e.ExitCode)
	}
	return fmt.Sprintf("%s stage exited with code %d: %s", e.Stage, e.ExitCode, e.StderrTail)
}
