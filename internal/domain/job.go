// Package domain holds the core types for verification jobs and their
// parsed results.
package domain

import "time"

// JobType selects the tool pipeline a job runs through.
type JobType string

const (
	JobSimulation JobType = "simulation"
	JobFormal     JobType = "formal"
)

// FormalMode selects the qverify analysis for formal jobs.
type FormalMode string

const (
	ModeLint FormalMode = "lint"
	ModeCDC  FormalMode = "cdc"
	ModeRDC  FormalMode = "rdc"
)

// JobStatus represents the lifecycle state of a job
type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusQueued    JobStatus = "queued"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
	StatusCancelled JobStatus = "cancelled"
)

// statusRank orders statuses along the lifecycle. Terminal states share a
// rank: a job moves to exactly one of them and never leaves it.
func statusRank(s JobStatus) int {
	switch s {
	case StatusPending:
		return 0
	case StatusQueued:
		return 1
	case StatusRunning:
		return 2
	case StatusCompleted, StatusFailed, StatusCancelled:
		return 3
	}
	return -1
}

// IsTerminal returns true for completed, failed and cancelled.
func (s JobStatus) IsTerminal() bool {
	return statusRank(s) == 3
}

// CanTransition reports whether moving from s to next is a forward lifecycle
// transition. Backward moves and leaving a terminal state are rejected.
func (s JobStatus) CanTransition(next JobStatus) bool {
	if s.IsTerminal() {
		return false
	}
	return statusRank(next) > statusRank(s)
}

// CancelReason distinguishes why a job ended up cancelled.
type CancelReason string

const (
	CancelUser    CancelReason = "user"
	CancelTimeout CancelReason = "timeout"
)

// JobConfig carries the per-job tool settings supplied on submission.
type JobConfig struct {
	DutTop             string     `json:"dutTop"`
	FormalMode         FormalMode `json:"formalMode,omitempty"`
	Timeout            int        `json:"timeout"` // seconds, wall clock
	SimulationTime     string     `json:"simulationTime,omitempty"`
	CompileOptions     string     `json:"compileOptions,omitempty"`
	IncludeDirectories []string   `json:"includeDirectories,omitempty"`
}

// Validate checks a config against the submission contract for the given
// job type. It returns a *ValidationError describing the first problem found.
func (c *JobConfig) Validate(jobType JobType) error {
	if c.DutTop == "" {
		return &ValidationError{Field: "dutTop", Reason: "top-level module is required"}
	}
	if c.Timeout <= 0 {
		return &ValidationError{Field: "timeout", Reason: "timeout must be positive"}
	}
	if jobType == JobFormal {
		switch c.FormalMode {
		case ModeLint, ModeCDC, ModeRDC:
		case "":
			return &ValidationError{Field: "formalMode", Reason: "formal mode is required for formal jobs"}
		default:
			return &ValidationError{Field: "formalMode", Reason: "unknown formal mode: " + string(c.FormalMode)}
		}
	}
	return nil
}

// Job is a single simulation or formal-verification run. All mutation goes
// through the dispatcher; other components only read snapshots.
type Job struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"projectId"`
	Type      JobType   `json:"type"`
	Status    JobStatus `json:"status"`
	Config    JobConfig `json:"config"`

	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`

	// Error is populated only when the job failed.
	Error string `json:"error,omitempty"`

	// CancelReason is set when the job was cancelled, either by a user or
	// by the timeout supervisor.
	CancelReason CancelReason `json:"-"`

	// Progress and CurrentStep mirror the latest pipeline report.
	Progress    int    `json:"progress"`
	CurrentStep string `json:"currentStep,omitempty"`

	// ResultWarnings surfaces parser degradation alongside the results.
	ResultWarnings []string `json:"resultWarnings,omitempty"`
}

// Clone returns a copy safe to hand to observers.
func (j *Job) Clone() *Job {
	cp := *j
	if j.StartedAt != nil {
		t := *j.StartedAt
		cp.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		cp.CompletedAt = &t
	}
	cp.Config.IncludeDirectories = append([]string(nil), j.Config.IncludeDirectories...)
	cp.ResultWarnings = append([]string(nil), j.ResultWarnings...)
	return &cp
}
