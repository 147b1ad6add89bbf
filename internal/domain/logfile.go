package domain

import (
	"strings"
	"time"
)

// LogStage classifies which pipeline stage produced a log file.
type LogStage string

const (
	LogCompile  LogStage = "compile"
	LogOptimize LogStage = "optimize"
	LogSimulate LogStage = "simulate"
	LogFormal   LogStage = "formal"
	LogOther    LogStage = "other"
)

// LogFile describes a file in a job workspace. Stage logs are append-only
// while the stage runs and immutable once it exits.
type LogFile struct {
	Filename    string    `json:"filename"`
	Stage       LogStage  `json:"stage"`
	Size        int64     `json:"size"`
	ModifiedAt  time.Time `json:"modifiedAt"`
	Description string    `json:"description,omitempty"`
}

// StageForFilename classifies a workspace file by name. Stage capture logs
// are named after their stage; everything else the tools drop in the
// workspace (reports, wave databases, qverify state) is "other".
func StageForFilename(name string) LogStage {
	switch {
	case strings.HasPrefix(name, "compile"):
		return LogCompile
	case strings.HasPrefix(name, "optimize"):
		return LogOptimize
	case strings.HasPrefix(name, "simulate") || name == "transcript":
		return LogSimulate
	case strings.HasPrefix(name, "formal") || strings.HasPrefix(name, "qverify"):
		return LogFormal
	}
	return LogOther
}
