// Package pipeline drives the per-job sequence of external tool invocations,
// capturing output to stage log files and deriving progress.
package pipeline

import (
	"fmt"
	"strings"

	"github.com/verigrid/questad/internal/domain"
)

// Toolchain holds the binary paths for the external tools. The tools are
// opaque: the pipeline only cares about exit codes and output streams.
type Toolchain struct {
	Vlog    string
	Vopt    string
	Vsim    string
	Qverify string
}

// Stage is one external tool invocation. Stages are allotted disjoint
// progress bands so overall progress never regresses across a stage change.
type Stage struct {
	Name    string
	Tool    string
	Args    []string
	LogName string
	Floor   int
	Ceil    int
}

const optimizedSuffix = "_opt"

// Stages builds the ordered pipeline for a job. Simulation runs
// compile -> optimize -> simulate; formal runs compile -> formal.
func Stages(tc Toolchain, job *domain.Job) []Stage {
	cfg := job.Config

	compileArgs := []string{"-f", "filelist.f"}
	if cfg.CompileOptions != "" {
		compileArgs = append(compileArgs, strings.Fields(cfg.CompileOptions)...)
	}
	for _, dir := range cfg.IncludeDirectories {
		compileArgs = append(compileArgs, "+incdir+"+dir)
	}

	if job.Type == domain.JobFormal {
		return []Stage{
			{
				Name:    "compile",
				Tool:    tc.Vlog,
				Args:    compileArgs,
				LogName: "compile.log",
				Floor:   0,
				Ceil:    40,
			},
			{
				Name: "formal",
				Tool: tc.Qverify,
				Args: []string{
					"-c", "-od", ".",
					"-do", fmt.Sprintf("%s run -d %s; %s generate report %s.rpt; exit",
						cfg.FormalMode, cfg.DutTop, cfg.FormalMode, cfg.FormalMode),
				},
				LogName: "formal.log",
				Floor:   40,
				Ceil:    100,
			},
		}
	}

	runDirective := cfg.SimulationTime
	if runDirective == "" {
		runDirective = "run -all"
	}

	return []Stage{
		{
			Name:    "compile",
			Tool:    tc.Vlog,
			Args:    compileArgs,
			LogName: "compile.log",
			Floor:   0,
			Ceil:    30,
		},
		{
			Name:    "optimize",
			Tool:    tc.Vopt,
			Args:    []string{cfg.DutTop, "-o", cfg.DutTop + optimizedSuffix},
			LogName: "optimize.log",
			Floor:   30,
			Ceil:    50,
		},
		{
			Name:    "simulate",
			Tool:    tc.Vsim,
			Args:    []string{"-c", cfg.DutTop + optimizedSuffix, "-do", runDirective + "; quit -f"},
			LogName: "simulate.log",
			Floor:   50,
			Ceil:    100,
		},
	}
}
