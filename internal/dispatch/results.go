package dispatch

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/verigrid/questad/internal/domain"
	"github.com/verigrid/questad/internal/report"
)

// parseResults reads the report output the pipeline left in the workspace
// and parses it by job type. Parsing never fails the job: a missing or
// malformed report yields a default-shaped result plus warnings.
func (d *Dispatcher) parseResults(job *domain.Job) (any, []string) {
	dir := d.workspaces.Path(job.ID)

	switch job.Type {
	case domain.JobSimulation:
		content, warnings := readReport(dir, "simulate.log")
		summary, parseWarnings := report.ParseVsimResults(content)
		return summary, append(warnings, parseWarnings...)

	case domain.JobFormal:
		switch job.Config.FormalMode {
		case domain.ModeLint:
			content, warnings := readReport(dir, "lint.rpt", "formal.log")
			data, parseWarnings := report.ParseLint(content)
			return data, append(warnings, parseWarnings...)
		case domain.ModeCDC:
			content, warnings := readReport(dir, "cdc.rpt", "formal.log")
			data, parseWarnings := report.ParseCDC(content)
			return data, append(warnings, parseWarnings...)
		case domain.ModeRDC:
			content, warnings := readReport(dir, "rdc.rpt", "formal.log")
			data, parseWarnings := report.ParseCDC(content)
			return data, append(warnings, parseWarnings...)
		}
	}

	return nil, []string{fmt.Sprintf("no report mapping for job type %q", job.Type)}
}

// readReport returns the first readable candidate file. All parsers accept
// nil content and produce an empty result, so total absence only warns.
func readReport(dir string, candidates ...string) ([]byte, []string) {
	var warnings []string
	for _, name := range candidates {
		content, err := os.ReadFile(filepath.Join(dir, name))
		if err == nil {
			return content, warnings
		}
		if !os.IsNotExist(err) {
			warnings = append(warnings, fmt.Sprintf("reading %s: %v", name, err))
		}
	}
	warnings = append(warnings, fmt.Sprintf("no report file found (tried %v)", candidates))
	return nil, warnings
}
