// Package report parses the semi-structured text reports emitted by the
// verification toolchain into stable result schemas. The formats are an
// unversioned external protocol: unknown lines are ignored and incomplete
// entries are skipped, never fatal.
package report

import (
	"bufio"
	"bytes"
	"regexp"
	"strconv"
	"strings"
)

// CDCEndpoint is one side of a clock-domain crossing.
type CDCEndpoint struct {
	Clock  string `json:"clock"`
	Signal string `json:"signal"`
	File   string `json:"file,omitempty"`
	Line   int    `json:"line,omitempty"`
}

// CDCDetail is a single parsed CDC finding.
type CDCDetail struct {
	IssueType          string      `json:"issueType"`
	Start              CDCEndpoint `json:"start"`
	End                CDCEndpoint `json:"end"`
	SynchronizerID     string      `json:"synchronizerId,omitempty"`
	SynchronizerLength int         `json:"synchronizerLength,omitempty"`
	AdditionalInfo     string      `json:"additionalInfo,omitempty"`
}

// CDCSummary counts successfully parsed entries per section. TotalChecks is
// always the sum of the three section counts.
type CDCSummary struct {
	TotalChecks int `json:"totalChecks"`
	Violations  int `json:"violations"`
	Cautions    int `json:"cautions"`
	Evaluations int `json:"evaluations"`
}

// CDCReportData is the parsed form of a qverify CDC (or RDC) report.
type CDCReportData struct {
	Design      string      `json:"design"`
	Timestamp   string      `json:"timestamp"`
	Summary     CDCSummary  `json:"summary"`
	Violations  []CDCDetail `json:"violations"`
	Cautions    []CDCDetail `json:"cautions"`
	Evaluations []CDCDetail `json:"evaluations"`
}

var (
	// Section headers look like "==== Violations ====" or "-- Cautions --",
	// possibly with a stale count suffix the tool prints, e.g.
	// "==== Violations (7) ====". The count is deliberately not trusted.
	cdcSectionRegex = regexp.MustCompile(`^[=\-\s]*(Violations|Cautions|Evaluations)\s*(?:\(\d+\))?[=\-\s]*$`)

	// Entry headers: "Check: <issue type>" optionally with a parenthesised
	// rule tag, e.g. "Check: missing synchronizer (cdc_sync)".
	cdcCheckRegex = regexp.MustCompile(`^Check\s*:\s*(.+?)\s*$`)

	// "Start: clk_a : data_valid" / "End: clk_b : data_valid_sync"
	cdcEndpointRegex = regexp.MustCompile(`^(Start|End)\s*:\s*(\S+)\s*:\s*(\S+)\s*$`)
)

// ParseCDC parses a CDC report. It never fails: malformed or partial entry
// blocks are skipped and reported in the returned warnings, and the summary
// is derived from what actually parsed, not from the report header.
func ParseCDC(content []byte) (*CDCReportData, []string) {
	data := &CDCReportData{
		Violations:  []CDCDetail{},
		Cautions:    []CDCDetail{},
		Evaluations: []CDCDetail{},
	}
	var warnings []string

	section := ""
	var entry *CDCDetail
	var endpoint *CDCEndpoint

	flush := func() {
		if entry == nil {
			return
		}
		if entry.IssueType == "" || entry.Start.Signal == "" || entry.End.Signal == "" {
			warnings = append(warnings, "skipped incomplete entry in "+section+" section")
			entry = nil
			endpoint = nil
			return
		}
		switch section {
		case "Violations":
			data.Violations = append(data.Violations, *entry)
		case "Cautions":
			data.Cautions = append(data.Cautions, *entry)
		case "Evaluations":
			data.Evaluations = append(data.Evaluations, *entry)
		}
		entry = nil
		endpoint = nil
	}

	scanner := bufio.NewScanner(bytes.NewReader(content))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if m := cdcSectionRegex.FindStringSubmatch(line); m != nil {
			flush()
			section = m[1]
			continue
		}

		if section == "" {
			// Report preamble
			if v, ok := strings.CutPrefix(line, "Design:"); ok {
				data.Design = strings.TrimSpace(v)
			} else if v, ok := strings.CutPrefix(line, "Generated:"); ok {
				data.Timestamp = strings.TrimSpace(v)
			}
			continue
		}

		if m := cdcCheckRegex.FindStringSubmatch(line); m != nil {
			flush()
			entry = &CDCDetail{IssueType: m[1]}
			continue
		}
		if entry == nil {
			continue
		}

		switch {
		case cdcEndpointRegex.MatchString(line):
			m := cdcEndpointRegex.FindStringSubmatch(line)
			if m[1] == "Start" {
				endpoint = &entry.Start
			} else {
				endpoint = &entry.End
			}
			endpoint.Clock = m[2]
			endpoint.Signal = m[3]
		case strings.HasPrefix(line, "File:"):
			if endpoint != nil {
				endpoint.File = strings.TrimSpace(strings.TrimPrefix(line, "File:"))
			}
		case strings.HasPrefix(line, "Line:"):
			if endpoint != nil {
				endpoint.Line, _ = strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "Line:")))
			}
		case strings.HasPrefix(line, "Synchronizer ID:"):
			entry.SynchronizerID = strings.TrimSpace(strings.TrimPrefix(line, "Synchronizer ID:"))
		case strings.HasPrefix(line, "Synchronizer Length:"):
			entry.SynchronizerLength, _ = strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "Synchronizer Length:")))
		case strings.HasPrefix(line, "Additional Info:"):
			entry.AdditionalInfo = strings.TrimSpace(strings.TrimPrefix(line, "Additional Info:"))
		}
	}
	flush()

	data.Summary = CDCSummary{
		Violations:  len(data.Violations),
		Cautions:    len(data.Cautions),
		Evaluations: len(data.Evaluations),
	}
	data.Summary.TotalChecks = data.Summary.Violations + data.Summary.Cautions + data.Summary.Evaluations

	return data, warnings
}
