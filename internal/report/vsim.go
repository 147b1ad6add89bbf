package report

import (
	"bufio"
	"bytes"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// TestStatus is the outcome of a test case across all its runs.
type TestStatus string

const (
	TestPass      TestStatus = "PASS"
	TestFail      TestStatus = "FAIL"
	TestNotTested TestStatus = "NOT_TESTED"
)

// TestOccurrence is a single pass/fail marker from the transcript.
// TimeStamp is simulation time, not wall clock.
type TestOccurrence struct {
	TimeStamp   float64    `json:"timeStamp"`
	Status      TestStatus `json:"status"`
	Description string     `json:"description,omitempty"`
}

// TestCaseResult aggregates every occurrence of one test id.
type TestCaseResult struct {
	TestID      string           `json:"testId"`
	Name        string           `json:"name"`
	Status      TestStatus       `json:"status"`
	PassCount   int              `json:"passCount"`
	FailCount   int              `json:"failCount"`
	TotalRuns   int              `json:"totalRuns"`
	Occurrences []TestOccurrence `json:"occurrences"`
}

// VsimResultSummary is the parsed form of a simulation transcript.
type VsimResultSummary struct {
	TestResults    []TestCaseResult `json:"testResults"`
	TotalTests     int              `json:"totalTests"`
	PassedTests    int              `json:"passedTests"`
	FailedTests    int              `json:"failedTests"`
	NotTestedTests int              `json:"notTestedTests"`
}

var (
	// Testbenches register their cases up front:
	//   [TEST] REGISTER TC_RESET reset sequence
	vsimRegisterRegex = regexp.MustCompile(`\[TEST\]\s+REGISTER\s+(\S+)(?:\s+(.*))?$`)
	// Result markers carry a simulation timestamp:
	//   [TEST] RESULT TC_RESET PASS @ 1250.0: reset released cleanly
	vsimResultRegex = regexp.MustCompile(`\[TEST\]\s+RESULT\s+(\S+)\s+(PASS|FAIL)\s+@\s+([0-9.eE+\-]+)\s*(?:ns)?\s*(?::\s*(.*))?$`)
)

// ParseVsimResults parses pass/fail markers out of a simulation transcript.
// Occurrences are grouped by test id and sorted by simulation time; a
// registered test with no result markers is reported NOT_TESTED.
func ParseVsimResults(content []byte) (*VsimResultSummary, []string) {
	summary := &VsimResultSummary{TestResults: []TestCaseResult{}}
	var warnings []string

	results := make(map[string]*TestCaseResult)
	var order []string

	lookup := func(id, name string) *TestCaseResult {
		if r, ok := results[id]; ok {
			if r.Name == r.TestID && name != "" {
				r.Name = name
			}
			return r
		}
		if name == "" {
			name = id
		}
		r := &TestCaseResult{TestID: id, Name: name, Occurrences: []TestOccurrence{}}
		results[id] = r
		order = append(order, id)
		return r
	}

	scanner := bufio.NewScanner(bytes.NewReader(content))
	for scanner.Scan() {
		// vsim prefixes transcript lines with "# "
		line := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(scanner.Text()), "# "))

		if m := vsimRegisterRegex.FindStringSubmatch(line); m != nil {
			lookup(m[1], strings.TrimSpace(m[2]))
			continue
		}

		m := vsimResultRegex.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		ts, err := strconv.ParseFloat(m[3], 64)
		if err != nil {
			warnings = append(warnings, "skipped result marker with bad timestamp: "+line)
			continue
		}

		r := lookup(m[1], "")
		occ := TestOccurrence{
			TimeStamp:   ts,
			Status:      TestStatus(m[2]),
			Description: strings.TrimSpace(m[4]),
		}
		r.Occurrences = append(r.Occurrences, occ)
		if occ.Status == TestPass {
			r.PassCount++
		} else {
			r.FailCount++
		}
		r.TotalRuns++
	}

	for _, id := range order {
		r := results[id]
		sort.SliceStable(r.Occurrences, func(i, j int) bool {
			return r.Occurrences[i].TimeStamp < r.Occurrences[j].TimeStamp
		})
		switch {
		case r.TotalRuns == 0:
			r.Status = TestNotTested
			summary.NotTestedTests++
		case r.FailCount > 0:
			r.Status = TestFail
			summary.FailedTests++
		default:
			r.Status = TestPass
			summary.PassedTests++
		}
		summary.TestResults = append(summary.TestResults, *r)
	}
	summary.TotalTests = len(summary.TestResults)

	return summary, warnings
}
