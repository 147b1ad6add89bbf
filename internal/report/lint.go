package report

import (
	"bufio"
	"bytes"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// LintViolation is a single occurrence of a lint check firing.
type LintViolation struct {
	Description string `json:"description"`
	File        string `json:"file,omitempty"`
	Line        int    `json:"line,omitempty"`
	Module      string `json:"module,omitempty"`
	Hierarchy   string `json:"hierarchy,omitempty"`
}

// LintCheck is one check from the lint database dump with its violations.
type LintCheck struct {
	CheckName  string          `json:"checkName"`
	Category   string          `json:"category"`
	Alias      string          `json:"alias,omitempty"`
	Message    string          `json:"message"`
	Severity   string          `json:"severity"`
	Violations []LintViolation `json:"violations"`
}

// LintSummary counts checks (not raw violations) per severity.
type LintSummary struct {
	Error   int `json:"error"`
	Warning int `json:"warning"`
	Info    int `json:"info"`
}

// LintReportData is the parsed form of a qverify lint report.
type LintReportData struct {
	Design             string      `json:"design"`
	Timestamp          string      `json:"timestamp"`
	DesignQualityScore float64     `json:"designQualityScore"`
	Summary            LintSummary `json:"summary"`
	CheckDetails       []LintCheck `json:"checkDetails"`
}

var (
	lintScoreRegex = regexp.MustCompile(`^Design Quality Score\s*:\s*([0-9.]+)`)
	// Absolute paths embedded in free-text messages; surfaced as basename only.
	absPathRegex = regexp.MustCompile(`/[\w.\-/]+`)
)

// normalizeMessagePaths strips absolute path prefixes from free-text tool
// messages so the UI shows "top.sv" instead of a toolchain scratch path.
func normalizeMessagePaths(msg string) string {
	return absPathRegex.ReplaceAllStringFunc(msg, filepath.Base)
}

// ParseLint parses a lint check-database dump. Severity summary counts are
// per check, regardless of how many violations each check accumulated.
func ParseLint(content []byte) (*LintReportData, []string) {
	data := &LintReportData{CheckDetails: []LintCheck{}}
	var warnings []string

	var check *LintCheck
	var violation *LintViolation

	flushViolation := func() {
		if check != nil && violation != nil {
			check.Violations = append(check.Violations, *violation)
		}
		violation = nil
	}
	flushCheck := func() {
		flushViolation()
		if check == nil {
			return
		}
		if check.CheckName == "" || check.Severity == "" {
			warnings = append(warnings, "skipped lint check entry without name or severity")
			check = nil
			return
		}
		switch check.Severity {
		case "error":
			data.Summary.Error++
		case "warning":
			data.Summary.Warning++
		case "info":
			data.Summary.Info++
		}
		data.CheckDetails = append(data.CheckDetails, *check)
		check = nil
	}

	scanner := bufio.NewScanner(bytes.NewReader(content))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if m := lintScoreRegex.FindStringSubmatch(line); m != nil {
			score, err := strconv.ParseFloat(m[1], 64)
			if err == nil && score >= 0 && score <= 100 {
				data.DesignQualityScore = score
			}
			continue
		}

		if v, ok := strings.CutPrefix(line, "Check:"); ok {
			flushCheck()
			check = &LintCheck{CheckName: strings.TrimSpace(v), Violations: []LintViolation{}}
			continue
		}

		if check == nil {
			if v, ok := strings.CutPrefix(line, "Design:"); ok {
				data.Design = strings.TrimSpace(v)
			} else if v, ok := strings.CutPrefix(line, "Generated:"); ok {
				data.Timestamp = strings.TrimSpace(v)
			}
			continue
		}

		switch {
		case strings.HasPrefix(line, "Severity:"):
			check.Severity = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(line, "Severity:")))
		case strings.HasPrefix(line, "Category:"):
			check.Category = strings.TrimSpace(strings.TrimPrefix(line, "Category:"))
		case strings.HasPrefix(line, "Alias:"):
			check.Alias = strings.TrimSpace(strings.TrimPrefix(line, "Alias:"))
		case strings.HasPrefix(line, "Message:"):
			check.Message = normalizeMessagePaths(strings.TrimSpace(strings.TrimPrefix(line, "Message:")))
		case strings.HasPrefix(line, "Violation:"):
			flushViolation()
			violation = &LintViolation{Description: strings.TrimSpace(strings.TrimPrefix(line, "Violation:"))}
		case violation != nil && strings.HasPrefix(line, "File:"):
			violation.File = strings.TrimSpace(strings.TrimPrefix(line, "File:"))
		case violation != nil && strings.HasPrefix(line, "Line:"):
			violation.Line, _ = strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "Line:")))
		case violation != nil && strings.HasPrefix(line, "Module:"):
			violation.Module = strings.TrimSpace(strings.TrimPrefix(line, "Module:"))
		case violation != nil && strings.HasPrefix(line, "Hierarchy:"):
			violation.Hierarchy = strings.TrimSpace(strings.TrimPrefix(line, "Hierarchy:"))
		}
	}
	flushCheck()

	return data, warnings
}
