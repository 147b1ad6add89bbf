package pipeline

import "strings"

// Progress is derived from free-text milestone strings the tools print.
// Markers form an ordered table of (stage, substring, target percentage);
// the tracker takes the maximum target seen so far and never regresses.
type marker struct {
	stage  string
	substr string
	target int
}

var progressMarkers = []marker{
	{"compile", "-- Compiling module", 10},
	{"compile", "-- Compiling package", 10},
	{"compile", "Top level modules:", 25},
	{"optimize", "Optimizing", 38},
	{"optimize", "Optimized design name", 48},
	{"simulate", "Loading", 60},
	{"simulate", "run -all", 70},
	{"simulate", "$finish", 95},
	{"formal", "Compiling design", 55},
	{"formal", "Running analysis", 75},
	{"formal", "Generating report", 92},
}

// tracker computes the monotonically non-decreasing overall percentage for
// a single job run.
type tracker struct {
	current int
}

// StageStart lifts progress to the stage's floor.
func (t *tracker) StageStart(s Stage) int {
	if s.Floor > t.current {
		t.current = s.Floor
	}
	return t.current
}

// Observe classifies one output line. It returns the overall percentage and
// whether this line advanced it.
func (t *tracker) Observe(s Stage, line string) (int, bool) {
	advanced := false
	for _, m := range progressMarkers {
		if m.stage != s.Name || m.target <= t.current {
			continue
		}
		if strings.Contains(line, m.substr) {
			t.current = m.target
			advanced = true
		}
	}
	return t.current, advanced
}

// StageDone lifts progress to the stage's ceiling.
func (t *tracker) StageDone(s Stage) int {
	if s.Ceil > t.current {
		t.current = s.Ceil
	}
	return t.current
}
