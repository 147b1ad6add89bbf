package report

import (
	"strings"
	"testing"
)

const cdcFixture = `Questa CDC Report
Design: fifo_top
Generated: 2026-03-14 09:22:51
Total Checks: 99

==== Violations (7) ====

Check: missing synchronizer (cdc_sync)
  Start: clk_wr : wr_ptr
    File: src/fifo_wr.v
    Line: 42
  End: clk_rd : wr_ptr_gray
    File: src/fifo_rd.v
    Line: 17
  Additional Info: gray coding not detected

Check: combinational crossing (cdc_comb)
  Start: clk_a : req
    File: src/handshake.v
    Line: 8
  End: clk_b : ack
    File: src/handshake.v
    Line: 23

==== Cautions ====

Check: reconvergence (cdc_reconv)
  Start: clk_a : data_bus[3]
    File: src/bus.v
    Line: 101
  End: clk_b : data_bus_sync[3]
    File: src/bus.v
    Line: 140
  Synchronizer ID: sync_7
  Synchronizer Length: 2

==== Evaluations ====

Check: two-dff synchronizer (cdc_eval)
  Start: clk_a : flag
    File: src/flag.v
    Line: 5
  End: clk_b : flag_sync
    File: src/flag.v
    Line: 9
  Synchronizer ID: sync_1
  Synchronizer Length: 2

Check: two-dff synchronizer (cdc_eval)
  Start: clk_a : done
    File: src/ctrl.v
    Line: 77
  End: clk_b : done_sync
    File: src/ctrl.v
    Line: 81

Check: handshake protocol (cdc_eval)
  Start: clk_a : start
    File: src/ctrl.v
    Line: 52
  End: clk_b : start_ack
    File: src/ctrl.v
    Line: 60
`

func TestParseCDC_Fixture(t *testing.T) {
	data, warnings := ParseCDC([]byte(cdcFixture))

	if len(warnings) != 0 {
		t.Errorf("warnings = %v, want none", warnings)
	}
	if data.Design != "fifo_top" {
		t.Errorf("Design = %q, want fifo_top", data.Design)
	}
	if data.Timestamp != "2026-03-14 09:22:51" {
		t.Errorf("Timestamp = %q", data.Timestamp)
	}

	// Counts come from parsed entries, not the stale header total.
	want := CDCSummary{TotalChecks: 6, Violations: 2, Cautions: 1, Evaluations: 3}
	if data.Summary != want {
		t.Errorf("Summary = %+v, want %+v", data.Summary, want)
	}

	v := data.Violations[0]
	if v.IssueType != "missing synchronizer (cdc_sync)" {
		t.Errorf("IssueType = %q", v.IssueType)
	}
	if v.Start.Clock != "clk_wr" || v.Start.Signal != "wr_ptr" {
		t.Errorf("Start = %+v", v.Start)
	}
	if v.End.File != "src/fifo_rd.v" || v.End.Line != 17 {
		t.Errorf("End = %+v", v.End)
	}
	if v.AdditionalInfo != "gray coding not detected" {
		t.Errorf("AdditionalInfo = %q", v.AdditionalInfo)
	}

	c := data.Cautions[0]
	if c.SynchronizerID != "sync_7" || c.SynchronizerLength != 2 {
		t.Errorf("synchronizer = %q/%d", c.SynchronizerID, c.SynchronizerLength)
	}
}

func TestParseCDC_SummaryIdentity(t *testing.T) {
	inputs := []string{
		cdcFixture,
		"",
		"Design: d\n==== Violations ====\n==== Cautions ====\n==== Evaluations ====\n",
	}
	for _, in := range inputs {
		data, _ := ParseCDC([]byte(in))
		sum := len(data.Violations) + len(data.Cautions) + len(data.Evaluations)
		if data.Summary.TotalChecks != sum {
			t.Errorf("TotalChecks = %d, want %d", data.Summary.TotalChecks, sum)
		}
	}
}

func TestParseCDC_SkipsPartialEntries(t *testing.T) {
	input := `Design: d
==== Violations ====

Check: missing synchronizer
  Start: clk_a : sig_a
    File: a.v
    Line: 1

Check: combinational crossing
  Start: clk_a : x
    File: a.v
    Line: 2
  End: clk_b : x_sync
    File: b.v
    Line: 3
`
	data, warnings := ParseCDC([]byte(input))
	if len(data.Violations) != 1 {
		t.Fatalf("Violations = %d, want 1 (partial entry skipped)", len(data.Violations))
	}
	if data.Violations[0].IssueType != "combinational crossing" {
		t.Errorf("kept wrong entry: %q", data.Violations[0].IssueType)
	}
	if len(warnings) != 1 || !strings.Contains(warnings[0], "incomplete") {
		t.Errorf("warnings = %v", warnings)
	}
}

func TestParseCDC_EmptyInput(t *testing.T) {
	data, _ := ParseCDC(nil)
	if data.Summary.TotalChecks != 0 {
		t.Errorf("TotalChecks = %d, want 0", data.Summary.TotalChecks)
	}
	if data.Violations == nil || data.Cautions == nil || data.Evaluations == nil {
		t.Error("section slices must be non-nil for JSON encoding")
	}
}
