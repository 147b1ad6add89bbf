package pipeline

import "testing"

func simStages() (compile, optimize, simulate Stage) {
	return Stage{Name: "compile", Floor: 0, Ceil: 30},
		Stage{Name: "optimize", Floor: 30, Ceil: 50},
		Stage{Name: "simulate", Floor: 50, Ceil: 100}
}

func TestTracker_MonotonicAcrossStages(t *testing.T) {
	compile, optimize, simulate := simStages()
	var tr tracker

	last := -1
	observe := func(p int) {
		if p < last {
			t.Fatalf("progress regressed: %d -> %d", last, p)
		}
		last = p
	}

	observe(tr.StageStart(compile))
	p, _ := tr.Observe(compile, "-- Compiling module fifo")
	observe(p)
	p, _ = tr.Observe(compile, "Top level modules: tb_top")
	observe(p)
	observe(tr.StageDone(compile))

	observe(tr.StageStart(optimize))
	p, _ = tr.Observe(optimize, "Optimizing tb_top...")
	observe(p)
	observe(tr.StageDone(optimize))

	observe(tr.StageStart(simulate))
	p, _ = tr.Observe(simulate, "# Loading work.tb_top(fast)")
	observe(p)
	p, _ = tr.Observe(simulate, "# ** Note: $finish")
	observe(p)
	observe(tr.StageDone(simulate))

	if last != 100 {
		t.Errorf("final progress = %d, want 100", last)
	}
}

func TestTracker_UnknownLinesDoNotAdvance(t *testing.T) {
	compile, _, _ := simStages()
	var tr tracker
	tr.StageStart(compile)

	p, advanced := tr.Observe(compile, "some chatter the tool prints")
	if advanced || p != 0 {
		t.Errorf("Observe = (%d, %v), want (0, false)", p, advanced)
	}
}

func TestTracker_MarkerForOtherStageIgnored(t *testing.T) {
	compile, _, _ := simStages()
	var tr tracker
	tr.StageStart(compile)

	// A simulate-stage marker must not fire during compile.
	p, advanced := tr.Observe(compile, "# Loading work.tb_top")
	if advanced || p != 0 {
		t.Errorf("Observe = (%d, %v), want (0, false)", p, advanced)
	}
}

func TestTracker_RepeatedMarkerDoesNotRegress(t *testing.T) {
	compile, _, _ := simStages()
	var tr tracker
	tr.StageStart(compile)

	tr.Observe(compile, "Top level modules: a")
	p, advanced := tr.Observe(compile, "-- Compiling module late_one")
	if advanced || p != 25 {
		t.Errorf("Observe = (%d, %v), want (25, false)", p, advanced)
	}
}

func TestStages_Simulation(t *testing.T) {
	tc := Toolchain{Vlog: "vlog", Vopt: "vopt", Vsim: "vsim", Qverify: "qverify"}
	job := jobForTest(t, "simulation")
	job.Config.CompileOptions = "+define+FAST_SIM"
	job.Config.IncludeDirectories = []string{"include", "src/common"}

	stages := Stages(tc, job)
	if len(stages) != 3 {
		t.Fatalf("got %d stages, want 3", len(stages))
	}
	if stages[0].Name != "compile" || stages[1].Name != "optimize" || stages[2].Name != "simulate" {
		t.Errorf("stage order: %s, %s, %s", stages[0].Name, stages[1].Name, stages[2].Name)
	}

	// Include directory order is tool search-path order.
	args := stages[0].Args
	wantTail := []string{"+define+FAST_SIM", "+incdir+include", "+incdir+src/common"}
	if len(args) < len(wantTail) {
		t.Fatalf("compile args = %v", args)
	}
	for i, want := range wantTail {
		got := args[len(args)-len(wantTail)+i]
		if got != want {
			t.Errorf("arg = %q, want %q", got, want)
		}
	}

	// Bands are disjoint and ascending.
	for i := 1; i < len(stages); i++ {
		if stages[i].Floor != stages[i-1].Ceil {
			t.Errorf("stage %s floor %d != previous ceil %d", stages[i].Name, stages[i].Floor, stages[i-1].Ceil)
		}
	}
	if stages[len(stages)-1].Ceil != 100 {
		t.Error("last stage must reach 100")
	}
}

func TestStages_Formal(t *testing.T) {
	tc := Toolchain{Vlog: "vlog", Qverify: "qverify"}
	job := jobForTest(t, "formal")

	stages := Stages(tc, job)
	if len(stages) != 2 {
		t.Fatalf("got %d stages, want 2", len(stages))
	}
	if stages[1].Name != "formal" || stages[1].Tool != "qverify" {
		t.Errorf("formal stage = %+v", stages[1])
	}
	if stages[1].Ceil != 100 {
		t.Error("formal stage must reach 100")
	}
}
