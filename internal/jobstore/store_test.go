package jobstore

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/verigrid/questad/internal/domain"
	"github.com/verigrid/questad/internal/report"
)

func testJob(id, project string) *domain.Job {
	return &domain.Job{
		ID:        id,
		ProjectID: project,
		Type:      domain.JobSimulation,
		Status:    domain.StatusPending,
		Config:    domain.JobConfig{DutTop: "tb_top", Timeout: 300, IncludeDirectories: []string{"include"}},
		CreatedAt: time.Now(),
	}
}

func TestStore_UpsertAndGetJob(t *testing.T) {
	store, err := New(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	job := testJob("job-1", "proj-a")
	if err := store.UpsertJob(job); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetJob("job-1")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("GetJob returned nil")
	}
	if got.ProjectID != "proj-a" || got.Type != domain.JobSimulation || got.Status != domain.StatusPending {
		t.Errorf("got %+v", got)
	}
	if got.Config.DutTop != "tb_top" || len(got.Config.IncludeDirectories) != 1 {
		t.Errorf("config not round-tripped: %+v", got.Config)
	}

	// Update path
	now := time.Now()
	job.Status = domain.StatusRunning
	job.StartedAt = &now
	job.Progress = 42
	if err := store.UpsertJob(job); err != nil {
		t.Fatal(err)
	}
	got, _ = store.GetJob("job-1")
	if got.Status != domain.StatusRunning || got.StartedAt == nil || got.Progress != 42 {
		t.Errorf("update not applied: %+v", got)
	}
}

func TestStore_GetJobMissing(t *testing.T) {
	store, _ := New(":memory:")
	defer store.Close()

	got, err := store.GetJob("nope")
	if err != nil || got != nil {
		t.Errorf("GetJob = (%v, %v), want (nil, nil)", got, err)
	}
}

func TestStore_ListJobsByProject(t *testing.T) {
	store, _ := New(":memory:")
	defer store.Close()

	for _, j := range []*domain.Job{testJob("j1", "a"), testJob("j2", "a"), testJob("j3", "b")} {
		if err := store.UpsertJob(j); err != nil {
			t.Fatal(err)
		}
	}

	jobs, err := store.ListJobs("a")
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 2 {
		t.Errorf("ListJobs(a) = %d jobs, want 2", len(jobs))
	}

	all, _ := store.ListJobs("")
	if len(all) != 3 {
		t.Errorf("ListJobs() = %d jobs, want 3", len(all))
	}
}

func TestStore_SaveAndGetResults(t *testing.T) {
	store, _ := New(":memory:")
	defer store.Close()

	job := testJob("j1", "a")
	if err := store.UpsertJob(job); err != nil {
		t.Fatal(err)
	}

	data, _ := report.ParseCDC(nil)
	if err := store.SaveResults("j1", data, []string{"empty report"}); err != nil {
		t.Fatal(err)
	}

	raw, err := store.GetResults("j1")
	if err != nil {
		t.Fatal(err)
	}
	var decoded report.CDCReportData
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("results not valid JSON: %v", err)
	}
	if decoded.Summary.TotalChecks != 0 {
		t.Errorf("TotalChecks = %d", decoded.Summary.TotalChecks)
	}
}

func TestStore_GetResultsBeforeCompletion(t *testing.T) {
	store, _ := New(":memory:")
	defer store.Close()

	store.UpsertJob(testJob("j1", "a"))
	raw, err := store.GetResults("j1")
	if err != nil || raw != nil {
		t.Errorf("GetResults = (%v, %v), want (nil, nil)", raw, err)
	}
}

func TestStore_ListTerminalBefore(t *testing.T) {
	store, _ := New(":memory:")
	defer store.Close()

	old := time.Now().Add(-48 * time.Hour)
	recent := time.Now().Add(-time.Hour)

	done := testJob("old-done", "a")
	done.Status = domain.StatusCompleted
	done.CompletedAt = &old

	fresh := testJob("fresh-done", "a")
	fresh.Status = domain.StatusCompleted
	fresh.CompletedAt = &recent

	active := testJob("active", "a")
	active.Status = domain.StatusRunning

	for _, j := range []*domain.Job{done, fresh, active} {
		if err := store.UpsertJob(j); err != nil {
			t.Fatal(err)
		}
	}

	jobs, err := store.ListTerminalBefore(time.Now().Add(-24 * time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 1 || jobs[0].ID != "old-done" {
		t.Errorf("ListTerminalBefore = %v", jobs)
	}
}

func TestStore_DeleteJob(t *testing.T) {
	store, _ := New(":memory:")
	defer store.Close()

	store.UpsertJob(testJob("j1", "a"))
	if err := store.DeleteJob("j1"); err != nil {
		t.Fatal(err)
	}
	got, _ := store.GetJob("j1")
	if got != nil {
		t.Error("job still present after delete")
	}
}
