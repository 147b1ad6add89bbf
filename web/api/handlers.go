package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/verigrid/questad/internal/domain"
	"github.com/verigrid/questad/internal/workspace"
)

// JobResponse is the API response for a job
type JobResponse struct {
	ID             string           `json:"id"`
	ProjectID      string           `json:"projectId"`
	Type           string           `json:"type"`
	Status         string           `json:"status"`
	Config         domain.JobConfig `json:"config"`
	CreatedAt      string           `json:"createdAt"`
	StartedAt      *string          `json:"startedAt,omitempty"`
	CompletedAt    *string          `json:"completedAt,omitempty"`
	Progress       int              `json:"progress"`
	CurrentStep    string           `json:"currentStep,omitempty"`
	Error          string           `json:"error,omitempty"`
	ResultWarnings []string         `json:"resultWarnings,omitempty"`
}

// LogFileResponse is the API response for one workspace file
type LogFileResponse struct {
	Filename    string `json:"filename"`
	Stage       string `json:"stage"`
	Size        int64  `json:"size"`
	SizeHuman   string `json:"sizeHuman"`
	ModifiedAt  string `json:"modifiedAt"`
	Description string `json:"description,omitempty"`
}

// FileContentResponse carries a text file fetched for display
type FileContentResponse struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

// ResultsResponse wraps parsed report data with any parser warnings
type ResultsResponse struct {
	Results  json.RawMessage `json:"results"`
	Warnings []string        `json:"warnings,omitempty"`
}

func jobToResponse(j *domain.Job) JobResponse {
	resp := JobResponse{
		ID:             j.ID,
		ProjectID:      j.ProjectID,
		Type:           string(j.Type),
		Status:         string(j.Status),
		Config:         j.Config,
		CreatedAt:      j.CreatedAt.Format(time.RFC3339),
		Progress:       j.Progress,
		CurrentStep:    j.CurrentStep,
		Error:          j.Error,
		ResultWarnings: j.ResultWarnings,
	}
	if j.StartedAt != nil {
		t := j.StartedAt.Format(time.RFC3339)
		resp.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := j.CompletedAt.Format(time.RFC3339)
		resp.CompletedAt = &t
	}
	return resp
}

func logFileToResponse(f domain.LogFile) LogFileResponse {
	return LogFileResponse{
		Filename:    f.Filename,
		Stage:       string(f.Stage),
		Size:        f.Size,
		SizeHuman:   humanize.Bytes(uint64(f.Size)),
		ModifiedAt:  f.ModifiedAt.Format(time.RFC3339),
		Description: f.Description,
	}
}

func (s *Server) writeDispatchError(w http.ResponseWriter, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Error())
	case errors.Is(err, domain.ErrJobNotFound):
		writeError(w, http.StatusNotFound, "job not found")
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) listJobsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		jobs, err := s.dispatcher.List(r.URL.Query().Get("projectId"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		responses := make([]JobResponse, len(jobs))
		for i, j := range jobs {
			responses[i] = jobToResponse(j)
		}
		writeJSON(w, responses)
	}
}

func (s *Server) systemStatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		writeJSON(w, s.dispatcher.SystemStatus())
	}
}

// jobRouter dispatches everything under /api/jobs/ by path shape:
//
//	POST   simulation/{projectId}
//	POST   formal/{projectId}
//	GET    {id}
//	POST   {id}/cancel
//	DELETE {id}/force
//	GET    {id}/logs
//	GET    {id}/logs/{filename}
//	GET    {id}/logs/{filename}/download
//	GET    {id}/src/{path...}
//	GET    {id}/lint-report | cdc-report | test-results
func (s *Server) jobRouter() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
		parts := strings.Split(strings.Trim(path, "/"), "/")
		if len(parts) == 0 || parts[0] == "" {
			writeError(w, http.StatusBadRequest, "job ID required")
			return
		}

		switch parts[0] {
		case "simulation":
			s.submitJob(w, r, parts[1:], domain.JobSimulation)
			return
		case "formal":
			s.submitJob(w, r, parts[1:], domain.JobFormal)
			return
		}

		jobID := parts[0]
		rest := parts[1:]

		switch {
		case len(rest) == 0:
			s.getJob(w, r, jobID)
		case len(rest) == 1 && rest[0] == "cancel":
			s.cancelJob(w, r, jobID)
		case len(rest) == 1 && rest[0] == "force":
			s.forceDeleteJob(w, r, jobID)
		case len(rest) == 1 && rest[0] == "logs":
			s.listLogs(w, r, jobID)
		case len(rest) == 2 && rest[0] == "logs":
			s.logContent(w, r, jobID, rest[1], false)
		case len(rest) == 3 && rest[0] == "logs" && rest[2] == "download":
			s.logContent(w, r, jobID, rest[1], true)
		case len(rest) >= 2 && rest[0] == "src":
			s.srcContent(w, r, jobID, strings.Join(rest[1:], "/"))
		case len(rest) == 1 && (rest[0] == "lint-report" || rest[0] == "cdc-report" || rest[0] == "test-results"):
			s.jobResults(w, r, jobID, rest[0])
		default:
			writeError(w, http.StatusNotFound, "not found")
		}
	}
}

func (s *Server) submitJob(w http.ResponseWriter, r *http.Request, rest []string, jobType domain.JobType) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if len(rest) != 1 || rest[0] == "" {
		writeError(w, http.StatusBadRequest, "project ID required")
		return
	}

	var cfg domain.JobConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = s.defaultTimeout
	}

	job, err := s.dispatcher.Submit(rest[0], jobType, cfg)
	if err != nil {
		s.writeDispatchError(w, err)
		return
	}
	writeJSON(w, jobToResponse(job))
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request, jobID string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	job, err := s.dispatcher.Get(jobID)
	if err != nil {
		s.writeDispatchError(w, err)
		return
	}
	writeJSON(w, jobToResponse(job))
}

func (s *Server) cancelJob(w http.ResponseWriter, r *http.Request, jobID string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := s.dispatcher.Cancel(jobID); err != nil {
		s.writeDispatchError(w, err)
		return
	}
	writeJSON(w, map[string]string{"id": jobID})
}

func (s *Server) forceDeleteJob(w http.ResponseWriter, r *http.Request, jobID string) {
	if r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := s.dispatcher.ForceDelete(jobID); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, map[string]string{"id": jobID})
}

func (s *Server) listLogs(w http.ResponseWriter, r *http.Request, jobID string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if _, err := s.dispatcher.Get(jobID); err != nil {
		s.writeDispatchError(w, err)
		return
	}

	logs, err := s.workspaces.ListLogs(jobID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	responses := make([]LogFileResponse, len(logs))
	for i, f := range logs {
		responses[i] = logFileToResponse(f)
	}
	writeJSON(w, responses)
}

func (s *Server) logContent(w http.ResponseWriter, r *http.Request, jobID, filename string, download bool) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if _, err := s.dispatcher.Get(jobID); err != nil {
		s.writeDispatchError(w, err)
		return
	}

	content, err := s.workspaces.ReadLog(jobID, filename)
	if err != nil {
		if os.IsNotExist(err) {
			writeError(w, http.StatusNotFound, "log file not found")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if download {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
		w.Write(content)
		return
	}
	writeJSON(w, FileContentResponse{Filename: filename, Content: string(content)})
}

// srcContent serves project source files so the dashboard can resolve the
// file/line pointers in parsed reports.
func (s *Server) srcContent(w http.ResponseWriter, r *http.Request, jobID, relPath string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	job, err := s.dispatcher.Get(jobID)
	if err != nil {
		s.writeDispatchError(w, err)
		return
	}

	projectDir := filepath.Join(s.projectsRoot, job.ProjectID)
	full, err := workspace.SafeJoin(projectDir, relPath)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	content, err := os.ReadFile(full)
	if err != nil {
		if os.IsNotExist(err) {
			writeError(w, http.StatusNotFound, "source file not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, FileContentResponse{Filename: relPath, Content: string(content)})
}

// jobResults serves parsed report data. The endpoint must match the job
// type and the job must have completed; anything else is a 404.
func (s *Server) jobResults(w http.ResponseWriter, r *http.Request, jobID, kind string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	job, err := s.dispatcher.Get(jobID)
	if err != nil {
		s.writeDispatchError(w, err)
		return
	}

	if job.Status != domain.StatusCompleted || !resultKindMatches(kind, job) {
		writeError(w, http.StatusNotFound, "no results for this job")
		return
	}

	results, err := s.store.GetResults(jobID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if results == nil {
		writeError(w, http.StatusNotFound, "no results for this job")
		return
	}
	writeJSON(w, ResultsResponse{Results: results, Warnings: job.ResultWarnings})
}

func resultKindMatches(kind string, job *domain.Job) bool {
	switch kind {
	case "test-results":
		return job.Type == domain.JobSimulation
	case "lint-report":
		return job.Type == domain.JobFormal && job.Config.FormalMode == domain.ModeLint
	case "cdc-report":
		// RDC reports share the CDC schema.
		return job.Type == domain.JobFormal &&
			(job.Config.FormalMode == domain.ModeCDC || job.Config.FormalMode == domain.ModeRDC)
	}
	return false
}
