// Package api exposes the REST and WebSocket surface consumed by the
// dashboard. All JSON responses are wrapped {success, data|error}.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/verigrid/questad/internal/domain"
	"github.com/verigrid/questad/internal/events"
	"github.com/verigrid/questad/internal/jobstore"
	"github.com/verigrid/questad/internal/workspace"
)

// Dispatcher is the job lifecycle surface the handlers need.
type Dispatcher interface {
	Submit(projectID string, jobType domain.JobType, cfg domain.JobConfig) (*domain.Job, error)
	Cancel(jobID string) error
	ForceDelete(jobID string) error
	Get(jobID string) (*domain.Job, error)
	List(projectID string) ([]*domain.Job, error)
	SystemStatus() domain.SystemStatus
}

// Server is the HTTP API server
type Server struct {
	dispatcher   Dispatcher
	store        *jobstore.Store
	workspaces   *workspace.Manager
	broker       *events.Broker
	projectsRoot string
	// defaultTimeout fills in submissions that omit a timeout, in seconds.
	defaultTimeout int
	mux            *http.ServeMux
}

// NewServer creates a new API server
func NewServer(dispatcher Dispatcher, store *jobstore.Store, workspaces *workspace.Manager, broker *events.Broker, projectsRoot string, defaultTimeout int) *Server {
	s := &Server{
		dispatcher:     dispatcher,
		store:          store,
		workspaces:     workspaces,
		broker:         broker,
		projectsRoot:   projectsRoot,
		defaultTimeout: defaultTimeout,
		mux:            http.NewServeMux(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/jobs", s.listJobsHandler())
	s.mux.HandleFunc("/api/jobs/", s.jobRouter())
	s.mux.HandleFunc("/api/system/status", s.systemStatusHandler())
	s.mux.HandleFunc("/api/ws", s.wsHandler())
}

// Handler returns the root handler for use by an http.Server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

type response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(response{Success: false, Error: message})
}
