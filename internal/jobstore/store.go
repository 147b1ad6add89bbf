// Package jobstore provides SQLite-backed persistence for job records and
// their parsed results.
package jobstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/verigrid/questad/internal/domain"
	_ "modernc.org/sqlite"
)

// Store persists jobs. The dispatcher's in-memory state is authoritative
// while the process runs; the store is its durable mirror.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the database at dbPath and runs migrations.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// UpsertJob inserts or updates a job record.
func (s *Store) UpsertJob(job *domain.Job) error {
	configJSON, err := json.Marshal(job.Config)
	if err != nil {
		return err
	}
	warningsJSON, err := json.Marshal(job.ResultWarnings)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		INSERT INTO jobs (id, project_id, type, status, config, error, cancel_reason, progress, current_step, created_at, started_at, completed_at, result_warnings)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			error = excluded.error,
			cancel_reason = excluded.cancel_reason,
			progress = excluded.progress,
			current_step = excluded.current_step,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at,
			result_warnings = excluded.result_warnings
	`,
		job.ID,
		job.ProjectID,
		string(job.Type),
		string(job.Status),
		string(configJSON),
		job.Error,
		string(job.CancelReason),
		job.Progress,
		job.CurrentStep,
		job.CreatedAt,
		nullTime(job.StartedAt),
		nullTime(job.CompletedAt),
		string(warningsJSON),
	)
	return err
}

// GetJob retrieves a job by ID. It returns (nil, nil) when absent.
func (s *Store) GetJob(id string) (*domain.Job, error) {
	rows, err := s.db.Query(selectColumns+` FROM jobs WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanJob(rows)
}

// ListJobs returns jobs, newest first, optionally filtered by project.
func (s *Store) ListJobs(projectID string) ([]*domain.Job, error) {
	query := selectColumns + ` FROM jobs`
	var args []interface{}
	if projectID != "" {
		query += ` WHERE project_id = ?`
		args = append(args, projectID)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// ListTerminalBefore returns jobs that reached a terminal state before the
// cutoff; the retention sweeper uses this.
func (s *Store) ListTerminalBefore(cutoff time.Time) ([]*domain.Job, error) {
	rows, err := s.db.Query(selectColumns+`
		FROM jobs
		WHERE status IN ('completed', 'failed', 'cancelled') AND completed_at < ?
	`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// SaveResults stores the parsed report payload for a completed job.
func (s *Store) SaveResults(jobID string, results any, warnings []string) error {
	resultsJSON, err := json.Marshal(results)
	if err != nil {
		return err
	}
	warningsJSON, err := json.Marshal(warnings)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`UPDATE jobs SET results = ?, result_warnings = ? WHERE id = ?`,
		string(resultsJSON), string(warningsJSON), jobID)
	return err
}

// GetResults returns the raw results JSON for a job, or nil when absent.
func (s *Store) GetResults(jobID string) (json.RawMessage, error) {
	var results sql.NullString
	err := s.db.QueryRow(`SELECT results FROM jobs WHERE id = ?`, jobID).Scan(&results)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !results.Valid || results.String == "" {
		return nil, nil
	}
	return json.RawMessage(results.String), nil
}

// DeleteJob removes a job record.
func (s *Store) DeleteJob(id string) error {
	_, err := s.db.Exec(`DELETE FROM jobs WHERE id = ?`, id)
	return err
}

const selectColumns = `SELECT id, project_id, type, status, config, error, cancel_reason, progress, current_step, created_at, started_at, completed_at, result_warnings`

func scanJob(rows *sql.Rows) (*domain.Job, error) {
	var job domain.Job
	var jobType, status, configJSON string
	var errMsg, cancelReason, currentStep, warningsJSON sql.NullString
	var startedAt, completedAt sql.NullTime

	err := rows.Scan(&job.ID, &job.ProjectID, &jobType, &status, &configJSON,
		&errMsg, &cancelReason, &job.Progress, &currentStep,
		&job.CreatedAt, &startedAt, &completedAt, &warningsJSON)
	if err != nil {
		return nil, err
	}

	job.Type = domain.JobType(jobType)
	job.Status = domain.JobStatus(status)
	if err := json.Unmarshal([]byte(configJSON), &job.Config); err != nil {
		return nil, fmt.Errorf("decoding config for %s: %w", job.ID, err)
	}
	if errMsg.Valid {
		job.Error = errMsg.String
	}
	if cancelReason.Valid {
		job.CancelReason = domain.CancelReason(cancelReason.String)
	}
	if currentStep.Valid {
		job.CurrentStep = currentStep.String
	}
	if startedAt.Valid {
		t := startedAt.Time
		job.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		job.CompletedAt = &t
	}
	if warningsJSON.Valid && warningsJSON.String != "" && warningsJSON.String != "null" {
		if err := json.Unmarshal([]byte(warningsJSON.String), &job.ResultWarnings); err != nil {
			return nil, err
		}
	}

	return &job, nil
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}
