package work

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// JobHistory persists terminal job states to the cache database so job
// outcomes survive a restart. The in-memory manager remains the source of
// truth for live jobs; this table is an audit trail.
type JobHistory struct {
	db *sql.DB
}

// NewJobHistory creates a job history sink over the cache database.
func NewJobHistory(db *sql.DB) *JobHistory {
	return &JobHistory{db: db}
}

// RecordJob upserts a job's state.
func (h *JobHistory) RecordJob(ctx context.Context, job *Job) error {
	_, err := h.db.ExecContext(ctx, `
		INSERT INTO job_history (id, job_type, subject, status, error, started_at, completed_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			error = excluded.error,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at
	`, job.ID, job.Type, job.Subject, job.Status, job.Error,
		formatTime(job.StartedAt), formatTime(job.FinishedAt),
		job.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to record job %s: %w", job.ID, err)
	}
	return nil
}

// RecentJobs returns the latest recorded jobs, newest first.
func (h *JobHistory) RecentJobs(ctx context.Context, limit int) ([]Job, error) {
	rows, err := h.db.QueryContext(ctx, `
		SELECT id, job_type, COALESCE(subject, ''), status, COALESCE(error, ''),
			started_at, completed_at, created_at
		FROM job_history
		ORDER BY created_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list job history: %w", err)
	}
	defer rows.Close()

	var out []Job
	for rows.Next() {
		var job Job
		var startedAt, completedAt sql.NullString
		var createdAt string

		if err := rows.Scan(&job.ID, &job.Type, &job.Subject, &job.Status, &job.Error,
			&startedAt, &completedAt, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan job history row: %w", err)
		}

		if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
			job.CreatedAt = t
		}
		job.StartedAt = parseNullTime(startedAt)
		job.FinishedAt = parseNullTime(completedAt)

		out = append(out, job)
	}
	return out, rows.Err()
}

func formatTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func parseNullTime(v sql.NullString) *time.Time {
	if !v.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339, v.String)
	if err != nil {
		return nil
	}
	return &t
}
