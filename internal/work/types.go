// Package work runs background jobs (training, batch generation,
// evaluation) one at a time, with retries, timeouts, and a job history the
// API can query.
package work

import (
	"context"
	"time"
)

// JobTimeout is the maximum duration a job can run before being cancelled.
const JobTimeout = 15 * time.Minute

// MaxRetries is the number of times a failed retryable job is re-queued.
const MaxRetries = 3

// Job statuses. A job moves pending -> running -> completed|failed; a
// retryable failure goes back to pending until MaxRetries is exhausted.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// JobType defines a kind of background work.
type JobType struct {
	// ID names the job type (e.g. "model:train", "batch:generate").
	ID string

	// Exclusive rejects a new submission while a job of this type with the
	// same subject is pending or running. Training uses this so a model
	// cannot be trained twice concurrently.
	Exclusive bool

	// Retryable re-queues failed jobs up to MaxRetries.
	Retryable bool

	// Timeout overrides JobTimeout when positive.
	Timeout time.Duration

	// Execute performs the work. The returned value is stored as the job's
	// result and surfaced by the jobs API.
	Execute func(ctx context.Context, subject string, payload []byte) (any, error)
}

// Job is one submitted unit of work.
type Job struct {
	ID         string     `json:"id"`
	Type       string     `json:"type"`
	Subject    string     `json:"subject,omitempty"`
	Status     string     `json:"status"`
	Error      string     `json:"error,omitempty"`
	Result     any        `json:"result,omitempty"`
	Retries    int        `json:"retries,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	payload []byte
}

// Terminal reports whether the job has reached a final status.
func (j *Job) Terminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}

func exclusiveKey(typeID, subject string) string {
	if subject == "" {
		return typeID
	}
	return typeID + ":" + subject
}
