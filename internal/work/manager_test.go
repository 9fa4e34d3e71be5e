package work

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startManager(t *testing.T, registry *Registry) *Manager {
	t.Helper()
	m := NewManager(registry, nil, zerolog.Nop())
	go m.Run()
	t.Cleanup(m.Stop)
	return m
}

func waitTerminal(t *testing.T, m *Manager, jobID string) *Job {
	t.Helper()
	require.Eventually(t, func() bool {
		j := m.GetJob(jobID)
		return j != nil && j.Terminal()
	}, 5*time.Second, 5*time.Millisecond)
	return m.GetJob(jobID)
}

func TestSubmitAndComplete(t *testing.T) {
	registry := NewRegistry()
	registry.Register(&JobType{
		ID: "test:ok",
		Execute: func(ctx context.Context, subject string, payload []byte) (any, error) {
			return map[string]string{"subject": subject, "payload": string(payload)}, nil
		},
	})

	m := startManager(t, registry)

	job, err := m.Submit("test:ok", "alpha", []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, StatusPending, job.Status)
	assert.NotEmpty(t, job.ID)

	done := waitTerminal(t, m, job.ID)
	assert.Equal(t, StatusCompleted, done.Status)
	assert.Equal(t, map[string]string{"subject": "alpha", "payload": "hello"}, done.Result)
	assert.NotNil(t, done.StartedAt)
	assert.NotNil(t, done.FinishedAt)
}

func TestSubmitUnknownType(t *testing.T) {
	m := startManager(t, NewRegistry())

	_, err := m.Submit("no:such", "", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown job type")
}

func TestRetryableJobRetriesThenFails(t *testing.T) {
	var attempts atomic.Int32
	registry := NewRegistry()
	registry.Register(&JobType{
		ID:        "test:flaky",
		Retryable: true,
		Execute: func(ctx context.Context, subject string, payload []byte) (any, error) {
			attempts.Add(1)
			return nil, errors.New("boom")
		},
	})

	m := startManager(t, registry)

	job, err := m.Submit("test:flaky", "", nil)
	require.NoError(t, err)

	done := waitTerminal(t, m, job.ID)
	assert.Equal(t, StatusFailed, done.Status)
	assert.Equal(t, "boom", done.Error)
	assert.Equal(t, int32(MaxRetries), attempts.Load())
}

func TestNonRetryableJobFailsOnce(t *testing.T) {
	var attempts atomic.Int32
	registry := NewRegistry()
	registry.Register(&JobType{
		ID: "test:fatal",
		Execute: func(ctx context.Context, subject string, payload []byte) (any, error) {
			attempts.Add(1)
			return nil, errors.New("boom")
		},
	})

	m := startManager(t, registry)

	job, err := m.Submit("test:fatal", "", nil)
	require.NoError(t, err)

	done := waitTerminal(t, m, job.ID)
	assert.Equal(t, StatusFailed, done.Status)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestExclusiveRejectsConcurrentSubject(t *testing.T) {
	release := make(chan struct{})
	registry := NewRegistry()
	registry.Register(&JobType{
		ID:        "model:train",
		Exclusive: true,
		Execute: func(ctx context.Context, subject string, payload []byte) (any, error) {
			<-release
			return nil, nil
		},
	})

	m := startManager(t, registry)

	first, err := m.Submit("model:train", "m1", nil)
	require.NoError(t, err)

	// Same model is rejected while the first job is alive.
	_, err = m.Submit("model:train", "m1", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already in flight")

	// A different model is fine.
	_, err = m.Submit("model:train", "m2", nil)
	require.NoError(t, err)

	close(release)
	waitTerminal(t, m, first.ID)

	// After completion the subject is free again.
	require.Eventually(t, func() bool {
		_, err := m.Submit("model:train", "m1", nil)
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)
}

func TestJobsRunOneAtATime(t *testing.T) {
	var running, maxRunning atomic.Int32
	registry := NewRegistry()
	registry.Register(&JobType{
		ID: "test:serial",
		Execute: func(ctx context.Context, subject string, payload []byte) (any, error) {
			cur := running.Add(1)
			if cur > maxRunning.Load() {
				maxRunning.Store(cur)
			}
			time.Sleep(10 * time.Millisecond)
			running.Add(-1)
			return nil, nil
		},
	})

	m := startManager(t, registry)

	var ids []string
	for i := 0; i < 5; i++ {
		job, err := m.Submit("test:serial", "", nil)
		require.NoError(t, err)
		ids = append(ids, job.ID)
	}

	for _, id := range ids {
		waitTerminal(t, m, id)
	}
	assert.Equal(t, int32(1), maxRunning.Load())
}

func TestJobTimeout(t *testing.T) {
	registry := NewRegistry()
	registry.Register(&JobType{
		ID:      "test:slow",
		Timeout: 20 * time.Millisecond,
		Execute: func(ctx context.Context, subject string, payload []byte) (any, error) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(5 * time.Second):
				return nil, nil
			}
		},
	})

	m := startManager(t, registry)

	job, err := m.Submit("test:slow", "", nil)
	require.NoError(t, err)

	done := waitTerminal(t, m, job.ID)
	assert.Equal(t, StatusFailed, done.Status)
}

func TestCancelRunningJob(t *testing.T) {
	started := make(chan struct{})
	registry := NewRegistry()
	registry.Register(&JobType{
		ID:        "test:cancellable",
		Retryable: true,
		Execute: func(ctx context.Context, subject string, payload []byte) (any, error) {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		},
	})

	m := startManager(t, registry)

	job, err := m.Submit("test:cancellable", "", nil)
	require.NoError(t, err)

	<-started
	assert.True(t, m.Cancel(job.ID))

	// A cancelled job fails without burning through retries.
	done := waitTerminal(t, m, job.ID)
	assert.Equal(t, StatusFailed, done.Status)
	assert.Equal(t, 1, done.Retries)
}

func TestSubscribeSeesTransitions(t *testing.T) {
	registry := NewRegistry()
	registry.Register(&JobType{
		ID: "test:ok",
		Execute: func(ctx context.Context, subject string, payload []byte) (any, error) {
			return "done", nil
		},
	})

	m := startManager(t, registry)

	events, unsubscribe := m.Subscribe()
	defer unsubscribe()

	job, err := m.Submit("test:ok", "", nil)
	require.NoError(t, err)
	waitTerminal(t, m, job.ID)

	var statuses []string
	deadline := time.After(2 * time.Second)
	for len(statuses) < 3 {
		select {
		case ev := <-events:
			if ev.Job.ID == job.ID {
				statuses = append(statuses, ev.Job.Status)
			}
		case <-deadline:
			t.Fatalf("saw only %v", statuses)
		}
	}
	assert.Equal(t, []string{StatusPending, StatusRunning, StatusCompleted}, statuses)
}
