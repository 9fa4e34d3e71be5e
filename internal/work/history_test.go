package work

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skarlatos/scoreline/internal/database"
)

func openCacheDB(t *testing.T) *JobHistory {
	t.Helper()

	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), "cache.db"),
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })

	return NewJobHistory(db.Conn())
}

func TestJobHistoryRecordAndList(t *testing.T) {
	sink := openCacheDB(t)
	ctx := context.Background()

	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	started := base.Add(time.Second)
	finished := base.Add(3 * time.Second)

	jobs := []Job{
		{ID: "j1", Type: JobTrainModel, Subject: "mod-1", Status: StatusCompleted,
			CreatedAt: base, StartedAt: &started, FinishedAt: &finished},
		{ID: "j2", Type: JobEvaluate, Status: StatusFailed, Error: "boom",
			CreatedAt: base.Add(time.Minute), StartedAt: &started, FinishedAt: &finished},
	}
	for i := range jobs {
		require.NoError(t, sink.RecordJob(ctx, &jobs[i]))
	}

	got, err := sink.RecentJobs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)

	// Newest first.
	assert.Equal(t, "j2", got[0].ID)
	assert.Equal(t, "boom", got[0].Error)
	assert.Equal(t, "j1", got[1].ID)
	assert.Equal(t, "mod-1", got[1].Subject)
	require.NotNil(t, got[1].StartedAt)
	require.NotNil(t, got[1].FinishedAt)
	assert.True(t, got[1].FinishedAt.Equal(finished))
}

func TestJobHistoryUpsertReplacesStatus(t *testing.T) {
	sink := openCacheDB(t)
	ctx := context.Background()

	job := Job{ID: "j1", Type: JobGenerateBatch, Subject: "b1",
		Status: StatusFailed, Error: "transient", CreatedAt: time.Now().UTC()}
	require.NoError(t, sink.RecordJob(ctx, &job))

	finished := time.Now().UTC().Truncate(time.Second)
	job.Status = StatusCompleted
	job.Error = ""
	job.FinishedAt = &finished
	require.NoError(t, sink.RecordJob(ctx, &job))

	got, err := sink.RecentJobs(ctx, 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, StatusCompleted, got[0].Status)
	assert.Empty(t, got[0].Error)
	require.NotNil(t, got[0].FinishedAt)
}

func TestJobHistoryLimit(t *testing.T) {
	sink := openCacheDB(t)
	ctx := context.Background()

	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		job := Job{ID: string(rune('a' + i)), Type: JobEvaluate,
			Status: StatusCompleted, CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		require.NoError(t, sink.RecordJob(ctx, &job))
	}

	got, err := sink.RecentJobs(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "e", got[0].ID)
	assert.Equal(t, "d", got[1].ID)
}
