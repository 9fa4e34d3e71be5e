package scheduler

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skarlatos/scoreline/internal/work"
)

type fakeSubmitter struct {
	submissions []string
	err         error
}

func (f *fakeSubmitter) Submit(typeID, subject string, payload []byte) (*work.Job, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.submissions = append(f.submissions, typeID)
	return &work.Job{ID: "j1", Type: typeID, Status: work.StatusPending}, nil
}

func TestEvaluationSweepJobSubmits(t *testing.T) {
	submitter := &fakeSubmitter{}
	job := NewEvaluationSweepJob(submitter, zerolog.Nop())

	assert.Equal(t, "evaluation_sweep", job.Name())
	require.NoError(t, job.Run())
	assert.Equal(t, []string{work.JobEvaluate}, submitter.submissions)
}

func TestEvaluationSweepJobPropagatesError(t *testing.T) {
	submitter := &fakeSubmitter{err: assert.AnError}
	job := NewEvaluationSweepJob(submitter, zerolog.Nop())

	require.Error(t, job.Run())
}

func TestArtifactBackupJobSubmits(t *testing.T) {
	submitter := &fakeSubmitter{}
	job := NewArtifactBackupJob(submitter, zerolog.Nop())

	assert.Equal(t, "artifact_backup", job.Name())
	require.NoError(t, job.Run())
	assert.Equal(t, []string{work.JobBackupArtifacts}, submitter.submissions)
}
