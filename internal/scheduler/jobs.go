package scheduler

import (
	"github.com/rs/zerolog"

	"github.com/skarlatos/scoreline/internal/work"
)

// Submitter enqueues background jobs. *work.Manager implements it.
type Submitter interface {
	Submit(typeID, subject string, payload []byte) (*work.Job, error)
}

// EvaluationSweepJob submits the nightly evaluation of all pending
// predictions whose matches have since finished.
type EvaluationSweepJob struct {
	submitter Submitter
	log       zerolog.Logger
}

// NewEvaluationSweepJob creates the nightly evaluation sweep.
func NewEvaluationSweepJob(submitter Submitter, log zerolog.Logger) *EvaluationSweepJob {
	return &EvaluationSweepJob{
		submitter: submitter,
		log:       log.With().Str("job", "evaluation_sweep").Logger(),
	}
}

// Name returns the job name.
func (j *EvaluationSweepJob) Name() string {
	return "evaluation_sweep"
}

// Run enqueues an unscoped evaluation job.
func (j *EvaluationSweepJob) Run() error {
	job, err := j.submitter.Submit(work.JobEvaluate, "", nil)
	if err != nil {
		return err
	}
	j.log.Info().Str("job_id", job.ID).Msg("Evaluation sweep submitted")
	return nil
}

// ArtifactBackupJob submits the periodic artifact backup and rotation.
type ArtifactBackupJob struct {
	submitter Submitter
	log       zerolog.Logger
}

// NewArtifactBackupJob creates the periodic artifact backup job.
func NewArtifactBackupJob(submitter Submitter, log zerolog.Logger) *ArtifactBackupJob {
	return &ArtifactBackupJob{
		submitter: submitter,
		log:       log.With().Str("job", "artifact_backup").Logger(),
	}
}

// Name returns the job name.
func (j *ArtifactBackupJob) Name() string {
	return "artifact_backup"
}

// Run enqueues a backup job.
func (j *ArtifactBackupJob) Run() error {
	job, err := j.submitter.Submit(work.JobBackupArtifacts, "", nil)
	if err != nil {
		return err
	}
	j.log.Info().Str("job_id", job.ID).Msg("Artifact backup submitted")
	return nil
}
