package work

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/skarlatos/scoreline/internal/modules/batch"
	"github.com/skarlatos/scoreline/internal/modules/training"
	"github.com/skarlatos/scoreline/internal/reliability"
)

// Job type IDs. The subject carries the entity the job acts on: model ID
// for training, batch ID for generation.
const (
	JobTrainModel      = "model:train"
	JobGenerateBatch   = "batch:generate"
	JobEvaluate        = "predictions:evaluate"
	JobBackupArtifacts = "artifacts:backup"
)

// TrainPayload is the JSON payload for a model:train job. Zero values fall
// back to the configured defaults.
type TrainPayload struct {
	Algorithm  string                `json:"algorithm,omitempty"`
	Seed       *int64                `json:"seed,omitempty"`
	Tune       bool                  `json:"tune_hyperparameters,omitempty"`
	Params     *training.HyperParams `json:"params,omitempty"`
	MinSamples int                   `json:"min_samples,omitempty"`
}

// GeneratePayload is the JSON payload for a batch:generate job. ModelID is
// only needed when the batch does not exist yet; the job creates it first.
type GeneratePayload struct {
	ModelID     string   `json:"model_id,omitempty"`
	Description string   `json:"description,omitempty"`
	MatchIDs    []string `json:"match_ids,omitempty"`
}

// EvaluatePayload is the JSON payload for a predictions:evaluate job.
type EvaluatePayload struct {
	BatchID       string   `json:"batch_id,omitempty"`
	PredictionIDs []string `json:"prediction_ids,omitempty"`
}

// JobDeps holds the services job executions are bound to.
type JobDeps struct {
	Trainer      *training.Trainer
	Orchestrator *batch.Orchestrator
	Backup       *reliability.BackupService // nil when backups are not configured

	DefaultAlgorithm string
	DefaultSeed      int64
	BackupRetention  int
}

// RegisterJobTypes registers every background job the engine runs.
func RegisterJobTypes(registry *Registry, deps JobDeps) {
	registry.Register(&JobType{
		ID:        JobTrainModel,
		Exclusive: true,
		Timeout:   30 * time.Minute,
		Execute: func(ctx context.Context, subject string, payload []byte) (any, error) {
			var p TrainPayload
			if len(payload) > 0 {
				if err := json.Unmarshal(payload, &p); err != nil {
					return nil, fmt.Errorf("invalid train payload: %w", err)
				}
			}

			cfg := training.TrainConfig{
				ModelID:    subject,
				Algorithm:  p.Algorithm,
				Seed:       deps.DefaultSeed,
				Tune:       p.Tune,
				Params:     p.Params,
				MinSamples: p.MinSamples,
			}
			if cfg.Algorithm == "" {
				cfg.Algorithm = deps.DefaultAlgorithm
			}
			if p.Seed != nil {
				cfg.Seed = *p.Seed
			}

			_, metrics, err := deps.Trainer.Train(ctx, cfg)
			if err != nil {
				return nil, err
			}
			return metrics, nil
		},
	})

	registry.Register(&JobType{
		ID:        JobGenerateBatch,
		Exclusive: true,
		Execute: func(ctx context.Context, subject string, payload []byte) (any, error) {
			var p GeneratePayload
			if len(payload) > 0 {
				if err := json.Unmarshal(payload, &p); err != nil {
					return nil, fmt.Errorf("invalid generate payload: %w", err)
				}
			}
			if p.ModelID != "" {
				if err := deps.Orchestrator.EnsureBatch(ctx, subject, p.ModelID, p.Description); err != nil {
					return nil, err
				}
			}
			return deps.Orchestrator.Generate(ctx, subject, p.MatchIDs)
		},
	})

	registry.Register(&JobType{
		ID:        JobEvaluate,
		Retryable: true,
		Execute: func(ctx context.Context, subject string, payload []byte) (any, error) {
			var p EvaluatePayload
			if len(payload) > 0 {
				if err := json.Unmarshal(payload, &p); err != nil {
					return nil, fmt.Errorf("invalid evaluate payload: %w", err)
				}
			}
			return deps.Orchestrator.Evaluate(ctx, batch.EvaluateOptions{
				BatchID:       p.BatchID,
				PredictionIDs: p.PredictionIDs,
			})
		},
	})

	if deps.Backup != nil {
		registry.Register(&JobType{
			ID:        JobBackupArtifacts,
			Retryable: true,
			Execute: func(ctx context.Context, subject string, payload []byte) (any, error) {
				if err := deps.Backup.CreateAndUploadBackup(ctx); err != nil {
					return nil, err
				}
				if err := deps.Backup.RotateOldBackups(ctx, deps.BackupRetention); err != nil {
					return nil, err
				}
				return "ok", nil
			},
		})
	}
}
