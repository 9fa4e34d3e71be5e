package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/skarlatos/scoreline/internal/domain"
)

// ModelRepository handles trained model metadata persistence.
type ModelRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewModelRepository creates a new model repository
func NewModelRepository(db *sql.DB, log zerolog.Logger) *ModelRepository {
	return &ModelRepository{
		db:  db,
		log: log.With().Str("repo", "model").Logger(),
	}
}

// Get returns a model record by ID.
func (r *ModelRepository) Get(ctx context.Context, modelID string) (*domain.ModelRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, name, version, algorithm, accuracy, precision, recall, f1_score,
			cv_mean, cv_std, is_active, COALESCE(artifact_path, ''), trained_at
		FROM models WHERE id = ?`, modelID)

	var rec domain.ModelRecord
	var accuracy, precision, recall, f1, cvMean, cvStd sql.NullFloat64
	var trainedAt sql.NullString

	err := row.Scan(&rec.ID, &rec.Name, &rec.Version, &rec.Algorithm,
		&accuracy, &precision, &recall, &f1, &cvMean, &cvStd,
		&rec.IsActive, &rec.ArtifactPath, &trainedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get model %s: %w", modelID, err)
	}

	rec.Accuracy = nullFloat(accuracy)
	rec.Precision = nullFloat(precision)
	rec.Recall = nullFloat(recall)
	rec.F1Score = nullFloat(f1)
	rec.CVMean = nullFloat(cvMean)
	rec.CVStd = nullFloat(cvStd)

	if trainedAt.Valid {
		if t, err := parseTime(trainedAt.String); err == nil {
			rec.TrainedAt = &t
		}
	}

	return &rec, nil
}

// Save upserts a model record.
func (r *ModelRepository) Save(ctx context.Context, rec *domain.ModelRecord) error {
	var trainedAt interface{}
	if rec.TrainedAt != nil {
		trainedAt = rec.TrainedAt.UTC().Format(time.RFC3339)
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO models (id, name, version, algorithm, accuracy, precision, recall,
			f1_score, cv_mean, cv_std, is_active, artifact_path, trained_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			version = excluded.version,
			algorithm = excluded.algorithm,
			accuracy = excluded.accuracy,
			precision = excluded.precision,
			recall = excluded.recall,
			f1_score = excluded.f1_score,
			cv_mean = excluded.cv_mean,
			cv_std = excluded.cv_std,
			artifact_path = excluded.artifact_path,
			trained_at = excluded.trained_at`,
		rec.ID, rec.Name, rec.Version, rec.Algorithm,
		floatPtr(rec.Accuracy), floatPtr(rec.Precision), floatPtr(rec.Recall),
		floatPtr(rec.F1Score), floatPtr(rec.CVMean), floatPtr(rec.CVStd),
		rec.IsActive, rec.ArtifactPath, trainedAt)
	if err != nil {
		return fmt.Errorf("failed to save model %s: %w", rec.ID, err)
	}

	return nil
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func floatPtr(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
