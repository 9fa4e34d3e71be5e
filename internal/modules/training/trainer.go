// Package training fits outcome classifiers on historical matches and
// persists them as self-contained artifacts.
package training

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/skarlatos/scoreline/internal/domain"
	"github.com/skarlatos/scoreline/internal/modules/features"
)

const (
	// MinTrainingSamples is the floor below which training refuses to run.
	MinTrainingSamples = 100

	// maxTrainingMatches caps how far back the training window reaches.
	maxTrainingMatches = 2000

	testFraction  = 0.2
	reportCVFolds = 5
)

// TrainConfig describes one training run.
type TrainConfig struct {
	ModelID    string       `json:"model_id"`
	Algorithm  string       `json:"algorithm"`
	Seed       int64        `json:"seed"`
	Tune       bool         `json:"tune_hyperparameters"`
	Params     *HyperParams `json:"params,omitempty"`
	MinSamples int          `json:"min_samples,omitempty"` // 0 means MinTrainingSamples
}

// Trainer builds labeled training sets from match history and fits, scores,
// and persists classifiers.
type Trainer struct {
	store    domain.MatchHistoryStore
	models   domain.ModelStore
	engine   *features.Engine
	modelDir string
	log      zerolog.Logger
}

// NewTrainer creates a trainer writing artifacts under modelDir.
func NewTrainer(store domain.MatchHistoryStore, models domain.ModelStore, engine *features.Engine, modelDir string, log zerolog.Logger) *Trainer {
	return &Trainer{
		store:    store,
		models:   models,
		engine:   engine,
		modelDir: modelDir,
		log:      log.With().Str("service", "training").Logger(),
	}
}

// Train runs the full pipeline: load history, build vectors, split, optional
// grid search, fit, score, persist. Cancellation is checked between stages;
// a cancelled run leaves no artifact behind.
func (t *Trainer) Train(ctx context.Context, cfg TrainConfig) (*Artifact, *Metrics, error) {
	// Validate the algorithm before touching any data.
	if _, err := newClassifier(cfg.Algorithm, cfg.Params); err != nil {
		return nil, nil, err
	}

	minSamples := cfg.MinSamples
	if minSamples <= 0 {
		minSamples = MinTrainingSamples
	}

	started := time.Now()
	t.log.Info().
		Str("model_id", cfg.ModelID).
		Str("algorithm", cfg.Algorithm).
		Int64("seed", cfg.Seed).
		Bool("tune", cfg.Tune).
		Msg("Training started")

	X, y, err := t.buildDataset(ctx, minSamples)
	if err != nil {
		return nil, nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	means := imputeByColumnMeans(X)

	rng := rand.New(rand.NewSource(cfg.Seed))
	trainX, trainY, testX, testY := stratifiedSplit(X, y, testFraction, rng)

	params := cfg.Params
	if cfg.Tune {
		tuned, err := gridSearch(cfg.Algorithm, trainX, trainY, cfg.Seed)
		if err != nil {
			return nil, nil, err
		}
		if tuned != nil {
			params = tuned
		}
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
	}

	scaler := StandardScaler{}
	scaler.Fit(trainX)

	clf, err := newClassifier(cfg.Algorithm, params)
	if err != nil {
		return nil, nil, err
	}
	clf.Fit(scaler.Transform(trainX), trainY, NumClasses, rand.New(rand.NewSource(cfg.Seed)))

	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	metrics := t.evaluate(clf, &scaler, testX, testY)
	metrics.TrainingSamples = len(trainX)
	metrics.TestSamples = len(testX)

	metrics.CVMean, metrics.CVStd, err = crossValidate(cfg.Algorithm, params, trainX, trainY, reportCVFolds, cfg.Seed)
	if err != nil {
		return nil, nil, err
	}

	if imp, ok := clf.FeatureImportances(); ok {
		metrics.Importances = make(map[string]float64, len(imp))
		for i, name := range features.Names() {
			if i < len(imp) {
				metrics.Importances[name] = imp[i]
			}
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	artifact := &Artifact{
		SchemaVersion: features.SchemaVersion,
		ModelID:       cfg.ModelID,
		Algorithm:     cfg.Algorithm,
		Seed:          cfg.Seed,
		TrainedAt:     time.Now().UTC(),
		FeatureNames:  features.Names(),
		FeatureMeans:  means,
		Scaler:        scaler,
	}
	switch c := clf.(type) {
	case *RandomForest:
		artifact.Forest = c
	case *GradientBoosting:
		artifact.Boosting = c
	case *LogisticRegression:
		artifact.Logistic = c
	}

	path := ArtifactPath(t.modelDir, cfg.ModelID)
	if err := artifact.Save(path); err != nil {
		return nil, nil, err
	}

	if err := t.recordModel(ctx, cfg, metrics, path); err != nil {
		return nil, nil, err
	}

	t.log.Info().
		Str("model_id", cfg.ModelID).
		Float64("accuracy", metrics.Accuracy).
		Float64("cv_mean", metrics.CVMean).
		Dur("elapsed", time.Since(started)).
		Msg("Training completed")

	return artifact, metrics, nil
}

// buildDataset assembles the labeled feature matrix from finished matches
// with a recorded winner, most recent first.
func (t *Trainer) buildDataset(ctx context.Context, minSamples int) ([][]float64, []int, error) {
	matches, err := t.store.ListFinishedMatches(ctx, domain.MatchFilter{Limit: maxTrainingMatches})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load training matches: %w", err)
	}

	var X [][]float64
	var y []int
	for i := range matches {
		m := &matches[i]
		if !m.IsFinished() || m.Winner == "" {
			continue
		}

		vec, err := t.engine.Compute(ctx, m, m.Date)
		if err != nil {
			return nil, nil, err
		}

		X = append(X, vec.Values())
		y = append(y, LabelClass(m.Winner))
	}

	if len(X) < minSamples {
		return nil, nil, &domain.InsufficientDataError{Got: len(X), Required: minSamples}
	}

	return X, y, nil
}

func (t *Trainer) evaluate(clf classifier, scaler *StandardScaler, testX [][]float64, testY []int) *Metrics {
	pred := make([]int, len(testX))
	for i, row := range testX {
		pred[i] = argmax(clf.PredictProba(scaler.TransformRow(row)))
	}

	m := &Metrics{Accuracy: accuracyScore(testY, pred)}
	m.Precision, m.Recall, m.F1Score = weightedScores(testY, pred)
	return m
}

func (t *Trainer) recordModel(ctx context.Context, cfg TrainConfig, m *Metrics, path string) error {
	rec, err := t.models.Get(ctx, cfg.ModelID)
	if err != nil {
		return fmt.Errorf("failed to load model record: %w", err)
	}
	if rec == nil {
		rec = &domain.ModelRecord{ID: cfg.ModelID, Name: cfg.ModelID}
	}

	now := time.Now().UTC()
	rec.Algorithm = cfg.Algorithm
	rec.Accuracy = &m.Accuracy
	rec.Precision = &m.Precision
	rec.Recall = &m.Recall
	rec.F1Score = &m.F1Score
	rec.CVMean = &m.CVMean
	rec.CVStd = &m.CVStd
	rec.ArtifactPath = path
	rec.TrainedAt = &now

	if err := t.models.Save(ctx, rec); err != nil {
		return fmt.Errorf("failed to save model record: %w", err)
	}
	return nil
}

// imputeByColumnMeans replaces NaN cells with their column mean (computed
// over the non-NaN cells) in place, and returns the means for reuse at
// inference time. An all-NaN column imputes to zero.
func imputeByColumnMeans(X [][]float64) []float64 {
	if len(X) == 0 {
		return nil
	}

	cols := len(X[0])
	means := make([]float64, cols)
	for j := 0; j < cols; j++ {
		sum, n := 0.0, 0
		for i := range X {
			if !math.IsNaN(X[i][j]) {
				sum += X[i][j]
				n++
			}
		}
		if n > 0 {
			means[j] = sum / float64(n)
		}
		for i := range X {
			if math.IsNaN(X[i][j]) {
				X[i][j] = means[j]
			}
		}
	}

	return means
}
