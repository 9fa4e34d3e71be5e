// Package inference turns a trained artifact and a match into a concrete
// prediction row.
package inference

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/skarlatos/scoreline/internal/domain"
	"github.com/skarlatos/scoreline/internal/modules/features"
	"github.com/skarlatos/scoreline/internal/modules/training"
)

// Service predicts single matches with a trained model.
type Service struct {
	store  domain.MatchHistoryStore
	engine *features.Engine
	cache  *ModelCache
	log    zerolog.Logger
}

// NewService creates an inference service backed by the given model cache.
func NewService(store domain.MatchHistoryStore, engine *features.Engine, cache *ModelCache, log zerolog.Logger) *Service {
	return &Service{
		store:  store,
		engine: engine,
		cache:  cache,
		log:    log.With().Str("service", "inference").Logger(),
	}
}

// Predict computes the model's outcome distribution for a match. The winner
// is the argmax class and the confidence its probability; expected goals and
// the both-teams-score estimate come straight from the feature vector, which
// the classifier does not model.
func (s *Service) Predict(ctx context.Context, matchID, modelID string) (*domain.Prediction, error) {
	match, err := s.store.GetMatch(ctx, matchID)
	if err != nil {
		return nil, fmt.Errorf("failed to load match %s: %w", matchID, err)
	}
	if match == nil {
		return nil, fmt.Errorf("match %s not found", matchID)
	}

	artifact, err := s.cache.Get(modelID)
	if err != nil {
		return nil, err
	}

	vec, err := s.engine.Compute(ctx, match, match.Date)
	if err != nil {
		return nil, err
	}

	row := imputeRow(vec.Values(), artifact.FeatureMeans)

	probs, err := artifact.PredictProba(row)
	if err != nil {
		return nil, err
	}

	winnerClass := training.ClassHome
	for c := range probs {
		if probs[c] > probs[winnerClass] {
			winnerClass = c
		}
	}

	featureMap := vec.Map()
	prediction := &domain.Prediction{
		ID:                 uuid.NewString(),
		MatchID:            matchID,
		PredictedWinner:    training.ClassLabel(winnerClass),
		HomeWinProbability: probs[training.ClassHome],
		DrawProbability:    probs[training.ClassDraw],
		AwayWinProbability: probs[training.ClassAway],
		HomeExpectedGoals:  featureMap["home_expected_goals"],
		AwayExpectedGoals:  featureMap["away_expected_goals"],
		BTTSProbability:    featureMap["btts_probability"],
		ConfidenceScore:    probs[winnerClass],
		FeaturesUsed:       featureMap,
		ResultStatus:       domain.ResultPending,
		CreatedAt:          time.Now().UTC(),
	}

	s.log.Debug().
		Str("match_id", matchID).
		Str("model_id", modelID).
		Str("winner", prediction.PredictedWinner).
		Float64("confidence", prediction.ConfidenceScore).
		Msg("Prediction computed")

	return prediction, nil
}

// imputeRow fills NaN cells with the training-time column mean, or zero when
// the artifact predates the column.
func imputeRow(row, means []float64) []float64 {
	out := make([]float64, len(row))
	for i, v := range row {
		if math.IsNaN(v) {
			if i < len(means) {
				out[i] = means[i]
			}
			continue
		}
		out[i] = v
	}
	return out
}
