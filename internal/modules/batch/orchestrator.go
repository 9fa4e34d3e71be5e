// Package batch generates and evaluates prediction batches over scheduled
// and finished matches.
package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/skarlatos/scoreline/internal/domain"
	"github.com/skarlatos/scoreline/internal/modules/heuristic"
	"github.com/skarlatos/scoreline/internal/modules/inference"
)

// MaxScheduledMatches caps a generation run when no explicit match list is
// given.
const MaxScheduledMatches = 50

// GenerationOutcome summarizes one generation run. Generated counts only
// newly created predictions; matches that already had one count as skipped.
type GenerationOutcome struct {
	BatchID   string `json:"batch_id"`
	Requested int    `json:"requested"`
	Generated int    `json:"generated"`
	Skipped   int    `json:"skipped"`
	Failed    int    `json:"failed"`
}

// EvaluationOutcome summarizes one evaluation sweep.
type EvaluationOutcome struct {
	Evaluated int     `json:"evaluated"`
	Correct   int     `json:"correct"`
	Accuracy  float64 `json:"accuracy"`
}

// EvaluateOptions scopes an evaluation sweep. Zero value means every pending
// prediction with a decidable match.
type EvaluateOptions struct {
	BatchID       string
	PredictionIDs []string
}

// Orchestrator fans prediction work out over a bounded worker pool and
// records the results. Model-backed batches go through the inference
// service; anything else falls back to the heuristic predictor.
type Orchestrator struct {
	history     domain.MatchHistoryStore
	predictions domain.PredictionStore
	models      domain.ModelStore
	inference   *inference.Service
	heuristic   *heuristic.Predictor
	workers     int
	log         zerolog.Logger
}

// NewOrchestrator creates a batch orchestrator with the given worker count.
func NewOrchestrator(
	history domain.MatchHistoryStore,
	predictions domain.PredictionStore,
	models domain.ModelStore,
	inf *inference.Service,
	heur *heuristic.Predictor,
	workers int,
	log zerolog.Logger,
) *Orchestrator {
	if workers < 1 {
		workers = 1
	}
	return &Orchestrator{
		history:     history,
		predictions: predictions,
		models:      models,
		inference:   inf,
		heuristic:   heur,
		workers:     workers,
		log:         log.With().Str("service", "batch").Logger(),
	}
}

// EnsureBatch creates the batch row when it does not exist yet. The model
// must already be trained and recorded; generation resolves the predictor
// through the batch's model.
func (o *Orchestrator) EnsureBatch(ctx context.Context, batchID, modelID, description string) error {
	existing, err := o.predictions.GetBatch(ctx, batchID)
	if err != nil {
		return fmt.Errorf("failed to load batch %s: %w", batchID, err)
	}
	if existing != nil {
		return nil
	}

	model, err := o.models.Get(ctx, modelID)
	if err != nil {
		return fmt.Errorf("failed to load model %s: %w", modelID, err)
	}
	if model == nil {
		return fmt.Errorf("model %s not found", modelID)
	}

	if err := o.predictions.CreateBatch(ctx, &domain.PredictionBatch{
		ID:          batchID,
		ModelID:     modelID,
		RunDate:     time.Now().UTC(),
		Description: description,
	}); err != nil {
		return fmt.Errorf("failed to create batch %s: %w", batchID, err)
	}

	o.log.Info().Str("batch_id", batchID).Str("model_id", modelID).Msg("Batch created")
	return nil
}

// Generate produces predictions for the batch: the explicit match list when
// given, otherwise all scheduled matches capped at MaxScheduledMatches.
// Each (match, batch) pair is predicted at most once, so re-running a
// partially failed batch only fills the gaps. The batch's TotalPredictions
// is set to the number of predictions that now exist for it.
func (o *Orchestrator) Generate(ctx context.Context, batchID string, matchIDs []string) (*GenerationOutcome, error) {
	batch, err := o.predictions.GetBatch(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to load batch %s: %w", batchID, err)
	}
	if batch == nil {
		return nil, fmt.Errorf("batch %s not found", batchID)
	}

	matches, err := o.resolveMatches(ctx, matchIDs)
	if err != nil {
		return nil, err
	}

	model, err := o.models.Get(ctx, batch.ModelID)
	if err != nil {
		return nil, fmt.Errorf("failed to load model %s: %w", batch.ModelID, err)
	}

	outcome := &GenerationOutcome{BatchID: batchID, Requested: len(matches)}

	var mu sync.Mutex
	var wg sync.WaitGroup
	work := make(chan *domain.Match)

	for w := 0; w < o.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for match := range work {
				created, err := o.predictMatch(ctx, match, batch, model)

				mu.Lock()
				switch {
				case err != nil:
					outcome.Failed++
				case created:
					outcome.Generated++
				default:
					outcome.Skipped++
				}
				mu.Unlock()

				if err != nil {
					o.log.Warn().Err(err).
						Str("batch_id", batchID).
						Str("match_id", match.ID).
						Msg("Prediction failed, match skipped")
				}
			}
		}()
	}

	for i := range matches {
		work <- &matches[i]
	}
	close(work)
	wg.Wait()

	total := batch.TotalPredictions + outcome.Generated
	if err := o.predictions.SetBatchTotal(ctx, batchID, total); err != nil {
		return nil, fmt.Errorf("failed to update batch total: %w", err)
	}

	o.log.Info().
		Str("batch_id", batchID).
		Int("requested", outcome.Requested).
		Int("generated", outcome.Generated).
		Int("skipped", outcome.Skipped).
		Int("failed", outcome.Failed).
		Msg("Batch generation finished")

	return outcome, nil
}

func (o *Orchestrator) resolveMatches(ctx context.Context, matchIDs []string) ([]domain.Match, error) {
	if len(matchIDs) == 0 {
		matches, err := o.history.ListScheduled(ctx, MaxScheduledMatches)
		if err != nil {
			return nil, fmt.Errorf("failed to list scheduled matches: %w", err)
		}
		return matches, nil
	}

	var matches []domain.Match
	for _, id := range matchIDs {
		match, err := o.history.GetMatch(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to load match %s: %w", id, err)
		}
		if match == nil {
			o.log.Warn().Str("match_id", id).Msg("Requested match not found, skipping")
			continue
		}
		matches = append(matches, *match)
	}
	return matches, nil
}

// predictMatch produces and stores one prediction. Returns false with a nil
// error when the (match, batch) pair already has one.
func (o *Orchestrator) predictMatch(ctx context.Context, match *domain.Match, batch *domain.PredictionBatch, model *domain.ModelRecord) (bool, error) {
	exists, err := o.predictions.Exists(ctx, match.ID, batch.ID)
	if err != nil {
		return false, fmt.Errorf("existence check: %w", err)
	}
	if exists {
		return false, nil
	}

	var prediction *domain.Prediction
	if model != nil && model.ArtifactPath != "" {
		prediction, err = o.inference.Predict(ctx, match.ID, model.ID)
	} else {
		prediction, err = o.heuristicPrediction(ctx, match)
	}
	if err != nil {
		return false, err
	}

	prediction.BatchID = batch.ID
	if err := o.predictions.Create(ctx, prediction); err != nil {
		return false, fmt.Errorf("store prediction: %w", err)
	}

	return true, nil
}

func (o *Orchestrator) heuristicPrediction(ctx context.Context, match *domain.Match) (*domain.Prediction, error) {
	result, err := o.heuristic.Predict(ctx, match.HomeTeamID, match.AwayTeamID)
	if err != nil {
		return nil, err
	}

	return &domain.Prediction{
		ID:                 uuid.NewString(),
		MatchID:            match.ID,
		PredictedWinner:    result.PredictedWinner,
		HomeWinProbability: result.Probabilities.HomeWin,
		DrawProbability:    result.Probabilities.Draw,
		AwayWinProbability: result.Probabilities.AwayWin,
		HomeExpectedGoals:  result.HomeExpectedGoals,
		AwayExpectedGoals:  result.AwayExpectedGoals,
		BTTSProbability:    result.BTTSProbability,
		ConfidenceScore:    result.Confidence,
		ResultStatus:       domain.ResultPending,
		CreatedAt:          time.Now().UTC(),
	}, nil
}

// Evaluate resolves pending predictions whose matches have finished with a
// recorded winner. Each prediction is resolved exactly once; already
// resolved rows are never revisited, so a correct verdict cannot later flip.
func (o *Orchestrator) Evaluate(ctx context.Context, opts EvaluateOptions) (*EvaluationOutcome, error) {
	pending, err := o.predictions.ListPending(ctx, opts.BatchID, opts.PredictionIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending predictions: %w", err)
	}

	outcome := &EvaluationOutcome{}
	for i := range pending {
		p := &pending[i]

		match, err := o.history.GetMatch(ctx, p.MatchID)
		if err != nil {
			return nil, fmt.Errorf("failed to load match %s: %w", p.MatchID, err)
		}
		if match == nil || !match.IsFinished() || match.Winner == "" {
			continue
		}

		status := domain.ResultWrong
		if p.PredictedWinner == match.Winner {
			status = domain.ResultCorrect
		}

		if err := o.predictions.Resolve(ctx, p.ID, status); err != nil {
			return nil, fmt.Errorf("failed to resolve prediction %s: %w", p.ID, err)
		}

		outcome.Evaluated++
		if status == domain.ResultCorrect {
			outcome.Correct++
		}
	}

	if outcome.Evaluated > 0 {
		outcome.Accuracy = float64(outcome.Correct) / float64(outcome.Evaluated)
	}

	o.log.Info().
		Str("batch_id", opts.BatchID).
		Int("evaluated", outcome.Evaluated).
		Int("correct", outcome.Correct).
		Float64("accuracy", outcome.Accuracy).
		Msg("Evaluation sweep finished")

	return outcome, nil
}
