// Package heuristic produces statistical fallback predictions that work
// without a trained model: a form/head-to-head winner pick, bucketed rating
// probabilities, and a comprehensive roll-up combining both with the goal
// estimates.
package heuristic

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/skarlatos/scoreline/internal/domain"
	"github.com/skarlatos/scoreline/internal/modules/features"
)

// Blend weights for the head-to-head path of PredictWinner.
const (
	h2hWeight    = 0.7
	formWeight   = 0.3
	baseDrawProb = 0.25
)

// WinnerPrediction is the outcome of the simple winner heuristic.
type WinnerPrediction struct {
	Winner     string  `json:"winner"`
	Confidence float64 `json:"confidence"`
}

// WinProbabilities is a normalized outcome distribution.
type WinProbabilities struct {
	HomeWin float64 `json:"home_win_prob"`
	Draw    float64 `json:"draw_prob"`
	AwayWin float64 `json:"away_win_prob"`
}

// Comprehensive bundles every heuristic signal for a fixture.
type Comprehensive struct {
	HomeExpectedGoals float64          `json:"home_expected_goals"`
	AwayExpectedGoals float64          `json:"away_expected_goals"`
	BTTSProbability   float64          `json:"both_teams_to_score_prob"`
	PredictedWinner   string           `json:"predicted_winner"`
	Confidence        float64          `json:"confidence"`
	PoissonHomeGoals  int              `json:"poisson_home_goals"`
	PoissonAwayGoals  int              `json:"poisson_away_goals"`
	Probabilities     WinProbabilities `json:"win_probabilities"`
}

// Predictor computes heuristic predictions on top of the feature engine's
// sub-computations.
type Predictor struct {
	store  domain.MatchHistoryStore
	engine *features.Engine
	log    zerolog.Logger
}

// NewPredictor creates a heuristic predictor.
func NewPredictor(store domain.MatchHistoryStore, engine *features.Engine, log zerolog.Logger) *Predictor {
	return &Predictor{
		store:  store,
		engine: engine,
		log:    log.With().Str("service", "heuristic").Logger(),
	}
}

// PredictWinner picks a winner from head-to-head history blended with recent
// form. Without any head-to-head data the pick falls back to form alone with
// fixed confidence tiers.
func (p *Predictor) PredictWinner(ctx context.Context, homeTeamID, awayTeamID string) (*WinnerPrediction, error) {
	h2h, err := p.engine.HeadToHead(ctx, homeTeamID, awayTeamID, features.H2HLimit)
	if err != nil {
		return nil, fmt.Errorf("predict winner: %w", err)
	}

	homeForm, err := p.engine.FormIndex(ctx, homeTeamID, time.Time{}, features.FormWindow)
	if err != nil {
		return nil, fmt.Errorf("predict winner: %w", err)
	}
	awayForm, err := p.engine.FormIndex(ctx, awayTeamID, time.Time{}, features.FormWindow)
	if err != nil {
		return nil, fmt.Errorf("predict winner: %w", err)
	}

	if h2h.TotalMatches == 0 {
		// The gap thresholds are asymmetric: playing at home covers a
		// modest form deficit.
		switch {
		case homeForm > awayForm+10:
			return &WinnerPrediction{Winner: domain.WinnerHome, Confidence: 0.6}, nil
		case awayForm > homeForm+5:
			return &WinnerPrediction{Winner: domain.WinnerAway, Confidence: 0.55}, nil
		default:
			return &WinnerPrediction{Winner: domain.WinnerDraw, Confidence: 0.4}, nil
		}
	}

	homeProb := h2hWeight*(h2h.HomeWinPct/100) + formWeight*(homeForm/100)
	awayProb := h2hWeight*(h2h.AwayWinPct/100) + formWeight*(awayForm/100)
	drawProb := h2hWeight*(h2h.DrawPct/100) + formWeight*baseDrawProb

	total := homeProb + awayProb + drawProb
	if total > 0 {
		homeProb /= total
		awayProb /= total
		drawProb /= total
	}

	switch {
	case homeProb > awayProb && homeProb > drawProb:
		return &WinnerPrediction{Winner: domain.WinnerHome, Confidence: round2(homeProb)}, nil
	case awayProb > homeProb && awayProb > drawProb:
		return &WinnerPrediction{Winner: domain.WinnerAway, Confidence: round2(awayProb)}, nil
	default:
		return &WinnerPrediction{Winner: domain.WinnerDraw, Confidence: round2(drawProb)}, nil
	}
}

// RatingWinProbabilities derives an outcome distribution from the active
// season's aggregate ratings. Missing season or stats rows yield the neutral
// distribution rather than an error.
func (p *Predictor) RatingWinProbabilities(ctx context.Context, homeTeamID, awayTeamID string) (*WinProbabilities, error) {
	season, err := p.store.GetActiveSeason(ctx)
	if err != nil {
		return nil, fmt.Errorf("rating probabilities: %w", err)
	}
	if season == nil {
		return neutral(), nil
	}

	homeStats, err := p.store.GetAggregate(ctx, homeTeamID, season.ID)
	if err != nil {
		return nil, fmt.Errorf("rating probabilities: %w", err)
	}
	awayStats, err := p.store.GetAggregate(ctx, awayTeamID, season.ID)
	if err != nil {
		return nil, fmt.Errorf("rating probabilities: %w", err)
	}
	if homeStats == nil || awayStats == nil {
		return neutral(), nil
	}

	ratingDiff := features.TeamRating(homeStats) + features.HomeAdvantageBonus - features.TeamRating(awayStats)
	home, draw, away := features.RatingTriple(ratingDiff)

	return &WinProbabilities{HomeWin: home, Draw: draw, AwayWin: away}, nil
}

// Predict runs the full heuristic analysis for a fixture: expected goals,
// both-teams-to-score, the winner pick, and the rating distribution.
func (p *Predictor) Predict(ctx context.Context, homeTeamID, awayTeamID string) (*Comprehensive, error) {
	homeXG, err := p.engine.ExpectedGoals(ctx, homeTeamID, true, features.VenueXGLimit)
	if err != nil {
		return nil, fmt.Errorf("comprehensive prediction: %w", err)
	}
	awayXG, err := p.engine.ExpectedGoals(ctx, awayTeamID, false, features.VenueXGLimit)
	if err != nil {
		return nil, fmt.Errorf("comprehensive prediction: %w", err)
	}

	btts, err := p.engine.BTTSProbability(ctx, homeTeamID, awayTeamID)
	if err != nil {
		return nil, fmt.Errorf("comprehensive prediction: %w", err)
	}

	winner, err := p.PredictWinner(ctx, homeTeamID, awayTeamID)
	if err != nil {
		return nil, err
	}

	probs, err := p.RatingWinProbabilities(ctx, homeTeamID, awayTeamID)
	if err != nil {
		return nil, err
	}

	p.log.Debug().
		Str("home_team", homeTeamID).
		Str("away_team", awayTeamID).
		Str("winner", winner.Winner).
		Float64("confidence", winner.Confidence).
		Msg("Heuristic prediction computed")

	return &Comprehensive{
		HomeExpectedGoals: homeXG,
		AwayExpectedGoals: awayXG,
		// The engine reports BTTS as a percentage; persisted predictions
		// carry probabilities, same as the feature vector.
		BTTSProbability: btts / 100,
		PredictedWinner:   winner.Winner,
		Confidence:        winner.Confidence,
		PoissonHomeGoals:  int(math.Round(homeXG)),
		PoissonAwayGoals:  int(math.Round(awayXG)),
		Probabilities:     *probs,
	}, nil
}

func neutral() *WinProbabilities {
	return &WinProbabilities{HomeWin: 0.33, Draw: 0.33, AwayWin: 0.33}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
