package features

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/skarlatos/scoreline/internal/domain"
)

// Defaults for the sub-computation windows.
const (
	FormWindow    = 5  // recent matches considered by the form index
	H2HLimit      = 10 // past meetings considered by head-to-head stats
	VenueXGLimit  = 10 // venue-specific matches considered for expected goals
	BTTSPerTeam   = 10 // per-team recent matches pooled for the BTTS estimate
)

// Engine computes feature vectors from the match history store. All
// statistical sub-computations tolerate missing data by returning neutral
// defaults; only structural store failures propagate.
type Engine struct {
	store domain.MatchHistoryStore
	log   zerolog.Logger
}

// NewEngine creates a new feature engine.
func NewEngine(store domain.MatchHistoryStore, log zerolog.Logger) *Engine {
	return &Engine{
		store: store,
		log:   log.With().Str("service", "features").Logger(),
	}
}

// Compute builds the feature vector for a match from history strictly before
// asOf. A zero asOf defaults to the match's own date, which keeps training
// rows free of information from the match itself or anything after it.
func (e *Engine) Compute(ctx context.Context, match *domain.Match, asOf time.Time) (Vector, error) {
	if asOf.IsZero() {
		asOf = match.Date
	}

	v := NewVector()

	if err := e.aggregateBlock(ctx, match, v); err != nil {
		return Vector{}, &domain.FeatureComputationError{MatchID: match.ID, Err: err}
	}

	homeForm, err := e.formIndexBefore(ctx, match.HomeTeamID, asOf, FormWindow)
	if err != nil {
		return Vector{}, &domain.FeatureComputationError{MatchID: match.ID, Err: err}
	}
	awayForm, err := e.formIndexBefore(ctx, match.AwayTeamID, asOf, FormWindow)
	if err != nil {
		return Vector{}, &domain.FeatureComputationError{MatchID: match.ID, Err: err}
	}
	v.Set("home_form_index", homeForm)
	v.Set("away_form_index", awayForm)
	v.Set("form_difference", homeForm-awayForm)

	homeXG, err := e.expectedGoalsBefore(ctx, match.HomeTeamID, true, asOf, VenueXGLimit)
	if err != nil {
		return Vector{}, &domain.FeatureComputationError{MatchID: match.ID, Err: err}
	}
	awayXG, err := e.expectedGoalsBefore(ctx, match.AwayTeamID, false, asOf, VenueXGLimit)
	if err != nil {
		return Vector{}, &domain.FeatureComputationError{MatchID: match.ID, Err: err}
	}
	v.Set("home_expected_goals", homeXG)
	v.Set("away_expected_goals", awayXG)
	v.Set("expected_goals_difference", homeXG-awayXG)

	h2h, err := e.headToHeadBefore(ctx, match.HomeTeamID, match.AwayTeamID, asOf, H2HLimit)
	if err != nil {
		return Vector{}, &domain.FeatureComputationError{MatchID: match.ID, Err: err}
	}
	v.Set("h2h_home_win_pct", h2h.HomeWinPct/100)
	v.Set("h2h_away_win_pct", h2h.AwayWinPct/100)
	v.Set("h2h_draw_pct", h2h.DrawPct/100)
	v.Set("h2h_total_matches", float64(min(h2h.TotalMatches, H2HLimit)))
	v.Set("h2h_home_goals_avg", h2h.HomeGoalsAvg)
	v.Set("h2h_away_goals_avg", h2h.AwayGoalsAvg)
	v.Set("h2h_btts_pct", h2h.BothScoredPct/100)

	btts, err := e.bttsProbabilityBefore(ctx, match.HomeTeamID, match.AwayTeamID, asOf)
	if err != nil {
		return Vector{}, &domain.FeatureComputationError{MatchID: match.ID, Err: err}
	}
	v.Set("btts_probability", btts/100)

	if err := e.ratingBlock(ctx, match, v); err != nil {
		return Vector{}, &domain.FeatureComputationError{MatchID: match.ID, Err: err}
	}

	v.Set("home_advantage", 1.0)

	return v, nil
}

// aggregateBlock fills the season-aggregate features. The whole block stays
// zero unless both teams have a stats row, mirroring how these features were
// labeled during training.
func (e *Engine) aggregateBlock(ctx context.Context, match *domain.Match, v Vector) error {
	homeStats, err := e.store.GetAggregate(ctx, match.HomeTeamID, match.SeasonID)
	if err != nil {
		return fmt.Errorf("home aggregate: %w", err)
	}
	awayStats, err := e.store.GetAggregate(ctx, match.AwayTeamID, match.SeasonID)
	if err != nil {
		return fmt.Errorf("away aggregate: %w", err)
	}

	if homeStats == nil || awayStats == nil {
		return nil
	}

	v.Set("home_points", float64(homeStats.Points))
	v.Set("away_points", float64(awayStats.Points))
	v.Set("points_difference", float64(homeStats.Points-awayStats.Points))
	v.Set("home_goals_for", float64(homeStats.GoalsFor))
	v.Set("home_goals_against", float64(homeStats.GoalsAgainst))
	v.Set("away_goals_for", float64(awayStats.GoalsFor))
	v.Set("away_goals_against", float64(awayStats.GoalsAgainst))
	v.Set("home_goal_difference", float64(homeStats.GoalDifference))
	v.Set("away_goal_difference", float64(awayStats.GoalDifference))

	if homeStats.MatchesPlayed > 0 {
		played := float64(homeStats.MatchesPlayed)
		v.Set("home_win_rate", float64(homeStats.Wins)/played)
		v.Set("home_draw_rate", float64(homeStats.Draws)/played)
		v.Set("home_goals_per_match", float64(homeStats.GoalsFor)/played)
		v.Set("home_conceded_per_match", float64(homeStats.GoalsAgainst)/played)
		v.Set("home_home_win_rate", float64(homeStats.HomeWins)/(played/2))
	}
	if awayStats.MatchesPlayed > 0 {
		played := float64(awayStats.MatchesPlayed)
		v.Set("away_win_rate", float64(awayStats.Wins)/played)
		v.Set("away_draw_rate", float64(awayStats.Draws)/played)
		v.Set("away_goals_per_match", float64(awayStats.GoalsFor)/played)
		v.Set("away_conceded_per_match", float64(awayStats.GoalsAgainst)/played)
		v.Set("away_away_win_rate", float64(awayStats.AwayWins)/(played/2))
	}

	return nil
}

// ratingBlock fills the bucketed rating probabilities from the match's
// season aggregates, neutral when either side has no stats row.
func (e *Engine) ratingBlock(ctx context.Context, match *domain.Match, v Vector) error {
	homeStats, err := e.store.GetAggregate(ctx, match.HomeTeamID, match.SeasonID)
	if err != nil {
		return fmt.Errorf("home aggregate: %w", err)
	}
	awayStats, err := e.store.GetAggregate(ctx, match.AwayTeamID, match.SeasonID)
	if err != nil {
		return fmt.Errorf("away aggregate: %w", err)
	}

	var home, draw, away float64
	if homeStats == nil || awayStats == nil {
		home, draw, away = NeutralTriple()
	} else {
		ratingDiff := TeamRating(homeStats) + HomeAdvantageBonus - TeamRating(awayStats)
		home, draw, away = RatingTriple(ratingDiff)
	}

	v.Set("rating_home_win_prob", home)
	v.Set("rating_draw_prob", draw)
	v.Set("rating_away_win_prob", away)

	return nil
}

// FormIndex computes the form index for a team over its last window finished
// matches strictly before the given date. No qualifying matches yields 0.0.
func (e *Engine) FormIndex(ctx context.Context, teamID string, before time.Time, window int) (float64, error) {
	return e.formIndexBefore(ctx, teamID, before, window)
}

func (e *Engine) formIndexBefore(ctx context.Context, teamID string, before time.Time, window int) (float64, error) {
	filter := domain.MatchFilter{TeamID: teamID, Limit: window}
	if !before.IsZero() {
		filter.BeforeDate = &before
	}

	matches, err := e.store.ListFinishedMatches(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("form index for team %s: %w", teamID, err)
	}

	return FormIndexFrom(matches, teamID), nil
}

// HeadToHead computes head-to-head statistics over the last limit finished
// meetings, from homeTeamID's perspective.
func (e *Engine) HeadToHead(ctx context.Context, homeTeamID, awayTeamID string, limit int) (*H2HStats, error) {
	return e.headToHeadBefore(ctx, homeTeamID, awayTeamID, time.Time{}, limit)
}

func (e *Engine) headToHeadBefore(ctx context.Context, homeTeamID, awayTeamID string, before time.Time, limit int) (*H2HStats, error) {
	var beforePtr *time.Time
	if !before.IsZero() {
		beforePtr = &before
	}

	matches, err := e.store.ListHeadToHead(ctx, homeTeamID, awayTeamID, beforePtr, limit)
	if err != nil {
		return nil, fmt.Errorf("head-to-head %s vs %s: %w", homeTeamID, awayTeamID, err)
	}

	return HeadToHeadFrom(matches, homeTeamID), nil
}

// ExpectedGoals computes the mean goals scored by a team over its last limit
// finished matches in the given venue role. Empty history yields 0.0.
func (e *Engine) ExpectedGoals(ctx context.Context, teamID string, isHome bool, limit int) (float64, error) {
	return e.expectedGoalsBefore(ctx, teamID, isHome, time.Time{}, limit)
}

func (e *Engine) expectedGoalsBefore(ctx context.Context, teamID string, isHome bool, before time.Time, limit int) (float64, error) {
	filter := domain.MatchFilter{Limit: limit}
	if isHome {
		filter.HomeTeamID = teamID
	} else {
		filter.AwayTeamID = teamID
	}
	if !before.IsZero() {
		filter.BeforeDate = &before
	}

	matches, err := e.store.ListFinishedMatches(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("expected goals for team %s: %w", teamID, err)
	}

	if len(matches) == 0 {
		return 0.0, nil
	}

	total := 0
	for _, m := range matches {
		if !m.IsFinished() {
			continue
		}
		if isHome {
			total += *m.HomeGoals
		} else {
			total += *m.AwayGoals
		}
	}

	return float64(total) / float64(len(matches)), nil
}

// BTTSProbability estimates how often both teams score, as a percentage of
// the union of each side's last ten finished matches. Matches appearing in
// both recent lists are deduplicated by match ID.
func (e *Engine) BTTSProbability(ctx context.Context, homeTeamID, awayTeamID string) (float64, error) {
	return e.bttsProbabilityBefore(ctx, homeTeamID, awayTeamID, time.Time{})
}

func (e *Engine) bttsProbabilityBefore(ctx context.Context, homeTeamID, awayTeamID string, before time.Time) (float64, error) {
	var beforePtr *time.Time
	if !before.IsZero() {
		beforePtr = &before
	}

	homeMatches, err := e.store.ListFinishedMatches(ctx,
		domain.MatchFilter{TeamID: homeTeamID, BeforeDate: beforePtr, Limit: BTTSPerTeam})
	if err != nil {
		return 0, fmt.Errorf("btts home matches: %w", err)
	}
	awayMatches, err := e.store.ListFinishedMatches(ctx,
		domain.MatchFilter{TeamID: awayTeamID, BeforeDate: beforePtr, Limit: BTTSPerTeam})
	if err != nil {
		return 0, fmt.Errorf("btts away matches: %w", err)
	}

	seen := make(map[string]bool, len(homeMatches)+len(awayMatches))
	var pool []domain.Match
	for _, m := range append(homeMatches, awayMatches...) {
		if seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		pool = append(pool, m)
	}

	return BothScoredPctFrom(pool), nil
}
