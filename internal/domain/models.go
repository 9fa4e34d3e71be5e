// Package domain contains the core data model for the prediction engine.
// Types here are pure: no infrastructure dependencies.
package domain

import "time"

// Match status values as stored in the history database.
const (
	MatchScheduled = "scheduled"
	MatchLive      = "live"
	MatchFinished  = "finished"
	MatchPostponed = "postponed"
	MatchCancelled = "cancelled"
)

// Winner labels. A finished match always carries one of these, consistent
// with its score.
const (
	WinnerHome = "home"
	WinnerAway = "away"
	WinnerDraw = "draw"
)

// Prediction result status values.
const (
	ResultPending = "pending"
	ResultCorrect = "correct"
	ResultWrong   = "wrong"
)

// Match is a single fixture. Once finished it is treated as immutable input
// to the prediction engine.
type Match struct {
	ID         string
	HomeTeamID string
	AwayTeamID string
	SeasonID   string
	Date       time.Time
	HomeGoals  *int
	AwayGoals  *int
	Status     string
	Winner     string // empty until finished
}

// IsFinished reports whether the match has a final result.
func (m *Match) IsFinished() bool {
	return m.Status == MatchFinished && m.HomeGoals != nil && m.AwayGoals != nil
}

// BothTeamsScored reports whether both sides scored at least one goal.
// Always false for matches without a final score.
func (m *Match) BothTeamsScored() bool {
	return m.IsFinished() && *m.HomeGoals > 0 && *m.AwayGoals > 0
}

// PointsFor returns the league points the given team earned from this match
// (3 win, 1 draw, 0 loss), from that team's perspective regardless of venue.
func (m *Match) PointsFor(teamID string) int {
	switch m.Winner {
	case WinnerDraw:
		return 1
	case WinnerHome:
		if m.HomeTeamID == teamID {
			return 3
		}
	case WinnerAway:
		if m.AwayTeamID == teamID {
			return 3
		}
	}
	return 0
}

// Season groups matches into a competition year.
type Season struct {
	ID        string
	Name      string
	StartDate *time.Time
	EndDate   *time.Time
	IsActive  bool
}

// TeamSeasonStats is the per-team per-season aggregate row, updated
// externally as matches finish. Invariants (maintained by the owner):
// Wins+Draws+Losses == MatchesPlayed, GoalDifference == GoalsFor-GoalsAgainst,
// Points == 3*Wins+Draws.
type TeamSeasonStats struct {
	TeamID         string
	SeasonID       string
	MatchesPlayed  int
	Wins           int
	Draws          int
	Losses         int
	GoalsFor       int
	GoalsAgainst   int
	GoalDifference int
	Points         int
	HomeWins       int
	AwayWins       int
}

// ModelRecord is the durable metadata row for a trained model. The fitted
// parameters themselves live in the artifact file, not here.
type ModelRecord struct {
	ID           string
	Name         string
	Version      string
	Algorithm    string
	Accuracy     *float64
	Precision    *float64
	Recall       *float64
	F1Score      *float64
	CVMean       *float64
	CVStd        *float64
	IsActive     bool
	ArtifactPath string
	TrainedAt    *time.Time
}

// PredictionBatch is a named collection of predictions generated together
// under one model and one run.
type PredictionBatch struct {
	ID               string
	ModelID          string
	RunDate          time.Time
	Description      string
	TotalPredictions int
}

// Prediction is one predicted outcome for one match within one batch.
// Created once per (match, batch), later resolved exactly once by evaluation.
type Prediction struct {
	ID                 string
	MatchID            string
	BatchID            string
	PredictedWinner    string
	HomeWinProbability float64
	DrawProbability    float64
	AwayWinProbability float64
	HomeExpectedGoals  float64
	AwayExpectedGoals  float64
	BTTSProbability    float64
	ConfidenceScore    float64
	FeaturesUsed       map[string]float64
	ResultStatus       string
	CreatedAt          time.Time
}
