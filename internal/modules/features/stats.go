package features

import (
	"github.com/skarlatos/scoreline/internal/domain"
)

// H2HStats summarizes past meetings between two teams, from the first
// (home) team's perspective.
type H2HStats struct {
	TotalMatches  int     `json:"total_matches"`
	HomeWins      int     `json:"home_wins"`
	AwayWins      int     `json:"away_wins"`
	Draws         int     `json:"draws"`
	HomeWinPct    float64 `json:"home_win_pct"`
	AwayWinPct    float64 `json:"away_win_pct"`
	DrawPct       float64 `json:"draw_pct"`
	HomeGoalsAvg  float64 `json:"home_goals_avg"`
	AwayGoalsAvg  float64 `json:"away_goals_avg"`
	BothScoredPct float64 `json:"both_scored_pct"`
}

// FormIndexFrom computes the form index over an already-filtered, date-descending
// slice of finished matches: percentage of the maximum possible points earned.
// Empty history yields 0.0.
func FormIndexFrom(matches []domain.Match, teamID string) float64 {
	if len(matches) == 0 {
		return 0.0
	}

	points := 0
	for _, m := range matches {
		points += m.PointsFor(teamID)
	}

	return float64(points) / float64(3*len(matches)) * 100
}

// HeadToHeadFrom computes head-to-head statistics from a date-descending
// slice of finished meetings. Counts and goal averages are taken from
// homeTeamID's perspective regardless of which side it played in each
// meeting. An empty slice yields an all-zero result.
func HeadToHeadFrom(matches []domain.Match, homeTeamID string) *H2HStats {
	stats := &H2HStats{}
	if len(matches) == 0 {
		return stats
	}

	var homeGoalsTotal, awayGoalsTotal, bothScored int

	for _, m := range matches {
		if !m.IsFinished() {
			continue
		}

		if m.HomeTeamID == homeTeamID {
			homeGoalsTotal += *m.HomeGoals
			awayGoalsTotal += *m.AwayGoals

			switch m.Winner {
			case domain.WinnerHome:
				stats.HomeWins++
			case domain.WinnerAway:
				stats.AwayWins++
			default:
				stats.Draws++
			}
		} else {
			homeGoalsTotal += *m.AwayGoals
			awayGoalsTotal += *m.HomeGoals

			switch m.Winner {
			case domain.WinnerAway:
				stats.HomeWins++
			case domain.WinnerHome:
				stats.AwayWins++
			default:
				stats.Draws++
			}
		}

		if m.BothTeamsScored() {
			bothScored++
		}

		stats.TotalMatches++
	}

	if stats.TotalMatches == 0 {
		return stats
	}

	n := float64(stats.TotalMatches)
	stats.HomeWinPct = float64(stats.HomeWins) / n * 100
	stats.AwayWinPct = float64(stats.AwayWins) / n * 100
	stats.DrawPct = float64(stats.Draws) / n * 100
	stats.HomeGoalsAvg = float64(homeGoalsTotal) / n
	stats.AwayGoalsAvg = float64(awayGoalsTotal) / n
	stats.BothScoredPct = float64(bothScored) / n * 100

	return stats
}

// BothScoredPctFrom returns the percentage of matches where both sides
// scored. Empty input yields 0.0.
func BothScoredPctFrom(matches []domain.Match) float64 {
	if len(matches) == 0 {
		return 0.0
	}

	count := 0
	for _, m := range matches {
		if m.BothTeamsScored() {
			count++
		}
	}

	return float64(count) / float64(len(matches)) * 100
}

// TeamRating derives the coarse strength rating used by the bucketed win
// probabilities: 2*points + goal difference.
func TeamRating(stats *domain.TeamSeasonStats) int {
	return 2*stats.Points + stats.GoalDifference
}

// HomeAdvantageBonus is added to the home team's rating before bucketing.
const HomeAdvantageBonus = 3

// RatingTriple maps a home-minus-away rating difference onto fixed
// (home, draw, away) win probabilities. The five bands are deliberate: they
// keep the estimator coarse, monotone and trivially testable. Boundary values
// fall into the lower band (a diff of exactly 10 is NOT "> 10").
func RatingTriple(ratingDiff int) (home, draw, away float64) {
	switch {
	case ratingDiff > 10:
		return 0.65, 0.15, 0.20
	case ratingDiff > 5:
		return 0.55, 0.20, 0.25
	case ratingDiff > -5:
		return 0.45, 0.25, 0.30
	case ratingDiff > -10:
		return 0.30, 0.20, 0.50
	default:
		return 0.20, 0.15, 0.65
	}
}

// NeutralTriple is returned when no season or aggregate data exists. The
// values intentionally sum to 0.99, matching the documented tolerance rather
// than an exact unit sum.
func NeutralTriple() (home, draw, away float64) {
	return 0.33, 0.33, 0.33
}
