package history

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/skarlatos/scoreline/internal/domain"
)

// StatsRepository handles team/season aggregate and season reads.
type StatsRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewStatsRepository creates a new stats repository
func NewStatsRepository(db *sql.DB, log zerolog.Logger) *StatsRepository {
	return &StatsRepository{
		db:  db,
		log: log.With().Str("repo", "stats").Logger(),
	}
}

// GetAggregate returns the aggregate row for a team and season, or nil when
// no row exists. Missing rows are expected early in a season.
func (r *StatsRepository) GetAggregate(ctx context.Context, teamID, seasonID string) (*domain.TeamSeasonStats, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT team_id, season_id, matches_played, wins, draws, losses,
			goals_for, goals_against, goal_difference, points, home_wins, away_wins
		FROM team_season_stats WHERE team_id = ? AND season_id = ?`,
		teamID, seasonID)

	var s domain.TeamSeasonStats
	err := row.Scan(&s.TeamID, &s.SeasonID, &s.MatchesPlayed, &s.Wins, &s.Draws,
		&s.Losses, &s.GoalsFor, &s.GoalsAgainst, &s.GoalDifference, &s.Points,
		&s.HomeWins, &s.AwayWins)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get aggregate for team %s season %s: %w", teamID, seasonID, err)
	}

	return &s, nil
}

// GetActiveSeason returns the active season, or nil when none is active.
func (r *StatsRepository) GetActiveSeason(ctx context.Context) (*domain.Season, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, name, start_date, end_date, is_active FROM seasons WHERE is_active = 1 LIMIT 1`)

	var s domain.Season
	var start, end sql.NullString
	err := row.Scan(&s.ID, &s.Name, &start, &end, &s.IsActive)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active season: %w", err)
	}

	if start.Valid {
		if t, err := parseTime(start.String); err == nil {
			s.StartDate = &t
		}
	}
	if end.Valid {
		if t, err := parseTime(end.String); err == nil {
			s.EndDate = &t
		}
	}

	return &s, nil
}
