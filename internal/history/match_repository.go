// Package history provides sqlite-backed repositories for the match history
// store and the prediction tables owned by the engine.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/skarlatos/scoreline/internal/domain"
)

// MatchRepository handles match read operations against the history database.
type MatchRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewMatchRepository creates a new match repository
func NewMatchRepository(db *sql.DB, log zerolog.Logger) *MatchRepository {
	return &MatchRepository{
		db:  db,
		log: log.With().Str("repo", "match").Logger(),
	}
}

const matchColumns = `id, home_team_id, away_team_id, season_id, match_date,
	home_goals, away_goals, status, COALESCE(winner, '')`

// GetMatch returns a single match by ID, or nil when no such match exists.
func (r *MatchRepository) GetMatch(ctx context.Context, matchID string) (*domain.Match, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+matchColumns+` FROM matches WHERE id = ?`, matchID)

	m, err := scanMatchRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get match %s: %w", matchID, err)
	}
	return m, nil
}

// ListFinishedMatches returns finished matches ordered by date descending.
func (r *MatchRepository) ListFinishedMatches(ctx context.Context, filter domain.MatchFilter) ([]domain.Match, error) {
	query := `SELECT ` + matchColumns + ` FROM matches WHERE status = 'finished'`
	args := []interface{}{}

	if filter.TeamID != "" {
		query += ` AND (home_team_id = ? OR away_team_id = ?)`
		args = append(args, filter.TeamID, filter.TeamID)
	}
	if filter.HomeTeamID != "" {
		query += ` AND home_team_id = ?`
		args = append(args, filter.HomeTeamID)
	}
	if filter.AwayTeamID != "" {
		query += ` AND away_team_id = ?`
		args = append(args, filter.AwayTeamID)
	}
	if filter.BeforeDate != nil {
		query += ` AND match_date < ?`
		args = append(args, filter.BeforeDate.UTC().Format(time.RFC3339))
	}

	query += ` ORDER BY match_date DESC`

	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	return r.queryMatches(ctx, query, args...)
}

// ListHeadToHead returns the last limit finished meetings between two teams
// in either home/away configuration, ordered by date descending.
func (r *MatchRepository) ListHeadToHead(ctx context.Context, teamA, teamB string, before *time.Time, limit int) ([]domain.Match, error) {
	query := `SELECT ` + matchColumns + ` FROM matches
		WHERE status = 'finished'
		AND ((home_team_id = ? AND away_team_id = ?) OR (home_team_id = ? AND away_team_id = ?))`
	args := []interface{}{teamA, teamB, teamB, teamA}

	if before != nil {
		query += ` AND match_date < ?`
		args = append(args, before.UTC().Format(time.RFC3339))
	}

	query += ` ORDER BY match_date DESC LIMIT ?`
	args = append(args, limit)

	return r.queryMatches(ctx, query, args...)
}

// ListScheduled returns scheduled matches ordered by date ascending.
func (r *MatchRepository) ListScheduled(ctx context.Context, limit int) ([]domain.Match, error) {
	query := `SELECT ` + matchColumns + ` FROM matches
		WHERE status = 'scheduled'
		ORDER BY match_date ASC LIMIT ?`

	return r.queryMatches(ctx, query, limit)
}

func (r *MatchRepository) queryMatches(ctx context.Context, query string, args ...interface{}) ([]domain.Match, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query matches: %w", err)
	}
	defer rows.Close()

	var matches []domain.Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan match: %w", err)
		}
		matches = append(matches, *m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating matches: %w", err)
	}

	return matches, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMatch(s rowScanner) (*domain.Match, error) {
	var m domain.Match
	var dateStr string
	var homeGoals, awayGoals sql.NullInt64

	if err := s.Scan(&m.ID, &m.HomeTeamID, &m.AwayTeamID, &m.SeasonID, &dateStr,
		&homeGoals, &awayGoals, &m.Status, &m.Winner); err != nil {
		return nil, err
	}

	date, err := parseTime(dateStr)
	if err != nil {
		return nil, fmt.Errorf("invalid match_date %q: %w", dateStr, err)
	}
	m.Date = date

	if homeGoals.Valid {
		v := int(homeGoals.Int64)
		m.HomeGoals = &v
	}
	if awayGoals.Valid {
		v := int(awayGoals.Int64)
		m.AwayGoals = &v
	}

	return &m, nil
}

func scanMatchRow(row *sql.Row) (*domain.Match, error) {
	return scanMatch(row)
}

// parseTime accepts both RFC3339 and sqlite's default datetime format.
func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", s)
}
