package features

import (
	"context"
	"sort"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skarlatos/scoreline/internal/domain"
)

// fakeHistoryStore is an in-memory MatchHistoryStore that applies the same
// filtering and ordering contract as the SQL implementation.
type fakeHistoryStore struct {
	matches    []domain.Match
	aggregates map[string]*domain.TeamSeasonStats // keyed teamID|seasonID
	season     *domain.Season
	err        error
}

func newFakeHistoryStore() *fakeHistoryStore {
	return &fakeHistoryStore{
		aggregates: make(map[string]*domain.TeamSeasonStats),
	}
}

func (s *fakeHistoryStore) addFinished(id, home, away string, date time.Time, homeGoals, awayGoals int) {
	winner := domain.WinnerDraw
	if homeGoals > awayGoals {
		winner = domain.WinnerHome
	} else if awayGoals > homeGoals {
		winner = domain.WinnerAway
	}
	s.matches = append(s.matches, domain.Match{
		ID:         id,
		HomeTeamID: home,
		AwayTeamID: away,
		SeasonID:   "season-1",
		Date:       date,
		HomeGoals:  &homeGoals,
		AwayGoals:  &awayGoals,
		Status:     domain.MatchFinished,
		Winner:     winner,
	})
}

func (s *fakeHistoryStore) setAggregate(teamID string, stats *domain.TeamSeasonStats) {
	s.aggregates[teamID+"|season-1"] = stats
}

func (s *fakeHistoryStore) GetMatch(ctx context.Context, matchID string) (*domain.Match, error) {
	for i := range s.matches {
		if s.matches[i].ID == matchID {
			return &s.matches[i], nil
		}
	}
	return nil, nil
}

func (s *fakeHistoryStore) ListFinishedMatches(ctx context.Context, filter domain.MatchFilter) ([]domain.Match, error) {
	if s.err != nil {
		return nil, s.err
	}

	var out []domain.Match
	for _, m := range s.matches {
		if !m.IsFinished() {
			continue
		}
		if filter.TeamID != "" && m.HomeTeamID != filter.TeamID && m.AwayTeamID != filter.TeamID {
			continue
		}
		if filter.HomeTeamID != "" && m.HomeTeamID != filter.HomeTeamID {
			continue
		}
		if filter.AwayTeamID != "" && m.AwayTeamID != filter.AwayTeamID {
			continue
		}
		if filter.BeforeDate != nil && !m.Date.Before(*filter.BeforeDate) {
			continue
		}
		out = append(out, m)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *fakeHistoryStore) ListHeadToHead(ctx context.Context, teamA, teamB string, before *time.Time, limit int) ([]domain.Match, error) {
	if s.err != nil {
		return nil, s.err
	}

	var out []domain.Match
	for _, m := range s.matches {
		if !m.IsFinished() {
			continue
		}
		pair := (m.HomeTeamID == teamA && m.AwayTeamID == teamB) ||
			(m.HomeTeamID == teamB && m.AwayTeamID == teamA)
		if !pair {
			continue
		}
		if before != nil && !m.Date.Before(*before) {
			continue
		}
		out = append(out, m)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeHistoryStore) ListScheduled(ctx context.Context, limit int) ([]domain.Match, error) {
	var out []domain.Match
	for _, m := range s.matches {
		if m.Status == domain.MatchScheduled {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeHistoryStore) GetAggregate(ctx context.Context, teamID, seasonID string) (*domain.TeamSeasonStats, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.aggregates[teamID+"|"+seasonID], nil
}

func (s *fakeHistoryStore) GetActiveSeason(ctx context.Context) (*domain.Season, error) {
	return s.season, nil
}

func day(n int) time.Time {
	return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func TestFormIndex(t *testing.T) {
	store := newFakeHistoryStore()
	engine := NewEngine(store, zerolog.Nop())
	ctx := context.Background()

	t.Run("no history yields zero", func(t *testing.T) {
		form, err := engine.FormIndex(ctx, "team-a", day(100), FormWindow)
		require.NoError(t, err)
		assert.Equal(t, 0.0, form)
	})

	t.Run("three wins one draw one loss", func(t *testing.T) {
		store.addFinished("m1", "team-a", "x1", day(1), 2, 0) // win
		store.addFinished("m2", "x2", "team-a", day(2), 0, 1) // win
		store.addFinished("m3", "team-a", "x3", day(3), 1, 1) // draw
		store.addFinished("m4", "x4", "team-a", day(4), 3, 0) // loss
		store.addFinished("m5", "team-a", "x5", day(5), 4, 2) // win

		form, err := engine.FormIndex(ctx, "team-a", day(100), FormWindow)
		require.NoError(t, err)
		// 10 points out of 15 possible
		assert.InDelta(t, 66.67, form, 0.01)
	})

	t.Run("window keeps only the most recent matches", func(t *testing.T) {
		// Five more recent losses push the earlier results out of the window.
		for i := 0; i < 5; i++ {
			store.addFinished("loss-"+string(rune('a'+i)), "team-a", "y", day(10+i), 0, 1)
		}

		form, err := engine.FormIndex(ctx, "team-a", day(100), FormWindow)
		require.NoError(t, err)
		assert.Equal(t, 0.0, form)
	})

	t.Run("before date excludes later matches", func(t *testing.T) {
		form, err := engine.FormIndex(ctx, "team-a", day(2), FormWindow)
		require.NoError(t, err)
		// Only m1, a win, is strictly before day 2.
		assert.InDelta(t, 100.0, form, 0.01)
	})
}

func TestHeadToHead(t *testing.T) {
	store := newFakeHistoryStore()
	engine := NewEngine(store, zerolog.Nop())
	ctx := context.Background()

	// alpha vs beta: alpha wins at home, beta wins at home, one draw.
	store.addFinished("h1", "alpha", "beta", day(1), 2, 1)
	store.addFinished("h2", "beta", "alpha", day(2), 3, 0)
	store.addFinished("h3", "alpha", "beta", day(3), 1, 1)

	t.Run("perspective-relative counts", func(t *testing.T) {
		stats, err := engine.HeadToHead(ctx, "alpha", "beta", H2HLimit)
		require.NoError(t, err)

		assert.Equal(t, 3, stats.TotalMatches)
		assert.Equal(t, 1, stats.HomeWins)
		assert.Equal(t, 1, stats.AwayWins)
		assert.Equal(t, 1, stats.Draws)
		// alpha scored 2, 0, 1; beta scored 1, 3, 1.
		assert.InDelta(t, 1.0, stats.HomeGoalsAvg, 0.001)
		assert.InDelta(t, 5.0/3.0, stats.AwayGoalsAvg, 0.001)
	})

	t.Run("mirrored perspective swaps win counts", func(t *testing.T) {
		alpha, err := engine.HeadToHead(ctx, "alpha", "beta", H2HLimit)
		require.NoError(t, err)
		beta, err := engine.HeadToHead(ctx, "beta", "alpha", H2HLimit)
		require.NoError(t, err)

		assert.Equal(t, alpha.HomeWins, beta.AwayWins)
		assert.Equal(t, alpha.AwayWins, beta.HomeWins)
		assert.Equal(t, alpha.Draws, beta.Draws)
		assert.InDelta(t, alpha.HomeGoalsAvg, beta.AwayGoalsAvg, 0.001)
	})

	t.Run("no meetings yields zero stats", func(t *testing.T) {
		stats, err := engine.HeadToHead(ctx, "alpha", "gamma", H2HLimit)
		require.NoError(t, err)
		assert.Equal(t, 0, stats.TotalMatches)
		assert.Equal(t, 0.0, stats.HomeWinPct)
	})
}

func TestExpectedGoals(t *testing.T) {
	store := newFakeHistoryStore()
	engine := NewEngine(store, zerolog.Nop())
	ctx := context.Background()

	store.addFinished("e1", "alpha", "x1", day(1), 3, 0)
	store.addFinished("e2", "alpha", "x2", day(2), 1, 2)
	store.addFinished("e3", "x3", "alpha", day(3), 0, 4) // away match, excluded from home xG

	t.Run("venue-specific mean", func(t *testing.T) {
		homeXG, err := engine.ExpectedGoals(ctx, "alpha", true, VenueXGLimit)
		require.NoError(t, err)
		assert.InDelta(t, 2.0, homeXG, 0.001)

		awayXG, err := engine.ExpectedGoals(ctx, "alpha", false, VenueXGLimit)
		require.NoError(t, err)
		assert.InDelta(t, 4.0, awayXG, 0.001)
	})

	t.Run("empty history yields zero", func(t *testing.T) {
		xg, err := engine.ExpectedGoals(ctx, "nobody", true, VenueXGLimit)
		require.NoError(t, err)
		assert.Equal(t, 0.0, xg)
	})
}

func TestBTTSProbability(t *testing.T) {
	store := newFakeHistoryStore()
	engine := NewEngine(store, zerolog.Nop())
	ctx := context.Background()

	// A mutual meeting appears in both teams' recent lists and must count once.
	store.addFinished("b1", "alpha", "beta", day(1), 2, 1)  // both scored
	store.addFinished("b2", "alpha", "x1", day(2), 3, 0)    // not both
	store.addFinished("b3", "x2", "beta", day(3), 1, 1)     // both scored

	prob, err := engine.BTTSProbability(ctx, "alpha", "beta")
	require.NoError(t, err)
	// Pool is {b1, b2, b3}: 2 of 3 with both scoring.
	assert.InDelta(t, 66.67, prob, 0.01)
}

func TestCompute(t *testing.T) {
	ctx := context.Background()

	t.Run("zero history yields neutral vector", func(t *testing.T) {
		store := newFakeHistoryStore()
		engine := NewEngine(store, zerolog.Nop())

		match := &domain.Match{
			ID:         "future-1",
			HomeTeamID: "alpha",
			AwayTeamID: "beta",
			SeasonID:   "season-1",
			Date:       day(50),
			Status:     domain.MatchScheduled,
		}

		v, err := engine.Compute(ctx, match, time.Time{})
		require.NoError(t, err)

		m := v.Map()
		assert.Equal(t, 0.0, m["home_form_index"])
		assert.Equal(t, 0.0, m["home_points"])
		assert.Equal(t, 0.0, m["h2h_total_matches"])
		assert.Equal(t, 0.33, m["rating_home_win_prob"])
		assert.Equal(t, 0.33, m["rating_draw_prob"])
		assert.Equal(t, 0.33, m["rating_away_win_prob"])
		assert.Equal(t, 1.0, m["home_advantage"])
		assert.Len(t, v.Values(), Count())
	})

	t.Run("zero asOf excludes the match itself and later matches", func(t *testing.T) {
		store := newFakeHistoryStore()
		engine := NewEngine(store, zerolog.Nop())

		// alpha wins before the target, loses after it.
		store.addFinished("before", "alpha", "x1", day(1), 2, 0)
		store.addFinished("target", "alpha", "beta", day(5), 0, 3)
		store.addFinished("after", "alpha", "x2", day(9), 0, 5)

		target, err := store.GetMatch(ctx, "target")
		require.NoError(t, err)

		v, err := engine.Compute(ctx, target, time.Time{})
		require.NoError(t, err)

		// Only the day-1 win is visible: full form, no own-result leakage.
		assert.InDelta(t, 100.0, v.Map()["home_form_index"], 0.01)
		assert.Equal(t, 0.0, v.Map()["h2h_total_matches"])
	})

	t.Run("aggregate block requires both stats rows", func(t *testing.T) {
		store := newFakeHistoryStore()
		engine := NewEngine(store, zerolog.Nop())
		store.setAggregate("alpha", &domain.TeamSeasonStats{
			TeamID: "alpha", SeasonID: "season-1",
			MatchesPlayed: 10, Wins: 6, Draws: 2, Losses: 2,
			GoalsFor: 18, GoalsAgainst: 8, GoalDifference: 10, Points: 20,
			HomeWins: 4, AwayWins: 2,
		})
		// beta has no row: the whole block stays zero.

		match := &domain.Match{
			ID: "agg-1", HomeTeamID: "alpha", AwayTeamID: "beta",
			SeasonID: "season-1", Date: day(50), Status: domain.MatchScheduled,
		}

		v, err := engine.Compute(ctx, match, time.Time{})
		require.NoError(t, err)
		assert.Equal(t, 0.0, v.Map()["home_points"])
		assert.Equal(t, 0.0, v.Map()["home_win_rate"])
	})

	t.Run("full aggregate and rating block", func(t *testing.T) {
		store := newFakeHistoryStore()
		engine := NewEngine(store, zerolog.Nop())
		store.setAggregate("alpha", &domain.TeamSeasonStats{
			TeamID: "alpha", SeasonID: "season-1",
			MatchesPlayed: 10, Wins: 6, Draws: 2, Losses: 2,
			GoalsFor: 18, GoalsAgainst: 8, GoalDifference: 10, Points: 20,
			HomeWins: 4, AwayWins: 2,
		})
		store.setAggregate("beta", &domain.TeamSeasonStats{
			TeamID: "beta", SeasonID: "season-1",
			MatchesPlayed: 10, Wins: 3, Draws: 3, Losses: 4,
			GoalsFor: 10, GoalsAgainst: 12, GoalDifference: -2, Points: 12,
			HomeWins: 2, AwayWins: 1,
		})

		match := &domain.Match{
			ID: "agg-2", HomeTeamID: "alpha", AwayTeamID: "beta",
			SeasonID: "season-1", Date: day(50), Status: domain.MatchScheduled,
		}

		v, err := engine.Compute(ctx, match, time.Time{})
		require.NoError(t, err)

		m := v.Map()
		assert.Equal(t, 20.0, m["home_points"])
		assert.Equal(t, 12.0, m["away_points"])
		assert.Equal(t, 8.0, m["points_difference"])
		assert.InDelta(t, 0.6, m["home_win_rate"], 0.001)
		assert.InDelta(t, 1.8, m["home_goals_per_match"], 0.001)
		assert.InDelta(t, 0.8, m["home_home_win_rate"], 0.001) // 4 of 5 home games

		// Rating diff: (2*20+10) + 3 - (2*12-2) = 31, deep in the top bucket.
		assert.Equal(t, 0.65, m["rating_home_win_prob"])
		assert.Equal(t, 0.15, m["rating_draw_prob"])
		assert.Equal(t, 0.20, m["rating_away_win_prob"])
	})

	t.Run("store failure wraps as feature computation error", func(t *testing.T) {
		store := newFakeHistoryStore()
		store.err = assert.AnError
		engine := NewEngine(store, zerolog.Nop())

		match := &domain.Match{
			ID: "broken", HomeTeamID: "alpha", AwayTeamID: "beta",
			SeasonID: "season-1", Date: day(50), Status: domain.MatchScheduled,
		}

		_, err := engine.Compute(ctx, match, time.Time{})
		require.Error(t, err)

		var fce *domain.FeatureComputationError
		require.ErrorAs(t, err, &fce)
		assert.Equal(t, "broken", fce.MatchID)
		assert.ErrorIs(t, err, assert.AnError)
	})
}

func TestRatingTripleBoundaries(t *testing.T) {
	cases := []struct {
		diff             int
		home, draw, away float64
	}{
		{11, 0.65, 0.15, 0.20},
		// A diff of exactly 10 is not "> 10": it lands in the band below.
		{10, 0.55, 0.20, 0.25},
		{6, 0.55, 0.20, 0.25},
		{5, 0.45, 0.25, 0.30},
		{-4, 0.45, 0.25, 0.30},
		{-5, 0.30, 0.20, 0.50},
		{-9, 0.30, 0.20, 0.50},
		{-10, 0.20, 0.15, 0.65},
	}

	for _, tc := range cases {
		t.Run(strconv.Itoa(tc.diff), func(t *testing.T) {
			home, draw, away := RatingTriple(tc.diff)
			assert.Equal(t, tc.home, home)
			assert.Equal(t, tc.draw, draw)
			assert.Equal(t, tc.away, away)
			assert.InDelta(t, 1.0, home+draw+away, 1e-6)
		})
	}
}
