package history

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skarlatos/scoreline/internal/database"
	"github.com/skarlatos/scoreline/internal/domain"
)

// openTestDB creates a migrated history database in a temp directory.
// Foreign keys are on, so fixtures must insert teams and seasons before
// matches, and models and batches before predictions.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), "history.db"),
		Profile: database.ProfileHistory,
		Name:    "history",
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })

	return db.Conn()
}

func seedTeams(t *testing.T, db *sql.DB, ids ...string) {
	t.Helper()
	for _, id := range ids {
		_, err := db.Exec(`INSERT INTO teams (id, name, short_code) VALUES (?, ?, ?)`,
			id, "Team "+id, id)
		require.NoError(t, err)
	}
}

func seedSeason(t *testing.T, db *sql.DB, id string, active bool) {
	t.Helper()
	_, err := db.Exec(`INSERT INTO seasons (id, name, is_active) VALUES (?, ?, ?)`,
		id, "Season "+id, active)
	require.NoError(t, err)
}

type matchFixture struct {
	id, home, away string
	date           time.Time
	homeGoals      *int
	awayGoals      *int
	status         string
	winner         string
}

func seedMatch(t *testing.T, db *sql.DB, f matchFixture) {
	t.Helper()

	var winner interface{}
	if f.winner != "" {
		winner = f.winner
	}

	_, err := db.Exec(
		`INSERT INTO matches (id, home_team_id, away_team_id, season_id, match_date,
			home_goals, away_goals, status, winner)
		VALUES (?, ?, ?, 'sea-1', ?, ?, ?, ?, ?)`,
		f.id, f.home, f.away, f.date.UTC().Format(time.RFC3339),
		f.homeGoals, f.awayGoals, f.status, winner)
	require.NoError(t, err)
}

func intp(v int) *int { return &v }

// seedFixtures inserts the shared teams and an active season; individual
// tests add the matches they need.
func seedFixtures(t *testing.T, db *sql.DB) {
	t.Helper()
	seedTeams(t, db, "ars", "che", "liv")
	seedSeason(t, db, "sea-1", true)
}

func day(n int) time.Time {
	return time.Date(2025, 1, n, 15, 0, 0, 0, time.UTC)
}

func TestGetMatchMissingReturnsNil(t *testing.T) {
	db := openTestDB(t)
	repo := NewMatchRepository(db, zerolog.Nop())

	m, err := repo.GetMatch(context.Background(), "no-such-match")
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestGetMatchFinished(t *testing.T) {
	db := openTestDB(t)
	seedFixtures(t, db)
	seedMatch(t, db, matchFixture{
		id: "m1", home: "ars", away: "che", date: day(10),
		homeGoals: intp(2), awayGoals: intp(1),
		status: domain.MatchFinished, winner: domain.WinnerHome,
	})

	repo := NewMatchRepository(db, zerolog.Nop())
	m, err := repo.GetMatch(context.Background(), "m1")
	require.NoError(t, err)
	require.NotNil(t, m)

	assert.Equal(t, "ars", m.HomeTeamID)
	assert.Equal(t, "che", m.AwayTeamID)
	assert.Equal(t, domain.MatchFinished, m.Status)
	assert.Equal(t, domain.WinnerHome, m.Winner)
	require.NotNil(t, m.HomeGoals)
	require.NotNil(t, m.AwayGoals)
	assert.Equal(t, 2, *m.HomeGoals)
	assert.Equal(t, 1, *m.AwayGoals)
	assert.True(t, m.Date.Equal(day(10)))
}

func TestGetMatchScheduledHasNilGoals(t *testing.T) {
	db := openTestDB(t)
	seedFixtures(t, db)
	seedMatch(t, db, matchFixture{
		id: "m1", home: "ars", away: "che", date: day(20),
		status: domain.MatchScheduled,
	})

	repo := NewMatchRepository(db, zerolog.Nop())
	m, err := repo.GetMatch(context.Background(), "m1")
	require.NoError(t, err)
	require.NotNil(t, m)

	assert.Nil(t, m.HomeGoals)
	assert.Nil(t, m.AwayGoals)
	assert.Empty(t, m.Winner)
}

func TestListFinishedMatchesFilters(t *testing.T) {
	db := openTestDB(t)
	seedFixtures(t, db)

	seedMatch(t, db, matchFixture{id: "m1", home: "ars", away: "che", date: day(1),
		homeGoals: intp(1), awayGoals: intp(0), status: domain.MatchFinished, winner: domain.WinnerHome})
	seedMatch(t, db, matchFixture{id: "m2", home: "che", away: "ars", date: day(5),
		homeGoals: intp(2), awayGoals: intp(2), status: domain.MatchFinished, winner: domain.WinnerDraw})
	seedMatch(t, db, matchFixture{id: "m3", home: "liv", away: "che", date: day(9),
		homeGoals: intp(0), awayGoals: intp(3), status: domain.MatchFinished, winner: domain.WinnerAway})
	seedMatch(t, db, matchFixture{id: "m4", home: "ars", away: "liv", date: day(12),
		status: domain.MatchScheduled})

	repo := NewMatchRepository(db, zerolog.Nop())
	ctx := context.Background()

	t.Run("team filter either side, newest first", func(t *testing.T) {
		got, err := repo.ListFinishedMatches(ctx, domain.MatchFilter{TeamID: "ars"})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "m2", got[0].ID)
		assert.Equal(t, "m1", got[1].ID)
	})

	t.Run("home side only", func(t *testing.T) {
		got, err := repo.ListFinishedMatches(ctx, domain.MatchFilter{HomeTeamID: "ars"})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "m1", got[0].ID)
	})

	t.Run("before date excludes later matches", func(t *testing.T) {
		before := day(9)
		got, err := repo.ListFinishedMatches(ctx, domain.MatchFilter{BeforeDate: &before})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "m2", got[0].ID)
	})

	t.Run("limit caps the result", func(t *testing.T) {
		got, err := repo.ListFinishedMatches(ctx, domain.MatchFilter{Limit: 1})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "m3", got[0].ID)
	})

	t.Run("scheduled matches never included", func(t *testing.T) {
		got, err := repo.ListFinishedMatches(ctx, domain.MatchFilter{TeamID: "liv"})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "m3", got[0].ID)
	})
}

func TestListHeadToHeadBothOrientations(t *testing.T) {
	db := openTestDB(t)
	seedFixtures(t, db)

	seedMatch(t, db, matchFixture{id: "m1", home: "ars", away: "che", date: day(1),
		homeGoals: intp(1), awayGoals: intp(0), status: domain.MatchFinished, winner: domain.WinnerHome})
	seedMatch(t, db, matchFixture{id: "m2", home: "che", away: "ars", date: day(6),
		homeGoals: intp(0), awayGoals: intp(0), status: domain.MatchFinished, winner: domain.WinnerDraw})
	seedMatch(t, db, matchFixture{id: "m3", home: "ars", away: "liv", date: day(8),
		homeGoals: intp(2), awayGoals: intp(1), status: domain.MatchFinished, winner: domain.WinnerHome})

	repo := NewMatchRepository(db, zerolog.Nop())
	ctx := context.Background()

	got, err := repo.ListHeadToHead(ctx, "ars", "che", nil, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "m2", got[0].ID)
	assert.Equal(t, "m1", got[1].ID)

	before := day(6)
	got, err = repo.ListHeadToHead(ctx, "ars", "che", &before, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "m1", got[0].ID)

	got, err = repo.ListHeadToHead(ctx, "ars", "che", nil, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "m2", got[0].ID)
}

func TestListScheduledAscending(t *testing.T) {
	db := openTestDB(t)
	seedFixtures(t, db)

	seedMatch(t, db, matchFixture{id: "m1", home: "ars", away: "che", date: day(20),
		status: domain.MatchScheduled})
	seedMatch(t, db, matchFixture{id: "m2", home: "liv", away: "ars", date: day(15),
		status: domain.MatchScheduled})
	seedMatch(t, db, matchFixture{id: "m3", home: "che", away: "liv", date: day(1),
		homeGoals: intp(1), awayGoals: intp(1), status: domain.MatchFinished, winner: domain.WinnerDraw})

	repo := NewMatchRepository(db, zerolog.Nop())
	got, err := repo.ListScheduled(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "m2", got[0].ID)
	assert.Equal(t, "m1", got[1].ID)
}

func TestGetAggregate(t *testing.T) {
	db := openTestDB(t)
	seedFixtures(t, db)

	repo := NewStatsRepository(db, zerolog.Nop())
	ctx := context.Background()

	got, err := repo.GetAggregate(ctx, "ars", "sea-1")
	require.NoError(t, err)
	assert.Nil(t, got, "missing aggregate row should be nil, not an error")

	_, err = db.Exec(
		`INSERT INTO team_season_stats (team_id, season_id, matches_played, wins, draws,
			losses, goals_for, goals_against, goal_difference, points, home_wins, away_wins)
		VALUES ('ars', 'sea-1', 10, 6, 2, 2, 18, 9, 9, 20, 4, 2)`)
	require.NoError(t, err)

	got, err = repo.GetAggregate(ctx, "ars", "sea-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 10, got.MatchesPlayed)
	assert.Equal(t, 20, got.Points)
	assert.Equal(t, 9, got.GoalDifference)
	assert.Equal(t, 4, got.HomeWins)
}

func TestGetActiveSeason(t *testing.T) {
	db := openTestDB(t)
	repo := NewStatsRepository(db, zerolog.Nop())
	ctx := context.Background()

	got, err := repo.GetActiveSeason(ctx)
	require.NoError(t, err)
	assert.Nil(t, got, "no active season should be nil, not an error")

	seedSeason(t, db, "sea-0", false)
	seedSeason(t, db, "sea-1", true)

	got, err = repo.GetActiveSeason(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "sea-1", got.ID)
	assert.True(t, got.IsActive)
}

func TestModelRepositorySaveAndGet(t *testing.T) {
	db := openTestDB(t)
	repo := NewModelRepository(db, zerolog.Nop())
	ctx := context.Background()

	got, err := repo.Get(ctx, "mod-1")
	require.NoError(t, err)
	assert.Nil(t, got)

	trainedAt := day(3)
	acc := 0.71
	rec := &domain.ModelRecord{
		ID:           "mod-1",
		Name:         "winner classifier",
		Version:      "1",
		Algorithm:    "random_forest",
		Accuracy:     &acc,
		ArtifactPath: "/models/model_mod-1.artifact",
		TrainedAt:    &trainedAt,
	}
	require.NoError(t, repo.Save(ctx, rec))

	got, err = repo.Get(ctx, "mod-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "random_forest", got.Algorithm)
	require.NotNil(t, got.Accuracy)
	assert.InDelta(t, 0.71, *got.Accuracy, 1e-9)
	assert.Nil(t, got.Recall)
	require.NotNil(t, got.TrainedAt)
	assert.True(t, got.TrainedAt.Equal(trainedAt))

	// Upsert replaces metrics on retrain.
	acc2 := 0.78
	rec.Accuracy = &acc2
	rec.Version = "2"
	require.NoError(t, repo.Save(ctx, rec))

	got, err = repo.Get(ctx, "mod-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "2", got.Version)
	assert.InDelta(t, 0.78, *got.Accuracy, 1e-9)
}

func seedModel(t *testing.T, db *sql.DB, id string) {
	t.Helper()
	_, err := db.Exec(`INSERT INTO models (id, name, algorithm) VALUES (?, ?, 'random_forest')`,
		id, "Model "+id)
	require.NoError(t, err)
}

func TestBatchLifecycle(t *testing.T) {
	db := openTestDB(t)
	seedModel(t, db, "mod-1")
	repo := NewPredictionRepository(db, zerolog.Nop())
	ctx := context.Background()

	got, err := repo.GetBatch(ctx, "b1")
	require.NoError(t, err)
	assert.Nil(t, got, "missing batch should be nil, not an error")

	require.NoError(t, repo.CreateBatch(ctx, &domain.PredictionBatch{
		ID:          "b1",
		ModelID:     "mod-1",
		RunDate:     day(7),
		Description: "weekend round",
	}))

	got, err = repo.GetBatch(ctx, "b1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "mod-1", got.ModelID)
	assert.Equal(t, "weekend round", got.Description)
	assert.Equal(t, 0, got.TotalPredictions)

	require.NoError(t, repo.SetBatchTotal(ctx, "b1", 12))
	got, err = repo.GetBatch(ctx, "b1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 12, got.TotalPredictions)
}

func seedPredictionFixtures(t *testing.T, db *sql.DB) *PredictionRepository {
	t.Helper()
	seedFixtures(t, db)
	seedModel(t, db, "mod-1")

	repo := NewPredictionRepository(db, zerolog.Nop())
	require.NoError(t, repo.CreateBatch(context.Background(), &domain.PredictionBatch{
		ID: "b1", ModelID: "mod-1", RunDate: day(1),
	}))
	return repo
}

func TestPredictionCreateAndExists(t *testing.T) {
	db := openTestDB(t)
	repo := seedPredictionFixtures(t, db)
	ctx := context.Background()

	seedMatch(t, db, matchFixture{id: "m1", home: "ars", away: "che", date: day(10),
		status: domain.MatchScheduled})

	ok, err := repo.Exists(ctx, "m1", "b1")
	require.NoError(t, err)
	assert.False(t, ok)

	p := &domain.Prediction{
		ID:                 "p1",
		MatchID:            "m1",
		BatchID:            "b1",
		PredictedWinner:    domain.WinnerHome,
		HomeWinProbability: 0.5,
		DrawProbability:    0.3,
		AwayWinProbability: 0.2,
		ConfidenceScore:    0.5,
		FeaturesUsed:       map[string]float64{"form_diff": 0.4},
	}
	require.NoError(t, repo.Create(ctx, p))

	ok, err = repo.Exists(ctx, "m1", "b1")
	require.NoError(t, err)
	assert.True(t, ok)

	// One prediction per (match, batch).
	dup := *p
	dup.ID = "p2"
	err = repo.Create(ctx, &dup)
	assert.Error(t, err)
}

func TestListPendingOnlyFinishedWithWinner(t *testing.T) {
	db := openTestDB(t)
	repo := seedPredictionFixtures(t, db)
	ctx := context.Background()

	seedMatch(t, db, matchFixture{id: "m1", home: "ars", away: "che", date: day(2),
		homeGoals: intp(2), awayGoals: intp(0), status: domain.MatchFinished, winner: domain.WinnerHome})
	seedMatch(t, db, matchFixture{id: "m2", home: "liv", away: "ars", date: day(20),
		status: domain.MatchScheduled})
	seedMatch(t, db, matchFixture{id: "m3", home: "che", away: "liv", date: day(3),
		homeGoals: intp(1), awayGoals: intp(1), status: domain.MatchFinished, winner: domain.WinnerDraw})

	for i, matchID := range []string{"m1", "m2", "m3"} {
		require.NoError(t, repo.Create(ctx, &domain.Prediction{
			ID: "p" + string(rune('1'+i)), MatchID: matchID, BatchID: "b1",
			PredictedWinner: domain.WinnerHome,
		}))
	}

	pending, err := repo.ListPending(ctx, "b1", nil)
	require.NoError(t, err)
	require.Len(t, pending, 2, "scheduled match prediction stays unresolved")

	ids := []string{pending[0].ID, pending[1].ID}
	assert.ElementsMatch(t, []string{"p1", "p3"}, ids)

	scoped, err := repo.ListPending(ctx, "", []string{"p3"})
	require.NoError(t, err)
	require.Len(t, scoped, 1)
	assert.Equal(t, "p3", scoped[0].ID)
	assert.Equal(t, "m3", scoped[0].MatchID)
}

func TestResolveGuardsPendingOnly(t *testing.T) {
	db := openTestDB(t)
	repo := seedPredictionFixtures(t, db)
	ctx := context.Background()

	seedMatch(t, db, matchFixture{id: "m1", home: "ars", away: "che", date: day(2),
		homeGoals: intp(2), awayGoals: intp(0), status: domain.MatchFinished, winner: domain.WinnerHome})
	require.NoError(t, repo.Create(ctx, &domain.Prediction{
		ID: "p1", MatchID: "m1", BatchID: "b1", PredictedWinner: domain.WinnerHome,
	}))

	err := repo.Resolve(ctx, "p1", "almost")
	assert.ErrorContains(t, err, "invalid result status")

	require.NoError(t, repo.Resolve(ctx, "p1", domain.ResultCorrect))

	// Resolved predictions are immutable.
	err = repo.Resolve(ctx, "p1", domain.ResultWrong)
	assert.ErrorContains(t, err, "not pending")

	err = repo.Resolve(ctx, "missing", domain.ResultCorrect)
	assert.ErrorContains(t, err, "not pending")
}

func TestGetByBatchRoundTripsFeatures(t *testing.T) {
	db := openTestDB(t)
	repo := seedPredictionFixtures(t, db)
	ctx := context.Background()

	seedMatch(t, db, matchFixture{id: "m1", home: "ars", away: "che", date: day(2),
		status: domain.MatchScheduled})
	require.NoError(t, repo.Create(ctx, &domain.Prediction{
		ID: "p1", MatchID: "m1", BatchID: "b1",
		PredictedWinner:    domain.WinnerAway,
		AwayWinProbability: 0.6,
		FeaturesUsed:       map[string]float64{"h2h_away_rate": 0.55, "away_xg": 1.8},
	}))

	got, err := repo.GetByBatch(ctx, "b1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, domain.WinnerAway, got[0].PredictedWinner)
	assert.Equal(t, domain.ResultPending, got[0].ResultStatus)
	require.NotNil(t, got[0].FeaturesUsed)
	assert.InDelta(t, 1.8, got[0].FeaturesUsed["away_xg"], 1e-9)
}
