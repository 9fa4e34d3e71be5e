package domain

import (
	"context"
	"time"
)

// MatchFilter narrows the finished-match listing. Zero values mean "no
// constraint"; Limit 0 means no cap.
type MatchFilter struct {
	TeamID     string     // matches where the team played, home or away
	HomeTeamID string     // matches where the team played at home
	AwayTeamID string     // matches where the team played away
	BeforeDate *time.Time // strictly before this date
	Limit      int
}

// MatchHistoryStore is the read-only view of finished match history the
// prediction engine depends on. The store is owned externally; the engine
// never writes to it.
type MatchHistoryStore interface {
	// GetMatch returns a single match by ID.
	GetMatch(ctx context.Context, matchID string) (*Match, error)

	// ListFinishedMatches returns finished matches ordered by date descending.
	ListFinishedMatches(ctx context.Context, filter MatchFilter) ([]Match, error)

	// ListHeadToHead returns the last limit finished meetings between the two
	// teams in either venue configuration, ordered by date descending. A
	// non-nil before restricts to meetings strictly before that date.
	ListHeadToHead(ctx context.Context, teamA, teamB string, before *time.Time, limit int) ([]Match, error)

	// ListScheduled returns scheduled matches ordered by date ascending,
	// capped at limit.
	ListScheduled(ctx context.Context, limit int) ([]Match, error)

	// GetAggregate returns the team/season aggregate row, or nil when no row
	// exists (early season, newly added team).
	GetAggregate(ctx context.Context, teamID, seasonID string) (*TeamSeasonStats, error)

	// GetActiveSeason returns the active season, or nil when none is active.
	GetActiveSeason(ctx context.Context) (*Season, error)
}

// PredictionStore persists predictions and batches produced by the engine.
type PredictionStore interface {
	CreateBatch(ctx context.Context, b *PredictionBatch) error
	GetBatch(ctx context.Context, batchID string) (*PredictionBatch, error)
	SetBatchTotal(ctx context.Context, batchID string, total int) error

	// Exists reports whether a prediction already exists for (match, batch).
	Exists(ctx context.Context, matchID, batchID string) (bool, error)
	Create(ctx context.Context, p *Prediction) error

	// ListPending returns pending predictions whose match is finished with a
	// non-null winner. When batchID is non-empty the listing is scoped to that
	// batch; when ids is non-empty it is scoped to those prediction IDs.
	ListPending(ctx context.Context, batchID string, ids []string) ([]Prediction, error)

	// Resolve transitions a pending prediction to correct or wrong. It must
	// not touch predictions already resolved.
	Resolve(ctx context.Context, predictionID, status string) error
}

// ModelStore persists trained model metadata.
type ModelStore interface {
	Get(ctx context.Context, modelID string) (*ModelRecord, error)
	Save(ctx context.Context, rec *ModelRecord) error
}
