package history

import (
	"database/sql"

	"github.com/rs/zerolog"
)

// Store bundles the read repositories into a single domain.MatchHistoryStore
// implementation.
type Store struct {
	*MatchRepository
	*StatsRepository
}

// NewStore creates a store over the history database.
func NewStore(db *sql.DB, log zerolog.Logger) *Store {
	return &Store{
		MatchRepository: NewMatchRepository(db, log),
		StatsRepository: NewStatsRepository(db, log),
	}
}
