package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/skarlatos/scoreline/internal/domain"
)

// PredictionRepository handles prediction and batch persistence.
type PredictionRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewPredictionRepository creates a new prediction repository
func NewPredictionRepository(db *sql.DB, log zerolog.Logger) *PredictionRepository {
	return &PredictionRepository{
		db:  db,
		log: log.With().Str("repo", "prediction").Logger(),
	}
}

// CreateBatch inserts a new prediction batch.
func (r *PredictionRepository) CreateBatch(ctx context.Context, b *domain.PredictionBatch) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO prediction_batches (id, model_id, run_date, description, total_predictions)
		VALUES (?, ?, ?, ?, ?)`,
		b.ID, b.ModelID, b.RunDate.UTC().Format(time.RFC3339), b.Description, b.TotalPredictions)
	if err != nil {
		return fmt.Errorf("failed to create batch %s: %w", b.ID, err)
	}
	return nil
}

// GetBatch returns a batch by ID, or nil when no such batch exists.
func (r *PredictionRepository) GetBatch(ctx context.Context, batchID string) (*domain.PredictionBatch, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, model_id, run_date, COALESCE(description, ''), total_predictions
		FROM prediction_batches WHERE id = ?`, batchID)

	var b domain.PredictionBatch
	var runDate string
	err := row.Scan(&b.ID, &b.ModelID, &runDate, &b.Description, &b.TotalPredictions)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get batch %s: %w", batchID, err)
	}

	if t, err := parseTime(runDate); err == nil {
		b.RunDate = t
	}

	return &b, nil
}

// SetBatchTotal records the number of successful predictions in a batch run.
func (r *PredictionRepository) SetBatchTotal(ctx context.Context, batchID string, total int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE prediction_batches SET total_predictions = ? WHERE id = ?`, total, batchID)
	if err != nil {
		return fmt.Errorf("failed to update batch %s total: %w", batchID, err)
	}
	return nil
}

// Exists reports whether a prediction already exists for (match, batch).
func (r *PredictionRepository) Exists(ctx context.Context, matchID, batchID string) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM predictions WHERE match_id = ? AND batch_id = ?`,
		matchID, batchID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check prediction existence: %w", err)
	}
	return count > 0, nil
}

// Create inserts a new prediction row in pending state.
func (r *PredictionRepository) Create(ctx context.Context, p *domain.Prediction) error {
	var featuresJSON []byte
	if p.FeaturesUsed != nil {
		var err error
		featuresJSON, err = json.Marshal(p.FeaturesUsed)
		if err != nil {
			return fmt.Errorf("failed to marshal features for prediction %s: %w", p.ID, err)
		}
	}

	status := p.ResultStatus
	if status == "" {
		status = domain.ResultPending
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO predictions (id, match_id, batch_id, predicted_winner,
			home_win_probability, draw_probability, away_win_probability,
			home_expected_goals, away_expected_goals, btts_probability,
			confidence_score, features_used, result_status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.MatchID, p.BatchID, p.PredictedWinner,
		p.HomeWinProbability, p.DrawProbability, p.AwayWinProbability,
		p.HomeExpectedGoals, p.AwayExpectedGoals, p.BTTSProbability,
		p.ConfidenceScore, string(featuresJSON), status)
	if err != nil {
		return fmt.Errorf("failed to create prediction for match %s batch %s: %w", p.MatchID, p.BatchID, err)
	}

	return nil
}

// ListPending returns pending predictions whose match is finished with a
// non-null winner. Scoped to a batch or an explicit ID list when given.
func (r *PredictionRepository) ListPending(ctx context.Context, batchID string, ids []string) ([]domain.Prediction, error) {
	query := `SELECT p.id, p.match_id, p.batch_id, p.predicted_winner,
			p.home_win_probability, p.draw_probability, p.away_win_probability,
			p.home_expected_goals, p.away_expected_goals, p.btts_probability,
			p.confidence_score, COALESCE(p.features_used, ''), p.result_status
		FROM predictions p
		JOIN matches m ON m.id = p.match_id
		WHERE p.result_status = 'pending'
		AND m.status = 'finished'
		AND m.winner IS NOT NULL`
	args := []interface{}{}

	if len(ids) > 0 {
		query += ` AND p.id IN (?` + strings.Repeat(",?", len(ids)-1) + `)`
		for _, id := range ids {
			args = append(args, id)
		}
	} else if batchID != "" {
		query += ` AND p.batch_id = ?`
		args = append(args, batchID)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending predictions: %w", err)
	}
	defer rows.Close()

	var predictions []domain.Prediction
	for rows.Next() {
		var p domain.Prediction
		var featuresJSON string
		if err := rows.Scan(&p.ID, &p.MatchID, &p.BatchID, &p.PredictedWinner,
			&p.HomeWinProbability, &p.DrawProbability, &p.AwayWinProbability,
			&p.HomeExpectedGoals, &p.AwayExpectedGoals, &p.BTTSProbability,
			&p.ConfidenceScore, &featuresJSON, &p.ResultStatus); err != nil {
			return nil, fmt.Errorf("failed to scan prediction: %w", err)
		}
		if featuresJSON != "" {
			if err := json.Unmarshal([]byte(featuresJSON), &p.FeaturesUsed); err != nil {
				r.log.Warn().Err(err).Str("prediction", p.ID).Msg("Failed to unmarshal stored features")
			}
		}
		predictions = append(predictions, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pending predictions: %w", err)
	}

	return predictions, nil
}

// Resolve transitions a pending prediction to correct or wrong. The WHERE
// guard makes resolved predictions immutable.
func (r *PredictionRepository) Resolve(ctx context.Context, predictionID, status string) error {
	if status != domain.ResultCorrect && status != domain.ResultWrong {
		return fmt.Errorf("invalid result status %q", status)
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE predictions SET result_status = ? WHERE id = ? AND result_status = 'pending'`,
		status, predictionID)
	if err != nil {
		return fmt.Errorf("failed to resolve prediction %s: %w", predictionID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check resolve result for %s: %w", predictionID, err)
	}
	if affected == 0 {
		return fmt.Errorf("prediction %s is not pending", predictionID)
	}

	return nil
}

// GetByBatch returns all predictions in a batch, newest first.
func (r *PredictionRepository) GetByBatch(ctx context.Context, batchID string) ([]domain.Prediction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, match_id, batch_id, predicted_winner,
			home_win_probability, draw_probability, away_win_probability,
			home_expected_goals, away_expected_goals, btts_probability,
			confidence_score, COALESCE(features_used, ''), result_status
		FROM predictions WHERE batch_id = ? ORDER BY created_at DESC`, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to query batch predictions: %w", err)
	}
	defer rows.Close()

	var predictions []domain.Prediction
	for rows.Next() {
		var p domain.Prediction
		var featuresJSON string
		if err := rows.Scan(&p.ID, &p.MatchID, &p.BatchID, &p.PredictedWinner,
			&p.HomeWinProbability, &p.DrawProbability, &p.AwayWinProbability,
			&p.HomeExpectedGoals, &p.AwayExpectedGoals, &p.BTTSProbability,
			&p.ConfidenceScore, &featuresJSON, &p.ResultStatus); err != nil {
			return nil, fmt.Errorf("failed to scan prediction: %w", err)
		}
		if featuresJSON != "" {
			_ = json.Unmarshal([]byte(featuresJSON), &p.FeaturesUsed)
		}
		predictions = append(predictions, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating batch predictions: %w", err)
	}

	return predictions, nil
}
