package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/skarlatos/scoreline/internal/domain"
	"github.com/skarlatos/scoreline/internal/modules/features"
	"github.com/skarlatos/scoreline/internal/modules/heuristic"
	"github.com/skarlatos/scoreline/internal/modules/inference"
)

// BatchReader reads prediction batches and their contents.
type BatchReader interface {
	GetBatch(ctx context.Context, batchID string) (*domain.PredictionBatch, error)
	GetByBatch(ctx context.Context, batchID string) ([]domain.Prediction, error)
}

// AnalysisHandlers serves read-only prediction and analysis endpoints.
type AnalysisHandlers struct {
	store     domain.MatchHistoryStore
	models    domain.ModelStore
	batches   BatchReader
	engine    *features.Engine
	heuristic *heuristic.Predictor
	inference *inference.Service
	log       zerolog.Logger
}

// NewAnalysisHandlers creates the analysis API handlers.
func NewAnalysisHandlers(
	store domain.MatchHistoryStore,
	models domain.ModelStore,
	batches BatchReader,
	engine *features.Engine,
	predictor *heuristic.Predictor,
	svc *inference.Service,
	log zerolog.Logger,
) *AnalysisHandlers {
	return &AnalysisHandlers{
		store:     store,
		models:    models,
		batches:   batches,
		engine:    engine,
		heuristic: predictor,
		inference: svc,
		log:       log.With().Str("component", "analysis_handlers").Logger(),
	}
}

// HandleGetModel returns the metadata record for a trained model.
// GET /api/models/{modelID}
func (h *AnalysisHandlers) HandleGetModel(w http.ResponseWriter, r *http.Request) {
	modelID := chi.URLParam(r, "modelID")

	rec, err := h.models.Get(r.Context(), modelID)
	if err != nil {
		h.log.Error().Err(err).Str("model_id", modelID).Msg("Failed to load model record")
		writeError(w, http.StatusInternalServerError, "failed to load model")
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "model not found")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// HandleGetBatch returns a batch and every prediction in it.
// GET /api/batches/{batchID}
func (h *AnalysisHandlers) HandleGetBatch(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batchID")

	b, err := h.batches.GetBatch(r.Context(), batchID)
	if err != nil {
		h.log.Error().Err(err).Str("batch_id", batchID).Msg("Failed to load batch")
		writeError(w, http.StatusInternalServerError, "failed to load batch")
		return
	}
	if b == nil {
		writeError(w, http.StatusNotFound, "batch not found")
		return
	}

	predictions, err := h.batches.GetByBatch(r.Context(), batchID)
	if err != nil {
		h.log.Error().Err(err).Str("batch_id", batchID).Msg("Failed to load batch predictions")
		writeError(w, http.StatusInternalServerError, "failed to load batch predictions")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"batch":       b,
		"predictions": predictions,
	})
}

// HandleMatchPrediction predicts a single match on demand. With a model_id
// query parameter it runs the trained classifier; without one it falls back
// to the heuristic predictor.
// GET /api/matches/{matchID}/prediction?model_id=xyz
func (h *AnalysisHandlers) HandleMatchPrediction(w http.ResponseWriter, r *http.Request) {
	matchID := chi.URLParam(r, "matchID")
	modelID := r.URL.Query().Get("model_id")

	if modelID != "" {
		prediction, err := h.inference.Predict(r.Context(), matchID, modelID)
		if err != nil {
			h.respondPredictionError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, prediction)
		return
	}

	match, err := h.store.GetMatch(r.Context(), matchID)
	if err != nil {
		h.log.Error().Err(err).Str("match_id", matchID).Msg("Failed to load match")
		writeError(w, http.StatusInternalServerError, "failed to load match")
		return
	}
	if match == nil {
		writeError(w, http.StatusNotFound, "match not found")
		return
	}

	comprehensive, err := h.heuristic.Predict(r.Context(), match.HomeTeamID, match.AwayTeamID)
	if err != nil {
		h.log.Error().Err(err).Str("match_id", matchID).Msg("Heuristic prediction failed")
		writeError(w, http.StatusInternalServerError, "prediction failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"match_id":   matchID,
		"prediction": comprehensive,
	})
}

// teamAnalysisResponse is the payload for the two-team analysis endpoint.
type teamAnalysisResponse struct {
	HomeTeamID    string                      `json:"home_team_id"`
	AwayTeamID    string                      `json:"away_team_id"`
	HomeForm      float64                     `json:"home_form"`
	AwayForm      float64                     `json:"away_form"`
	HeadToHead    *features.H2HStats          `json:"head_to_head"`
	HomeXG        float64                     `json:"home_expected_goals"`
	AwayXG        float64                     `json:"away_expected_goals"`
	BTTS          float64                     `json:"btts_probability"`
	Probabilities *heuristic.WinProbabilities `json:"win_probabilities"`
}

// HandleTeamAnalysis summarizes two teams ahead of a meeting: recent form,
// head-to-head record, venue expected goals, BTTS, and the rating-based win
// probabilities.
// GET /api/analysis?home=teamA&away=teamB
func (h *AnalysisHandlers) HandleTeamAnalysis(w http.ResponseWriter, r *http.Request) {
	homeID := r.URL.Query().Get("home")
	awayID := r.URL.Query().Get("away")
	if homeID == "" || awayID == "" {
		writeError(w, http.StatusBadRequest, "home and away team IDs are required")
		return
	}

	ctx := r.Context()

	homeForm, err := h.engine.FormIndex(ctx, homeID, time.Time{}, features.FormWindow)
	if err != nil {
		h.respondAnalysisError(w, err)
		return
	}
	awayForm, err := h.engine.FormIndex(ctx, awayID, time.Time{}, features.FormWindow)
	if err != nil {
		h.respondAnalysisError(w, err)
		return
	}
	h2h, err := h.engine.HeadToHead(ctx, homeID, awayID, features.H2HLimit)
	if err != nil {
		h.respondAnalysisError(w, err)
		return
	}
	homeXG, err := h.engine.ExpectedGoals(ctx, homeID, true, features.VenueXGLimit)
	if err != nil {
		h.respondAnalysisError(w, err)
		return
	}
	awayXG, err := h.engine.ExpectedGoals(ctx, awayID, false, features.VenueXGLimit)
	if err != nil {
		h.respondAnalysisError(w, err)
		return
	}
	btts, err := h.engine.BTTSProbability(ctx, homeID, awayID)
	if err != nil {
		h.respondAnalysisError(w, err)
		return
	}
	probs, err := h.heuristic.RatingWinProbabilities(ctx, homeID, awayID)
	if err != nil {
		h.respondAnalysisError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, teamAnalysisResponse{
		HomeTeamID:    homeID,
		AwayTeamID:    awayID,
		HomeForm:      homeForm,
		AwayForm:      awayForm,
		HeadToHead:    h2h,
		HomeXG:        homeXG,
		AwayXG:        awayXG,
		BTTS:          btts,
		Probabilities: probs,
	})
}

func (h *AnalysisHandlers) respondPredictionError(w http.ResponseWriter, err error) {
	var notFound *domain.ModelNotFoundError
	if errors.As(err, &notFound) || strings.Contains(err.Error(), "not found") {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	h.log.Error().Err(err).Msg("Prediction failed")
	writeError(w, http.StatusInternalServerError, err.Error())
}

func (h *AnalysisHandlers) respondAnalysisError(w http.ResponseWriter, err error) {
	h.log.Error().Err(err).Msg("Team analysis failed")
	writeError(w, http.StatusInternalServerError, "analysis failed")
}
