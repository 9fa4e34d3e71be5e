package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/skarlatos/scoreline/internal/work"
)

// JobHandlers exposes the background job API: submitting training, batch
// generation and evaluation, and inspecting job state.
type JobHandlers struct {
	manager *work.Manager
	history *work.JobHistory
	log     zerolog.Logger
}

// NewJobHandlers creates job API handlers.
func NewJobHandlers(manager *work.Manager, history *work.JobHistory, log zerolog.Logger) *JobHandlers {
	return &JobHandlers{
		manager: manager,
		history: history,
		log:     log.With().Str("component", "job_handlers").Logger(),
	}
}

// HandleTrainModel submits a training job for the model in the URL.
// POST /api/models/{modelID}/train
func (h *JobHandlers) HandleTrainModel(w http.ResponseWriter, r *http.Request) {
	modelID := chi.URLParam(r, "modelID")
	if modelID == "" {
		writeError(w, http.StatusBadRequest, "model ID is required")
		return
	}

	payload, ok := h.readPayload(w, r, &work.TrainPayload{})
	if !ok {
		return
	}

	h.submit(w, work.JobTrainModel, modelID, payload)
}

// HandleGenerateBatch submits a batch generation job.
// POST /api/batches/{batchID}/generate
func (h *JobHandlers) HandleGenerateBatch(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batchID")
	if batchID == "" {
		writeError(w, http.StatusBadRequest, "batch ID is required")
		return
	}

	payload, ok := h.readPayload(w, r, &work.GeneratePayload{})
	if !ok {
		return
	}

	h.submit(w, work.JobGenerateBatch, batchID, payload)
}

// HandleEvaluate submits an evaluation job over pending predictions.
// POST /api/evaluate
func (h *JobHandlers) HandleEvaluate(w http.ResponseWriter, r *http.Request) {
	payload, ok := h.readPayload(w, r, &work.EvaluatePayload{})
	if !ok {
		return
	}

	h.submit(w, work.JobEvaluate, "", payload)
}

// HandleGetJob returns a single job's state.
// GET /api/jobs/{jobID}
func (h *JobHandlers) HandleGetJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	job := h.manager.GetJob(jobID)
	if job == nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// HandleListJobs returns all live jobs, newest first.
// GET /api/jobs
func (h *JobHandlers) HandleListJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"jobs": h.manager.ListJobs(),
	})
}

// HandleJobHistory returns recently recorded jobs from the cache database.
// GET /api/jobs/history?limit=50
func (h *JobHandlers) HandleJobHistory(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	jobs, err := h.history.RecentJobs(r.Context(), limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list job history")
		writeError(w, http.StatusInternalServerError, "failed to list job history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

// HandleCancelJob cancels a running job.
// POST /api/jobs/{jobID}/cancel
func (h *JobHandlers) HandleCancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	if !h.manager.Cancel(jobID) {
		writeError(w, http.StatusNotFound, "no running job with that ID")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "success",
		"job_id": jobID,
	})
}

// readPayload reads the request body and validates it against the expected
// payload shape. An empty body is valid. The raw bytes are returned so the
// job carries exactly what the client sent.
func (h *JobHandlers) readPayload(w http.ResponseWriter, r *http.Request, shape any) ([]byte, bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return nil, false
	}
	if len(body) == 0 {
		return nil, true
	}
	if err := json.Unmarshal(body, shape); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return nil, false
	}
	return body, true
}

func (h *JobHandlers) submit(w http.ResponseWriter, typeID, subject string, payload []byte) {
	job, err := h.manager.Submit(typeID, subject, payload)
	if err != nil {
		if strings.Contains(err.Error(), "already in flight") {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		h.log.Error().Err(err).Str("type", typeID).Msg("Failed to submit job")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}
