package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skarlatos/scoreline/internal/work"
)

func newJobTestRouter(t *testing.T, release chan struct{}) (*chi.Mux, *work.Manager) {
	t.Helper()

	registry := work.NewRegistry()
	registry.Register(&work.JobType{
		ID:        work.JobTrainModel,
		Exclusive: true,
		Execute: func(ctx context.Context, subject string, payload []byte) (any, error) {
			if release != nil {
				<-release
			}
			return "trained", nil
		},
	})
	registry.Register(&work.JobType{
		ID: work.JobEvaluate,
		Execute: func(ctx context.Context, subject string, payload []byte) (any, error) {
			return "evaluated", nil
		},
	})

	manager := work.NewManager(registry, nil, zerolog.Nop())
	go manager.Run()
	t.Cleanup(manager.Stop)

	handlers := NewJobHandlers(manager, nil, zerolog.Nop())

	router := chi.NewRouter()
	router.Post("/api/models/{modelID}/train", handlers.HandleTrainModel)
	router.Post("/api/evaluate", handlers.HandleEvaluate)
	router.Get("/api/jobs", handlers.HandleListJobs)
	router.Get("/api/jobs/{jobID}", handlers.HandleGetJob)
	router.Post("/api/jobs/{jobID}/cancel", handlers.HandleCancelJob)
	return router, manager
}

func decodeJob(t *testing.T, rec *httptest.ResponseRecorder) work.Job {
	t.Helper()
	var job work.Job
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&job))
	return job
}

func TestHandleTrainModelSubmitsJob(t *testing.T) {
	router, _ := newJobTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/models/m1/train",
		strings.NewReader(`{"algorithm":"random_forest"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	job := decodeJob(t, rec)
	assert.Equal(t, work.JobTrainModel, job.Type)
	assert.Equal(t, "m1", job.Subject)
	assert.Equal(t, work.StatusPending, job.Status)
}

func TestHandleTrainModelInvalidPayload(t *testing.T) {
	router, _ := newJobTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/models/m1/train",
		strings.NewReader(`{not json`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleTrainModelConflictWhileInFlight(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	router, _ := newJobTestRouter(t, release)

	first := httptest.NewRecorder()
	router.ServeHTTP(first, httptest.NewRequest(http.MethodPost, "/api/models/m1/train", nil))
	require.Equal(t, http.StatusAccepted, first.Code)

	second := httptest.NewRecorder()
	router.ServeHTTP(second, httptest.NewRequest(http.MethodPost, "/api/models/m1/train", nil))
	assert.Equal(t, http.StatusConflict, second.Code)

	// A different model is not blocked.
	third := httptest.NewRecorder()
	router.ServeHTTP(third, httptest.NewRequest(http.MethodPost, "/api/models/m2/train", nil))
	assert.Equal(t, http.StatusAccepted, third.Code)
}

func TestHandleEvaluateSubmitsJob(t *testing.T) {
	router, manager := newJobTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/evaluate",
		strings.NewReader(`{"batch_id":"b1"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	job := decodeJob(t, rec)

	require.Eventually(t, func() bool {
		j := manager.GetJob(job.ID)
		return j != nil && j.Terminal()
	}, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, work.StatusCompleted, manager.GetJob(job.ID).Status)
}

func TestHandleGetJobNotFound(t *testing.T) {
	router, _ := newJobTestRouter(t, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/jobs/ghost", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleGetJobReturnsState(t *testing.T) {
	router, manager := newJobTestRouter(t, nil)

	submitted, err := manager.Submit(work.JobEvaluate, "", nil)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/jobs/"+submitted.ID, nil))

	require.Equal(t, http.StatusOK, rec.Code)
	job := decodeJob(t, rec)
	assert.Equal(t, submitted.ID, job.ID)
}

func TestHandleListJobs(t *testing.T) {
	router, manager := newJobTestRouter(t, nil)

	_, err := manager.Submit(work.JobEvaluate, "", nil)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/jobs", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var response struct {
		Jobs []work.Job `json:"jobs"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
	assert.Len(t, response.Jobs, 1)
}

func TestHandleCancelJobNotRunning(t *testing.T) {
	router, _ := newJobTestRouter(t, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/jobs/ghost/cancel", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
