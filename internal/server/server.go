// Package server provides the HTTP server and routing for the prediction
// engine.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/skarlatos/scoreline/internal/config"
	"github.com/skarlatos/scoreline/internal/database"
	"github.com/skarlatos/scoreline/internal/domain"
	"github.com/skarlatos/scoreline/internal/modules/features"
	"github.com/skarlatos/scoreline/internal/modules/heuristic"
	"github.com/skarlatos/scoreline/internal/modules/inference"
	"github.com/skarlatos/scoreline/internal/reliability"
	"github.com/skarlatos/scoreline/internal/work"
)

// Config holds server configuration and the wired services the handlers use.
type Config struct {
	Log       zerolog.Logger
	HistoryDB *database.DB
	CacheDB   *database.DB
	Config    *config.Config
	Port      int
	DevMode   bool

	Store       domain.MatchHistoryStore
	Models      domain.ModelStore
	Batches     BatchReader
	Engine      *features.Engine
	Heuristic   *heuristic.Predictor
	Inference   *inference.Service
	WorkManager *work.Manager
	JobHistory  *work.JobHistory
	Backup      *reliability.BackupService // nil when backups are not configured
}

// Server represents the HTTP server.
type Server struct {
	router *chi.Mux
	server *http.Server
	log    zerolog.Logger

	historyDB *database.DB
	cacheDB   *database.DB
	cfg       *config.Config

	jobHandlers      *JobHandlers
	analysisHandlers *AnalysisHandlers
	systemHandlers   *SystemHandlers
	backupHandlers   *BackupHandlers
	jobStream        *JobStreamHandler
}

// New creates a new HTTP server.
func New(cfg Config) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		log:       cfg.Log.With().Str("component", "server").Logger(),
		historyDB: cfg.HistoryDB,
		cacheDB:   cfg.CacheDB,
		cfg:       cfg.Config,
	}

	s.jobHandlers = NewJobHandlers(cfg.WorkManager, cfg.JobHistory, cfg.Log)
	s.analysisHandlers = NewAnalysisHandlers(cfg.Store, cfg.Models, cfg.Batches, cfg.Engine, cfg.Heuristic, cfg.Inference, cfg.Log)
	s.systemHandlers = NewSystemHandlers(cfg.HistoryDB, cfg.CacheDB, cfg.Config.DataDir, cfg.Log)
	s.jobStream = NewJobStreamHandler(cfg.WorkManager, cfg.Log)
	if cfg.Backup != nil {
		s.backupHandlers = NewBackupHandlers(cfg.Backup, cfg.WorkManager, cfg.Log)
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		// The websocket stream holds its connection open, so it skips the
		// request timeout the rest of the API uses.
		r.Get("/jobs/ws", s.jobStream.HandleJobStream)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))

			r.Route("/models/{modelID}", func(r chi.Router) {
				r.Get("/", s.analysisHandlers.HandleGetModel)
				r.Post("/train", s.jobHandlers.HandleTrainModel)
			})

			r.Route("/batches/{batchID}", func(r chi.Router) {
				r.Get("/", s.analysisHandlers.HandleGetBatch)
				r.Post("/generate", s.jobHandlers.HandleGenerateBatch)
			})
			r.Post("/evaluate", s.jobHandlers.HandleEvaluate)

			r.Route("/jobs", func(r chi.Router) {
				r.Get("/", s.jobHandlers.HandleListJobs)
				r.Get("/history", s.jobHandlers.HandleJobHistory)
				r.Get("/{jobID}", s.jobHandlers.HandleGetJob)
				r.Post("/{jobID}/cancel", s.jobHandlers.HandleCancelJob)
			})

			r.Get("/matches/{matchID}/prediction", s.analysisHandlers.HandleMatchPrediction)
			r.Get("/analysis", s.analysisHandlers.HandleTeamAnalysis)

			r.Get("/system/health", s.systemHandlers.HandleSystemHealth)

			if s.backupHandlers != nil {
				r.Route("/backups", func(r chi.Router) {
					r.Get("/", s.backupHandlers.HandleListBackups)
					r.Post("/", s.backupHandlers.HandleTriggerBackup)
				})
			}
		})
	})
}

// handleHealth is the liveness probe.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
