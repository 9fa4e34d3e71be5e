// Package main is the entry point for the Scoreline prediction engine. It
// computes pre-match feature vectors from finished match history, trains and
// serves outcome classifiers, and orchestrates prediction batches and their
// evaluation.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/skarlatos/scoreline/internal/config"
	"github.com/skarlatos/scoreline/internal/database"
	"github.com/skarlatos/scoreline/internal/history"
	"github.com/skarlatos/scoreline/internal/modules/batch"
	"github.com/skarlatos/scoreline/internal/modules/features"
	"github.com/skarlatos/scoreline/internal/modules/heuristic"
	"github.com/skarlatos/scoreline/internal/modules/inference"
	"github.com/skarlatos/scoreline/internal/modules/training"
	"github.com/skarlatos/scoreline/internal/reliability"
	"github.com/skarlatos/scoreline/internal/scheduler"
	"github.com/skarlatos/scoreline/internal/server"
	"github.com/skarlatos/scoreline/internal/work"
	"github.com/skarlatos/scoreline/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().Msg("Starting Scoreline")

	// Databases: the match history store (durable) and the job history
	// cache (ephemeral).
	historyDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "history.db"),
		Profile: database.ProfileHistory,
		Name:    "history",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open history database")
	}
	defer historyDB.Close()

	cacheDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "cache.db"),
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open cache database")
	}
	defer cacheDB.Close()

	if err := historyDB.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate history database")
	}
	if err := cacheDB.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate cache database")
	}

	// Repositories and core services.
	store := history.NewStore(historyDB.Conn(), log)
	models := history.NewModelRepository(historyDB.Conn(), log)
	predictions := history.NewPredictionRepository(historyDB.Conn(), log)

	engine := features.NewEngine(store, log)
	predictor := heuristic.NewPredictor(store, engine, log)
	modelCache := inference.NewModelCache(cfg.ModelDir, log)
	defer modelCache.Close()
	inferenceService := inference.NewService(store, engine, modelCache, log)
	trainer := training.NewTrainer(store, models, engine, cfg.ModelDir, log)
	orchestrator := batch.NewOrchestrator(store, predictions, models, inferenceService, predictor, cfg.BatchWorkers, log)

	// Artifact backup is optional: it needs object storage credentials.
	var backupService *reliability.BackupService
	if cfg.Backup.Enabled() {
		s3Client, err := reliability.NewS3Client(context.Background(), cfg.Backup, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create S3 client")
		}
		backupService = reliability.NewBackupService(s3Client, cfg.ModelDir, log)
		log.Info().Str("bucket", cfg.Backup.Bucket).Msg("Artifact backup enabled")
	} else {
		log.Info().Msg("Artifact backup disabled (no credentials configured)")
	}

	// Work processor: background training, batch generation, evaluation.
	registry := work.NewRegistry()
	work.RegisterJobTypes(registry, work.JobDeps{
		Trainer:          trainer,
		Orchestrator:     orchestrator,
		Backup:           backupService,
		DefaultAlgorithm: cfg.DefaultAlgorithm,
		DefaultSeed:      cfg.TrainSeed,
		BackupRetention:  cfg.Backup.RetentionDays,
	})
	jobHistory := work.NewJobHistory(cacheDB.Conn())
	manager := work.NewManager(registry, jobHistory, log)
	go manager.Run()
	log.Info().Msg("Work processor started")

	// Cron: nightly evaluation sweep, weekly artifact backup.
	sched := scheduler.New(log)
	if err := sched.AddJob("30 2 * * *", scheduler.NewEvaluationSweepJob(manager, log)); err != nil {
		log.Fatal().Err(err).Msg("Failed to register evaluation sweep")
	}
	if backupService != nil {
		if err := sched.AddJob("@weekly", scheduler.NewArtifactBackupJob(manager, log)); err != nil {
			log.Fatal().Err(err).Msg("Failed to register artifact backup")
		}
	}
	sched.Start()

	srv := server.New(server.Config{
		Log:         log,
		HistoryDB:   historyDB,
		CacheDB:     cacheDB,
		Config:      cfg,
		Port:        cfg.Port,
		DevMode:     cfg.DevMode,
		Store:       store,
		Models:      models,
		Batches:     predictions,
		Engine:      engine,
		Heuristic:   predictor,
		Inference:   inferenceService,
		WorkManager: manager,
		JobHistory:  jobHistory,
		Backup:      backupService,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")

	sched.Stop()
	manager.Stop()
	log.Info().Msg("Work processor stopped")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
