package server

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/skarlatos/scoreline/internal/reliability"
	"github.com/skarlatos/scoreline/internal/work"
)

// BackupHandlers exposes artifact backup operations. Only wired when backup
// credentials are configured.
type BackupHandlers struct {
	backup  *reliability.BackupService
	manager *work.Manager
	log     zerolog.Logger
}

// NewBackupHandlers creates backup API handlers.
func NewBackupHandlers(backup *reliability.BackupService, manager *work.Manager, log zerolog.Logger) *BackupHandlers {
	return &BackupHandlers{
		backup:  backup,
		manager: manager,
		log:     log.With().Str("component", "backup_handlers").Logger(),
	}
}

// HandleListBackups lists remote artifact backups, newest first.
// GET /api/backups
func (h *BackupHandlers) HandleListBackups(w http.ResponseWriter, r *http.Request) {
	backups, err := h.backup.ListBackups(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list backups")
		writeError(w, http.StatusInternalServerError, "failed to list backups")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"backups": backups})
}

// HandleTriggerBackup submits a backup job.
// POST /api/backups
func (h *BackupHandlers) HandleTriggerBackup(w http.ResponseWriter, r *http.Request) {
	job, err := h.manager.Submit(work.JobBackupArtifacts, "", nil)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to submit backup job")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}
