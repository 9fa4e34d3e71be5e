package server

import (
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/skarlatos/scoreline/internal/database"
)

// SystemHandlers serves system monitoring endpoints.
type SystemHandlers struct {
	historyDB *database.DB
	cacheDB   *database.DB
	dataDir   string
	log       zerolog.Logger
}

// NewSystemHandlers creates system monitoring handlers.
func NewSystemHandlers(historyDB, cacheDB *database.DB, dataDir string, log zerolog.Logger) *SystemHandlers {
	return &SystemHandlers{
		historyDB: historyDB,
		cacheDB:   cacheDB,
		dataDir:   dataDir,
		log:       log.With().Str("component", "system_handlers").Logger(),
	}
}

type databaseHealth struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

type systemHealthResponse struct {
	Status     string           `json:"status"`
	CPUPercent float64          `json:"cpu_percent"`
	RAMPercent float64          `json:"ram_percent"`
	DataDirMB  float64          `json:"data_dir_mb"`
	Databases  []databaseHealth `json:"databases"`
	Timestamp  time.Time        `json:"timestamp"`
}

// HandleSystemHealth reports CPU/RAM usage, data directory size, and
// database health.
// GET /api/system/health
func (h *SystemHandlers) HandleSystemHealth(w http.ResponseWriter, r *http.Request) {
	cpuPct, ramPct := h.systemStats()

	databases := []databaseHealth{
		h.checkDatabase(r, h.historyDB),
		h.checkDatabase(r, h.cacheDB),
	}

	status := "ok"
	for _, db := range databases {
		if !db.Healthy {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, systemHealthResponse{
		Status:     status,
		CPUPercent: cpuPct,
		RAMPercent: ramPct,
		DataDirMB:  h.dirSizeMB(h.dataDir),
		Databases:  databases,
		Timestamp:  time.Now().UTC(),
	})
}

func (h *SystemHandlers) checkDatabase(r *http.Request, db *database.DB) databaseHealth {
	result := databaseHealth{Name: db.Name(), Healthy: true}
	if err := db.QuickCheck(r.Context()); err != nil {
		result.Healthy = false
		result.Error = err.Error()
	}
	return result
}

// systemStats returns CPU and RAM usage percentages. The 100ms CPU sampling
// interval keeps the endpoint fast enough for frequent polling.
func (h *SystemHandlers) systemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}
	return cpuAvg, memStat.UsedPercent
}

// dirSizeMB calculates total size of a directory in MB.
func (h *SystemHandlers) dirSizeMB(dirPath string) float64 {
	var totalSize int64

	err := filepath.Walk(dirPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Skip errors
		}
		if !info.IsDir() {
			totalSize += info.Size()
		}
		return nil
	})
	if err != nil {
		h.log.Warn().Err(err).Str("dir", dirPath).Msg("Failed to calculate directory size")
		return 0
	}

	return float64(totalSize) / 1024 / 1024
}
