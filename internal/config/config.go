// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir          string // Base directory for the history database (always absolute)
	ModelDir         string // Directory for persisted model artifacts (always absolute)
	LogLevel         string
	Port             int
	DevMode          bool
	DefaultAlgorithm string // Algorithm used when a training request does not name one
	TrainSeed        int64  // Random seed for reproducible training runs
	BatchWorkers     int    // Concurrent prediction workers within a batch run
	Backup           *BackupConfig
}

// BackupConfig holds artifact cloud backup configuration.
// Backups are disabled unless all credential fields are set.
type BackupConfig struct {
	Endpoint      string
	Region        string
	AccessKeyID   string
	SecretKey     string
	Bucket        string
	RetentionDays int
}

// Enabled reports whether artifact backups are fully configured.
func (b *BackupConfig) Enabled() bool {
	return b != nil && b.AccessKeyID != "" && b.SecretKey != "" && b.Bucket != ""
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("SCORELINE_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	modelDir := getEnv("SCORELINE_MODEL_DIR", "")
	if modelDir == "" {
		modelDir = filepath.Join(absDataDir, "models")
	}
	absModelDir, err := filepath.Abs(modelDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve model directory path: %w", err)
	}
	if err := os.MkdirAll(absModelDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create model directory: %w", err)
	}

	cfg := &Config{
		DataDir:          absDataDir,
		ModelDir:         absModelDir,
		Port:             getEnvAsInt("GO_PORT", 8001),
		DevMode:          getEnvAsBool("DEV_MODE", false),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		DefaultAlgorithm: getEnv("DEFAULT_ALGORITHM", "random_forest"),
		TrainSeed:        int64(getEnvAsInt("TRAIN_SEED", 42)),
		BatchWorkers:     getEnvAsInt("BATCH_WORKERS", 4),
		Backup:           loadBackupConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.BatchWorkers < 1 {
		return fmt.Errorf("BATCH_WORKERS must be at least 1, got %d", c.BatchWorkers)
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// loadBackupConfig loads artifact backup configuration.
// All credential fields must be present for backups to be enabled.
func loadBackupConfig() *BackupConfig {
	return &BackupConfig{
		Endpoint:      getEnv("BACKUP_S3_ENDPOINT", ""),
		Region:        getEnv("BACKUP_S3_REGION", "auto"),
		AccessKeyID:   getEnv("BACKUP_S3_ACCESS_KEY_ID", ""),
		SecretKey:     getEnv("BACKUP_S3_SECRET_ACCESS_KEY", ""),
		Bucket:        getEnv("BACKUP_S3_BUCKET", ""),
		RetentionDays: getEnvAsInt("BACKUP_RETENTION_DAYS", 30),
	}
}
