package bootstrap

import (
	"fmt"
	"os"
	"time"

	"adpulse/config"
	"adpulse/model"
	"adpulse/storage"

	"go.uber.org/zap"
)

// StorageComponents holds all storage-related components.
type StorageComponents struct {
	SQLite     *storage.SQLite
	Artifacts  *storage.ArtifactStore
	Registry   *model.Registry
	ModelCache *model.Cache
	ClickHouse *storage.ClickHouse // nil unless the dashboard sink is enabled
}

// InitStorage initializes the run log, artifact store and model registry.
// The ClickHouse sink is optional: published artifacts always land on the
// filesystem regardless.
func InitStorage(cfg *config.Config, sugar *zap.SugaredLogger) (*StorageComponents, error) {
	sqlite, err := InitSQLite(cfg.DataPaths.SQLitePath, sugar)
	if err != nil {
		return nil, err
	}

	artifacts, err := storage.NewArtifactStore(cfg.DataPaths.StagingDir, cfg.DataPaths.PublishedDir, sugar)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize artifact store: %w", err)
	}

	registry, err := model.NewRegistry(cfg.DataPaths.ModelsDir, sugar)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize model registry: %w", err)
	}
	cache, err := model.NewCache(registry, cfg.Models.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize model cache: %w", err)
	}

	components := &StorageComponents{
		SQLite:     sqlite,
		Artifacts:  artifacts,
		Registry:   registry,
		ModelCache: cache,
	}

	if cfg.ClickHouse.Enabled {
		ch, err := InitClickHouse(cfg, sugar)
		if err != nil {
			return nil, err
		}
		components.ClickHouse = ch
	}

	return components, nil
}

// InitClickHouse initializes the ClickHouse connection with retry logic.
func InitClickHouse(cfg *config.Config, sugar *zap.SugaredLogger) (*storage.ClickHouse, error) {
	const maxRetries = 3
	retryDelays := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}

	var ch *storage.ClickHouse
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			sugar.Infow("Retrying ClickHouse connection",
				"attempt", attempt,
				"max_retries", maxRetries,
				"delay", retryDelays[attempt-1])
			time.Sleep(retryDelays[attempt-1])
		}

		ch, lastErr = storage.NewClickHouse(cfg, sugar)
		if lastErr == nil {
			break
		}

		sugar.Warnw("ClickHouse connection attempt failed",
			"attempt", attempt+1,
			"error", lastErr)
	}

	if lastErr != nil {
		errMsg := ClassifyConnectionError(lastErr, cfg.ClickHouse.Addr)
		fmt.Fprintf(os.Stderr, "\n========================================\n")
		fmt.Fprintf(os.Stderr, "FATAL: ClickHouse Connection Failed\n")
		fmt.Fprintf(os.Stderr, "========================================\n")
		fmt.Fprintf(os.Stderr, "%s\n", errMsg)
		fmt.Fprintf(os.Stderr, "========================================\n\n")
		return nil, fmt.Errorf("failed to connect to ClickHouse after %d attempts: %w", maxRetries+1, lastErr)
	}

	sugar.Info("Connected to ClickHouse successfully")
	return ch, nil
}

// InitSQLite initializes the run-log database.
func InitSQLite(dbPath string, sugar *zap.SugaredLogger) (*storage.SQLite, error) {
	sqlite, err := storage.NewSQLite(dbPath, sugar)
	if err != nil {
		errMsg := ClassifySQLiteError(err, dbPath)
		fmt.Fprintf(os.Stderr, "\n========================================\n")
		fmt.Fprintf(os.Stderr, "FATAL: SQLite Initialization Failed\n")
		fmt.Fprintf(os.Stderr, "========================================\n")
		fmt.Fprintf(os.Stderr, "%s\n", errMsg)
		fmt.Fprintf(os.Stderr, "========================================\n\n")
		return nil, fmt.Errorf("failed to initialize SQLite: %w", err)
	}

	sugar.Info("SQLite run log initialized successfully")
	return sqlite, nil
}
