package bootstrap

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"adpulse/config"
	"adpulse/core"
	"adpulse/detect"
	"adpulse/feature"
	"adpulse/model"
	"adpulse/notify"
	"adpulse/pipeline"
	"adpulse/recommend"

	"go.uber.org/zap"
)

// App represents the adpulse application with all its components.
type App struct {
	// Configuration
	Config *config.Config
	Logger *zap.Logger
	Sugar  *zap.SugaredLogger

	// Storage
	Storage *StorageComponents

	// Pipeline
	Pool         *core.WorkerPool
	Orchestrator *pipeline.Orchestrator

	// Sinks
	Notifier *notify.Notifier
}

// NewApp creates a new application instance and initializes all components.
func NewApp(ctx context.Context) (*App, error) {
	app := &App{}

	// Bootstrap logger so config loading has somewhere to complain; replaced
	// with the configured logger once the config is in hand.
	logger, sugar, err := InitLogger("info", false)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	app.Logger = logger
	app.Sugar = sugar

	cfg, err := InitConfig(sugar)
	if err != nil {
		return nil, err
	}
	app.Config = cfg

	if cfg.Log.Level != "info" || cfg.Log.JSON {
		logger, sugar, err = InitLogger(cfg.Log.Level, cfg.Log.JSON)
		if err != nil {
			return nil, err
		}
		app.Logger = logger
		app.Sugar = sugar
	}

	sugar.Info("Running pre-flight checks...")
	if err := EnsureDataDirectories(cfg, sugar); err != nil {
		return nil, fmt.Errorf("pre-flight check failed: %w", err)
	}

	if err := config.LoadSecrets(cfg); err != nil {
		return nil, fmt.Errorf("failed to load secrets: %w", err)
	}

	storageComponents, err := InitStorage(cfg, sugar)
	if err != nil {
		return nil, err
	}
	app.Storage = storageComponents

	pool := core.NewWorkerPool(ctx, cfg.Pipeline.WorkerCount, cfg.Pipeline.QueueSize, sugar)
	if err := pool.Start(); err != nil {
		return nil, fmt.Errorf("failed to start worker pool: %w", err)
	}
	app.Pool = pool

	sinks := pipeline.Sinks{ClickHouse: storageComponents.ClickHouse}
	if cfg.Notify.Enabled {
		app.Notifier = notify.NewNotifier(notify.Config{
			WebhookURL:  cfg.Notify.WebhookURL,
			Method:      cfg.Notify.Method,
			MinSeverity: cfg.Notify.MinSeverity,
			Timeout:     time.Duration(cfg.Notify.Timeout) * time.Second,
		}, sugar)
		sinks.Notifier = app.Notifier
		sugar.Infow("Alert notifications enabled",
			"method", cfg.Notify.Method, "min_severity", cfg.Notify.MinSeverity)
	}

	app.Orchestrator = pipeline.NewOrchestrator(
		cfg.Pipeline.DedupCacheSize,
		feature.NewBuilder(pool, sugar),
		model.NewScorer(storageComponents.ModelCache, sugar),
		detect.NewEngine(sugar),
		recommend.NewEngine(sugar),
		storageComponents.Artifacts,
		storageComponents.SQLite,
		sinks,
		sugar,
	)

	sugar.Info("adpulse initialized")
	return app, nil
}

// LoadClientAssets loads one client's declarative run inputs from the
// configured clients directory.
func (a *App) LoadClientAssets(clientID string) (*pipeline.ClientAssets, error) {
	cc, err := config.LoadClientConfig(a.Config.DataPaths.ClientsDir, clientID)
	if err != nil {
		return nil, err
	}
	if cc.MinHistoryDays == 0 {
		cc.MinHistoryDays = a.Config.Pipeline.MinHistoryDays
	}
	return pipeline.LoadClientAssets(cc)
}

// RunClient executes one refresh run for a client against the given export
// file. The stage timeout bounds the whole run.
func (a *App) RunClient(ctx context.Context, clientID, inputPath string, asOf time.Time) (*core.RunMetadata, error) {
	assets, err := a.LoadClientAssets(clientID)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(inputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open export %s: %w", inputPath, err)
	}
	defer f.Close()

	if a.Config.Pipeline.StageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.Config.Pipeline.StageTimeout)
		defer cancel()
	}

	return a.Orchestrator.Run(ctx, f, assets, asOf)
}

// WaitForShutdown blocks until a shutdown signal is received.
func (a *App) WaitForShutdown() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
}

// Shutdown gracefully shuts down all components.
func (a *App) Shutdown() {
	a.Sugar.Info("Shutting down...")

	if a.Pool != nil {
		a.Pool.Stop()
	}

	if a.Storage != nil {
		if a.Storage.ClickHouse != nil {
			if err := a.Storage.ClickHouse.Close(); err != nil {
				a.Sugar.Errorw("Failed to close ClickHouse connection", "error", err)
			}
		}
		if a.Storage.SQLite != nil {
			if err := a.Storage.SQLite.Close(); err != nil {
				a.Sugar.Errorw("Failed to close run log", "error", err)
			}
		}
	}

	a.Sugar.Info("Shutdown complete")
	a.Logger.Sync()
}
