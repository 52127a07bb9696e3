package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// DataPaths holds the data directory layout. Every path can be overridden via
// environment variables; unset paths derive from DataDir.
type DataPaths struct {
	// DataDir is the base data directory (ADPULSE_DATA_DIR, default: ./data)
	DataDir string `mapstructure:"data_dir"`
	// SQLitePath is the run-metadata database file (ADPULSE_SQLITE_PATH, default: ${DataDir}/adpulse.db)
	SQLitePath string `mapstructure:"sqlite_path"`
	// ModelsDir holds registered model artifacts (ADPULSE_MODELS_DIR, default: ${DataDir}/models)
	ModelsDir string `mapstructure:"models_dir"`
	// StagingDir holds per-run private staging areas (ADPULSE_STAGING_DIR, default: ${DataDir}/staging)
	StagingDir string `mapstructure:"staging_dir"`
	// PublishedDir is the canonical artifact location the dashboard reads (ADPULSE_PUBLISHED_DIR, default: ${DataDir}/published)
	PublishedDir string `mapstructure:"published_dir"`
	// ClientsDir holds per-client declarative configuration (ADPULSE_CLIENTS_DIR, default: ./clients)
	ClientsDir string `mapstructure:"clients_dir"`
}

// Config holds all configuration for the adpulse pipeline.
type Config struct {
	DataPaths DataPaths `mapstructure:"data_paths"`

	Pipeline struct {
		// WorkerCount bounds per-entity parallelism inside a stage.
		WorkerCount int `mapstructure:"worker_count"`
		// QueueSize is the worker pool task queue buffer.
		QueueSize int `mapstructure:"queue_size"`
		// MinHistoryDays is the default minimum history a campaign needs
		// before its feature rows count as complete.
		MinHistoryDays int `mapstructure:"min_history_days"`
		// DedupCacheSize is the LRU capacity of the ingest dedup cache.
		DedupCacheSize int `mapstructure:"dedup_cache_size"`
		// StageTimeout bounds a single stage's wall time.
		StageTimeout time.Duration `mapstructure:"stage_timeout"`
	} `mapstructure:"pipeline"`

	ClickHouse struct {
		// Enabled turns on the dashboard sink; published artifacts are always
		// written to files regardless.
		Enabled     bool   `mapstructure:"enabled"`
		Addr        string `mapstructure:"addr"`
		Database    string `mapstructure:"database"`
		Username    string `mapstructure:"username"`
		Password    string `mapstructure:"password"`
		TLS         bool   `mapstructure:"tls"`
		MaxPoolSize int    `mapstructure:"max_pool_size"`
		BatchSize   int    `mapstructure:"batch_size"`
	} `mapstructure:"clickhouse"`

	Notify struct {
		Enabled     bool   `mapstructure:"enabled"`
		WebhookURL  string `mapstructure:"webhook_url"`
		Method      string `mapstructure:"method"`
		MinSeverity string `mapstructure:"min_severity"`
		Timeout     int    `mapstructure:"timeout"` // seconds
	} `mapstructure:"notify"`

	Models struct {
		// CacheSize is the LRU capacity for loaded artifacts.
		CacheSize int `mapstructure:"cache_size"`
	} `mapstructure:"models"`

	Secrets struct {
		Provider string `mapstructure:"provider"` // env, vault, aws
		Vault    struct {
			Address string `mapstructure:"address"`
			Token   string `mapstructure:"token"`
			Path    string `mapstructure:"path"`
		} `mapstructure:"vault"`
		AWS struct {
			Region    string `mapstructure:"region"`
			AccessKey string `mapstructure:"access_key"`
			SecretKey string `mapstructure:"secret_key"`
			SecretID  string `mapstructure:"secret_id"`
		} `mapstructure:"aws"`
	} `mapstructure:"secrets"`

	Log struct {
		Level string `mapstructure:"level"` // debug, info, warn, error
		JSON  bool   `mapstructure:"json"`
	} `mapstructure:"log"`
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("data_paths.data_dir", "./data")
	viper.SetDefault("data_paths.sqlite_path", "")   // Empty = derive from data_dir
	viper.SetDefault("data_paths.models_dir", "")    // Empty = derive from data_dir
	viper.SetDefault("data_paths.staging_dir", "")   // Empty = derive from data_dir
	viper.SetDefault("data_paths.published_dir", "") // Empty = derive from data_dir
	viper.SetDefault("data_paths.clients_dir", "./clients")

	viper.SetDefault("pipeline.worker_count", 4)
	viper.SetDefault("pipeline.queue_size", 256)
	viper.SetDefault("pipeline.min_history_days", 7)
	viper.SetDefault("pipeline.dedup_cache_size", 10000)
	viper.SetDefault("pipeline.stage_timeout", 10*time.Minute)

	// Use 127.0.0.1 instead of localhost to avoid IPv6 resolution issues on Windows
	viper.SetDefault("clickhouse.enabled", false)
	viper.SetDefault("clickhouse.addr", "127.0.0.1:9000")
	viper.SetDefault("clickhouse.database", "adpulse")
	viper.SetDefault("clickhouse.username", "default")
	viper.SetDefault("clickhouse.password", "")
	viper.SetDefault("clickhouse.tls", false)
	viper.SetDefault("clickhouse.max_pool_size", 10)
	viper.SetDefault("clickhouse.batch_size", 1000)

	viper.SetDefault("notify.enabled", false)
	viper.SetDefault("notify.method", "webhook")
	viper.SetDefault("notify.min_severity", "warning")
	viper.SetDefault("notify.timeout", 10)

	viper.SetDefault("models.cache_size", 32)

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.json", false)
}

// loadFromEnv sets up environment variable loading
func loadFromEnv() {
	viper.SetEnvPrefix("ADPULSE")
	viper.AutomaticEnv()

	// Explicit environment variable bindings for path settings
	_ = viper.BindEnv("data_paths.data_dir", "ADPULSE_DATA_DIR")
	_ = viper.BindEnv("data_paths.sqlite_path", "ADPULSE_SQLITE_PATH")
	_ = viper.BindEnv("data_paths.models_dir", "ADPULSE_MODELS_DIR")
	_ = viper.BindEnv("data_paths.staging_dir", "ADPULSE_STAGING_DIR")
	_ = viper.BindEnv("data_paths.published_dir", "ADPULSE_PUBLISHED_DIR")
	_ = viper.BindEnv("data_paths.clients_dir", "ADPULSE_CLIENTS_DIR")
}

// LoadConfig loads configuration from file and environment variables.
func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	setDefaults()
	loadFromEnv()

	if err := viper.ReadInConfig(); err != nil {
		// Config file not found, will use defaults and env vars
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	config.ResolveDataPaths()

	return &config, nil
}

// ResolveDataPaths resolves all data paths, deriving from DataDir if not
// explicitly set.
func (c *Config) ResolveDataPaths() {
	dataDir := c.DataPaths.DataDir
	if dataDir == "" {
		dataDir = "./data"
	}

	if c.DataPaths.SQLitePath == "" {
		c.DataPaths.SQLitePath = filepath.Join(dataDir, "adpulse.db")
	} else if !filepath.IsAbs(c.DataPaths.SQLitePath) {
		c.DataPaths.SQLitePath = filepath.Clean(c.DataPaths.SQLitePath)
	}

	if c.DataPaths.ModelsDir == "" {
		c.DataPaths.ModelsDir = filepath.Join(dataDir, "models")
	} else if !filepath.IsAbs(c.DataPaths.ModelsDir) {
		c.DataPaths.ModelsDir = filepath.Clean(c.DataPaths.ModelsDir)
	}

	if c.DataPaths.StagingDir == "" {
		c.DataPaths.StagingDir = filepath.Join(dataDir, "staging")
	} else if !filepath.IsAbs(c.DataPaths.StagingDir) {
		c.DataPaths.StagingDir = filepath.Clean(c.DataPaths.StagingDir)
	}

	if c.DataPaths.PublishedDir == "" {
		c.DataPaths.PublishedDir = filepath.Join(dataDir, "published")
	} else if !filepath.IsAbs(c.DataPaths.PublishedDir) {
		c.DataPaths.PublishedDir = filepath.Clean(c.DataPaths.PublishedDir)
	}

	if c.DataPaths.ClientsDir == "" {
		c.DataPaths.ClientsDir = "./clients"
	}

	c.DataPaths.DataDir = dataDir
}

// validateConfig validates the configuration for correctness.
func validateConfig(config *Config) error {
	if config.Pipeline.WorkerCount < 1 {
		return fmt.Errorf("pipeline.worker_count must be positive, got %d", config.Pipeline.WorkerCount)
	}
	if config.Pipeline.QueueSize < 1 {
		return fmt.Errorf("pipeline.queue_size must be positive, got %d", config.Pipeline.QueueSize)
	}
	if config.Pipeline.MinHistoryDays < 1 {
		return fmt.Errorf("pipeline.min_history_days must be positive, got %d", config.Pipeline.MinHistoryDays)
	}
	if config.Pipeline.DedupCacheSize < 1 {
		return fmt.Errorf("pipeline.dedup_cache_size must be positive, got %d", config.Pipeline.DedupCacheSize)
	}

	if config.ClickHouse.Enabled {
		if config.ClickHouse.Addr == "" {
			return fmt.Errorf("clickhouse.addr cannot be empty when the sink is enabled")
		}
		if config.ClickHouse.Database == "" {
			return fmt.Errorf("clickhouse.database cannot be empty when the sink is enabled")
		}
		if config.ClickHouse.BatchSize < 1 {
			return fmt.Errorf("clickhouse.batch_size must be positive, got %d", config.ClickHouse.BatchSize)
		}
	}

	if config.Notify.Enabled {
		// An empty webhook URL is allowed here; LoadSecrets fills it from the
		// configured secret provider.
		if config.Notify.Timeout < 1 || config.Notify.Timeout > 60 {
			return fmt.Errorf("notify.timeout must be between 1 and 60 seconds, got %d", config.Notify.Timeout)
		}
		switch config.Notify.MinSeverity {
		case "critical", "warning":
		default:
			return fmt.Errorf("notify.min_severity must be critical or warning, got %q", config.Notify.MinSeverity)
		}
	}

	if config.Models.CacheSize < 1 {
		return fmt.Errorf("models.cache_size must be positive, got %d", config.Models.CacheSize)
	}

	switch config.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug/info/warn/error, got %q", config.Log.Level)
	}

	return nil
}
