package storage

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"regexp"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"

	"adpulse/config"
	"adpulse/core"
)

var validDatabaseNameRegex = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// ClickHouse mirrors published prediction/alert/recommendation tables into a
// dashboard-facing warehouse. The sink is optional: the published CSV tree
// stays the source of truth, and a failed mirror never fails the run.
type ClickHouse struct {
	Conn   driver.Conn
	Config *config.Config
	Logger *zap.SugaredLogger
}

// NewClickHouse connects and prepares the mirror tables.
func NewClickHouse(cfg *config.Config, logger *zap.SugaredLogger) (*ClickHouse, error) {
	options := &clickhouse.Options{
		Addr: []string{cfg.ClickHouse.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.ClickHouse.Database,
			Username: cfg.ClickHouse.Username,
			Password: cfg.ClickHouse.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout: 10 * time.Second,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
		MaxOpenConns:     cfg.ClickHouse.MaxPoolSize,
		MaxIdleConns:     cfg.ClickHouse.MaxPoolSize / 2,
		ConnMaxLifetime:  1 * time.Hour,
		ConnOpenStrategy: clickhouse.ConnOpenInOrder,
		DialContext: func(ctx context.Context, addr string) (net.Conn, error) {
			var d net.Dialer
			d.Timeout = 10 * time.Second
			d.KeepAlive = 30 * time.Second
			return d.DialContext(ctx, "tcp", addr)
		},
	}
	if cfg.ClickHouse.TLS {
		options.TLS = &tls.Config{MinVersion: tls.VersionTLS13}
	}

	conn, err := clickhouse.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	if err := ensureDatabase(ctx, conn, cfg.ClickHouse.Database); err != nil {
		return nil, err
	}

	ch := &ClickHouse{Conn: conn, Config: cfg, Logger: logger}
	if err := ch.createTables(ctx); err != nil {
		return nil, err
	}

	logger.Infow("connected to ClickHouse", "addr", cfg.ClickHouse.Addr, "database", cfg.ClickHouse.Database)
	return ch, nil
}

func ensureDatabase(ctx context.Context, conn driver.Conn, database string) error {
	if database == "" || !validDatabaseNameRegex.MatchString(database) {
		return fmt.Errorf("invalid ClickHouse database name %q", database)
	}
	query := fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s`", database)
	if err := conn.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	return nil
}

func (ch *ClickHouse) createTables(ctx context.Context) error {
	tables := []string{
		`CREATE TABLE IF NOT EXISTS predictions (
			run_id String,
			client_id LowCardinality(String),
			entity_id String,
			as_of Date,
			metric LowCardinality(String),
			model_version LowCardinality(String),
			predicted_value Float64,
			confidence Float64
		) ENGINE = ReplacingMergeTree
		ORDER BY (client_id, as_of, entity_id, metric)`,

		`CREATE TABLE IF NOT EXISTS alerts (
			run_id String,
			client_id LowCardinality(String),
			entity_id String,
			as_of Date,
			rule_id LowCardinality(String),
			severity LowCardinality(String),
			metric LowCardinality(String),
			ratio Float64,
			predicted Float64,
			baseline Float64
		) ENGINE = ReplacingMergeTree
		ORDER BY (client_id, as_of, entity_id, rule_id)`,

		`CREATE TABLE IF NOT EXISTS recommendations (
			run_id String,
			client_id LowCardinality(String),
			entity_id String,
			as_of Date,
			priority_rank UInt32,
			action String,
			rationale String,
			rule_id LowCardinality(String),
			severity LowCardinality(String)
		) ENGINE = ReplacingMergeTree
		ORDER BY (client_id, as_of, entity_id, priority_rank)`,
	}
	for _, ddl := range tables {
		if err := ch.Conn.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("failed to create ClickHouse table: %w", err)
		}
	}
	return nil
}

// MirrorRun pushes one published run's tables. ReplacingMergeTree keyed on
// the canonical slot makes re-publishing the same slot idempotent.
func (ch *ClickHouse) MirrorRun(ctx context.Context, runID, clientID string,
	predictions []core.Prediction, alerts []core.Alert, recs []core.Recommendation) error {

	batch, err := ch.Conn.PrepareBatch(ctx, "INSERT INTO predictions")
	if err != nil {
		return fmt.Errorf("failed to prepare predictions batch: %w", err)
	}
	for i := range predictions {
		p := &predictions[i]
		if err := batch.Append(runID, clientID, p.EntityID, p.AsOf, p.Metric,
			p.ModelVersion, p.Value, p.Confidence); err != nil {
			return fmt.Errorf("failed to append prediction: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send predictions batch: %w", err)
	}

	batch, err = ch.Conn.PrepareBatch(ctx, "INSERT INTO alerts")
	if err != nil {
		return fmt.Errorf("failed to prepare alerts batch: %w", err)
	}
	for i := range alerts {
		a := &alerts[i]
		if err := batch.Append(runID, clientID, a.EntityID, a.AsOf, a.RuleID,
			a.Severity, a.Metric, a.Ratio, a.Predicted, a.Baseline); err != nil {
			return fmt.Errorf("failed to append alert: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send alerts batch: %w", err)
	}

	batch, err = ch.Conn.PrepareBatch(ctx, "INSERT INTO recommendations")
	if err != nil {
		return fmt.Errorf("failed to prepare recommendations batch: %w", err)
	}
	for i := range recs {
		r := &recs[i]
		if err := batch.Append(runID, clientID, r.EntityID, r.AsOf, uint32(r.Priority),
			r.Action, r.Rationale, r.RuleID, r.Severity); err != nil {
			return fmt.Errorf("failed to append recommendation: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send recommendations batch: %w", err)
	}

	ch.Logger.Infow("mirrored run to ClickHouse",
		"run_id", runID, "predictions", len(predictions),
		"alerts", len(alerts), "recommendations", len(recs))
	return nil
}

// Close closes the connection.
func (ch *ClickHouse) Close() error {
	return ch.Conn.Close()
}
