// Package storage persists run metadata (SQLite), staged and published
// artifacts (filesystem), and optionally mirrors published tables to
// ClickHouse for dashboards.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// SQLite holds the run-log database connection.
type SQLite struct {
	DB     *sql.DB
	Path   string
	Logger *zap.SugaredLogger
}

// configureConnection enables WAL mode and a busy timeout. Connection string
// parameters are not reliable across drivers, so pragmas run explicitly.
func configureConnection(db *sql.DB, dbPath string) error {
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		return fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	// In-memory databases report "memory", not "wal".
	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		return fmt.Errorf("failed to query journal mode: %w", err)
	}
	if dbPath != ":memory:" && journalMode != "wal" {
		return fmt.Errorf("WAL mode not enabled (journal_mode=%s)", journalMode)
	}
	return nil
}

func validateDatabasePath(dbPath string) error {
	if dbPath == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if dbPath == ":memory:" {
		return nil
	}
	if strings.Contains(dbPath, "..") {
		return fmt.Errorf("database path must not contain '..'")
	}
	return nil
}

// NewSQLite opens (creating if needed) the run-log database.
func NewSQLite(dbPath string, logger *zap.SugaredLogger) (*SQLite, error) {
	if err := validateDatabasePath(dbPath); err != nil {
		return nil, fmt.Errorf("invalid database path: %w", err)
	}

	actualPath := dbPath
	if dbPath == ":memory:" {
		actualPath = "file::memory:?cache=shared"
	} else {
		dir := filepath.Dir(dbPath)
		if dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", actualPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	// WAL allows many readers but exactly one writer; the run log is
	// low-volume, so a single connection keeps writes serialized.
	db.SetMaxOpenConns(1)

	if err := configureConnection(db, dbPath); err != nil {
		db.Close()
		return nil, err
	}

	s := &SQLite{DB: db, Path: dbPath, Logger: logger}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Infow("opened run-log database", "path", dbPath)
	return s, nil
}

// createSchema creates the append-only run log. Every state transition is a
// new row; the current state of a run is its highest seq row. Nothing here
// is ever updated or deleted.
func (s *SQLite) createSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS run_log (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		client_id TEXT NOT NULL,
		as_of TEXT NOT NULL,
		state TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		input_snapshot_id TEXT NOT NULL,
		row_counts TEXT NOT NULL,
		warn_count INTEGER NOT NULL DEFAULT 0,
		quarantined_rows INTEGER NOT NULL DEFAULT 0,
		incomplete_rows INTEGER NOT NULL DEFAULT 0,
		prediction_gaps TEXT,
		model_versions TEXT,
		failed_stage TEXT,
		diagnostic TEXT,
		recorded_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
	);
	CREATE INDEX IF NOT EXISTS idx_run_log_run_id ON run_log(run_id);
	CREATE INDEX IF NOT EXISTS idx_run_log_client ON run_log(client_id, as_of);
	`
	if _, err := s.DB.Exec(schema); err != nil {
		return fmt.Errorf("failed to create run_log schema: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.DB.Close()
}
