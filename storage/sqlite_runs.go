package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"adpulse/core"
)

// RecordTransition appends the run's current state to the run log. Called by
// the orchestrator after every Advance/Fail/Cancel; the log is the durable
// audit trail of what every run did.
func (s *SQLite) RecordTransition(meta *core.RunMetadata) error {
	rowCounts, err := json.Marshal(meta.RowCounts)
	if err != nil {
		return fmt.Errorf("failed to marshal row counts: %w", err)
	}
	gaps, err := json.Marshal(meta.PredictionGaps)
	if err != nil {
		return fmt.Errorf("failed to marshal prediction gaps: %w", err)
	}
	versions, err := json.Marshal(meta.ModelVersions)
	if err != nil {
		return fmt.Errorf("failed to marshal model versions: %w", err)
	}

	var finishedAt interface{}
	if !meta.FinishedAt.IsZero() {
		finishedAt = meta.FinishedAt.UTC().Format(time.RFC3339Nano)
	}

	_, err = s.DB.Exec(`
		INSERT INTO run_log (
			run_id, client_id, as_of, state, started_at, finished_at,
			input_snapshot_id, row_counts, warn_count, quarantined_rows,
			incomplete_rows, prediction_gaps, model_versions, failed_stage, diagnostic
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		meta.RunID, meta.ClientID, meta.AsOf.UTC().Format("2006-01-02"),
		string(meta.State), meta.StartedAt.UTC().Format(time.RFC3339Nano), finishedAt,
		meta.InputSnapshotID, string(rowCounts), meta.WarnCount, meta.QuarantinedRows,
		meta.IncompleteRows, string(gaps), string(versions), meta.FailedStage, meta.Diagnostic,
	)
	if err != nil {
		return fmt.Errorf("failed to record run transition: %w", err)
	}
	return nil
}

// GetRun returns the latest recorded state of a run.
func (s *SQLite) GetRun(runID string) (*core.RunMetadata, error) {
	row := s.DB.QueryRow(`
		SELECT run_id, client_id, as_of, state, started_at, finished_at,
		       input_snapshot_id, row_counts, warn_count, quarantined_rows,
		       incomplete_rows, prediction_gaps, model_versions, failed_stage, diagnostic
		FROM run_log WHERE run_id = ? ORDER BY seq DESC LIMIT 1`, runID)

	meta, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s not found", runID)
	}
	return meta, err
}

// ListRuns returns the latest state of each of a client's most recent runs,
// newest first.
func (s *SQLite) ListRuns(clientID string, limit int) ([]*core.RunMetadata, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.DB.Query(`
		SELECT run_id, client_id, as_of, state, started_at, finished_at,
		       input_snapshot_id, row_counts, warn_count, quarantined_rows,
		       incomplete_rows, prediction_gaps, model_versions, failed_stage, diagnostic
		FROM run_log
		WHERE client_id = ? AND seq IN (SELECT MAX(seq) FROM run_log GROUP BY run_id)
		ORDER BY seq DESC LIMIT ?`, clientID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*core.RunMetadata
	for rows.Next() {
		meta, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, meta)
	}
	return runs, rows.Err()
}

// TransitionHistory returns every logged state of a run in order.
func (s *SQLite) TransitionHistory(runID string) ([]core.RunState, error) {
	rows, err := s.DB.Query(`SELECT state FROM run_log WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to read transition history: %w", err)
	}
	defer rows.Close()

	var states []core.RunState
	for rows.Next() {
		var state string
		if err := rows.Scan(&state); err != nil {
			return nil, err
		}
		states = append(states, core.RunState(state))
	}
	return states, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*core.RunMetadata, error) {
	var meta core.RunMetadata
	var state, asOf, startedAt string
	var finishedAt, failedStage, diagnostic sql.NullString
	var rowCounts, gaps, versions string

	err := row.Scan(
		&meta.RunID, &meta.ClientID, &asOf, &state, &startedAt, &finishedAt,
		&meta.InputSnapshotID, &rowCounts, &meta.WarnCount, &meta.QuarantinedRows,
		&meta.IncompleteRows, &gaps, &versions, &failedStage, &diagnostic,
	)
	if err != nil {
		return nil, err
	}

	meta.State = core.RunState(state)
	if meta.AsOf, err = time.Parse("2006-01-02", asOf); err != nil {
		return nil, fmt.Errorf("bad as_of in run log: %w", err)
	}
	if meta.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
		return nil, fmt.Errorf("bad started_at in run log: %w", err)
	}
	if finishedAt.Valid {
		if meta.FinishedAt, err = time.Parse(time.RFC3339Nano, finishedAt.String); err != nil {
			return nil, fmt.Errorf("bad finished_at in run log: %w", err)
		}
	}
	meta.FailedStage = failedStage.String
	meta.Diagnostic = diagnostic.String

	if err := json.Unmarshal([]byte(rowCounts), &meta.RowCounts); err != nil {
		return nil, fmt.Errorf("bad row_counts in run log: %w", err)
	}
	if gaps != "" {
		if err := json.Unmarshal([]byte(gaps), &meta.PredictionGaps); err != nil {
			return nil, fmt.Errorf("bad prediction_gaps in run log: %w", err)
		}
	}
	if versions != "" {
		if err := json.Unmarshal([]byte(versions), &meta.ModelVersions); err != nil {
			return nil, fmt.Errorf("bad model_versions in run log: %w", err)
		}
	}
	return &meta, nil
}
