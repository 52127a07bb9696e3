package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"adpulse/core"
)

func testDB(t *testing.T) *SQLite {
	t.Helper()
	db, err := NewSQLite(filepath.Join(t.TempDir(), "runs.db"), zap.NewNop().Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRunLogRoundTrip(t *testing.T) {
	db := testDB(t)

	meta := core.NewRunMetadata("acme", time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC))
	meta.InputSnapshotID = "abc123"
	require.NoError(t, db.RecordTransition(meta))

	require.NoError(t, meta.Advance(core.StateValidated, 120))
	meta.WarnCount = 3
	meta.QuarantinedRows = 2
	require.NoError(t, db.RecordTransition(meta))

	got, err := db.GetRun(meta.RunID)
	require.NoError(t, err)
	assert.Equal(t, core.StateValidated, got.State, "GetRun returns the latest transition")
	assert.Equal(t, "acme", got.ClientID)
	assert.Equal(t, "abc123", got.InputSnapshotID)
	assert.Equal(t, 3, got.WarnCount)
	assert.Equal(t, 2, got.QuarantinedRows)
	assert.Equal(t, map[string]int{"VALIDATED": 120}, got.RowCounts)
	assert.Equal(t, "2024-03-08", got.AsOf.Format("2006-01-02"))
}

func TestRunLogIsAppendOnly(t *testing.T) {
	db := testDB(t)

	meta := core.NewRunMetadata("acme", time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC))
	meta.InputSnapshotID = "snap"
	require.NoError(t, db.RecordTransition(meta))
	require.NoError(t, meta.Advance(core.StateValidated, 10))
	require.NoError(t, db.RecordTransition(meta))
	meta.Fail(core.StateFeatured, assert.AnError)
	require.NoError(t, db.RecordTransition(meta))

	history, err := db.TransitionHistory(meta.RunID)
	require.NoError(t, err)
	assert.Equal(t, []core.RunState{core.StateIngested, core.StateValidated, core.StateFailed}, history)

	got, err := db.GetRun(meta.RunID)
	require.NoError(t, err)
	assert.Equal(t, core.StateFailed, got.State)
	assert.Equal(t, "FEATURED", got.FailedStage)
	assert.NotEmpty(t, got.Diagnostic)
	assert.False(t, got.FinishedAt.IsZero())
}

func TestRunLogRecordsGapsAndVersions(t *testing.T) {
	db := testDB(t)

	meta := core.NewRunMetadata("acme", time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC))
	meta.InputSnapshotID = "snap"
	meta.PredictionGaps = []core.PredictionGap{{EntityID: "c1", Metric: "clicks", Reason: "incomplete history"}}
	meta.ModelVersions = map[string]string{"clicks": "1.2.0"}
	require.NoError(t, db.RecordTransition(meta))

	got, err := db.GetRun(meta.RunID)
	require.NoError(t, err)
	assert.Equal(t, meta.PredictionGaps, got.PredictionGaps)
	assert.Equal(t, meta.ModelVersions, got.ModelVersions)
}

func TestListRunsNewestFirstLatestStateOnly(t *testing.T) {
	db := testDB(t)

	first := core.NewRunMetadata("acme", time.Date(2024, 3, 7, 0, 0, 0, 0, time.UTC))
	first.InputSnapshotID = "s1"
	require.NoError(t, db.RecordTransition(first))
	require.NoError(t, first.Advance(core.StateValidated, 5))
	require.NoError(t, db.RecordTransition(first))

	second := core.NewRunMetadata("acme", time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC))
	second.InputSnapshotID = "s2"
	require.NoError(t, db.RecordTransition(second))

	other := core.NewRunMetadata("globex", time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC))
	other.InputSnapshotID = "s3"
	require.NoError(t, db.RecordTransition(other))

	runs, err := db.ListRuns("acme", 10)
	require.NoError(t, err)
	require.Len(t, runs, 2, "other clients' runs are excluded")
	assert.Equal(t, second.RunID, runs[0].RunID)
	assert.Equal(t, first.RunID, runs[1].RunID)
	assert.Equal(t, core.StateValidated, runs[1].State, "one row per run, at its latest state")
}

func TestGetRunNotFound(t *testing.T) {
	db := testDB(t)
	_, err := db.GetRun("no-such-run")
	assert.Error(t, err)
}
