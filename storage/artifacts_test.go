package storage

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"adpulse/core"
)

func testStore(t *testing.T) *ArtifactStore {
	t.Helper()
	root := t.TempDir()
	s, err := NewArtifactStore(filepath.Join(root, "staging"), filepath.Join(root, "published"), zap.NewNop().Sugar())
	require.NoError(t, err)
	return s
}

var testAsOf = time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC)

func TestStagedArtifactRoundTrip(t *testing.T) {
	s := testStore(t)

	rows := []core.FeatureRow{{
		ClientID: "acme", EntityID: "c1", AsOf: testAsOf,
		Names: []string{"clicks_lag_1"}, Values: []float64{42},
	}}
	require.NoError(t, s.WriteStaged("run-1", "features", rows))

	var got []core.FeatureRow
	require.NoError(t, s.ReadStaged("run-1", "features", &got))
	require.Len(t, got, 1)

	// msgpack decodes times with a fresh *time.Location, so compare the
	// instant rather than the struct.
	assert.True(t, got[0].AsOf.Equal(rows[0].AsOf), "as-of instant survived the round trip")
	got[0].AsOf = rows[0].AsOf
	assert.Equal(t, rows, got)
}

func TestPublishMovesStagingIntoCanonical(t *testing.T) {
	s := testStore(t)

	dir, err := s.StageDir("run-1")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "predictions.csv"), []byte("a,b\n"), 0644))

	require.NoError(t, s.AcquirePublishLock("acme", "2024-03-08", "run-1"))
	require.NoError(t, s.Publish("run-1", "acme", "2024-03-08"))
	require.NoError(t, s.ReleasePublishLock("acme", "2024-03-08"))

	published := filepath.Join(s.PublishedDir("acme", "2024-03-08"), "predictions.csv")
	data, err := os.ReadFile(published)
	require.NoError(t, err)
	assert.Equal(t, "a,b\n", string(data))

	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err), "staging directory is gone after publish")
}

func TestPublishReplacesPreviousSlotAtomically(t *testing.T) {
	s := testStore(t)

	for i, runID := range []string{"run-1", "run-2"} {
		dir, err := s.StageDir(runID)
		require.NoError(t, err)
		content := []byte{byte('0' + i)}
		require.NoError(t, os.WriteFile(filepath.Join(dir, "alerts.csv"), content, 0644))

		require.NoError(t, s.AcquirePublishLock("acme", "2024-03-08", runID))
		require.NoError(t, s.Publish(runID, "acme", "2024-03-08"))
		require.NoError(t, s.ReleasePublishLock("acme", "2024-03-08"))
	}

	data, err := os.ReadFile(filepath.Join(s.PublishedDir("acme", "2024-03-08"), "alerts.csv"))
	require.NoError(t, err)
	assert.Equal(t, "1", string(data), "second publication replaced the first")

	entries, err := os.ReadDir(filepath.Join(s.publishedDir, "acme"))
	require.NoError(t, err)
	require.Len(t, entries, 1, "no displaced leftovers")
}

func TestPublishLockConflict(t *testing.T) {
	s := testStore(t)

	require.NoError(t, s.AcquirePublishLock("acme", "2024-03-08", "run-1"))
	err := s.AcquirePublishLock("acme", "2024-03-08", "run-2")
	assert.ErrorIs(t, err, core.ErrPublicationConflict)

	assert.NoError(t, s.AcquirePublishLock("acme", "2024-03-09", "run-2"),
		"a different slot is not in conflict")

	require.NoError(t, s.ReleasePublishLock("acme", "2024-03-08"))
	assert.NoError(t, s.AcquirePublishLock("acme", "2024-03-08", "run-3"))
}

func TestDiscardLeavesCanonicalUntouched(t *testing.T) {
	s := testStore(t)

	dir, err := s.StageDir("run-1")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "x.csv"), []byte("x"), 0644))
	require.NoError(t, s.AcquirePublishLock("acme", "2024-03-08", "run-1"))
	require.NoError(t, s.Publish("run-1", "acme", "2024-03-08"))
	require.NoError(t, s.ReleasePublishLock("acme", "2024-03-08"))

	dir2, err := s.StageDir("run-2")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir2, "x.csv"), []byte("y"), 0644))
	require.NoError(t, s.Discard("run-2"))

	_, err = os.Stat(dir2)
	assert.True(t, os.IsNotExist(err))
	data, err := os.ReadFile(filepath.Join(s.PublishedDir("acme", "2024-03-08"), "x.csv"))
	require.NoError(t, err)
	assert.Equal(t, "x", string(data))
}

func TestWriteCSVArtifactsAreByteDeterministic(t *testing.T) {
	s := testStore(t)

	predictions := []core.Prediction{
		{EntityID: "c1", AsOf: testAsOf, ModelVersion: "1.0.0", Metric: "clicks", Value: 12.25, Confidence: 0.8},
		{EntityID: "c2", AsOf: testAsOf, ModelVersion: "1.0.0", Metric: "clicks", Value: 1.0 / 3.0, Confidence: 0.8},
	}
	alerts := []core.Alert{
		{EntityID: "c2", AsOf: testAsOf, RuleID: "clicks-drop", Severity: core.SeverityCritical,
			Metric: "clicks", Ratio: 0.6, Predicted: 30, Baseline: 50},
	}

	write := func(runID string) string {
		dir, err := s.StageDir(runID)
		require.NoError(t, err)
		require.NoError(t, WritePredictionsCSV(dir, predictions))
		require.NoError(t, WriteAlertsCSV(dir, alerts))
		require.NoError(t, WriteAlertsOnlyCSV(dir, predictions, alerts))
		return dir
	}

	first, second := write("run-1"), write("run-2")
	for _, name := range []string{FilePredictions, FileAlerts, FileAlertsOnly} {
		a, err := os.ReadFile(filepath.Join(first, name))
		require.NoError(t, err)
		b, err := os.ReadFile(filepath.Join(second, name))
		require.NoError(t, err)
		assert.Equal(t, a, b, "artifact %s differs between identical runs", name)
	}

	alertsOnly, err := os.ReadFile(filepath.Join(first, FileAlertsOnly))
	require.NoError(t, err)
	assert.NotContains(t, string(alertsOnly), "c1,", "alerts-only view excludes quiet entities")
	assert.Contains(t, string(alertsOnly), "c2,")
}

func TestWriteCleanedCSVNaNIsEmptyCell(t *testing.T) {
	s := testStore(t)
	dir, err := s.StageDir("run-1")
	require.NoError(t, err)

	records := []core.CleanedRecord{{
		ClientID: "acme", CampaignID: "c1", CampaignName: "Promo", Objective: "Traffic",
		Activity: core.ActivityActive, Date: testAsOf,
		Metrics: map[string]float64{"clicks": 10, "cpa": math.NaN()},
	}}
	require.NoError(t, WriteCleanedCSV(dir, records))

	data, err := os.ReadFile(filepath.Join(dir, FileCleaned))
	require.NoError(t, err)
	assert.Equal(t,
		"client_id,campaign_id,campaign_name,objective,activity,date,clicks,cpa\n"+
			"acme,c1,Promo,Traffic,ACTIVE,2024-03-08,10,\n",
		string(data))
}
