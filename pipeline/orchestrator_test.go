package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"adpulse/config"
	"adpulse/contract"
	"adpulse/core"
	"adpulse/detect"
	"adpulse/feature"
	"adpulse/model"
	"adpulse/notify"
	"adpulse/recommend"
	"adpulse/storage"
)

var asOf = time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC)

const contractDoc = `
name: campaign-export
monotonic_dates: true
fields:
  - name: date
    type: date
    required: true
  - name: campaign_id
    type: string
    required: true
  - name: impressions
    type: numeric
    nullable: true
    min: 0
`

const featureDoc = `
name: default
features:
  - kind: lag
    metric: clicks
    offset: 1
  - kind: rolling_mean
    metric: clicks
    window: 7
    min_periods: 3
`

const rulesDoc = `
name: default
rules:
  - id: clicks-drop
    kind: threshold
    metric: clicks
    baseline: clicks_rolling_mean_7
    direction: down
`

const actionsDoc = `
name: default
actions:
  - rule_id: clicks-drop
    action: inspect creative and audience saturation
    rationale: "predicted {metric} at {ratio} of trailing baseline"
    weight: 5
`

const exportHeader = "Date,Campaign ID,Campaign name,Campaign start date,Campaign end date,Campaign status,Campaign objective," +
	"Ad set ID,Ad set name,Ad ID,Ad name,Creative name," +
	"Impressions,Cost,Link clicks,Clicks (all),Actions," +
	"Cost per action (CPA),CPM (cost per 1000 impressions),Cost per 1000 people reached," +
	"CTR (link click-through rate),CTR (all),CPC (cost per link click),CPC (all)"

func exportRow(date string, clicks float64) string {
	return fmt.Sprintf("%s,c1,Promo | Traffic | M3,2024-02-01,2024-04-01,ACTIVE,LINK_CLICKS,"+
		"as1,AS One,ad1,Ad One,Creative A,"+
		"1000,25.5,%g,60,5,"+
		"5.1,25.5,3.0,0.04,0.06,0.6,0.4", date, clicks)
}

// testInput is an 8-day series with a sharp click drop on the final two
// days, enough history for a 7-day rolling mean.
func testInput() string {
	lines := []string{exportHeader}
	clicks := []float64{100, 100, 100, 100, 100, 100, 10, 10}
	for i, c := range clicks {
		d := time.Date(2024, 3, 1+i, 0, 0, 0, 0, time.UTC)
		lines = append(lines, exportRow(d.Format("2006-01-02"), c))
	}
	return strings.Join(lines, "\n") + "\n"
}

type harness struct {
	orch   *Orchestrator
	assets *ClientAssets
	store  *storage.ArtifactStore
	runs   *storage.SQLite
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	root := t.TempDir()
	logger := zap.NewNop().Sugar()

	writeDoc := func(name, content string) string {
		path := filepath.Join(root, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
		return path
	}

	c, err := contract.Load(writeDoc("contract.yaml", contractDoc))
	require.NoError(t, err)
	spec, err := feature.LoadSpec(writeDoc("features.yaml", featureDoc))
	require.NoError(t, err)
	rules, err := detect.LoadRuleSet(writeDoc("rules.yaml", rulesDoc))
	require.NoError(t, err)
	actions, err := recommend.LoadTable(writeDoc("actions.yaml", actionsDoc))
	require.NoError(t, err)

	assets := &ClientAssets{
		Client: &config.ClientConfig{
			ClientID:      "acme",
			ModelVersions: map[string]string{"clicks": "1.0.0"},
		},
		Contract: c,
		Spec:     spec,
		Rules:    rules,
		Actions:  actions,
	}

	registry, err := model.NewRegistry(filepath.Join(root, "models"), logger)
	require.NoError(t, err)
	// Predicts tomorrow's clicks as today's: drops show up immediately.
	require.NoError(t, registry.Register(&model.Artifact{
		Family:       "clicks",
		Version:      "1.0.0",
		Inputs:       spec.Names(),
		Coefficients: []float64{1, 0},
		Confidence:   0.8,
	}, nil))
	cache, err := model.NewCache(registry, 8)
	require.NoError(t, err)

	pool := core.NewWorkerPool(context.Background(), 2, 8, logger)
	require.NoError(t, pool.Start())
	t.Cleanup(pool.Stop)

	store, err := storage.NewArtifactStore(
		filepath.Join(root, "staging"), filepath.Join(root, "published"), logger)
	require.NoError(t, err)
	runs, err := storage.NewSQLite(filepath.Join(root, "runs.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { runs.Close() })

	orch := NewOrchestrator(
		1024,
		feature.NewBuilder(pool, logger),
		model.NewScorer(cache, logger),
		detect.NewEngine(logger),
		recommend.NewEngine(logger),
		store, runs, Sinks{}, logger,
	)
	return &harness{orch: orch, assets: assets, store: store, runs: runs}
}

func TestRunPublishesAllArtifacts(t *testing.T) {
	h := newHarness(t)

	meta, err := h.orch.Run(context.Background(), strings.NewReader(testInput()), h.assets, asOf)
	require.NoError(t, err)
	assert.Equal(t, core.StatePublished, meta.State)
	assert.NotEmpty(t, meta.InputSnapshotID)

	dir := h.store.PublishedDir("acme", "2024-03-08")
	for _, name := range []string{
		storage.FileCleaned, storage.FileFeatures, storage.FilePredictions,
		storage.FileAlerts, storage.FileAlertsOnly, storage.FileRecommendations,
		storage.FileRunMetadata,
	} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, "published artifact %s missing", name)
	}

	// The drop fires the threshold rule and yields a ranked recommendation.
	alerts, err := os.ReadFile(filepath.Join(dir, storage.FileAlerts))
	require.NoError(t, err)
	assert.Contains(t, string(alerts), "clicks-drop")
	assert.Contains(t, string(alerts), core.SeverityCritical)

	recs, err := os.ReadFile(filepath.Join(dir, storage.FileRecommendations))
	require.NoError(t, err)
	assert.Contains(t, string(recs), "inspect creative and audience saturation")
	assert.Contains(t, string(recs), "of trailing baseline")

	history, err := h.runs.TransitionHistory(meta.RunID)
	require.NoError(t, err)
	assert.Equal(t, []core.RunState{
		core.StateIngested, core.StateValidated, core.StateFeatured,
		core.StateScored, core.StateAlerted, core.StateRecommended, core.StatePublished,
	}, history)
}

func TestRunArtifactsAreByteIdenticalAcrossReruns(t *testing.T) {
	h := newHarness(t)

	read := func() map[string][]byte {
		dir := h.store.PublishedDir("acme", "2024-03-08")
		out := map[string][]byte{}
		for _, name := range []string{
			storage.FileCleaned, storage.FileFeatures, storage.FilePredictions,
			storage.FileAlerts, storage.FileAlertsOnly, storage.FileRecommendations,
		} {
			data, err := os.ReadFile(filepath.Join(dir, name))
			require.NoError(t, err)
			out[name] = data
		}
		return out
	}

	_, err := h.orch.Run(context.Background(), strings.NewReader(testInput()), h.assets, asOf)
	require.NoError(t, err)
	first := read()

	second, err := h.orch.Run(context.Background(), strings.NewReader(testInput()), h.assets, asOf)
	require.NoError(t, err)
	assert.Equal(t, core.StatePublished, second.State)
	assert.Equal(t, 8, second.RowCounts[string(core.StateIngested)],
		"rerun must see every row again, not a dedup shadow of the first run")

	after := read()
	predictions := strings.TrimSpace(string(after[storage.FilePredictions]))
	assert.Greater(t, strings.Count(predictions, "\n"), 0,
		"rerun predictions must carry data rows, not just the header")
	for name, data := range after {
		assert.Equal(t, first[name], data, "artifact %s changed between identical reruns", name)
	}
}

func TestRunFailsAtScoredOnMissingModel(t *testing.T) {
	h := newHarness(t)
	h.assets.Client.ModelVersions = map[string]string{"clicks": "9.9.9"}

	meta, err := h.orch.Run(context.Background(), strings.NewReader(testInput()), h.assets, asOf)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrModelNotFound)
	assert.Equal(t, core.StateFailed, meta.State)
	assert.Equal(t, string(core.StateScored), meta.FailedStage)

	// The failure is in the durable run log and nothing was published.
	logged, err := h.runs.GetRun(meta.RunID)
	require.NoError(t, err)
	assert.Equal(t, core.StateFailed, logged.State)
	assert.Equal(t, string(core.StateScored), logged.FailedStage)
	assert.Contains(t, logged.Diagnostic, "not found")

	_, err = os.Stat(h.store.PublishedDir("acme", "2024-03-08"))
	assert.True(t, os.IsNotExist(err))
}

func TestRunFailsAtValidatedOnFatalViolation(t *testing.T) {
	h := newHarness(t)

	// Dates out of order per campaign: a FATAL contract violation.
	input := strings.Join([]string{
		exportHeader,
		exportRow("2024-03-05", 100),
		exportRow("2024-03-04", 100),
	}, "\n") + "\n"

	meta, err := h.orch.Run(context.Background(), strings.NewReader(input), h.assets, asOf)
	require.Error(t, err)
	var verr *core.ValidationError
	assert.ErrorAs(t, err, &verr)
	assert.Equal(t, core.StateFailed, meta.State)
	assert.Equal(t, string(core.StateValidated), meta.FailedStage)

	_, err = os.Stat(h.store.PublishedDir("acme", "2024-03-08"))
	assert.True(t, os.IsNotExist(err))
}

func TestRunPublicationConflictLeavesCanonicalUntouched(t *testing.T) {
	h := newHarness(t)

	// First run publishes the canonical slot.
	_, err := h.orch.Run(context.Background(), strings.NewReader(testInput()), h.assets, asOf)
	require.NoError(t, err)
	canonical := filepath.Join(h.store.PublishedDir("acme", "2024-03-08"), storage.FilePredictions)
	before, err := os.ReadFile(canonical)
	require.NoError(t, err)

	// Injected failure after ALERTED: a competing run holds the lock when
	// this run reaches publication.
	require.NoError(t, h.store.AcquirePublishLock("acme", "2024-03-08", "competitor"))

	meta, err := h.orch.Run(context.Background(), strings.NewReader(testInput()), h.assets, asOf)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrPublicationConflict)
	assert.Equal(t, core.StateFailed, meta.State)
	assert.Equal(t, string(core.StatePublished), meta.FailedStage)

	after, err := os.ReadFile(canonical)
	require.NoError(t, err)
	assert.Equal(t, before, after, "failed publication must not disturb the canonical artifacts")
}

func TestRunCancelledBetweenStages(t *testing.T) {
	h := newHarness(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	meta, err := h.orch.Run(ctx, strings.NewReader(testInput()), h.assets, asOf)
	require.Error(t, err)
	assert.Equal(t, core.StateCancelled, meta.State)

	_, statErr := os.Stat(h.store.PublishedDir("acme", "2024-03-08"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestRunQuarantineKeepsGoing(t *testing.T) {
	h := newHarness(t)

	// One negative-impressions row gets quarantined; the run still publishes.
	rows := []string{exportHeader}
	clicks := []float64{100, 100, 100, 100, 100, 100, 10, 10}
	for i, c := range clicks {
		d := time.Date(2024, 3, 1+i, 0, 0, 0, 0, time.UTC)
		row := exportRow(d.Format("2006-01-02"), c)
		if i == 3 {
			row = strings.Replace(row, ",1000,", ",-5,", 1)
		}
		rows = append(rows, row)
	}

	meta, err := h.orch.Run(context.Background(), strings.NewReader(strings.Join(rows, "\n")+"\n"), h.assets, asOf)
	require.NoError(t, err)
	assert.Equal(t, core.StatePublished, meta.State)
	assert.Equal(t, 1, meta.QuarantinedRows)
	assert.Equal(t, 1, meta.WarnCount)
}

func TestNotifierFailureDoesNotUnpublish(t *testing.T) {
	h := newHarness(t)
	h.orch.sinks.Notifier = notify.NewNotifier(notify.Config{
		WebhookURL: "http://127.0.0.1:1/unreachable",
		Timeout:    100 * time.Millisecond,
	}, zap.NewNop().Sugar())

	meta, err := h.orch.Run(context.Background(), strings.NewReader(testInput()), h.assets, asOf)
	require.NoError(t, err, "sink failures are best-effort")
	assert.Equal(t, core.StatePublished, meta.State)
}
