package pipeline

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"adpulse/contract"
	"adpulse/core"
	"adpulse/detect"
	"adpulse/feature"
	"adpulse/ingest"
	"adpulse/metrics"
	"adpulse/model"
	"adpulse/notify"
	"adpulse/recommend"
	"adpulse/storage"
)

// Sinks are the side effects applied after a successful publication. Both
// are optional and best-effort: their failure is logged on the run but never
// unpublishes it.
type Sinks struct {
	ClickHouse *storage.ClickHouse
	Notifier   *notify.Notifier
}

// Orchestrator drives one run through the full state machine. Every
// transition is persisted to the run log; artifacts accumulate in a per-run
// staging directory and reach the canonical tree only through one atomic
// rename at the end.
type Orchestrator struct {
	dedupSize int
	builder   *feature.Builder
	scorer    *model.Scorer
	detector  *detect.Engine
	ranker    *recommend.Engine
	artifacts *storage.ArtifactStore
	runs      *storage.SQLite
	sinks     Sinks
	logger    *zap.SugaredLogger
}

// NewOrchestrator wires the stage engines together.
func NewOrchestrator(
	dedupSize int,
	builder *feature.Builder,
	scorer *model.Scorer,
	detector *detect.Engine,
	ranker *recommend.Engine,
	artifacts *storage.ArtifactStore,
	runs *storage.SQLite,
	sinks Sinks,
	logger *zap.SugaredLogger,
) *Orchestrator {
	return &Orchestrator{
		dedupSize: dedupSize,
		builder:   builder,
		scorer:    scorer,
		detector:  detector,
		ranker:    ranker,
		artifacts: artifacts,
		runs:      runs,
		sinks:     sinks,
		logger:    logger,
	}
}

// record persists the run's current state, logging rather than failing if
// the run log itself is unavailable mid-flight.
func (o *Orchestrator) record(meta *core.RunMetadata) {
	if err := o.runs.RecordTransition(meta); err != nil {
		o.logger.Errorw("failed to record run transition",
			"run_id", meta.RunID, "state", meta.State, "error", err)
	}
}

// fail marks the run FAILED at a stage, records it, and discards staging.
// The canonical tree is never touched on failure.
func (o *Orchestrator) fail(meta *core.RunMetadata, stage core.RunState, err error) error {
	meta.Fail(stage, err)
	o.record(meta)
	metrics.RunsCompleted.WithLabelValues(meta.ClientID, string(core.StateFailed)).Inc()
	if derr := o.artifacts.Discard(meta.RunID); derr != nil {
		o.logger.Warnw("failed to discard staging", "run_id", meta.RunID, "error", derr)
	}
	return fmt.Errorf("run %s failed at %s: %w", meta.RunID, stage, err)
}

// cancelled checks for context cancellation between stages.
func (o *Orchestrator) cancelled(ctx context.Context, meta *core.RunMetadata, stage core.RunState) error {
	select {
	case <-ctx.Done():
		meta.Cancel(stage)
		o.record(meta)
		metrics.RunsCompleted.WithLabelValues(meta.ClientID, string(core.StateCancelled)).Inc()
		if err := o.artifacts.Discard(meta.RunID); err != nil {
			o.logger.Warnw("failed to discard staging", "run_id", meta.RunID, "error", err)
		}
		return fmt.Errorf("run %s cancelled at %s: %w", meta.RunID, stage, ctx.Err())
	default:
		return nil
	}
}

func (o *Orchestrator) advance(meta *core.RunMetadata, to core.RunState, rows int, stageStart time.Time) error {
	if err := meta.Advance(to, rows); err != nil {
		return err
	}
	metrics.StageDuration.WithLabelValues(string(to)).Observe(time.Since(stageStart).Seconds())
	o.record(meta)
	return nil
}

// Run executes one refresh for a client and as-of date. Re-running with the
// same input produces byte-identical published tables under a new run id.
func (o *Orchestrator) Run(ctx context.Context, input io.Reader, assets *ClientAssets, asOf time.Time) (*core.RunMetadata, error) {
	clientID := assets.Client.ClientID
	meta := core.NewRunMetadata(clientID, asOf)
	for metric, version := range assets.Client.ModelVersions {
		meta.ModelVersions[metric] = version
	}

	// --- INGESTED ---
	stageStart := time.Now()
	raw, err := io.ReadAll(input)
	if err != nil {
		return meta, o.fail(meta, core.StateIngested, fmt.Errorf("failed to read input: %w", err))
	}
	sum := sha256.Sum256(raw)
	meta.InputSnapshotID = hex.EncodeToString(sum[:])

	records, err := ingest.ParseExport(bytes.NewReader(raw), clientID)
	if err != nil {
		return meta, o.fail(meta, core.StateIngested, err)
	}
	// Dedup state is scoped to this run: re-pulls overlapping within one
	// input collapse, but identical inputs across runs stay intact.
	deduper, err := ingest.NewDeduper(o.dedupSize)
	if err != nil {
		return meta, o.fail(meta, core.StateIngested, err)
	}
	records = deduper.Deduplicate(records)
	meta.RowCounts[string(core.StateIngested)] = len(records)
	metrics.RowsIngested.WithLabelValues(clientID).Add(float64(len(records)))
	metrics.StageDuration.WithLabelValues(string(core.StateIngested)).Observe(time.Since(stageStart).Seconds())
	o.record(meta)

	if err := o.cancelled(ctx, meta, core.StateIngested); err != nil {
		return meta, err
	}

	// --- VALIDATED ---
	stageStart = time.Now()
	result := contract.Validate(records, assets.Contract)
	if !result.Passed {
		return meta, o.fail(meta, core.StateValidated, &core.ValidationError{
			Stage:      string(core.StateValidated),
			Violations: result.FatalViolations(),
		})
	}
	meta.WarnCount = result.WarnCount()
	meta.QuarantinedRows = len(result.Quarantined)
	metrics.RowsQuarantined.WithLabelValues(clientID).Add(float64(len(result.Quarantined)))

	cleaned := ingest.Aggregate(records, result.Quarantined, asOf)
	if err := o.artifacts.WriteStaged(meta.RunID, "cleaned", cleaned); err != nil {
		return meta, o.fail(meta, core.StateValidated, err)
	}
	if err := o.advance(meta, core.StateValidated, len(cleaned), stageStart); err != nil {
		return meta, o.fail(meta, core.StateValidated, err)
	}

	if err := o.cancelled(ctx, meta, core.StateValidated); err != nil {
		return meta, err
	}

	// --- FEATURED ---
	stageStart = time.Now()
	rows, err := o.builder.Build(cleaned, asOf, assets.Spec)
	if err != nil {
		return meta, o.fail(meta, core.StateFeatured, err)
	}
	for i := range rows {
		if rows[i].Incomplete {
			meta.IncompleteRows++
		}
	}
	if err := o.artifacts.WriteStaged(meta.RunID, "features", rows); err != nil {
		return meta, o.fail(meta, core.StateFeatured, err)
	}
	if err := o.advance(meta, core.StateFeatured, len(rows), stageStart); err != nil {
		return meta, o.fail(meta, core.StateFeatured, err)
	}

	if err := o.cancelled(ctx, meta, core.StateFeatured); err != nil {
		return meta, err
	}

	// --- SCORED ---
	stageStart = time.Now()
	scored, err := o.scorer.ScoreAll(rows, assets.Client.ModelVersions)
	if err != nil {
		return meta, o.fail(meta, core.StateScored, err)
	}
	meta.PredictionGaps = append(meta.PredictionGaps, scored.Gaps...)
	if err := o.advance(meta, core.StateScored, len(scored.Predictions), stageStart); err != nil {
		return meta, o.fail(meta, core.StateScored, err)
	}

	if err := o.cancelled(ctx, meta, core.StateScored); err != nil {
		return meta, err
	}

	// --- ALERTED ---
	stageStart = time.Now()
	outcome := o.detector.Evaluate(assets.Rules, scored.Predictions, rows, asOf)
	meta.PredictionGaps = append(meta.PredictionGaps, outcome.Gaps...)
	metrics.PredictionGaps.WithLabelValues(clientID).Add(float64(len(meta.PredictionGaps)))
	for i := range outcome.Alerts {
		metrics.AlertsGenerated.WithLabelValues(clientID, outcome.Alerts[i].Severity).Inc()
	}
	if err := o.advance(meta, core.StateAlerted, len(outcome.Alerts), stageStart); err != nil {
		return meta, o.fail(meta, core.StateAlerted, err)
	}

	if err := o.cancelled(ctx, meta, core.StateAlerted); err != nil {
		return meta, err
	}

	// --- RECOMMENDED ---
	stageStart = time.Now()
	recs := o.ranker.Recommend(outcome.Alerts, assets.Actions)
	if err := o.advance(meta, core.StateRecommended, len(recs), stageStart); err != nil {
		return meta, o.fail(meta, core.StateRecommended, err)
	}

	if err := o.cancelled(ctx, meta, core.StateRecommended); err != nil {
		return meta, err
	}

	// --- PUBLISHED ---
	stageStart = time.Now()
	asOfKey := asOf.Format("2006-01-02")
	if err := o.publish(meta, asOfKey, cleaned, rows, scored.Predictions, outcome.Alerts, recs, stageStart); err != nil {
		return meta, err
	}

	o.applySinks(ctx, meta, scored.Predictions, outcome.Alerts, recs)
	return meta, nil
}

// publish writes the final tables into staging and swaps them into the
// canonical slot under the publish lock.
func (o *Orchestrator) publish(meta *core.RunMetadata, asOfKey string,
	cleaned []core.CleanedRecord, rows []core.FeatureRow,
	predictions []core.Prediction, alerts []core.Alert, recs []core.Recommendation,
	stageStart time.Time) error {

	stageDir, err := o.artifacts.StageDir(meta.RunID)
	if err != nil {
		return o.fail(meta, core.StatePublished, err)
	}
	writers := []func() error{
		func() error { return storage.WriteCleanedCSV(stageDir, cleaned) },
		func() error { return storage.WriteFeaturesCSV(stageDir, rows) },
		func() error { return storage.WritePredictionsCSV(stageDir, predictions) },
		func() error { return storage.WriteAlertsCSV(stageDir, alerts) },
		func() error { return storage.WriteAlertsOnlyCSV(stageDir, predictions, alerts) },
		func() error { return storage.WriteRecommendationsCSV(stageDir, recs) },
	}
	for _, write := range writers {
		if err := write(); err != nil {
			return o.fail(meta, core.StatePublished, err)
		}
	}

	if err := o.artifacts.AcquirePublishLock(meta.ClientID, asOfKey, meta.RunID); err != nil {
		return o.fail(meta, core.StatePublished, err)
	}
	defer func() {
		if err := o.artifacts.ReleasePublishLock(meta.ClientID, asOfKey); err != nil {
			o.logger.Warnw("failed to release publish lock", "run_id", meta.RunID, "error", err)
		}
	}()

	// The published metadata document shows the terminal state.
	if err := meta.Advance(core.StatePublished, len(predictions)); err != nil {
		return o.fail(meta, core.StatePublished, err)
	}
	if err := storage.WriteRunMetadataJSON(stageDir, meta); err != nil {
		return o.fail(meta, core.StatePublished, err)
	}
	if err := o.artifacts.Publish(meta.RunID, meta.ClientID, asOfKey); err != nil {
		return o.fail(meta, core.StatePublished, err)
	}

	metrics.StageDuration.WithLabelValues(string(core.StatePublished)).Observe(time.Since(stageStart).Seconds())
	metrics.RunsCompleted.WithLabelValues(meta.ClientID, string(core.StatePublished)).Inc()
	o.record(meta)
	o.logger.Infow("run published",
		"run_id", meta.RunID, "client_id", meta.ClientID, "as_of", asOfKey,
		"predictions", len(predictions), "alerts", len(alerts), "recommendations", len(recs))
	return nil
}

// applySinks mirrors and notifies after publication. Best-effort only.
func (o *Orchestrator) applySinks(ctx context.Context, meta *core.RunMetadata,
	predictions []core.Prediction, alerts []core.Alert, recs []core.Recommendation) {

	if o.sinks.ClickHouse != nil {
		if err := o.sinks.ClickHouse.MirrorRun(ctx, meta.RunID, meta.ClientID, predictions, alerts, recs); err != nil {
			o.logger.Errorw("failed to mirror run to ClickHouse", "run_id", meta.RunID, "error", err)
		}
	}
	if o.sinks.Notifier != nil {
		if err := o.sinks.Notifier.NotifyRun(meta, alerts); err != nil {
			o.logger.Errorw("failed to send alert notification", "run_id", meta.RunID, "error", err)
		}
	}
}
