package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"adpulse/core"
)

// Published artifact file names.
const (
	FileCleaned         = "cleaned.csv"
	FileFeatures        = "features.csv"
	FilePredictions     = "predictions.csv"
	FileAlerts          = "alerts.csv"
	FileAlertsOnly      = "predictions_alerted.csv"
	FileRecommendations = "recommendations.csv"
	FileRunMetadata     = "run_metadata.json"
)

const dateFormat = "2006-01-02"

// formatFloat renders a float the same way on every platform and run.
// Undefined values (NaN) become empty cells, never a literal zero.
func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// writeCSV writes rows to a file and fsyncs it so a publish rename can never
// expose a partially flushed artifact.
func writeCSV(dir, name string, header []string, rows [][]string) error {
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create artifact %s: %w", name, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("failed to write %s header: %w", name, err)
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write %s row: %w", name, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush %s: %w", name, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("failed to sync %s: %w", name, err)
	}
	return nil
}

// WriteCleanedCSV writes the cleaned daily records. Metric columns follow
// the sorted metric-name order of the first record; all records in a run
// share the same metric set.
func WriteCleanedCSV(dir string, records []core.CleanedRecord) error {
	header := []string{"client_id", "campaign_id", "campaign_name", "objective", "activity", "date"}
	var metricNames []string
	if len(records) > 0 {
		metricNames = records[0].MetricNames()
		header = append(header, metricNames...)
	}

	rows := make([][]string, 0, len(records))
	for i := range records {
		rec := &records[i]
		row := []string{rec.ClientID, rec.CampaignID, rec.CampaignName, rec.Objective,
			string(rec.Activity), rec.Date.Format(dateFormat)}
		for _, name := range metricNames {
			row = append(row, formatFloat(rec.Metrics[name]))
		}
		rows = append(rows, row)
	}
	return writeCSV(dir, FileCleaned, header, rows)
}

// WriteFeaturesCSV writes the feature rows; feature columns follow the spec
// schema order carried on the rows.
func WriteFeaturesCSV(dir string, featureRows []core.FeatureRow) error {
	header := []string{"client_id", "entity_id", "as_of", "incomplete"}
	if len(featureRows) > 0 {
		header = append(header, featureRows[0].Names...)
	}

	rows := make([][]string, 0, len(featureRows))
	for i := range featureRows {
		fr := &featureRows[i]
		row := []string{fr.ClientID, fr.EntityID, fr.AsOf.Format(dateFormat),
			strconv.FormatBool(fr.Incomplete)}
		for _, v := range fr.Values {
			row = append(row, formatFloat(v))
		}
		rows = append(rows, row)
	}
	return writeCSV(dir, FileFeatures, header, rows)
}

var predictionsHeader = []string{"entity_id", "as_of", "metric", "model_version", "predicted_value", "confidence"}

func predictionRow(p *core.Prediction) []string {
	return []string{p.EntityID, p.AsOf.Format(dateFormat), p.Metric, p.ModelVersion,
		formatFloat(p.Value), formatFloat(p.Confidence)}
}

// WritePredictionsCSV writes the full prediction table.
func WritePredictionsCSV(dir string, predictions []core.Prediction) error {
	rows := make([][]string, 0, len(predictions))
	for i := range predictions {
		rows = append(rows, predictionRow(&predictions[i]))
	}
	return writeCSV(dir, FilePredictions, predictionsHeader, rows)
}

// WriteAlertsOnlyCSV writes the predictions view restricted to entities with
// at least one firing alert, for consumers that want just the problem rows.
func WriteAlertsOnlyCSV(dir string, predictions []core.Prediction, alerts []core.Alert) error {
	alerted := make(map[string]bool, len(alerts))
	for i := range alerts {
		alerted[alerts[i].EntityID] = true
	}
	var rows [][]string
	for i := range predictions {
		if alerted[predictions[i].EntityID] {
			rows = append(rows, predictionRow(&predictions[i]))
		}
	}
	return writeCSV(dir, FileAlertsOnly, predictionsHeader, rows)
}

// WriteAlertsCSV writes the fired alerts.
func WriteAlertsCSV(dir string, alerts []core.Alert) error {
	header := []string{"entity_id", "as_of", "rule_id", "severity", "metric", "ratio", "predicted", "baseline"}
	rows := make([][]string, 0, len(alerts))
	for i := range alerts {
		a := &alerts[i]
		rows = append(rows, []string{a.EntityID, a.AsOf.Format(dateFormat), a.RuleID, a.Severity,
			a.Metric, formatFloat(a.Ratio), formatFloat(a.Predicted), formatFloat(a.Baseline)})
	}
	return writeCSV(dir, FileAlerts, header, rows)
}

// WriteRecommendationsCSV writes the ranked recommendations.
func WriteRecommendationsCSV(dir string, recs []core.Recommendation) error {
	header := []string{"entity_id", "as_of", "priority_rank", "action", "rationale", "rule_id", "severity"}
	rows := make([][]string, 0, len(recs))
	for i := range recs {
		r := &recs[i]
		rows = append(rows, []string{r.EntityID, r.AsOf.Format(dateFormat),
			strconv.Itoa(r.Priority), r.Action, r.Rationale, r.RuleID, r.Severity})
	}
	return writeCSV(dir, FileRecommendations, header, rows)
}

// WriteRunMetadataJSON writes the run metadata document next to the tables.
func WriteRunMetadataJSON(dir string, meta *core.RunMetadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run metadata: %w", err)
	}
	path := filepath.Join(dir, FileRunMetadata)
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write run metadata: %w", err)
	}
	return nil
}
