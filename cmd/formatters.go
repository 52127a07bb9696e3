package cmd

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"adpulse/core"
	"adpulse/model"
)

// renderRunsTable displays runs in a formatted table.
func renderRunsTable(runs []*core.RunMetadata) {
	if len(runs) == 0 {
		warningColor.Println("No runs recorded")
		return
	}

	headerColor.Println("RUNS")
	headerColor.Println(strings.Repeat("=", 100))
	fmt.Printf("%-10s %-14s %-12s %-12s %-8s %-8s %-15s\n",
		"ID", "Client", "As-of", "State", "Alerts", "Warns", "Started")
	fmt.Println(strings.Repeat("-", 100))

	for _, run := range runs {
		state := string(run.State)
		switch run.State {
		case core.StateFailed, core.StateCancelled:
			state = errorColor.Sprint(state)
		case core.StatePublished:
			state = successColor.Sprint(state)
		}

		name := run.ClientID
		if len(name) > 13 {
			name = name[:10] + "..."
		}

		fmt.Printf("%-10s %-14s %-12s %-12s %-8d %-8d %-15s\n",
			shortID(run.RunID), name, run.AsOf.Format("2006-01-02"), state,
			run.RowCounts[string(core.StateAlerted)], run.WarnCount,
			formatTimeSince(run.StartedAt))
	}

	fmt.Println(strings.Repeat("=", 100))
}

// renderRunDetails displays one run's full metadata.
func renderRunDetails(meta *core.RunMetadata) {
	headerColor.Println("═══════════════════════════════════════════════════════════════")
	headerColor.Printf("  Run: %s\n", meta.RunID)
	headerColor.Println("═══════════════════════════════════════════════════════════════")
	fmt.Println()

	printSection("Run")
	printField("Client", meta.ClientID)
	printField("As-of", meta.AsOf.Format("2006-01-02"))
	printField("State", string(meta.State))
	printField("Snapshot", shortID(meta.InputSnapshotID))
	printField("Started", meta.StartedAt.Format(time.RFC3339))
	if !meta.FinishedAt.IsZero() {
		printField("Finished", meta.FinishedAt.Format(time.RFC3339))
	}
	if meta.FailedStage != "" {
		printField("Failed stage", meta.FailedStage)
	}
	if meta.Diagnostic != "" {
		printField("Diagnostic", meta.Diagnostic)
	}
	fmt.Println()

	if len(meta.RowCounts) > 0 {
		printSection("Row Counts")
		states := make([]string, 0, len(meta.RowCounts))
		for state := range meta.RowCounts {
			states = append(states, state)
		}
		sort.Strings(states)
		for _, state := range states {
			printField(state, fmt.Sprintf("%d", meta.RowCounts[state]))
		}
		fmt.Println()
	}

	printSection("Data Quality")
	printField("Warnings", fmt.Sprintf("%d", meta.WarnCount))
	printField("Quarantined", fmt.Sprintf("%d", meta.QuarantinedRows))
	printField("Incomplete", fmt.Sprintf("%d", meta.IncompleteRows))
	fmt.Println()

	if len(meta.ModelVersions) > 0 {
		printSection("Model Versions")
		metricNames := make([]string, 0, len(meta.ModelVersions))
		for metric := range meta.ModelVersions {
			metricNames = append(metricNames, metric)
		}
		sort.Strings(metricNames)
		for _, metric := range metricNames {
			printField(metric, meta.ModelVersions[metric])
		}
		fmt.Println()
	}

	if len(meta.PredictionGaps) > 0 {
		printSection("Prediction Gaps")
		for _, gap := range meta.PredictionGaps {
			fmt.Printf("  %s %s: %s\n", gap.EntityID, gap.Metric, gap.Reason)
		}
	}
}

// renderModelDetails displays an artifact plus its training metadata when
// the registry has it.
func renderModelDetails(registry *model.Registry, ref model.Ref, artifact *model.Artifact) {
	headerColor.Printf("Model %s\n", ref)
	fmt.Println()

	printSection("Artifact")
	printField("Family", artifact.Family)
	printField("Version", artifact.Version)
	printField("Confidence", fmt.Sprintf("%.3f", artifact.Confidence))
	printField("Inputs", strings.Join(artifact.Inputs, ", "))
	if artifact.ClampMin != nil {
		printField("Clamp min", fmt.Sprintf("%g", *artifact.ClampMin))
	}
	if artifact.ClampMax != nil {
		printField("Clamp max", fmt.Sprintf("%g", *artifact.ClampMax))
	}
	fmt.Println()

	meta, err := registry.LoadMetadata(ref)
	if err != nil {
		warningColor.Println("No training metadata recorded")
		return
	}
	printSection("Training")
	printField("Trained", meta.TrainedAt.Format(time.RFC3339))
	printField("Cutoff", meta.CutoffDate.Format("2006-01-02"))
	printField("Dataset size", fmt.Sprintf("%d", meta.DatasetSize))
	printField("MAE", fmt.Sprintf("%.4f", meta.MAE))
	printField("RMSE", fmt.Sprintf("%.4f", meta.RMSE))
	printField("R2", fmt.Sprintf("%.4f", meta.R2))
}

// printSection prints a section header.
func printSection(title string) {
	infoColor.Printf("%s:\n", title)
}

// printField prints a labeled field with consistent indentation.
func printField(label, value string) {
	fmt.Printf("  %-18s %s\n", label+":", value)
}

// shortID truncates a uuid or hash for table display.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// formatTimeSince renders a timestamp as a human-readable age.
func formatTimeSince(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
