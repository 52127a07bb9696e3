package cmd

import (
	"context"
	"fmt"
	"time"

	"adpulse/bootstrap"
	"adpulse/core"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"
)

// newRunCmd creates the 'run' subcommand.
func newRunCmd() *cobra.Command {
	var (
		clientID  string
		inputPath string
		asOfStr   string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute one refresh run for a client",
		Long: `Execute a full pipeline run: ingest the export, validate, derive
features, score, evaluate alert rules and publish the artifact tables. The
as-of date defaults to yesterday (UTC); the export must not contain rows
after it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if clientID == "" {
				return fmt.Errorf("client id is required (use --client)")
			}
			if inputPath == "" {
				return fmt.Errorf("input export path is required (use --input)")
			}

			asOf, err := resolveAsOf(asOfStr)
			if err != nil {
				return err
			}

			ctx := context.Background()
			app, err := bootstrap.NewApp(ctx)
			if err != nil {
				return fmt.Errorf("failed to initialize application: %w", err)
			}
			defer app.Shutdown()

			var s *spinner.Spinner
			if !outputJSON && !quiet {
				s = spinner.New(spinner.CharSets[14], 100*time.Millisecond)
				s.Suffix = fmt.Sprintf(" Running %s refresh for %s...", asOf.Format("2006-01-02"), clientID)
				s.Start()
			}

			meta, err := app.RunClient(ctx, clientID, inputPath, asOf)

			if s != nil {
				s.Stop()
			}

			if err != nil {
				if meta != nil && !quiet && !outputJSON {
					errorColor.Printf("✗ Run %s failed at %s\n", meta.RunID, meta.FailedStage)
					if meta.Diagnostic != "" {
						fmt.Printf("  %s\n", meta.Diagnostic)
					}
				}
				return err
			}

			if outputJSON {
				return outputAsJSON(meta)
			}
			if !quiet {
				renderRunSummary(meta)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&clientID, "client", "", "Client id (matches <clients_dir>/<id>.yaml)")
	cmd.Flags().StringVar(&inputPath, "input", "", "Path to the raw export CSV")
	cmd.Flags().StringVar(&asOfStr, "as-of", "", "Run as-of date, YYYY-MM-DD (default: yesterday UTC)")

	return cmd
}

// resolveAsOf parses the as-of flag, defaulting to yesterday in UTC. The
// default is yesterday rather than today so a morning run never treats the
// partial current day as observed history.
func resolveAsOf(s string) (time.Time, error) {
	if s == "" {
		now := time.Now().UTC()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1), nil
	}
	asOf, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --as-of date %q (want YYYY-MM-DD): %w", s, err)
	}
	return asOf, nil
}

// renderRunSummary displays the outcome of a published run.
func renderRunSummary(meta *core.RunMetadata) {
	successColor.Printf("✓ Run %s published\n", meta.RunID)
	fmt.Println()

	printSection("Run")
	printField("Client", meta.ClientID)
	printField("As-of", meta.AsOf.Format("2006-01-02"))
	printField("Snapshot", shortID(meta.InputSnapshotID))
	printField("Duration", meta.FinishedAt.Sub(meta.StartedAt).Round(time.Millisecond).String())
	fmt.Println()

	printSection("Rows")
	printField("Ingested", fmt.Sprintf("%d", meta.RowCounts[string(core.StateIngested)]))
	printField("Cleaned", fmt.Sprintf("%d", meta.RowCounts[string(core.StateValidated)]))
	printField("Quarantined", fmt.Sprintf("%d", meta.QuarantinedRows))
	printField("Incomplete", fmt.Sprintf("%d", meta.IncompleteRows))
	printField("Predictions", fmt.Sprintf("%d", meta.RowCounts[string(core.StateScored)]))
	printField("Alerts", fmt.Sprintf("%d", meta.RowCounts[string(core.StateAlerted)]))
	printField("Recommendations", fmt.Sprintf("%d", meta.RowCounts[string(core.StateRecommended)]))
	fmt.Println()

	if meta.WarnCount > 0 {
		warningColor.Printf("  %d contract warning(s); quarantined rows are excluded from the published tables\n", meta.WarnCount)
	}
	if len(meta.PredictionGaps) > 0 {
		warningColor.Printf("  %d prediction gap(s):\n", len(meta.PredictionGaps))
		for _, gap := range meta.PredictionGaps {
			fmt.Printf("    - %s %s: %s\n", gap.EntityID, gap.Metric, gap.Reason)
		}
	}
}
