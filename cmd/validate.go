package cmd

import (
	"fmt"
	"os"

	"adpulse/bootstrap"
	"adpulse/config"
	"adpulse/contract"
	"adpulse/core"
	"adpulse/ingest"
	"adpulse/pipeline"

	"github.com/spf13/cobra"
)

// newValidateCmd creates the 'validate' subcommand.
func newValidateCmd() *cobra.Command {
	var inputPath string

	cmd := &cobra.Command{
		Use:   "validate <client-id>",
		Short: "Validate a client's configuration, and optionally an export",
		Long: `Load and schema-check a client's declarative documents (contract,
feature spec, rule set, action table). With --input, also run the data
contract against an export file without executing the pipeline.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			clientID := args[0]

			_, sugar, err := bootstrap.InitLogger("warn", false)
			if err != nil {
				return err
			}
			cfg, err := bootstrap.InitConfig(sugar)
			if err != nil {
				return err
			}

			cc, err := config.LoadClientConfig(cfg.DataPaths.ClientsDir, clientID)
			if err != nil {
				return err
			}
			assets, err := pipeline.LoadClientAssets(cc)
			if err != nil {
				return err
			}

			if !quiet && !outputJSON {
				successColor.Printf("✓ Client %s configuration is valid\n", clientID)
				printField("Contract", assets.Contract.Name)
				printField("Feature spec", fmt.Sprintf("%s (%d features)", assets.Spec.Name, len(assets.Spec.Features)))
				printField("Rule set", fmt.Sprintf("%s (%d rules)", assets.Rules.Name, len(assets.Rules.Rules)))
				printField("Action table", fmt.Sprintf("%s (%d actions)", assets.Actions.Name, len(assets.Actions.Actions)))
			}

			if inputPath == "" {
				if outputJSON {
					return outputAsJSON(map[string]interface{}{"client_id": clientID, "valid": true})
				}
				return nil
			}

			f, err := os.Open(inputPath)
			if err != nil {
				return fmt.Errorf("failed to open export %s: %w", inputPath, err)
			}
			defer f.Close()

			records, err := ingest.ParseExport(f, clientID)
			if err != nil {
				return err
			}
			result := contract.Validate(records, assets.Contract)

			if outputJSON {
				return outputAsJSON(map[string]interface{}{
					"client_id":   clientID,
					"valid":       result.Passed,
					"rows":        len(records),
					"violations":  result.Violations,
					"quarantined": len(result.Quarantined),
				})
			}

			renderValidationResult(result, len(records))
			if !result.Passed {
				return fmt.Errorf("export failed contract validation")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&inputPath, "input", "", "Export CSV to validate against the contract")
	return cmd
}

// renderValidationResult displays the contract check verdict.
func renderValidationResult(result *contract.Result, rows int) {
	if result.Passed {
		successColor.Printf("✓ Export passed contract validation (%d rows)\n", rows)
	} else {
		errorColor.Printf("✗ Export failed contract validation (%d rows)\n", rows)
	}

	if len(result.Violations) == 0 {
		return
	}

	fmt.Println()
	printSection("Violations")
	for _, v := range result.Violations {
		row := "dataset"
		if v.Row >= 0 {
			row = fmt.Sprintf("row %d", v.Row)
		}
		if v.Class == core.ClassFatal {
			errorColor.Printf("  FATAL %s %s/%s: %s\n", row, v.Field, v.Rule, v.Detail)
		} else {
			warningColor.Printf("  WARN  %s %s/%s: %s\n", row, v.Field, v.Rule, v.Detail)
		}
	}
	if len(result.Quarantined) > 0 {
		fmt.Printf("\n%d row(s) would be quarantined\n", len(result.Quarantined))
	}
}
