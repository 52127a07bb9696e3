package cmd

import (
	"fmt"

	"adpulse/bootstrap"
	"adpulse/core"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newRunsCmd creates the 'runs' subcommand group.
func newRunsCmd() *cobra.Command {
	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect the run log",
		Long:  "Query the append-only run log: recent runs, one run's detail, or its full transition history.",
	}

	runsCmd.AddCommand(newRunsListCmd())
	runsCmd.AddCommand(newRunsShowCmd())
	runsCmd.AddCommand(newRunsHistoryCmd())
	return runsCmd
}

// openRunLog opens the run-log database read side without booting the whole
// application; listing runs must work even when ClickHouse is down.
func openRunLog() (*storageHandle, error) {
	logger, sugar, err := bootstrap.InitLogger("warn", false)
	if err != nil {
		return nil, err
	}
	cfg, err := bootstrap.InitConfig(sugar)
	if err != nil {
		return nil, err
	}
	sqlite, err := bootstrap.InitSQLite(cfg.DataPaths.SQLitePath, sugar)
	if err != nil {
		return nil, err
	}
	return &storageHandle{sqlite: sqlite, logger: logger}, nil
}

type storageHandle struct {
	sqlite runLogReader
	logger *zap.Logger
}

type runLogReader interface {
	ListRuns(clientID string, limit int) ([]*core.RunMetadata, error)
	GetRun(runID string) (*core.RunMetadata, error)
	TransitionHistory(runID string) ([]core.RunState, error)
	Close() error
}

func (h *storageHandle) close() {
	h.sqlite.Close()
	h.logger.Sync()
}

func newRunsListCmd() *cobra.Command {
	var (
		clientID string
		limit    int
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List recent runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := openRunLog()
			if err != nil {
				return err
			}
			defer h.close()

			runs, err := h.sqlite.ListRuns(clientID, limit)
			if err != nil {
				return fmt.Errorf("failed to list runs: %w", err)
			}

			if outputJSON {
				return outputAsJSON(runs)
			}
			renderRunsTable(runs)
			return nil
		},
	}

	cmd.Flags().StringVar(&clientID, "client", "", "Filter by client id")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs to show")
	return cmd
}

func newRunsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one run's metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := openRunLog()
			if err != nil {
				return err
			}
			defer h.close()

			meta, err := h.sqlite.GetRun(args[0])
			if err != nil {
				return fmt.Errorf("failed to get run: %w", err)
			}

			if outputJSON {
				return outputAsJSON(meta)
			}
			renderRunDetails(meta)
			return nil
		},
	}
}

func newRunsHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <run-id>",
		Short: "Show a run's state transition history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := openRunLog()
			if err != nil {
				return err
			}
			defer h.close()

			history, err := h.sqlite.TransitionHistory(args[0])
			if err != nil {
				return fmt.Errorf("failed to load transition history: %w", err)
			}
			if len(history) == 0 {
				return fmt.Errorf("run %s not found", args[0])
			}

			if outputJSON {
				return outputAsJSON(history)
			}
			for i, state := range history {
				if i > 0 {
					fmt.Print(" -> ")
				}
				if state == core.StateFailed || state == core.StateCancelled {
					errorColor.Print(string(state))
				} else {
					fmt.Print(string(state))
				}
			}
			fmt.Println()
			return nil
		},
	}
}
