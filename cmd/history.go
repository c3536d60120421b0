// File: cmd/history.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/internal/config"
	"github.com/xkilldash9x/formpilot/internal/observability"
	"github.com/xkilldash9x/formpilot/internal/reporting"
)

// errLedgerDisabled is returned by history when no database is configured.
var errLedgerDisabled = errors.New("submission ledger is disabled (set database.driver)")

func newHistoryCmd(provider ledgerProvider) *cobra.Command {
	var runID string
	var limit int

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded batch runs, or the targets of one run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			return runHistory(ctx, observability.GetLogger(), cfg, provider, runID, limit, cmd.OutOrStdout())
		},
	}

	historyCmd.Flags().StringVar(&runID, "run", "", "Show the targets of this run ID")
	historyCmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to list")
	return historyCmd
}

func runHistory(ctx context.Context, logger *zap.Logger, cfg config.Interface, provider ledgerProvider, runID string, limit int, out io.Writer) error {
	if limit <= 0 {
		return fmt.Errorf("--limit must be positive, got %d", limit)
	}
	ledger, cleanup, err := provider.Create(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}
	if ledger == nil {
		return errLedgerDisabled
	}
	if cleanup != nil {
		defer cleanup()
	}

	t := reporting.NewTable(out)
	if runID != "" {
		targets, err := ledger.TargetsForRun(ctx, runID)
		if err != nil {
			return err
		}
		if len(targets) == 0 {
			return fmt.Errorf("no targets recorded for run %s", runID)
		}
		t.SetTitle("Run " + runID)
		t.AppendHeader(table.Row{"#", "Identifier", "Reference", "Status", "Finished", "Error"})
		for _, r := range targets {
			t.AppendRow(table.Row{r.Index, r.Identifier, r.Reference, r.Status, formatTime(r.FinishedAt), r.Error})
		}
		t.Render()
		return nil
	}

	runs, err := ledger.RecentRuns(ctx, limit)
	if err != nil {
		return err
	}
	logger.Debug("Loaded run history.", zap.Int("runs", len(runs)))
	t.AppendHeader(table.Row{"Run", "Status", "Finished", "Submitted", "Failed", "Skipped"})
	for _, r := range runs {
		t.AppendRow(table.Row{r.RunID, r.Status, formatTime(r.FinishedAt), r.Submitted, r.Failed, r.Skipped})
	}
	t.Render()
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
