// File: cmd/run.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/internal/config"
	"github.com/xkilldash9x/formpilot/internal/formfill"
	"github.com/xkilldash9x/formpilot/internal/observability"
	"github.com/xkilldash9x/formpilot/internal/reporting"
)

// ErrBatchFailed is returned by `run --fail-on-error` when the batch aborted.
var ErrBatchFailed = errors.New("form batch failed")

type runOptions struct {
	ids          []string
	reference    string
	policy       string
	driver       string
	headed       bool
	dryRun       bool
	reportPath   string
	reportFormat string
	table        bool
	failOnError  bool
}

func newRunCmd(d deps) *cobra.Command {
	var opts runOptions

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Submit the form once for every configured identifier",
		Long: `Opens a fresh browser per identifier, fills and submits the configured form,
then sends one notification describing the batch outcome.

The exit status is 0 whether the batch succeeds or fails unless --fail-on-error
is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			applyRunFlagOverrides(cmd, cfg, &opts)
			return runBatch(ctx, observability.GetLogger(), cfg, opts, d, cmd.OutOrStdout())
		},
	}

	runCmd.Flags().StringSliceVar(&opts.ids, "id", nil, "Identifier to submit (repeatable); replaces batch.targets")
	runCmd.Flags().StringVar(&opts.reference, "reference", "", "Reference label shared by every target")
	runCmd.Flags().StringVar(&opts.policy, "policy", "", "Failure policy: abort or continue")
	runCmd.Flags().StringVar(&opts.driver, "driver", "", "Browser driver: chromedp or rod")
	runCmd.Flags().BoolVar(&opts.headed, "headed", false, "Show the browser window")
	runCmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Print the plan and targets without opening a browser")
	runCmd.Flags().StringVarP(&opts.reportPath, "report", "o", "", "Write a batch report to this path (.br compresses)")
	runCmd.Flags().StringVarP(&opts.reportFormat, "report-format", "f", "", "Report format: json, junit or csv")
	runCmd.Flags().BoolVar(&opts.table, "table", false, "Print the per-target outcome table")
	runCmd.Flags().BoolVar(&opts.failOnError, "fail-on-error", false, "Exit non-zero when the batch fails")

	return runCmd
}

// applyRunFlagOverrides copies explicitly set flags onto cfg.
func applyRunFlagOverrides(cmd *cobra.Command, cfg config.Interface, opts *runOptions) {
	if cmd.Flags().Changed("id") {
		cfg.SetBatchTargets(opts.ids)
	}
	if cmd.Flags().Changed("reference") {
		cfg.SetBatchReference(opts.reference)
	}
	if cmd.Flags().Changed("policy") {
		cfg.SetBatchPolicy(opts.policy)
	}
	if cmd.Flags().Changed("driver") {
		cfg.SetBrowserDriver(opts.driver)
	}
	if cmd.Flags().Changed("headed") {
		cfg.SetBrowserHeadless(!opts.headed)
	}
	if cmd.Flags().Changed("report") {
		cfg.SetReportPath(opts.reportPath)
	}
	if cmd.Flags().Changed("report-format") {
		cfg.SetReportFormat(opts.reportFormat)
	}
}

// runBatch contains the core, testable logic of the run command.
func runBatch(ctx context.Context, logger *zap.Logger, cfg config.Interface, opts runOptions, d deps, out io.Writer) error {
	batchCfg := cfg.Batch()
	if err := batchCfg.Validate(); err != nil {
		return fmt.Errorf("invalid batch flags: %w", err)
	}
	plan, err := cfg.Form().Plan()
	if err != nil {
		return err
	}
	targets := batchCfg.SubmissionTargets()
	if len(targets) == 0 {
		return fmt.Errorf("%w: set batch.targets or pass --id", formfill.ErrNoTargets)
	}

	if opts.dryRun {
		renderPlan(out, plan)
		fmt.Fprintf(out, "Targets (%d, policy %s): %s\n", len(targets), batchCfg.FailurePolicy(), joinIDs(targets))
		return nil
	}

	factory, err := d.newFactory(cfg.Browser(), logger)
	if err != nil {
		return fmt.Errorf("failed to create browser factory: %w", err)
	}

	runnerOpts := []formfill.Option{
		formfill.WithPolicy(batchCfg.FailurePolicy()),
		formfill.WithMinInterval(batchCfg.MinInterval),
	}

	ledger, cleanup, err := d.ledgers.Create(ctx, cfg)
	if err != nil {
		// The ledger is a record, not a prerequisite.
		logger.Warn("Submission ledger unavailable; continuing without it.", zap.Error(err))
	} else if ledger != nil {
		if cleanup != nil {
			defer cleanup()
		}
		runnerOpts = append(runnerOpts, formfill.WithRecorder(ledger))
	}
	runnerOpts = append(runnerOpts, d.runnerOpts...)

	runner := formfill.NewRunner(factory, logger, runnerOpts...)
	result, err := runner.Run(ctx, targets, plan)
	if err != nil {
		return err
	}

	notifyCfg := cfg.Notify()
	sink, err := d.newSink(notifyCfg, logger)
	if err != nil {
		logger.Error("Could not build notification sinks.", zap.Error(err))
	} else {
		// Deliver even if the batch was interrupted.
		notifyCtx, cancel := detachedTimeout(ctx, notifyCfg.Timeout)
		if err := notifyCfg.Messages().Notify(notifyCtx, result, sink); err != nil {
			logger.Warn("Notification was not delivered.", zap.Error(err))
		}
		cancel()
	}

	if reportCfg := cfg.Report(); reportCfg.Path != "" {
		if err := writeReportFile(logger, result, reportCfg.Path, strings.ToLower(reportCfg.Format)); err != nil {
			logger.Error("Failed to write batch report.", zap.Error(err))
		}
	}

	if opts.table {
		reporting.RenderTable(out, result)
	}
	submitted, _, _ := result.Counts()
	fmt.Fprintf(out, "Run %s %s: %d/%d submitted\n", result.RunID, result.Status, submitted, len(targets))

	if !result.Success() && opts.failOnError {
		return fmt.Errorf("%w: %w", ErrBatchFailed, result.Err)
	}
	return nil
}

// writeReportFile handles writing the report to a file using the reporting module.
func writeReportFile(logger *zap.Logger, result *formfill.BatchResult, outputPath, format string) error {
	reporter, err := reporting.New(format, outputPath)
	if err != nil {
		return fmt.Errorf("failed to initialize reporter: %w", err)
	}

	if err := reporter.Write(result); err != nil {
		_ = reporter.Close()
		return fmt.Errorf("failed to write report file: %w", err)
	}
	if err := reporter.Close(); err != nil {
		return fmt.Errorf("failed to finalize report file: %w", err)
	}

	logger.Info("Report successfully written to file", zap.String("path", outputPath), zap.String("format", format))
	return nil
}

func detachedTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	ctx = context.WithoutCancel(ctx)
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func joinIDs(targets []formfill.SubmissionTarget) string {
	ids := make([]string, 0, len(targets))
	for _, t := range targets {
		ids = append(ids, t.Identifier)
	}
	return strings.Join(ids, ", ")
}
