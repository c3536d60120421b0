// internal/store/store.go
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/internal/config"
	"github.com/xkilldash9x/formpilot/internal/formfill"
)

// ErrDisabled is returned by Open when no ledger driver is configured.
var ErrDisabled = errors.New("submission ledger is disabled")

// Ledger persists batch and per-target outcomes.
type Ledger interface {
	// Recorder is what the runner writes through while a batch executes.
	formfill.Recorder
	// RecentRuns lists the newest runs first, at most limit of them.
	RecentRuns(ctx context.Context, limit int) ([]RunSummary, error)
	// TargetsForRun returns a run's targets in submission order.
	TargetsForRun(ctx context.Context, runID string) ([]TargetRecord, error)
	Close() error
}

// RunSummary is one row of the runs table.
type RunSummary struct {
	RunID      string
	Status     string
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
	Submitted  int
	Failed     int
	Skipped    int
}

// TargetRecord is one row of the targets table.
type TargetRecord struct {
	RunID      string
	Index      int
	Identifier string
	Reference  string
	Status     string
	Error      string
	SessionID  string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Open connects to the configured ledger and makes sure its schema exists.
func Open(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (Ledger, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Driver {
	case "":
		// Callers treat this as "run without history", not as a failure.
		return nil, ErrDisabled
	case config.DatabasePostgres:
		return OpenPostgres(ctx, cfg.URL, logger)
	case config.DatabaseSQLite:
		return OpenSQLite(ctx, cfg.Path, logger)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

// errText flattens an error for a TEXT column; nil becomes the empty string.
func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// runSummary converts a finished batch into its runs row. Timestamps are
// stored in UTC by both backends.
func runSummary(result *formfill.BatchResult) RunSummary {
	submitted, failed, skipped := result.Counts()
	return RunSummary{
		RunID:      result.RunID,
		Status:     string(result.Status),
		Error:      errText(result.Err),
		StartedAt:  result.StartedAt.UTC(),
		FinishedAt: result.FinishedAt.UTC(),
		Submitted:  submitted,
		Failed:     failed,
		Skipped:    skipped,
	}
}

func targetRecord(runID string, tr formfill.TargetResult) TargetRecord {
	return TargetRecord{
		RunID:      runID,
		Index:      tr.Target.Index,
		Identifier: tr.Target.Identifier,
		Reference:  tr.Target.Reference,
		Status:     string(tr.Status),
		Error:      errText(tr.Err),
		SessionID:  tr.SessionID,
		StartedAt:  tr.StartedAt.UTC(),
		FinishedAt: tr.FinishedAt.UTC(),
	}
}

// Statements shared by both backends, written with $N placeholders; the
// sqlite ledger rebinds them to ?.
const (
	// Upserts keep a re-recorded run idempotent.
	sqlUpsertTarget = `
        INSERT INTO targets (run_id, idx, identifier, reference, status, error, session_id, started_at, finished_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        ON CONFLICT (run_id, idx) DO UPDATE SET
            status = EXCLUDED.status,
            error = EXCLUDED.error,
            session_id = EXCLUDED.session_id,
            started_at = EXCLUDED.started_at,
            finished_at = EXCLUDED.finished_at;
    `
	// started_at is kept from the first write.
	sqlUpsertRun = `
        INSERT INTO runs (run_id, status, error, started_at, finished_at, submitted, failed, skipped)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        ON CONFLICT (run_id) DO UPDATE SET
            status = EXCLUDED.status,
            error = EXCLUDED.error,
            finished_at = EXCLUDED.finished_at,
            submitted = EXCLUDED.submitted,
            failed = EXCLUDED.failed,
            skipped = EXCLUDED.skipped;
    `
	sqlRecentRuns = `
        SELECT run_id, status, error, started_at, finished_at, submitted, failed, skipped
        FROM runs
        ORDER BY finished_at DESC
        LIMIT $1;
    `
	sqlTargetsForRun = `
        SELECT run_id, idx, identifier, reference, status, error, session_id, started_at, finished_at
        FROM targets
        WHERE run_id = $1
        ORDER BY idx ASC;
    `
)
