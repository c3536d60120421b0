package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/xkilldash9x/formpilot/internal/formfill"
)

//go:embed schema/sqlite.sql
var sqliteSchema string

var placeholder = regexp.MustCompile(`\$\d+`)

// rebind turns the numbered placeholders shared with PostgreSQL into the
// positional form sqlite expects. Every query binds its arguments in order.
func rebind(query string) string {
	return placeholder.ReplaceAllString(query, "?")
}

// SQLiteLedger stores outcomes in a local sqlite file.
type SQLiteLedger struct {
	db  *sql.DB
	log *zap.Logger
}

// OpenSQLite opens (creating if needed) the ledger file at path. ":memory:"
// gives a throwaway ledger.
func OpenSQLite(ctx context.Context, path string, logger *zap.Logger) (*SQLiteLedger, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create ledger directory: %w", err)
		}
		dsn = "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite ledger: %w", err)
	}
	// A single connection keeps ":memory:" databases alive and serializes writers.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SQLiteLedger{db: db, log: logger.Named("store")}, nil
}

func toMicros(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMicro()
}

func fromMicros(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.UnixMicro(v).UTC()
}

func (s *SQLiteLedger) RecordTarget(ctx context.Context, runID string, tr formfill.TargetResult) error {
	r := targetRecord(runID, tr)
	_, err := s.db.ExecContext(ctx, rebind(sqlUpsertTarget),
		r.RunID, r.Index, r.Identifier, r.Reference, r.Status, r.Error, r.SessionID,
		toMicros(r.StartedAt), toMicros(r.FinishedAt))
	if err != nil {
		return fmt.Errorf("failed to record target %s: %w", r.Identifier, err)
	}
	return nil
}

func (s *SQLiteLedger) RecordBatch(ctx context.Context, result *formfill.BatchResult) error {
	r := runSummary(result)
	_, err := s.db.ExecContext(ctx, rebind(sqlUpsertRun),
		r.RunID, r.Status, r.Error, toMicros(r.StartedAt), toMicros(r.FinishedAt), r.Submitted, r.Failed, r.Skipped)
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", r.RunID, err)
	}
	s.log.Debug("Recorded batch outcome.", zap.String("run_id", r.RunID), zap.String("status", r.Status))
	return nil
}

func (s *SQLiteLedger) RecentRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	rows, err := s.db.QueryContext(ctx, rebind(sqlRecentRuns), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var (
			r                 RunSummary
			started, finished int64
		)
		if err := rows.Scan(&r.RunID, &r.Status, &r.Error, &started, &finished, &r.Submitted, &r.Failed, &r.Skipped); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		r.StartedAt, r.FinishedAt = fromMicros(started), fromMicros(finished)
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return runs, nil
}

func (s *SQLiteLedger) TargetsForRun(ctx context.Context, runID string) ([]TargetRecord, error) {
	rows, err := s.db.QueryContext(ctx, rebind(sqlTargetsForRun), runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query targets: %w", err)
	}
	defer rows.Close()

	var targets []TargetRecord
	for rows.Next() {
		var (
			r                 TargetRecord
			started, finished int64
		)
		err := rows.Scan(&r.RunID, &r.Index, &r.Identifier, &r.Reference, &r.Status, &r.Error,
			&r.SessionID, &started, &finished)
		if err != nil {
			return nil, fmt.Errorf("failed to scan target row: %w", err)
		}
		r.StartedAt, r.FinishedAt = fromMicros(started), fromMicros(finished)
		targets = append(targets, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return targets, nil
}

func (s *SQLiteLedger) Close() error {
	return s.db.Close()
}
