package store

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/internal/formfill"
)

//go:embed schema/postgres.sql
var postgresSchema string

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close()
}

// PostgresLedger stores outcomes in PostgreSQL.
type PostgresLedger struct {
	pool DBPool
	log  *zap.Logger
}

// OpenPostgres dials url and prepares the schema.
func OpenPostgres(ctx context.Context, url string, logger *zap.Logger) (*PostgresLedger, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	ledger, err := NewPostgresLedger(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	if err := ledger.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return ledger, nil
}

// NewPostgresLedger wraps an existing pool and verifies the connection.
func NewPostgresLedger(ctx context.Context, pool DBPool, logger *zap.Logger) (*PostgresLedger, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &PostgresLedger{pool: pool, log: logger.Named("store")}, nil
}

// Migrate creates the ledger tables if they are missing.
func (s *PostgresLedger) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

func (s *PostgresLedger) RecordTarget(ctx context.Context, runID string, tr formfill.TargetResult) error {
	r := targetRecord(runID, tr)
	_, err := s.pool.Exec(ctx, sqlUpsertTarget,
		r.RunID, r.Index, r.Identifier, r.Reference, r.Status, r.Error, r.SessionID, r.StartedAt, r.FinishedAt)
	if err != nil {
		return fmt.Errorf("failed to record target %s: %w", r.Identifier, err)
	}
	return nil
}

func (s *PostgresLedger) RecordBatch(ctx context.Context, result *formfill.BatchResult) error {
	r := runSummary(result)
	_, err := s.pool.Exec(ctx, sqlUpsertRun,
		r.RunID, r.Status, r.Error, r.StartedAt, r.FinishedAt, r.Submitted, r.Failed, r.Skipped)
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", r.RunID, err)
	}
	s.log.Debug("Recorded batch outcome.", zap.String("run_id", r.RunID), zap.String("status", r.Status))
	return nil
}

func (s *PostgresLedger) RecentRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	rows, err := s.pool.Query(ctx, sqlRecentRuns, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var r RunSummary
		if err := rows.Scan(&r.RunID, &r.Status, &r.Error, &r.StartedAt, &r.FinishedAt, &r.Submitted, &r.Failed, &r.Skipped); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return runs, nil
}

func (s *PostgresLedger) TargetsForRun(ctx context.Context, runID string) ([]TargetRecord, error) {
	rows, err := s.pool.Query(ctx, sqlTargetsForRun, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query targets: %w", err)
	}
	defer rows.Close()

	var targets []TargetRecord
	for rows.Next() {
		var r TargetRecord
		err := rows.Scan(&r.RunID, &r.Index, &r.Identifier, &r.Reference, &r.Status, &r.Error,
			&r.SessionID, &r.StartedAt, &r.FinishedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan target row: %w", err)
		}
		targets = append(targets, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return targets, nil
}

func (s *PostgresLedger) Close() error {
	s.pool.Close()
	return nil
}
