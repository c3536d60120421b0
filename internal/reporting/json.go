// internal/reporting/json.go
package reporting

import (
	"errors"
	"fmt"
	"io"
	"time"

	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/formpilot/internal/formfill"
)

// Summary counts target outcomes.
type Summary struct {
	Total     int `json:"total"`
	Submitted int `json:"submitted"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// TargetReport is one target in the JSON document.
type TargetReport struct {
	Index      int        `json:"index"`
	Identifier string     `json:"identifier"`
	Reference  string     `json:"reference,omitempty"`
	Status     string     `json:"status"`
	Error      string     `json:"error,omitempty"`
	SessionID  string     `json:"session_id,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	DurationMS int64      `json:"duration_ms"`
}

// BatchReport is the JSON document written for one batch.
type BatchReport struct {
	RunID      string         `json:"run_id"`
	Status     string         `json:"status"`
	Error      string         `json:"error,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Summary    Summary        `json:"summary"`
	Targets    []TargetReport `json:"targets"`
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	utc := t.UTC()
	return &utc
}

// NewBatchReport flattens result into its report document.
func NewBatchReport(result *formfill.BatchResult) BatchReport {
	submitted, failed, skipped := result.Counts()
	report := BatchReport{
		RunID:      result.RunID,
		Status:     string(result.Status),
		Error:      errorText(result.Err),
		StartedAt:  result.StartedAt.UTC(),
		FinishedAt: result.FinishedAt.UTC(),
		Summary:    Summary{Total: len(result.Targets), Submitted: submitted, Failed: failed, Skipped: skipped},
		Targets:    make([]TargetReport, 0, len(result.Targets)),
	}
	for _, t := range result.Targets {
		report.Targets = append(report.Targets, TargetReport{
			Index:      t.Target.Index,
			Identifier: t.Target.Identifier,
			Reference:  t.Target.Reference,
			Status:     string(t.Status),
			Error:      errorText(t.Err),
			SessionID:  t.SessionID,
			StartedAt:  optionalTime(t.StartedAt),
			FinishedAt: optionalTime(t.FinishedAt),
			DurationMS: duration(t.StartedAt, t.FinishedAt).Milliseconds(),
		})
	}
	return report
}

// JSONReporter writes one indented JSON document per batch.
type JSONReporter struct {
	writer io.WriteCloser
}

func NewJSONReporter(w io.WriteCloser) *JSONReporter {
	return &JSONReporter{writer: w}
}

func (r *JSONReporter) Write(result *formfill.BatchResult) error {
	if result == nil {
		return errors.New("nil batch result")
	}
	enc := json.ConfigCompatibleWithStandardLibrary.NewEncoder(r.writer)
	enc.SetIndent("", "  ")
	if err := enc.Encode(NewBatchReport(result)); err != nil {
		return fmt.Errorf("failed to encode json report: %w", err)
	}
	return nil
}

func (r *JSONReporter) Close() error {
	return r.writer.Close()
}
