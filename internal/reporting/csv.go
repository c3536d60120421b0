// internal/reporting/csv.go
package reporting

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/xkilldash9x/formpilot/internal/formfill"
)

var csvHeader = []string{"run_id", "index", "identifier", "reference", "status", "error", "session_id", "started_at", "finished_at"}

// CSVReporter writes one row per target under a single header.
type CSVReporter struct {
	writer io.WriteCloser
	csv    *csv.Writer
	header bool
}

func NewCSVReporter(w io.WriteCloser) *CSVReporter {
	return &CSVReporter{writer: w, csv: csv.NewWriter(w)}
}

func csvTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func (r *CSVReporter) Write(result *formfill.BatchResult) error {
	if result == nil {
		return errors.New("nil batch result")
	}
	if !r.header {
		if err := r.csv.Write(csvHeader); err != nil {
			return fmt.Errorf("failed to write csv header: %w", err)
		}
		r.header = true
	}
	for _, t := range result.Targets {
		row := []string{
			result.RunID,
			strconv.Itoa(t.Target.Index),
			t.Target.Identifier,
			t.Target.Reference,
			string(t.Status),
			errorText(t.Err),
			t.SessionID,
			csvTime(t.StartedAt),
			csvTime(t.FinishedAt),
		}
		if err := r.csv.Write(row); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	r.csv.Flush()
	return r.csv.Error()
}

func (r *CSVReporter) Close() error {
	r.csv.Flush()
	return errors.Join(r.csv.Error(), r.writer.Close())
}
