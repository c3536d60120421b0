// internal/reporting/reporter.go
package reporting

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/andybalholm/brotli"

	"github.com/xkilldash9x/formpilot/internal/formfill"
)

// Supported report formats.
const (
	FormatJSON  = "json"
	FormatJUnit = "junit"
	FormatCSV   = "csv"
)

// Reporter defines the interface for writing batch results to an output.
type Reporter interface {
	// Write renders one batch result.
	Write(result *formfill.BatchResult) error
	// Close finalizes the report and closes any underlying resources (e.g., file handles).
	Close() error
}

// nopWriteCloser wraps an io.Writer and provides a no-op Close method.
type nopWriteCloser struct {
	io.Writer
}

// Close does nothing; stdout stays open for the rest of the command.
func (nwc *nopWriteCloser) Close() error {
	return nil
}

// brotliFile flushes the compressor before closing the file beneath it.
type brotliFile struct {
	*brotli.Writer
	file io.Closer
}

func (b *brotliFile) Close() error {
	return errors.Join(b.Writer.Close(), b.file.Close())
}

// New creates a new reporter based on the specified format and output path.
// A path ending in ".br" is brotli-compressed.
func New(format, outputPath string) (Reporter, error) {
	var writer io.WriteCloser
	isStdOut := outputPath == "" || outputPath == "stdout"

	// Reject the format before creating the file so a typo leaves no empty file behind.
	switch format {
	case FormatJSON, FormatJUnit, FormatCSV:
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}

	if isStdOut {
		// Wrap Stdout so Close() is a no-op.
		writer = &nopWriteCloser{os.Stdout}
	} else {
		f, err := os.Create(outputPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create output file %s: %w", outputPath, err)
		}
		writer = f
		if strings.HasSuffix(outputPath, ".br") {
			writer = &brotliFile{Writer: brotli.NewWriterLevel(f, brotli.DefaultCompression), file: f}
		}
	}

	return NewWriter(format, writer)
}

// NewWriter creates a reporter that takes ownership of w.
func NewWriter(format string, w io.WriteCloser) (Reporter, error) {
	switch format {
	case FormatJSON:
		return NewJSONReporter(w), nil
	case FormatJUnit:
		return NewJUnitReporter(w), nil
	case FormatCSV:
		return NewCSVReporter(w), nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}

// errorText is the message stored for a failed target.
func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// duration is end-start, or zero when either bound is missing. Skipped
// targets never start.
func duration(start, end time.Time) time.Duration {
	if start.IsZero() || end.IsZero() || end.Before(start) {
		return 0
	}
	return end.Sub(start)
}
