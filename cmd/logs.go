// File: cmd/logs.go
package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hpcloud/tail"
	json "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"
)

type logsOptions struct {
	file   string
	follow bool
	lines  int
	level  string
}

func newLogsCmd() *cobra.Command {
	var opts logsOptions

	logsCmd := &cobra.Command{
		Use:   "logs",
		Short: "Print or follow the formpilot log file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.file == "" {
				cfg, err := getConfigFromContext(cmd.Context())
				if err != nil {
					return err
				}
				opts.file = cfg.Logger().LogFile
			}
			if opts.file == "" {
				return fmt.Errorf("no log file configured (logger.log_file)")
			}
			return runLogs(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}

	logsCmd.Flags().StringVar(&opts.file, "file", "", "Log file to read (default logger.log_file)")
	logsCmd.Flags().BoolVarP(&opts.follow, "follow", "F", false, "Keep printing new lines as they are written")
	logsCmd.Flags().IntVarP(&opts.lines, "lines", "n", 50, "Number of trailing lines to print (0 for all)")
	logsCmd.Flags().StringVar(&opts.level, "level", "", "Only show entries at or above this level")
	return logsCmd
}

// levelFilter keeps JSON log lines whose level is at least min. Lines that
// are not JSON log entries (stack traces, partial writes) are always kept.
type levelFilter struct {
	min     zapcore.Level
	enabled bool
}

func newLevelFilter(level string) (levelFilter, error) {
	if level == "" {
		return levelFilter{}, nil
	}
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return levelFilter{}, fmt.Errorf("invalid --level %q: %w", level, err)
	}
	return levelFilter{min: l, enabled: true}, nil
}

func (f levelFilter) keep(line string) bool {
	if !f.enabled {
		return true
	}
	raw := json.Get([]byte(line), "level").ToString()
	if raw == "" {
		return true
	}
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(raw)); err != nil {
		return true
	}
	return l >= f.min
}

func runLogs(ctx context.Context, opts logsOptions, out io.Writer) error {
	filter, err := newLevelFilter(opts.level)
	if err != nil {
		return err
	}
	offset, err := printTail(opts.file, opts.lines, filter, !opts.follow, out)
	if err != nil {
		return err
	}
	if !opts.follow {
		return nil
	}

	// Resume exactly where printTail stopped so nothing written in between
	// is lost.
	t, err := tail.TailFile(opts.file, tail.Config{
		Follow:    true,
		ReOpen:    true,
		MustExist: true,
		Location:  &tail.SeekInfo{Offset: offset, Whence: io.SeekStart},
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return fmt.Errorf("failed to follow log file: %w", err)
	}
	defer func() {
		_ = t.Stop()
		t.Cleanup()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-t.Lines:
			if !ok {
				return t.Err()
			}
			if line.Err != nil {
				return line.Err
			}
			if filter.keep(line.Text) {
				fmt.Fprintln(out, line.Text)
			}
		}
	}
}

// printTail prints the last n matching lines of path; n <= 0 prints all. It
// returns the offset just past the last complete line. A trailing line with no
// newline yet is printed only when partial is set; otherwise it is left for
// the follower.
func printTail(path string, n int, filter levelFilter, partial bool, out io.Writer) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open log file: %w", err)
	}
	defer f.Close()

	var (
		ring   []string
		offset int64
	)
	r := bufio.NewReader(f)
	for {
		raw, err := r.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return 0, fmt.Errorf("failed to read log file: %w", err)
		}
		complete := strings.HasSuffix(raw, "\n")
		if complete {
			offset += int64(len(raw))
		}
		if raw != "" && (complete || partial) {
			line := strings.TrimRight(raw, "\r\n")
			if filter.keep(line) {
				ring = append(ring, line)
				if n > 0 && len(ring) > n {
					ring = ring[1:]
				}
			}
		}
		if err != nil {
			break
		}
	}
	for _, line := range ring {
		fmt.Fprintln(out, line)
	}
	return offset, nil
}
