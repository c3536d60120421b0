// File: cmd/logs_test.go
package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleLog = `{"level":"info","msg":"Starting form batch."}
{"level":"debug","msg":"Applied form step."}
{"level":"warn","msg":"Form submission failed."}
goroutine 1 [running]:
{"level":"error","msg":"Form batch aborted."}
`

func writeLog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "formpilot.log")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRunLogs_Tail(t *testing.T) {
	path := writeLog(t, sampleLog)

	tests := []struct {
		name  string
		lines int
		level string
		want  []string
	}{
		{
			name:  "all lines",
			lines: 0,
			want: []string{
				`{"level":"info","msg":"Starting form batch."}`,
				`{"level":"debug","msg":"Applied form step."}`,
				`{"level":"warn","msg":"Form submission failed."}`,
				`goroutine 1 [running]:`,
				`{"level":"error","msg":"Form batch aborted."}`,
			},
		},
		{
			name:  "last two",
			lines: 2,
			want: []string{
				`goroutine 1 [running]:`,
				`{"level":"error","msg":"Form batch aborted."}`,
			},
		},
		{
			name:  "warn and above keeps non json lines",
			lines: 0,
			level: "warn",
			want: []string{
				`{"level":"warn","msg":"Form submission failed."}`,
				`goroutine 1 [running]:`,
				`{"level":"error","msg":"Form batch aborted."}`,
			},
		},
		{
			name:  "level filter applies before the line limit",
			lines: 1,
			level: "info",
			want:  []string{`{"level":"error","msg":"Form batch aborted."}`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			err := runLogs(context.Background(), logsOptions{file: path, lines: tt.lines, level: tt.level}, &out)
			require.NoError(t, err)
			assert.Equal(t, tt.want, strings.Split(strings.TrimRight(out.String(), "\n"), "\n"))
		})
	}
}

func TestRunLogs_Errors(t *testing.T) {
	err := runLogs(context.Background(), logsOptions{file: filepath.Join(t.TempDir(), "missing.log")}, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open log file")

	path := writeLog(t, sampleLog)
	err = runLogs(context.Background(), logsOptions{file: path, level: "loud"}, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid --level")
}

func appendLog(t *testing.T, path, content string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(content)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func TestRunLogs_Follow(t *testing.T) {
	path := writeLog(t, `{"level":"info","msg":"old"}`+"\n")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := &syncBuffer{}
	done := make(chan error, 1)
	go func() {
		done <- runLogs(ctx, logsOptions{file: path, follow: true, lines: 10}, out)
	}()

	require.Eventually(t, func() bool { return strings.Contains(out.String(), "old") }, 5*time.Second, 20*time.Millisecond)

	// Appended immediately: the follower may not have opened the file yet and
	// must still pick the line up.
	appendLog(t, path, `{"level":"error","msg":"new"}`+"\n")

	require.Eventually(t, func() bool { return strings.Contains(out.String(), `"new"`) }, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("follow did not stop after cancellation")
	}
	assert.Equal(t, 1, strings.Count(out.String(), "old"), "existing lines are printed once")
	assert.Equal(t, 1, strings.Count(out.String(), `"new"`))
}

func TestRunLogs_FollowPartialLine(t *testing.T) {
	path := writeLog(t, "first\nhalf a li")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := &syncBuffer{}
	done := make(chan error, 1)
	go func() {
		done <- runLogs(ctx, logsOptions{file: path, follow: true}, out)
	}()

	appendLog(t, path, "ne\n")
	require.Eventually(t, func() bool { return strings.Contains(out.String(), "half a line\n") }, 5*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, "first\nhalf a line\n", out.String(), "the unfinished line is printed once, whole")
}

func TestPrintTail_Offset(t *testing.T) {
	path := writeLog(t, "one\ntwo\nthr")

	var out bytes.Buffer
	offset, err := printTail(path, 0, levelFilter{}, true, &out)
	require.NoError(t, err)
	assert.Equal(t, int64(len("one\ntwo\n")), offset)
	assert.Equal(t, "one\ntwo\nthr\n", out.String())

	out.Reset()
	offset, err = printTail(path, 0, levelFilter{}, false, &out)
	require.NoError(t, err)
	assert.Equal(t, int64(8), offset)
	assert.Equal(t, "one\ntwo\n", out.String())
}

func TestLogsCmd_UsesConfiguredFile(t *testing.T) {
	resetForTest(t)
	logPath := writeLog(t, sampleLog)
	cfgPath := createTempConfig(t, testConfigYAML)

	// log_file in the config is blank, so --file is required.
	_, err := executeCommand(t, testDeps(nil, nil, nil), "--config", cfgPath, "logs")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no log file configured")

	out, err := executeCommand(t, testDeps(nil, nil, nil), "--config", cfgPath, "logs", "--file", logPath, "-n", "1")
	require.NoError(t, err)
	assert.Equal(t, `{"level":"error","msg":"Form batch aborted."}`+"\n", out)
}
