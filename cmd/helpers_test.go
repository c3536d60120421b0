// File: cmd/helpers_test.go
package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/internal/config"
	"github.com/xkilldash9x/formpilot/internal/formfill"
	"github.com/xkilldash9x/formpilot/internal/store"
)

var testStart = time.Date(2024, time.March, 4, 17, 30, 0, 0, time.UTC)

// newTestConfig returns the default configuration with a small two-step form
// that waits for a readiness locator instead of the settle delay.
func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.NewDefaultConfig()
	cfg.LoggerCfg.LogFile = ""
	cfg.FormCfg = config.FormConfig{
		URL: "https://forms.example.com/attendance",
		Steps: []config.StepConfig{
			{Name: "student id", Action: "type", Locator: "//input", Input: "identifier"},
			{Name: "submit", Action: "click", Locator: "//button"},
		},
		Readiness: config.ReadinessConfig{Locator: "//form", Timeout: time.Second},
	}
	cfg.BatchCfg.Targets = []string{"210072", "210073"}
	cfg.BatchCfg.Reference = "Makai"
	require.NoError(t, cfg.Validate())
	return cfg
}

// createTempConfig writes content to a YAML file that is removed with the test.
func createTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// -- Fake browser --

// fakeFactory hands out sessions that succeed unless the typed identifier is
// listed in fail.
type fakeFactory struct {
	mu      sync.Mutex
	fail    map[string]bool
	created int
	closed  int
}

func newFakeFactory(failIDs ...string) *fakeFactory {
	f := &fakeFactory{fail: map[string]bool{}}
	for _, id := range failIDs {
		f.fail[id] = true
	}
	return f
}

func (f *fakeFactory) NewSession(ctx context.Context) (formfill.BrowserSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created++
	return &fakeSession{factory: f, id: fmt.Sprintf("session-%d", f.created)}, nil
}

func (f *fakeFactory) counts() (created, closed int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.created, f.closed
}

type fakeSession struct {
	factory *fakeFactory
	id      string
}

func (s *fakeSession) ID() string                                 { return s.id }
func (s *fakeSession) Open(ctx context.Context, url string) error { return nil }
func (s *fakeSession) WaitVisible(ctx context.Context, l formfill.Locator, d time.Duration) error {
	return nil
}

func (s *fakeSession) FindAll(ctx context.Context, l formfill.Locator) ([]formfill.Element, error) {
	return []formfill.Element{&fakeElement{factory: s.factory}}, nil
}

func (s *fakeSession) Find(ctx context.Context, l formfill.Locator) (formfill.Element, error) {
	return &fakeElement{factory: s.factory}, nil
}

func (s *fakeSession) PageText(ctx context.Context) (string, error) { return "", nil }

func (s *fakeSession) Close(ctx context.Context) error {
	s.factory.mu.Lock()
	defer s.factory.mu.Unlock()
	s.factory.closed++
	return nil
}

type fakeElement struct {
	factory *fakeFactory
}

func (e *fakeElement) SetText(ctx context.Context, value string) error {
	e.factory.mu.Lock()
	defer e.factory.mu.Unlock()
	if e.factory.fail[value] {
		return errors.New("element detached")
	}
	return nil
}

func (e *fakeElement) Click(ctx context.Context) error { return nil }

// -- Fake notification sink --

type recordingSink struct {
	mu       sync.Mutex
	messages []string
	err      error
}

func (s *recordingSink) Send(ctx context.Context, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, message)
	return s.err
}

func (s *recordingSink) Messages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.messages...)
}

// -- Fake ledger provider --

type stubLedgerProvider struct {
	ledger store.Ledger
	err    error
	calls  int
}

func (p *stubLedgerProvider) Create(ctx context.Context, cfg config.Interface) (store.Ledger, func(), error) {
	p.calls++
	if p.err != nil || p.ledger == nil {
		return nil, nil, p.err
	}
	return p.ledger, func() { _ = p.ledger.Close() }, nil
}

// testDeps wires fakes for every collaborator and pins the run ID and clock.
func testDeps(factory formfill.SessionFactory, sink formfill.NotificationSink, ledgers ledgerProvider) deps {
	if ledgers == nil {
		ledgers = &stubLedgerProvider{}
	}
	return deps{
		newFactory: func(config.BrowserConfig, *zap.Logger) (formfill.SessionFactory, error) {
			return factory, nil
		},
		newSink: func(config.NotifyConfig, *zap.Logger) (formfill.NotificationSink, error) {
			return sink, nil
		},
		ledgers: ledgers,
		runnerOpts: []formfill.Option{
			formfill.WithRunIDs(func() string { return "run-1" }),
			formfill.WithClock(func() time.Time { return testStart }),
		},
	}
}

// executeCommand runs the root command built from d with args and returns
// everything written to stdout and stderr.
func executeCommand(t *testing.T, d deps, args ...string) (string, error) {
	t.Helper()
	root := newRootCommand(d)
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return buf.String(), err
}

// syncBuffer is a bytes.Buffer safe for one writer and one polling reader.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
