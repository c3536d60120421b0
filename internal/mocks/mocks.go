// File: internal/mocks/mocks.go
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/formpilot/internal/config"
	"github.com/xkilldash9x/formpilot/internal/formfill"
	"github.com/xkilldash9x/formpilot/internal/store"
)

// -- Config Mock --

// MockConfig mocks the config.Interface.
type MockConfig struct {
	mock.Mock
}

// --- Getters ---

func (m *MockConfig) Logger() config.LoggerConfig {
	args := m.Called()
	return args.Get(0).(config.LoggerConfig)
}

func (m *MockConfig) Browser() config.BrowserConfig {
	args := m.Called()
	return args.Get(0).(config.BrowserConfig)
}

func (m *MockConfig) Form() config.FormConfig {
	args := m.Called()
	return args.Get(0).(config.FormConfig)
}

func (m *MockConfig) Batch() config.BatchConfig {
	args := m.Called()
	return args.Get(0).(config.BatchConfig)
}

func (m *MockConfig) Notify() config.NotifyConfig {
	args := m.Called()
	return args.Get(0).(config.NotifyConfig)
}

func (m *MockConfig) Database() config.DatabaseConfig {
	args := m.Called()
	return args.Get(0).(config.DatabaseConfig)
}

func (m *MockConfig) Report() config.ReportConfig {
	args := m.Called()
	return args.Get(0).(config.ReportConfig)
}

// --- Setters ---

// Batch Setters
func (m *MockConfig) SetBatchTargets(ids []string) {
	m.Called(ids)
}

func (m *MockConfig) SetBatchReference(r string) {
	m.Called(r)
}

func (m *MockConfig) SetBatchPolicy(p string) {
	m.Called(p)
}

// Browser Setters
func (m *MockConfig) SetBrowserHeadless(b bool) {
	m.Called(b)
}

func (m *MockConfig) SetBrowserDriver(d string) {
	m.Called(d)
}

// Report Setters
func (m *MockConfig) SetReportPath(p string) {
	m.Called(p)
}

func (m *MockConfig) SetReportFormat(f string) {
	m.Called(f)
}

// -- Notification Mock --

// MockSink mocks formfill.NotificationSink.
type MockSink struct {
	mock.Mock
}

func (m *MockSink) Send(ctx context.Context, message string) error {
	args := m.Called(ctx, message)
	return args.Error(0)
}

// -- Ledger Mock --

// MockLedger mocks store.Ledger.
type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) RecordTarget(ctx context.Context, runID string, result formfill.TargetResult) error {
	args := m.Called(ctx, runID, result)
	return args.Error(0)
}

func (m *MockLedger) RecordBatch(ctx context.Context, result *formfill.BatchResult) error {
	args := m.Called(ctx, result)
	return args.Error(0)
}

func (m *MockLedger) RecentRuns(ctx context.Context, limit int) ([]store.RunSummary, error) {
	args := m.Called(ctx, limit)
	var runs []store.RunSummary
	if v := args.Get(0); v != nil {
		runs = v.([]store.RunSummary)
	}
	return runs, args.Error(1)
}

func (m *MockLedger) TargetsForRun(ctx context.Context, runID string) ([]store.TargetRecord, error) {
	args := m.Called(ctx, runID)
	var targets []store.TargetRecord
	if v := args.Get(0); v != nil {
		targets = v.([]store.TargetRecord)
	}
	return targets, args.Error(1)
}

func (m *MockLedger) Close() error {
	args := m.Called()
	return args.Error(0)
}

// -- Browser Mocks --

// MockSessionFactory mocks formfill.SessionFactory.
type MockSessionFactory struct {
	mock.Mock
}

func (m *MockSessionFactory) NewSession(ctx context.Context) (formfill.BrowserSession, error) {
	args := m.Called(ctx)
	var s formfill.BrowserSession
	if v := args.Get(0); v != nil {
		s = v.(formfill.BrowserSession)
	}
	return s, args.Error(1)
}

// MockBrowserSession mocks formfill.BrowserSession.
type MockBrowserSession struct {
	mock.Mock
}

func (m *MockBrowserSession) ID() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockBrowserSession) Open(ctx context.Context, url string) error {
	args := m.Called(ctx, url)
	return args.Error(0)
}

func (m *MockBrowserSession) WaitVisible(ctx context.Context, locator formfill.Locator, timeout time.Duration) error {
	args := m.Called(ctx, locator, timeout)
	return args.Error(0)
}

func (m *MockBrowserSession) FindAll(ctx context.Context, locator formfill.Locator) ([]formfill.Element, error) {
	args := m.Called(ctx, locator)
	var elems []formfill.Element
	if v := args.Get(0); v != nil {
		elems = v.([]formfill.Element)
	}
	return elems, args.Error(1)
}

func (m *MockBrowserSession) Find(ctx context.Context, locator formfill.Locator) (formfill.Element, error) {
	args := m.Called(ctx, locator)
	var el formfill.Element
	if v := args.Get(0); v != nil {
		el = v.(formfill.Element)
	}
	return el, args.Error(1)
}

func (m *MockBrowserSession) PageText(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockBrowserSession) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockElement mocks formfill.Element.
type MockElement struct {
	mock.Mock
}

func (m *MockElement) SetText(ctx context.Context, value string) error {
	args := m.Called(ctx, value)
	return args.Error(0)
}

func (m *MockElement) Click(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
