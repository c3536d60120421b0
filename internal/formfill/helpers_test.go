// internal/formfill/helpers_test.go
package formfill

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// -- Fake browser collaborators --

// fakeFactory hands out fakeSessions and records every call made against them
// in a single ordered log.
type fakeFactory struct {
	mu      sync.Mutex
	log     []string
	opened  int
	closed  int
	created int

	// startErr fails NewSession for the n-th session (1-based).
	startErr map[int]error
	// findErr fails Find/FindAll on the n-th session for the given locator value.
	findErr map[int]map[string]error
	// elements overrides how many elements FindAll returns per locator value.
	elements map[string]int
	// closeErr fails Close on the n-th session.
	closeErr map[int]error
	// openErr fails Open on the n-th session.
	openErr map[int]error
	// pageText is returned by PageText.
	pageText string
	// waitErr fails WaitVisible on every session.
	waitErr error
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{
		startErr: map[int]error{},
		findErr:  map[int]map[string]error{},
		elements: map[string]int{},
		closeErr: map[int]error{},
		openErr:  map[int]error{},
	}
}

func (f *fakeFactory) record(format string, args ...interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.log = append(f.log, fmt.Sprintf(format, args...))
}

func (f *fakeFactory) NewSession(ctx context.Context) (BrowserSession, error) {
	f.mu.Lock()
	f.created++
	n := f.created
	err := f.startErr[n]
	if err == nil {
		f.opened++
	}
	f.mu.Unlock()
	if err != nil {
		f.record("start-failed#%d", n)
		return nil, err
	}
	f.record("start#%d", n)
	return &fakeSession{factory: f, n: n}, nil
}

func (f *fakeFactory) Log() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.log))
	copy(out, f.log)
	return out
}

func (f *fakeFactory) Counts() (opened, closed int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opened, f.closed
}

type fakeSession struct {
	factory *fakeFactory
	n       int
	closed  bool
}

func (s *fakeSession) ID() string { return fmt.Sprintf("session-%d", s.n) }

func (s *fakeSession) Open(ctx context.Context, url string) error {
	if err := s.factory.openErr[s.n]; err != nil {
		s.factory.record("open-failed#%d", s.n)
		return err
	}
	s.factory.record("open#%d %s", s.n, url)
	return nil
}

func (s *fakeSession) WaitVisible(ctx context.Context, locator Locator, timeout time.Duration) error {
	s.factory.record("wait#%d %s", s.n, locator.Value)
	return s.factory.waitErr
}

func (s *fakeSession) lookup(locator Locator) error {
	if errs, ok := s.factory.findErr[s.n]; ok {
		if err := errs[locator.Value]; err != nil {
			return err
		}
	}
	return nil
}

func (s *fakeSession) FindAll(ctx context.Context, locator Locator) ([]Element, error) {
	if err := s.lookup(locator); err != nil {
		s.factory.record("find-failed#%d %s", s.n, locator.Value)
		return nil, err
	}
	count := 1
	if c, ok := s.factory.elements[locator.Value]; ok {
		count = c
	}
	elems := make([]Element, 0, count)
	for i := 0; i < count; i++ {
		elems = append(elems, &fakeElement{session: s, locator: locator.Value})
	}
	return elems, nil
}

func (s *fakeSession) Find(ctx context.Context, locator Locator) (Element, error) {
	if err := s.lookup(locator); err != nil {
		s.factory.record("find-failed#%d %s", s.n, locator.Value)
		return nil, err
	}
	return &fakeElement{session: s, locator: locator.Value}, nil
}

func (s *fakeSession) PageText(ctx context.Context) (string, error) {
	return s.factory.pageText, nil
}

func (s *fakeSession) Close(ctx context.Context) error {
	if s.closed {
		return errors.New("session closed twice")
	}
	s.closed = true
	s.factory.mu.Lock()
	s.factory.closed++
	err := s.factory.closeErr[s.n]
	s.factory.mu.Unlock()
	s.factory.record("close#%d", s.n)
	return err
}

type fakeElement struct {
	session *fakeSession
	locator string
}

func (e *fakeElement) SetText(ctx context.Context, value string) error {
	e.session.factory.record("type#%d %s=%s", e.session.n, e.locator, value)
	return nil
}

func (e *fakeElement) Click(ctx context.Context) error {
	e.session.factory.record("click#%d %s", e.session.n, e.locator)
	return nil
}

// -- Fake sinks and recorders --

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

type memoryRecorder struct {
	mu      sync.Mutex
	targets []TargetResult
	batches []*BatchResult
	err     error
}

func (m *memoryRecorder) RecordTarget(ctx context.Context, runID string, result TargetResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.targets = append(m.targets, result)
	return m.err
}

func (m *memoryRecorder) RecordBatch(ctx context.Context, result *BatchResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches = append(m.batches, result)
	return m.err
}

// -- Plans --

const testFormURL = "https://forms.example.test/viewform"

// attendancePlan mirrors the four-step attendance form: type the id, pick the
// attendance kind, pick the duration, submit.
func attendancePlan() FormFieldPlan {
	return FormFieldPlan{
		URL: testFormURL,
		Steps: []Step{
			{Name: "student id", Action: ActionType, Locator: XPath("field1"), Input: InputIdentifier},
			{Name: "attendance", Action: ActionClick, Locator: XPath("attendanceOption")},
			{Name: "duration", Action: ActionClick, Locator: XPath("durationOption")},
			{Name: "submit", Action: ActionClick, Locator: XPath("submit")},
		},
	}
}

func fixedClock() func() time.Time {
	ts := time.Date(2024, time.March, 4, 17, 30, 0, 0, time.UTC)
	return func() time.Time { return ts }
}
