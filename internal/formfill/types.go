// internal/formfill/types.go
package formfill

import (
	"context"
	"time"
)

// Element is a single located node on the loaded page.
type Element interface {
	SetText(ctx context.Context, value string) error
	Click(ctx context.Context) error
}

// BrowserSession is one isolated browser instance owned by a single target.
// Implementations must not share cookies, storage or page handles between
// sessions.
type BrowserSession interface {
	ID() string
	Open(ctx context.Context, url string) error
	// WaitVisible blocks until the element behind locator is visible or the
	// timeout elapses.
	WaitVisible(ctx context.Context, locator Locator, timeout time.Duration) error
	FindAll(ctx context.Context, locator Locator) ([]Element, error)
	Find(ctx context.Context, locator Locator) (Element, error)
	// PageText returns the visible text of the current document.
	PageText(ctx context.Context) (string, error)
	Close(ctx context.Context) error
}

// SessionFactory creates a fresh BrowserSession per call.
type SessionFactory interface {
	NewSession(ctx context.Context) (BrowserSession, error)
}

// NotificationSink delivers a human-readable status message.
type NotificationSink interface {
	Send(ctx context.Context, message string) error
}

// Recorder receives per-target outcomes as soon as they are known and the
// final batch outcome once the run ends.
type Recorder interface {
	RecordTarget(ctx context.Context, runID string, result TargetResult) error
	RecordBatch(ctx context.Context, result *BatchResult) error
}

// SubmissionTarget is one identifier to type into the form, together with the
// reference label shared by the whole batch.
type SubmissionTarget struct {
	Index      int
	Identifier string
	Reference  string
}

// NewTargets builds the ordered target list for a batch.
func NewTargets(identifiers []string, reference string) []SubmissionTarget {
	targets := make([]SubmissionTarget, 0, len(identifiers))
	for i, id := range identifiers {
		targets = append(targets, SubmissionTarget{Index: i, Identifier: id, Reference: reference})
	}
	return targets
}

// TargetStatus is the outcome of a single target.
type TargetStatus string

const (
	TargetSubmitted TargetStatus = "submitted"
	TargetFailed    TargetStatus = "failed"
	TargetSkipped   TargetStatus = "skipped"
)

// TargetResult records what happened to one target.
type TargetResult struct {
	Target     SubmissionTarget
	Status     TargetStatus
	Err        error
	SessionID  string
	StartedAt  time.Time
	FinishedAt time.Time
}

// BatchStatus is the terminal state of a run.
type BatchStatus string

const (
	BatchCompleted BatchStatus = "completed"
	BatchAborted   BatchStatus = "aborted"
)

// BatchResult is produced once per run and consumed by Notify.
type BatchResult struct {
	RunID      string
	Status     BatchStatus
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
	Targets    []TargetResult
}

// Success reports whether every target was submitted.
func (r *BatchResult) Success() bool {
	return r.Status == BatchCompleted
}

// Counts returns the number of submitted, failed and skipped targets.
func (r *BatchResult) Counts() (submitted, failed, skipped int) {
	for _, t := range r.Targets {
		switch t.Status {
		case TargetSubmitted:
			submitted++
		case TargetFailed:
			failed++
		case TargetSkipped:
			skipped++
		}
	}
	return submitted, failed, skipped
}

// State is the lifecycle of a Runner.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateCompleted
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// FailurePolicy decides what happens after a target fails.
type FailurePolicy string

const (
	// PolicyAbort stops at the first failed target.
	PolicyAbort FailurePolicy = "abort"
	// PolicyContinue attempts every target and fails the batch afterwards.
	PolicyContinue FailurePolicy = "continue"
)

// ParsePolicy maps a config string to a FailurePolicy. Empty means abort.
func ParsePolicy(s string) (FailurePolicy, bool) {
	switch FailurePolicy(s) {
	case "", PolicyAbort:
		return PolicyAbort, true
	case PolicyContinue:
		return PolicyContinue, true
	}
	return "", false
}
