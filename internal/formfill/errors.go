// internal/formfill/errors.go
package formfill

import (
	"errors"
	"fmt"
)

// ErrNoTargets is returned by Run when the target list is empty.
var ErrNoTargets = errors.New("no submission targets")

// ElementLocatorError means a step's element was absent or ambiguous.
type ElementLocatorError struct {
	Step    string
	Locator Locator
	Found   int
	Err     error
}

func (e *ElementLocatorError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("step %q: locate %s: %v", e.Step, e.Locator, e.Err)
	}
	return fmt.Sprintf("step %q: locate %s: found %d elements", e.Step, e.Locator, e.Found)
}

func (e *ElementLocatorError) Unwrap() error { return e.Err }

// SessionError means the browser session could not be started or stopped.
type SessionError struct {
	Op  string // "start" or "close"
	Err error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("browser session %s: %v", e.Op, e.Err)
}

func (e *SessionError) Unwrap() error { return e.Err }

// NavigationError means the page failed to load, become ready, or confirm
// the submission in time.
type NavigationError struct {
	URL   string
	Phase string // "open", "ready" or "confirm"
	Err   error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("navigation %s %s: %v", e.Phase, e.URL, e.Err)
}

func (e *NavigationError) Unwrap() error { return e.Err }

// TargetError attaches the failing target to the underlying error.
type TargetError struct {
	Index      int
	Identifier string
	Err        error
}

func (e *TargetError) Error() string {
	return fmt.Sprintf("target %d (%s): %v", e.Index, e.Identifier, e.Err)
}

func (e *TargetError) Unwrap() error { return e.Err }
