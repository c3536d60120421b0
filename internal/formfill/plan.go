// internal/formfill/plan.go
package formfill

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidPlan is returned when a FormFieldPlan cannot be executed.
var ErrInvalidPlan = errors.New("invalid form plan")

// DefaultSettleDelay is the fixed post-navigation wait used when the plan has
// no readiness locator.
const DefaultSettleDelay = 3 * time.Second

// LocatorKind selects how a locator string is interpreted.
type LocatorKind string

const (
	LocatorXPath LocatorKind = "xpath"
	LocatorCSS   LocatorKind = "css"
)

// Locator is an opaque description used to find elements on the page.
type Locator struct {
	Kind  LocatorKind
	Value string
}

// XPath returns an XPath locator.
func XPath(expr string) Locator { return Locator{Kind: LocatorXPath, Value: expr} }

// CSS returns a CSS selector locator.
func CSS(selector string) Locator { return Locator{Kind: LocatorCSS, Value: selector} }

func (l Locator) String() string {
	kind := l.Kind
	if kind == "" {
		kind = LocatorXPath
	}
	return fmt.Sprintf("%s:%s", kind, l.Value)
}

// Action is what a step does to its element.
type Action string

const (
	ActionType  Action = "type"
	ActionClick Action = "click"
)

// InputSource selects the text a type step writes.
type InputSource string

const (
	InputIdentifier InputSource = "identifier"
	InputReference  InputSource = "reference"
	InputLiteral    InputSource = "literal"
)

// Step is one (locator, action) pair of a plan.
type Step struct {
	Name    string
	Action  Action
	Locator Locator
	Input   InputSource
	Text    string
}

// Label returns the step name, falling back to its action and locator.
func (s Step) Label() string {
	if s.Name != "" {
		return s.Name
	}
	return fmt.Sprintf("%s %s", s.Action, s.Locator)
}

// Value resolves the text a type step writes for the given target.
func (s Step) Value(t SubmissionTarget) string {
	switch s.Input {
	case InputIdentifier:
		return t.Identifier
	case InputReference:
		return t.Reference
	default:
		return s.Text
	}
}

// Readiness describes how to decide that a freshly opened page is usable.
type Readiness struct {
	// Locator, when set, is polled until visible.
	Locator *Locator
	Timeout time.Duration
	// SettleDelay is the fixed wait used when Locator is nil.
	SettleDelay time.Duration
}

// Confirmation describes the page state expected after the last step. Text
// is matched against the page's visible text, whose runs of whitespace are
// collapsed to single spaces.
type Confirmation struct {
	Text    string
	Timeout time.Duration
}

// FormFieldPlan is the static description of how to fill one form instance.
type FormFieldPlan struct {
	URL          string
	Steps        []Step
	Readiness    Readiness
	Confirmation Confirmation
}

// Validate checks the plan is executable.
func (p FormFieldPlan) Validate() error {
	if strings.TrimSpace(p.URL) == "" {
		return fmt.Errorf("%w: url is required", ErrInvalidPlan)
	}
	if len(p.Steps) == 0 {
		return fmt.Errorf("%w: at least one step is required", ErrInvalidPlan)
	}
	for i, s := range p.Steps {
		if strings.TrimSpace(s.Locator.Value) == "" {
			return fmt.Errorf("%w: step %d (%s) has no locator", ErrInvalidPlan, i, s.Label())
		}
		switch s.Locator.Kind {
		case "", LocatorXPath, LocatorCSS:
		default:
			return fmt.Errorf("%w: step %d has unknown locator kind %q", ErrInvalidPlan, i, s.Locator.Kind)
		}
		switch s.Action {
		case ActionClick:
		case ActionType:
			switch s.Input {
			case InputIdentifier, InputReference:
			case InputLiteral, "":
				if s.Text == "" {
					return fmt.Errorf("%w: step %d (%s) types literal text but none is set", ErrInvalidPlan, i, s.Label())
				}
			default:
				return fmt.Errorf("%w: step %d has unknown input %q", ErrInvalidPlan, i, s.Input)
			}
		default:
			return fmt.Errorf("%w: step %d has unknown action %q", ErrInvalidPlan, i, s.Action)
		}
	}
	if p.Readiness.Locator != nil && p.Readiness.Timeout <= 0 {
		return fmt.Errorf("%w: readiness timeout must be positive when a readiness locator is set", ErrInvalidPlan)
	}
	if p.Readiness.SettleDelay < 0 {
		return fmt.Errorf("%w: settle delay cannot be negative", ErrInvalidPlan)
	}
	return nil
}
