// File: internal/config/plan.go
package config

import (
	"fmt"
	"strings"

	"github.com/xkilldash9x/formpilot/internal/formfill"
)

// Plan converts the form section into an executable FormFieldPlan.
func (f FormConfig) Plan() (formfill.FormFieldPlan, error) {
	plan := formfill.FormFieldPlan{
		URL:   strings.TrimSpace(f.URL),
		Steps: make([]formfill.Step, 0, len(f.Steps)),
		Readiness: formfill.Readiness{
			Timeout:     f.Readiness.Timeout,
			SettleDelay: f.Readiness.SettleDelay,
		},
		// Page text is compared with whitespace collapsed, so the expected
		// phrase is collapsed the same way.
		Confirmation: formfill.Confirmation{
			Text:    strings.Join(strings.Fields(f.Confirmation.Text), " "),
			Timeout: f.Confirmation.Timeout,
		},
	}

	if f.Readiness.Locator != "" {
		loc, err := locator(f.Readiness.Kind, f.Readiness.Locator)
		if err != nil {
			return plan, fmt.Errorf("readiness: %w", err)
		}
		plan.Readiness.Locator = &loc
	}

	for i, s := range f.Steps {
		loc, err := locator(s.Kind, s.Locator)
		if err != nil {
			return plan, fmt.Errorf("steps[%d]: %w", i, err)
		}
		step := formfill.Step{
			Name:    s.Name,
			Action:  formfill.Action(strings.ToLower(s.Action)),
			Locator: loc,
			Input:   formfill.InputSource(strings.ToLower(s.Input)),
			Text:    s.Text,
		}
		if step.Action == formfill.ActionType && step.Input == "" && step.Text == "" {
			step.Input = formfill.InputIdentifier
		}
		plan.Steps = append(plan.Steps, step)
	}

	if err := plan.Validate(); err != nil {
		return plan, err
	}
	return plan, nil
}

func locator(kind, value string) (formfill.Locator, error) {
	switch strings.ToLower(kind) {
	case "", string(formfill.LocatorXPath):
		return formfill.XPath(value), nil
	case string(formfill.LocatorCSS):
		return formfill.CSS(value), nil
	default:
		return formfill.Locator{}, fmt.Errorf("%w: unknown locator kind %q", formfill.ErrInvalidPlan, kind)
	}
}

// SubmissionTargets builds the ordered target list for a run.
func (b BatchConfig) SubmissionTargets() []formfill.SubmissionTarget {
	ids := make([]string, 0, len(b.Targets))
	for _, id := range b.Targets {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return formfill.NewTargets(ids, b.Reference)
}

// FailurePolicy returns the parsed policy, defaulting to abort.
func (b BatchConfig) FailurePolicy() formfill.FailurePolicy {
	p, ok := formfill.ParsePolicy(strings.ToLower(b.Policy))
	if !ok {
		return formfill.PolicyAbort
	}
	return p
}

// Messages returns the notification templates, falling back to the defaults
// for anything left blank.
func (n NotifyConfig) Messages() formfill.Messages {
	m := formfill.DefaultMessages()
	if n.FormName != "" {
		m.FormName = n.FormName
	}
	if n.SuccessTemplate != "" {
		m.Success = n.SuccessTemplate
	}
	if n.FailureTemplate != "" {
		m.Failure = n.FailureTemplate
	}
	return m
}
