// internal/formfill/notify.go
package formfill

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"text/template"
	"time"
)

// TimestampLayout formats completion times in notifications, e.g. "March 04, 17:30:00".
const TimestampLayout = "January 02, 15:04:05"

const (
	defaultSuccessTemplate = "Successfully filled {{.FormName}}.\n{{.Timestamp}}"
	defaultFailureTemplate = "Error occurred autofilling {{.FormName}}.\n{{.Timestamp}}\n" +
		"Submitted {{.Submitted}} of {{.Total}}.\n{{.Error}}"
)

// Messages holds the success and failure message templates.
// Templates see the fields of messageData.
type Messages struct {
	FormName string
	Success  string
	Failure  string
}

// DefaultMessages returns the stock templates for a form called "Google Form".
func DefaultMessages() Messages {
	return Messages{
		FormName: "Google Form",
		Success:  defaultSuccessTemplate,
		Failure:  defaultFailureTemplate,
	}
}

type messageData struct {
	FormName  string
	Timestamp string
	RunID     string
	Submitted int
	Failed    int
	Skipped   int
	Total     int
	Error     string
}

// Render builds the message text for result.
func (m Messages) Render(result *BatchResult) (string, error) {
	if result == nil {
		return "", errors.New("nil batch result")
	}
	submitted, failed, skipped := result.Counts()
	data := messageData{
		FormName:  m.FormName,
		Timestamp: result.FinishedAt.Format(TimestampLayout),
		RunID:     result.RunID,
		Submitted: submitted,
		Failed:    failed,
		Skipped:   skipped,
		Total:     len(result.Targets),
	}
	if data.FormName == "" {
		data.FormName = DefaultMessages().FormName
	}

	tmplText := m.Success
	if tmplText == "" {
		tmplText = defaultSuccessTemplate
	}
	if !result.Success() {
		tmplText = m.Failure
		if tmplText == "" {
			tmplText = defaultFailureTemplate
		}
		if result.Err != nil {
			data.Error = result.Err.Error()
		}
	}

	msg, err := execute(tmplText, data)
	if err != nil {
		return "", err
	}
	// A failure message always carries the error text, whatever the template says.
	if data.Error != "" && !strings.Contains(msg, data.Error) {
		msg = strings.TrimRight(msg, "\n") + "\n" + data.Error
	}
	return msg, nil
}

// Validate parses and executes both templates against sample data so a
// mistyped field is reported when the configuration loads, not after the
// batch has already run.
func (m Messages) Validate() error {
	sample := messageData{
		FormName:  "Sample Form",
		Timestamp: time.Date(2024, time.March, 4, 17, 30, 0, 0, time.UTC).Format(TimestampLayout),
		RunID:     "sample",
		Submitted: 1,
		Failed:    1,
		Total:     2,
		Error:     "sample error",
	}
	for _, t := range []struct{ name, text string }{
		{"success_template", m.Success},
		{"failure_template", m.Failure},
	} {
		if t.text == "" {
			continue
		}
		if _, err := execute(t.text, sample); err != nil {
			return fmt.Errorf("%s: %w", t.name, err)
		}
	}
	return nil
}

func execute(text string, data messageData) (string, error) {
	tmpl, err := template.New("message").Option("missingkey=error").Parse(text)
	if err != nil {
		return "", fmt.Errorf("parse message template: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render message template: %w", err)
	}
	return buf.String(), nil
}

// Notify sends exactly one message describing result. Delivery is best
// effort; the returned error is meant for logging only.
func (m Messages) Notify(ctx context.Context, result *BatchResult, sink NotificationSink) error {
	if sink == nil {
		return errors.New("no notification sink configured")
	}
	msg, err := m.Render(result)
	if err != nil {
		return err
	}
	if err := sink.Send(ctx, msg); err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	return nil
}

// Notify sends result through sink using DefaultMessages.
func Notify(ctx context.Context, result *BatchResult, sink NotificationSink) error {
	return DefaultMessages().Notify(ctx, result, sink)
}
