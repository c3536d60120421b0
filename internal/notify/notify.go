// internal/notify/notify.go
package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/formpilot/internal/config"
	"github.com/xkilldash9x/formpilot/internal/formfill"
)

// Sink delivers one human-readable status message.
type Sink = formfill.NotificationSink

// StdoutSink prints each message on its own line.
type StdoutSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewStdoutSink writes to w, or os.Stdout when w is nil.
func NewStdoutSink(w io.Writer) *StdoutSink {
	if w == nil {
		w = os.Stdout
	}
	return &StdoutSink{w: w}
}

func (s *StdoutSink) Send(ctx context.Context, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprintln(s.w, message)
	return err
}

// named pairs a sink with the label used in errors and logs.
type named struct {
	name string
	sink Sink
}

// MultiSink fans a message out to every registered sink in parallel. A failing
// sink never prevents delivery to the others.
type MultiSink struct {
	sinks  []named
	logger *zap.Logger
}

// NewMultiSink creates an empty fan-out sink.
func NewMultiSink(logger *zap.Logger) *MultiSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MultiSink{logger: logger.Named("notify")}
}

// Add registers sink under name.
func (m *MultiSink) Add(name string, sink Sink) {
	m.sinks = append(m.sinks, named{name: name, sink: sink})
}

// Len reports how many sinks are registered.
func (m *MultiSink) Len() int { return len(m.sinks) }

// Names lists the registered sinks in registration order.
func (m *MultiSink) Names() []string {
	names := make([]string, 0, len(m.sinks))
	for _, s := range m.sinks {
		names = append(names, s.name)
	}
	return names
}

func (m *MultiSink) Send(ctx context.Context, message string) error {
	errs := make([]error, len(m.sinks))
	// Plain Group: one failing channel must not cancel the rest.
	var g errgroup.Group
	for i, s := range m.sinks {
		g.Go(func() error {
			if err := s.sink.Send(ctx, message); err != nil {
				errs[i] = fmt.Errorf("%s: %w", s.name, err)
				m.logger.Warn("Notification delivery failed.", zap.String("sink", s.name), zap.Error(err))
				return nil
			}
			m.logger.Debug("Notification delivered.", zap.String("sink", s.name))
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// FromConfig builds the fan-out sink for every enabled channel in cfg.
func FromConfig(cfg config.NotifyConfig, logger *zap.Logger) (*MultiSink, error) {
	multi := NewMultiSink(logger)

	if cfg.Stdout {
		multi.Add("stdout", NewStdoutSink(nil))
	}

	if cfg.Email.Enabled || cfg.SMS.Enabled {
		mailer := NewSMTPMailer(cfg.SMTP)
		if cfg.Email.Enabled {
			multi.Add("email", NewEmailSink(mailer, cfg.SMTP.Sender(), cfg.Email))
		}
		if cfg.SMS.Enabled {
			sms, err := NewSMSSink(mailer, cfg.SMTP.Sender(), cfg.SMS.Recipients)
			if err != nil {
				return nil, err
			}
			multi.Add("sms", sms)
		}
	}

	if cfg.Webhook.Enabled {
		multi.Add("webhook", NewWebhookSink(cfg.Webhook, cfg.FormName))
	}

	return multi, nil
}
