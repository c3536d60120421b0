// internal/notify/webhook.go
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/xkilldash9x/formpilot/internal/config"
)

// WebhookPayload is the JSON body posted to the webhook.
type WebhookPayload struct {
	Source string    `json:"source"`
	Form   string    `json:"form,omitempty"`
	Text   string    `json:"text"`
	SentAt time.Time `json:"sent_at"`
}

// WebhookSink posts the status message as JSON.
type WebhookSink struct {
	client *resty.Client
	url    string
	form   string
	now    func() time.Time
}

// NewWebhookSink creates a webhook sink. Server errors and transport
// failures are retried cfg.Retries times.
func NewWebhookSink(cfg config.WebhookConfig, formName string) *WebhookSink {
	client := resty.New().
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", "formpilot").
		SetHeaders(cfg.Headers).
		SetRetryCount(cfg.Retries).
		SetRetryWaitTime(250 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= 500
		})
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}
	return &WebhookSink{client: client, url: cfg.URL, form: formName, now: time.Now}
}

func (s *WebhookSink) Send(ctx context.Context, message string) error {
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(WebhookPayload{Source: "formpilot", Form: s.form, Text: message, SentAt: s.now().UTC()}).
		Post(s.url)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("webhook responded %s: %s", resp.Status(), resp.String())
	}
	return nil
}
