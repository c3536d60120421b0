// internal/notify/mail.go
package notify

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/mail"
	"net/smtp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jordan-wright/email"

	"github.com/xkilldash9x/formpilot/internal/config"
)

// Mailer delivers a fully built message.
type Mailer interface {
	Send(ctx context.Context, e *email.Email) error
}

// defaultSMTPTimeout bounds an SMTP exchange whose context has no deadline.
const defaultSMTPTimeout = 30 * time.Second

// SMTPMailer sends through an SMTP relay with PLAIN auth. The relay upgrades
// to STARTTLS when it advertises it (port 587 on Gmail).
type SMTPMailer struct {
	addr string
	auth smtp.Auth

	send func(ctx context.Context, e *email.Email, addr string, a smtp.Auth) error
}

// NewSMTPMailer creates a mailer for cfg.
func NewSMTPMailer(cfg config.SMTPConfig) *SMTPMailer {
	m := &SMTPMailer{
		addr: net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		send: deliver,
	}
	if cfg.Username != "" {
		m.auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return m
}

// Send delivers e. Relays that reject AUTH get a second, unauthenticated try.
func (m *SMTPMailer) Send(ctx context.Context, e *email.Email) error {
	done := make(chan error, 1)
	go func() {
		err := m.send(ctx, e, m.addr, m.auth)
		if err != nil && m.auth != nil && ctx.Err() == nil && strings.Contains(err.Error(), "server doesn't support AUTH") {
			err = m.send(ctx, e, m.addr, nil)
		}
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil && ctx.Err() != nil {
			// The exchange failed because ctx closed the connection.
			return fmt.Errorf("smtp send via %s: %w", m.addr, ctx.Err())
		}
		if err != nil {
			return fmt.Errorf("smtp send via %s: %w", m.addr, err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// deliver performs the same exchange as (*email.Email).Send, but on a
// connection owned by ctx: the dial honors it, every read and write carries
// its deadline, and cancellation closes the socket so the exchange returns.
func deliver(ctx context.Context, e *email.Email, addr string, a smtp.Auth) error {
	from := e.From
	if e.Sender != "" {
		from = e.Sender
	}
	sender, err := mail.ParseAddress(from)
	if err != nil {
		return fmt.Errorf("invalid sender %q: %w", from, err)
	}
	var rcpts []string
	for _, list := range [][]string{e.To, e.Cc, e.Bcc} {
		for _, r := range list {
			parsed, err := mail.ParseAddress(r)
			if err != nil {
				return fmt.Errorf("invalid recipient %q: %w", r, err)
			}
			rcpts = append(rcpts, parsed.Address)
		}
	}
	if len(rcpts) == 0 {
		return errors.New("message has no recipients")
	}
	raw, err := e.Bytes()
	if err != nil {
		return fmt.Errorf("build message: %w", err)
	}
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultSMTPTimeout)
	}
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return err
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	c, err := smtp.NewClient(conn, host)
	if err != nil {
		conn.Close()
		return err
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: host}); err != nil {
			return err
		}
	}
	if a != nil {
		if ok, _ := c.Extension("AUTH"); !ok {
			return errors.New("smtp: server doesn't support AUTH")
		}
		if err := c.Auth(a); err != nil {
			return err
		}
	}
	if err := c.Mail(sender.Address); err != nil {
		return err
	}
	for _, r := range rcpts {
		if err := c.Rcpt(r); err != nil {
			return err
		}
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(raw); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}

// EmailSink mails the status message to a fixed recipient list.
type EmailSink struct {
	mailer Mailer
	from   string
	cfg    config.EmailConfig
}

// NewEmailSink creates an email sink sending as from.
func NewEmailSink(mailer Mailer, from string, cfg config.EmailConfig) *EmailSink {
	return &EmailSink{mailer: mailer, from: from, cfg: cfg}
}

func (s *EmailSink) Send(ctx context.Context, message string) error {
	e := email.NewEmail()
	e.From = s.from
	e.To = append([]string(nil), s.cfg.To...)
	e.Subject = s.cfg.Subject
	e.Text = []byte(message)
	for _, path := range s.cfg.Attachments {
		if _, err := e.AttachFile(path); err != nil {
			return fmt.Errorf("attach %s: %w", path, err)
		}
	}
	return s.mailer.Send(ctx, e)
}

// carrierGateways maps a carrier name to its email-to-SMS domain.
var carrierGateways = map[string]string{
	"att":     "@mms.att.net",
	"tmobile": "@tmomail.net",
	"verizon": "@vtext.com",
	"sprint":  "@page.nextel.com",
	"cricket": "@mms.cricketwireless.net",
}

// Carriers lists the supported carrier names.
func Carriers() []string {
	out := make([]string, 0, len(carrierGateways))
	for c := range carrierGateways {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// GatewayAddress returns the email address that reaches number as a text.
func GatewayAddress(number, carrier string) (string, error) {
	domain, ok := carrierGateways[strings.ToLower(strings.TrimSpace(carrier))]
	if !ok {
		return "", fmt.Errorf("unknown sms carrier %q (supported: %s)", carrier, strings.Join(Carriers(), ", "))
	}
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, number)
	if digits == "" {
		return "", fmt.Errorf("sms number %q has no digits", number)
	}
	return digits + domain, nil
}

// SMSSink texts the status message through carrier email gateways.
type SMSSink struct {
	mailer Mailer
	from   string
	to     []string
}

// NewSMSSink resolves every recipient's gateway address up front.
func NewSMSSink(mailer Mailer, from string, recipients []config.SMSRecipient) (*SMSSink, error) {
	to := make([]string, 0, len(recipients))
	for _, r := range recipients {
		addr, err := GatewayAddress(r.Number, r.Carrier)
		if err != nil {
			if r.Name != "" {
				return nil, fmt.Errorf("sms recipient %s: %w", r.Name, err)
			}
			return nil, err
		}
		to = append(to, addr)
	}
	return &SMSSink{mailer: mailer, from: from, to: to}, nil
}

// Recipients returns the resolved gateway addresses.
func (s *SMSSink) Recipients() []string { return append([]string(nil), s.to...) }

func (s *SMSSink) Send(ctx context.Context, message string) error {
	e := email.NewEmail()
	e.From = s.from
	e.To = append([]string(nil), s.to...)
	e.Text = []byte(message)
	return s.mailer.Send(ctx, e)
}
