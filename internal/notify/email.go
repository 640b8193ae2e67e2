package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"
)

// SMTPConfig carries the mail relay settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPSender delivers notifications over a plain SMTP relay. User ids double
// as addresses upstream; the address resolver hook exists for deployments
// where they do not.
type SMTPSender struct {
	cfg     SMTPConfig
	resolve func(userID string) string
	send    func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPSender creates the email channel. Authentication is used only when
// a username is configured.
func NewSMTPSender(cfg SMTPConfig, opts ...SMTPOption) *SMTPSender {
	s := &SMTPSender{
		cfg:     cfg,
		resolve: func(userID string) string { return userID },
		send:    smtp.SendMail,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send renders and delivers one notification email.
func (s *SMTPSender) Send(ctx context.Context, userID string, n Notification) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("email send: %w", err)
	}

	to := s.resolve(userID)
	msg := renderEmail(s.cfg.From, to, n)

	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	if err := s.send(addr, auth, s.cfg.From, []string{to}, msg); err != nil {
		return fmt.Errorf("smtp send to %s: %w", to, err)
	}
	return nil
}

func renderEmail(from, to string, n Notification) []byte {
	var subject, body string
	switch n.Template {
	case TemplatePriceDrop:
		subject = fmt.Sprintf("Price drop: %s", n.Title)
		body = fmt.Sprintf(
			"The bid floor for %q dropped to %.2f.\nDeadline: %s\n",
			n.Title, n.CurrentPrice, n.Deadline.Format(time.RFC1123))
	case TemplateLastCall:
		subject = fmt.Sprintf("Last call: %s", n.Title)
		body = fmt.Sprintf(
			"Only %d slot(s) left on %q before the %s deadline.\nCurrent bid floor: %.2f\n",
			n.InventoryLevel, n.Title, n.Deadline.Format(time.RFC1123), n.CurrentPrice)
	default:
		subject = fmt.Sprintf("Update: %s", n.Title)
		body = fmt.Sprintf("Current bid floor for %q: %.2f\n", n.Title, n.CurrentPrice)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(body)
	return []byte(b.String())
}

// SMTPOption applies a configuration option to the SMTPSender.
type SMTPOption func(*SMTPSender)

// WithAddressResolver maps user ids to email addresses.
func WithAddressResolver(fn func(userID string) string) SMTPOption {
	return func(s *SMTPSender) {
		if fn != nil {
			s.resolve = fn
		}
	}
}

// WithSendFunc overrides the SMTP transport, used by tests.
func WithSendFunc(fn func(addr string, a smtp.Auth, from string, to []string, msg []byte) error) SMTPOption {
	return func(s *SMTPSender) {
		if fn != nil {
			s.send = fn
		}
	}
}
