// Package mailer delivers rendered notification emails over SMTP, or to the
// log when no SMTP server is configured.
package mailer

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/smtp"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Message is one outgoing email.
type Message struct {
	From    string
	To      string
	Subject string
	Body    string
}

func (m Message) validate() error {
	if m.From == "" || m.To == "" {
		return errors.New("mailer: sender and recipient are required")
	}
	return nil
}

// Sender is the interface for sending email messages.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// ---------------------------------------------------------------------------
// SMTP
// ---------------------------------------------------------------------------

const defaultConnectTimeout = 5 * time.Second

// SMTPSender delivers through an SMTP relay with STARTTLS and PLAIN auth.
type SMTPSender struct {
	Addr           string
	Username       string
	Password       string
	ConnectTimeout time.Duration
}

func NewSMTPSender(addr, username, password string) *SMTPSender {
	return &SMTPSender{Addr: addr, Username: username, Password: password, ConnectTimeout: defaultConnectTimeout}
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if err := msg.validate(); err != nil {
		return err
	}
	cn, err := s.connect(ctx)
	if err != nil {
		return err
	}
	defer cn.Close()

	if err := cn.Mail(msg.From); err != nil {
		return fmt.Errorf("smtp MAIL FROM: %w", err)
	}
	if err := cn.Rcpt(msg.To); err != nil {
		return fmt.Errorf("smtp RCPT TO: %w", err)
	}
	wr, err := cn.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA: %w", err)
	}
	if err := writeMessage(wr, msg); err != nil {
		wr.Close()
		return err
	}
	if err := wr.Close(); err != nil {
		return fmt.Errorf("smtp DATA close: %w", err)
	}
	return cn.Quit()
}

func (s *SMTPSender) connect(ctx context.Context) (*smtp.Client, error) {
	host, _, err := net.SplitHostPort(s.Addr)
	if err != nil {
		return nil, fmt.Errorf("invalid SMTP address %q: %w", s.Addr, err)
	}
	timeout := s.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	dialer := net.Dialer{Timeout: timeout}
	c, err := dialer.DialContext(ctx, "tcp", s.Addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	cn, err := smtp.NewClient(c, host)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to create SMTP client: %w", err)
	}
	if err := cn.StartTLS(&tls.Config{ServerName: host}); err != nil {
		cn.Close()
		return nil, fmt.Errorf("failed to StartTLS with SMTP server: %w", err)
	}
	if s.Username != "" {
		if err := cn.Auth(smtp.PlainAuth("", s.Username, s.Password, host)); err != nil {
			cn.Close()
			return nil, fmt.Errorf("smtp auth failed: %w", err)
		}
	}
	return cn, nil
}

// writeMessage writes headers and an HTML body. Template bodies are rich
// text from the admin editor.
func writeMessage(w io.Writer, msg Message) error {
	header := http.Header{}
	header.Set("From", msg.From)
	header.Set("To", msg.To)
	header.Set("Subject", mime.QEncoding.Encode("UTF-8", msg.Subject))
	header.Set("MIME-Version", "1.0")
	header.Set("Content-Type", "text/html; charset=UTF-8")
	if err := header.Write(w); err != nil {
		return err
	}
	if _, err := io.WriteString(w, "\r\n"); err != nil {
		return err
	}
	_, err := io.WriteString(w, msg.Body)
	return err
}

// ---------------------------------------------------------------------------
// Log sender
// ---------------------------------------------------------------------------

// LogSender writes messages to the log instead of sending them. Used in
// development and when SMTP is not configured.
type LogSender struct {
	logger zerolog.Logger
}

func NewLogSender(logger zerolog.Logger) *LogSender {
	return &LogSender{logger: logger.With().Str("component", "mailer").Logger()}
}

func (s *LogSender) Send(_ context.Context, msg Message) error {
	if err := msg.validate(); err != nil {
		return err
	}
	s.logger.Info().
		Str("from", msg.From).
		Str("to", msg.To).
		Str("subject", msg.Subject).
		Int("body_bytes", len(msg.Body)).
		Msg("email not sent, no SMTP server configured")
	return nil
}

// ---------------------------------------------------------------------------
// Recorder (test double)
// ---------------------------------------------------------------------------

// Recorder is a Sender that records messages and optionally fails.
type Recorder struct {
	mu         sync.Mutex
	messages   []Message
	ShouldFail bool
	FailError  string
}

func (r *Recorder) Send(_ context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
	if r.ShouldFail {
		return errors.New(r.FailError)
	}
	return nil
}

// Messages returns a copy of the recorded messages.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.messages))
	copy(out, r.messages)
	return out
}
