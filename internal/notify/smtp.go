package notify

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/cockroachdb/errors"

	"github.com/JonMunkholm/wqingest/internal/logging"
)

// SMTPConfig configures mail delivery.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string // empty disables AUTH
	Password string
	From     string
	To       []string
	Attempts int // total delivery attempts, at least 1
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPSink delivers notifications by e-mail, retrying with exponential backoff.
type SMTPSink struct {
	cfg        SMTPConfig
	send       sendFunc
	newBackOff func() backoff.BackOff
}

// NewSMTPSink creates a mail sink.
func NewSMTPSink(cfg SMTPConfig) *SMTPSink {
	if cfg.Attempts < 1 {
		cfg.Attempts = 1
	}
	return &SMTPSink{
		cfg:  cfg,
		send: smtp.SendMail,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 2 * time.Second
			b.MaxElapsedTime = time.Minute
			return b
		},
	}
}

func (s *SMTPSink) Name() string { return "smtp" }

// Send delivers msg to every recipient.
func (s *SMTPSink) Send(ctx context.Context, msg Message) error {
	if len(s.cfg.To) == 0 {
		return errors.New("no recipients configured")
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	body := s.compose(msg)

	attempt := 0
	operation := func() error {
		attempt++
		err := s.send(addr, auth, s.cfg.From, s.cfg.To, body)
		if err != nil {
			logging.FromContext(ctx).Warn("mail delivery attempt failed",
				"attempt", attempt,
				"max_attempts", s.cfg.Attempts,
				"error", err,
			)
		}
		return err
	}

	b := backoff.WithMaxRetries(s.newBackOff(), uint64(s.cfg.Attempts-1))
	if err := backoff.Retry(operation, b); err != nil {
		return errors.Wrapf(err, "send mail via %s after %d attempts", addr, attempt)
	}
	return nil
}

func (s *SMTPSink) compose(msg Message) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", s.cfg.From)
	fmt.Fprintf(&buf, "To: %s\r\n", strings.Join(s.cfg.To, ", "))
	fmt.Fprintf(&buf, "Subject: %s\r\n", msg.Subject)
	fmt.Fprintf(&buf, "Date: %s\r\n", msg.Time.Format(time.RFC1123Z))
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	buf.WriteString("\r\n")
	buf.WriteString(strings.ReplaceAll(msg.Body, "\n", "\r\n"))
	buf.WriteString("\r\n")
	return buf.Bytes()
}
