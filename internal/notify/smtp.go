package notify

import (
	"context"
	"fmt"
	"mime"
	"net"
	"net/mail"
	"net/smtp"
	"strings"
	"time"
)

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPMailer sends plain-text email through an SMTP relay.
type SMTPMailer struct {
	addr     string
	auth     smtp.Auth
	from     *mail.Address
	sendMail sendMailFunc
}

// NewSMTPMailer creates a mailer for the relay at addr (host:port). Username
// may be empty for unauthenticated relays.
func NewSMTPMailer(addr, username, password, from string) (*SMTPMailer, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("smtp: invalid address %q: %w", addr, err)
	}
	sender, err := mail.ParseAddress(from)
	if err != nil {
		return nil, fmt.Errorf("smtp: invalid from address %q: %w", from, err)
	}
	m := &SMTPMailer{addr: addr, from: sender, sendMail: smtp.SendMail}
	if username != "" {
		m.auth = smtp.PlainAuth("", username, password, host)
	}
	return m, nil
}

// Send implements Mailer.
func (m *SMTPMailer) Send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rcpt, err := mail.ParseAddress(to)
	if err != nil {
		return fmt.Errorf("smtp: invalid recipient %q: %w", to, err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", m.from.String())
	fmt.Fprintf(&b, "To: %s\r\n", rcpt.String())
	fmt.Fprintf(&b, "Subject: %s\r\n", encodeSubject(subject))
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(strings.ReplaceAll(normalizeNewlines(body), "\n", "\r\n"))

	if err := m.sendMail(m.addr, m.auth, m.from.Address, []string{rcpt.Address}, []byte(b.String())); err != nil {
		return fmt.Errorf("smtp: failed to send: %w", err)
	}
	return nil
}

var lineBreaks = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")

// encodeSubject folds line breaks into spaces and Q-encodes non-ASCII text.
func encodeSubject(subject string) string {
	return mime.QEncoding.Encode("utf-8", strings.TrimSpace(lineBreaks.Replace(subject)))
}

func normalizeNewlines(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "\r\n", "\n"), "\r", "\n")
}
