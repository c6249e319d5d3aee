// Package notify mails update reports to subscribers.
package notify

import (
	"bytes"
	"context"
	"log/slog"
	"net/smtp"
	"text/template"
)

var updateMailTmpl = template.Must(template.New("updateMail").Parse(
	"From: {{.From}}\r\nTo: {{.To}}\r\nSubject: {{.Subject}}\r\n\r\n{{.Body}}"))

// SendFunc matches smtp.SendMail.
type SendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPMailer sends plain-text update mails through one SMTP relay.
type SMTPMailer struct {
	ServerAddr string
	Auth       smtp.Auth
	From       string
	Send       SendFunc
}

// NewSMTPMailer creates a mailer without authentication, as used with a
// local relay.
func NewSMTPMailer(serverAddr, from string) *SMTPMailer {
	return &SMTPMailer{
		ServerAddr: serverAddr,
		From:       from,
		Send:       smtp.SendMail,
	}
}

// Subject is the update mail subject for a run that downloaded n items.
func Subject(n int) string {
	if n > 0 {
		return "PodGrab Update - NEW updates!"
	}
	return "PodGrab Update - nothing new..."
}

// SendUpdate mails body to every address. Failures are logged per address
// and the first one is returned after all addresses were tried.
func (m *SMTPMailer) SendUpdate(ctx context.Context, to []string, items int, body string) error {
	var firstErr error
	for _, addr := range to {
		var data = struct {
			From    string
			To      string
			Subject string
			Body    string
		}{
			From:    m.From,
			To:      addr,
			Subject: Subject(items),
			Body:    body,
		}

		buf := &bytes.Buffer{}
		if err := updateMailTmpl.Execute(buf, data); err != nil {
			return err
		}

		send := m.Send
		if send == nil {
			send = smtp.SendMail
		}
		if err := send(m.ServerAddr, m.Auth, m.From, []string{addr}, buf.Bytes()); err != nil {
			slog.ErrorContext(ctx, "sending update mail failed", "to", addr, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		slog.InfoContext(ctx, "sent update mail", "to", addr)
	}
	return firstErr
}
