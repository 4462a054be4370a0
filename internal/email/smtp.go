package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/smtp"
	"strings"

	"birthdays/internal/config"
)

// SMTPTransport delivers mail through an SMTP relay.
type SMTPTransport struct {
	cfg *config.Config
}

// NewSMTPTransport creates an SMTP transport from cfg.
func NewSMTPTransport(cfg *config.Config) *SMTPTransport {
	return &SMTPTransport{cfg: cfg}
}

// Name identifies the transport in logs.
func (t *SMTPTransport) Name() string {
	return "smtp"
}

// fromHeader formats the From header, including the display name if configured.
func fromHeader(name, address string) string {
	if name == "" {
		return address
	}
	return fmt.Sprintf("%s <%s>", name, address)
}

// buildMessage renders a multipart/alternative MIME message.
func buildMessage(from string, msg Message) string {
	boundary := "BirthdaysBoundary123456789"
	var b strings.Builder

	b.WriteString(fmt.Sprintf("From: %s\r\n", from))
	b.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(msg.To, ", ")))
	b.WriteString(fmt.Sprintf("Subject: %s\r\n", msg.Subject))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString(fmt.Sprintf("Content-Type: multipart/alternative; boundary=\"%s\"\r\n", boundary))
	b.WriteString("\r\n")

	// Plain text part
	if msg.Text != "" {
		b.WriteString(fmt.Sprintf("--%s\r\n", boundary))
		b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
		b.WriteString("\r\n")
		b.WriteString(msg.Text)
		b.WriteString("\r\n")
	}

	// HTML part
	if msg.HTML != "" {
		b.WriteString(fmt.Sprintf("--%s\r\n", boundary))
		b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
		b.WriteString("\r\n")
		b.WriteString(msg.HTML)
		b.WriteString("\r\n")
	}

	b.WriteString(fmt.Sprintf("--%s--\r\n", boundary))
	return b.String()
}

// Send delivers msg according to the configured TLS mode.
func (t *SMTPTransport) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	body := buildMessage(fromHeader(t.cfg.SMTPFromName, t.cfg.SMTPFrom), msg)
	addr := fmt.Sprintf("%s:%d", t.cfg.SMTPHost, t.cfg.SMTPPort)

	var auth smtp.Auth
	if t.cfg.SMTPUsername != "" && t.cfg.SMTPPassword != "" {
		auth = smtp.PlainAuth("", t.cfg.SMTPUsername, t.cfg.SMTPPassword, t.cfg.SMTPHost)
	}

	switch t.cfg.SMTPTLS {
	case "tls":
		return t.sendWithTLS(addr, auth, msg.To, body)
	case "starttls":
		return t.sendWithStartTLS(addr, auth, msg.To, body)
	default: // "none"
		return smtp.SendMail(addr, auth, t.cfg.SMTPFrom, msg.To, []byte(body))
	}
}

// sendWithTLS sends email using implicit TLS (port 465).
func (t *SMTPTransport) sendWithTLS(addr string, auth smtp.Auth, to []string, body string) error {
	conn, err := tls.Dial("tcp", addr, &tls.Config{
		ServerName: t.cfg.SMTPHost,
		MinVersion: tls.VersionTLS12,
	})
	if err != nil {
		return fmt.Errorf("TLS dial failed: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, t.cfg.SMTPHost)
	if err != nil {
		return fmt.Errorf("SMTP client failed: %w", err)
	}
	defer client.Close()

	return t.deliver(client, auth, to, body)
}

// sendWithStartTLS sends email using STARTTLS (port 587).
func (t *SMTPTransport) sendWithStartTLS(addr string, auth smtp.Auth, to []string, body string) error {
	client, err := smtp.Dial(addr)
	if err != nil {
		return fmt.Errorf("SMTP dial failed: %w", err)
	}
	defer client.Close()

	if err := client.StartTLS(&tls.Config{
		ServerName: t.cfg.SMTPHost,
		MinVersion: tls.VersionTLS12,
	}); err != nil {
		return fmt.Errorf("STARTTLS failed: %w", err)
	}

	return t.deliver(client, auth, to, body)
}

func (t *SMTPTransport) deliver(client *smtp.Client, auth smtp.Auth, to []string, body string) error {
	if auth != nil {
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP auth failed: %w", err)
		}
	}

	if err := client.Mail(t.cfg.SMTPFrom); err != nil {
		return fmt.Errorf("SMTP MAIL failed: %w", err)
	}

	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("SMTP RCPT failed: %w", err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("SMTP DATA failed: %w", err)
	}

	if _, err := w.Write([]byte(body)); err != nil {
		return fmt.Errorf("SMTP write failed: %w", err)
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("SMTP close failed: %w", err)
	}

	return client.Quit()
}
