// Package email builds and delivers owner notifications.
package email

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"birthdays/internal/config"
	"birthdays/internal/logger"
	"birthdays/internal/metrics"
)

// Message is a rendered email.
type Message struct {
	To      []string
	Subject string
	HTML    string
	Text    string
}

// Transport delivers rendered messages.
type Transport interface {
	Send(ctx context.Context, msg Message) error
	Name() string
}

// ConsoleTransport logs messages instead of sending them. Used in development.
type ConsoleTransport struct {
	log *zap.Logger
}

// NewConsoleTransport creates a console transport.
func NewConsoleTransport(log *zap.Logger) *ConsoleTransport {
	return &ConsoleTransport{log: log}
}

// Name identifies the transport in logs.
func (t *ConsoleTransport) Name() string {
	return "console"
}

// Send writes the message to the log.
func (t *ConsoleTransport) Send(ctx context.Context, msg Message) error {
	t.log.Info("email",
		zap.Strings("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("text", msg.Text),
	)
	return nil
}

// NewTransport picks the transport named by cfg.EmailTransport.
func NewTransport(cfg *config.Config, log *zap.Logger) Transport {
	switch cfg.EmailTransport {
	case "smtp":
		return NewSMTPTransport(cfg)
	case "resend":
		return NewResendTransport(cfg.ResendAPIKey, fromHeader(cfg.SMTPFromName, cfg.SMTPFrom))
	default:
		return NewConsoleTransport(log.Named("console"))
	}
}

// DefaultMaxAttempts bounds delivery attempts for a queued message.
const DefaultMaxAttempts = 3

type outboxEntry struct {
	kind     string
	msg      Message
	attempts int
}

// Service sends messages, queueing failed ones for retry.
type Service struct {
	transport   Transport
	enabled     bool
	log         *zap.Logger
	maxAttempts int

	mu     sync.Mutex
	outbox []*outboxEntry
}

// NewService creates an email service over transport.
func NewService(transport Transport, enabled bool, log *zap.Logger) *Service {
	s := &Service{
		transport:   transport,
		enabled:     enabled,
		log:         log,
		maxAttempts: DefaultMaxAttempts,
	}

	if s.enabled {
		log.Info("email notifications enabled", zap.String("transport", transport.Name()))
	} else {
		log.Info("email notifications disabled (transport not configured)")
	}

	return s
}

// IsEnabled returns true if email is enabled.
func (s *Service) IsEnabled() bool {
	return s.enabled
}

// Send delivers msg now. On failure the message is queued for the next Flush and the error returned.
func (s *Service) Send(ctx context.Context, kind string, msg Message) error {
	if !s.enabled || len(msg.To) == 0 {
		return nil
	}

	if err := s.transport.Send(ctx, msg); err != nil {
		s.mu.Lock()
		s.outbox = append(s.outbox, &outboxEntry{kind: kind, msg: msg, attempts: 1})
		s.mu.Unlock()

		metrics.EmailsTotal.WithLabelValues(kind, "queued").Inc()
		s.log.Warn("email send failed, queued for retry",
			zap.String("type", kind),
			zap.String("to", maskRecipients(msg.To)),
			zap.Error(err),
		)
		return fmt.Errorf("send %s email: %w", kind, err)
	}

	metrics.EmailsTotal.WithLabelValues(kind, "sent").Inc()
	s.log.Info("email sent", zap.String("type", kind), zap.String("to", maskRecipients(msg.To)))
	return nil
}

// Pending returns the number of queued messages.
func (s *Service) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.outbox)
}

// Flush retries queued messages and returns how many were delivered. Messages that
// reach the attempt limit are dropped.
func (s *Service) Flush(ctx context.Context) int {
	s.mu.Lock()
	batch := s.outbox
	s.outbox = nil
	s.mu.Unlock()

	sent := 0
	var retry []*outboxEntry
	for _, e := range batch {
		if ctx.Err() != nil {
			retry = append(retry, e)
			continue
		}

		err := s.transport.Send(ctx, e.msg)
		if err == nil {
			sent++
			metrics.EmailsTotal.WithLabelValues(e.kind, "sent").Inc()
			continue
		}

		e.attempts++
		if e.attempts >= s.maxAttempts {
			metrics.EmailsTotal.WithLabelValues(e.kind, "dropped").Inc()
			s.log.Error("dropping email after repeated failures",
				zap.String("type", e.kind),
				zap.String("to", maskRecipients(e.msg.To)),
				zap.Int("attempts", e.attempts),
				zap.Error(err),
			)
			continue
		}
		retry = append(retry, e)
	}

	if len(retry) > 0 {
		s.mu.Lock()
		s.outbox = append(retry, s.outbox...)
		s.mu.Unlock()
	}
	return sent
}

func maskRecipients(to []string) string {
	masked := make([]string, len(to))
	for i, addr := range to {
		masked[i] = logger.MaskEmail(addr)
	}
	return strings.Join(masked, ", ")
}
