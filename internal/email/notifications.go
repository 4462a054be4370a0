package email

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"birthdays/internal/config"
	"birthdays/internal/db"
	"birthdays/internal/metrics"
	"birthdays/internal/models"
)

// PreferenceStore is the persistence the notifier needs.
type PreferenceStore interface {
	GetNotificationPreference(ctx context.Context, userID uuid.UUID) (*models.NotificationPreference, error)
	UpsertNotificationPreference(ctx context.Context, p *models.NotificationPreference) error
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// Notifier decides whether to email a user and what to send.
type Notifier struct {
	service   *Service
	templates *Templates
	store     PreferenceStore
	baseURL   string
	secret    string
	log       *zap.Logger
}

// NewNotifier creates a notifier delivering through transport.
func NewNotifier(cfg *config.Config, transport Transport, store PreferenceStore, log *zap.Logger) *Notifier {
	log = log.Named("email")
	return &Notifier{
		service:   NewService(transport, cfg.IsEmailEnabled(), log),
		templates: NewTemplates(cfg.SiteTitle, cfg.BaseURL),
		store:     store,
		baseURL:   cfg.BaseURL,
		secret:    cfg.UnsubscribeSecret,
		log:       log,
	}
}

// Service returns the underlying sender.
func (n *Notifier) Service() *Service {
	return n.service
}

// GetPreferences returns the user's preferences, falling back to defaults when none are
// stored or the lookup fails.
func (n *Notifier) GetPreferences(ctx context.Context, userID uuid.UUID) *models.NotificationPreference {
	pref, err := n.store.GetNotificationPreference(ctx, userID)
	if err != nil {
		if !errors.Is(err, db.ErrPreferenceNotFound) {
			n.log.Warn("failed to load notification preferences, using defaults", zap.Stringer("user_id", userID), zap.Error(err))
		}
		return models.DefaultNotificationPreference(userID)
	}
	return pref
}

// UpdatePreferences stores the user's preferences.
func (n *Notifier) UpdatePreferences(ctx context.Context, pref *models.NotificationPreference) error {
	if err := n.store.UpsertNotificationPreference(ctx, pref); err != nil {
		return fmt.Errorf("update notification preferences: %w", err)
	}
	return nil
}

// Unsubscribe verifies token and turns off the matching preference.
func (n *Notifier) Unsubscribe(ctx context.Context, userID uuid.UUID, notificationType, token string) (*models.NotificationPreference, error) {
	if !VerifyUnsubscribeToken(n.secret, userID, notificationType, token) {
		return nil, ErrInvalidUnsubscribeToken
	}

	pref := n.GetPreferences(ctx, userID)
	if !pref.Disable(notificationType) {
		return nil, ErrInvalidUnsubscribeToken
	}
	if err := n.UpdatePreferences(ctx, pref); err != nil {
		return nil, err
	}

	n.log.Info("user unsubscribed", zap.Stringer("user_id", userID), zap.String("type", notificationType))
	return pref, nil
}

func (n *Notifier) unsubscribeURL(userID uuid.UUID, notificationType string) string {
	return UnsubscribeURL(n.baseURL, n.secret, userID, notificationType)
}

// SendSubmissionNotification emails the owner about a new submission unless they opted out.
func (n *Notifier) SendSubmissionNotification(ctx context.Context, owner *models.User, link *models.SharingLink, sub *models.BirthdaySubmission) error {
	if !n.service.IsEnabled() {
		return nil
	}

	pref := n.GetPreferences(ctx, owner.ID)
	if !pref.EmailNotifications {
		n.log.Debug("submission notification skipped, disabled by user", zap.Stringer("user_id", owner.ID))
		metrics.EmailsTotal.WithLabelValues(models.NotificationSubmission, "skipped").Inc()
		return nil
	}
	if owner.Email == "" {
		n.log.Error("submission notification skipped, owner has no email", zap.Stringer("user_id", owner.ID))
		metrics.EmailsTotal.WithLabelValues(models.NotificationSubmission, "skipped").Inc()
		return nil
	}

	subject, htmlBody, textBody := n.templates.SubmissionReceived(owner, link, sub, n.unsubscribeURL(owner.ID, models.NotificationSubmission))
	return n.service.Send(ctx, models.NotificationSubmission, Message{
		To:      []string{owner.Email},
		Subject: subject,
		HTML:    htmlBody,
		Text:    textBody,
	})
}

// SendSummaryNotification emails the pending-review digest. It requires both the general
// email opt-in and the summary opt-in. Reports whether a message was attempted.
func (n *Notifier) SendSummaryNotification(ctx context.Context, userID uuid.UUID, pending int) (bool, error) {
	if !n.service.IsEnabled() || pending <= 0 {
		return false, nil
	}

	pref := n.GetPreferences(ctx, userID)
	if !pref.EmailNotifications || !pref.SummaryNotifications {
		return false, nil
	}

	owner, err := n.recipient(ctx, userID)
	if owner == nil {
		return false, err
	}

	subject, htmlBody, textBody := n.templates.PendingSummary(owner, pending, n.unsubscribeURL(userID, models.NotificationSummary))
	return true, n.service.Send(ctx, models.NotificationSummary, Message{
		To:      []string{owner.Email},
		Subject: subject,
		HTML:    htmlBody,
		Text:    textBody,
	})
}

// SendBirthdayReminder emails the owner the birthdays falling today if they opted in.
func (n *Notifier) SendBirthdayReminder(ctx context.Context, userID uuid.UUID, birthdays []models.Birthday) (bool, error) {
	if !n.service.IsEnabled() || len(birthdays) == 0 {
		return false, nil
	}

	pref := n.GetPreferences(ctx, userID)
	if !pref.BirthdayReminders {
		return false, nil
	}

	owner, err := n.recipient(ctx, userID)
	if owner == nil {
		return false, err
	}

	subject, htmlBody, textBody := n.templates.BirthdayReminder(owner, birthdays, n.unsubscribeURL(userID, models.NotificationReminder))
	return true, n.service.Send(ctx, models.NotificationReminder, Message{
		To:      []string{owner.Email},
		Subject: subject,
		HTML:    htmlBody,
		Text:    textBody,
	})
}

// recipient loads a user with an email address, or returns nil.
func (n *Notifier) recipient(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	owner, err := n.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if owner.Email == "" {
		n.log.Error("notification skipped, user has no email", zap.Stringer("user_id", userID))
		return nil, nil
	}
	return owner, nil
}

// FlushOutbox retries queued messages and returns how many were delivered.
func (n *Notifier) FlushOutbox(ctx context.Context) int {
	return n.service.Flush(ctx)
}
