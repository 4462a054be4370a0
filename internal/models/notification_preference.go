package models

import (
	"github.com/google/uuid"
)

// Notification types used by unsubscribe links.
const (
	NotificationSubmission = "submission"
	NotificationSummary    = "summary"
	NotificationReminder   = "reminder"
)

// NotificationPreference holds a user's email opt-ins.
type NotificationPreference struct {
	UserID               uuid.UUID `json:"user_id"`
	EmailNotifications   bool      `json:"email_notifications"`
	SummaryNotifications bool      `json:"summary_notifications"`
	BirthdayReminders    bool      `json:"birthday_reminders"`
}

// DefaultNotificationPreference returns the preferences assumed when none are stored.
func DefaultNotificationPreference(userID uuid.UUID) *NotificationPreference {
	return &NotificationPreference{
		UserID:             userID,
		EmailNotifications: true,
	}
}

// Disable turns off the preference matching a notification type. Reports false for unknown types.
func (p *NotificationPreference) Disable(notificationType string) bool {
	switch notificationType {
	case NotificationSubmission:
		p.EmailNotifications = false
	case NotificationSummary:
		p.SummaryNotifications = false
	case NotificationReminder:
		p.BirthdayReminders = false
	default:
		return false
	}
	return true
}
