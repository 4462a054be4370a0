package db

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"birthdays/internal/models"
)

// GetNotificationPreference returns a user's stored preferences, or ErrPreferenceNotFound.
func (d *DB) GetNotificationPreference(ctx context.Context, userID uuid.UUID) (*models.NotificationPreference, error) {
	var p models.NotificationPreference
	err := d.Pool.QueryRow(ctx, `
		SELECT user_id, email_notifications, summary_notifications, birthday_reminders
		FROM notification_preferences
		WHERE user_id = $1
	`, userID).Scan(&p.UserID, &p.EmailNotifications, &p.SummaryNotifications, &p.BirthdayReminders)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPreferenceNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// UpsertNotificationPreference stores a user's preferences, replacing any existing row.
func (d *DB) UpsertNotificationPreference(ctx context.Context, p *models.NotificationPreference) error {
	_, err := d.Pool.Exec(ctx, `
		INSERT INTO notification_preferences (user_id, email_notifications, summary_notifications, birthday_reminders)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE SET
			email_notifications = EXCLUDED.email_notifications,
			summary_notifications = EXCLUDED.summary_notifications,
			birthday_reminders = EXCLUDED.birthday_reminders,
			updated_at = NOW()
	`, p.UserID, p.EmailNotifications, p.SummaryNotifications, p.BirthdayReminders)
	return err
}
