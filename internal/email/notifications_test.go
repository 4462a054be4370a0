package email

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"birthdays/internal/config"
	"birthdays/internal/models"
	"birthdays/internal/testutil"
)

func testConfig() *config.Config {
	return &config.Config{
		EmailTransport:    "console",
		BaseURL:           "https://birthdays.example.com",
		SiteTitle:         "Birthdays",
		UnsubscribeSecret: "test-secret",
	}
}

func newTestNotifier(t *testing.T) (*Notifier, *mockTransport, *testutil.MemoryStore) {
	t.Helper()
	transport := &mockTransport{}
	store := testutil.NewMemoryStore()
	return NewNotifier(testConfig(), transport, store, zaptest.NewLogger(t)), transport, store
}

func sentTo(addr string) any {
	return mock.MatchedBy(func(msg Message) bool {
		return len(msg.To) == 1 && msg.To[0] == addr
	})
}

func TestNotifier_GetPreferencesDefaults(t *testing.T) {
	n, _, store := newTestNotifier(t)
	ctx := context.Background()
	userID := uuid.New()

	pref := n.GetPreferences(ctx, userID)
	assert.Equal(t, models.DefaultNotificationPreference(userID), pref)

	store.FailOn("GetNotificationPreference", errors.New("connection reset"))
	pref = n.GetPreferences(ctx, userID)
	assert.True(t, pref.EmailNotifications)
	assert.False(t, pref.SummaryNotifications)
}

func TestNotifier_SendSubmissionNotification(t *testing.T) {
	n, transport, store := newTestNotifier(t)
	ctx := context.Background()
	owner := store.AddUser("owner@example.com", "Owner")
	link := &models.SharingLink{ID: uuid.New(), OwnerID: owner.ID}
	sub := &models.BirthdaySubmission{Name: "Avery", Date: models.NewDate(1990, 3, 14)}

	transport.On("Send", mock.Anything, sentTo("owner@example.com")).Return(nil).Once()
	require.NoError(t, n.SendSubmissionNotification(ctx, owner, link, sub))
	transport.AssertExpectations(t)

	// Opted out
	require.NoError(t, n.UpdatePreferences(ctx, &models.NotificationPreference{UserID: owner.ID}))
	require.NoError(t, n.SendSubmissionNotification(ctx, owner, link, sub))
	transport.AssertNumberOfCalls(t, "Send", 1)
}

func TestNotifier_SendSubmissionNotificationNoEmail(t *testing.T) {
	n, transport, store := newTestNotifier(t)
	owner := store.AddUser("", "No Email")

	err := n.SendSubmissionNotification(context.Background(), owner, &models.SharingLink{}, &models.BirthdaySubmission{Name: "Avery"})
	require.NoError(t, err)
	transport.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestNotifier_SendSummaryNotification(t *testing.T) {
	n, transport, store := newTestNotifier(t)
	ctx := context.Background()
	owner := store.AddUser("owner@example.com", "Owner")

	// Summary opt-in is off by default
	sent, err := n.SendSummaryNotification(ctx, owner.ID, 3)
	require.NoError(t, err)
	assert.False(t, sent)

	require.NoError(t, n.UpdatePreferences(ctx, &models.NotificationPreference{
		UserID:               owner.ID,
		EmailNotifications:   false,
		SummaryNotifications: true,
	}))
	sent, err = n.SendSummaryNotification(ctx, owner.ID, 3)
	require.NoError(t, err)
	assert.False(t, sent, "summary requires the general email opt-in too")

	require.NoError(t, n.UpdatePreferences(ctx, &models.NotificationPreference{
		UserID:               owner.ID,
		EmailNotifications:   true,
		SummaryNotifications: true,
	}))
	transport.On("Send", mock.Anything, sentTo("owner@example.com")).Return(nil).Once()
	sent, err = n.SendSummaryNotification(ctx, owner.ID, 3)
	require.NoError(t, err)
	assert.True(t, sent)

	sent, err = n.SendSummaryNotification(ctx, owner.ID, 0)
	require.NoError(t, err)
	assert.False(t, sent)
	transport.AssertExpectations(t)
}

func TestNotifier_SendBirthdayReminder(t *testing.T) {
	n, transport, store := newTestNotifier(t)
	ctx := context.Background()
	owner := store.AddUser("owner@example.com", "Owner")
	birthdays := []models.Birthday{{Name: "Avery"}}

	sent, err := n.SendBirthdayReminder(ctx, owner.ID, birthdays)
	require.NoError(t, err)
	assert.False(t, sent)

	require.NoError(t, n.UpdatePreferences(ctx, &models.NotificationPreference{
		UserID:            owner.ID,
		BirthdayReminders: true,
	}))
	transport.On("Send", mock.Anything, sentTo("owner@example.com")).Return(errors.New("smtp down")).Once()
	sent, err = n.SendBirthdayReminder(ctx, owner.ID, birthdays)
	assert.True(t, sent)
	assert.Error(t, err)
	assert.Equal(t, 1, n.Service().Pending())

	transport.On("Send", mock.Anything, sentTo("owner@example.com")).Return(nil).Once()
	assert.Equal(t, 1, n.FlushOutbox(ctx))
	transport.AssertExpectations(t)
}

func TestNotifier_Unsubscribe(t *testing.T) {
	n, _, store := newTestNotifier(t)
	ctx := context.Background()
	owner := store.AddUser("owner@example.com", "Owner")

	token := UnsubscribeToken("test-secret", owner.ID, models.NotificationSubmission)

	_, err := n.Unsubscribe(ctx, owner.ID, models.NotificationSummary, token)
	assert.ErrorIs(t, err, ErrInvalidUnsubscribeToken)

	_, err = n.Unsubscribe(ctx, owner.ID, "unknown", UnsubscribeToken("test-secret", owner.ID, "unknown"))
	assert.ErrorIs(t, err, ErrInvalidUnsubscribeToken)

	pref, err := n.Unsubscribe(ctx, owner.ID, models.NotificationSubmission, token)
	require.NoError(t, err)
	assert.False(t, pref.EmailNotifications)

	stored, err := store.GetNotificationPreference(ctx, owner.ID)
	require.NoError(t, err)
	assert.False(t, stored.EmailNotifications)
}
