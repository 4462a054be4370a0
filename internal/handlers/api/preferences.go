package api

import (
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"birthdays/internal/email"
	"birthdays/internal/middleware"
)

// PreferenceHandler reads and updates email notification preferences.
type PreferenceHandler struct {
	notifier *email.Notifier
	log      *zap.Logger
}

// NewPreferenceHandler creates a new preference handler.
func NewPreferenceHandler(notifier *email.Notifier, log *zap.Logger) *PreferenceHandler {
	return &PreferenceHandler{notifier: notifier, log: log.Named("api")}
}

// Get returns the current user's preferences, or the defaults if none are stored.
func (h *PreferenceHandler) Get(c fiber.Ctx) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized")
	}
	return jsonSuccess(c, h.notifier.GetPreferences(c.Context(), user.ID))
}

// Update changes the fields present in the request body.
func (h *PreferenceHandler) Update(c fiber.Ctx) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var body struct {
		EmailNotifications   *bool `json:"email_notifications"`
		SummaryNotifications *bool `json:"summary_notifications"`
		BirthdayReminders    *bool `json:"birthday_reminders"`
	}
	if err := json.Unmarshal(c.Body(), &body); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid request body")
	}

	pref := h.notifier.GetPreferences(c.Context(), user.ID)
	if body.EmailNotifications != nil {
		pref.EmailNotifications = *body.EmailNotifications
	}
	if body.SummaryNotifications != nil {
		pref.SummaryNotifications = *body.SummaryNotifications
	}
	if body.BirthdayReminders != nil {
		pref.BirthdayReminders = *body.BirthdayReminders
	}

	if err := h.notifier.UpdatePreferences(c.Context(), pref); err != nil {
		h.log.Error("failed to update preferences", zap.Stringer("user_id", user.ID), zap.Error(err))
		return jsonError(c, fiber.StatusInternalServerError, "failed to update preferences")
	}
	return jsonSuccess(c, pref)
}

// Unsubscribe handles the one-click link included in every email.
func (h *PreferenceHandler) Unsubscribe(c fiber.Ctx) error {
	userID, err := uuid.Parse(c.Query("user"))
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid unsubscribe link")
	}

	pref, err := h.notifier.Unsubscribe(c.Context(), userID, c.Query("type"), c.Query("token"))
	if err != nil {
		if errors.Is(err, email.ErrInvalidUnsubscribeToken) {
			return jsonError(c, fiber.StatusBadRequest, "invalid unsubscribe link")
		}
		h.log.Error("failed to unsubscribe", zap.Stringer("user_id", userID), zap.Error(err))
		return jsonError(c, fiber.StatusInternalServerError, "failed to update preferences")
	}
	return jsonSuccess(c, pref)
}
