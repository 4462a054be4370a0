package api

import (
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v3"
	"go.uber.org/zap"

	"birthdays/internal/middleware"
	"birthdays/internal/submissions"
)

// BirthdayHandler manages the owner's own birthday list.
type BirthdayHandler struct {
	submissions *submissions.Service
	log         *zap.Logger
}

// NewBirthdayHandler creates a new birthday handler.
func NewBirthdayHandler(subs *submissions.Service, log *zap.Logger) *BirthdayHandler {
	return &BirthdayHandler{submissions: subs, log: log.Named("api")}
}

// List returns the owner's birthdays in calendar order.
func (h *BirthdayHandler) List(c fiber.Ctx) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized")
	}

	birthdays, err := h.submissions.ListBirthdays(c.Context(), user.ID)
	if err != nil {
		h.log.Error("failed to list birthdays", zap.Stringer("owner_id", user.ID), zap.Error(err))
		return jsonError(c, fiber.StatusInternalServerError, "failed to fetch birthdays")
	}
	return jsonSuccess(c, birthdays)
}

// Create adds a birthday entered by the owner.
func (h *BirthdayHandler) Create(c fiber.Ctx) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var input submissions.BirthdayInput
	if err := json.Unmarshal(c.Body(), &input); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid request body")
	}

	birthday, err := h.submissions.CreateBirthday(c.Context(), user.ID, input)
	if err != nil {
		var verr *submissions.ValidationError
		if errors.As(err, &verr) {
			return jsonValidationError(c, verr.Errors)
		}
		h.log.Error("failed to create birthday", zap.Stringer("owner_id", user.ID), zap.Error(err))
		return jsonError(c, fiber.StatusInternalServerError, "failed to create birthday")
	}
	return jsonCreated(c, birthday)
}
