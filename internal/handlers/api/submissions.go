package api

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"birthdays/internal/middleware"
	"birthdays/internal/submissions"
)

// maxBulkIDs caps the number of submissions in one bulk request.
const maxBulkIDs = 100

// ModerationHandler lets an owner review submissions sent through their links.
type ModerationHandler struct {
	submissions *submissions.Service
	log         *zap.Logger
}

// NewModerationHandler creates a new moderation handler.
func NewModerationHandler(subs *submissions.Service, log *zap.Logger) *ModerationHandler {
	return &ModerationHandler{submissions: subs, log: log.Named("api")}
}

// ListPending returns a page of the owner's pending submissions.
func (h *ModerationHandler) ListPending(c fiber.Ctx) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized")
	}

	page := queryInt(c, "page", 1)
	pageSize := queryInt(c, "page_size", submissions.DefaultPageSize)

	result, err := h.submissions.PendingSubmissions(c.Context(), user.ID, page, pageSize)
	if err != nil {
		h.log.Error("failed to list pending submissions", zap.Stringer("owner_id", user.ID), zap.Error(err))
		return jsonError(c, fiber.StatusInternalServerError, "failed to fetch submissions")
	}
	return jsonSuccess(c, result)
}

// Import adds a pending submission to the owner's birthdays.
func (h *ModerationHandler) Import(c fiber.Ctx) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized")
	}

	id, ok := paramID(c)
	if !ok {
		return jsonError(c, fiber.StatusBadRequest, "invalid submission id")
	}

	birthday, err := h.submissions.ImportSubmission(c.Context(), id, user.ID)
	if err != nil {
		return h.moderationError(c, err, id)
	}
	return jsonSuccess(c, birthday)
}

// Reject discards a pending submission.
func (h *ModerationHandler) Reject(c fiber.Ctx) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized")
	}

	id, ok := paramID(c)
	if !ok {
		return jsonError(c, fiber.StatusBadRequest, "invalid submission id")
	}

	if err := h.submissions.RejectSubmission(c.Context(), id, user.ID); err != nil {
		return h.moderationError(c, err, id)
	}
	return jsonSuccess(c, fiber.Map{"id": id})
}

// BulkImport imports several submissions, reporting each failure.
func (h *ModerationHandler) BulkImport(c fiber.Ctx) error {
	return h.bulk(c, h.submissions.BulkImportSubmissions)
}

// BulkReject rejects several submissions, reporting each failure.
func (h *ModerationHandler) BulkReject(c fiber.Ctx) error {
	return h.bulk(c, h.submissions.BulkRejectSubmissions)
}

type bulkFunc func(ctx context.Context, ids []uuid.UUID, ownerID uuid.UUID) *submissions.BulkResult

func (h *ModerationHandler) bulk(c fiber.Ctx, action bulkFunc) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var body struct {
		IDs []uuid.UUID `json:"ids"`
	}
	if err := json.Unmarshal(c.Body(), &body); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if len(body.IDs) == 0 {
		return jsonError(c, fiber.StatusBadRequest, "ids are required")
	}
	if len(body.IDs) > maxBulkIDs {
		return jsonError(c, fiber.StatusBadRequest, "too many ids in one request")
	}

	return jsonSuccess(c, action(c.Context(), body.IDs, user.ID))
}

// Duplicates lists the owner's birthdays that resemble a pending submission.
func (h *ModerationHandler) Duplicates(c fiber.Ctx) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized")
	}

	id, ok := paramID(c)
	if !ok {
		return jsonError(c, fiber.StatusBadRequest, "invalid submission id")
	}

	matches, err := h.submissions.SubmissionDuplicates(c.Context(), id, user.ID)
	if err != nil {
		return h.moderationError(c, err, id)
	}
	return jsonSuccess(c, matches)
}

func (h *ModerationHandler) moderationError(c fiber.Ctx, err error, id uuid.UUID) error {
	if errors.Is(err, submissions.ErrNotFoundOrProcessed) {
		return jsonError(c, fiber.StatusNotFound, "Submission not found or already processed")
	}
	h.log.Error("moderation action failed", zap.Stringer("submission_id", id), zap.Error(err))
	return jsonError(c, fiber.StatusInternalServerError, "failed to process submission")
}
