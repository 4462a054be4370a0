package api

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"birthdays/internal/config"
	"birthdays/internal/middleware"
	"birthdays/internal/models"
	"birthdays/internal/sharing"
	"birthdays/internal/validation"
)

// SharingLinkHandler manages an owner's sharing links via JSON API.
type SharingLinkHandler struct {
	links    *sharing.Service
	security *middleware.Security
	cfg      *config.Config
	log      *zap.Logger
}

// NewSharingLinkHandler creates a new sharing link handler.
func NewSharingLinkHandler(links *sharing.Service, security *middleware.Security, cfg *config.Config, log *zap.Logger) *SharingLinkHandler {
	return &SharingLinkHandler{links: links, security: security, cfg: cfg, log: log.Named("api")}
}

type sharingLinkResponse struct {
	ID           uuid.UUID `json:"id"`
	Token        string    `json:"token"`
	URL          string    `json:"url"`
	Description  *string   `json:"description,omitempty"`
	IsActive     bool      `json:"is_active"`
	ExpiresAt    time.Time `json:"expires_at"`
	CreatedAt    time.Time `json:"created_at"`
	PendingCount int       `json:"pending_count"`
}

func (h *SharingLinkHandler) toResponse(l *models.SharingLink) sharingLinkResponse {
	return sharingLinkResponse{
		ID:           l.ID,
		Token:        l.Token,
		URL:          h.cfg.BaseURL + "/share/" + l.Token,
		Description:  l.Description,
		IsActive:     l.IsActive,
		ExpiresAt:    l.ExpiresAt,
		CreatedAt:    l.CreatedAt,
		PendingCount: l.PendingCount,
	}
}

// Create issues a new sharing link after the security gate clears.
func (h *SharingLinkHandler) Create(c fiber.Ctx) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var body struct {
		Description     string `json:"description"`
		ExpirationHours int    `json:"expiration_hours"`
	}
	if len(c.Body()) > 0 {
		if err := json.Unmarshal(c.Body(), &body); err != nil {
			return jsonError(c, fiber.StatusBadRequest, "invalid request body")
		}
	}

	description, msg := validation.ValidateOptional("Description", body.Description, validation.MaxDescriptionLength)
	if msg != "" {
		return jsonValidationError(c, []string{msg})
	}
	if body.ExpirationHours < 0 || body.ExpirationHours > sharing.MaxExpirationHours {
		return jsonValidationError(c, []string{"Expiration must be between 1 and 720 hours"})
	}

	gate := h.security.CheckSharingLinkRateLimit(c.Context(), middleware.LinkRequest{
		OwnerID:   user.ID,
		IP:        c.IP(),
		UserAgent: c.Get(fiber.HeaderUserAgent),
	})
	if !gate.Allowed {
		return jsonRateLimited(c, gate.Reason, gate.RetryAfter)
	}

	link, err := h.links.CreateSharingLink(c.Context(), sharing.CreateLinkInput{
		OwnerID:         user.ID,
		Description:     description,
		ExpirationHours: body.ExpirationHours,
	})
	if err != nil {
		if errors.Is(err, sharing.ErrActiveLinkLimit) || errors.Is(err, sharing.ErrDailyLinkLimit) {
			return jsonRateLimited(c, err.Error(), 0)
		}
		h.log.Error("failed to create sharing link", zap.Stringer("owner_id", user.ID), zap.Error(err))
		return jsonError(c, fiber.StatusInternalServerError, "failed to create sharing link")
	}

	return jsonCreated(c, h.toResponse(link))
}

// List returns the owner's sharing links with their pending submission counts.
func (h *SharingLinkHandler) List(c fiber.Ctx) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized")
	}

	links, err := h.links.ListSharingLinks(c.Context(), user.ID)
	if err != nil {
		h.log.Error("failed to list sharing links", zap.Stringer("owner_id", user.ID), zap.Error(err))
		return jsonError(c, fiber.StatusInternalServerError, "failed to fetch sharing links")
	}

	resp := make([]sharingLinkResponse, len(links))
	for i := range links {
		resp[i] = h.toResponse(&links[i])
	}
	return jsonSuccess(c, resp)
}

// Quota reports how many more links the owner may create.
func (h *SharingLinkHandler) Quota(c fiber.Ctx) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized")
	}

	quota, err := h.links.CanCreateSharingLink(c.Context(), user.ID)
	if err != nil {
		h.log.Error("failed to check link quota", zap.Stringer("owner_id", user.ID), zap.Error(err))
		return jsonError(c, fiber.StatusInternalServerError, "failed to check quota")
	}
	return jsonSuccess(c, quota)
}

// Revoke deactivates one of the owner's links.
func (h *SharingLinkHandler) Revoke(c fiber.Ctx) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized")
	}

	id, ok := paramID(c)
	if !ok {
		return jsonError(c, fiber.StatusBadRequest, "invalid sharing link id")
	}

	link, err := h.links.RevokeSharingLink(c.Context(), id, user.ID)
	if err != nil {
		h.log.Error("failed to revoke sharing link", zap.Stringer("link_id", id), zap.Error(err))
		return jsonError(c, fiber.StatusInternalServerError, "failed to revoke sharing link")
	}
	if link == nil {
		return jsonError(c, fiber.StatusNotFound, "sharing link not found")
	}

	return jsonSuccess(c, h.toResponse(link))
}
