package api

import (
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v3"
	"go.uber.org/zap"

	"birthdays/internal/middleware"
	"birthdays/internal/sharing"
	"birthdays/internal/submissions"
	"birthdays/internal/validation"
)

// ShareHandler serves the public, unauthenticated side of a sharing link.
type ShareHandler struct {
	links       *sharing.Service
	security    *middleware.Security
	submissions *submissions.Service
	log         *zap.Logger
}

// NewShareHandler creates a new public share handler.
func NewShareHandler(links *sharing.Service, security *middleware.Security, subs *submissions.Service, log *zap.Logger) *ShareHandler {
	return &ShareHandler{links: links, security: security, submissions: subs, log: log.Named("api")}
}

type shareStatus struct {
	Valid       bool       `json:"valid"`
	IsOwner     bool       `json:"is_owner"`
	OwnerName   string     `json:"owner_name,omitempty"`
	Description *string    `json:"description,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// Status reports whether a token is usable, for rendering the public share page.
func (h *ShareHandler) Status(c fiber.Ctx) error {
	link, err := h.links.ValidateSharingLink(c.Context(), c.Params("token"))
	if err != nil {
		h.log.Error("failed to validate sharing link", zap.Error(err))
		return jsonError(c, fiber.StatusInternalServerError, "failed to check sharing link")
	}
	if link == nil {
		return jsonSuccess(c, shareStatus{Valid: false})
	}

	status := shareStatus{
		Valid:       true,
		Description: link.Description,
		ExpiresAt:   &link.ExpiresAt,
	}
	if link.Owner != nil {
		status.OwnerName = link.Owner.DisplayName()
	}
	// Signed-in owners previewing their own page
	if user, ok := middleware.CurrentUser(c); ok {
		status.IsOwner = user.ID == link.OwnerID
	}
	return jsonSuccess(c, status)
}

// Submit accepts a birthday suggestion from a visitor.
func (h *ShareHandler) Submit(c fiber.Ctx) error {
	token := c.Params("token")

	var input validation.SubmissionInput
	if err := json.Unmarshal(c.Body(), &input); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid request body")
	}

	gate := h.security.CheckSubmissionSecurity(c.Context(), middleware.SubmissionRequest{
		Token:     token,
		IP:        c.IP(),
		UserAgent: c.Get(fiber.HeaderUserAgent),
		Input:     input,
	})
	if !gate.Allowed {
		if gate.Reason == middleware.ReasonLinkDisabled {
			return jsonError(c, fiber.StatusForbidden, gate.Reason)
		}
		return jsonRateLimited(c, gate.Reason, gate.RetryAfter)
	}

	result := h.submissions.ProcessSubmission(c.Context(), token, input, c.IP())
	if result.Success {
		return jsonCreated(c, result)
	}

	switch result.Failure {
	case submissions.FailureInvalidLink:
		return jsonError(c, fiber.StatusNotFound, submissions.MsgInvalidLink)
	case submissions.FailureValidation:
		return jsonValidationError(c, result.Errors)
	case submissions.FailureRateLimited:
		return jsonRateLimited(c, submissions.MsgLinkRateLimit, 0)
	default:
		return jsonError(c, fiber.StatusInternalServerError, submissions.MsgSubmitFailed)
	}
}
