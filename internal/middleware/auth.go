package middleware

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v3"
	"go.uber.org/zap"

	"birthdays/internal/models"
)

// UserStore resolves identities forwarded by the auth proxy.
type UserStore interface {
	UpsertUser(ctx context.Context, user *models.User) error
}

// AuthMiddleware trusts identity headers set by the upstream auth proxy.
type AuthMiddleware struct {
	store       UserStore
	log         *zap.Logger
	userHeader  string
	emailHeader string
	nameHeader  string
}

// NewAuthMiddleware creates a new auth middleware instance.
func NewAuthMiddleware(store UserStore, userHeader, emailHeader, nameHeader string, log *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		store:       store,
		log:         log.Named("auth"),
		userHeader:  userHeader,
		emailHeader: emailHeader,
		nameHeader:  nameHeader,
	}
}

// RequireAuth ensures the request carries an identity, responding 401 if not.
func (m *AuthMiddleware) RequireAuth(c fiber.Ctx) error {
	user, err := m.resolve(c)
	if err != nil {
		m.log.Error("failed to upsert user", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"status": "error", "error": "failed to load user"})
	}
	if user == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"status": "error", "error": "unauthorized"})
	}

	c.Locals("user", user)
	return c.Next()
}

// OptionalAuth loads the user if an identity is present, but doesn't require one.
func (m *AuthMiddleware) OptionalAuth(c fiber.Ctx) error {
	if user, err := m.resolve(c); err == nil && user != nil {
		c.Locals("user", user)
	}
	return c.Next()
}

func (m *AuthMiddleware) resolve(c fiber.Ctx) (*models.User, error) {
	sub := strings.TrimSpace(c.Get(m.userHeader))
	if sub == "" {
		return nil, nil
	}

	user := &models.User{
		Sub:   sub,
		Email: strings.ToLower(strings.TrimSpace(c.Get(m.emailHeader))),
		Name:  strings.TrimSpace(c.Get(m.nameHeader)),
	}
	if err := m.store.UpsertUser(c.Context(), user); err != nil {
		return nil, err
	}
	return user, nil
}

// CurrentUser returns the authenticated user stored by RequireAuth.
func CurrentUser(c fiber.Ctx) (*models.User, bool) {
	user, ok := c.Locals("user").(*models.User)
	return user, ok && user != nil
}
