package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/property-service/internal/api/dto"
	"github.com/spec-kit/property-service/internal/auth"
	apperrors "github.com/spec-kit/property-service/pkg/util"
)

// SessionLogout deactivates a caller's session. service.SessionService implements it.
type SessionLogout interface {
	Logout(ctx context.Context, userID int64, token string) error
}

// SessionHandler exposes endpoints describing or ending the caller's session.
type SessionHandler struct {
	sessions SessionLogout
}

// NewSessionHandler constructs handler.
func NewSessionHandler(sessions SessionLogout) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// Me handles GET /api/me.
func (h *SessionHandler) Me(c *fiber.Ctx) error {
	return h.describe(c)
}

// WhoAmI handles GET /api/whoami.
func (h *SessionHandler) WhoAmI(c *fiber.Ctx) error {
	return h.describe(c)
}

// Logout handles POST /auth/logout.
func (h *SessionHandler) Logout(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("Missing token", nil)
	}
	if err := h.sessions.Logout(c.UserContext(), principal.UserID, principal.SessionToken); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *SessionHandler) describe(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("Missing token", nil)
	}

	resp := dto.PrincipalResponse{
		UserID:   principal.UserID,
		Role:     string(principal.Role),
		Mode:     principal.Mode.String(),
		Degraded: principal.Degraded,
	}
	if principal.Claims != nil && principal.Claims.ExpiresAt != nil {
		exp := principal.Claims.ExpiresAt.Time
		resp.ExpiresAt = &exp
	}
	return c.JSON(fiber.Map{"data": resp})
}
