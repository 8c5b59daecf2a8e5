package auth

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/ProductBay/vynce/internal/domain"
	apperrors "github.com/ProductBay/vynce/pkg/errors"
)

const bearerPrefix = "Bearer "

// RequireAccessToken verifies the bearer token and stores the caller's identity in the
// fiber locals and the user context. Browsers' EventSource cannot set headers, so the
// token may also arrive as the access_token query parameter. Role checks belong to
// RequireAdmin.
func RequireAccessToken(m *Manager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := bearerToken(c)
		if token == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing bearer token")
		}

		claims, err := m.Verify(token, TokenTypeAccess, time.Now())
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid token")
		}
		id := Identity{
			UserID: uuid.MustParse(claims.UserID),
			Email:  claims.Email,
			Role:   domain.Role(claims.Role),
		}
		c.Locals(localsKey, id)
		c.SetUserContext(WithIdentity(c.UserContext(), id))
		return c.Next()
	}
}

// RequireAdmin rejects callers without an administrative role.
func RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := FromFiber(c)
		if !ok {
			return fiber.NewError(fiber.StatusUnauthorized, apperrors.ErrUnauthorized.Error())
		}
		if !id.Role.IsAdmin() {
			return fiber.NewError(fiber.StatusForbidden, "admin access required")
		}
		return c.Next()
	}
}

func bearerToken(c *fiber.Ctx) string {
	raw := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	if strings.HasPrefix(raw, bearerPrefix) {
		return strings.TrimSpace(strings.TrimPrefix(raw, bearerPrefix))
	}
	return strings.TrimSpace(c.Query("access_token"))
}
