package auth

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/ProductBay/vynce/internal/domain"
)

// Identity is the authenticated caller of a request.
type Identity struct {
	UserID uuid.UUID
	Email  string
	Role   domain.Role
}

type ctxKey struct{}

const localsKey = "vynce.identity"

// WithIdentity stores id on ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the identity stored on ctx.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}

// FromFiber returns the identity set by RequireAccessToken.
func FromFiber(c *fiber.Ctx) (Identity, bool) {
	id, ok := c.Locals(localsKey).(Identity)
	return id, ok
}
