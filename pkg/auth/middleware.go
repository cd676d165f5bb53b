package auth

import (
	"strings"

	"github.com/gofiber/fiber/v3"

	"github.com/shieldllm/ileguard/pkg/model"
)

// LocalsUserID is the fiber locals key holding the authenticated user id.
const LocalsUserID = "user_id"

// Middleware returns a fiber handler enforcing a valid bearer token. On
// success the user id is stored in locals for downstream handlers.
func Middleware(tm *TokenManager) fiber.Handler {
	return func(c fiber.Ctx) error {
		header := c.Get("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			return model.ErrUnauthorized
		}
		claims, err := tm.Validate(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			return model.ErrUnauthorized
		}
		c.Locals(LocalsUserID, claims.Subject)
		return c.Next()
	}
}

// UserID extracts the authenticated user id set by Middleware.
func UserID(c fiber.Ctx) string {
	if id, ok := c.Locals(LocalsUserID).(string); ok {
		return id
	}
	return ""
}
