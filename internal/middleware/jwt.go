package middleware

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/accounts/internal/auth"
)

// Locals keys set by JWTAuth.
const (
	LocalUserID = "user_id"
	LocalPhone  = "phone"
	LocalRole   = "role"
)

// JWTAuth validates the bearer access token and exposes its claims as locals.
func JWTAuth(tokens *auth.TokenService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if len(authz) < len("Bearer ") || !strings.EqualFold(authz[:len("Bearer ")], "bearer ") {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		id, ok := tokens.VerifyAccess(strings.TrimSpace(authz[len("Bearer "):]))
		if !ok {
			return fiber.NewError(http.StatusUnauthorized, "invalid or expired token")
		}
		c.Locals(LocalUserID, id.UserID)
		c.Locals(LocalPhone, id.Phone)
		c.Locals(LocalRole, id.Role)
		return c.Next()
	}
}

// RequireRole rejects callers whose token role is not in roles. It must run
// after JWTAuth.
func RequireRole(roles ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		role, _ := c.Locals(LocalRole).(string)
		for _, r := range roles {
			if role == r {
				return c.Next()
			}
		}
		return fiber.NewError(http.StatusForbidden, "insufficient role")
	}
}
