// middleware/auth.go
package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

const (
	localUserID    = "user_id"
	localUserRoles = "user_roles"
)

// UserContextMiddleware extracts the caller identity and roles forwarded by
// the gateway. Requests without X-User-ID are internal calls.
func UserContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := strings.TrimSpace(c.Get("X-User-ID"))

		var roles []string
		for _, r := range strings.Split(c.Get("X-User-Roles"), ",") {
			if r = strings.TrimSpace(r); r != "" {
				roles = append(roles, r)
			}
		}

		c.Locals(localUserID, userID)
		c.Locals(localUserRoles, roles)
		return c.Next()
	}
}

// CallerID returns the gateway user id, or "" for internal calls.
func CallerID(c *fiber.Ctx) string {
	id, _ := c.Locals(localUserID).(string)
	return id
}

func HasRole(c *fiber.Ctx, role string) bool {
	roles, _ := c.Locals(localUserRoles).([]string)
	for _, r := range roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}
