// middleware/gateway.go
package middleware

import (
	"crypto/subtle"
	"strings"

	"progress-ledger/utils"

	"github.com/gofiber/fiber/v2"
)

// GatewayAuthMiddleware validates the Bearer token from the Gateway.
// An empty expectedToken disables the check (local development).
func GatewayAuthMiddleware(expectedToken string, log *utils.Logger) fiber.Handler {
	if expectedToken == "" {
		log.Warn("GATEWAY_TOKEN not set, gateway authentication disabled")
		return func(c *fiber.Ctx) error { return c.Next() }
	}

	return func(c *fiber.Ctx) error {
		if c.Path() == "/health" {
			return c.Next()
		}
		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			log.Warn("gateway auth: missing Authorization header", "path", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "gateway authentication token missing",
			})
		}

		// accept both "Bearer <token>" and the raw token
		token := strings.TrimPrefix(authHeader, "Bearer ")
		if subtle.ConstantTimeCompare([]byte(token), []byte(expectedToken)) != 1 {
			log.Warn("gateway auth: invalid token", "path", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid gateway authentication token",
			})
		}
		return c.Next()
	}
}
