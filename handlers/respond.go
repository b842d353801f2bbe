package handlers

import (
	"errors"
	"strconv"

	"progress-ledger/middleware"
	"progress-ledger/services"

	"github.com/gofiber/fiber/v2"
)

// respondError maps the service error taxonomy onto HTTP.
func respondError(c *fiber.Ctx, err error) error {
	code := services.CodeOf(err)
	status := fiber.StatusInternalServerError
	message := "internal error, please retry later"

	var se *services.Error
	errors.As(err, &se)
	switch code {
	case services.CodeInvalidInput:
		status = fiber.StatusBadRequest
	case services.CodeNotFound:
		status = fiber.StatusNotFound
	case services.CodeConflict:
		status = fiber.StatusConflict
	case services.CodeTimeout:
		status = fiber.StatusServiceUnavailable
		c.Set(fiber.HeaderRetryAfter, "1")
	}
	if status != fiber.StatusInternalServerError && se != nil && se.Message != "" {
		message = se.Message
	}
	return c.Status(status).JSON(fiber.Map{
		"error": message,
		"code":  code,
	})
}

// canAccess lets callers act on their own user id; admins and trusted
// internal callers (no gateway identity) may act on anyone.
func canAccess(c *fiber.Ctx, userID string) bool {
	caller := middleware.CallerID(c)
	return caller == "" || caller == userID || middleware.HasRole(c, "admin")
}

func forbidden(c *fiber.Ctx) error {
	return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
		"error": "access denied for this user",
		"code":  "forbidden",
	})
}

func intQuery(c *fiber.Ctx, key string, fallback int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return fallback
	}
	return v
}
