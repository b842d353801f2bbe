package middleware

import (
	"time"

	"progress-ledger/utils"

	"github.com/gofiber/fiber/v2"
)

// RequestLogger logs one line per request after the handler ran.
func RequestLogger(log *utils.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		status := c.Response().StatusCode()
		kv := []interface{}{
			"method", c.Method(),
			"path", c.Path(),
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
		}
		if caller := CallerID(c); caller != "" {
			kv = append(kv, "caller", caller)
		}
		switch {
		case err != nil || status >= fiber.StatusInternalServerError:
			log.Error("request", append(kv, "error", err)...)
		case status >= fiber.StatusBadRequest:
			log.Warn("request", kv...)
		default:
			log.Debug("request", kv...)
		}
		return err
	}
}
