// handlers/progression_routes.go
package handlers

import (
	"net/url"
	"strings"

	"progress-ledger/middleware"
	"progress-ledger/services"

	"github.com/gofiber/fiber/v2"
)

func SetupProgressionRoutes(app *fiber.App, recorder *services.QuizRecorder, progression *services.ProgressionService) {
	group := app.Group("/progress", middleware.UserContextMiddleware())

	group.Post("/submit-quiz", func(c *fiber.Ctx) error {
		var req services.QuizSubmission
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid JSON",
				"code":  services.CodeInvalidInput,
			})
		}
		if strings.TrimSpace(req.UserID) == "" {
			req.UserID = middleware.CallerID(c)
		}
		if req.UserID != "" && !canAccess(c, req.UserID) {
			return forbidden(c)
		}

		res, err := recorder.Submit(c.UserContext(), req)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(res)
	})

	// registered before /:user_id so the literal segment wins
	group.Get("/leaderboard", func(c *fiber.Ctx) error {
		entries, err := progression.Leaderboard(c.UserContext(), intQuery(c, "limit", 10))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{
			"leaderboard": entries,
			"count":       len(entries),
		})
	})

	group.Get("/:user_id", func(c *fiber.Ctx) error {
		userID := c.Params("user_id")
		if !canAccess(c, userID) {
			return forbidden(c)
		}
		overview, err := progression.Overview(c.UserContext(), userID)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(overview)
	})

	user := group.Group("/user/:user_id", func(c *fiber.Ctx) error {
		if !canAccess(c, c.Params("user_id")) {
			return forbidden(c)
		}
		return c.Next()
	})

	user.Get("/topics", func(c *fiber.Ctx) error {
		topics, err := progression.Topics(c.UserContext(), c.Params("user_id"), c.Query("status"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{
			"topics": topics,
			"count":  len(topics),
		})
	})

	user.Get("/topics/:topic", func(c *fiber.Ctx) error {
		topic, err := url.PathUnescape(c.Params("topic"))
		if err != nil {
			topic = c.Params("topic")
		}
		detail, err := progression.Topic(c.UserContext(), c.Params("user_id"), topic, intQuery(c, "limit", 10))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(detail)
	})

	user.Get("/xp-history", func(c *fiber.Ctx) error {
		history, err := progression.Ledger.History(c.UserContext(), c.Params("user_id"), intQuery(c, "limit", 50))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{
			"history": history,
			"count":   len(history),
		})
	})

	user.Get("/quiz-history", func(c *fiber.Ctx) error {
		attempts, err := progression.QuizHistory(c.UserContext(), c.Params("user_id"), c.Query("topic"), intQuery(c, "limit", 50))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{
			"quizzes": attempts,
			"count":   len(attempts),
		})
	})

	user.Get("/stats", func(c *fiber.Ctx) error {
		stats, err := progression.Stats(c.UserContext(), c.Params("user_id"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(stats)
	})
}
