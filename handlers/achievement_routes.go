package handlers

import (
	"progress-ledger/middleware"
	"progress-ledger/services"

	"github.com/gofiber/fiber/v2"
)

func SetupAchievementRoutes(app *fiber.App, badges *services.BadgeService, dispatcher *services.Dispatcher) {
	group := app.Group("/achievements", middleware.UserContextMiddleware())

	group.Get("/badges", func(c *fiber.Ctx) error {
		list := badges.Catalog.Badges(c.Query("category"))
		return c.JSON(fiber.Map{
			"badges": list,
			"count":  len(list),
		})
	})

	group.Get("/milestones", func(c *fiber.Ctx) error {
		list := badges.Catalog.Milestones(c.Query("category"))
		return c.JSON(fiber.Map{
			"milestones": list,
			"count":      len(list),
		})
	})

	group.Get("/leaderboard/badges", func(c *fiber.Ctx) error {
		entries, err := badges.Leaderboard(c.UserContext(), intQuery(c, "limit", 10))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{
			"leaderboard": entries,
			"count":       len(entries),
		})
	})

	user := group.Group("/user/:user_id", func(c *fiber.Ctx) error {
		if !canAccess(c, c.Params("user_id")) {
			return forbidden(c)
		}
		return c.Next()
	})

	user.Get("/badges", func(c *fiber.Ctx) error {
		list, err := badges.UserBadges(c.UserContext(), c.Params("user_id"), c.QueryBool("unseen_only", false))
		if err != nil {
			return respondError(c, err)
		}
		unseen := 0
		for _, b := range list {
			if !b.Seen {
				unseen++
			}
		}
		return c.JSON(fiber.Map{
			"badges":       list,
			"count":        len(list),
			"unseen_count": unseen,
		})
	})

	user.Get("/summary", func(c *fiber.Ctx) error {
		summary, err := badges.Summary(c.UserContext(), c.Params("user_id"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(summary)
	})

	user.Get("/milestones", func(c *fiber.Ctx) error {
		list, err := badges.UserMilestones(c.UserContext(), c.Params("user_id"))
		if err != nil {
			return respondError(c, err)
		}
		unseen := 0
		for _, m := range list {
			if !m.Seen {
				unseen++
			}
		}
		return c.JSON(fiber.Map{
			"milestones":   list,
			"count":        len(list),
			"unseen_count": unseen,
		})
	})

	user.Get("/progress", func(c *fiber.Ctx) error {
		progress, err := badges.Progress(c.UserContext(), c.Params("user_id"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{
			"progress": progress,
			"count":    len(progress),
		})
	})

	user.Post("/check", func(c *fiber.Ctx) error {
		unlocks, err := dispatcher.Evaluate(c.UserContext(), c.Params("user_id"))
		if err != nil {
			return respondError(c, err)
		}
		fresh := []services.Unlock{}
		for _, u := range unlocks {
			if u.NewlyUnlocked {
				fresh = append(fresh, u)
			}
		}
		return c.JSON(fiber.Map{
			"newly_unlocked": fresh,
			"count":          len(fresh),
		})
	})

	// An empty body marks every unseen badge and milestone. Otherwise only
	// the listed keys of each kind are marked.
	user.Post("/mark-seen", func(c *fiber.Ctx) error {
		var req struct {
			BadgeKeys     []string `json:"badge_keys"`
			MilestoneKeys []string `json:"milestone_keys"`
		}
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&req); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "invalid JSON",
					"code":  services.CodeInvalidInput,
				})
			}
		}
		all := len(req.BadgeKeys) == 0 && len(req.MilestoneKeys) == 0
		userID := c.Params("user_id")

		var badgesMarked, milestonesMarked int64
		var err error
		if all || len(req.BadgeKeys) > 0 {
			if badgesMarked, err = badges.MarkSeen(c.UserContext(), userID, req.BadgeKeys); err != nil {
				return respondError(c, err)
			}
		}
		if all || len(req.MilestoneKeys) > 0 {
			if milestonesMarked, err = badges.MarkMilestonesSeen(c.UserContext(), userID, req.MilestoneKeys); err != nil {
				return respondError(c, err)
			}
		}
		return c.JSON(fiber.Map{
			"marked":            badgesMarked,
			"marked_milestones": milestonesMarked,
		})
	})
}

// SetupHealthRoutes exposes a liveness probe outside the gateway check.
func SetupHealthRoutes(app *fiber.App) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
}
