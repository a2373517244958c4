// handlers/progress_routes.go
package handlers

import (
	"encoding/json"
	"strconv"

	"player-progress-system/middleware"
	"player-progress-system/models"
	"player-progress-system/services"

	"github.com/gofiber/fiber/v2"
)

// SetupProgressRoutes wires the progress API. Every mutation goes through the
// transaction coordinator; clients pass an Idempotency-Key header (opaque
// string, recommended UUID) to make retries safe.
func SetupProgressRoutes(app *fiber.App, progressionService *services.ProgressionService, rewardService *services.RewardService, badgeService *services.BadgeService, leaderboardService *services.LeaderboardService) {
	// 🔐 Secured routes — require user context (userID) forwarded by the Gateway.
	// Mounted on /user so public routes (leaderboard) stay outside the guard.
	securedGroup := app.Group("/user", middleware.UserContextMiddleware())

	securedGroup.Get("/progress", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		prog, err := progressionService.EnsureProgressRecord(userID)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error":   "internal",
				"message": "failed to load progress record",
			})
		}

		_, tier, next := services.LevelForScore(prog.Score)
		response := fiber.Map{
			"id":                 prog.ID,
			"score":              prog.Score,
			"level":              prog.Level,
			"level_title":        tier.Title,
			"current_streak":     prog.CurrentStreak,
			"last_login_date":    prog.LastLoginDate,
			"badges":             prog.Badges,
			"badge_unlocks":      prog.BadgeUnlocks,
			"stats":              prog.Stats,
			"completed_levels":   prog.CompletedLevels,
			"unclaimed_rewards":  prog.UnclaimedRewards,
			"version":            prog.Version,
		}
		if next != nil {
			response["next_level_at"] = next.MinScore
		}
		return c.JSON(response)
	})

	securedGroup.Get("/progress/badges", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		prog, err := progressionService.EnsureProgressRecord(userID)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error":   "internal",
				"message": "failed to load progress record",
			})
		}

		var catalog []models.BadgeType
		if err := progressionService.DB.Find(&catalog).Error; err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error":   "internal",
				"message": "failed to load badge catalog",
			})
		}

		response := []fiber.Map{}
		for _, badge := range catalog {
			if !prog.HasBadge(badge.Code) {
				continue
			}
			response = append(response, fiber.Map{
				"code":        badge.Code,
				"name":        badge.Name,
				"description": badge.Description,
				"icon_url":    badge.IconURL,
				"rarity":      badge.Rarity,
				"unlocked_at": prog.BadgeUnlocks[badge.Code],
			})
		}
		return c.JSON(response)
	})

	securedGroup.Get("/progress/rewards", rewardService.GetUserRewards)
	securedGroup.Get("/progress/rewards/counts", rewardService.GetUserRewardCounts)

	securedGroup.Post("/progress/login", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		status, body := progressionService.RecordLogin(userID, idempotencyKey(c))
		return c.Status(status).JSON(body)
	})

	securedGroup.Post("/progress/score", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		var req struct {
			Delta           int64  `json:"delta" validate:"required,min=1"`
			ExpectedVersion *int64 `json:"expected_version"`
			Reason          string `json:"reason" validate:"max=255"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_json", "message": err.Error()})
		}

		status, body := progressionService.AddScore(userID, idempotencyKey(c), req.Delta, req.ExpectedVersion, req.Reason)
		syncLeaderboard(c, leaderboardService, userID, status, body)
		return c.Status(status).JSON(body)
	})

	securedGroup.Post("/progress/levels/complete", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		var req struct {
			GameID          string `json:"game_id" validate:"required"`
			LevelID         string `json:"level_id" validate:"required"`
			ExpectedVersion *int64 `json:"expected_version"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_json", "message": err.Error()})
		}

		status, body := progressionService.CompleteLevel(userID, idempotencyKey(c), req.GameID, req.LevelID, req.ExpectedVersion)
		syncLeaderboard(c, leaderboardService, userID, status, body)
		return c.Status(status).JSON(body)
	})

	securedGroup.Post("/progress/rewards/claim", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		var req struct {
			Token string `json:"token" validate:"required"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_json", "message": err.Error()})
		}

		status, body := progressionService.ClaimReward(userID, idempotencyKey(c), req.Token)
		return c.Status(status).JSON(body)
	})

	// Public leaderboard
	app.Get("/leaderboard", func(c *fiber.Ctx) error {
		n, _ := strconv.Atoi(c.Query("limit", "10"))
		entries, err := leaderboardService.TopN(c.Context(), n)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error":   "internal",
				"message": "failed to load leaderboard",
			})
		}
		return c.JSON(fiber.Map{"entries": entries})
	})

	// Admin endpoints
	adminGroup := app.Group("/s/admin", middleware.UserContextMiddleware())

	adminGroup.Post("/score/grant", func(c *fiber.Ctx) error {
		var req struct {
			UserID          string `json:"user_id" validate:"required,uuid"`
			Points          int64  `json:"points" validate:"required,min=1"`
			ExpectedVersion *int64 `json:"expected_version"`
			Reason          string `json:"reason" validate:"max=255"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_json", "message": err.Error()})
		}

		status, body := progressionService.AddScore(req.UserID, idempotencyKey(c), req.Points, req.ExpectedVersion, req.Reason)
		syncLeaderboard(c, leaderboardService, req.UserID, status, body)
		return c.Status(status).JSON(body)
	})

	adminGroup.Post("/score/penalty", func(c *fiber.Ctx) error {
		var req struct {
			UserID string `json:"user_id" validate:"required,uuid"`
			Points int64  `json:"points" validate:"required,min=1"`
			Reason string `json:"reason" validate:"max=255"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_json", "message": err.Error()})
		}

		status, body := progressionService.ApplyPenalty(req.UserID, idempotencyKey(c), req.Points, req.Reason)
		syncLeaderboard(c, leaderboardService, req.UserID, status, body)
		return c.Status(status).JSON(body)
	})

	adminGroup.Post("/badges", func(c *fiber.Ctx) error {
		name := c.FormValue("name")
		description := c.FormValue("description")
		rarity := c.FormValue("rarity")

		threshold := map[string]int64{}
		if raw := c.FormValue("threshold"); raw != "" {
			if err := json.Unmarshal([]byte(raw), &threshold); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error":   "invalid_threshold",
					"message": "threshold must be a JSON object of counter → minimum",
				})
			}
		}

		icon, _ := c.FormFile("icon") // optional

		badge, err := badgeService.CreateBadgeType(name, description, rarity, threshold, icon)
		if err != nil {
			status, body := services.ClassifyError(err)
			return c.Status(status).JSON(body)
		}
		return c.Status(fiber.StatusCreated).JSON(badge)
	})
}

// idempotencyKey pulls the client-supplied retry key, empty when absent.
func idempotencyKey(c *fiber.Ctx) string {
	return c.Get("Idempotency-Key")
}

// syncLeaderboard mirrors a committed score into the cache (best-effort).
func syncLeaderboard(c *fiber.Ctx, lb *services.LeaderboardService, userID string, status int, body fiber.Map) {
	if status != fiber.StatusOK {
		return
	}
	switch v := body["score"].(type) {
	case int64:
		lb.RecordScore(c.Context(), userID, v)
	case float64: // replayed responses round-trip through JSON
		lb.RecordScore(c.Context(), userID, int64(v))
	}
}
