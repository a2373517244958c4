// services/reward_service.go
package services

import (
	"log"
	"strconv"

	"player-progress-system/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// RewardService covers the read side of rewards. Claiming is a progress
// mutation and lives on ProgressionService behind the coordinator.
type RewardService struct {
	DB *gorm.DB
}

func NewRewardService(db *gorm.DB) *RewardService {
	return &RewardService{DB: db}
}

// GetUserRewards fetches rewards for the *authenticated* user based on filters
func (s *RewardService) GetUserRewards(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	if userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "user ID not found in context"})
	}

	limitStr := c.Query("limit")     // e.g., limit=10
	claimedStr := c.Query("claimed") // claimed=all (default), claimed=true, claimed=false

	query := s.DB.Where("user_id = ?", userID)

	switch claimedStr {
	case "true":
		query = query.Where("claimed = ?", true)
	case "false":
		query = query.Where("claimed = ?", false)
	}

	dbQuery := query.Order("created_at DESC")
	if limitStr != "" {
		l, err := strconv.Atoi(limitStr)
		if err != nil || l <= 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_limit", "message": "limit must be a positive integer"})
		}
		dbQuery = dbQuery.Limit(l)
	}

	var rewards []models.Reward
	if err := dbQuery.Find(&rewards).Error; err != nil {
		log.Printf("DB Error fetching user rewards: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal", "message": "failed to fetch rewards"})
	}

	return c.JSON(rewards)
}

// GetUserRewardCounts returns total and unclaimed reward counts for polling clients.
func (s *RewardService) GetUserRewardCounts(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	var totalCount int64
	if err := s.DB.Model(&models.Reward{}).
		Where("user_id = ?", userID).
		Count(&totalCount).Error; err != nil {
		log.Printf("DB Error counting rewards: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal", "message": "failed to count rewards"})
	}

	var unclaimedCount int64
	if err := s.DB.Model(&models.Reward{}).
		Where("user_id = ? AND claimed = ?", userID, false).
		Count(&unclaimedCount).Error; err != nil {
		log.Printf("DB Error counting unclaimed rewards: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal", "message": "failed to count rewards"})
	}

	return c.JSON(fiber.Map{
		"total_count":     totalCount,
		"unclaimed_count": unclaimedCount,
	})
}
