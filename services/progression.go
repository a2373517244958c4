package services

import (
	"fmt"
	"log"
	"time"

	"player-progress-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// XPWeights define relative values for the XP-granting events.
type XPWeights struct {
	DailyLoginXP    int64
	LevelCompleteXP int64
}

var DefaultXPWeights = XPWeights{
	DailyLoginXP:    10,
	LevelCompleteXP: 25,
}

type ProgressionService struct {
	DB          *gorm.DB
	Coordinator *TxCoordinator
}

func NewProgressionService(db *gorm.DB, coordinator *TxCoordinator) *ProgressionService {
	return &ProgressionService{DB: db, Coordinator: coordinator}
}

// EnsureProgressRecord ensures a UserProgress row exists (idempotent).
// New records start at the zero state with version 1.
func (s *ProgressionService) EnsureProgressRecord(externalUserID string) (*models.UserProgress, error) {
	return ensureProgressTx(s.DB, externalUserID)
}

func ensureProgressTx(tx *gorm.DB, externalUserID string) (*models.UserProgress, error) {
	var prog models.UserProgress
	err := tx.Where("external_user_id = ?", externalUserID).First(&prog).Error
	if err == gorm.ErrRecordNotFound {
		prog = models.UserProgress{
			ID:               uuid.NewString(),
			ExternalUserID:   externalUserID,
			Level:            1,
			Version:          1,
			Badges:           []string{},
			BadgeUnlocks:     map[string]time.Time{},
			Stats:            map[string]int64{},
			CompletedLevels:  map[string][]string{},
			UnclaimedRewards: []string{},
		}
		if err := tx.Create(&prog).Error; err != nil {
			// lost a creation race — the other writer's row is the one
			if isDuplicateKey(err) {
				var existing models.UserProgress
				if err := tx.Where("external_user_id = ?", externalUserID).First(&existing).Error; err != nil {
					return nil, err
				}
				return &existing, nil
			}
			return nil, err
		}
		return &prog, nil
	}
	if err != nil {
		return nil, err
	}
	return &prog, nil
}

// RecordLogin applies one login event: streak transition (same day → unchanged,
// next day → +1, gap → reset to 1), daily XP at most once per calendar day,
// then badge evaluation. Safe to retry with an idempotency key.
func (s *ProgressionService) RecordLogin(externalUserID, idempotencyKey string) (int, fiber.Map) {
	return s.Coordinator.Execute(externalUserID, idempotencyKey, func(tx *gorm.DB) (int, fiber.Map, error) {
		if _, err := ensureProgressTx(tx, externalUserID); err != nil {
			return 0, nil, err
		}
		now := time.Now()
		var unlocked []models.BadgeType
		prog, err := ApplyVersioned(tx, externalUserID, nil, func(p *models.UserProgress) error {
			day := CalendarDay(now)
			p.CurrentStreak = NextStreak(p.LastLoginDate, p.CurrentStreak, now)
			p.LastLoginDate = &day
			bumpStat(p, "logins", 1)
			if p.LastDailyXPDate == nil || !SameCalendarDay(*p.LastDailyXPDate, now) {
				p.Score += DefaultXPWeights.DailyLoginXP
				p.LastDailyXPDate = &day
			}
			p.Level, _, _ = LevelForScore(p.Score)
			var uerr error
			unlocked, uerr = unlockBadges(tx, p, now)
			return uerr
		})
		if err != nil {
			return 0, nil, err
		}
		log.Printf("🎮 Login recorded: %s → streak=%d, score=%d, lvl=%d",
			externalUserID, prog.CurrentStreak, prog.Score, prog.Level)
		return fiber.StatusOK, progressBody(prog, unlocked), nil
	})
}

// AddScore grants a positive score delta (admin grants, game results).
// expectedVersion, when supplied, must match the stored version or the write
// is rejected with a 409.
func (s *ProgressionService) AddScore(externalUserID, idempotencyKey string, delta int64, expectedVersion *int64, reason string) (int, fiber.Map) {
	return s.Coordinator.Execute(externalUserID, idempotencyKey, func(tx *gorm.DB) (int, fiber.Map, error) {
		if delta <= 0 {
			return 0, nil, NewBusinessError(fiber.StatusBadRequest, "invalid_delta", "score delta must be positive")
		}
		if _, err := ensureProgressTx(tx, externalUserID); err != nil {
			return 0, nil, err
		}
		now := time.Now()
		var unlocked []models.BadgeType
		prog, err := ApplyVersioned(tx, externalUserID, expectedVersion, func(p *models.UserProgress) error {
			p.Score += delta
			p.Level, _, _ = LevelForScore(p.Score)
			var uerr error
			unlocked, uerr = unlockBadges(tx, p, now)
			return uerr
		})
		if err != nil {
			return 0, nil, err
		}
		log.Printf("🎮 Score awarded: %s → +%d, score=%d, lvl=%d (reason: %s)",
			externalUserID, delta, prog.Score, prog.Level, reason)
		return fiber.StatusOK, progressBody(prog, unlocked), nil
	})
}

// ApplyPenalty is the single sanctioned way score may decrease. Floored at 0;
// badges already unlocked stay unlocked even if the score drops below their bar.
func (s *ProgressionService) ApplyPenalty(externalUserID, idempotencyKey string, points int64, reason string) (int, fiber.Map) {
	return s.Coordinator.Execute(externalUserID, idempotencyKey, func(tx *gorm.DB) (int, fiber.Map, error) {
		if points <= 0 {
			return 0, nil, NewBusinessError(fiber.StatusBadRequest, "invalid_penalty", "penalty points must be positive")
		}
		prog, err := ApplyVersioned(tx, externalUserID, nil, func(p *models.UserProgress) error {
			p.Score -= points
			if p.Score < 0 {
				p.Score = 0
			}
			p.Level, _, _ = LevelForScore(p.Score)
			return nil
		})
		if err != nil {
			return 0, nil, err
		}
		log.Printf("⚠️ Penalty applied: %s → -%d, score=%d (reason: %s)",
			externalUserID, points, prog.Score, reason)
		return fiber.StatusOK, progressBody(prog, nil), nil
	})
}

// CompleteLevel records a finished game level. The level set-add is idempotent:
// the first completion grants XP and bumps the per-game counters, a repeat only
// counts as another game played.
func (s *ProgressionService) CompleteLevel(externalUserID, idempotencyKey, gameID, levelID string, expectedVersion *int64) (int, fiber.Map) {
	return s.Coordinator.Execute(externalUserID, idempotencyKey, func(tx *gorm.DB) (int, fiber.Map, error) {
		if gameID == "" || levelID == "" {
			return 0, nil, NewBusinessError(fiber.StatusBadRequest, "invalid_event", "game_id and level_id are required")
		}
		if _, err := ensureProgressTx(tx, externalUserID); err != nil {
			return 0, nil, err
		}
		now := time.Now()
		var unlocked []models.BadgeType
		var first bool
		prog, err := ApplyVersioned(tx, externalUserID, expectedVersion, func(p *models.UserProgress) error {
			bumpStat(p, "games_played", 1)
			first = !p.HasCompletedLevel(gameID, levelID)
			if first {
				if p.CompletedLevels == nil {
					p.CompletedLevels = map[string][]string{}
				}
				p.CompletedLevels[gameID] = append(p.CompletedLevels[gameID], levelID)
				bumpStat(p, "levels_completed", 1)
				bumpStat(p, gameID+"_levels_completed", 1)
				p.Score += DefaultXPWeights.LevelCompleteXP
			}
			p.Level, _, _ = LevelForScore(p.Score)
			var uerr error
			unlocked, uerr = unlockBadges(tx, p, now)
			return uerr
		})
		if err != nil {
			return 0, nil, err
		}
		log.Printf("🎮 Level complete: %s → %s/%s (first=%t), score=%d",
			externalUserID, gameID, levelID, first, prog.Score)
		body := progressBody(prog, unlocked)
		body["first_completion"] = first
		return fiber.StatusOK, body, nil
	})
}

// ClaimReward removes a reward token from the record and marks the matching
// Reward row claimed — both inside one transaction, so a failure leaves the
// token in place.
func (s *ProgressionService) ClaimReward(externalUserID, idempotencyKey, token string) (int, fiber.Map) {
	return s.Coordinator.Execute(externalUserID, idempotencyKey, func(tx *gorm.DB) (int, fiber.Map, error) {
		if token == "" {
			return 0, nil, NewBusinessError(fiber.StatusBadRequest, "invalid_token", "reward token is required")
		}
		prog, err := ApplyVersioned(tx, externalUserID, nil, func(p *models.UserProgress) error {
			idx := -1
			for i, t := range p.UnclaimedRewards {
				if t == token {
					idx = i
					break
				}
			}
			if idx < 0 {
				return NewBusinessError(fiber.StatusNotFound, "reward_not_found", "no unclaimed reward with that token")
			}
			p.UnclaimedRewards = append(p.UnclaimedRewards[:idx], p.UnclaimedRewards[idx+1:]...)
			return nil
		})
		if err != nil {
			return 0, nil, err
		}
		now := time.Now()
		res := tx.Model(&models.Reward{}).
			Where("token = ? AND user_id = ? AND claimed = ?", token, externalUserID, false).
			Updates(map[string]interface{}{"claimed": true, "claimed_at": now})
		if res.Error != nil {
			return 0, nil, res.Error
		}
		if res.RowsAffected == 0 {
			return 0, nil, NewBusinessError(fiber.StatusConflict, "already_claimed", "reward was already claimed")
		}
		log.Printf("🎁 Reward claimed: %s → %s", externalUserID, token)
		body := progressBody(prog, nil)
		body["claimed_token"] = token
		return fiber.StatusOK, body, nil
	})
}

// unlockBadges evaluates the catalog against the updated counters and applies
// every false→true transition: badge appended, unlock timestamp recorded, a
// Reward row created and its token queued. Runs inside the caller's transaction.
func unlockBadges(tx *gorm.DB, prog *models.UserProgress, now time.Time) ([]models.BadgeType, error) {
	catalog, err := loadBadgeCatalog(tx)
	if err != nil {
		return nil, err
	}
	unlocked := NewlyUnlockedBadges(prog, catalog)
	for _, badge := range unlocked {
		if prog.BadgeUnlocks == nil {
			prog.BadgeUnlocks = map[string]time.Time{}
		}
		prog.Badges = append(prog.Badges, badge.Code)
		prog.BadgeUnlocks[badge.Code] = now

		reward := models.Reward{
			ID:        uuid.NewString(),
			Token:     "rwd_" + uuid.NewString(),
			Title:     badge.Name,
			Category:  models.RewardCategoryAchievement,
			Emoji:     "🎖️",
			Excerpt:   fmt.Sprintf("Unlocked badge: %s", badge.Name),
			BadgeCode: badge.Code,
			UserID:    prog.ExternalUserID,
		}
		if err := tx.Create(&reward).Error; err != nil {
			return nil, err
		}
		prog.UnclaimedRewards = append(prog.UnclaimedRewards, reward.Token)
		log.Printf("🎖️ Badge awarded: %s → %s", badge.Name, prog.ExternalUserID)
	}
	return unlocked, nil
}

func bumpStat(p *models.UserProgress, key string, delta int64) {
	if p.Stats == nil {
		p.Stats = map[string]int64{}
	}
	p.Stats[key] += delta
}

func progressBody(prog *models.UserProgress, unlocked []models.BadgeType) fiber.Map {
	_, tier, next := LevelForScore(prog.Score)
	newBadges := []string{}
	for _, b := range unlocked {
		newBadges = append(newBadges, b.Code)
	}
	body := fiber.Map{
		"score":             prog.Score,
		"level":             prog.Level,
		"level_title":       tier.Title,
		"current_streak":    prog.CurrentStreak,
		"badges":            prog.Badges,
		"unclaimed_rewards": prog.UnclaimedRewards,
		"new_badges":        newBadges,
		"version":           prog.Version,
	}
	if next != nil {
		body["next_level_at"] = next.MinScore
	}
	return body
}
