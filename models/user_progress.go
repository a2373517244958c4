package models

import (
	"time"

	"gorm.io/gorm"
)

// UserProgress is the single mutable progress row per player (denormalized for performance).
// It is only ever written through the TxCoordinator; Version goes up by exactly 1
// on every successful mutation and is the optimistic-lock token handed to clients.
type UserProgress struct {
	ID             string `gorm:"primaryKey;type:uuid" json:"id"`
	ExternalUserID string `gorm:"uniqueIndex;not null" json:"external_user_id"` // links to profile service

	// Core progression
	Score int64 `json:"score" gorm:"default:0"` // cumulative XP, never drops except via penalty
	Level int   `json:"level" gorm:"default:1"` // derived from the tier table, stored for cheap reads

	// Streak / daily login
	CurrentStreak   int        `json:"current_streak" gorm:"default:0"`
	LastLoginDate   *time.Time `json:"last_login_date,omitempty"`    // calendar day in UTC, time part zeroed
	LastDailyXPDate *time.Time `json:"last_daily_xp_date,omitempty"` // only moves forward

	// Gamification state. Badges are append-only: a code never leaves the slice.
	Badges           []string             `json:"badges" gorm:"type:jsonb;serializer:json"`
	BadgeUnlocks     map[string]time.Time `json:"badge_unlocks" gorm:"type:jsonb;serializer:json"`
	Stats            map[string]int64     `json:"stats" gorm:"type:jsonb;serializer:json"`             // e.g., {"games_played": 12}
	CompletedLevels  map[string][]string  `json:"completed_levels" gorm:"type:jsonb;serializer:json"`  // game id → level ids
	UnclaimedRewards []string             `json:"unclaimed_rewards" gorm:"type:jsonb;serializer:json"` // ordered reward tokens

	// Optimistic concurrency token, starts at 1
	Version int64 `json:"version" gorm:"not null;default:1"`

	Timestamps
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// HasBadge reports whether the badge code is already unlocked.
func (p *UserProgress) HasBadge(code string) bool {
	for _, b := range p.Badges {
		if b == code {
			return true
		}
	}
	return false
}

// HasCompletedLevel reports whether the level was already completed for the game.
func (p *UserProgress) HasCompletedLevel(gameID, levelID string) bool {
	for _, l := range p.CompletedLevels[gameID] {
		if l == levelID {
			return true
		}
	}
	return false
}
