package models

import (
	"time"

	gorm "gorm.io/gorm"
)

type RewardCategory string

const (
	RewardCategoryAchievement RewardCategory = "achievement"
	RewardCategoryMilestone   RewardCategory = "milestone"
	RewardCategoryBonus       RewardCategory = "bonus"
	RewardCategoryOther       RewardCategory = "other"
)

// Reward is created when a badge unlocks. Its Token is what gets appended to
// UserProgress.UnclaimedRewards; claiming removes the token and flips Claimed
// inside the same transaction.
type Reward struct {
	ID         string         `gorm:"primaryKey;type:uuid" json:"id"`
	Token      string         `gorm:"uniqueIndex;not null" json:"token"` // opaque claim token
	Title      string         `gorm:"not null" json:"title"`
	Category   RewardCategory `gorm:"not null" json:"category"`
	Emoji      string         `gorm:"size:10" json:"emoji"`
	Excerpt    string         `gorm:"type:text" json:"excerpt"`
	BadgeCode  string         `gorm:"index" json:"badge_code"`
	UserID     string         `gorm:"index;not null" json:"user_id"` // external user id
	Claimed    bool           `gorm:"default:false" json:"claimed"`
	ClaimedAt  *time.Time     `json:"claimed_at,omitempty"`
	ExpiryDate *time.Time     `json:"expiry_date,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`
}
