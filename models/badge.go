package models

import (
	"time"
)

// BadgeType: static catalog (seeded at boot, extendable via admin API)
type BadgeType struct {
	ID          string `gorm:"primaryKey;type:uuid"`
	Code        string `gorm:"uniqueIndex;not null"` // e.g., "FIRST_GAME", "STREAK_7"
	Name        string `gorm:"not null"`             // "First Game", "Week Warrior"
	Description string
	IconURL     string           `gorm:"type:text"`                         // R2 URL to SVG/png
	Rarity      string           `gorm:"type:varchar(16);default:'common'"` // common, rare, epic, legendary
	Threshold   map[string]int64 `gorm:"type:jsonb;serializer:json"`        // e.g., {"games_played": 10}
	CreatedAt   time.Time        `gorm:"autoCreateTime"`
}

// Predefined badge triggers. Threshold keys map onto UserProgress counters:
// any stats key plus the derived "score", "level" and "current_streak".
// Predicates are monotone — once met and awarded, the badge is never revoked.
var BadgeTriggers = []BadgeType{
	{
		Code:        "WELCOME",
		Name:        "Welcome Aboard!",
		Description: "Logged in for the first time",
		Rarity:      "common",
		Threshold:   map[string]int64{"logins": 1},
	},
	{
		Code:        "FIRST_GAME",
		Name:        "First Steps",
		Description: "Completed your first game level",
		Rarity:      "common",
		Threshold:   map[string]int64{"games_played": 1},
	},
	{
		Code:        "GAMES_10",
		Name:        "Regular",
		Description: "Played 10 games",
		Rarity:      "common",
		Threshold:   map[string]int64{"games_played": 10},
	},
	{
		Code:        "COMPLETIONIST",
		Name:        "Completionist",
		Description: "Cleared 25 distinct levels",
		Rarity:      "rare",
		Threshold:   map[string]int64{"levels_completed": 25},
	},
	{
		Code:        "STREAK_7",
		Name:        "Week Warrior",
		Description: "Logged in 7 days in a row",
		Rarity:      "rare",
		Threshold:   map[string]int64{"current_streak": 7},
	},
	{
		Code:        "LEVEL_5",
		Name:        "Climbing Up",
		Description: "Reached level 5",
		Rarity:      "rare",
		Threshold:   map[string]int64{"level": 5},
	},
	{
		Code:        "SCORE_10K",
		Name:        "Point Hoarder",
		Description: "Banked 10,000 points",
		Rarity:      "epic",
		Threshold:   map[string]int64{"score": 10000},
	},
}
