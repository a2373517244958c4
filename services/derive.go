package services

import (
	"time"

	"player-progress-system/models"
)

// All streak math is pinned to one reference timezone. Calendar-day deltas,
// never elapsed milliseconds, drive the streak state machine.
var streakLocation = time.UTC

// CalendarDay truncates an instant to its calendar day in the reference timezone.
func CalendarDay(t time.Time) time.Time {
	t = t.In(streakLocation)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, streakLocation)
}

// daysBetween returns the whole calendar days from a to b (both truncated).
func daysBetween(a, b time.Time) int {
	return int(CalendarDay(b).Sub(CalendarDay(a)).Hours() / 24)
}

// NextStreak computes the streak transition for a login at `now`:
// same calendar day → unchanged, exactly one day later → +1, anything else → 1.
func NextStreak(lastLogin *time.Time, current int, now time.Time) int {
	if lastLogin == nil {
		return 1
	}
	switch daysBetween(*lastLogin, now) {
	case 0:
		if current < 1 {
			return 1
		}
		return current
	case 1:
		return current + 1
	default:
		return 1
	}
}

// SameCalendarDay reports whether both instants fall on one reference-timezone day.
func SameCalendarDay(a, b time.Time) bool {
	return CalendarDay(a).Equal(CalendarDay(b))
}

// LevelTier is one row of the ordered leveling table.
type LevelTier struct {
	MinScore int64  `json:"min_score"`
	Title    string `json:"title"`
}

// LevelTiers must stay sorted ascending by MinScore; the player's level is the
// highest tier whose MinScore is ≤ current score.
var LevelTiers = []LevelTier{
	{0, "Rookie"},
	{100, "Bronze"},
	{250, "Silver"},
	{500, "Gold"},
	{1000, "Platinum"},
	{2500, "Diamond"},
	{5000, "Master"},
	{10000, "Legend"},
}

// LevelForScore returns the 1-based level, its tier and the next tier
// (nil when already at the top).
func LevelForScore(score int64) (int, LevelTier, *LevelTier) {
	idx := 0
	for i, tier := range LevelTiers {
		if score >= tier.MinScore {
			idx = i
		}
	}
	var next *LevelTier
	if idx+1 < len(LevelTiers) {
		next = &LevelTiers[idx+1]
	}
	return idx + 1, LevelTiers[idx], next
}

// counterValue resolves a threshold key against the progress snapshot.
// "score", "level" and "current_streak" read derived fields, everything else
// reads the stats map.
func counterValue(prog *models.UserProgress, key string) int64 {
	switch key {
	case "score":
		return prog.Score
	case "level":
		return int64(prog.Level)
	case "current_streak":
		return int64(prog.CurrentStreak)
	default:
		return prog.Stats[key]
	}
}

// MeetsThreshold evaluates a badge predicate against the updated counters.
func MeetsThreshold(prog *models.UserProgress, threshold map[string]int64) bool {
	if len(threshold) == 0 {
		return false
	}
	for key, required := range threshold {
		if counterValue(prog, key) < required {
			return false
		}
	}
	return true
}

// NewlyUnlockedBadges returns the catalog entries whose predicate just flipped
// to true. Already-unlocked badges are skipped, so re-running a derivation is
// a no-op and badges are never revoked.
func NewlyUnlockedBadges(prog *models.UserProgress, catalog []models.BadgeType) []models.BadgeType {
	var unlocked []models.BadgeType
	for _, badge := range catalog {
		if prog.HasBadge(badge.Code) {
			continue
		}
		if MeetsThreshold(prog, badge.Threshold) {
			unlocked = append(unlocked, badge)
		}
	}
	return unlocked
}
