package models

import (
	"time"

	"gorm.io/gorm"
)

// PlayerUser is a local snapshot of user data needed for progress and leaderboards.
// Owned solely by the progress service, populated via sync worker from the
// Profile Service. A UserProgress row is created together with each synced user.
type PlayerUser struct {
	ID                string     `gorm:"primaryKey;type:uuid" json:"id"`
	ExternalUserID    string     `gorm:"uniqueIndex;not null" json:"external_user_id"` // the profile service's UUID
	Username          string     `gorm:"index;not null" json:"username"`
	Email             string     `json:"email,omitempty"`
	ProfilePictureURL *string    `json:"profile_picture_url,omitempty"`
	CreatedAt         time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt         time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
	LastSeen          *time.Time `json:"last_seen,omitempty"`
	IsBanned          bool       `json:"is_banned" gorm:"default:false"` // local moderation flag

	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}
