package services

import (
	"fmt"

	"player-progress-system/models"

	"gorm.io/gorm"
)

// ApplyVersioned is the optimistic-concurrency write path for a progress row.
// It reads the current row, rejects a stale expected version, applies the
// mutation, and writes back with a compare-and-set on the version column —
// `UPDATE ... WHERE id = ? AND version = ?` with version bumped by exactly 1.
// Zero affected rows means another writer committed first: first committer
// wins, the loser gets ErrVersionConflict and must re-read and retry.
//
// expectedVersion == nil means the caller accepts last-write-wins; the CAS
// still protects against interleaved writers inside the same transaction window.
func ApplyVersioned(tx *gorm.DB, externalUserID string, expectedVersion *int64, mutate func(*models.UserProgress) error) (*models.UserProgress, error) {
	var prog models.UserProgress
	if err := tx.Where("external_user_id = ?", externalUserID).First(&prog).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, NewBusinessError(404, "progress_not_found",
				fmt.Sprintf("no progress record for user %s", externalUserID))
		}
		return nil, err
	}

	readVersion := prog.Version
	if expectedVersion != nil && *expectedVersion != readVersion {
		return nil, ErrVersionConflict
	}

	if err := mutate(&prog); err != nil {
		return nil, err
	}

	// Version increment is atomic with the data write: one guarded UPDATE.
	prog.Version = readVersion + 1
	res := tx.Model(&models.UserProgress{}).
		Where("id = ? AND version = ?", prog.ID, readVersion).
		Select("*").Omit("id", "created_at", "deleted_at").
		Updates(&prog)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrVersionConflict
	}
	return &prog, nil
}
