package services

import (
	"time"

	"player-progress-system/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// IdempotencyStore is the durable mapping from (key, user) to a cached response.
// A row with ResponseStatus 0 and an expired LockedUntil is an abandoned
// attempt (process died mid-transaction) and is eligible for retry.
type IdempotencyStore struct {
	DB         *gorm.DB
	LockWindow time.Duration // mutual-exclusion window for in-flight attempts
	Retention  time.Duration // completed rows older than this are swept
}

func NewIdempotencyStore(db *gorm.DB) *IdempotencyStore {
	return &IdempotencyStore{
		DB:         db,
		LockWindow: 60 * time.Second,
		Retention:  24 * time.Hour,
	}
}

// Lookup returns the record for (key, user), or nil when none exists.
// Callers check Completed() to decide whether a cached replay is available.
func (s *IdempotencyStore) Lookup(db *gorm.DB, externalUserID, key string) (*models.IdempotencyRecord, error) {
	var rec models.IdempotencyRecord
	err := db.Where("key = ? AND external_user_id = ?", key, externalUserID).First(&rec).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// AcquireLock upserts the lock row inside the caller's transaction: insert
// (key, user, locked_until = now + window), or refresh locked_until on
// conflict. The single row doubles as the mutual-exclusion gate — a concurrent
// attempt with the same key serializes on the row lock at the storage layer.
// Rolled back with the rest of the transaction on failure, so a later retry
// is never blocked by a failed attempt.
func (s *IdempotencyStore) AcquireLock(tx *gorm.DB, externalUserID, key string, now time.Time) error {
	until := now.Add(s.LockWindow)
	rec := models.IdempotencyRecord{
		Key:            key,
		ExternalUserID: externalUserID,
		LockedUntil:    &until,
	}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}, {Name: "external_user_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"locked_until": until}),
	}).Create(&rec).Error
}

// SaveResponse persists the handler's response payload and clears the lock.
// Guarded on ResponseStatus = 0 so a payload is written at most once per key;
// the row is never mutated after that.
func (s *IdempotencyStore) SaveResponse(tx *gorm.DB, externalUserID, key string, status int, body []byte, now time.Time) error {
	return tx.Model(&models.IdempotencyRecord{}).
		Where("key = ? AND external_user_id = ? AND response_status = 0", key, externalUserID).
		Updates(map[string]interface{}{
			"response_status": status,
			"response_body":   body,
			"locked_until":    nil,
			"completed_at":    now,
		}).Error
}

// Sweep garbage-collects completed rows past the retention window and
// abandoned locks that expired more than a retention window ago.
func (s *IdempotencyStore) Sweep(now time.Time) error {
	cutoff := now.Add(-s.Retention)
	if err := s.DB.
		Where("response_status <> 0 AND completed_at < ?", cutoff).
		Delete(&models.IdempotencyRecord{}).Error; err != nil {
		return err
	}
	return s.DB.
		Where("response_status = 0 AND locked_until < ?", cutoff).
		Delete(&models.IdempotencyRecord{}).Error
}
