package models

import "time"

// IdempotencyRecord caches the first successful response for a client-supplied key.
// Keyed by (key, external_user_id) so two users may reuse the same literal key.
// ResponseStatus == 0 means the attempt is still in flight (or was abandoned);
// once a payload is written the row is never mutated again.
type IdempotencyRecord struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	Key            string     `gorm:"size:128;not null;uniqueIndex:idx_idem_key_user" json:"key"` // Idempotency-Key header value
	ExternalUserID string     `gorm:"size:128;not null;uniqueIndex:idx_idem_key_user" json:"external_user_id"`
	ResponseStatus int        `json:"response_status"`                    // 0 => not completed yet
	ResponseBody   []byte     `gorm:"type:bytes" json:"-"`                // raw response body (JSON)
	LockedUntil    *time.Time `gorm:"index" json:"locked_until,omitempty"` // in-flight mutual-exclusion window
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

// Completed reports whether a response payload was persisted for this key.
func (r *IdempotencyRecord) Completed() bool {
	return r.ResponseStatus != 0
}
