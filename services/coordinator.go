package services

import (
	"encoding/json"
	"log"
	"time"

	"player-progress-system/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// TxHandler is the business mutation run inside the coordinator's transaction.
// It performs exactly the reads/writes it needs (normally through
// ApplyVersioned) and returns the response to cache for idempotent replay.
type TxHandler func(tx *gorm.DB) (int, fiber.Map, error)

// TxCoordinator wraps every progress mutation: idempotency lookup → transaction
// → caller-scoped access context → handler → idempotency persist → commit, with
// full rollback and error classification on any failure. Retries are always
// caller-driven and made safe by idempotency keys — nothing is retried here.
type TxCoordinator struct {
	DB          *gorm.DB
	Idempotency *IdempotencyStore

	// AccessContext sets the per-transaction session variable consumed by
	// row-level authorization in the storage layer. Injectable so tests and
	// non-postgres dialects can fake it.
	AccessContext func(tx *gorm.DB, externalUserID string) error
}

func NewTxCoordinator(db *gorm.DB, store *IdempotencyStore) *TxCoordinator {
	return &TxCoordinator{
		DB:            db,
		Idempotency:   store,
		AccessContext: postgresAccessContext,
	}
}

func postgresAccessContext(tx *gorm.DB, externalUserID string) error {
	// set_config with is_local=true scopes the value to the transaction
	return tx.Exec("SELECT set_config('app.current_user_id', ?, true)", externalUserID).Error
}

// Execute runs one mutation for the caller. With an idempotency key, a retried
// request replays the cached (status, body) without re-running the handler —
// at-most-once side effects. Without a key, the handler always runs.
func (c *TxCoordinator) Execute(externalUserID, idempotencyKey string, handler TxHandler) (int, fiber.Map) {
	if idempotencyKey != "" {
		if status, body, ok := c.replay(c.DB, externalUserID, idempotencyKey); ok {
			return status, body
		}
	}

	var status int
	var body fiber.Map
	err := c.DB.Transaction(func(tx *gorm.DB) error {
		now := time.Now()

		if idempotencyKey != "" {
			if err := c.Idempotency.AcquireLock(tx, externalUserID, idempotencyKey, now); err != nil {
				return err
			}
			// A concurrent duplicate serialized on the lock row above. If it
			// already committed its payload, replay it instead of re-executing.
			if s, b, ok := c.replay(tx, externalUserID, idempotencyKey); ok {
				status, body = s, b
				return tx.Model(&models.IdempotencyRecord{}).
					Where("key = ? AND external_user_id = ?", idempotencyKey, externalUserID).
					Update("locked_until", nil).Error
			}
		}

		if err := c.AccessContext(tx, externalUserID); err != nil {
			return err
		}

		s, b, err := handler(tx)
		if err != nil {
			return err
		}
		status, body = s, b

		if idempotencyKey != "" {
			payload, err := json.Marshal(body)
			if err != nil {
				return err
			}
			if err := c.Idempotency.SaveResponse(tx, externalUserID, idempotencyKey, status, payload, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s, b := ClassifyError(err)
		if s >= fiber.StatusInternalServerError {
			log.Printf("❌ [TX] mutation failed for user=%s key=%q: %v", externalUserID, idempotencyKey, err)
		}
		return s, b
	}
	return status, body
}

// replay returns the cached response for (key, user) when a payload exists.
func (c *TxCoordinator) replay(db *gorm.DB, externalUserID, idempotencyKey string) (int, fiber.Map, bool) {
	rec, err := c.Idempotency.Lookup(db, externalUserID, idempotencyKey)
	if err != nil || rec == nil || !rec.Completed() {
		return 0, nil, false
	}
	var body fiber.Map
	if err := json.Unmarshal(rec.ResponseBody, &body); err != nil {
		log.Printf("⚠️ [IDEMPOTENCY] unreadable cached payload for key=%s user=%s: %v",
			idempotencyKey, externalUserID, err)
		return 0, nil, false
	}
	log.Printf("♻️ [IDEMPOTENCY] replaying cached response for key=%s user=%s", idempotencyKey, externalUserID)
	return rec.ResponseStatus, body, true
}
