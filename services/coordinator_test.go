package services

import (
	"errors"
	"testing"

	"player-progress-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestExecuteRunsHandlerOncePerKey(t *testing.T) {
	db := testDB(t)
	coord := newTestCoordinator(db)

	calls := 0
	handler := func(tx *gorm.DB) (int, fiber.Map, error) {
		calls++
		return fiber.StatusCreated, fiber.Map{"ok": true}, nil
	}

	status, body := coord.Execute("u1", "key-1", handler)
	assert.Equal(t, fiber.StatusCreated, status)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, 1, calls)

	// retry with the same key replays the cached response, handler never runs
	status, body = coord.Execute("u1", "key-1", handler)
	assert.Equal(t, fiber.StatusCreated, status)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, 1, calls, "second submission must not re-execute the handler")
}

func TestExecuteReplayLeavesRecordUntouched(t *testing.T) {
	db := testDB(t)
	coord := newTestCoordinator(db)
	_, err := ensureProgressTx(db, "u1")
	require.NoError(t, err)

	handler := func(tx *gorm.DB) (int, fiber.Map, error) {
		prog, err := ApplyVersioned(tx, "u1", nil, func(p *models.UserProgress) error {
			p.Score += 50
			return nil
		})
		if err != nil {
			return 0, nil, err
		}
		return fiber.StatusOK, fiber.Map{"version": prog.Version}, nil
	}

	coord.Execute("u1", "key-1", handler)
	first := loadProgress(t, db, "u1")

	coord.Execute("u1", "key-1", handler)
	second := loadProgress(t, db, "u1")

	assert.Equal(t, first.Version, second.Version, "replay must not mutate the record")
	assert.Equal(t, first.Score, second.Score)
}

func TestExecuteKeysAreCallerScoped(t *testing.T) {
	db := testDB(t)
	coord := newTestCoordinator(db)

	calls := 0
	handler := func(tx *gorm.DB) (int, fiber.Map, error) {
		calls++
		return fiber.StatusOK, fiber.Map{"n": calls}, nil
	}

	coord.Execute("u1", "shared-key", handler)
	coord.Execute("u2", "shared-key", handler)
	assert.Equal(t, 2, calls, "same literal key for different users must not collide")
}

func TestExecuteWithoutKeyAlwaysRuns(t *testing.T) {
	db := testDB(t)
	coord := newTestCoordinator(db)

	calls := 0
	handler := func(tx *gorm.DB) (int, fiber.Map, error) {
		calls++
		return fiber.StatusOK, fiber.Map{}, nil
	}

	coord.Execute("u1", "", handler)
	coord.Execute("u1", "", handler)
	assert.Equal(t, 2, calls)
}

func TestExecuteRollsBackOnHandlerError(t *testing.T) {
	db := testDB(t)
	coord := newTestCoordinator(db)
	_, err := ensureProgressTx(db, "u1")
	require.NoError(t, err)
	before := loadProgress(t, db, "u1")

	status, body := coord.Execute("u1", "key-1", func(tx *gorm.DB) (int, fiber.Map, error) {
		// partial mutation inside the transaction, then a failure
		if _, err := ApplyVersioned(tx, "u1", nil, func(p *models.UserProgress) error {
			p.Score += 500
			return nil
		}); err != nil {
			return 0, nil, err
		}
		return 0, nil, errors.New("boom")
	})

	assert.Equal(t, fiber.StatusInternalServerError, status)
	assert.Equal(t, "internal", body["error"])

	after := loadProgress(t, db, "u1")
	assert.Equal(t, before.Score, after.Score, "rolled-back mutation must not persist")
	assert.Equal(t, before.Version, after.Version)
}

func TestExecuteFailureIsNotCached(t *testing.T) {
	db := testDB(t)
	coord := newTestCoordinator(db)

	status, body := coord.Execute("u1", "key-1", func(tx *gorm.DB) (int, fiber.Map, error) {
		return 0, nil, NewBusinessError(fiber.StatusBadRequest, "malformed_event", "bad payload")
	})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "malformed_event", body["error"])

	// the lock row was rolled back with the transaction — nothing blocks a retry
	var count int64
	require.NoError(t, db.Model(&models.IdempotencyRecord{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)

	// the retry with the same key executes and succeeds
	status, _ = coord.Execute("u1", "key-1", func(tx *gorm.DB) (int, fiber.Map, error) {
		return fiber.StatusOK, fiber.Map{"ok": true}, nil
	})
	assert.Equal(t, fiber.StatusOK, status)
}

func TestExecuteClassifiesVersionConflict(t *testing.T) {
	db := testDB(t)
	coord := newTestCoordinator(db)

	status, body := coord.Execute("u1", "", func(tx *gorm.DB) (int, fiber.Map, error) {
		return 0, nil, ErrVersionConflict
	})
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, "version_conflict", body["error"])
}

func TestExecutePersistsIdempotencyPayload(t *testing.T) {
	db := testDB(t)
	coord := newTestCoordinator(db)

	coord.Execute("u1", "key-1", func(tx *gorm.DB) (int, fiber.Map, error) {
		return fiber.StatusOK, fiber.Map{"score": 42}, nil
	})

	var rec models.IdempotencyRecord
	require.NoError(t, db.Where("key = ? AND external_user_id = ?", "key-1", "u1").First(&rec).Error)
	assert.Equal(t, fiber.StatusOK, rec.ResponseStatus)
	assert.Nil(t, rec.LockedUntil, "lock cleared once the payload is written")
	assert.NotNil(t, rec.CompletedAt)
	assert.JSONEq(t, `{"score": 42}`, string(rec.ResponseBody))
}
