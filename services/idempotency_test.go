package services

import (
	"testing"
	"time"

	"player-progress-system/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveResponseWritesAtMostOnce(t *testing.T) {
	db := testDB(t)
	store := NewIdempotencyStore(db)
	now := time.Now()

	require.NoError(t, store.AcquireLock(db, "u1", "key-1", now))
	require.NoError(t, store.SaveResponse(db, "u1", "key-1", 200, []byte(`{"ok":true}`), now))

	// a second write is a no-op — the payload is immutable once set
	require.NoError(t, store.SaveResponse(db, "u1", "key-1", 500, []byte(`{"ok":false}`), now))

	rec, err := store.Lookup(db, "u1", "key-1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 200, rec.ResponseStatus)
	assert.JSONEq(t, `{"ok":true}`, string(rec.ResponseBody))
}

func TestAcquireLockRefreshesExistingRow(t *testing.T) {
	db := testDB(t)
	store := NewIdempotencyStore(db)

	first := time.Now()
	require.NoError(t, store.AcquireLock(db, "u1", "key-1", first))
	require.NoError(t, store.AcquireLock(db, "u1", "key-1", first.Add(30*time.Second)))

	var count int64
	require.NoError(t, db.Model(&models.IdempotencyRecord{}).Count(&count).Error)
	assert.Equal(t, int64(1), count, "upsert must not duplicate the lock row")

	rec, err := store.Lookup(db, "u1", "key-1")
	require.NoError(t, err)
	require.NotNil(t, rec.LockedUntil)
	assert.WithinDuration(t, first.Add(30*time.Second).Add(store.LockWindow), *rec.LockedUntil, time.Second)
}

func TestSweepRemovesOldRows(t *testing.T) {
	db := testDB(t)
	store := NewIdempotencyStore(db)
	now := time.Now()

	oldCompleted := now.Add(-2 * store.Retention)
	oldLock := now.Add(-2 * store.Retention)
	freshCompleted := now.Add(-time.Minute)

	require.NoError(t, db.Create(&models.IdempotencyRecord{
		Key: "done-old", ExternalUserID: "u1", ResponseStatus: 200,
		ResponseBody: []byte(`{}`), CompletedAt: &oldCompleted,
	}).Error)
	require.NoError(t, db.Create(&models.IdempotencyRecord{
		Key: "abandoned", ExternalUserID: "u1", LockedUntil: &oldLock,
	}).Error)
	require.NoError(t, db.Create(&models.IdempotencyRecord{
		Key: "done-fresh", ExternalUserID: "u1", ResponseStatus: 200,
		ResponseBody: []byte(`{}`), CompletedAt: &freshCompleted,
	}).Error)

	require.NoError(t, store.Sweep(now))

	var keys []string
	require.NoError(t, db.Model(&models.IdempotencyRecord{}).Pluck("key", &keys).Error)
	assert.Equal(t, []string{"done-fresh"}, keys)
}
