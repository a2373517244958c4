package services

import (
	"testing"

	"player-progress-system/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyVersionedIncrementsByExactlyOne(t *testing.T) {
	db := testDB(t)
	_, err := ensureProgressTx(db, "u1")
	require.NoError(t, err)

	const n = 5
	for i := 0; i < n; i++ {
		_, err := ApplyVersioned(db, "u1", nil, func(p *models.UserProgress) error {
			p.Score += 10
			return nil
		})
		require.NoError(t, err)
	}

	prog := loadProgress(t, db, "u1")
	assert.Equal(t, int64(1+n), prog.Version, "version = initial + N successful mutations")
	assert.Equal(t, int64(n*10), prog.Score)
}

func TestApplyVersionedRejectsStaleExpectedVersion(t *testing.T) {
	db := testDB(t)
	_, err := ensureProgressTx(db, "u1")
	require.NoError(t, err)

	// move the record to version 2
	_, err = ApplyVersioned(db, "u1", nil, func(p *models.UserProgress) error {
		p.Score = 100
		return nil
	})
	require.NoError(t, err)

	stale := int64(1)
	_, err = ApplyVersioned(db, "u1", &stale, func(p *models.UserProgress) error {
		p.Score = 999
		return nil
	})
	assert.ErrorIs(t, err, ErrVersionConflict)

	prog := loadProgress(t, db, "u1")
	assert.Equal(t, int64(100), prog.Score, "rejected write must not apply")
	assert.Equal(t, int64(2), prog.Version)
}

func TestApplyVersionedExactlyOneWinner(t *testing.T) {
	db := testDB(t)
	_, err := ensureProgressTx(db, "u1")
	require.NoError(t, err)

	// both callers read version 1
	read := int64(1)

	_, err = ApplyVersioned(db, "u1", &read, func(p *models.UserProgress) error {
		p.Score = 10
		return nil
	})
	require.NoError(t, err, "first writer wins")

	_, err = ApplyVersioned(db, "u1", &read, func(p *models.UserProgress) error {
		p.Score = 20
		return nil
	})
	assert.ErrorIs(t, err, ErrVersionConflict, "second writer must lose")

	prog := loadProgress(t, db, "u1")
	assert.Equal(t, int64(10), prog.Score)
	assert.Equal(t, int64(2), prog.Version)
}

func TestApplyVersionedDetectsInterleavedWriter(t *testing.T) {
	db := testDB(t)
	_, err := ensureProgressTx(db, "u1")
	require.NoError(t, err)

	// an interleaved writer commits between our read and our compare-and-set
	_, err = ApplyVersioned(db, "u1", nil, func(p *models.UserProgress) error {
		res := db.Model(&models.UserProgress{}).
			Where("external_user_id = ?", "u1").
			Updates(map[string]interface{}{"score": 777, "version": 2})
		return res.Error
	})
	assert.ErrorIs(t, err, ErrVersionConflict)

	prog := loadProgress(t, db, "u1")
	assert.Equal(t, int64(777), prog.Score, "interleaved write survives, ours does not")
}

func TestApplyVersionedMissingRecord(t *testing.T) {
	db := testDB(t)

	_, err := ApplyVersioned(db, "ghost", nil, func(p *models.UserProgress) error { return nil })
	var be *BusinessError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, 404, be.Status)
}
