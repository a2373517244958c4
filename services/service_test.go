package services

import (
	"path/filepath"
	"testing"

	"player-progress-system/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// testDB opens an isolated sqlite database per test with the full schema.
func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.PlayerUser{},
		&models.UserProgress{},
		&models.IdempotencyRecord{},
		&models.BadgeType{},
		&models.Reward{},
	))
	return db
}

// The schema must migrate on sqlite as well as postgres — IDs are assigned in
// application code, never by a database default.
func TestSchemaMigratesWithAppAssignedIDs(t *testing.T) {
	db := testDB(t)

	prog, err := ensureProgressTx(db, "u1")
	require.NoError(t, err)
	assert.NotEmpty(t, prog.ID)

	badge := models.BadgeType{ID: uuid.NewString(), Code: "TEST", Name: "Test"}
	require.NoError(t, db.Create(&badge).Error)

	reward := models.Reward{ID: uuid.NewString(), Token: "rwd_test", Title: "Test",
		Category: models.RewardCategoryOther, UserID: "u1"}
	require.NoError(t, db.Create(&reward).Error)

	user := models.PlayerUser{ID: uuid.NewString(), ExternalUserID: "u1", Username: "tester"}
	require.NoError(t, db.Create(&user).Error)
}

// newTestCoordinator swaps the postgres session-variable hook for a no-op.
func newTestCoordinator(db *gorm.DB) *TxCoordinator {
	coord := NewTxCoordinator(db, NewIdempotencyStore(db))
	coord.AccessContext = func(tx *gorm.DB, externalUserID string) error { return nil }
	return coord
}

func loadProgress(t *testing.T, db *gorm.DB, externalUserID string) *models.UserProgress {
	t.Helper()
	var prog models.UserProgress
	require.NoError(t, db.Where("external_user_id = ?", externalUserID).First(&prog).Error)
	return &prog
}
