package handlers

import (
	"net/http/httptest"
	"path/filepath"
	"testing"

	"player-progress-system/models"
	"player-progress-system/services"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.UserProgress{},
		&models.IdempotencyRecord{},
		&models.BadgeType{},
		&models.Reward{},
	))

	coord := services.NewTxCoordinator(db, services.NewIdempotencyStore(db))
	coord.AccessContext = func(tx *gorm.DB, externalUserID string) error { return nil }

	app := fiber.New()
	SetupProgressRoutes(app,
		services.NewProgressionService(db, coord),
		services.NewRewardService(db),
		services.NewBadgeService(db),
		services.NewLeaderboardService(db, nil),
	)
	return app
}

func TestLeaderboardIsPublic(t *testing.T) {
	app := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest("GET", "/leaderboard", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode, "leaderboard must not require user context")
}

func TestSecuredRoutesRequireUserContext(t *testing.T) {
	app := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest("GET", "/user/progress", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode, "missing X-User-ID must be rejected")

	req := httptest.NewRequest("GET", "/user/progress", nil)
	req.Header.Set("X-User-ID", "u1")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestAdminRoutesRequireUserContext(t *testing.T) {
	app := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest("POST", "/s/admin/score/grant", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}
