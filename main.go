package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"player-progress-system/handlers"
	"player-progress-system/middleware"
	"player-progress-system/models"
	"player-progress-system/services"
	"player-progress-system/utils"
	"player-progress-system/workers"

	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 5 * 1024 * 1024, // 5MB — badge icons are the largest payload
	})

	// 🔐❗ GLOBAL: Only Gateway requests allowed — no exceptions
	app.Use(middleware.GatewayAuthMiddleware())

	// Load allowed origins from environment variable
	allowedOriginsEnv := os.Getenv("ALLOWED_ORIGINS")
	if allowedOriginsEnv == "" {
		log.Println("⚠️  ALLOWED_ORIGINS environment variable not set, using default: http://localhost:3000")
		allowedOriginsEnv = "http://localhost:3000"
	}
	allowedOriginsList := strings.Split(allowedOriginsEnv, ",")
	for i, origin := range allowedOriginsList {
		allowedOriginsList[i] = strings.TrimSpace(origin)
	}
	allowedOriginsString := strings.Join(allowedOriginsList, ",")

	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOriginsString,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, User-Agent, Cache-Control, X-Service-Token, Idempotency-Key",
		ExposeHeaders:    "Content-Length, Content-Type, Authorization, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	if err := utils.InitR2(); err != nil {
		log.Fatal("failed to initialize R2 client:", err)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.PlayerUser{},
		&models.UserProgress{},
		&models.IdempotencyRecord{},
		&models.BadgeType{},
		&models.Reward{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	// Optional redis cache for the leaderboard
	var cache *redis.Client
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cache = redis.NewClient(&redis.Options{Addr: addr})
	} else {
		log.Println("⚠️  REDIS_ADDR not set — leaderboard served from DB only")
	}

	idempotencyStore := services.NewIdempotencyStore(db)
	coordinator := services.NewTxCoordinator(db, idempotencyStore)
	progressionService := services.NewProgressionService(db, coordinator)
	badgeService := services.NewBadgeService(db)
	rewardService := services.NewRewardService(db)
	leaderboardService := services.NewLeaderboardService(db, cache)

	if err := badgeService.SeedBadgeTypes(); err != nil {
		log.Fatal("failed to seed badge catalog:", err)
	}

	// --- Profile sync service config ---
	syncServiceURL := os.Getenv("SYNC_SERVICE_URL")
	if syncServiceURL == "" {
		log.Fatal("SYNC_SERVICE_URL environment variable not set")
	}
	serviceToken := os.Getenv("PROGRESS_SERVICE_TOKEN")
	if serviceToken == "" {
		log.Fatal("PROGRESS_SERVICE_TOKEN environment variable not set")
	}

	syncWorker := workers.NewPlayerUserSyncWorker(db, progressionService, syncServiceURL, "/api/v1/public/profiles", serviceToken)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Println("Starting Player User Sync Worker...")
		syncWorker.Start(ctx)
	}()

	if cache != nil {
		go workers.PollLeaderboard(ctx, leaderboardService, 5*time.Minute)
	}

	idempotencyStore.StartSweeper()

	// ✅ Setup routes — enforced Gateway auth, user context on secured group
	handlers.SetupProgressRoutes(app, progressionService, rewardService, badgeService, leaderboardService)

	go func() {
		if err := app.Listen(":5300"); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Println("✅ Server running on http://localhost:5300")
	log.Println("✅ Idempotency sweeper running (every 10m)")
	log.Println("✅ GatewayAuthMiddleware enforced globally — all requests must come from Gateway")
	log.Printf("✅ CORS configured for origins: %s", allowedOriginsString)

	<-ctx.Done()
	log.Println("Shutting down server...")
	if err := app.Shutdown(); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
}
