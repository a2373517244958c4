package services

import (
	"context"
	"log"
	"time"

	"player-progress-system/models"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

const leaderboardKey = "leaderboard:score"

// LeaderboardService serves the global score ranking. Reads go through a redis
// sorted set when a cache is configured and fall back to the progress table;
// the cache is advisory only — the progress row stays the source of truth.
type LeaderboardService struct {
	DB    *gorm.DB
	Cache *redis.Client // nil disables caching
}

func NewLeaderboardService(db *gorm.DB, cache *redis.Client) *LeaderboardService {
	return &LeaderboardService{DB: db, Cache: cache}
}

// LeaderboardEntry is one row of the ranking response.
type LeaderboardEntry struct {
	Rank           int    `json:"rank"`
	ExternalUserID string `json:"external_user_id"`
	Score          int64  `json:"score"`
	Level          int    `json:"level"`
}

// TopN returns the highest-scoring players. Cache hit path reads the sorted
// set; miss (or no redis) reads the DB and warms the cache best-effort.
func (s *LeaderboardService) TopN(ctx context.Context, n int) ([]LeaderboardEntry, error) {
	if n < 1 || n > 100 {
		n = 10
	}

	if s.Cache != nil {
		zs, err := s.Cache.ZRevRangeWithScores(ctx, leaderboardKey, 0, int64(n-1)).Result()
		if err == nil && len(zs) > 0 {
			entries := make([]LeaderboardEntry, 0, len(zs))
			for i, z := range zs {
				userID, _ := z.Member.(string)
				score := int64(z.Score)
				level, _, _ := LevelForScore(score)
				entries = append(entries, LeaderboardEntry{
					Rank:           i + 1,
					ExternalUserID: userID,
					Score:          score,
					Level:          level,
				})
			}
			return entries, nil
		}
		if err != nil && err != redis.Nil {
			log.Printf("⚠️ [LEADERBOARD] cache read failed, falling back to DB: %v", err)
		}
	}

	var rows []models.UserProgress
	if err := s.DB.
		Order("score DESC, updated_at ASC").
		Limit(n).
		Find(&rows).Error; err != nil {
		return nil, err
	}

	entries := make([]LeaderboardEntry, 0, len(rows))
	for i, row := range rows {
		entries = append(entries, LeaderboardEntry{
			Rank:           i + 1,
			ExternalUserID: row.ExternalUserID,
			Score:          row.Score,
			Level:          row.Level,
		})
	}

	if s.Cache != nil {
		s.warm(ctx, rows)
	}
	return entries, nil
}

// RecordScore pushes a player's new score into the sorted set (best-effort,
// called after a successful mutation commits).
func (s *LeaderboardService) RecordScore(ctx context.Context, externalUserID string, score int64) {
	if s.Cache == nil {
		return
	}
	if err := s.Cache.ZAdd(ctx, leaderboardKey, &redis.Z{
		Score:  float64(score),
		Member: externalUserID,
	}).Err(); err != nil {
		log.Printf("⚠️ [LEADERBOARD] cache update failed for %s: %v", externalUserID, err)
	}
}

// Rebuild replaces the sorted set from the progress table. Used by the refresh
// worker to heal drift from missed best-effort updates.
func (s *LeaderboardService) Rebuild(ctx context.Context) error {
	if s.Cache == nil {
		return nil
	}
	var rows []models.UserProgress
	if err := s.DB.Select("external_user_id", "score").Find(&rows).Error; err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	zs := make([]*redis.Z, 0, len(rows))
	for _, row := range rows {
		zs = append(zs, &redis.Z{Score: float64(row.Score), Member: row.ExternalUserID})
	}
	pipe := s.Cache.TxPipeline()
	pipe.Del(ctx, leaderboardKey)
	pipe.ZAdd(ctx, leaderboardKey, zs...)
	pipe.Expire(ctx, leaderboardKey, 10*time.Minute)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *LeaderboardService) warm(ctx context.Context, rows []models.UserProgress) {
	zs := make([]*redis.Z, 0, len(rows))
	for _, row := range rows {
		zs = append(zs, &redis.Z{Score: float64(row.Score), Member: row.ExternalUserID})
	}
	if len(zs) == 0 {
		return
	}
	if err := s.Cache.ZAdd(ctx, leaderboardKey, zs...).Err(); err != nil {
		log.Printf("⚠️ [LEADERBOARD] cache warm failed: %v", err)
		return
	}
	_ = s.Cache.Expire(ctx, leaderboardKey, 10*time.Minute).Err()
}
