// workers/leaderboard_refresh_worker.go
package workers

import (
	"context"
	"log"
	"time"

	"player-progress-system/services"
)

// PollLeaderboard periodically rebuilds the redis leaderboard from the
// progress table. In-request cache updates are best-effort; this loop heals
// any drift from missed writes.
func PollLeaderboard(ctx context.Context, leaderboard *services.LeaderboardService, pollInterval time.Duration) {
	log.Println("Starting leaderboard refresh polling (DB → redis)...")

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Leaderboard refresh polling stopped.")
			return
		case <-ticker.C:
			if err := leaderboard.Rebuild(ctx); err != nil {
				log.Printf("❌ Leaderboard rebuild failed: %v", err)
				continue
			}
			log.Println("✅ Leaderboard cache rebuilt from progress table.")
		}
	}
}
