// services/scheduler.go
package services

import (
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// StartSweeper runs the idempotency garbage collector in the background.
// Completed records past the retention window (and long-expired abandoned
// locks) are deleted; a retried key simply starts a fresh attempt afterwards.
func (s *IdempotencyStore) StartSweeper() {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	_, _ = sched.NewJob(
		gocron.DurationJob(10*time.Minute),
		gocron.NewTask(func() {
			if err := s.Sweep(time.Now()); err != nil {
				log.Printf("[Sweeper] idempotency GC failed: %v", err)
				return
			}
			log.Println("✅ Idempotency records swept")
		}),
	)
}
