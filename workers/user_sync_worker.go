// workers/user_sync_worker.go
package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"player-progress-system/models"
	"player-progress-system/services"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MirroredUserFromProfile matches the JSON response from the profile sync service.
type MirroredUserFromProfile struct {
	ID                string    `json:"id"`
	ExternalID        string    `json:"external_id"`
	Username          string    `json:"username"`
	Email             string    `json:"email"`
	ProfilePictureURL *string   `json:"profile_picture_url,omitempty"`
	AccountStatus     string    `json:"account_status"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// GetUserChangesResponse is the top-level structure of the sync service response.
type GetUserChangesResponse struct {
	Users []MirroredUserFromProfile `json:"users"`
}

// PlayerUserSyncWorker mirrors profile-service users into player_users and
// ensures a zero-state progress record exists for each — progress creation
// cascades with the owning user.
type PlayerUserSyncWorker struct {
	db           *gorm.DB
	progression  *services.ProgressionService
	interval     time.Duration
	baseURL      string // e.g., "http://localhost:8500"
	endpointPath string // e.g., "/api/v1/public/profiles"
	serviceToken string
	httpClient   *http.Client
}

func NewPlayerUserSyncWorker(db *gorm.DB, progression *services.ProgressionService, syncServiceBaseURL, endpointPath, serviceToken string) *PlayerUserSyncWorker {
	return &PlayerUserSyncWorker{
		db:           db,
		progression:  progression,
		interval:     1 * time.Minute,
		baseURL:      syncServiceBaseURL,
		endpointPath: endpointPath,
		serviceToken: serviceToken,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (w *PlayerUserSyncWorker) Start(ctx context.Context) {
	log.Println("🔁 Starting Player User Sync Worker (sync-service → player_users)…")
	go w.run(ctx)
}

func (w *PlayerUserSyncWorker) run(ctx context.Context) {
	// Initial sync (backfill if needed) - sync from the beginning of time
	if err := w.syncBatch(ctx, time.Time{}); err != nil {
		log.Printf("⚠️ Initial sync failed: %v", err)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			lastSyncTime := w.getLastSyncTime()
			if err := w.syncBatch(ctx, lastSyncTime); err != nil {
				log.Printf("❌ Sync batch failed: %v", err)
			}
		case <-ctx.Done():
			log.Println("⏹️ Player User Sync Worker stopped")
			return
		}
	}
}

// getLastSyncTime finds the most recent UpdatedAt from our local player_users table.
func (w *PlayerUserSyncWorker) getLastSyncTime() time.Time {
	var lastTime time.Time
	err := w.db.Raw("SELECT MAX(updated_at) FROM player_users WHERE deleted_at IS NULL").Scan(&lastTime).Error
	if err != nil || lastTime.IsZero() {
		return time.Unix(0, 0) // fallback to epoch if no records or error
	}
	return lastTime
}

// syncBatch fetches user changes from the sync service, upserts the local
// player_users rows and ensures each has a progress record.
func (w *PlayerUserSyncWorker) syncBatch(ctx context.Context, since time.Time) error {
	sinceStr := since.UTC().Format(time.RFC3339)

	base, err := url.Parse(w.baseURL)
	if err != nil {
		return fmt.Errorf("invalid base sync service URL '%s': %w", w.baseURL, err)
	}

	endpointURL := base.JoinPath(w.endpointPath)
	q := endpointURL.Query()
	q.Set("since", sinceStr)
	endpointURL.RawQuery = q.Encode()
	finalURL := endpointURL.String()

	req, err := http.NewRequestWithContext(ctx, "GET", finalURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request to %s: %w", finalURL, err)
	}
	req.Header.Set("X-Service-Token", w.serviceToken)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request to sync service failed: %w", err)
	}
	defer func() {
		// Always drain & close to prevent connection leaks
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("sync service non-200 response: %d — %s", resp.StatusCode, string(body))
	}

	var response GetUserChangesResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return fmt.Errorf("failed to decode sync service response: %w", err)
	}

	if len(response.Users) == 0 {
		return nil
	}

	log.Printf("[SYNC] 📥 Processing %d user(s) from sync service…", len(response.Users))

	var upsertCount, errorCount int
	for _, remoteUser := range response.Users {
		localUser := models.PlayerUser{
			ID:                uuid.NewString(),
			ExternalUserID:    remoteUser.ExternalID,
			Username:          remoteUser.Username,
			Email:             remoteUser.Email,
			ProfilePictureURL: remoteUser.ProfilePictureURL,
			CreatedAt:         remoteUser.CreatedAt,
			UpdatedAt:         remoteUser.UpdatedAt,
		}

		if err := w.db.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "external_user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"username", "email", "profile_picture_url", "created_at", "updated_at",
			}),
		}).Create(&localUser).Error; err != nil {
			errorCount++
			log.Printf("[SYNC] ⚠️ Failed to upsert player_user (external_id=%q, username=%q): %v",
				remoteUser.ExternalID, remoteUser.Username, err)
			continue
		}
		upsertCount++

		// Progress record is created together with the user (zero state, version 1)
		if _, err := w.progression.EnsureProgressRecord(remoteUser.ExternalID); err != nil {
			log.Printf("[SYNC] ⚠️ Failed to ensure progress record for %q: %v", remoteUser.ExternalID, err)
		}
	}

	log.Printf("[SYNC] ✅ Synced %d users (%d upserted, %d errors)", len(response.Users), upsertCount, errorCount)
	return nil
}
