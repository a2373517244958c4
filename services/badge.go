package services

import (
	"fmt"
	"log"
	"mime/multipart"
	"strings"

	"player-progress-system/models"
	"player-progress-system/utils"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type BadgeService struct {
	DB *gorm.DB
}

func NewBadgeService(db *gorm.DB) *BadgeService {
	return &BadgeService{DB: db}
}

// SeedBadgeTypes upserts the predefined catalog at boot (idempotent).
func (s *BadgeService) SeedBadgeTypes() error {
	for _, trigger := range models.BadgeTriggers {
		badge := trigger
		badge.ID = uuid.NewString()
		if err := s.DB.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "code"}},
			DoNothing: true,
		}).Create(&badge).Error; err != nil {
			return fmt.Errorf("failed to seed badge %s: %w", badge.Code, err)
		}
	}
	log.Printf("🎖️ Badge catalog ready (%d predefined badges)", len(models.BadgeTriggers))
	return nil
}

// loadBadgeCatalog reads the catalog inside the caller's transaction. Falls
// back to the predefined triggers when the table was never seeded.
func loadBadgeCatalog(tx *gorm.DB) ([]models.BadgeType, error) {
	var catalog []models.BadgeType
	if err := tx.Find(&catalog).Error; err != nil {
		return nil, err
	}
	if len(catalog) == 0 {
		return models.BadgeTriggers, nil
	}
	return catalog, nil
}

// CreateBadgeType registers a new admin-defined badge. The code is derived
// from the name (slugified, upper snake case) and the optional icon is pushed
// to R2.
func (s *BadgeService) CreateBadgeType(name, description, rarity string, threshold map[string]int64, icon *multipart.FileHeader) (*models.BadgeType, error) {
	if name == "" {
		return nil, NewBusinessError(400, "invalid_badge", "badge name is required")
	}
	if len(threshold) == 0 {
		return nil, NewBusinessError(400, "invalid_badge", "at least one threshold counter is required")
	}
	if rarity == "" {
		rarity = "common"
	}

	code := strings.ToUpper(strings.ReplaceAll(slug.Make(name), "-", "_"))

	badge := models.BadgeType{
		ID:          uuid.NewString(),
		Code:        code,
		Name:        name,
		Description: description,
		Rarity:      rarity,
		Threshold:   threshold,
	}

	if icon != nil {
		url, err := utils.UploadFileToR2(icon, fmt.Sprintf("badges/%s%s", code, fileExt(icon.Filename)))
		if err != nil {
			return nil, fmt.Errorf("failed to upload badge icon: %w", err)
		}
		badge.IconURL = url
	}

	if err := s.DB.Create(&badge).Error; err != nil {
		return nil, err
	}
	log.Printf("🎖️ Badge type created: %s (%s)", badge.Name, badge.Code)
	return &badge, nil
}

func fileExt(name string) string {
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		return name[idx:]
	}
	return ""
}
