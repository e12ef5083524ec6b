package database

import (
	"Clixy-Backend/internal/domain"
	"context"
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	slugAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	slugLength   = 7

	demoUserID         = "demo"
	demoDestinationURL = "https://example.com/"
)

// AutoMigrate выполняет автоматические миграции для всех доменных моделей
func AutoMigrate(db *gorm.DB, log *zap.Logger) error {
	log.Info("starting database auto-migration")

	// Порядок миграций важен из-за внешних ключей
	models := []interface{}{
		&domain.Link{},
		&domain.Click{},
	}

	for i, model := range models {
		modelName := fmt.Sprintf("%T", model)
		log.Info("migrating model",
			zap.String("model", modelName),
			zap.Int("step", i+1),
			zap.Int("total", len(models)))

		if err := db.AutoMigrate(model); err != nil {
			log.Error("failed to migrate model", zap.String("model", modelName), zap.Error(err))
			return fmt.Errorf("failed to migrate model %s: %w", modelName, err)
		}
	}

	log.Info("database auto-migration completed successfully", zap.Int("migrated_models", len(models)))
	return nil
}

// SeedData inserts a demo link when the links table is empty and returns its slug.
func SeedData(ctx context.Context, db *gorm.DB, log *zap.Logger) (string, error) {
	var count int64
	if err := db.WithContext(ctx).Model(&domain.Link{}).Count(&count).Error; err != nil {
		return "", fmt.Errorf("failed to count links: %w", err)
	}
	if count > 0 {
		log.Info("links already exist, skipping seeding", zap.Int64("existing_count", count))
		return "", nil
	}

	slug, err := gonanoid.Generate(slugAlphabet, slugLength)
	if err != nil {
		return "", fmt.Errorf("failed to generate slug: %w", err)
	}

	link := domain.Link{
		UserID:         demoUserID,
		Slug:           slug,
		Name:           "Demo link",
		DestinationURL: demoDestinationURL,
	}
	if err := db.WithContext(ctx).Create(&link).Error; err != nil {
		return "", fmt.Errorf("failed to seed demo link: %w", err)
	}

	log.Info("database seeding completed", zap.String("slug", slug), zap.String("destination_url", demoDestinationURL))
	return slug, nil
}
