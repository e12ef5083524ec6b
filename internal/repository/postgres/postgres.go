package postgres

import (
	"Clixy-Backend/internal/domain"
	"Clixy-Backend/internal/repository"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// PostgresStorage implements repository.Storage on top of gorm.
// The queries are dialect-neutral, so the same storage also runs on SQLite.
type PostgresStorage struct {
	db  *gorm.DB
	log *zap.Logger
}

var _ repository.Storage = (*PostgresStorage)(nil)

// New создает новый экземпляр PostgreSQL storage
func New(db *gorm.DB, log *zap.Logger) *PostgresStorage {
	return &PostgresStorage{
		db:  db,
		log: log,
	}
}

// --- Link Methods ---

// GetLinkBySlug returns the link whose slug equals slug.
func (s *PostgresStorage) GetLinkBySlug(ctx context.Context, slug string) (*domain.Link, error) {
	var link domain.Link

	err := s.db.WithContext(ctx).Where("slug = ?", slug).First(&link).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, repository.ErrLinkNotFound
	}
	if err != nil {
		s.log.Error("failed to get link", zap.String("slug", slug), zap.Error(err))
		return nil, fmt.Errorf("failed to get link: %w", err)
	}

	return &link, nil
}

// SaveLink stores a new link. Used by seeding and tests; link management lives elsewhere.
func (s *PostgresStorage) SaveLink(ctx context.Context, link *domain.Link) error {
	var count int64
	err := s.db.WithContext(ctx).Model(&domain.Link{}).Where("slug = ?", link.Slug).Count(&count).Error
	if err != nil {
		s.log.Error("failed to check slug existence", zap.String("slug", link.Slug), zap.Error(err))
		return fmt.Errorf("failed to check slug: %w", err)
	}
	if count > 0 {
		return repository.ErrSlugExists
	}

	if err := s.db.WithContext(ctx).Create(link).Error; err != nil {
		s.log.Error("failed to save link", zap.String("slug", link.Slug), zap.Error(err))
		return fmt.Errorf("failed to save link: %w", err)
	}

	s.log.Info("saved new link", zap.String("slug", link.Slug), zap.String("link_id", link.ID.String()))
	return nil
}

// CountLinks returns the number of stored links.
func (s *PostgresStorage) CountLinks(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&domain.Link{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count links: %w", err)
	}
	return count, nil
}

// --- Click Methods ---

// InsertClick appends a click row. Rows are never updated afterwards.
func (s *PostgresStorage) InsertClick(ctx context.Context, click *domain.Click) error {
	if err := s.db.WithContext(ctx).Create(click).Error; err != nil {
		return fmt.Errorf("failed to create click: %w", err)
	}

	s.log.Debug("recorded click",
		zap.String("link_id", click.LinkID.String()),
		zap.String("platform", click.Platform),
		zap.String("device", click.Device),
		zap.String("country", click.Country))
	return nil
}

// VisitorSeen reports whether visitorHash already clicked linkID at or after since.
func (s *PostgresStorage) VisitorSeen(ctx context.Context, linkID uuid.UUID, visitorHash string, since time.Time) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&domain.Click{}).
		Where("link_id = ? AND visitor_hash = ? AND timestamp >= ?", linkID, visitorHash, since).
		Limit(1).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to look up visitor: %w", err)
	}
	return count > 0, nil
}

// CountClicks returns total and unique click counts for a link.
func (s *PostgresStorage) CountClicks(ctx context.Context, linkID uuid.UUID) (int64, int64, error) {
	var total, unique int64

	base := s.db.WithContext(ctx).Model(&domain.Click{}).Where("link_id = ?", linkID)
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return 0, 0, fmt.Errorf("failed to count clicks: %w", err)
	}
	if err := base.Session(&gorm.Session{}).Where("is_unique = ?", true).Count(&unique).Error; err != nil {
		return 0, 0, fmt.Errorf("failed to count unique clicks: %w", err)
	}

	return total, unique, nil
}

// CountClicksBy returns click counts for a link grouped by dim, largest first.
func (s *PostgresStorage) CountClicksBy(ctx context.Context, linkID uuid.UUID, dim repository.Dimension) ([]repository.GroupCount, error) {
	if !dim.Valid() {
		return nil, fmt.Errorf("unsupported dimension %q", dim)
	}

	var results []struct {
		Value string `gorm:"column:value"`
		Count int64  `gorm:"column:count"`
	}

	column := string(dim)
	err := s.db.WithContext(ctx).
		Model(&domain.Click{}).
		Select(column+" AS value, count(*) AS count").
		Where("link_id = ?", linkID).
		Group(column).
		Order("count DESC, value ASC").
		Find(&results).Error
	if err != nil {
		s.log.Error("failed to group clicks", zap.String("link_id", linkID.String()), zap.String("dimension", column), zap.Error(err))
		return nil, fmt.Errorf("failed to group clicks by %s: %w", column, err)
	}

	counts := make([]repository.GroupCount, 0, len(results))
	for _, r := range results {
		counts = append(counts, repository.GroupCount{Value: r.Value, Count: r.Count})
	}
	return counts, nil
}

// RecentClicks returns up to limit clicks for a link, newest first.
func (s *PostgresStorage) RecentClicks(ctx context.Context, linkID uuid.UUID, limit int) ([]*domain.Click, error) {
	var clicks []*domain.Click

	err := s.db.WithContext(ctx).
		Where("link_id = ?", linkID).
		Order("timestamp DESC").
		Limit(limit).
		Find(&clicks).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list clicks: %w", err)
	}
	return clicks, nil
}

// Ping checks the underlying connection.
func (s *PostgresStorage) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB instance: %w", err)
	}
	return sqlDB.PingContext(ctx)
}
