package service

import (
	"Clixy-Backend/internal/domain"
	"Clixy-Backend/internal/repository"
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

const (
	topCountries     = 10
	recentClickLimit = 10
)

// Breakdown is one row of a per-dimension click distribution.
type Breakdown struct {
	Label      string  `json:"label"`
	Count      int64   `json:"count"`
	Percentage float64 `json:"percentage"`
}

// RecentClick is the public view of a stored click. The visitor hash is never exposed.
type RecentClick struct {
	ID        uuid.UUID `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Platform  string    `json:"platform"`
	Device    string    `json:"device"`
	Browser   string    `json:"browser"`
	OS        string    `json:"os"`
	Country   string    `json:"country"`
	Referrer  *string   `json:"referrer"`
}

// LinkStats aggregates the clicks of a single link.
type LinkStats struct {
	LinkID          uuid.UUID     `json:"link_id"`
	Slug            string        `json:"slug"`
	Name            string        `json:"name"`
	DestinationURL  string        `json:"destination_url"`
	TotalClicks     int64         `json:"total_clicks"`
	UniqueClicks    int64         `json:"unique_clicks"`
	DesktopClicks   int64         `json:"desktop_clicks"`
	MobileClicks    int64         `json:"mobile_clicks"`
	UniqueCountries int           `json:"unique_countries"`
	Platforms       []Breakdown   `json:"platforms"`
	Devices         []Breakdown   `json:"devices"`
	Countries       []Breakdown   `json:"countries"`
	RecentClicks    []RecentClick `json:"recent_clicks"`
}

type StatsService struct {
	storage repository.Storage
	log     *zap.Logger
}

func NewStatsService(storage repository.Storage, log *zap.Logger) *StatsService {
	return &StatsService{
		storage: storage,
		log:     log,
	}
}

// LinkStats returns click statistics for the link identified by slug.
// Links owned by someone other than userID are reported as repository.ErrLinkNotFound.
func (s *StatsService) LinkStats(ctx context.Context, userID, slug string) (*LinkStats, error) {
	link, err := s.storage.GetLinkBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if link.UserID != userID {
		s.log.Debug("stats requested for foreign link", zap.String("slug", slug), zap.String("user_id", userID))
		return nil, repository.ErrLinkNotFound
	}

	total, unique, err := s.storage.CountClicks(ctx, link.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count clicks: %w", err)
	}

	platforms, err := s.storage.CountClicksBy(ctx, link.ID, repository.DimensionPlatform)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate platforms: %w", err)
	}
	devices, err := s.storage.CountClicksBy(ctx, link.ID, repository.DimensionDevice)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate devices: %w", err)
	}
	countries, err := s.storage.CountClicksBy(ctx, link.ID, repository.DimensionCountry)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate countries: %w", err)
	}

	recent, err := s.storage.RecentClicks(ctx, link.ID, recentClickLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent clicks: %w", err)
	}

	return &LinkStats{
		LinkID:          link.ID,
		Slug:            link.Slug,
		Name:            link.Name,
		DestinationURL:  link.DestinationURL,
		TotalClicks:     total,
		UniqueClicks:    unique,
		DesktopClicks:   countOf(devices, domain.DeviceDesktop),
		MobileClicks:    countOf(devices, domain.DeviceMobile),
		UniqueCountries: lo.CountBy(countries, func(g repository.GroupCount) bool { return g.Value != "" }),
		Platforms:       breakdown(platforms, total),
		Devices:         breakdown(devices, total),
		Countries:       breakdown(lo.Subset(countries, 0, topCountries), total),
		RecentClicks: lo.Map(recent, func(c *domain.Click, _ int) RecentClick {
			return RecentClick{
				ID:        c.ID,
				Timestamp: c.Timestamp,
				Platform:  c.Platform,
				Device:    c.Device,
				Browser:   c.Browser,
				OS:        c.OS,
				Country:   c.Country,
				Referrer:  c.Referrer,
			}
		}),
	}, nil
}

func countOf(groups []repository.GroupCount, value string) int64 {
	g, _ := lo.Find(groups, func(g repository.GroupCount) bool { return g.Value == value })
	return g.Count
}

// breakdown keeps the input order, which storage returns largest first.
func breakdown(groups []repository.GroupCount, total int64) []Breakdown {
	return lo.Map(groups, func(g repository.GroupCount, _ int) Breakdown {
		return Breakdown{
			Label:      g.Value,
			Count:      g.Count,
			Percentage: percentage(g.Count, total),
		}
	})
}

// percentage rounds to one decimal place.
func percentage(count, total int64) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(count)*1000/float64(total)) / 10
}
