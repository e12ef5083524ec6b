package service

import (
	"Clixy-Backend/internal/domain"
	"Clixy-Backend/internal/repository"
	"Clixy-Backend/internal/repository/memory"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func seedClicks(t *testing.T, storage *memory.MemStorage, link *domain.Link, clicks []domain.Click) {
	t.Helper()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i := range clicks {
		c := clicks[i]
		c.LinkID = link.ID
		c.Timestamp = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, storage.InsertClick(context.Background(), &c))
	}
}

func TestStatsService_LinkStats(t *testing.T) {
	ctx := context.Background()
	storage := memory.New()
	svc := NewStatsService(storage, zap.NewNop())

	link := &domain.Link{UserID: "owner", Slug: "abc1234", Name: "Launch", DestinationURL: "https://example.com/"}
	require.NoError(t, storage.SaveLink(ctx, link))

	seedClicks(t, storage, link, []domain.Click{
		{Platform: "Instagram", Device: domain.DeviceMobile, Country: "US", IsUnique: true},
		{Platform: "Instagram", Device: domain.DeviceMobile, Country: "US"},
		{Platform: "Direct", Device: domain.DeviceDesktop, Country: "DE", IsUnique: true},
		{Platform: "Instagram", Device: domain.DeviceDesktop, Country: "Unknown", IsUnique: true},
	})

	t.Run("aggregates", func(t *testing.T) {
		stats, err := svc.LinkStats(ctx, "owner", "abc1234")
		require.NoError(t, err)

		assert.Equal(t, int64(4), stats.TotalClicks)
		assert.Equal(t, int64(3), stats.UniqueClicks)
		assert.Equal(t, int64(2), stats.DesktopClicks)
		assert.Equal(t, int64(2), stats.MobileClicks)
		assert.Equal(t, 3, stats.UniqueCountries)

		require.Len(t, stats.Platforms, 2)
		assert.Equal(t, Breakdown{Label: "Instagram", Count: 3, Percentage: 75}, stats.Platforms[0])
		assert.Equal(t, Breakdown{Label: "Direct", Count: 1, Percentage: 25}, stats.Platforms[1])

		require.Len(t, stats.Countries, 3)
		assert.Equal(t, "US", stats.Countries[0].Label)
		assert.Equal(t, 50.0, stats.Countries[0].Percentage)

		require.Len(t, stats.RecentClicks, 4)
		assert.Equal(t, "Unknown", stats.RecentClicks[0].Country, "newest click first")
	})

	t.Run("foreign link is not found", func(t *testing.T) {
		_, err := svc.LinkStats(ctx, "intruder", "abc1234")
		assert.ErrorIs(t, err, repository.ErrLinkNotFound)
	})

	t.Run("missing link", func(t *testing.T) {
		_, err := svc.LinkStats(ctx, "owner", "missing")
		assert.ErrorIs(t, err, repository.ErrLinkNotFound)
	})
}

func TestStatsService_Limits(t *testing.T) {
	ctx := context.Background()
	storage := memory.New()
	svc := NewStatsService(storage, zap.NewNop())

	link := &domain.Link{UserID: "owner", Slug: "many", DestinationURL: "https://example.com/"}
	require.NoError(t, storage.SaveLink(ctx, link))

	var clicks []domain.Click
	for i := 0; i < 12; i++ {
		clicks = append(clicks, domain.Click{Platform: "Direct", Device: domain.DeviceDesktop, Country: fmt.Sprintf("C%02d", i)})
	}
	seedClicks(t, storage, link, clicks)

	stats, err := svc.LinkStats(ctx, "owner", "many")
	require.NoError(t, err)

	assert.Len(t, stats.Countries, 10)
	assert.Equal(t, 12, stats.UniqueCountries)
	assert.Len(t, stats.RecentClicks, 10)
}

func TestPercentage(t *testing.T) {
	assert.Equal(t, 0.0, percentage(1, 0))
	assert.Equal(t, 33.3, percentage(1, 3))
	assert.Equal(t, 66.7, percentage(2, 3))
	assert.Equal(t, 100.0, percentage(5, 5))
}
