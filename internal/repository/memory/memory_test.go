package memory

import (
	"Clixy-Backend/internal/domain"
	"Clixy-Backend/internal/repository"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemStorage(t *testing.T) {
	ctx := context.Background()
	s := New()

	link := &domain.Link{UserID: "u", Slug: "abc", DestinationURL: "https://example.com/"}
	require.NoError(t, s.SaveLink(ctx, link))
	assert.ErrorIs(t, s.SaveLink(ctx, &domain.Link{Slug: "abc"}), repository.ErrSlugExists)

	got, err := s.GetLinkBySlug(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, link.ID, got.ID)

	_, err = s.GetLinkBySlug(ctx, "nope")
	assert.ErrorIs(t, err, repository.ErrLinkNotFound)

	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.InsertClick(ctx, &domain.Click{LinkID: link.ID, Platform: "Direct", Device: "Desktop", VisitorHash: "v", IsUnique: true, Timestamp: day.Add(time.Hour)}))
	require.NoError(t, s.InsertClick(ctx, &domain.Click{LinkID: link.ID, Platform: "Instagram", Device: "Mobile", VisitorHash: "v", Timestamp: day.Add(2 * time.Hour)}))
	require.NoError(t, s.InsertClick(ctx, &domain.Click{LinkID: link.ID, Platform: "Instagram", Device: "Mobile", Timestamp: day.Add(3 * time.Hour)}))

	total, unique, err := s.CountClicks(ctx, link.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Equal(t, int64(1), unique)

	seen, err := s.VisitorSeen(ctx, link.ID, "v", day)
	require.NoError(t, err)
	assert.True(t, seen)
	seen, err = s.VisitorSeen(ctx, link.ID, "v", day.Add(24*time.Hour))
	require.NoError(t, err)
	assert.False(t, seen)

	platforms, err := s.CountClicksBy(ctx, link.ID, repository.DimensionPlatform)
	require.NoError(t, err)
	assert.Equal(t, []repository.GroupCount{{Value: "Instagram", Count: 2}, {Value: "Direct", Count: 1}}, platforms)

	_, err = s.CountClicksBy(ctx, link.ID, repository.Dimension("referrer"))
	assert.Error(t, err)

	recent, err := s.RecentClicks(ctx, link.ID, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, day.Add(3*time.Hour), recent[0].Timestamp)
}
