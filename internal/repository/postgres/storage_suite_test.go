package postgres

import (
	"Clixy-Backend/internal/database"
	"Clixy-Backend/internal/domain"
	"Clixy-Backend/internal/repository"
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// StorageSuite runs against any gorm dialect; concrete suites open the database.
type StorageSuite struct {
	suite.Suite
	ctx     context.Context
	db      *gorm.DB
	storage *PostgresStorage
}

func (s *StorageSuite) migrate() {
	s.ctx = context.Background()
	s.Require().NoError(database.AutoMigrate(s.db, zap.NewNop()))
	s.storage = New(s.db, zap.NewNop())
}

func (s *StorageSuite) SetupTest() {
	s.Require().NoError(s.db.Exec("DELETE FROM clicks").Error)
	s.Require().NoError(s.db.Exec("DELETE FROM links").Error)
}

func (s *StorageSuite) newLink(slug string) *domain.Link {
	link := &domain.Link{UserID: "user-1", Slug: slug, Name: slug, DestinationURL: "https://example.com/" + slug}
	s.Require().NoError(s.storage.SaveLink(s.ctx, link))
	return link
}

func (s *StorageSuite) insertClick(linkID uuid.UUID, c domain.Click) *domain.Click {
	c.LinkID = linkID
	s.Require().NoError(s.storage.InsertClick(s.ctx, &c))
	return &c
}

func (s *StorageSuite) TestGetLinkBySlug() {
	link := s.newLink("abc1234")

	got, err := s.storage.GetLinkBySlug(s.ctx, "abc1234")
	s.Require().NoError(err)
	s.Equal(link.ID, got.ID)
	s.Equal("https://example.com/abc1234", got.DestinationURL)

	_, err = s.storage.GetLinkBySlug(s.ctx, "missing")
	s.ErrorIs(err, repository.ErrLinkNotFound)
}

func (s *StorageSuite) TestSaveLinkDuplicateSlug() {
	s.newLink("dup")

	err := s.storage.SaveLink(s.ctx, &domain.Link{UserID: "user-2", Slug: "dup", DestinationURL: "https://example.org/"})
	s.ErrorIs(err, repository.ErrSlugExists)

	count, err := s.storage.CountLinks(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(1), count)
}

func (s *StorageSuite) TestInsertClickDefaults() {
	link := s.newLink("defaults")

	click := s.insertClick(link.ID, domain.Click{Platform: "Direct"})
	s.NotEqual(uuid.Nil, click.ID)
	s.False(click.Timestamp.IsZero())

	recent, err := s.storage.RecentClicks(s.ctx, link.ID, 10)
	s.Require().NoError(err)
	s.Require().Len(recent, 1)
	s.Equal(domain.DeviceUnknown, recent[0].Device)
	s.Equal(domain.CountryUnknown, recent[0].Country)
	s.Nil(recent[0].Referrer)
	s.Nil(recent[0].UserAgent)
}

func (s *StorageSuite) TestInsertClickOversizedLabels() {
	link := s.newLink("oversized")
	host := strings.Repeat("a", 296) + ".com"

	s.insertClick(link.ID, domain.Click{Platform: host, Country: strings.Repeat("Z", 40), Browser: strings.Repeat("b", 100)})

	recent, err := s.storage.RecentClicks(s.ctx, link.ID, 10)
	s.Require().NoError(err)
	s.Require().Len(recent, 1)
	s.Equal(host[:domain.PlatformMaxLen], recent[0].Platform)
	s.Len(recent[0].Country, domain.CountryMaxLen)
	s.Len(recent[0].Browser, domain.BrowserMaxLen)
}

func (s *StorageSuite) TestCountClicks() {
	link := s.newLink("counts")
	other := s.newLink("other")

	s.insertClick(link.ID, domain.Click{Platform: "Direct", IsUnique: true})
	s.insertClick(link.ID, domain.Click{Platform: "Direct"})
	s.insertClick(link.ID, domain.Click{Platform: "Instagram", IsUnique: true})
	s.insertClick(other.ID, domain.Click{Platform: "Direct", IsUnique: true})

	total, unique, err := s.storage.CountClicks(s.ctx, link.ID)
	s.Require().NoError(err)
	s.Equal(int64(3), total)
	s.Equal(int64(2), unique)
}

func (s *StorageSuite) TestCountClicksBy() {
	link := s.newLink("groups")

	s.insertClick(link.ID, domain.Click{Platform: "Instagram", Device: domain.DeviceMobile, Country: "US"})
	s.insertClick(link.ID, domain.Click{Platform: "Instagram", Device: domain.DeviceMobile, Country: "DE"})
	s.insertClick(link.ID, domain.Click{Platform: "Direct", Device: domain.DeviceDesktop, Country: "US"})

	platforms, err := s.storage.CountClicksBy(s.ctx, link.ID, repository.DimensionPlatform)
	s.Require().NoError(err)
	s.Equal([]repository.GroupCount{{Value: "Instagram", Count: 2}, {Value: "Direct", Count: 1}}, platforms)

	countries, err := s.storage.CountClicksBy(s.ctx, link.ID, repository.DimensionCountry)
	s.Require().NoError(err)
	s.Equal([]repository.GroupCount{{Value: "US", Count: 2}, {Value: "DE", Count: 1}}, countries)

	_, err = s.storage.CountClicksBy(s.ctx, link.ID, repository.Dimension("user_agent; DROP TABLE clicks"))
	s.Error(err)
}

func (s *StorageSuite) TestRecentClicksNewestFirst() {
	link := s.newLink("recent")
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		s.insertClick(link.ID, domain.Click{Platform: "Direct", Country: string(rune('A' + i)), Timestamp: base.Add(time.Duration(i) * time.Minute)})
	}

	recent, err := s.storage.RecentClicks(s.ctx, link.ID, 3)
	s.Require().NoError(err)
	s.Require().Len(recent, 3)
	s.Equal("E", recent[0].Country)
	s.Equal("C", recent[2].Country)
}

func (s *StorageSuite) TestVisitorSeen() {
	link := s.newLink("visitors")
	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	s.insertClick(link.ID, domain.Click{Platform: "Direct", VisitorHash: "v1", Timestamp: day.Add(-time.Hour)})

	seen, err := s.storage.VisitorSeen(s.ctx, link.ID, "v1", day)
	s.Require().NoError(err)
	s.False(seen, "clicks from the previous day do not count")

	s.insertClick(link.ID, domain.Click{Platform: "Direct", VisitorHash: "v1", Timestamp: day.Add(time.Hour)})

	seen, err = s.storage.VisitorSeen(s.ctx, link.ID, "v1", day)
	s.Require().NoError(err)
	s.True(seen)

	seen, err = s.storage.VisitorSeen(s.ctx, link.ID, "v2", day)
	s.Require().NoError(err)
	s.False(seen)
}

func (s *StorageSuite) TestPing() {
	s.NoError(s.storage.Ping(s.ctx))
}
