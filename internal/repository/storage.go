package repository

import (
	"Clixy-Backend/internal/domain"
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrLinkNotFound = errors.New("link not found")
	ErrSlugExists   = errors.New("slug already exists")
)

// Dimension is a click column that stats can be grouped by.
type Dimension string

const (
	DimensionPlatform Dimension = "platform"
	DimensionDevice   Dimension = "device"
	DimensionCountry  Dimension = "country"
)

// Valid reports whether d names a groupable column.
func (d Dimension) Valid() bool {
	switch d {
	case DimensionPlatform, DimensionDevice, DimensionCountry:
		return true
	}
	return false
}

// GroupCount is a single row of a grouped click count.
type GroupCount struct {
	Value string
	Count int64
}

// LinkReader is the read side the redirect path depends on.
type LinkReader interface {
	GetLinkBySlug(ctx context.Context, slug string) (*domain.Link, error)
}

// ClickWriter is the write side the capture workers depend on.
type ClickWriter interface {
	InsertClick(ctx context.Context, click *domain.Click) error
	VisitorSeen(ctx context.Context, linkID uuid.UUID, visitorHash string, since time.Time) (bool, error)
}

type Storage interface {
	LinkReader
	ClickWriter

	// Link methods
	SaveLink(ctx context.Context, link *domain.Link) error
	CountLinks(ctx context.Context) (int64, error)

	// Click analytics methods
	CountClicks(ctx context.Context, linkID uuid.UUID) (total int64, unique int64, err error)
	CountClicksBy(ctx context.Context, linkID uuid.UUID, dim Dimension) ([]GroupCount, error)
	RecentClicks(ctx context.Context, linkID uuid.UUID, limit int) ([]*domain.Click, error)

	Ping(ctx context.Context) error
}
