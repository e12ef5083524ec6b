package memory

import (
	"Clixy-Backend/internal/domain"
	"Clixy-Backend/internal/repository"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemStorage is an in-process repository.Storage used by tests and local runs without a database.
type MemStorage struct {
	mu     sync.RWMutex
	links  map[string]*domain.Link
	clicks map[uuid.UUID][]*domain.Click
}

var _ repository.Storage = (*MemStorage)(nil)

func New() *MemStorage {
	return &MemStorage{
		links:  make(map[string]*domain.Link),
		clicks: make(map[uuid.UUID][]*domain.Click),
	}
}

// --- Link Methods ---

func (s *MemStorage) GetLinkBySlug(_ context.Context, slug string) (*domain.Link, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	link, ok := s.links[slug]
	if !ok {
		return nil, repository.ErrLinkNotFound
	}
	cp := *link
	return &cp, nil
}

func (s *MemStorage) SaveLink(_ context.Context, link *domain.Link) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.links[link.Slug]; exists {
		return repository.ErrSlugExists
	}
	if link.ID == uuid.Nil {
		link.ID = uuid.New()
	}
	if link.CreatedAt.IsZero() {
		link.CreatedAt = time.Now().UTC()
	}
	cp := *link
	s.links[link.Slug] = &cp
	return nil
}

func (s *MemStorage) CountLinks(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.links)), nil
}

// --- Click Methods ---

func (s *MemStorage) InsertClick(_ context.Context, click *domain.Click) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if click.ID == uuid.Nil {
		click.ID = uuid.New()
	}
	if click.Timestamp.IsZero() {
		click.Timestamp = time.Now().UTC()
	}
	cp := *click
	s.clicks[click.LinkID] = append(s.clicks[click.LinkID], &cp)
	return nil
}

func (s *MemStorage) VisitorSeen(_ context.Context, linkID uuid.UUID, visitorHash string, since time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.clicks[linkID] {
		if c.VisitorHash == visitorHash && !c.Timestamp.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemStorage) CountClicks(_ context.Context, linkID uuid.UUID) (int64, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var unique int64
	for _, c := range s.clicks[linkID] {
		if c.IsUnique {
			unique++
		}
	}
	return int64(len(s.clicks[linkID])), unique, nil
}

func (s *MemStorage) CountClicksBy(_ context.Context, linkID uuid.UUID, dim repository.Dimension) ([]repository.GroupCount, error) {
	if !dim.Valid() {
		return nil, fmt.Errorf("unsupported dimension %q", dim)
	}

	s.mu.RLock()
	counts := make(map[string]int64)
	for _, c := range s.clicks[linkID] {
		switch dim {
		case repository.DimensionPlatform:
			counts[c.Platform]++
		case repository.DimensionDevice:
			counts[c.Device]++
		case repository.DimensionCountry:
			counts[c.Country]++
		}
	}
	s.mu.RUnlock()

	result := make([]repository.GroupCount, 0, len(counts))
	for value, count := range counts {
		result = append(result, repository.GroupCount{Value: value, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Value < result[j].Value
	})
	return result, nil
}

func (s *MemStorage) RecentClicks(_ context.Context, linkID uuid.UUID, limit int) ([]*domain.Click, error) {
	s.mu.RLock()
	clicks := make([]*domain.Click, 0, len(s.clicks[linkID]))
	for _, c := range s.clicks[linkID] {
		cp := *c
		clicks = append(clicks, &cp)
	}
	s.mu.RUnlock()

	sort.SliceStable(clicks, func(i, j int) bool {
		return clicks[i].Timestamp.After(clicks[j].Timestamp)
	})
	if limit > 0 && len(clicks) > limit {
		clicks = clicks[:limit]
	}
	return clicks, nil
}

func (s *MemStorage) Ping(_ context.Context) error {
	return nil
}
