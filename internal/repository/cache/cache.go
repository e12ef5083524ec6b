package cache

import (
	"Clixy-Backend/internal/domain"
	"Clixy-Backend/internal/repository"
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const linkKeyPrefix = "link:"

// LinkCache is a read-through Redis cache in front of a LinkReader.
// Redis failures are treated as cache misses so the datastore stays authoritative.
type LinkCache struct {
	next repository.LinkReader
	rdb  *redis.Client
	ttl  time.Duration
	log  *zap.Logger
}

var _ repository.LinkReader = (*LinkCache)(nil)

// NewLinkCache wraps next. A nil client or a non-positive ttl disables caching and returns next unchanged.
func NewLinkCache(next repository.LinkReader, rdb *redis.Client, ttl time.Duration, log *zap.Logger) repository.LinkReader {
	if rdb == nil || ttl <= 0 {
		return next
	}
	return &LinkCache{
		next: next,
		rdb:  rdb,
		ttl:  ttl,
		log:  log,
	}
}

type cachedLink struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	Slug           string    `json:"slug"`
	Name           string    `json:"name"`
	DestinationURL string    `json:"destination_url"`
	CreatedAt      time.Time `json:"created_at"`
}

func (c *LinkCache) GetLinkBySlug(ctx context.Context, slug string) (*domain.Link, error) {
	key := linkKeyPrefix + slug

	data, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		if link, ok := c.decode(data); ok {
			return link, nil
		}
	case !errors.Is(err, redis.Nil):
		c.log.Warn("failed to read link from cache", zap.String("slug", slug), zap.Error(err))
	}

	link, err := c.next.GetLinkBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}

	c.store(ctx, key, link)
	return link, nil
}

func (c *LinkCache) decode(data []byte) (*domain.Link, bool) {
	var cl cachedLink
	if err := json.Unmarshal(data, &cl); err != nil {
		c.log.Warn("failed to decode cached link", zap.Error(err))
		return nil, false
	}

	link := &domain.Link{
		UserID:         cl.UserID,
		Slug:           cl.Slug,
		Name:           cl.Name,
		DestinationURL: cl.DestinationURL,
		CreatedAt:      cl.CreatedAt,
	}
	if err := link.ID.UnmarshalText([]byte(cl.ID)); err != nil {
		return nil, false
	}
	return link, true
}

func (c *LinkCache) store(ctx context.Context, key string, link *domain.Link) {
	data, err := json.Marshal(cachedLink{
		ID:             link.ID.String(),
		UserID:         link.UserID,
		Slug:           link.Slug,
		Name:           link.Name,
		DestinationURL: link.DestinationURL,
		CreatedAt:      link.CreatedAt,
	})
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.log.Warn("failed to cache link", zap.String("key", key), zap.Error(err))
	}
}
