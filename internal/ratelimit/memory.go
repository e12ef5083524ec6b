package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

type window struct {
	count     int64
	expiresAt time.Time
}

// MemoryLimiter is an in-process fixed window limiter.
//
// It is safe for concurrent use, but its state is local to the process: every
// replica enforces its own limit. The key set is bounded at maxKeys entries and
// expired windows are reclaimed by Sweep. A live window is never evicted: when
// every tracked key still has one, hits on new keys are rejected until the
// earliest window ends.
type MemoryLimiter struct {
	mu      sync.Mutex
	limit   Limit
	maxKeys int
	windows *lru.Cache[string, *window]
	now     func() time.Time
}

var _ Limiter = (*MemoryLimiter)(nil)

// Option configures a MemoryLimiter.
type Option func(*MemoryLimiter)

// WithClock overrides time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(m *MemoryLimiter) {
		m.now = now
	}
}

// NewMemoryLimiter constructs a MemoryLimiter tracking at most maxKeys keys.
func NewMemoryLimiter(limit Limit, maxKeys int, opts ...Option) (*MemoryLimiter, error) {
	if limit.MaxHits <= 0 || limit.Window <= 0 {
		return nil, fmt.Errorf("invalid limit: max hits %d, window %s", limit.MaxHits, limit.Window)
	}

	windows, err := lru.New[string, *window](maxKeys)
	if err != nil {
		return nil, fmt.Errorf("create window cache: %w", err)
	}

	m := &MemoryLimiter{
		limit:   limit,
		maxKeys: maxKeys,
		windows: windows,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Allow records a hit for key. A new or expired window starts at count 1;
// a full window rejects without counting the hit.
func (m *MemoryLimiter) Allow(_ context.Context, key string) (Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	w, ok := m.windows.Get(key)
	if !ok && m.windows.Len() >= m.maxKeys {
		if removed, next := m.sweepLocked(now); removed == 0 {
			return Decision{
				Allow:      false,
				Remaining:  0,
				RetryAfter: next.Sub(now),
				ResetTime:  next,
			}, nil
		}
	}
	if !ok || !now.Before(w.expiresAt) {
		w = &window{count: 1, expiresAt: now.Add(m.limit.Window)}
		m.windows.Add(key, w)
		return Decision{
			Allow:     true,
			Remaining: m.limit.MaxHits - 1,
			ResetTime: w.expiresAt,
		}, nil
	}

	if w.count >= m.limit.MaxHits {
		return Decision{
			Allow:      false,
			Remaining:  0,
			RetryAfter: w.expiresAt.Sub(now),
			ResetTime:  w.expiresAt,
		}, nil
	}

	w.count++
	return Decision{
		Allow:     true,
		Remaining: m.limit.MaxHits - w.count,
		ResetTime: w.expiresAt,
	}, nil
}

// Sweep drops expired windows and returns how many were removed.
func (m *MemoryLimiter) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed, _ := m.sweepLocked(m.now())
	return removed
}

// sweepLocked removes expired windows and reports the earliest expiry among
// the ones left. m.mu must be held.
func (m *MemoryLimiter) sweepLocked(now time.Time) (int, time.Time) {
	removed := 0
	var next time.Time
	for _, key := range m.windows.Keys() {
		w, ok := m.windows.Peek(key)
		if !ok {
			continue
		}
		if !now.Before(w.expiresAt) {
			m.windows.Remove(key)
			removed++
			continue
		}
		if next.IsZero() || w.expiresAt.Before(next) {
			next = w.expiresAt
		}
	}
	return removed, next
}

// Len returns the number of tracked keys.
func (m *MemoryLimiter) Len() int {
	return m.windows.Len()
}

// RunJanitor sweeps expired windows every interval until ctx is done.
func (m *MemoryLimiter) RunJanitor(ctx context.Context, interval time.Duration, log *zap.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed := m.Sweep()
			log.Debug("rate limiter sweep", zap.Int("removed", removed), zap.Int("active_keys", m.Len()))
		}
	}
}
