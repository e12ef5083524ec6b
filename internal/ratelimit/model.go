package ratelimit

import (
	"context"
	"time"
)

// Limit is a fixed window quota: at most MaxHits admissions per Window and key.
type Limit struct {
	MaxHits int64
	Window  time.Duration
}

// Decision is the outcome of a single Allow call.
type Decision struct {
	Allow      bool
	Remaining  int64
	RetryAfter time.Duration
	ResetTime  time.Time
}

// Limiter admits or rejects a hit for key.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}
