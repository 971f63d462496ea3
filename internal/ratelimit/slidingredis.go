package ratelimit

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Verdict is the outcome of one rate limit check.
type Verdict struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Limiter is a sliding window rate limiter over Redis sorted sets. Each event
// is a member scored by its arrival time; the window slides by trimming
// members older than the window before counting.
type Limiter struct {
	Client *redis.Client
	Prefix string
}

// Allow records an event under key and reports whether it fits the limit.
// A limiter without a client, or a non-positive limit or window, admits
// everything.
func (l Limiter) Allow(ctx context.Context, key string, window time.Duration, max int) (Verdict, error) {
	if l.Client == nil || max <= 0 || window <= 0 {
		return Verdict{Allowed: true, Remaining: max, ResetAt: time.Now().Add(window)}, nil
	}

	now := time.Now()
	resetAt := now.Add(window)
	cutoff := strconv.FormatInt(now.Add(-window).UnixNano(), 10)
	bucket := l.Prefix + key

	pipe := l.Client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, bucket, "-inf", cutoff)
	pipe.ZAdd(ctx, bucket, redis.Z{Score: float64(now.UnixNano()), Member: uuid.NewString()})
	count := pipe.ZCard(ctx, bucket)
	pipe.Expire(ctx, bucket, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return Verdict{ResetAt: resetAt}, err
	}

	used := int(count.Val())
	remaining := max - used
	if remaining < 0 {
		remaining = 0
	}
	return Verdict{Allowed: used <= max, Remaining: remaining, ResetAt: resetAt}, nil
}
