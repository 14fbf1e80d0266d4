package ratelimit

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "ratelimit:"

// RedisLimiter counts requests in a sorted-set sliding window keyed by
// caller. The window is shared across instances, so horizontal scaling does
// not multiply the effective limit.
type RedisLimiter struct {
	client *redis.Client
	log    *slog.Logger
	now    func() time.Time
}

var _ Limiter = (*RedisLimiter)(nil)

func NewRedisLimiter(client *redis.Client, log *slog.Logger) *RedisLimiter {
	if log == nil {
		log = slog.Default()
	}

	return &RedisLimiter{client: client, log: log, now: time.Now}
}

// Check records this request under key and reports whether the window still
// had room. Stale entries are trimmed on every call; the set expires after
// two windows of silence.
func (l *RedisLimiter) Check(ctx context.Context, key string, limit int, window time.Duration) (*Result, error) {
	if l.client == nil {
		return nil, errors.New("rate limiter has no redis client")
	}

	now := l.now()
	if limit <= 0 {
		return &Result{Allowed: false, ResetAt: now.Add(window)}, nil
	}

	nowMs := now.UnixMilli()
	cutoff := strconv.FormatInt(now.Add(-window).UnixMilli(), 10)
	setKey := keyPrefix + key

	pipe := l.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, setKey, "-inf", "("+cutoff)
	pipe.ZAdd(ctx, setKey, redis.Z{Score: float64(nowMs), Member: uuid.NewString()})
	inWindow := pipe.ZCard(ctx, setKey)
	pipe.Expire(ctx, setKey, 2*window)

	if _, err := pipe.Exec(ctx); err != nil {
		l.log.Error("rate limit check failed",
			slog.String("key", key), slog.Any("error", err))
		return nil, err
	}

	count := int(inWindow.Val())
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}

	return &Result{
		Allowed:   count <= limit,
		Remaining: remaining,
		ResetAt:   now.Add(window),
	}, nil
}
