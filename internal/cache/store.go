// Package cache provides the Redis-backed key/value layer shared by the
// ranking, eligibility and voucher components.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	redis "github.com/redis/go-redis/v9"

	apperrors "github.com/smiletrip/smilecoin/internal/errors"
	"github.com/smiletrip/smilecoin/pkg/metrics"
)

// scopeIndexTTL bounds how long an invalidation index outlives its members.
// Entries expire on their own TTLs; the index only needs to cover the
// longest-lived one.
const scopeIndexTTL = 24 * time.Hour

// Store is a JSON value cache with TTLs and scope-indexed invalidation.
// It is an optimization, never a source of truth: read failures degrade to
// a miss and write failures are logged and swallowed by callers.
type Store struct {
	client  *redis.Client
	log     *slog.Logger
	breaker *apperrors.CircuitBreaker
}

// NewStore constructs a cache store backed by the provided Redis client.
func NewStore(client *redis.Client, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}

	return &Store{
		client:  client,
		breaker: apperrors.NewCircuitBreaker(),
		log:     log,
	}
}

// Get fetches and decodes the cached value into dest, reporting whether the
// key was present. A broken Redis reads as a miss: the circuit breaker stops
// the hot path from paying a timeout per request while Redis is down.
func (s *Store) Get(ctx context.Context, key string, dest any) (bool, error) {
	if s == nil || s.client == nil {
		return false, nil
	}

	var data []byte
	err := s.breaker.Call(func() error {
		var getErr error
		data, getErr = s.client.Get(ctx, key).Bytes()
		if errors.Is(getErr, redis.Nil) {
			data = nil
			return nil
		}

		return getErr
	})
	if err != nil {
		metrics.RecordCacheLookup(KeyPrefix(key), "error")
		if !errors.Is(err, apperrors.ErrCircuitOpen) {
			s.log.Warn("cache get failed", slog.String("key", key), slog.Any("error", err))
		}
		return false, apperrors.NewCacheError(err)
	}

	if data == nil {
		metrics.RecordCacheLookup(KeyPrefix(key), "miss")
		return false, nil
	}

	if err := json.Unmarshal(data, dest); err != nil {
		metrics.RecordCacheLookup(KeyPrefix(key), "error")
		return false, apperrors.NewCacheError(fmt.Errorf("decode cached value: %w", err))
	}

	metrics.RecordCacheLookup(KeyPrefix(key), "hit")
	return true, nil
}

// Set stores value under key with the given TTL and registers the key in the
// index set of every scope, so a later InvalidateScope can find it without
// scanning the keyspace.
func (s *Store) Set(ctx context.Context, key string, value any, ttl time.Duration, scopes ...string) error {
	if s == nil || s.client == nil {
		return nil
	}

	payload, err := json.Marshal(value)
	if err != nil {
		return apperrors.NewCacheError(fmt.Errorf("encode value for cache: %w", err))
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, key, payload, ttl)
	for _, scope := range scopes {
		pipe.SAdd(ctx, indexKey(scope), key)
		pipe.Expire(ctx, indexKey(scope), scopeIndexTTL)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Warn("cache set failed", slog.String("key", key), slog.Any("error", err))
		return apperrors.NewCacheError(err)
	}

	return nil
}

// Delete removes the given keys.
func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if s == nil || s.client == nil || len(keys) == 0 {
		return nil
	}

	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		s.log.Warn("cache delete failed", slog.Any("keys", keys), slog.Any("error", err))
		return apperrors.NewCacheError(err)
	}

	return nil
}

// InvalidateScope drops every key registered under each scope along with the
// index itself. Unknown scopes are a no-op.
func (s *Store) InvalidateScope(ctx context.Context, scopes ...string) error {
	if s == nil || s.client == nil {
		return nil
	}

	for _, scope := range scopes {
		idx := indexKey(scope)

		members, err := s.client.SMembers(ctx, idx).Result()
		if err != nil {
			s.log.Warn("cache invalidation: index read failed", slog.String("scope", scope), slog.Any("error", err))
			return apperrors.NewCacheError(err)
		}

		keys := append(members, idx)
		if err := s.client.Del(ctx, keys...).Err(); err != nil {
			s.log.Warn("cache invalidation: delete failed", slog.String("scope", scope), slog.Any("error", err))
			return apperrors.NewCacheError(err)
		}
	}

	return nil
}

// HealthCheck pings the underlying Redis.
func (s *Store) HealthCheck(ctx context.Context) error {
	if s == nil || s.client == nil {
		return errors.New("cache store is not configured")
	}

	return s.client.Ping(ctx).Err()
}
