package idempotency

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const StatusCompleted = "completed"

// Record is one stored idempotency outcome.
type Record struct {
	Status   string
	Response []byte
}

// Store persists idempotency records and the per-key execution lock.
type Store interface {
	Lock(ctx context.Context, key string, lockTTL time.Duration) (bool, error)
	Get(ctx context.Context, key string) (*Record, error)
	Set(ctx context.Context, key string, record *Record, ttl time.Duration) error
	ReleaseLock(ctx context.Context, key string) error
}

// RedisStore keeps records as Redis hashes so status and response expire
// together.
type RedisStore struct {
	client *redis.Client
	log    *slog.Logger
}

// NewRedisStore builds a Redis-backed Store.
func NewRedisStore(client *redis.Client, log *slog.Logger) Store {
	if log == nil {
		log = slog.Default()
	}

	return &RedisStore{client: client, log: log}
}

func (s *RedisStore) Lock(ctx context.Context, key string, lockTTL time.Duration) (bool, error) {
	acquired, err := s.client.SetNX(ctx, lockKey(key), 1, lockTTL).Result()
	if err != nil {
		s.log.Error("failed to acquire idempotency lock", slog.String("key", key), slog.Any("error", err))
		return false, fmt.Errorf("acquire idempotency lock: %w", err)
	}

	return acquired, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (*Record, error) {
	result, err := s.client.HGetAll(ctx, recordKey(key)).Result()
	if err != nil {
		s.log.Error("failed to fetch idempotency record", slog.String("key", key), slog.Any("error", err))
		return nil, fmt.Errorf("get idempotency record: %w", err)
	}

	if len(result) == 0 {
		return nil, nil
	}

	return &Record{
		Status:   result["status"],
		Response: []byte(result["response"]),
	}, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, record *Record, ttl time.Duration) error {
	if record == nil {
		return nil
	}

	fields := map[string]interface{}{
		"status":   record.Status,
		"response": string(record.Response),
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, recordKey(key), fields)
	pipe.Expire(ctx, recordKey(key), ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Error("failed to store idempotency record", slog.String("key", key), slog.Any("error", err))
		return fmt.Errorf("set idempotency record: %w", err)
	}

	return nil
}

func (s *RedisStore) ReleaseLock(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, lockKey(key)).Err(); err != nil {
		s.log.Error("failed to release idempotency lock", slog.String("key", key), slog.Any("error", err))
		return fmt.Errorf("release idempotency lock: %w", err)
	}

	return nil
}

func recordKey(key string) string {
	return fmt.Sprintf("idempotency:%s", key)
}

func lockKey(key string) string {
	return fmt.Sprintf("idempotency:%s:lock", key)
}
