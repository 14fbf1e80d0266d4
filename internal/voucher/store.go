package voucher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/smiletrip/smilecoin/internal/cache"
	"github.com/smiletrip/smilecoin/internal/domain"
)

// Store keeps vouchers in Redis keyed by user id with TTL equal to the
// remaining validity window, so Redis expiry and the voucher expiry agree.
type Store struct {
	client *redis.Client
	log    *slog.Logger
}

// NewStore constructs a voucher store backed by the provided Redis client.
func NewStore(client *redis.Client, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}

	return &Store{client: client, log: log}
}

// Find returns the stored voucher for the user, or nil when absent.
func (s *Store) Find(ctx context.Context, userID int64) (*domain.Voucher, error) {
	data, err := s.client.Get(ctx, cache.VoucherKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("get voucher: %w", err)
	}

	var v domain.Voucher
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode voucher: %w", err)
	}

	return &v, nil
}

// Save persists the voucher with the given TTL.
func (s *Store) Save(ctx context.Context, v *domain.Voucher, ttl time.Duration) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode voucher: %w", err)
	}

	if err := s.client.Set(ctx, cache.VoucherKey(v.UserID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("set voucher: %w", err)
	}

	return nil
}

// Delete removes the stored voucher, used for lazy expiry cleanup.
func (s *Store) Delete(ctx context.Context, userID int64) error {
	if err := s.client.Del(ctx, cache.VoucherKey(userID)).Err(); err != nil {
		return fmt.Errorf("delete voucher: %w", err)
	}

	return nil
}

// Lock takes a short-lived issuance lock for the user so concurrent Issue
// calls cannot both create a voucher.
func (s *Store) Lock(ctx context.Context, userID int64, ttl time.Duration) (bool, error) {
	acquired, err := s.client.SetNX(ctx, lockKey(userID), 1, ttl).Result()
	if err != nil {
		s.log.Error("failed to acquire voucher lock", slog.Int64("user_id", userID), slog.Any("error", err))
		return false, fmt.Errorf("acquire voucher lock: %w", err)
	}

	return acquired, nil
}

// Unlock releases the issuance lock.
func (s *Store) Unlock(ctx context.Context, userID int64) error {
	if err := s.client.Del(ctx, lockKey(userID)).Err(); err != nil {
		s.log.Error("failed to release voucher lock", slog.Int64("user_id", userID), slog.Any("error", err))
		return fmt.Errorf("release voucher lock: %w", err)
	}

	return nil
}

func lockKey(userID int64) string {
	return cache.VoucherKey(userID) + ":lock"
}
