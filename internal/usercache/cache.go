// Package usercache is a read-through Redis cache for tourist profiles.
// Profiles are immutable after registration (arrival and departure never
// change), so entries only ever expire, never invalidate.
package usercache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/smiletrip/smilecoin/internal/domain"
)

// Cache stores tourist profiles keyed by user id.
type Cache struct {
	client *redis.Client
}

// NewCache constructs a profile cache backed by the provided Redis client.
func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client}
}

// Get fetches a cached profile, or nil on a miss. Errors are returned so
// callers can decide whether to degrade to the database.
func (c *Cache) Get(ctx context.Context, userID int64) (*domain.User, error) {
	if c == nil || c.client == nil {
		return nil, nil
	}

	data, err := c.client.Get(ctx, cacheKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("get cached profile: %w", err)
	}

	var user domain.User
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, fmt.Errorf("decode cached profile: %w", err)
	}

	return &user, nil
}

// Set stores the profile for the provided TTL.
func (c *Cache) Set(ctx context.Context, user *domain.User, ttl time.Duration) error {
	if c == nil || c.client == nil || user == nil {
		return nil
	}

	payload, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("encode profile for cache: %w", err)
	}

	if err := c.client.Set(ctx, cacheKey(user.ID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("set cached profile: %w", err)
	}

	return nil
}

func cacheKey(userID int64) string {
	return fmt.Sprintf("profile:user:%d", userID)
}
