package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryLimiter is an in-process fallback Limiter for deployments without
// Redis and for tests. Windows are per-instance, not shared.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string][]time.Time
}

var _ Limiter = (*MemoryLimiter)(nil)

// NewMemoryLimiter returns an in-memory limiter implementation.
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		windows: make(map[string][]time.Time),
	}
}

// Check enforces a sliding-window limit for the provided key.
func (m *MemoryLimiter) Check(ctx context.Context, key string, limit int, window time.Duration) (*Result, error) {
	now := time.Now()
	windowStart := now.Add(-window)

	m.mu.Lock()
	defer m.mu.Unlock()

	recent := m.windows[key][:0]
	for _, ts := range m.windows[key] {
		if ts.After(windowStart) {
			recent = append(recent, ts)
		}
	}

	allowed := len(recent) < limit
	if allowed {
		recent = append(recent, now)
	}
	m.windows[key] = recent

	remaining := limit - len(recent)
	if remaining < 0 {
		remaining = 0
	}

	return &Result{
		Allowed:   allowed,
		Remaining: remaining,
		ResetAt:   now.Add(window),
	}, nil
}

// Cleanup removes keys whose newest entry is older than maxAge.
func (m *MemoryLimiter) Cleanup(maxAge time.Duration) {
	cutoff := time.Now().Add(-maxAge)

	m.mu.Lock()
	defer m.mu.Unlock()

	for key, entries := range m.windows {
		if len(entries) == 0 || entries[len(entries)-1].Before(cutoff) {
			delete(m.windows, key)
		}
	}
}
