// Package idempotency replays stored responses for repeated write requests
// carrying the same Idempotency-Key, so a client retrying a timed-out
// transfer cannot spend coins twice.
package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"
)

// ErrRequestInProgress reports that another request with the same key is
// still executing.
var ErrRequestInProgress = errors.New("request with this key is already in progress")

const lockTTL = 30 * time.Second

// Response is the stored outcome of an idempotent operation.
type Response struct {
	StatusCode  int    `json:"status_code"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// Operation produces the response to store and replay.
type Operation func(ctx context.Context) (*Response, error)

// Result carries the response plus whether it was replayed from the store.
type Result struct {
	Response *Response
	Replayed bool
}

// Manager executes an operation at most once per key within the record TTL.
type Manager interface {
	Execute(ctx context.Context, key string, ttl time.Duration, fn Operation) (*Result, error)
}

type manager struct {
	store Store
	log   *slog.Logger
}

// NewManager builds a Manager over the given record store.
func NewManager(store Store, log *slog.Logger) Manager {
	if log == nil {
		log = slog.Default()
	}

	return &manager{store: store, log: log}
}

// Execute runs fn under a per-key lock. A stored response is replayed
// without running fn; a concurrent holder of the lock yields
// ErrRequestInProgress rather than blocking the connection. Server errors
// are never stored, so a retry after a 5xx re-executes the operation.
func (m *manager) Execute(ctx context.Context, key string, ttl time.Duration, fn Operation) (*Result, error) {
	if fn == nil {
		return nil, errors.New("operation fn cannot be nil")
	}

	if stored, err := m.lookup(ctx, key); err != nil || stored != nil {
		return stored, err
	}

	locked, err := m.store.Lock(ctx, key, lockTTL)
	if err != nil {
		return nil, err
	}
	if !locked {
		// The lock holder may have finished between our lookup and the
		// SetNX; check once more before reporting the collision.
		if stored, err := m.lookup(ctx, key); err != nil || stored != nil {
			return stored, err
		}
		return nil, ErrRequestInProgress
	}
	defer func() {
		if err := m.store.ReleaseLock(ctx, key); err != nil {
			m.log.Warn("idempotency unlock failed", slog.String("key", key), slog.Any("error", err))
		}
	}()

	response, err := fn(ctx)
	if err != nil {
		return nil, err
	}

	if response.StatusCode < http.StatusInternalServerError {
		if err := m.store.Set(ctx, key, &Record{Status: StatusCompleted, Response: mustEncode(response)}, ttl); err != nil {
			m.log.Warn("idempotency record write failed", slog.String("key", key), slog.Any("error", err))
		}
	}

	return &Result{Response: response}, nil
}

func (m *manager) lookup(ctx context.Context, key string) (*Result, error) {
	record, err := m.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if record == nil || record.Status != StatusCompleted {
		return nil, nil
	}

	var response Response
	if err := json.Unmarshal(record.Response, &response); err != nil {
		return nil, err
	}

	return &Result{Response: &response, Replayed: true}, nil
}

func mustEncode(response *Response) []byte {
	encoded, _ := json.Marshal(response)
	return encoded
}
