package errors

import (
	"errors"
	"sync"
	"time"
)

const (
	ErrorThreshold      = 0.5
	MinRequests         = 10
	TimeoutDuration     = 30 * time.Second
	HalfOpenMaxRequests = 3
)

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

var (
	ErrCircuitOpen             = errors.New("circuit breaker is open")
	errHalfOpenTooManyRequests = errors.New("too many requests in half-open")
)

// CircuitBreaker shields callers from a flapping dependency. The cache layer
// wraps Redis reads with one so a dead Redis degrades to recompute instead of
// paying a timeout per request.
type CircuitBreaker struct {
	mu              sync.Mutex
	state           State
	failures        int
	successes       int
	requests        int
	lastFailureTime time.Time
}

func NewCircuitBreaker() *CircuitBreaker {
	return &CircuitBreaker{
		state: StateClosed,
	}
}

func (cb *CircuitBreaker) Call(fn func() error) error {
	if fn == nil {
		return nil
	}

	cb.mu.Lock()
	if cb.state == StateOpen {
		if time.Since(cb.lastFailureTime) >= TimeoutDuration {
			cb.transitionToHalfOpenLocked()
		} else {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
	}

	if cb.state == StateHalfOpen && cb.requests >= HalfOpenMaxRequests {
		cb.mu.Unlock()
		return errHalfOpenTooManyRequests
	}

	cb.requests++
	cb.mu.Unlock()

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		cb.failures++
		cb.lastFailureTime = time.Now()

		switch cb.state {
		case StateHalfOpen:
			cb.transitionToOpenLocked()
		case StateClosed:
			if cb.requests >= MinRequests && cb.failureRateLocked() >= ErrorThreshold {
				cb.transitionToOpenLocked()
			}
		}

		return err
	}

	cb.successes++
	if cb.state == StateHalfOpen && cb.successes >= HalfOpenMaxRequests {
		cb.transitionToClosedLocked()
	}

	return nil
}

func (cb *CircuitBreaker) CurrentState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return cb.state
}

func (cb *CircuitBreaker) failureRateLocked() float64 {
	if cb.requests == 0 {
		return 0
	}

	return float64(cb.failures) / float64(cb.requests)
}

func (cb *CircuitBreaker) transitionToOpenLocked() {
	cb.state = StateOpen
	cb.resetCountersLocked()
}

func (cb *CircuitBreaker) transitionToHalfOpenLocked() {
	cb.state = StateHalfOpen
	cb.resetCountersLocked()
}

func (cb *CircuitBreaker) transitionToClosedLocked() {
	cb.state = StateClosed
	cb.resetCountersLocked()
}

func (cb *CircuitBreaker) resetCountersLocked() {
	cb.failures = 0
	cb.successes = 0
	cb.requests = 0
}
