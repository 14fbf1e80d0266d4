// Package health probes the service's hard dependencies for the readiness
// endpoint.
package health

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// checkTimeout bounds each probe so one hung dependency cannot stall the
// readiness endpoint past the load balancer's own deadline.
const checkTimeout = 2 * time.Second

// Checkable reports whether a component is reachable.
type Checkable interface {
	HealthCheck(ctx context.Context) error
}

// Report is the readiness payload: overall status plus per-component detail.
type Report struct {
	Healthy    bool              `json:"-"`
	Status     string            `json:"status"`
	Components map[string]string `json:"components"`
}

// Checker fans a readiness probe out to registered components.
type Checker struct {
	log    *slog.Logger
	checks map[string]Checkable
}

func NewChecker(log *slog.Logger) *Checker {
	if log == nil {
		log = slog.Default()
	}

	return &Checker{
		log:    log,
		checks: make(map[string]Checkable),
	}
}

// AddCheck registers a component. Registration happens during startup
// wiring only; Check may run concurrently afterwards.
func (c *Checker) AddCheck(name string, check Checkable) {
	if name == "" || check == nil {
		return
	}
	c.checks[name] = check
}

// Check probes all components in parallel and aggregates the outcome.
func (c *Checker) Check(ctx context.Context) Report {
	report := Report{
		Healthy:    true,
		Status:     "ok",
		Components: make(map[string]string, len(c.checks)),
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)

	for name, check := range c.checks {
		wg.Add(1)
		go func(name string, check Checkable) {
			defer wg.Done()

			probeCtx, cancel := context.WithTimeout(ctx, checkTimeout)
			defer cancel()

			err := check.HealthCheck(probeCtx)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				report.Healthy = false
				report.Status = "degraded"
				report.Components[name] = err.Error()
				c.log.Warn("health check failed",
					slog.String("component", name), slog.Any("error", err))
				return
			}

			report.Components[name] = "ok"
		}(name, check)
	}

	wg.Wait()

	return report
}

// DBChecker probes Postgres connectivity.
type DBChecker struct {
	db *sql.DB
}

func NewDBChecker(db *sql.DB) *DBChecker {
	return &DBChecker{db: db}
}

func (c *DBChecker) HealthCheck(ctx context.Context) error {
	if c == nil || c.db == nil {
		return sql.ErrConnDone
	}
	return c.db.PingContext(ctx)
}

// Pinger is the slice of redis.Client the Redis probe needs.
type Pinger interface {
	Ping(ctx context.Context) *redis.StatusCmd
}

// RedisChecker probes Redis connectivity.
type RedisChecker struct {
	pinger Pinger
}

func NewRedisChecker(pinger Pinger) *RedisChecker {
	return &RedisChecker{pinger: pinger}
}

func (c *RedisChecker) HealthCheck(ctx context.Context) error {
	if c == nil || c.pinger == nil {
		return redis.ErrClosed
	}
	return c.pinger.Ping(ctx).Err()
}
