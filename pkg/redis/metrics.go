package redis

import (
	"context"
	"net"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	redis "github.com/redis/go-redis/v9"
)

var (
	redisCommandsTotal   *prometheus.CounterVec
	redisErrorsTotal     *prometheus.CounterVec
	redisCommandDuration *prometheus.HistogramVec
)

func init() {
	redisCommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redis_commands_total",
			Help: "Total number of Redis commands by name.",
		},
		[]string{"command"},
	)
	redisErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redis_errors_total",
			Help: "Total number of Redis command errors by name.",
		},
		[]string{"command"},
	)
	redisCommandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redis_command_duration_seconds",
			Help:    "Redis command latency distributions.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"command"},
	)

	prometheus.MustRegister(redisCommandsTotal, redisErrorsTotal, redisCommandDuration)
}

// metricsHook records per-command counters and latency through the go-redis
// hook chain, so pipelines and plain commands are both covered.
type metricsHook struct{}

func newMetricsHook() redis.Hook {
	return metricsHook{}
}

func (metricsHook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return next(ctx, network, addr)
	}
}

func (metricsHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmd)
		observe(cmd.Name(), start, err)

		return err
	}
}

func (metricsHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmds)
		for _, cmd := range cmds {
			observe(cmd.Name(), start, cmd.Err())
		}

		return err
	}
}

func observe(command string, start time.Time, err error) {
	if command == "" {
		command = "unknown"
	}

	redisCommandsTotal.WithLabelValues(command).Inc()
	redisCommandDuration.WithLabelValues(command).Observe(time.Since(start).Seconds())

	if err != nil && err != redis.Nil {
		redisErrorsTotal.WithLabelValues(command).Inc()
	}
}
