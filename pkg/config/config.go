package config

import (
	"fmt"
	"time"
)

// Config holds runtime configuration for the Smile Coin core service.
type Config struct {
	AppEnv string `mapstructure:"app_env"`

	HTTP    HTTPConfig    `mapstructure:"http" validate:"required"`
	DB      DBConfig      `mapstructure:"db" validate:"required"`
	Redis   RedisConfig   `mapstructure:"redis" validate:"required"`
	Logger  LoggerConfig  `mapstructure:"logger"`
	Sentry  SentryConfig  `mapstructure:"sentry"`
	Coins   CoinsConfig   `mapstructure:"coins"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Voucher VoucherConfig `mapstructure:"voucher"`
	Jobs    JobsConfig    `mapstructure:"jobs"`
	Limits  LimitsConfig  `mapstructure:"limits"`
}

type HTTPConfig struct {
	Port            string        `mapstructure:"port" validate:"required"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DBConfig struct {
	Host     string `mapstructure:"host" validate:"required"`
	Port     string `mapstructure:"port" validate:"required"`
	User     string `mapstructure:"user" validate:"required"`
	Password string `mapstructure:"password" validate:"required"`
	Name     string `mapstructure:"name" validate:"required"`
	SSLMode  string `mapstructure:"sslmode"`

	MaxOpenConns int           `mapstructure:"max_open_conns"`
	MaxIdleConns int           `mapstructure:"max_idle_conns"`
	ConnLifetime time.Duration `mapstructure:"conn_lifetime"`
}

type RedisConfig struct {
	Addr         string        `mapstructure:"addr" validate:"required"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	PoolTimeout  time.Duration `mapstructure:"pool_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	MaxRetries   int           `mapstructure:"max_retries"`
}

type LoggerConfig struct {
	Level  string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"omitempty,oneof=text json"`

	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

type SentryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DSN     string `mapstructure:"dsn" validate:"required_if=Enabled true"`
}

// CoinsConfig carries the quota constants. Defaults match the product rules:
// 10 coins per day, at most 3 to a single restaurant, 1..3 per transfer.
type CoinsConfig struct {
	DailyCap         int `mapstructure:"daily_cap" validate:"min=1"`
	PerRestaurantCap int `mapstructure:"per_restaurant_cap" validate:"min=1"`
}

type CacheConfig struct {
	RankingTTL     time.Duration `mapstructure:"ranking_ttl"`
	EligibilityTTL time.Duration `mapstructure:"eligibility_ttl"`
	DashboardTTL   time.Duration `mapstructure:"dashboard_ttl"`
}

type VoucherConfig struct {
	ValidityWindow time.Duration `mapstructure:"validity_window"`
}

type JobsConfig struct {
	Enabled          bool   `mapstructure:"enabled"`
	RankingWarmCron  string `mapstructure:"ranking_warm_cron"`
	WorkerConcurrent int    `mapstructure:"worker_concurrent"`
}

type LimitsConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	PerIPRequests int           `mapstructure:"per_ip_requests"`
	Window        time.Duration `mapstructure:"window"`
}

// DSN returns the PostgreSQL connection string.
func (c DBConfig) DSN() string {
	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}

	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host,
		c.Port,
		c.User,
		c.Password,
		c.Name,
		sslmode,
	)
}
