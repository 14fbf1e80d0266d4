// Package config provides configuration loading and validation utilities.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	validator "github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load reads configuration from YAML files and environment variables,
// validates it, and returns the resulting Config.
func Load() (*Config, *viper.Viper, error) {
	if err := godotenv.Load(".env.local", ".env"); err != nil {
		// missing env files are fine; everything has defaults or YAML values
		_ = err
	}

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}

	v := viper.New()
	v.SetConfigFile(fmt.Sprintf("./configs/%s.yaml", env))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.AppEnv = env

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(cfg); err != nil {
		return nil, nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, v, nil
}

// Watch re-reads and re-validates the config whenever the underlying file
// changes, passing the fresh copy to onChange. Invalid updates are logged
// and dropped; the running config stays as it was.
func Watch(v *viper.Viper, log *slog.Logger, onChange func(*Config)) {
	if v == nil || onChange == nil {
		return
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	v.OnConfigChange(func(e fsnotify.Event) {
		var next Config
		if err := v.Unmarshal(&next); err != nil {
			if log != nil {
				log.Error("config reload: unmarshal failed", slog.String("file", e.Name), slog.Any("error", err))
			}
			return
		}

		if err := validate.Struct(next); err != nil {
			if log != nil {
				log.Error("config reload: validation failed", slog.String("file", e.Name), slog.Any("error", err))
			}
			return
		}

		if log != nil {
			log.Info("config reloaded", slog.String("file", e.Name))
		}

		onChange(&next)
	})

	v.WatchConfig()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.port", "8080")
	v.SetDefault("http.read_timeout", 10*time.Second)
	v.SetDefault("http.write_timeout", 15*time.Second)
	v.SetDefault("http.shutdown_timeout", 20*time.Second)

	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_lifetime", 30*time.Minute)

	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)
	v.SetDefault("redis.pool_timeout", 4*time.Second)
	v.SetDefault("redis.idle_timeout", 5*time.Minute)
	v.SetDefault("redis.max_retries", 3)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "text")

	v.SetDefault("coins.daily_cap", 10)
	v.SetDefault("coins.per_restaurant_cap", 3)

	v.SetDefault("cache.ranking_ttl", 5*time.Minute)
	v.SetDefault("cache.eligibility_ttl", 2*time.Minute)
	v.SetDefault("cache.dashboard_ttl", 5*time.Minute)

	v.SetDefault("voucher.validity_window", 30*24*time.Hour)

	v.SetDefault("jobs.enabled", false)
	v.SetDefault("jobs.ranking_warm_cron", "*/5 * * * *")
	v.SetDefault("jobs.worker_concurrent", 5)

	v.SetDefault("limits.enabled", true)
	v.SetDefault("limits.per_ip_requests", 60)
	v.SetDefault("limits.window", time.Minute)
}
