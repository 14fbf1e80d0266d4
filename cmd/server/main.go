package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/hibiken/asynq"
	_ "github.com/lib/pq"

	"github.com/smiletrip/smilecoin/internal/cache"
	"github.com/smiletrip/smilecoin/internal/database"
	"github.com/smiletrip/smilecoin/internal/eligibility"
	apperrors "github.com/smiletrip/smilecoin/internal/errors"
	"github.com/smiletrip/smilecoin/internal/health"
	"github.com/smiletrip/smilecoin/internal/idempotency"
	"github.com/smiletrip/smilecoin/internal/jobs"
	jobhandlers "github.com/smiletrip/smilecoin/internal/jobs/handlers"
	"github.com/smiletrip/smilecoin/internal/ledger"
	"github.com/smiletrip/smilecoin/internal/lifecycle"
	"github.com/smiletrip/smilecoin/internal/middleware"
	"github.com/smiletrip/smilecoin/internal/quota"
	"github.com/smiletrip/smilecoin/internal/ranking"
	"github.com/smiletrip/smilecoin/internal/ratelimit"
	"github.com/smiletrip/smilecoin/internal/registration"
	"github.com/smiletrip/smilecoin/internal/repository"
	"github.com/smiletrip/smilecoin/internal/server"
	"github.com/smiletrip/smilecoin/internal/usercache"
	"github.com/smiletrip/smilecoin/internal/voucher"
	"github.com/smiletrip/smilecoin/pkg/config"
	"github.com/smiletrip/smilecoin/pkg/graceful"
	"github.com/smiletrip/smilecoin/pkg/logger"
	pkgredis "github.com/smiletrip/smilecoin/pkg/redis"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "smilecoin: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, v, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if cfg.Sentry.Enabled {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.Sentry.DSN,
			Environment: cfg.AppEnv,
		}); err != nil {
			return fmt.Errorf("init sentry: %w", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	log := logger.New(*cfg)
	slog.SetDefault(log)

	log.Info("starting smile coin core",
		slog.String("env", cfg.AppEnv),
		slog.String("http_port", cfg.HTTP.Port),
	)

	config.Watch(v, log, func(next *config.Config) {
		log.Info("runtime config updated", slog.Int("daily_cap", next.Coins.DailyCap))
	})

	shutdown := lifecycle.NewShutdown(log)

	db, err := openDatabase(ctx, cfg.DB)
	if err != nil {
		return err
	}
	shutdown.Register("postgres", func(context.Context) error { return db.Close() })

	migrator := database.NewMigrator(db, log)
	if err := migrator.ApplyDir(ctx, "migrations"); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	redisClient, err := pkgredis.New(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	shutdown.Register("redis", func(context.Context) error { return redisClient.Close() })

	cacheStore := cache.NewStore(redisClient.Client, log)

	users := repository.NewUserRepository(db, log)
	restaurants := repository.NewRestaurantRepository(db, log)
	transfers := repository.NewTransferRepository(db, log)
	rewards := repository.NewRewardRepository(db, log)

	guard := quota.NewGuard(users, restaurants, transfers, quota.Caps{
		Daily:         cfg.Coins.DailyCap,
		PerRestaurant: cfg.Coins.PerRestaurantCap,
	}, log)

	recorder := ledger.NewRecorder(db, guard, cacheStore, log)
	eligibilityEngine := eligibility.NewEngine(users, rewards, cacheStore, cfg.Cache.EligibilityTTL, log)
	voucherIssuer := voucher.NewIssuer(
		eligibilityEngine,
		voucher.NewStore(redisClient.Client, log),
		cfg.Voucher.ValidityWindow,
		log,
	)
	rankingEngine := ranking.NewEngine(
		restaurants,
		transfers,
		cacheStore,
		cfg.Cache.RankingTTL,
		cfg.Cache.DashboardTTL,
		log,
	)
	registrationService := registration.NewService(
		users,
		restaurants,
		usercache.NewCache(redisClient.Client),
		log,
	)

	checker := health.NewChecker(log)
	checker.AddCheck("postgres", health.NewDBChecker(db))
	checker.AddCheck("redis", health.NewRedisChecker(redisClient.Client))

	limiter := ratelimit.NewRedisLimiter(redisClient.Client, log)

	idempotencyManager := idempotency.NewManager(
		idempotency.NewRedisStore(redisClient.Client, log), log)

	api := server.New(
		guard,
		recorder,
		eligibilityEngine,
		voucherIssuer,
		rankingEngine,
		registrationService,
		checker,
		limiter,
		cfg.Limits,
		middleware.Idempotency(idempotencyManager, log),
		apperrors.NewHandler(log, cfg.Sentry.Enabled),
		log,
	)

	if cfg.Jobs.Enabled {
		startJobs(ctx, cfg, rankingEngine, shutdown, log)
	}

	httpServer := &http.Server{
		Addr:         ":" + cfg.HTTP.Port,
		Handler:      api.Router(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	srv := graceful.NewServer(log, httpServer, cfg.HTTP.ShutdownTimeout)
	serveErr := srv.ListenAndServe(ctx)

	teardownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := shutdown.Execute(teardownCtx); err != nil {
		log.Error("teardown finished with errors", slog.Any("error", err))
	}

	if serveErr != nil && serveErr != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", serveErr)
	}

	log.Info("smile coin core stopped")

	return nil
}

func openDatabase(ctx context.Context, cfg config.DBConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return db, nil
}

// startJobs launches the asynq worker and scheduler for cache warming and
// enqueues one immediate warm so the cold start does not wait for the cron.
func startJobs(ctx context.Context, cfg *config.Config, rankings *ranking.Engine, shutdown *lifecycle.Shutdown, log *slog.Logger) {
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}

	worker := jobs.NewWorker(redisOpt, jobs.DefaultQueues, cfg.Jobs.WorkerConcurrent, log)
	worker.RegisterHandler(jobs.TaskTypeRankingWarm, jobhandlers.NewRankingWarmHandler(rankings, log))

	go func() {
		if err := worker.Run(); err != nil {
			log.Error("jobs worker stopped", slog.Any("error", err))
		}
	}()

	sched := jobs.NewScheduler(redisOpt, log)
	if err := sched.RegisterTasks(cfg.Jobs.RankingWarmCron, 20); err != nil {
		log.Error("failed to register scheduled tasks", slog.Any("error", err))
	} else {
		sched.Run()
	}

	queue := jobs.NewManager(redisOpt, log)
	if task, err := jobs.NewRankingWarmTask(20); err == nil {
		if _, err := queue.Enqueue(ctx, task, asynq.Queue(jobs.QueueLow)); err != nil {
			log.Warn("initial ranking warm enqueue failed", slog.Any("error", err))
		}
	}

	shutdown.Register("jobs", func(context.Context) error {
		sched.Shutdown()
		worker.Shutdown()
		return queue.Close()
	})
}
