package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/robfig/cron/v3"

	hhttp "catchup-feed/internal/handler/http/respond"
	"catchup-feed/internal/domain/entity"
	"catchup-feed/internal/infra/db"
	"catchup-feed/internal/infra/fetcher"
	workerPkg "catchup-feed/internal/infra/worker"
	"catchup-feed/internal/pkg/config"
	"catchup-feed/internal/repository"
	"catchup-feed/internal/usecase/hub"
)

func waitForMigrations(logger *slog.Logger, conn *sql.DB) {
	const probe = "SELECT 1 FROM subscriptions LIMIT 1"
	for i := 0; i < 10; i++ {
		if _, err := conn.Exec(probe); err == nil {
			return
		}
		logger.Info("waiting for migrations, retrying in 3s", slog.Int("attempt", i+1))
		time.Sleep(3 * time.Second)
	}
	logger.Error("migrations did not complete in time")
	os.Exit(1)
}

func main() {
	logger := initLogger()
	database, dialect := initDatabase(logger)
	defer func() {
		if err := database.Close(); err != nil {
			logger.Error("failed to close database", slog.Any("error", err))
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	workerMetrics := workerPkg.NewWorkerMetrics()
	workerMetrics.MustRegister()
	workerConfig, err := workerPkg.LoadConfigFromEnv(logger, config.NewConfigMetrics("worker"))
	if err != nil {
		logger.Error("failed to load worker configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("worker configuration loaded",
		slog.String("cron_schedule", workerConfig.CronSchedule),
		slog.String("timezone", workerConfig.Timezone),
		slog.Int("refetch_max_concurrent", workerConfig.RefetchMaxConcurrent),
		slog.Duration("sweep_timeout", workerConfig.SweepTimeout),
		slog.Int("health_port", workerConfig.HealthPort))

	startMetricsServer(ctx, logger)

	healthAddr := fmt.Sprintf(":%d", workerConfig.HealthPort)
	healthServer := workerPkg.NewHealthServer(healthAddr, logger)
	go func() {
		if err := healthServer.Start(ctx); err != nil && err != http.ErrServerClosed {
			logger.Error("health server failed", slog.Any("error", err))
		}
	}()
	logger.Info("health check server started", slog.String("addr", healthAddr))

	fetcherCfg, err := fetcher.LoadConfigFromEnv()
	if err != nil {
		logger.Error("failed to load fetcher configuration", slog.Any("error", err))
		os.Exit(1)
	}
	cache := fetcher.NewCache()
	f := fetcher.New(cache, fetcherCfg)

	subRepo := repository.NewSubscriptionRepository(database, dialect)
	callbackBase := os.Getenv("CALLBACK_BASE_URL")
	subscriber := hub.NewSubscriber(subRepo, f, callbackBase)

	startCronWorker(logger, cache, subRepo, subscriber, workerConfig, workerMetrics, healthServer)
}

// initLogger initializes and returns a structured logger based on environment configuration.
func initLogger() *slog.Logger {
	logLevel := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)
	return logger
}

// initDatabase opens the database connection, runs migrations and waits
// for them to become visible before the cron loop starts.
func initDatabase(logger *slog.Logger) (*sql.DB, db.Dialect) {
	database, dialect := db.Open()
	if err := db.MigrateUp(database, dialect); err != nil {
		logger.Error("failed to migrate database", slog.Any("error", err))
		os.Exit(1)
	}
	waitForMigrations(logger, database)
	return database, dialect
}

// startCronWorker starts the cron scheduler and runs the cache-sweep and
// subscription-renewal job periodically.
func startCronWorker(logger *slog.Logger, cache *fetcher.Cache, subRepo *repository.SubscriptionRepository, subscriber *hub.Subscriber, cfg *workerPkg.WorkerConfig, metrics *workerPkg.WorkerMetrics, healthServer *workerPkg.HealthServer) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Error("invalid timezone, using UTC", slog.String("timezone", cfg.Timezone), slog.Any("error", err))
		loc = time.UTC
	}
	c := cron.New(cron.WithLocation(loc))

	_, err = c.AddFunc(cfg.CronSchedule, func() {
		runSweepJob(logger, cache, subRepo, subscriber, cfg, metrics)
	})
	if err != nil {
		logger.Error("failed to add cron job", slog.Any("error", err))
		os.Exit(1)
	}
	c.Start()

	healthServer.SetReady(true)
	logger.Info("worker marked as ready")

	logger.Info("worker started", slog.String("schedule", cfg.CronSchedule), slog.String("timezone", cfg.Timezone))
	select {}
}

// runSweepJob executes one cache-sweep and subscription-renewal pass
// with a timeout and error handling.
func runSweepJob(logger *slog.Logger, cache *fetcher.Cache, subRepo *repository.SubscriptionRepository, subscriber *hub.Subscriber, cfg *workerPkg.WorkerConfig, metrics *workerPkg.WorkerMetrics) {
	startTime := time.Now()
	metrics.RecordJobRun("started")
	logger.Info("sweep started")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.SweepTimeout)
	defer cancel()

	swept := cache.Sweep(time.Now())
	metrics.RecordSwept(swept)

	renewed, failed := renewExpiringSubscriptions(ctx, logger, subRepo, subscriber, cfg.RefetchMaxConcurrent, metrics)

	metrics.RecordJobRun("success")
	metrics.RecordJobDuration(time.Since(startTime).Seconds())
	metrics.RecordLastSuccess()

	logger.Info("sweep completed",
		slog.Int("cache_entries_swept", swept),
		slog.Int("subscriptions_renewed", renewed),
		slog.Int("subscription_renewals_failed", failed),
		slog.Duration("duration", time.Since(startTime)),
	)
}

// renewExpiringSubscriptions lists every known subscription and re-issues
// the subscribe request for the ones whose lease has elapsed, bounded to
// maxConcurrent simultaneous renewals.
func renewExpiringSubscriptions(ctx context.Context, logger *slog.Logger, subRepo *repository.SubscriptionRepository, subscriber *hub.Subscriber, maxConcurrent int, metrics *workerPkg.WorkerMetrics) (renewed, failed int) {
	subs, err := subRepo.List(ctx)
	if err != nil {
		logger.Error("failed to list subscriptions", slog.Any("error", hhttp.SanitizeError(err)))
		return 0, 0
	}

	now := time.Now().UTC()
	sem := make(chan struct{}, maxConcurrent)
	results := make(chan bool, len(subs))
	pending := 0

	for i := range subs {
		sub := subs[i]
		if !sub.Verified || !sub.Expired(now) {
			continue
		}
		pending++
		go func(s entity.Subscription) {
			sem <- struct{}{}
			defer func() { <-sem }()
			if err := subscriber.Renew(ctx, &s); err != nil {
				logger.Warn("subscription renewal failed",
					slog.String("url", s.URL), slog.Any("error", hhttp.SanitizeError(err)))
				metrics.RecordRenewal("failed")
				results <- false
				return
			}
			metrics.RecordRenewal("renewed")
			results <- true
		}(sub)
	}

	for i := 0; i < pending; i++ {
		if <-results {
			renewed++
		} else {
			failed++
		}
	}
	return renewed, failed
}
