package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/dadlink/dadlink/internal/cache"
	"github.com/dadlink/dadlink/internal/config"
	"github.com/dadlink/dadlink/internal/database"
	"github.com/dadlink/dadlink/internal/geocode"
	"github.com/dadlink/dadlink/internal/httpapi"
	"github.com/dadlink/dadlink/internal/jobs"
	"github.com/dadlink/dadlink/internal/notification"
	"github.com/dadlink/dadlink/internal/services"
	"github.com/dadlink/dadlink/internal/telemetry"
)

func main() {
	if err := godotenv.Load(); err != nil {
		// Absent .env is normal outside local development.
		telemetry.GetGlobalLogger().WithError(err).Debug("No .env file loaded")
	}

	cfg := config.Load()

	logConfig := telemetry.DefaultLogConfig()
	logConfig.Level = telemetry.LogLevel(cfg.LogLevel)
	if err := telemetry.InitGlobalLogger(logConfig); err != nil {
		telemetry.GetGlobalLogger().WithError(err).Fatal("Failed to initialize logger")
	}
	logger := telemetry.GetGlobalLogger()

	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("Invalid configuration")
	}

	ctx := context.Background()

	provider, err := telemetry.NewProvider(telemetry.DefaultConfig())
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("Telemetry shutdown failed")
		}
	}()

	db, err := database.NewConnection(cfg.DB)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	redisCache, err := cache.NewService(cfg.RedisURL)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to redis")
	}
	defer redisCache.Close()

	availStore := database.NewAvailabilityStore(db)
	profileStore := database.NewProfileStore(db)
	matchCache := database.NewMatchCache(db)

	resolver := geocode.NewResolver(
		geocode.WithCache(redisCache, time.Duration(cfg.GeocodeCacheTTLDays)*24*time.Hour),
	)

	recalcService := services.NewRecalcService(availStore, profileStore, matchCache,
		services.WithRateLimit(cfg.RateLimitEvery, time.Duration(cfg.RateLimitMillis)*time.Millisecond),
		services.WithLocationResolver(resolver),
	)
	overviewService := services.NewOverviewService(availStore, profileStore, matchCache)

	worker, err := jobs.NewWorker(cfg.RedisURL, cfg.WorkerConcurrency)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create worker")
	}
	worker.RegisterHandler(jobs.TypeRecalculate, jobs.NewRecalculateHandler(recalcService))

	if cfg.TelegramBotToken != "" {
		botAPI, err := notification.NewBot(cfg.TelegramBotToken)
		if err != nil {
			logger.WithError(err).Fatal("Failed to create telegram bot")
		}
		dispatcher := notification.NewTelegramDispatcher(botAPI, profileStore)
		worker.RegisterHandler(jobs.TypeDailyReminder,
			jobs.NewDailyReminderHandler(availStore, overviewService, dispatcher))
		worker.RegisterHandler(jobs.TypeWeeklyDigest,
			jobs.NewWeeklyDigestHandler(availStore, overviewService, dispatcher))
	} else {
		logger.Warn("TELEGRAM_BOT_TOKEN not set, notification jobs disabled")
	}

	scheduler, err := jobs.NewScheduler(cfg.RedisURL,
		cfg.NightlyRecalcSchedule, cfg.DailyReminderSchedule, cfg.WeeklyDigestSchedule)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create scheduler")
	}

	handler := httpapi.NewHandler(recalcService, overviewService, map[string]httpapi.HealthChecker{
		"database": httpapi.HealthCheckFunc(func(context.Context) bool { return db.Health() == nil }),
		"redis":    httpapi.HealthCheckFunc(redisCache.HealthCheck),
		"worker":   httpapi.HealthCheckFunc(func(context.Context) bool { return worker.IsHealthy() }),
	})
	router := httpapi.NewRouter(handler, "dadlink-engine")

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: router,
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		logger.WithField("addr", cfg.HTTPAddr).Info("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(func() error {
		logger.Info("Starting task worker")
		return worker.Run()
	})
	group.Go(func() error {
		logger.Info("Starting job scheduler")
		return scheduler.Run()
	})
	group.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		select {
		case sig := <-quit:
			logger.WithField("signal", sig.String()).Info("Shutting down")
		case <-groupCtx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		scheduler.Shutdown()
		worker.Shutdown()
		return srv.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		logger.WithError(err).Fatal("Service exited with error")
	}
	logger.Info("Service stopped")
}
