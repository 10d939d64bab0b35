package config

import (
	"os"
	"strconv"

	apperrors "github.com/dadlink/dadlink/internal/errors"
)

// Config holds runtime settings loaded from env vars.
type Config struct {
	HTTPAddr    string
	RedisURL    string
	Environment string
	LogLevel    string

	DB Database

	// Matching engine knobs
	RateLimitEvery  int // pause after this many processed users
	RateLimitMillis int // pause length in milliseconds

	// Cron expressions for the three scheduled jobs
	NightlyRecalcSchedule string
	DailyReminderSchedule string
	WeeklyDigestSchedule  string

	WorkerConcurrency int

	TelegramBotToken string
	GeocodeCacheTTLDays int
}

// Database holds the Postgres connection settings.
type Database struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// Load loads configuration from environment variables.
// Required variables: DB_NAME, DB_USER.
func Load() Config {
	return Config{
		HTTPAddr:    envOr("HTTP_ADDR", ":8080"),
		RedisURL:    envOr("REDIS_URL", "redis://localhost:6379/0"),
		Environment: envOr("ENVIRONMENT", "development"),
		LogLevel:    envOr("LOG_LEVEL", "info"),
		DB: Database{
			Host:     envOr("DB_HOST", "localhost"),
			Port:     envOr("DB_PORT", "5432"),
			User:     envOr("DB_USER", ""),
			Password: envOr("DB_PASSWORD", ""),
			DBName:   envOr("DB_NAME", ""),
			SSLMode:  envOr("DB_SSLMODE", "disable"),
		},
		RateLimitEvery:        envInt("RECALC_PAUSE_EVERY", 10),
		RateLimitMillis:       envInt("RECALC_PAUSE_MS", 100),
		NightlyRecalcSchedule: envOr("NIGHTLY_RECALC_SCHEDULE", "0 3 * * *"),
		DailyReminderSchedule: envOr("DAILY_REMINDER_SCHEDULE", "0 18 * * *"),
		WeeklyDigestSchedule:  envOr("WEEKLY_DIGEST_SCHEDULE", "0 9 * * 1"),
		WorkerConcurrency:     envInt("WORKER_CONCURRENCY", 5),
		TelegramBotToken:      envOr("TELEGRAM_BOT_TOKEN", ""),
		GeocodeCacheTTLDays:   envInt("GEOCODE_CACHE_TTL_DAYS", 30),
	}
}

// Validate checks that all required configuration is present.
func (c Config) Validate() error {
	if c.DB.DBName == "" {
		return apperrors.NewConfigurationError("DB_NAME is required")
	}
	if c.DB.User == "" {
		return apperrors.NewConfigurationError("DB_USER is required")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}
