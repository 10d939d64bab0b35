package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/dadlink/dadlink/internal/errors"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DB_NAME", "dadlink")
	t.Setenv("DB_USER", "dadlink")

	cfg := Load()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
	assert.Equal(t, "localhost", cfg.DB.Host)
	assert.Equal(t, "disable", cfg.DB.SSLMode)
	assert.Equal(t, 10, cfg.RateLimitEvery)
	assert.Equal(t, 100, cfg.RateLimitMillis)
	assert.Equal(t, "0 3 * * *", cfg.NightlyRecalcSchedule)
	assert.Equal(t, "0 18 * * *", cfg.DailyReminderSchedule)
	assert.Equal(t, "0 9 * * 1", cfg.WeeklyDigestSchedule)
	assert.Equal(t, 5, cfg.WorkerConcurrency)
	assert.Equal(t, 30, cfg.GeocodeCacheTTLDays)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DB_NAME", "dadlink")
	t.Setenv("DB_USER", "dadlink")
	t.Setenv("RECALC_PAUSE_EVERY", "25")
	t.Setenv("RECALC_PAUSE_MS", "not-a-number")
	t.Setenv("NIGHTLY_RECALC_SCHEDULE", "30 2 * * *")
	t.Setenv("ENVIRONMENT", "production")

	cfg := Load()

	assert.Equal(t, 25, cfg.RateLimitEvery)
	assert.Equal(t, 100, cfg.RateLimitMillis, "bad int falls back to default")
	assert.Equal(t, "30 2 * * *", cfg.NightlyRecalcSchedule)
	assert.False(t, cfg.IsDevelopment())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		dbName string
		dbUser string
		wantOK bool
	}{
		{"all present", "dadlink", "dadlink", true},
		{"missing db name", "", "dadlink", false},
		{"missing db user", "dadlink", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{DB: Database{DBName: tt.dbName, User: tt.dbUser}}
			err := cfg.Validate()
			if tt.wantOK {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeConfiguration))
			}
		})
	}
}
