package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("CRON_SECRET", "cron-secret")
	t.Setenv("GOOGLE_AI_API_KEY", "ai-key")
	t.Setenv("SUPABASE_URL", "https://project.supabase.co")
	t.Setenv("SUPABASE_SERVICE_KEY", "service-key")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, BackendSupabase, cfg.StoreBackend)
	assert.Equal(t, "gemini-2.5-flash", cfg.GeminiModel)
	assert.Equal(t, "https://generativelanguage.googleapis.com/v1beta", cfg.GeminiBaseURL)
	assert.Equal(t, 60*time.Second, cfg.GeminiTimeout)
	assert.Equal(t, 30*time.Minute, cfg.RunLockTTL)
	assert.Equal(t, float64(6), cfg.HoroscopeRatePerMinute)
	assert.Equal(t, 3, cfg.HoroscopeRateBurst)
	assert.False(t, cfg.AlertsEnabled())
}

func TestLoad_MissingCronSecretIsFatal(t *testing.T) {
	setRequired(t)
	t.Setenv("CRON_SECRET", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CRON_SECRET")
}

func TestLoad_MissingGenerationKeyIsFatal(t *testing.T) {
	setRequired(t)
	t.Setenv("GOOGLE_AI_API_KEY", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GOOGLE_AI_API_KEY")
}

func validConfig() Config {
	return Config{
		Port:                   "8080",
		CronSecret:             "s",
		GeminiAPIKey:           "k",
		StoreBackend:           BackendSupabase,
		SupabaseURL:            "https://p.supabase.co",
		SupabaseServiceKey:     "svc",
		CronTimezone:           "UTC",
		HoroscopeRatePerMinute: 6,
		HoroscopeRateBurst:     3,
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid supabase", mutate: func(c *Config) {}},
		{name: "valid postgres", mutate: func(c *Config) {
			c.StoreBackend = BackendPostgres
			c.DatabaseURL = "postgres://localhost/horoscope"
		}},
		{name: "postgres with jwt secret only", mutate: func(c *Config) {
			c.StoreBackend = BackendPostgres
			c.DatabaseURL = "postgres://localhost/horoscope"
			c.SupabaseURL = ""
			c.SupabaseJWTSecret = "jwt-secret"
		}},
		{name: "postgres without token verification", mutate: func(c *Config) {
			c.StoreBackend = BackendPostgres
			c.DatabaseURL = "postgres://localhost/horoscope"
			c.SupabaseURL = ""
		}, wantErr: "SUPABASE_URL or SUPABASE_JWT_SECRET"},
		{name: "postgres without dsn", mutate: func(c *Config) {
			c.StoreBackend = BackendPostgres
		}, wantErr: "DB_CONNECTION_STRING"},
		{name: "supabase without key", mutate: func(c *Config) {
			c.SupabaseServiceKey = ""
		}, wantErr: "SUPABASE_SERVICE_KEY"},
		{name: "unknown backend", mutate: func(c *Config) {
			c.StoreBackend = "mysql"
		}, wantErr: "STORE_BACKEND"},
		{name: "alert email without sendgrid", mutate: func(c *Config) {
			c.OpsAlertEmail = "ops@example.com"
		}, wantErr: "SENDGRID_API_KEY"},
		{name: "bad schedule", mutate: func(c *Config) {
			c.DailyReadingSchedule = "every morning"
		}, wantErr: "DAILY_READING_SCHEDULE"},
		{name: "good schedule", mutate: func(c *Config) {
			c.DailyReadingSchedule = "0 6 * * *"
			c.CronTimezone = "Local"
		}},
		{name: "bad timezone", mutate: func(c *Config) {
			c.CronTimezone = "Mars/Olympus"
		}, wantErr: "CRON_TIMEZONE"},
		{name: "zero rate", mutate: func(c *Config) {
			c.HoroscopeRatePerMinute = 0
		}, wantErr: "HOROSCOPE_RATE_PER_MINUTE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSlogLevel(t *testing.T) {
	cfg := validConfig()
	for in, want := range map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	} {
		cfg.LogLevel = in
		assert.Equal(t, want, cfg.SlogLevel(), "LOG_LEVEL=%q", in)
	}
}
