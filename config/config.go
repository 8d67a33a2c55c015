// Package config builds the process-wide configuration once at startup.
// Missing credentials are a startup failure, never a per-request error.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

const (
	BackendSupabase = "supabase"
	BackendPostgres = "postgres"
)

type Config struct {
	Port string `env:"PORT,default=8080"`

	CronSecret   string `env:"CRON_SECRET,required"`
	GeminiAPIKey string `env:"GOOGLE_AI_API_KEY,required"`

	GeminiModel   string        `env:"GEMINI_MODEL,default=gemini-2.5-flash"`
	GeminiBaseURL string        `env:"GEMINI_BASE_URL,default=https://generativelanguage.googleapis.com/v1beta"`
	GeminiTimeout time.Duration `env:"GEMINI_TIMEOUT,default=60s"`

	StoreBackend string `env:"STORE_BACKEND,default=supabase"`
	DatabaseURL  string `env:"DB_CONNECTION_STRING"`

	SupabaseURL        string `env:"SUPABASE_URL"`
	SupabaseServiceKey string `env:"SUPABASE_SERVICE_KEY"`
	SupabaseAnonKey    string `env:"SUPABASE_ANON_KEY"`
	SupabaseJWTSecret  string `env:"SUPABASE_JWT_SECRET"`

	// Empty disables the in-process schedule; the HTTP trigger still works.
	DailyReadingSchedule string        `env:"DAILY_READING_SCHEDULE"`
	CronTimezone         string        `env:"CRON_TIMEZONE,default=UTC"`
	RedisURL             string        `env:"REDIS_URL"`
	RunLockTTL           time.Duration `env:"RUN_LOCK_TTL,default=30m"`

	SendGridAPIKey    string `env:"SENDGRID_API_KEY"`
	SendGridFromEmail string `env:"SENDGRID_FROM_EMAIL,default=alerts@horoscope.local"`
	SendGridFromName  string `env:"SENDGRID_FROM_NAME,default=Horoscope Ops"`
	OpsAlertEmail     string `env:"OPS_ALERT_EMAIL"`

	PromptsFile string `env:"PROMPTS_FILE"`

	HoroscopeRatePerMinute float64 `env:"HOROSCOPE_RATE_PER_MINUTE,default=6"`
	HoroscopeRateBurst     int     `env:"HOROSCOPE_RATE_BURST,default=3"`

	LogLevel  string `env:"LOG_LEVEL,default=info"`
	LogFormat string `env:"LOG_FORMAT,default=json"`
}

// LoadDotEnv copies an optional .env file into the process environment.
// Variables already set win over the file.
func LoadDotEnv() {
	if err := godotenv.Load(); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			slog.Debug("No .env file found, using process environment")
		} else {
			slog.Warn("Could not load .env file, falling back to process environment", "error", err)
		}
	}
}

// Load reads an optional .env file, decodes the environment and validates the result.
func Load() (*Config, error) {
	LoadDotEnv()

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field requirements that struct tags cannot express.
func (c *Config) Validate() error {
	var problems []string

	if c.CronSecret == "" {
		problems = append(problems, "CRON_SECRET is required")
	}
	if c.GeminiAPIKey == "" {
		problems = append(problems, "GOOGLE_AI_API_KEY is required")
	}

	switch c.StoreBackend {
	case BackendSupabase:
		if c.SupabaseURL == "" || c.SupabaseServiceKey == "" {
			problems = append(problems, "SUPABASE_URL and SUPABASE_SERVICE_KEY are required for the supabase backend")
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			problems = append(problems, "DB_CONNECTION_STRING is required for the postgres backend")
		}
		if c.SupabaseURL == "" && c.SupabaseJWTSecret == "" {
			problems = append(problems, "SUPABASE_URL or SUPABASE_JWT_SECRET is required to verify access tokens")
		}
	default:
		problems = append(problems, fmt.Sprintf("STORE_BACKEND must be %q or %q, got %q", BackendSupabase, BackendPostgres, c.StoreBackend))
	}

	if c.OpsAlertEmail != "" && c.SendGridAPIKey == "" {
		problems = append(problems, "OPS_ALERT_EMAIL requires SENDGRID_API_KEY")
	}

	if c.DailyReadingSchedule != "" {
		if _, err := cron.ParseStandard(c.DailyReadingSchedule); err != nil {
			problems = append(problems, fmt.Sprintf("DAILY_READING_SCHEDULE is invalid: %v", err))
		}
	}
	if _, err := c.Location(); err != nil {
		problems = append(problems, fmt.Sprintf("CRON_TIMEZONE is invalid: %v", err))
	}
	if c.HoroscopeRatePerMinute <= 0 || c.HoroscopeRateBurst <= 0 {
		problems = append(problems, "HOROSCOPE_RATE_PER_MINUTE and HOROSCOPE_RATE_BURST must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Location resolves CronTimezone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.CronTimezone)
}

// SlogLevel maps LOG_LEVEL to a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// AlertsEnabled reports whether operator alerts go out by email.
func (c *Config) AlertsEnabled() bool {
	return c.SendGridAPIKey != "" && c.OpsAlertEmail != ""
}
