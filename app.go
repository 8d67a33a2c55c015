package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/coreybb/horoscope/alerting"
	"github.com/coreybb/horoscope/api"
	"github.com/coreybb/horoscope/auth"
	"github.com/coreybb/horoscope/config"
	"github.com/coreybb/horoscope/content"
	"github.com/coreybb/horoscope/datastore"
	"github.com/coreybb/horoscope/ebook"
	"github.com/coreybb/horoscope/gemini"
	"github.com/coreybb/horoscope/prompts"
	rh "github.com/coreybb/horoscope/route-handlers"
	"github.com/coreybb/horoscope/runlock"
	"github.com/coreybb/horoscope/scheduler"
	"github.com/coreybb/horoscope/supabase"
)

const (
	dbPingTimeout     = 5 * time.Second
	shutdownTimeout   = 15 * time.Second
	dbMaxOpenConns    = 10
	dbMaxIdleConns    = 10
	dbConnMaxLifetime = 5 * time.Minute
	limiterCleanup    = 10 * time.Minute
)

// readingStore is everything the service does with daily_readings.
type readingStore interface {
	scheduler.ReadingWriter
	rh.ReadingStore
}

// app holds the long-lived clients shared by every command.
type app struct {
	cfg           *config.Config
	subscriptions scheduler.SubscriptionSource
	readings      readingStore
	generator     *gemini.Client
	catalog       *prompts.Catalog
	notifier      alerting.Notifier
	lock          runlock.Lock
	closers       []func() error
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	setupLogger(cfg)

	a := &app{cfg: cfg}

	if err := a.setupStore(ctx); err != nil {
		a.Close()
		return nil, err
	}

	a.generator, err = gemini.New(gemini.Config{
		APIKey:  cfg.GeminiAPIKey,
		Model:   cfg.GeminiModel,
		BaseURL: cfg.GeminiBaseURL,
		Timeout: cfg.GeminiTimeout,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create generation client: %w", err)
	}

	a.catalog, err = prompts.Load(cfg.PromptsFile)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to load prompts: %w", err)
	}

	if cfg.AlertsEnabled() {
		a.notifier = alerting.NewEmailNotifier(cfg.SendGridAPIKey, cfg.SendGridFromEmail, cfg.SendGridFromName, cfg.OpsAlertEmail)
		slog.Info("Operator alerts go to email", "to", cfg.OpsAlertEmail)
	} else {
		a.notifier = alerting.LogNotifier{}
	}

	if cfg.RedisURL != "" {
		redisLock, err := runlock.NewRedisLock(ctx, cfg.RedisURL, cfg.RunLockTTL)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.lock = redisLock
		a.closers = append(a.closers, redisLock.Close)
	} else {
		a.lock = runlock.NoopLock{}
	}

	slog.Info("Application configured",
		"store_backend", cfg.StoreBackend,
		"model", a.generator.Model(),
		"schedule", cfg.DailyReadingSchedule,
		"run_lock", cfg.RedisURL != "",
	)
	return a, nil
}

func (a *app) setupStore(ctx context.Context) error {
	switch a.cfg.StoreBackend {
	case config.BackendPostgres:
		db, err := setupDatabase(ctx, a.cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("database setup failed: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		dbx := sqlx.NewDb(db, "postgres")
		a.subscriptions = datastore.NewSubscriptionRepository(dbx)
		a.readings = datastore.NewReadingRepository(dbx)
	default:
		client, err := supabase.NewClient(supabase.Config{
			URL:        a.cfg.SupabaseURL,
			ServiceKey: a.cfg.SupabaseServiceKey,
		})
		if err != nil {
			return fmt.Errorf("supabase setup failed: %w", err)
		}
		a.subscriptions = supabase.NewSubscriptionStore(client)
		a.readings = supabase.NewReadingStore(client)
	}
	return nil
}

func (a *app) dispatcher() *scheduler.Dispatcher {
	return scheduler.New(
		a.subscriptions,
		a.readings,
		a.generator,
		a.catalog.DailyPrompt(),
		a.cfg.CronSecret,
		scheduler.WithNotifier(a.notifier),
		scheduler.WithLock(a.lock),
	)
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			slog.Warn("Failed to close resource", "error", err)
		}
	}
}

func runServe(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	loc, err := a.cfg.Location()
	if err != nil {
		return err
	}

	dispatcher := a.dispatcher()
	if a.cfg.DailyReadingSchedule != "" {
		stopCron, err := dispatcher.StartCron(a.cfg.DailyReadingSchedule, loc)
		if err != nil {
			return err
		}
		defer stopCron()
	}

	processor := content.NewProcessor()
	readingHandler := rh.NewReadingHandler(a.readings, processor, ebook.NewJournalGenerator(processor), loc)
	horoscopeHandler := rh.NewHoroscopeHandler(a.generator, a.readings, a.catalog)

	verifier := auth.NewSupabaseVerifier(auth.Config{
		URL:       a.cfg.SupabaseURL,
		AnonKey:   a.cfg.SupabaseAnonKey,
		JWTSecret: a.cfg.SupabaseJWTSecret,
	})

	limiter := api.NewRateLimiter(a.cfg.HoroscopeRatePerMinute, a.cfg.HoroscopeRateBurst)
	limiter.StartCleanup(ctx, limiterCleanup)

	router := api.SetupRoutes(dispatcher, horoscopeHandler, readingHandler, verifier, limiter)
	return startServer(ctx, a.cfg.Port, router)
}

func runDispatch(ctx context.Context, out io.Writer) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.dispatcher().Run(ctx)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func runMigrate(ctx context.Context, databaseURL string) error {
	db, err := setupDatabase(ctx, databaseURL)
	if err != nil {
		return fmt.Errorf("database setup failed: %w", err)
	}
	defer db.Close()

	return datastore.ApplyMigrations(ctx, db)
}

func setupLogger(cfg *config.Config) {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	var handler slog.Handler
	if cfg.LogFormat == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func setupDatabase(ctx context.Context, connStr string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(dbMaxOpenConns)
	db.SetMaxIdleConns(dbMaxIdleConns)
	db.SetConnMaxLifetime(dbConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, dbPingTimeout)
	defer cancel()

	if err = db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	slog.Info("Database connection successful")
	return db, nil
}

func startServer(ctx context.Context, port string, router http.Handler) error {
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("Server starting", "port", port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("Shutdown signal received, initiating graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	slog.Info("Server gracefully stopped")
	return nil
}
