package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/coreybb/horoscope/auth"
	"github.com/coreybb/horoscope/metrics"
	rh "github.com/coreybb/horoscope/route-handlers"
	"github.com/coreybb/horoscope/scheduler"
	"github.com/coreybb/horoscope/webutil"
)

const (
	apiBasePath        = "/api"
	cronBasePath       = "/cron"
	horoscopeBasePath  = "/horoscope"
	myReadingsBasePath = "/me/readings"
)

const (
	dailyReadingSubPath = "/daily-reading"
	latestSubPath       = "/latest"
	exportSubPath       = "/export"
)

// User-facing requests wait on one generation call at most.
const requestTimeout = 90 * time.Second

func SetupRoutes(
	dispatcher *scheduler.Dispatcher,
	horoscopeHandler *rh.HoroscopeHandler,
	readingHandler *rh.ReadingHandler,
	verifier auth.Verifier,
	horoscopeLimiter *RateLimiter,
) http.Handler {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.InstrumentHandler)

	r.Route(apiBasePath, func(r chi.Router) {
		// The daily run walks every subscriber, so it gets no request timeout.
		configureCronRoutes(r, dispatcher)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(requestTimeout))
			r.Use(auth.RequireUser(verifier))

			configureHoroscopeRoutes(r, horoscopeHandler, horoscopeLimiter)
			configureMyReadingRoutes(r, readingHandler)
		})
	})

	r.Get("/healthz", handleHealthCheck)
	r.Handle("/metrics", metrics.Handler())

	return r
}

// --- Cron Routes ---
func configureCronRoutes(r chi.Router, dispatcher *scheduler.Dispatcher) {
	r.Route(cronBasePath, func(r chi.Router) {
		r.Get(dailyReadingSubPath, webutil.MakeHandler(dispatcher.HandleDailyReading)) // GET /api/cron/daily-reading
	})
}

// --- Horoscope Routes ---
func configureHoroscopeRoutes(r chi.Router, handler *rh.HoroscopeHandler, limiter *RateLimiter) {
	r.With(limiter.Handler).Post(horoscopeBasePath, webutil.MakeHandler(handler.HandleCreateHoroscope))
}

// --- My Reading Routes ---
func configureMyReadingRoutes(r chi.Router, handler *rh.ReadingHandler) {
	r.Route(myReadingsBasePath, func(r chi.Router) {
		r.Get("/", webutil.MakeHandler(handler.HandleGetReadings))
		r.Get(latestSubPath, webutil.MakeHandler(handler.HandleGetLatestReading))
		r.Get(exportSubPath, webutil.MakeHandler(handler.HandleExportReadings))
	})
}

// handleHealthCheck responds to a health check request.
func handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set(webutil.HeaderContentType, webutil.ContentTypeTextPlainUTF8)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
