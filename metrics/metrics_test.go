package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/coreybb/horoscope/models"
)

func TestInstrumentHandler_UsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(InstrumentHandler)
	r.Get("/api/things/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	before := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/api/things/{id}", "418"))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/things/42", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, before+1, testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/api/things/{id}", "418")))
}

func TestRecordDispatch(t *testing.T) {
	completed := testutil.ToFloat64(dispatchRuns.WithLabelValues(OutcomeCompleted))
	skipped := testutil.ToFloat64(dispatchRuns.WithLabelValues(OutcomeSkipped))
	succeeded := testutil.ToFloat64(dispatchUsers.WithLabelValues("succeeded", ""))
	persistFailed := testutil.ToFloat64(dispatchUsers.WithLabelValues("failed", "persist"))

	RecordDispatchRun(OutcomeCompleted, 2*time.Second)
	RecordDispatchRun(OutcomeSkipped, 0)
	RecordDispatchUsers(models.DispatchResult{
		Succeeded: 3,
		Failures:  []models.DispatchFailure{{UserID: "u4", Stage: models.DispatchStagePersist, Error: "boom"}},
	})

	assert.Equal(t, completed+1, testutil.ToFloat64(dispatchRuns.WithLabelValues(OutcomeCompleted)))
	assert.Equal(t, skipped+1, testutil.ToFloat64(dispatchRuns.WithLabelValues(OutcomeSkipped)))
	assert.Equal(t, succeeded+3, testutil.ToFloat64(dispatchUsers.WithLabelValues("succeeded", "")))
	assert.Equal(t, persistFailed+1, testutil.ToFloat64(dispatchUsers.WithLabelValues("failed", "persist")))
}

func TestHandler_ExposesCollectors(t *testing.T) {
	RecordGeneration("daily", GenerationOK, 300*time.Millisecond)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "horoscope_gemini_generations_total"))
	assert.True(t, strings.Contains(body, "horoscope_http_inflight_requests"))
}

func TestObserveGeneration(t *testing.T) {
	ok := testutil.ToFloat64(generations.WithLabelValues("horoscope", GenerationOK))
	cred := testutil.ToFloat64(generations.WithLabelValues("horoscope", GenerationCredentialError))
	other := testutil.ToFloat64(generations.WithLabelValues("horoscope", GenerationError))

	ObserveGeneration("horoscope", time.Now(), nil)
	ObserveGeneration("horoscope", time.Now(), errors.New("API key not valid. Please pass a valid API key."))
	ObserveGeneration("horoscope", time.Now(), errors.New("connection reset"))

	assert.Equal(t, ok+1, testutil.ToFloat64(generations.WithLabelValues("horoscope", GenerationOK)))
	assert.Equal(t, cred+1, testutil.ToFloat64(generations.WithLabelValues("horoscope", GenerationCredentialError)))
	assert.Equal(t, other+1, testutil.ToFloat64(generations.WithLabelValues("horoscope", GenerationError)))
}
