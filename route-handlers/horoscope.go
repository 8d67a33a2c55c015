package routehandlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coreybb/horoscope/auth"
	"github.com/coreybb/horoscope/gemini"
	"github.com/coreybb/horoscope/metrics"
	"github.com/coreybb/horoscope/models"
	"github.com/coreybb/horoscope/prompts"
	"github.com/coreybb/horoscope/webutil"
)

const (
	maxHoroscopeBodyBytes   = 16 << 10
	generationKindHoroscope = "horoscope"

	msgMissingBirthData = "โปรดระบุ birthDate, birthTime, และ birthPlace"
	msgInvalidAPIKey    = "API Key สำหรับ Gemini AI ไม่ถูกต้อง โปรดตรวจสอบ GOOGLE_AI_API_KEY ของคุณ"
	msgGenerationFailed = "เกิดข้อผิดพลาดในการสร้างคำทำนาย: "
)

// Generator produces text for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// ReadingWriter appends a reading for a user.
type ReadingWriter interface {
	CreateReading(ctx context.Context, userID, text string) (*models.Reading, error)
}

// Holds dependencies for the on-demand horoscope route.
type HoroscopeHandler struct {
	Generator Generator
	Readings  ReadingWriter
	Prompts   *prompts.Catalog
}

func NewHoroscopeHandler(generator Generator, readings ReadingWriter, catalog *prompts.Catalog) *HoroscopeHandler {
	return &HoroscopeHandler{Generator: generator, Readings: readings, Prompts: catalog}
}

type horoscopeResponse struct {
	Horoscope string          `json:"horoscope"`
	Reading   *models.Reading `json:"reading,omitempty"`
}

// HandleCreateHoroscope generates a full horoscope from the caller's birth
// data and keeps it as one of their readings.
func (h *HoroscopeHandler) HandleCreateHoroscope(w http.ResponseWriter, r *http.Request) error {
	userID := auth.UserIDFromContext(r.Context())
	if userID == "" {
		return webutil.ErrUnauthorized("")
	}

	var req models.BirthData
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxHoroscopeBodyBytes))
	if err := decoder.Decode(&req); err != nil {
		return webutil.ErrBadRequestWrap("Invalid request payload", err)
	}
	defer r.Body.Close()

	if !req.Complete() {
		return webutil.ErrBadRequest(msgMissingBirthData)
	}

	prompt, err := h.Prompts.HoroscopePrompt(req)
	if err != nil {
		return webutil.ErrInternalServerWrap("failed to build horoscope prompt", err)
	}

	start := time.Now()
	text, err := h.Generator.Generate(r.Context(), prompt)
	metrics.ObserveGeneration(generationKindHoroscope, start, err)
	if err != nil {
		if gemini.IsCredentialError(err) {
			slog.Error("CRITICAL: generation API key is invalid or exhausted", "error", err)
			return webutil.NewHTTPErrorWrap(http.StatusInternalServerError, msgInvalidAPIKey, err)
		}
		return webutil.NewHTTPErrorWrap(http.StatusInternalServerError, msgGenerationFailed+publicGenerationError(err), err)
	}

	resp := horoscopeResponse{Horoscope: text}
	reading, err := h.Readings.CreateReading(r.Context(), userID, text)
	if err != nil {
		slog.Error("Failed to store horoscope reading", "user_id", userID, "error", err)
	} else {
		resp.Reading = reading
	}

	webutil.RespondWithJSON(w, http.StatusOK, resp)
	return nil
}

func publicGenerationError(err error) string {
	var apiErr *gemini.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "request timed out"
	}
	return err.Error()
}
