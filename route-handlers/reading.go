package routehandlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/coreybb/horoscope/auth"
	"github.com/coreybb/horoscope/ebook"
	"github.com/coreybb/horoscope/models"
	"github.com/coreybb/horoscope/webutil"
)

const exportReadingsLimit = 100

// ReadingStore is the read side of the readings table.
type ReadingStore interface {
	GetLatestReadingByUserID(ctx context.Context, userID string) (*models.Reading, error)
	GetReadingsByUserID(ctx context.Context, userID string, limit int) ([]models.Reading, error)
}

// HTMLRenderer renders reading text for display.
type HTMLRenderer interface {
	RenderHTML(text string) string
}

// JournalExporter packs readings into an ebook.
type JournalExporter interface {
	Generate(ctx context.Context, userID string, readings []models.Reading, metadata ebook.JournalMetadata) ([]byte, error)
}

// Holds dependencies for the caller's own readings.
type ReadingHandler struct {
	Store    ReadingStore
	Renderer HTMLRenderer
	Exporter JournalExporter
	Location *time.Location
}

func NewReadingHandler(store ReadingStore, renderer HTMLRenderer, exporter JournalExporter, loc *time.Location) *ReadingHandler {
	return &ReadingHandler{Store: store, Renderer: renderer, Exporter: exporter, Location: loc}
}

type readingView struct {
	models.Reading
	ReadingHTML string `json:"reading_html"`
}

func (h *ReadingHandler) view(reading models.Reading) readingView {
	return readingView{Reading: reading, ReadingHTML: h.Renderer.RenderHTML(reading.ReadingText)}
}

func (h *ReadingHandler) HandleGetLatestReading(w http.ResponseWriter, r *http.Request) error {
	userID := auth.UserIDFromContext(r.Context())
	if userID == "" {
		return webutil.ErrUnauthorized("")
	}

	reading, err := h.Store.GetLatestReadingByUserID(r.Context(), userID)
	if err != nil {
		return webutil.ErrInternalServerWrap("failed to retrieve latest reading", err)
	}
	if reading == nil {
		return webutil.ErrNotFound("No readings yet")
	}

	webutil.RespondWithJSON(w, http.StatusOK, h.view(*reading))
	return nil
}

func (h *ReadingHandler) HandleGetReadings(w http.ResponseWriter, r *http.Request) error {
	userID := auth.UserIDFromContext(r.Context())
	if userID == "" {
		return webutil.ErrUnauthorized("")
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return webutil.ErrBadRequest("limit must be a positive integer")
		}
		limit = n
	}

	readings, err := h.Store.GetReadingsByUserID(r.Context(), userID, limit)
	if err != nil {
		return webutil.ErrInternalServerWrap("failed to retrieve readings", err)
	}

	views := make([]readingView, 0, len(readings))
	for _, reading := range readings {
		views = append(views, h.view(reading))
	}
	webutil.RespondWithJSON(w, http.StatusOK, views)
	return nil
}

// HandleExportReadings returns the caller's most recent readings as an EPUB.
func (h *ReadingHandler) HandleExportReadings(w http.ResponseWriter, r *http.Request) error {
	user := auth.UserFromContext(r.Context())
	if user == nil || user.ID == "" {
		return webutil.ErrUnauthorized("")
	}

	readings, err := h.Store.GetReadingsByUserID(r.Context(), user.ID, exportReadingsLimit)
	if err != nil {
		return webutil.ErrInternalServerWrap("failed to retrieve readings for export", err)
	}
	if len(readings) == 0 {
		return webutil.ErrNotFound("No readings yet")
	}

	data, err := h.Exporter.Generate(r.Context(), user.ID, readings, ebook.JournalMetadata{
		Author:   user.Email,
		Location: h.Location,
	})
	if err != nil {
		return webutil.ErrInternalServerWrap("failed to generate reading journal", err)
	}

	w.Header().Set(webutil.HeaderContentType, webutil.ContentTypeEPUB)
	w.Header().Set(webutil.HeaderContentDisposition, `attachment; filename="horoscope-journal.epub"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}
	return nil
}
