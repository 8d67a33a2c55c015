package ebook

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	epub "github.com/go-shiori/go-epub"

	"github.com/coreybb/horoscope/models"
	"github.com/coreybb/horoscope/webutil"
)

// HTMLRenderer turns reading text into XHTML-safe markup.
type HTMLRenderer interface {
	RenderHTML(text string) string
}

// JournalMetadata describes the exported book.
type JournalMetadata struct {
	Title    string
	Author   string
	Language string
	Location *time.Location
}

// JournalGenerator builds an EPUB from a user's readings.
type JournalGenerator struct {
	renderer HTMLRenderer
}

func NewJournalGenerator(renderer HTMLRenderer) *JournalGenerator {
	return &JournalGenerator{renderer: renderer}
}

// Generate writes one chapter per reading, oldest first. readings may be in
// any order.
func (g *JournalGenerator) Generate(ctx context.Context, userID string, readings []models.Reading, metadata JournalMetadata) ([]byte, error) {
	if userID == "" {
		return nil, fmt.Errorf("user ID cannot be empty")
	}
	if len(readings) == 0 {
		return nil, fmt.Errorf("no readings to export")
	}

	startTime := time.Now()

	title := metadata.Title
	if title == "" {
		title = "Horoscope Journal"
	}
	author := metadata.Author
	if author == "" {
		author = "Horoscope"
	}
	lang := metadata.Language
	if lang == "" {
		lang = "th"
	}
	loc := metadata.Location
	if loc == nil {
		loc = time.UTC
	}

	e, err := epub.NewEpub(title)
	if err != nil {
		return nil, fmt.Errorf("failed to create epub: %w", err)
	}
	e.SetAuthor(author)
	e.SetLang(lang)

	ordered := oldestFirst(readings)
	e.SetIdentifier("urn:sha256:" + webutil.GenerateHash(userID, ordered[0].ID, ordered[len(ordered)-1].ID, fmt.Sprint(len(ordered))))

	for i, reading := range ordered {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		heading := reading.CreatedAt.In(loc).Format("2 January 2006 15:04")
		body := fmt.Sprintf("<h2>%s</h2>%s", heading, g.renderer.RenderHTML(reading.ReadingText))
		if _, err := e.AddSection(body, heading, fmt.Sprintf("reading-%04d.xhtml", i+1), ""); err != nil {
			return nil, fmt.Errorf("failed to add section for reading %s: %w", reading.ID, err)
		}
	}

	var buf bytes.Buffer
	if _, err := e.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write epub: %w", err)
	}

	slog.Info("Generated reading journal",
		"user_id", userID,
		"readings", len(ordered),
		"bytes", buf.Len(),
		"took", time.Since(startTime),
	)
	return buf.Bytes(), nil
}

func oldestFirst(readings []models.Reading) []models.Reading {
	ordered := make([]models.Reading, len(readings))
	copy(ordered, readings)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
	})
	return ordered
}
