package datastore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/coreybb/horoscope/models"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const (
	DefaultReadingsLimit = 20
	MaxReadingsLimit     = 100
)

// ReadingRepository handles database operations for daily_readings.
type ReadingRepository struct {
	db *sqlx.DB
}

// NewReadingRepository creates a new ReadingRepository.
func NewReadingRepository(db *sqlx.DB) *ReadingRepository {
	return &ReadingRepository{db: db}
}

// CreateReading appends a reading for userID. The database assigns created_at.
func (r *ReadingRepository) CreateReading(ctx context.Context, userID, text string) (*models.Reading, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return nil, fmt.Errorf("invalid user ID format: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("reading text cannot be empty")
	}

	reading := models.Reading{
		ID:          uuid.NewString(),
		UserID:      userID,
		ReadingText: text,
	}

	query := `
		INSERT INTO daily_readings (id, user_id, reading_text)
		VALUES ($1, $2, $3)
		RETURNING created_at
	`
	err := r.db.QueryRowxContext(ctx, query, reading.ID, reading.UserID, reading.ReadingText).Scan(&reading.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert reading: %w", err)
	}
	return &reading, nil
}

// GetLatestReadingByUserID returns the newest reading for a user.
// Returns nil, nil if the user has no readings yet.
func (r *ReadingRepository) GetLatestReadingByUserID(ctx context.Context, userID string) (*models.Reading, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return nil, fmt.Errorf("invalid user ID format: %w", err)
	}

	query := `
		SELECT id, user_id, reading_text, created_at
		FROM daily_readings
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`
	var reading models.Reading
	if err := r.db.GetContext(ctx, &reading, query, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest reading for user %s: %w", userID, err)
	}
	return &reading, nil
}

// GetReadingsByUserID lists a user's readings, newest first.
func (r *ReadingRepository) GetReadingsByUserID(ctx context.Context, userID string, limit int) ([]models.Reading, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return nil, fmt.Errorf("invalid user ID format: %w", err)
	}
	limit = clampLimit(limit)

	query := `
		SELECT id, user_id, reading_text, created_at
		FROM daily_readings
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	readings := []models.Reading{}
	if err := r.db.SelectContext(ctx, &readings, query, userID, limit); err != nil {
		return nil, fmt.Errorf("failed to query readings for user %s: %w", userID, err)
	}
	return readings, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultReadingsLimit
	}
	if limit > MaxReadingsLimit {
		return MaxReadingsLimit
	}
	return limit
}
