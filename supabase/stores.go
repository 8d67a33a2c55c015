package supabase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/coreybb/horoscope/models"
)

const (
	subscriptionsTable = "subscriptions"
	readingsTable      = "daily_readings"

	defaultReadingsLimit = 20
	maxReadingsLimit     = 100
)

// SubscriptionStore reads active subscribers through PostgREST.
type SubscriptionStore struct {
	client *Client
}

func NewSubscriptionStore(client *Client) *SubscriptionStore {
	return &SubscriptionStore{client: client}
}

// ActiveSubscriberIDs returns one user_id per active subscription row.
func (s *SubscriptionStore) ActiveSubscriberIDs(ctx context.Context) ([]string, error) {
	var rows []struct {
		UserID *string `json:"user_id"`
	}
	err := s.client.From(subscriptionsTable).
		Select("user_id").
		Eq("status", string(models.SubscriptionStatusActive)).
		Execute(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("failed to query active subscriptions: %w", err)
	}

	userIDs := make([]string, 0, len(rows))
	for _, row := range rows {
		if row.UserID != nil {
			userIDs = append(userIDs, *row.UserID)
		}
	}
	return userIDs, nil
}

// ReadingStore reads and appends daily_readings rows through PostgREST.
type ReadingStore struct {
	client *Client
}

func NewReadingStore(client *Client) *ReadingStore {
	return &ReadingStore{client: client}
}

// CreateReading appends a reading; created_at comes back from the database.
func (s *ReadingStore) CreateReading(ctx context.Context, userID, text string) (*models.Reading, error) {
	if userID == "" {
		return nil, fmt.Errorf("user ID cannot be empty")
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("reading text cannot be empty")
	}

	row := map[string]string{"user_id": userID, "reading_text": text}
	var inserted []models.Reading
	if err := s.client.From(readingsTable).Insert(ctx, row, &inserted); err != nil {
		return nil, fmt.Errorf("failed to insert reading: %w", err)
	}
	if len(inserted) == 0 {
		// Representation was stripped; fall back to what was sent.
		return &models.Reading{UserID: userID, ReadingText: text, CreatedAt: time.Now().UTC()}, nil
	}
	return &inserted[0], nil
}

// GetLatestReadingByUserID returns nil, nil when the user has no readings.
func (s *ReadingStore) GetLatestReadingByUserID(ctx context.Context, userID string) (*models.Reading, error) {
	readings, err := s.list(ctx, userID, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest reading for user %s: %w", userID, err)
	}
	if len(readings) == 0 {
		return nil, nil
	}
	return &readings[0], nil
}

// GetReadingsByUserID lists a user's readings, newest first.
func (s *ReadingStore) GetReadingsByUserID(ctx context.Context, userID string, limit int) ([]models.Reading, error) {
	if limit <= 0 {
		limit = defaultReadingsLimit
	}
	if limit > maxReadingsLimit {
		limit = maxReadingsLimit
	}
	readings, err := s.list(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query readings for user %s: %w", userID, err)
	}
	return readings, nil
}

func (s *ReadingStore) list(ctx context.Context, userID string, limit int) ([]models.Reading, error) {
	if userID == "" {
		return nil, fmt.Errorf("user ID cannot be empty")
	}
	readings := []models.Reading{}
	err := s.client.From(readingsTable).
		Select("id,user_id,reading_text,created_at").
		Eq("user_id", userID).
		Order("created_at", false).
		Limit(limit).
		Execute(ctx, &readings)
	if err != nil {
		return nil, err
	}
	return readings, nil
}
