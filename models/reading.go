package models

import "time"

// Reading is a generated horoscope text stored for a user. Rows are append-only.
type Reading struct {
	ID          string    `json:"id" db:"id"`
	UserID      string    `json:"user_id" db:"user_id"`
	ReadingText string    `json:"reading_text" db:"reading_text"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}
