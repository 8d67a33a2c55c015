package datastore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testUserID = "6f1c7f0e-2c7b-4d3a-9a55-0f3c2b1a9e01"

var readingColumns = []string{"id", "user_id", "reading_text", "created_at"}

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "postgres"), mock
}

func TestCreateReading(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewReadingRepository(db)
	now := time.Date(2026, 10, 19, 6, 0, 0, 0, time.UTC)

	mock.ExpectQuery("INSERT INTO daily_readings").
		WithArgs(sqlmock.AnyArg(), testUserID, "Be kind today.").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(now))

	reading, err := repo.CreateReading(context.Background(), testUserID, "Be kind today.")
	require.NoError(t, err)

	assert.NotEmpty(t, reading.ID)
	assert.Equal(t, testUserID, reading.UserID)
	assert.Equal(t, "Be kind today.", reading.ReadingText)
	assert.Equal(t, now, reading.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateReading_Validation(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewReadingRepository(db)

	_, err := repo.CreateReading(context.Background(), "not-a-uuid", "text")
	assert.Error(t, err)

	_, err = repo.CreateReading(context.Background(), testUserID, "  ")
	assert.Error(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateReading_InsertError(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewReadingRepository(db)

	mock.ExpectQuery("INSERT INTO daily_readings").WillReturnError(errors.New("connection refused"))

	_, err := repo.CreateReading(context.Background(), testUserID, "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to insert reading")
}

func TestGetLatestReadingByUserID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewReadingRepository(db)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT (.+) FROM daily_readings").
		WithArgs(testUserID).
		WillReturnRows(sqlmock.NewRows(readingColumns).AddRow("r-1", testUserID, "latest", now))

	reading, err := repo.GetLatestReadingByUserID(context.Background(), testUserID)
	require.NoError(t, err)
	require.NotNil(t, reading)
	assert.Equal(t, "r-1", reading.ID)
	assert.Equal(t, "latest", reading.ReadingText)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetLatestReadingByUserID_NoRows(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewReadingRepository(db)

	mock.ExpectQuery("SELECT (.+) FROM daily_readings").
		WithArgs(testUserID).
		WillReturnRows(sqlmock.NewRows(readingColumns))

	reading, err := repo.GetLatestReadingByUserID(context.Background(), testUserID)
	require.NoError(t, err)
	assert.Nil(t, reading)
}

func TestGetReadingsByUserID_ClampsLimit(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewReadingRepository(db)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT (.+) FROM daily_readings").
		WithArgs(testUserID, MaxReadingsLimit).
		WillReturnRows(sqlmock.NewRows(readingColumns).
			AddRow("r-2", testUserID, "second", now).
			AddRow("r-1", testUserID, "first", now.Add(-time.Hour)))

	readings, err := repo.GetReadingsByUserID(context.Background(), testUserID, 5000)
	require.NoError(t, err)
	require.Len(t, readings, 2)
	assert.Equal(t, "r-2", readings[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetReadingsByUserID_EmptyIsNotNil(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewReadingRepository(db)

	mock.ExpectQuery("SELECT (.+) FROM daily_readings").
		WithArgs(testUserID, DefaultReadingsLimit).
		WillReturnRows(sqlmock.NewRows(readingColumns))

	readings, err := repo.GetReadingsByUserID(context.Background(), testUserID, 0)
	require.NoError(t, err)
	assert.NotNil(t, readings)
	assert.Empty(t, readings)
}

func TestActiveSubscriberIDs(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSubscriptionRepository(db)

	mock.ExpectQuery("SELECT user_id FROM subscriptions").
		WithArgs("active").
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).
			AddRow("a").
			AddRow("b").
			AddRow("a"))

	ids, err := repo.ActiveSubscriberIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "a"}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestActiveSubscriberIDs_Error(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSubscriptionRepository(db)

	mock.ExpectQuery("SELECT user_id FROM subscriptions").WillReturnError(errors.New("timeout"))

	_, err := repo.ActiveSubscriberIDs(context.Background())
	assert.Error(t, err)
}

func TestApplyMigrations(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS subscriptions").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS daily_readings").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, ApplyMigrations(context.Background(), db))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyMigrations_StopsOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS subscriptions").WillReturnError(errors.New("permission denied"))

	err = ApplyMigrations(context.Background(), db)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "001_subscriptions.sql")
}
