package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(Config{URL: server.URL, ServiceKey: "service-key"})
	require.NoError(t, err)
	return client
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(Config{ServiceKey: "k"})
	assert.Error(t, err)

	_, err = NewClient(Config{URL: "https://x.supabase.co"})
	assert.Error(t, err)

	_, err = NewClient(Config{URL: "not a url", ServiceKey: "k"})
	assert.Error(t, err)
}

func TestActiveSubscriberIDs(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/rest/v1/subscriptions", r.URL.Path)
		assert.Equal(t, "user_id", r.URL.Query().Get("select"))
		assert.Equal(t, "eq.active", r.URL.Query().Get("status"))
		assert.Equal(t, "service-key", r.Header.Get("apikey"))
		assert.Equal(t, "Bearer service-key", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"user_id":"u1"},{"user_id":null},{"user_id":"u2"},{"user_id":"u1"}]`))
	})

	ids, err := NewSubscriptionStore(client).ActiveSubscriberIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2", "u1"}, ids)
}

func TestActiveSubscriberIDs_APIError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"code":"PGRST301","message":"JWT expired"}`))
	})

	_, err := NewSubscriptionStore(client).ActiveSubscriberIDs(context.Background())
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "PGRST301", apiErr.Code)
	assert.Equal(t, "JWT expired", apiErr.Message)
}

func TestCreateReading(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/rest/v1/daily_readings", r.URL.Path)
		assert.Equal(t, "return=representation", r.Header.Get("Prefer"))

		var row map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&row))
		assert.Equal(t, map[string]string{"user_id": "u1", "reading_text": "วันนี้ดี"}, row)

		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`[{"id":"r1","user_id":"u1","reading_text":"วันนี้ดี","created_at":"2026-10-19T06:00:00.123456+00:00"}]`))
	})

	reading, err := NewReadingStore(client).CreateReading(context.Background(), "u1", "วันนี้ดี")
	require.NoError(t, err)
	assert.Equal(t, "r1", reading.ID)
	assert.Equal(t, "วันนี้ดี", reading.ReadingText)
	assert.Equal(t, 2026, reading.CreatedAt.Year())
}

func TestCreateReading_RejectsEmptyText(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	_, err := NewReadingStore(client).CreateReading(context.Background(), "u1", " ")
	assert.Error(t, err)
}

func TestGetLatestReadingByUserID(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "eq.u1", q.Get("user_id"))
		assert.Equal(t, "created_at.desc", q.Get("order"))
		assert.Equal(t, "1", q.Get("limit"))
		w.Write([]byte(`[{"id":"r9","user_id":"u1","reading_text":"newest","created_at":"2026-10-19T06:00:00Z"}]`))
	})

	reading, err := NewReadingStore(client).GetLatestReadingByUserID(context.Background(), "u1")
	require.NoError(t, err)
	require.NotNil(t, reading)
	assert.Equal(t, "newest", reading.ReadingText)
}

func TestGetLatestReadingByUserID_None(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	})

	reading, err := NewReadingStore(client).GetLatestReadingByUserID(context.Background(), "u1")
	require.NoError(t, err)
	assert.Nil(t, reading)
}

func TestGetReadingsByUserID_ClampsLimit(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "100", r.URL.Query().Get("limit"))
		w.Write([]byte(`[]`))
	})

	readings, err := NewReadingStore(client).GetReadingsByUserID(context.Background(), "u1", 1000)
	require.NoError(t, err)
	assert.Empty(t, readings)
}
