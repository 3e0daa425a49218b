package token

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meli_sync/internal/domain"
)

type memStore struct {
	token *domain.Token
}

func (m *memStore) Get(ctx context.Context) (*domain.Token, error) {
	return m.token, nil
}

func (m *memStore) Save(ctx context.Context, token *domain.Token) error {
	m.token = token
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestManager(baseURL string, store Store) *Manager {
	return NewManager(Config{
		BaseURL:   baseURL,
		AppID:     "app-id",
		SecretKey: "secret",
		Timeout:   5 * time.Second,
	}, store, testLogger())
}

func TestToken_NoStoredToken(t *testing.T) {
	m := newTestManager("http://unused", &memStore{})

	_, err := m.Token(context.Background())
	assert.ErrorIs(t, err, ErrNoToken)
}

func TestToken_ValidTokenNotRefreshed(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	store := &memStore{token: &domain.Token{
		UserID:      1,
		AccessToken: "fresh-token",
		ExpiresAt:   time.Now().Add(2 * time.Hour),
	}}
	m := newTestManager(srv.URL, store)

	got, err := m.Token(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "fresh-token", got)
	assert.Zero(t, calls.Load(), "a token outside the refresh margin must not hit the OAuth endpoint")
}

func TestToken_RefreshesNearExpiry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/oauth/token", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.Form.Get("grant_type"))
		assert.Equal(t, "app-id", r.Form.Get("client_id"))
		assert.Equal(t, "old-refresh", r.Form.Get("refresh_token"))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "new-access",
			"refresh_token": "new-refresh",
			"token_type":    "Bearer",
			"expires_in":    21600,
			"user_id":       42,
		})
	}))
	defer srv.Close()

	store := &memStore{token: &domain.Token{
		UserID:       42,
		AccessToken:  "old-access",
		RefreshToken: "old-refresh",
		// Inside the 30 minute refresh margin.
		ExpiresAt: time.Now().Add(10 * time.Minute),
	}}
	m := newTestManager(srv.URL, store)

	got, err := m.Token(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "new-access", got)

	saved := store.token
	require.NotNil(t, saved)
	assert.Equal(t, "new-access", saved.AccessToken)
	assert.Equal(t, "new-refresh", saved.RefreshToken)
	assert.Equal(t, int64(42), saved.UserID)
	assert.WithinDuration(t, time.Now().Add(21600*time.Second), saved.ExpiresAt, time.Minute)
}

func TestToken_RefreshDefaults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Minimal response: no expires_in, token_type or user_id.
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "new-access",
			"refresh_token": "new-refresh",
		})
	}))
	defer srv.Close()

	store := &memStore{token: &domain.Token{
		UserID:       7,
		RefreshToken: "old-refresh",
		ExpiresAt:    time.Now().Add(-time.Minute),
	}}
	m := newTestManager(srv.URL, store)

	_, err := m.Token(context.Background())
	require.NoError(t, err)

	saved := store.token
	assert.Equal(t, "Bearer", saved.TokenType)
	assert.Equal(t, int64(7), saved.UserID, "user id falls back to the stored one")
	assert.WithinDuration(t, time.Now().Add(6*time.Hour), saved.ExpiresAt, time.Minute)
}

func TestToken_RefreshFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	store := &memStore{token: &domain.Token{
		RefreshToken: "old-refresh",
		ExpiresAt:    time.Now().Add(-time.Minute),
	}}
	m := newTestManager(srv.URL, store)

	_, err := m.Token(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refresh token")
}

func TestStatus(t *testing.T) {
	store := &memStore{token: &domain.Token{
		UserID:    9,
		ExpiresAt: time.Now().Add(time.Hour),
	}}
	m := newTestManager("http://unused", store)

	got, err := m.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(9), got.UserID)

	m = newTestManager("http://unused", &memStore{})
	_, err = m.Status(context.Background())
	assert.ErrorIs(t, err, ErrNoToken)
}
