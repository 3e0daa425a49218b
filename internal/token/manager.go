// Package token manages Mercado Livre OAuth credentials: storage,
// expiry tracking and automatic refresh.
package token

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"meli_sync/internal/domain"
)

// ErrNoToken is returned when no credential has ever been stored.
// Sync runs treat this as fatal: nothing can be fetched without it.
var ErrNoToken = errors.New("no token available")

// refreshMargin is how close to expiry a token may get before it is
// refreshed on access.
const refreshMargin = 30 * time.Minute

// Store persists credentials.
type Store interface {
	Get(ctx context.Context) (*domain.Token, error)
	Save(ctx context.Context, token *domain.Token) error
}

// Config holds the OAuth application settings.
type Config struct {
	BaseURL   string
	AppID     string
	SecretKey string
	Timeout   time.Duration
}

// Manager hands out currently valid bearer credentials, refreshing
// near-expiry tokens through the OAuth endpoint.
type Manager struct {
	store      Store
	httpClient *http.Client
	baseURL    string
	appID      string
	secretKey  string
	logger     *slog.Logger

	// mu serializes refreshes so concurrent callers never race two
	// refresh requests with the same refresh token.
	mu sync.Mutex
}

func NewManager(cfg Config, store Store, logger *slog.Logger) *Manager {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Manager{
		store:      store,
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    cfg.BaseURL,
		appID:      cfg.AppID,
		secretKey:  cfg.SecretKey,
		logger:     logger.With("component", "token_manager"),
	}
}

// Token returns a currently valid access token.
func (m *Manager) Token(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, err := m.store.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("load token: %w", err)
	}
	if stored == nil {
		return "", ErrNoToken
	}

	if time.Until(stored.ExpiresAt) < refreshMargin {
		m.logger.Info("token near expiry, refreshing",
			"user_id", stored.UserID,
			"expires_at", stored.ExpiresAt,
		)
		stored, err = m.refresh(ctx, stored)
		if err != nil {
			return "", fmt.Errorf("refresh token: %w", err)
		}
	}

	return stored.AccessToken, nil
}

// Status returns the stored credential metadata for inspection.
// Callers must not expose the secret fields.
func (m *Manager) Status(ctx context.Context) (*domain.Token, error) {
	stored, err := m.store.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("load token: %w", err)
	}
	if stored == nil {
		return nil, ErrNoToken
	}
	return stored, nil
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	Scope        string `json:"scope"`
	UserID       int64  `json:"user_id"`
}

func (m *Manager) refresh(ctx context.Context, stored *domain.Token) (*domain.Token, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("client_id", m.appID)
	form.Set("client_secret", m.secretKey)
	form.Set("refresh_token", stored.RefreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		m.baseURL+"/oauth/token", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	expiresIn := tr.ExpiresIn
	if expiresIn == 0 {
		expiresIn = 21600
	}
	tokenType := tr.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}
	userID := tr.UserID
	if userID == 0 {
		userID = stored.UserID
	}

	now := time.Now().UTC()
	refreshed := &domain.Token{
		UserID:       userID,
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		TokenType:    tokenType,
		ExpiresAt:    now.Add(time.Duration(expiresIn) * time.Second),
		Scope:        tr.Scope,
		UpdatedAt:    now,
	}

	if err := m.store.Save(ctx, refreshed); err != nil {
		return nil, fmt.Errorf("save token: %w", err)
	}

	m.logger.Info("token refreshed",
		"user_id", refreshed.UserID,
		"expires_at", refreshed.ExpiresAt,
	)

	return refreshed, nil
}
