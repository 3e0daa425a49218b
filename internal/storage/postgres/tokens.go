package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"meli_sync/internal/domain"
)

// TokenStore persists Mercado Livre OAuth credentials.
type TokenStore struct {
	db *sqlx.DB
}

func NewTokenStore(db *sqlx.DB) *TokenStore {
	return &TokenStore{db: db}
}

// Get returns the most recently updated token, nil when none exists.
func (s *TokenStore) Get(ctx context.Context) (*domain.Token, error) {
	query := `
		SELECT user_id, access_token, refresh_token, token_type, expires_at, scope, updated_at
		FROM meli_tokens
		ORDER BY updated_at DESC
		LIMIT 1`

	var token domain.Token
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &token, query)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &token, nil
}

// Save inserts or updates the credential for its user.
func (s *TokenStore) Save(ctx context.Context, token *domain.Token) error {
	query := `
		INSERT INTO meli_tokens (user_id, access_token, refresh_token, token_type, expires_at, scope, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			token_type = EXCLUDED.token_type,
			expires_at = EXCLUDED.expires_at,
			scope = EXCLUDED.scope,
			updated_at = EXCLUDED.updated_at`

	exec := GetExecutor(ctx, s.db)
	_, err := exec.ExecContext(ctx, query,
		token.UserID,
		token.AccessToken,
		token.RefreshToken,
		token.TokenType,
		token.ExpiresAt,
		token.Scope,
		token.UpdatedAt,
	)
	return err
}
