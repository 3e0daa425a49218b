package domain

import "time"

// Token is a stored Mercado Livre OAuth credential for one seller.
type Token struct {
	UserID       int64     `db:"user_id"`
	AccessToken  string    `db:"access_token"`
	RefreshToken string    `db:"refresh_token"`
	TokenType    string    `db:"token_type"`
	ExpiresAt    time.Time `db:"expires_at"`
	Scope        string    `db:"scope"`
	UpdatedAt    time.Time `db:"updated_at"`
}
