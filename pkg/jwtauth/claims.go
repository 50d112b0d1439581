package jwtauth

import "github.com/golang-jwt/jwt/v5"

// TokenType distinguishes the three JWTs this package issues.
type TokenType string

const (
	TokenAccess   TokenType = "access"
	TokenRefresh  TokenType = "refresh"
	TokenImageURL TokenType = "image_url"
)

// Claims carries the fields shared by access and refresh tokens.
type Claims struct {
	jwt.RegisteredClaims
	Type      TokenType `json:"typ"`
	TenantID  string    `json:"tenant_id"`
	UserID    string    `json:"user_id"`
	SessionID string    `json:"session_id"`
	Roles     []string  `json:"roles,omitempty"`
}

// ImageURLClaims is the signed-URL bearer JWT used by the alternative
// image-serving path that doesn't consume a one-time access token.
type ImageURLClaims struct {
	jwt.RegisteredClaims
	Type        TokenType `json:"typ"`
	TenantID    string    `json:"tenant_id"`
	CheckItemID string    `json:"check_item_id"`
	ImageID     string    `json:"image_id"`
	UserID      string    `json:"user_id"`
}
