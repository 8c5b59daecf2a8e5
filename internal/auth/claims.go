package auth

import "github.com/golang-jwt/jwt/v5"

// TokenType distinguishes short-lived access tokens from refresh tokens.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Claims is the JWT payload issued to dashboard users.
type Claims struct {
	jwt.RegisteredClaims
	UserID    string    `json:"uid"`
	Email     string    `json:"email,omitempty"`
	Role      string    `json:"role,omitempty"`
	TokenType TokenType `json:"typ"`
}
