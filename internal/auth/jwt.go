// Package auth issues and verifies dashboard credentials.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/ProductBay/vynce/internal/config"
	"github.com/ProductBay/vynce/internal/domain"
	apperrors "github.com/ProductBay/vynce/pkg/errors"
)

// clockSkew is tolerated on exp and iat checks.
const clockSkew = 30 * time.Second

// Manager signs and verifies HS256 tokens.
type Manager struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewManager builds a token manager from configuration.
func NewManager(cfg config.AuthConfig) (*Manager, error) {
	if cfg.Secret == "" {
		return nil, errors.New("auth: secret is required")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("auth: token lifetimes must be positive")
	}
	return &Manager{
		secret:     []byte(cfg.Secret),
		issuer:     cfg.Issuer,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
	}, nil
}

// TokenPair is returned on login, registration and refresh.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

// IssuePair signs an access and a refresh token for user.
func (m *Manager) IssuePair(now time.Time, user *domain.User) (TokenPair, error) {
	access, err := m.issue(now, TokenTypeAccess, user, m.accessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := m.issue(now, TokenTypeRefresh, user, m.refreshTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(m.accessTTL / time.Second),
	}, nil
}

// Verify parses a token of the expected type as of now.
func (m *Manager) Verify(token string, expected TokenType, now time.Time) (Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithLeeway(clockSkew),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}

	var claims Claims
	_, err := jwt.NewParser(opts...).ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	})
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", apperrors.ErrUnauthorized, err)
	}
	if claims.TokenType != expected {
		return Claims{}, fmt.Errorf("%w: expected %s token", apperrors.ErrUnauthorized, expected)
	}
	if _, err := uuid.Parse(claims.UserID); err != nil {
		return Claims{}, fmt.Errorf("%w: malformed subject", apperrors.ErrUnauthorized)
	}
	if expected == TokenTypeAccess && claims.Role == "" {
		return Claims{}, fmt.Errorf("%w: role missing in access token", apperrors.ErrUnauthorized)
	}
	return claims, nil
}

func (m *Manager) issue(now time.Time, typ TokenType, user *domain.User, ttl time.Duration) (string, error) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		UserID:    user.ID.String(),
		TokenType: typ,
	}
	// refresh tokens carry no role; it is re-read from the store on refresh
	if typ == TokenTypeAccess {
		claims.Email = user.Email
		claims.Role = string(user.Role)
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign %s token: %w", typ, err)
	}
	return signed, nil
}
