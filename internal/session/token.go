// Package session issues and verifies the signed credential that marks a
// browser as logged in.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dgellow/release-watch/internal/cookie"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Issuer is the iss claim of every session credential
const Issuer = "release-watch"

// DefaultTTL is used when NewTokenService is given a non-positive ttl
const DefaultTTL = 30 * 24 * time.Hour

// ErrInvalidToken is returned for any credential that fails verification
var ErrInvalidToken = errors.New("invalid session token")

// Claims are the JWT claims of a session credential
type Claims struct {
	UserID string `json:"id"`
	jwt.RegisteredClaims
}

// Verifier checks a session credential
type Verifier interface {
	Verify(credential string) (*Claims, error)
}

// Signer mints session credentials and the cookie carrying them
type Signer interface {
	Sign(userID string) (string, error)
	Cookie(credential string) *http.Cookie
}

// TokenService signs and verifies HS256 session credentials
type TokenService struct {
	signingKey []byte
	ttl        time.Duration
	now        func() time.Time
}

// NewTokenService creates a token service. The key must be at least 32 bytes.
func NewTokenService(signingKey []byte, ttl time.Duration) (*TokenService, error) {
	if len(signingKey) < 32 {
		return nil, fmt.Errorf("signing key must be at least 32 bytes, got %d", len(signingKey))
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &TokenService{
		signingKey: signingKey,
		ttl:        ttl,
		now:        time.Now,
	}, nil
}

// TTL returns the lifetime of issued credentials
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// Sign produces a credential for userID
func (s *TokenService) Sign(userID string) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("user id is required")
	}
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			ID:        uuid.NewString(),
		},
	})

	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", fmt.Errorf("signing session token: %w", err)
	}
	return signed, nil
}

// Verify parses credential and returns its claims
func (s *TokenService) Verify(credential string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(credential, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("%w: missing user id", ErrInvalidToken)
	}
	return claims, nil
}

// Cookie wraps a credential in the session cookie
func (s *TokenService) Cookie(credential string) *http.Cookie {
	return cookie.Session(credential, s.ttl)
}

type contextKey struct{}

// WithUserID returns a context carrying the authenticated user id
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, contextKey{}, userID)
}

// UserID returns the authenticated user id, if any
func UserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(contextKey{}).(string)
	return id, ok && id != ""
}
