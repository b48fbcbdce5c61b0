package session

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dgellow/release-watch/internal/cookie"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

func newTestService(t *testing.T) *TokenService {
	t.Helper()
	svc, err := NewTokenService(testKey, time.Hour)
	require.NoError(t, err)
	return svc
}

func TestNewTokenService_ShortKey(t *testing.T) {
	_, err := NewTokenService([]byte("short"), time.Hour)
	assert.Error(t, err)
}

func TestNewTokenService_DefaultTTL(t *testing.T) {
	svc, err := NewTokenService(testKey, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultTTL, svc.TTL())
}

func TestSignVerify(t *testing.T) {
	svc := newTestService(t)

	credential, err := svc.Sign("user-1")
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(credential, "."))

	claims, err := svc.Verify(credential)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, Issuer, claims.Issuer)
	assert.NotEmpty(t, claims.ID)
}

func TestSign_EmptyUserID(t *testing.T) {
	_, err := newTestService(t).Sign("")
	assert.Error(t, err)
}

func TestVerify_Rejects(t *testing.T) {
	svc := newTestService(t)
	valid, err := svc.Sign("user-1")
	require.NoError(t, err)

	other, err := NewTokenService([]byte("ffffffffffffffffffffffffffffffff"), time.Hour)
	require.NoError(t, err)
	foreign, err := other.Sign("user-1")
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		UserID:           "user-1",
		RegisteredClaims: jwt.RegisteredClaims{Issuer: Issuer, ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	wrongIssuer, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID:           "user-1",
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "someone-else", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString(testKey)
	require.NoError(t, err)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID:           "user-1",
		RegisteredClaims: jwt.RegisteredClaims{Issuer: Issuer},
	}).SignedString(testKey)
	require.NoError(t, err)

	tests := []struct {
		name       string
		credential string
	}{
		{"empty", ""},
		{"garbage", "not.a.jwt"},
		{"tampered", valid[:len(valid)-2] + "xx"},
		{"foreign key", foreign},
		{"alg none", none},
		{"wrong issuer", wrongIssuer},
		{"no expiry", noExpiry},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Verify(tt.credential)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidToken))
		})
	}
}

func TestVerify_Expired(t *testing.T) {
	svc := newTestService(t)
	issued := time.Now().Add(-2 * time.Hour)
	svc.now = func() time.Time { return issued }

	credential, err := svc.Sign("user-1")
	require.NoError(t, err)

	svc.now = time.Now
	_, err = svc.Verify(credential)
	require.Error(t, err)
	assert.True(t, errors.Is(err, jwt.ErrTokenExpired))
}

func TestCookie(t *testing.T) {
	svc := newTestService(t)
	c := svc.Cookie("cred")

	assert.Equal(t, cookie.SessionCookie, c.Name)
	assert.Equal(t, "cred", c.Value)
	assert.Equal(t, int(time.Hour.Seconds()), c.MaxAge)
	assert.True(t, c.HttpOnly)
}

func TestUserIDContext(t *testing.T) {
	_, ok := UserID(context.Background())
	assert.False(t, ok)

	id, ok := UserID(WithUserID(context.Background(), "user-1"))
	assert.True(t, ok)
	assert.Equal(t, "user-1", id)
}
