package crypto

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// Purposes for keys derived from the session secret.
const (
	PurposeSessionToken = "release-watch session token v1"
	PurposeOAuthState   = "release-watch oauth state v1"
)

// DeriveKey expands a master secret into a 32-byte subkey bound to purpose,
// so one configured secret never signs two kinds of values.
func DeriveKey(secret []byte, purpose string) ([]byte, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("secret is required")
	}
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(purpose)), key); err != nil {
		return nil, fmt.Errorf("deriving %q key: %w", purpose, err)
	}
	return key, nil
}
