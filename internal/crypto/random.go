package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// nonceBytes is the entropy of OAuth state nonces.
const nonceBytes = 32

// GenerateSecureToken creates a cryptographically secure random token.
// The result is unpadded base64url, so it survives cookies and query strings untouched.
func GenerateSecureToken() (string, error) {
	b := make([]byte, nonceBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
