package crypto

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// StateSigner issues OAuth state values that carry their own integrity
// and age: nonce.timestamp.signature. Nothing is stored server-side.
type StateSigner struct {
	signingKey []byte
	ttl        time.Duration
	now        func() time.Time
}

// NewStateSigner creates a state signer. Values older than ttl are rejected.
func NewStateSigner(signingKey []byte, ttl time.Duration) *StateSigner {
	return &StateSigner{
		signingKey: signingKey,
		ttl:        ttl,
		now:        time.Now,
	}
}

// Generate creates a new state value
func (s *StateSigner) Generate() (string, error) {
	nonce, err := GenerateSecureToken()
	if err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	data := nonce + "." + strconv.FormatInt(s.now().Unix(), 10)
	return data + "." + SignData(data, s.signingKey), nil
}

// Validate checks the signature and age of a state value
func (s *StateSigner) Validate(state string) bool {
	parts := strings.Split(state, ".")
	if len(parts) != 3 || parts[0] == "" {
		return false
	}

	issued, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return false
	}
	age := s.now().Sub(time.Unix(issued, 0))
	if age < -time.Minute || age > s.ttl {
		return false
	}

	return ValidateSignedData(parts[0]+"."+parts[1], parts[2], s.signingKey)
}
