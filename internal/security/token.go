package security

import (
	"crypto/hmac"
	"crypto/rand"
	"encoding/hex"
	"errors"
)

var ErrInvalidToken = errors.New("invalid CSRF token")

const tokenBytes = 32

// TokenManager issues and checks double-submit CSRF tokens. The token lives
// in a cookie readable by the page, which echoes it back in a header.
type TokenManager struct{}

func NewTokenManager() *TokenManager {
	return &TokenManager{}
}

// Generate returns a random 256-bit token as 64 hex characters.
func (tm *TokenManager) Generate() (string, error) {
	randomBytes := make([]byte, tokenBytes)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(randomBytes), nil
}

// Verify compares the cookie token with the submitted one in constant time.
func (tm *TokenManager) Verify(cookieToken, submitted string) error {
	if cookieToken == "" || submitted == "" {
		return ErrInvalidToken
	}
	if !hmac.Equal([]byte(cookieToken), []byte(submitted)) {
		return ErrInvalidToken
	}
	return nil
}

// WellFormed reports whether token looks like one Generate produced.
func (tm *TokenManager) WellFormed(token string) bool {
	if len(token) != tokenBytes*2 {
		return false
	}
	_, err := hex.DecodeString(token)
	return err == nil
}
