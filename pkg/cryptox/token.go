package cryptox

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// Token size constants (in bytes before encoding).
const (
	// TokenSize128 provides 128 bits of entropy. Fine for short-lived
	// values like session identifiers.
	TokenSize128 = 16
	// TokenSize192 matches the session-id length the cookie layer uses.
	TokenSize192 = 24
	// TokenSize256 provides 256 bits of entropy. Use this for CSRF tokens
	// and anything an attacker would want to guess offline.
	TokenSize256 = 32
)

// GenerateToken creates a cryptographically secure random token of the
// given byte length, returned base64url-encoded without padding.
func GenerateToken(size int) (string, error) {
	if size <= 0 {
		return "", fmt.Errorf("cryptox: token size must be positive, got %d", size)
	}

	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("cryptox: generate random token: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// MustGenerateToken is like GenerateToken but panics on error. Only for
// initialization paths where failure is unrecoverable anyway.
func MustGenerateToken(size int) string {
	token, err := GenerateToken(size)
	if err != nil {
		panic(err)
	}
	return token
}

// HashToken returns the keyed HMAC-SHA256 fingerprint of a token under a
// server-side salt, hex-encoded. This is what goes in the database instead
// of the raw token: lookup still works, but a dumped table gives an
// attacker nothing replayable. The salt must be distinct from the JWT
// signing secret.
func HashToken(token string, salt []byte) string {
	mac := hmac.New(sha256.New, salt)
	mac.Write([]byte(token))
	return hex.EncodeToString(mac.Sum(nil))
}
