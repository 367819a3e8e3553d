package jwtx

import (
	"crypto/hmac"
	"crypto/sha256"
)

// Sign computes the HMAC-SHA256 of message under secret. It knows nothing
// about tokens; both inputs are opaque bytes.
func Sign(message, secret []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write(message)
	return mac.Sum(nil)
}

// Verify recomputes the MAC and compares in constant time. Never compare
// signatures with bytes.Equal; a short-circuiting compare leaks how many
// leading bytes the attacker got right.
func Verify(message, signature, secret []byte) bool {
	return hmac.Equal(Sign(message, secret), signature)
}
