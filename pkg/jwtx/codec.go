package jwtx

import (
	"encoding/base64"
	"fmt"
)

// Encode returns the URL-safe base64 form of b with the trailing '='
// padding stripped, per RFC 7515 compact serialization.
func Encode(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

// Decode reverses Encode. Padding is implied by length, so the input must
// be a bare base64url string; anything else fails with ErrDecode.
func Decode(s string) ([]byte, error) {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return b, nil
}
