// Package cookiex implements the cookie-side security layer: fingerprint-
// bound session cookies and double-submit CSRF tokens. It holds no server
// state; everything it needs travels in the cookie itself.
package cookiex

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"strings"
)

const (
	// fingerprintUAPrefix caps how much of the User-Agent feeds the hash.
	// Browsers append noise past this point (plugin lists and the like)
	// that changes between requests from the same client.
	fingerprintUAPrefix = 100

	// fingerprintLength is the truncated hex length stored in the cookie.
	fingerprintLength = 32
)

// Fingerprint derives a stable client identifier from the request IP and
// User-Agent. Two requests from the same browser on the same network
// produce the same value; a stolen cookie presented from elsewhere does
// not.
func Fingerprint(ip, userAgent string) string {
	if len(userAgent) > fingerprintUAPrefix {
		userAgent = userAgent[:fingerprintUAPrefix]
	}
	sum := sha256.Sum256([]byte(ip + "|" + userAgent))
	return hex.EncodeToString(sum[:])[:fingerprintLength]
}

// RequestFingerprint computes the fingerprint for an incoming request,
// preferring the first X-Forwarded-For hop when a proxy sits in front.
func RequestFingerprint(r *http.Request) string {
	return Fingerprint(clientIP(r), r.UserAgent())
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			fwd = fwd[:i]
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
