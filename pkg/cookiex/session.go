package cookiex

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"github.com/halikara/tokend/pkg/cryptox"
)

// DefaultSessionCookie is the cookie name used when none is configured.
const DefaultSessionCookie = "session_id"

// Sessions issues and verifies fingerprint-bound session cookies. The
// cookie value is `id|fingerprint|signature` and is entirely
// self-contained: no server-side session table.
type Sessions struct {
	Secret     []byte
	CookieName string
	TTL        time.Duration
}

func (s *Sessions) cookieName() string {
	if s.CookieName == "" {
		return DefaultSessionCookie
	}
	return s.CookieName
}

func (s *Sessions) sign(data string) string {
	mac := hmac.New(sha256.New, s.Secret)
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

// NewValue builds a session cookie value bound to the given fingerprint:
// a fresh random id, the fingerprint, and an HMAC over both.
func (s *Sessions) NewValue(fingerprint string) (string, error) {
	id, err := cryptox.GenerateToken(cryptox.TokenSize192)
	if err != nil {
		return "", err
	}
	data := id + "|" + fingerprint
	return data + "|" + s.sign(data), nil
}

// VerifyValue checks a cookie value against the fingerprint of the
// current request: structure first (exactly 3 pipe-separated parts),
// then the signature, then a constant-time fingerprint match. Any failure
// is false; it never panics on garbage input.
func (s *Sessions) VerifyValue(value, currentFingerprint string) bool {
	parts := strings.Split(value, "|")
	if len(parts) != 3 {
		return false
	}

	expected := s.sign(parts[0] + "|" + parts[1])
	if subtle.ConstantTimeCompare([]byte(expected), []byte(parts[2])) != 1 {
		return false
	}

	return subtle.ConstantTimeCompare([]byte(parts[1]), []byte(currentFingerprint)) == 1
}

// Create rotates the session: if the request carries an old session
// cookie it is expired first (anti-fixation), then a fresh
// fingerprint-bound cookie is set. Returns the new cookie value.
func (s *Sessions) Create(w http.ResponseWriter, r *http.Request) (string, error) {
	if old, err := r.Cookie(s.cookieName()); err == nil && old.Value != "" {
		http.SetCookie(w, &http.Cookie{
			Name:     s.cookieName(),
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			Secure:   true,
			HttpOnly: true,
			SameSite: http.SameSiteStrictMode,
		})
	}

	value, err := s.NewValue(RequestFingerprint(r))
	if err != nil {
		return "", err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName(),
		Value:    value,
		Path:     "/",
		MaxAge:   int(s.TTL.Seconds()),
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
	return value, nil
}

// Expire clears the session cookie.
func (s *Sessions) Expire(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName(),
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

// Verify checks the request's session cookie against the request's own
// fingerprint.
func (s *Sessions) Verify(r *http.Request) bool {
	c, err := r.Cookie(s.cookieName())
	if err != nil || c.Value == "" {
		return false
	}
	return s.VerifyValue(c.Value, RequestFingerprint(r))
}
