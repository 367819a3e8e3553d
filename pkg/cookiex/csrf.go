package cookiex

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/halikara/tokend/pkg/cryptox"
)

// Default names for the double-submit pair.
const (
	DefaultCSRFCookie = "csrf_token"
	DefaultCSRFHeader = "X-CSRF-Token"
)

// CSRF implements the double-submit cookie pattern: a random token lives
// in a cookie that client-side script can read and must echo back in a
// request header. A cross-site attacker can trigger the request but
// cannot read the cookie, so the two values never match.
type CSRF struct {
	CookieName string
	HeaderName string
	TTL        time.Duration
}

func (c *CSRF) cookieName() string {
	if c.CookieName == "" {
		return DefaultCSRFCookie
	}
	return c.CookieName
}

func (c *CSRF) headerName() string {
	if c.HeaderName == "" {
		return DefaultCSRFHeader
	}
	return c.HeaderName
}

// SetCookie issues a fresh CSRF token. HttpOnly is deliberately false —
// the whole point is that the frontend reads it and sends it back as a
// header. SameSite=Lax keeps it usable across top-level navigation.
func (c *CSRF) SetCookie(w http.ResponseWriter) (string, error) {
	token, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return "", err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     c.cookieName(),
		Value:    token,
		Path:     "/",
		MaxAge:   int(c.TTL.Seconds()),
		Secure:   true,
		HttpOnly: false,
		SameSite: http.SameSiteLaxMode,
	})
	return token, nil
}

// SetCookieValue sets an already-generated token, for callers that also
// persist the value server-side (jti-bound CSRF mappings).
func (c *CSRF) SetCookieValue(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.cookieName(),
		Value:    token,
		Path:     "/",
		MaxAge:   int(c.TTL.Seconds()),
		Secure:   true,
		HttpOnly: false,
		SameSite: http.SameSiteLaxMode,
	})
}

// HeaderToken returns the token the client echoed in the request header,
// or "" when absent.
func (c *CSRF) HeaderToken(r *http.Request) string {
	return r.Header.Get(c.headerName())
}

// Expire clears the CSRF cookie.
func (c *CSRF) Expire(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.cookieName(),
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Secure:   true,
		HttpOnly: false,
		SameSite: http.SameSiteLaxMode,
	})
}

// VerifyRequest reads the cookie and header pair off the request and
// compares them.
func (c *CSRF) VerifyRequest(r *http.Request) bool {
	cookie, err := r.Cookie(c.cookieName())
	if err != nil {
		return false
	}
	return VerifyTokens(cookie.Value, r.Header.Get(c.headerName()))
}

// VerifyTokens reports whether the cookie and header values are both
// present and byte-equal, compared in constant time. Either side missing
// is a failure regardless of the other.
func VerifyTokens(cookieToken, headerToken string) bool {
	if cookieToken == "" || headerToken == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(cookieToken), []byte(headerToken)) == 1
}
