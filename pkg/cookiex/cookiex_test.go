package cookiex

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newRequest(ip, userAgent string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = ip + ":54321"
	r.Header.Set("User-Agent", userAgent)
	return r
}

func TestFingerprint(t *testing.T) {
	t.Parallel()

	t.Run("stable for same client", func(t *testing.T) {
		require.Equal(t, Fingerprint("1.2.3.4", "Mozilla/5.0"), Fingerprint("1.2.3.4", "Mozilla/5.0"))
	})

	t.Run("changes with ip or agent", func(t *testing.T) {
		base := Fingerprint("1.2.3.4", "Mozilla/5.0")
		require.NotEqual(t, base, Fingerprint("5.6.7.8", "Mozilla/5.0"))
		require.NotEqual(t, base, Fingerprint("1.2.3.4", "curl/8.0"))
	})

	t.Run("ignores user agent noise past the prefix", func(t *testing.T) {
		long := strings.Repeat("a", 100)
		require.Equal(t, Fingerprint("1.2.3.4", long), Fingerprint("1.2.3.4", long+"trailing junk"))
	})

	t.Run("fixed length hex", func(t *testing.T) {
		require.Len(t, Fingerprint("1.2.3.4", "ua"), 32)
	})
}

func TestRequestFingerprintPrefersForwardedFor(t *testing.T) {
	t.Parallel()

	r := newRequest("10.0.0.1", "Mozilla/5.0")
	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")

	require.Equal(t, Fingerprint("203.0.113.9", "Mozilla/5.0"), RequestFingerprint(r))
}

func TestSessionRoundTrip(t *testing.T) {
	t.Parallel()

	s := &Sessions{Secret: []byte("cookie-secret"), TTL: 30 * time.Minute}
	fp := Fingerprint("1.2.3.4", "Mozilla/5.0")

	value, err := s.NewValue(fp)
	require.NoError(t, err)
	require.Len(t, strings.Split(value, "|"), 3)
	require.True(t, s.VerifyValue(value, fp))
}

func TestSessionRejectsWrongFingerprint(t *testing.T) {
	t.Parallel()

	s := &Sessions{Secret: []byte("cookie-secret"), TTL: 30 * time.Minute}
	value, err := s.NewValue(Fingerprint("1.2.3.4", "Mozilla/5.0"))
	require.NoError(t, err)

	// Same cookie presented from a different network or browser.
	require.False(t, s.VerifyValue(value, Fingerprint("5.6.7.8", "Mozilla/5.0")))
	require.False(t, s.VerifyValue(value, Fingerprint("1.2.3.4", "curl/8.0")))
}

func TestSessionRejectsTampering(t *testing.T) {
	t.Parallel()

	s := &Sessions{Secret: []byte("cookie-secret"), TTL: 30 * time.Minute}
	fp := Fingerprint("1.2.3.4", "Mozilla/5.0")
	value, err := s.NewValue(fp)
	require.NoError(t, err)

	parts := strings.Split(value, "|")

	t.Run("wrong structure", func(t *testing.T) {
		require.False(t, s.VerifyValue("", fp))
		require.False(t, s.VerifyValue("a|b", fp))
		require.False(t, s.VerifyValue(value+"|extra", fp))
	})

	t.Run("forged signature", func(t *testing.T) {
		forged := parts[0] + "|" + parts[1] + "|" + strings.Repeat("0", len(parts[2]))
		require.False(t, s.VerifyValue(forged, fp))
	})

	t.Run("swapped session id", func(t *testing.T) {
		swapped := "other-session-id|" + parts[1] + "|" + parts[2]
		require.False(t, s.VerifyValue(swapped, fp))
	})

	t.Run("different secret", func(t *testing.T) {
		other := &Sessions{Secret: []byte("not-the-secret"), TTL: 30 * time.Minute}
		require.False(t, other.VerifyValue(value, fp))
	})
}

func TestSessionCreateRotatesOldCookie(t *testing.T) {
	t.Parallel()

	s := &Sessions{Secret: []byte("cookie-secret"), TTL: 30 * time.Minute}

	r := newRequest("1.2.3.4", "Mozilla/5.0")
	old, err := s.NewValue(RequestFingerprint(r))
	require.NoError(t, err)
	r.AddCookie(&http.Cookie{Name: DefaultSessionCookie, Value: old})

	w := httptest.NewRecorder()
	value, err := s.Create(w, r)
	require.NoError(t, err)
	require.NotEqual(t, old, value)

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 2)

	// First Set-Cookie expires the old session, second installs the new one.
	require.Equal(t, -1, cookies[0].MaxAge)
	require.Empty(t, cookies[0].Value)
	require.Equal(t, value, cookies[1].Value)
	require.True(t, cookies[1].HttpOnly)
	require.True(t, cookies[1].Secure)
	require.Equal(t, http.SameSiteStrictMode, cookies[1].SameSite)
}

func TestSessionVerifyFromRequest(t *testing.T) {
	t.Parallel()

	s := &Sessions{Secret: []byte("cookie-secret"), TTL: 30 * time.Minute}

	issue := newRequest("1.2.3.4", "Mozilla/5.0")
	w := httptest.NewRecorder()
	value, err := s.Create(w, issue)
	require.NoError(t, err)

	t.Run("same client verifies", func(t *testing.T) {
		r := newRequest("1.2.3.4", "Mozilla/5.0")
		r.AddCookie(&http.Cookie{Name: DefaultSessionCookie, Value: value})
		require.True(t, s.Verify(r))
	})

	t.Run("different client fails", func(t *testing.T) {
		r := newRequest("9.9.9.9", "Mozilla/5.0")
		r.AddCookie(&http.Cookie{Name: DefaultSessionCookie, Value: value})
		require.False(t, s.Verify(r))
	})

	t.Run("missing cookie fails", func(t *testing.T) {
		require.False(t, s.Verify(newRequest("1.2.3.4", "Mozilla/5.0")))
	})
}

func TestVerifyTokens(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		cookie string
		header string
		want   bool
	}{
		{"both present and equal", "tok", "tok", true},
		{"mismatch", "tok", "other", false},
		{"missing header", "tok", "", false},
		{"missing cookie", "", "tok", false},
		{"both missing", "", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, VerifyTokens(tc.cookie, tc.header))
		})
	}
}

func TestCSRFRequestFlow(t *testing.T) {
	t.Parallel()

	c := &CSRF{TTL: 30 * time.Minute}

	w := httptest.NewRecorder()
	token, err := c.SetCookie(w)
	require.NoError(t, err)

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	require.Equal(t, token, cookies[0].Value)
	require.False(t, cookies[0].HttpOnly, "frontend script must be able to read the CSRF cookie")
	require.Equal(t, http.SameSiteLaxMode, cookies[0].SameSite)

	t.Run("echoed header passes", func(t *testing.T) {
		r := newRequest("1.2.3.4", "Mozilla/5.0")
		r.AddCookie(&http.Cookie{Name: DefaultCSRFCookie, Value: token})
		r.Header.Set(DefaultCSRFHeader, token)
		require.True(t, c.VerifyRequest(r))
	})

	t.Run("missing header fails", func(t *testing.T) {
		r := newRequest("1.2.3.4", "Mozilla/5.0")
		r.AddCookie(&http.Cookie{Name: DefaultCSRFCookie, Value: token})
		require.False(t, c.VerifyRequest(r))
	})
}
