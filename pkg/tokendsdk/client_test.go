package tokendsdk

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/halikara/tokend/internal/httpapi"
	"github.com/halikara/tokend/internal/service"
	"github.com/halikara/tokend/internal/store/memory"
	"github.com/halikara/tokend/pkg/cookiex"
	"github.com/halikara/tokend/pkg/httpx"
)

// newTestServer runs the real API over TLS so the Secure cookies make it
// into the client's jar.
func newTestServer(t *testing.T) (*httptest.Server, *Client) {
	t.Helper()

	st := memory.NewStore()
	router := httpapi.NewRouter(
		&service.TokenService{
			Store:       st,
			Secret:      []byte("test-signing-secret"),
			RefreshSalt: []byte("test-refresh-salt"),
			Issuer:      "tokend-test",
			Audience:    "tokend-clients",
			AccessTTL:   15 * time.Minute,
			RefreshTTL:  24 * time.Hour,
		},
		&service.UserService{Store: st},
		st,
		&cookiex.Sessions{Secret: []byte("test-session-secret"), TTL: time.Hour},
		&cookiex.CSRF{TTL: time.Hour},
		httpx.NewLoginLimiter(60, 10),
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)

	srv := httptest.NewTLSServer(router)
	t.Cleanup(srv.Close)

	c, err := NewClient(srv.URL)
	require.NoError(t, err)
	jar := c.HTTPClient.Jar
	c.HTTPClient = srv.Client()
	c.HTTPClient.Jar = jar

	return srv, c
}

func TestClientLifecycle(t *testing.T) {
	t.Parallel()

	_, c := newTestServer(t)
	ctx := context.Background()

	require.NoError(t, c.Livez(ctx))
	require.NoError(t, c.Register(ctx, "alice", "hunter2hunter2"))

	sess, err := c.Login(ctx, "alice", "hunter2hunter2")
	require.NoError(t, err)

	t.Run("profile", func(t *testing.T) {
		profile, err := sess.Profile(ctx)
		require.NoError(t, err)
		require.Equal(t, "alice", profile["username"])
	})

	t.Run("explicit refresh rotates the pair", func(t *testing.T) {
		before := sess.refreshToken
		require.NoError(t, sess.Refresh(ctx))
		require.NotEqual(t, before, sess.refreshToken)

		profile, err := sess.Profile(ctx)
		require.NoError(t, err)
		require.Equal(t, "alice", profile["username"])
	})

	t.Run("logout kills the session", func(t *testing.T) {
		require.NoError(t, sess.Logout(ctx))
		err := sess.Refresh(ctx)

		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
	})
}

func TestClientErrors(t *testing.T) {
	t.Parallel()

	_, c := newTestServer(t)
	ctx := context.Background()

	t.Run("bad credentials", func(t *testing.T) {
		require.NoError(t, c.Register(ctx, "bob", "hunter2hunter2"))

		_, err := c.Login(ctx, "bob", "wrong")
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		require.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
		require.Equal(t, "invalid credentials", apiErr.Message)
	})

	t.Run("duplicate registration", func(t *testing.T) {
		err := c.Register(ctx, "bob", "other")
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		require.Equal(t, http.StatusConflict, apiErr.StatusCode)
	})
}

func TestAccessTokenAutoRefresh(t *testing.T) {
	t.Parallel()

	_, c := newTestServer(t)
	ctx := context.Background()

	require.NoError(t, c.Register(ctx, "carol", "hunter2hunter2"))
	sess, err := c.Login(ctx, "carol", "hunter2hunter2")
	require.NoError(t, err)

	// Force the expiry buffer into the past; the next AccessToken call
	// must rotate instead of returning the stale token.
	sess.mu.Lock()
	stale := sess.accessToken
	sess.expiresAt = time.Now().Add(-time.Second)
	sess.mu.Unlock()

	token, err := sess.AccessToken(ctx)
	require.NoError(t, err)
	require.NotEqual(t, stale, token)
}
