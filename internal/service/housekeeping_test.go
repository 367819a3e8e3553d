package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/halikara/tokend/internal/store"
	"github.com/halikara/tokend/internal/store/memory"
)

func TestHousekeepingCleanup(t *testing.T) {
	t.Parallel()

	tokens := newTestTokenService(t)
	ctx := context.Background()

	live, err := tokens.CreateTokenPair(ctx, "alice")
	require.NoError(t, err)
	dead, err := tokens.CreateTokenPair(ctx, "alice")
	require.NoError(t, err)

	_, err = tokens.BindCSRF(ctx, live.RefreshJTI)
	require.NoError(t, err)
	deadCSRF, err := tokens.BindCSRF(ctx, dead.RefreshJTI)
	require.NoError(t, err)

	require.NoError(t, tokens.Store.RefreshTokens().Revoke(ctx, dead.RefreshJTI))

	hk := NewHousekeepingService(tokens.Store, nil,
		slog.New(slog.NewTextHandler(io.Discard, nil)), time.Hour)
	hk.Start()
	hk.Stop()

	// The revoked session's binding is gone, the live one survives, and
	// the refresh records themselves are untouched.
	_, err = tokens.Store.CsrfMappings().Get(ctx, dead.RefreshJTI)
	require.ErrorIs(t, err, store.ErrNotFound)

	ok, err := tokens.VerifyCSRF(ctx, dead.RefreshJTI, deadCSRF)
	require.NoError(t, err)
	require.False(t, ok)

	_, err = tokens.Store.CsrfMappings().Get(ctx, live.RefreshJTI)
	require.NoError(t, err)

	_, err = tokens.Store.RefreshTokens().GetByJTI(ctx, dead.RefreshJTI)
	require.NoError(t, err, "revoked records are kept for theft detection")
}

func TestHousekeepingDefaultInterval(t *testing.T) {
	t.Parallel()

	hk := NewHousekeepingService(memory.NewStore(), nil,
		slog.New(slog.NewTextHandler(io.Discard, nil)), 0)
	require.Equal(t, time.Hour, hk.Interval)
}
