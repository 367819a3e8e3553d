package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/halikara/tokend/internal/domain"
	"github.com/halikara/tokend/internal/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	mr := miniredis.RunT(t)
	s := NewStoreWithClient(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRefreshTokensRepo(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Now().Unix()
	rec := domain.RefreshTokenRecord{
		JTI:       "jti-1",
		Username:  "alice",
		TokenHash: "hash-1",
		CreatedAt: now,
		ExpiresAt: now + 3600,
	}
	require.NoError(t, s.RefreshTokens().Insert(ctx, rec))

	got, err := s.RefreshTokens().GetByJTI(ctx, "jti-1")
	require.NoError(t, err)
	require.Equal(t, rec, got)

	t.Run("duplicate jti", func(t *testing.T) {
		require.ErrorIs(t, s.RefreshTokens().Insert(ctx, rec), store.ErrAlreadyExists)
	})

	t.Run("unknown jti", func(t *testing.T) {
		_, err := s.RefreshTokens().GetByJTI(ctx, "missing")
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("mark rotated wins once", func(t *testing.T) {
		won, err := s.RefreshTokens().MarkRotated(ctx, "jti-1", "hash-1")
		require.NoError(t, err)
		require.True(t, won)

		won, err = s.RefreshTokens().MarkRotated(ctx, "jti-1", "hash-1")
		require.NoError(t, err)
		require.False(t, won)
	})

	t.Run("mark rotated rejects wrong hash", func(t *testing.T) {
		rec2 := rec
		rec2.JTI = "jti-2"
		require.NoError(t, s.RefreshTokens().Insert(ctx, rec2))

		won, err := s.RefreshTokens().MarkRotated(ctx, "jti-2", "wrong")
		require.NoError(t, err)
		require.False(t, won)
	})

	t.Run("mark rotated on absent record", func(t *testing.T) {
		won, err := s.RefreshTokens().MarkRotated(ctx, "never-issued", "hash")
		require.NoError(t, err)
		require.False(t, won)
	})

	t.Run("revoke all for user", func(t *testing.T) {
		rec3 := rec
		rec3.JTI = "jti-3"
		require.NoError(t, s.RefreshTokens().Insert(ctx, rec3))

		require.NoError(t, s.RefreshTokens().RevokeAllForUser(ctx, "alice"))

		for _, jti := range []string{"jti-2", "jti-3"} {
			got, err := s.RefreshTokens().GetByJTI(ctx, jti)
			require.NoError(t, err)
			require.True(t, got.Revoked, "jti %s should be revoked", jti)
		}
	})
}

func TestMarkRotatedConcurrent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Now().Unix()
	require.NoError(t, s.RefreshTokens().Insert(ctx, domain.RefreshTokenRecord{
		JTI: "contested", Username: "alice", TokenHash: "h", CreatedAt: now, ExpiresAt: now + 3600,
	}))

	const workers = 16
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			won, err := s.RefreshTokens().MarkRotated(ctx, "contested", "h")
			require.NoError(t, err)
			if won {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, wins)
}

func TestCsrfMappingsRepo(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Now().Unix()
	require.NoError(t, s.RefreshTokens().Insert(ctx, domain.RefreshTokenRecord{
		JTI: "live", Username: "alice", TokenHash: "h", CreatedAt: now, ExpiresAt: now + 3600,
	}))
	require.NoError(t, s.RefreshTokens().Insert(ctx, domain.RefreshTokenRecord{
		JTI: "dead", Username: "alice", TokenHash: "h", CreatedAt: now, ExpiresAt: now + 3600,
	}))

	require.NoError(t, s.CsrfMappings().Put(ctx, "live", "token-a"))
	require.NoError(t, s.CsrfMappings().Put(ctx, "dead", "token-b"))
	require.NoError(t, s.CsrfMappings().Put(ctx, "gone", "token-c")) // no backing record

	t.Run("put replaces wholesale", func(t *testing.T) {
		require.NoError(t, s.CsrfMappings().Put(ctx, "live", "token-a2"))
		got, err := s.CsrfMappings().Get(ctx, "live")
		require.NoError(t, err)
		require.Equal(t, "token-a2", got)
	})

	t.Run("purge drops only orphans", func(t *testing.T) {
		require.NoError(t, s.RefreshTokens().Revoke(ctx, "dead"))

		n, err := s.CsrfMappings().PurgeOrphaned(ctx)
		require.NoError(t, err)
		require.EqualValues(t, 2, n)

		_, err = s.CsrfMappings().Get(ctx, "dead")
		require.ErrorIs(t, err, store.ErrNotFound)
		_, err = s.CsrfMappings().Get(ctx, "gone")
		require.ErrorIs(t, err, store.ErrNotFound)

		got, err := s.CsrfMappings().Get(ctx, "live")
		require.NoError(t, err)
		require.Equal(t, "token-a2", got)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, s.CsrfMappings().Delete(ctx, "live"))
		_, err := s.CsrfMappings().Get(ctx, "live")
		require.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestUsersRepo(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u := domain.User{Username: "alice", PasswordHash: "hash", CreatedAt: 100}
	require.NoError(t, s.Users().Create(ctx, u))

	got, err := s.Users().GetByUsername(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, u, got)

	require.ErrorIs(t, s.Users().Create(ctx, u), store.ErrAlreadyExists)

	_, err = s.Users().GetByUsername(ctx, "nobody")
	require.ErrorIs(t, err, store.ErrNotFound)
}
