package cryptox

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateToken(t *testing.T) {
	t.Parallel()

	t.Run("rejects non-positive sizes", func(t *testing.T) {
		_, err := GenerateToken(0)
		require.Error(t, err)
		_, err = GenerateToken(-1)
		require.Error(t, err)
	})

	t.Run("url safe and unpadded", func(t *testing.T) {
		tok, err := GenerateToken(TokenSize256)
		require.NoError(t, err)
		require.Len(t, tok, 43) // 32 bytes -> 43 base64url chars
		require.NotContains(t, tok, "=")
		require.NotContains(t, tok, "+")
		require.NotContains(t, tok, "/")
	})

	t.Run("unique", func(t *testing.T) {
		seen := map[string]bool{}
		for i := 0; i < 100; i++ {
			tok := MustGenerateToken(TokenSize128)
			require.False(t, seen[tok])
			seen[tok] = true
		}
	})
}

func TestHashToken(t *testing.T) {
	t.Parallel()

	salt := []byte("server-side-salt")

	h1 := HashToken("some-refresh-token", salt)
	h2 := HashToken("some-refresh-token", salt)
	require.Equal(t, h1, h2)
	require.Len(t, h1, 64) // hex sha256

	require.NotEqual(t, h1, HashToken("another-token", salt))
	require.NotEqual(t, h1, HashToken("some-refresh-token", []byte("other-salt")))
}

func TestPasswordHashRoundTrip(t *testing.T) {
	t.Parallel()

	hash, err := HashPassword("hunter2!")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(hash, "$argon2id$v=19$"))

	require.NoError(t, VerifyPassword("hunter2!", hash))
	require.ErrorIs(t, VerifyPassword("hunter3!", hash), ErrPasswordMismatch)
}

func TestPasswordHashesAreSalted(t *testing.T) {
	t.Parallel()

	h1, err := HashPassword("same-password")
	require.NoError(t, err)
	h2, err := HashPassword("same-password")
	require.NoError(t, err)
	require.NotEqual(t, h1, h2)
}

func TestVerifyPasswordRejectsGarbageHash(t *testing.T) {
	t.Parallel()

	for _, bad := range []string{"", "plainhash", "$bcrypt$whatever", "$argon2id$v=19$m=1,t=1,p=1$!!$!!"} {
		require.Error(t, VerifyPassword("pw", bad))
	}
}
