package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateTokenLengthAndUniqueness(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 32; i++ {
		token, err := GenerateToken(24)
		require.NoError(t, err)
		require.NotEmpty(t, token)
		require.False(t, strings.ContainsAny(token, "+/="), "token must be URL-safe")

		_, dup := seen[token]
		require.False(t, dup, "tokens must not repeat")
		seen[token] = struct{}{}
	}
}

func TestGenerateTokenDefaultsLength(t *testing.T) {
	token, err := GenerateToken(0)
	require.NoError(t, err)
	require.NotEmpty(t, token)
}

func TestHashTokenIsDeterministic(t *testing.T) {
	first := HashToken("opaque-value")
	second := HashToken("opaque-value")
	require.Equal(t, first, second)
	require.Len(t, first, 64)

	require.NotEqual(t, first, HashToken("opaque-value2"))
}

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("longenough1")
	require.NoError(t, err)
	require.NotEqual(t, "longenough1", hash)

	require.True(t, VerifyPassword(hash, "longenough1"))
	require.False(t, VerifyPassword(hash, "wrong-password"))
	require.False(t, VerifyPassword("not-a-hash", "longenough1"))
}
