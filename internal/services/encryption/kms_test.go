package encryption_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/optout/internal/services/encryption"
)

func TestService(t *testing.T) {
	t.Run("repeated construction returns the same instance", func(t *testing.T) {
		// Callers in different init paths all pass the key ID; the service
		// is a process singleton so they end up with one instance.
		a, err := encryption.NewService("")
		require.NoError(t, err)
		b, err := encryption.NewService("")
		require.NoError(t, err)
		assert.Same(t, a, b)
	})

	t.Run("dev mode round trip", func(t *testing.T) {
		svc, err := encryption.NewService("")
		require.NoError(t, err)

		ciphertext, err := svc.Encrypt("refresh-token-value")
		require.NoError(t, err)
		assert.True(t, encryption.IsEncrypted(ciphertext))
		assert.NotEqual(t, "refresh-token-value", ciphertext)

		plaintext, err := svc.Decrypt(ciphertext)
		require.NoError(t, err)
		assert.Equal(t, "refresh-token-value", plaintext)
	})

	t.Run("unprefixed values pass through decrypt", func(t *testing.T) {
		svc, err := encryption.NewService("")
		require.NoError(t, err)

		plaintext, err := svc.Decrypt("legacy-plaintext-token")
		require.NoError(t, err)
		assert.Equal(t, "legacy-plaintext-token", plaintext)
	})

	t.Run("dev mode cannot decrypt kms ciphertext", func(t *testing.T) {
		svc, err := encryption.NewService("")
		require.NoError(t, err)

		_, err = svc.Decrypt("kms:AAAA")
		assert.Error(t, err)
	})

	t.Run("IsEncrypted recognizes both prefixes", func(t *testing.T) {
		assert.True(t, encryption.IsEncrypted("kms:abc"))
		assert.True(t, encryption.IsEncrypted("dev:abc"))
		assert.False(t, encryption.IsEncrypted("plain-value"))
	})
}
