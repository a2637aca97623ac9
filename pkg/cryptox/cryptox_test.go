package cryptox_test

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/aussiebroadwan/passport/pkg/cryptox"
	"github.com/stretchr/testify/require"
)

func TestHasherRoundTrip(t *testing.T) {
	t.Parallel()

	h := cryptox.Hasher{Pepper: "pepper"}

	tests := []struct {
		name     string
		password string
	}{
		{"simple password", "password123"},
		{"empty password", ""},
		{"unicode password", "пароль🔒"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, err := h.Hash(tt.password)
			require.NoError(t, err)
			require.True(t, strings.HasPrefix(hash, "$argon2id$v=19$"))

			require.NoError(t, h.Verify(tt.password, hash))
			require.ErrorIs(t, h.Verify(tt.password+"x", hash), cryptox.ErrPasswordMismatch)
		})
	}
}

func TestHasherPepperMatters(t *testing.T) {
	t.Parallel()

	hash, err := cryptox.Hasher{Pepper: "a"}.Hash("secret")
	require.NoError(t, err)
	require.ErrorIs(t, cryptox.Hasher{Pepper: "b"}.Verify("secret", hash), cryptox.ErrPasswordMismatch)
}

func TestHasherRejectsMalformedHash(t *testing.T) {
	t.Parallel()

	require.Error(t, cryptox.Hasher{}.Verify("x", "$bcrypt$nope"))
	require.Error(t, cryptox.Hasher{}.Verify("x", "$argon2id$v=19$m=x$salt$hash"))
}

func TestOpaqueTokens(t *testing.T) {
	t.Parallel()

	a, fa, err := cryptox.NewOpaqueToken()
	require.NoError(t, err)
	b, _, err := cryptox.NewOpaqueToken()
	require.NoError(t, err)

	require.Len(t, a, 43)
	require.NotEqual(t, a, b)
	require.Equal(t, fa, cryptox.FingerprintToken(a))

	_, err = cryptox.GenerateToken(0)
	require.Error(t, err)
}

func TestLoadOrGenerateEd25519(t *testing.T) {
	t.Parallel()

	ephemeral, err := cryptox.LoadOrGenerateEd25519("")
	require.NoError(t, err)
	require.NotEmpty(t, ephemeral)

	path := filepath.Join(t.TempDir(), "keys", "signing.pem")
	first, err := cryptox.LoadOrGenerateEd25519(path)
	require.NoError(t, err)
	require.FileExists(t, path)

	// Second load reads the same key back
	second, err := cryptox.LoadOrGenerateEd25519(path)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestLoadOrGeneratePepper(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "secrets", "pepper")

	first, err := cryptox.LoadOrGeneratePepper(path)
	require.NoError(t, err)
	require.NotEmpty(t, first)

	second, err := cryptox.LoadOrGeneratePepper(path)
	require.NoError(t, err)
	require.Equal(t, first, second, "pepper is stable once written")
}
