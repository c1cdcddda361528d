package auth_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/skingford/sso-web/internal/auth"
)

func TestHashSecretWithCost(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		secret    string
		wantError bool
	}{
		{name: "valid_secret", secret: "my-super-secure-client-secret-12345"},
		{name: "short_secret", secret: "short"},
		{name: "empty_secret", secret: "", wantError: true},
		{name: "exceeds_bcrypt_72_byte_limit", secret: strings.Repeat("a", 200), wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			hash, err := auth.HashSecretWithCost(tt.secret, bcrypt.MinCost)
			if tt.wantError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotEqual(t, tt.secret, hash)
			assert.NoError(t, auth.VerifySecret(hash, tt.secret))
		})
	}
}

func TestHashSecret_UsesConfiguredCost(t *testing.T) {
	hash, err := auth.HashSecret("demo-secret-1")
	require.NoError(t, err)

	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	assert.Equal(t, auth.BcryptCost, cost)
}

func TestVerifySecret(t *testing.T) {
	t.Parallel()
	hash := mustHash(t, "correct-secret")

	tests := []struct {
		name    string
		hash    string
		secret  string
		wantErr bool
	}{
		{name: "match", hash: hash, secret: "correct-secret"},
		{name: "mismatch", hash: hash, secret: "wrong-secret", wantErr: true},
		{name: "case_sensitive", hash: hash, secret: "CORRECT-SECRET", wantErr: true},
		{name: "empty_secret", hash: hash, secret: "", wantErr: true},
		{name: "empty_hash", hash: "", secret: "correct-secret", wantErr: true},
		{name: "not_a_bcrypt_hash", hash: "plaintext", secret: "plaintext", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := auth.VerifySecret(tt.hash, tt.secret)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRandomHex(t *testing.T) {
	code, err := auth.RandomHex(nil, auth.AuthorizationCodeBytes)
	require.NoError(t, err)
	assert.Len(t, code, 64)
	assert.Regexp(t, "^[0-9a-f]{64}$", code)

	other, err := auth.RandomHex(nil, auth.AuthorizationCodeBytes)
	require.NoError(t, err)
	assert.NotEqual(t, code, other)

	_, err = auth.RandomHex(bytes.NewReader([]byte{1, 2}), auth.AuthorizationCodeBytes)
	assert.Error(t, err, "short random source must fail")
}

func TestRandomDigits(t *testing.T) {
	for i := 0; i < 50; i++ {
		code, err := auth.RandomDigits(nil, auth.ConfirmationCodeDigits)
		require.NoError(t, err)
		assert.Regexp(t, "^[0-9]{6}$", code)
	}
}
