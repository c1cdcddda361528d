package token_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skingford/sso-web/internal/token"
)

// RFC 7636 appendix B.
const (
	rfcVerifier  = "dBjftJeZ4CVP-mJ92K9qrSjqGkZMh3F7lKp8pFQZ7Dc"
	rfcChallenge = "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"
)

func TestGenerateCodeVerifier(t *testing.T) {
	verifier, err := token.GenerateCodeVerifier()
	require.NoError(t, err)
	assert.NoError(t, token.ValidateCodeVerifier(verifier))

	other, err := token.GenerateCodeVerifier()
	require.NoError(t, err)
	assert.NotEqual(t, verifier, other)
}

func TestComputeCodeChallenge(t *testing.T) {
	tests := []struct {
		name     string
		verifier string
		method   string
		want     string
		wantErr  error
	}{
		{name: "s256_rfc_vector", verifier: rfcVerifier, method: "S256", want: rfcChallenge},
		{name: "plain", verifier: rfcVerifier, method: "plain", want: rfcVerifier},
		{name: "unknown_method", verifier: rfcVerifier, method: "S512", wantErr: token.ErrUnsupportedChallengeMethod},
		{name: "short_verifier", verifier: "abc", method: "S256", wantErr: token.ErrInvalidCodeVerifier},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := token.ComputeCodeChallenge(tt.verifier, tt.method)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestVerifyCodeChallenge(t *testing.T) {
	tests := []struct {
		name      string
		verifier  string
		challenge string
		method    string
		want      bool
	}{
		{name: "s256_match", verifier: rfcVerifier, challenge: rfcChallenge, method: "S256", want: true},
		{name: "plain_match", verifier: rfcVerifier, challenge: rfcVerifier, method: "plain", want: true},
		{name: "s256_wrong_verifier", verifier: strings.Repeat("a", 43), challenge: rfcChallenge, method: "S256"},
		{name: "method_mismatch", verifier: rfcVerifier, challenge: rfcChallenge, method: "plain"},
		{name: "invalid_verifier_chars", verifier: strings.Repeat("a", 42) + "+", challenge: rfcChallenge, method: "S256"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, token.VerifyCodeChallenge(tt.verifier, tt.challenge, tt.method))
		})
	}
}

func TestValidateCodeChallenge(t *testing.T) {
	tests := []struct {
		name      string
		challenge string
		method    string
		wantErr   error
	}{
		{name: "valid_s256", challenge: rfcChallenge, method: "S256"},
		{name: "valid_plain", challenge: rfcVerifier, method: "plain"},
		{name: "too_short", challenge: "abc", method: "S256", wantErr: token.ErrInvalidCodeChallenge},
		{name: "too_long", challenge: strings.Repeat("a", 129), method: "plain", wantErr: token.ErrInvalidCodeChallenge},
		{name: "reserved_chars", challenge: strings.Repeat("a", 42) + "/", method: "plain", wantErr: token.ErrInvalidCodeChallenge},
		{name: "bad_method", challenge: rfcChallenge, method: "sha1", wantErr: token.ErrUnsupportedChallengeMethod},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := token.ValidateCodeChallenge(tt.challenge, tt.method)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestNormalizeChallengeMethod(t *testing.T) {
	assert.Equal(t, "plain", token.NormalizeChallengeMethod(""))
	assert.Equal(t, "plain", token.NormalizeChallengeMethod("  "))
	assert.Equal(t, "S256", token.NormalizeChallengeMethod(" S256 "))
}
