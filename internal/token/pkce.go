package token

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/skingford/sso-web/internal/models"
)

// PKCE length limits from RFC 7636 section 4.1.
const (
	CodeVerifierMinLength = 43
	CodeVerifierMaxLength = 128

	// CodeEntropyBytes encodes to a 43 character verifier.
	CodeEntropyBytes = 32
)

// PKCE errors.
var (
	ErrInvalidCodeVerifier        = errors.New("invalid code verifier")
	ErrInvalidCodeChallenge       = errors.New("invalid code challenge")
	ErrUnsupportedChallengeMethod = errors.New("unsupported code challenge method")
)

var rawURLEncoding = base64.URLEncoding.WithPadding(base64.NoPadding)

// GenerateCodeVerifier returns a random verifier for clients driving the flow.
func GenerateCodeVerifier() (string, error) {
	buf := make([]byte, CodeEntropyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate code verifier: %w", err)
	}
	return rawURLEncoding.EncodeToString(buf), nil
}

// ComputeCodeChallenge derives the challenge a client sends for verifier.
func ComputeCodeChallenge(verifier, method string) (string, error) {
	if err := ValidateCodeVerifier(verifier); err != nil {
		return "", err
	}

	switch method {
	case models.CodeChallengeMethodPlain:
		return verifier, nil
	case models.CodeChallengeMethodS256:
		sum := sha256.Sum256([]byte(verifier))
		return rawURLEncoding.EncodeToString(sum[:]), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedChallengeMethod, method)
	}
}

// NormalizeChallengeMethod trims method and defaults it to plain when a
// challenge was sent without one.
func NormalizeChallengeMethod(method string) string {
	method = strings.TrimSpace(method)
	if method == "" {
		return models.CodeChallengeMethodPlain
	}
	return method
}

// ValidateCodeChallenge checks a challenge received on the authorization
// request before it is bound to a code.
func ValidateCodeChallenge(challenge, method string) error {
	switch method {
	case models.CodeChallengeMethodPlain, models.CodeChallengeMethodS256:
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedChallengeMethod, method)
	}

	if len(challenge) < CodeVerifierMinLength || len(challenge) > CodeVerifierMaxLength {
		return fmt.Errorf("%w: length must be between %d and %d",
			ErrInvalidCodeChallenge, CodeVerifierMinLength, CodeVerifierMaxLength)
	}
	if !isUnreserved(challenge) {
		return fmt.Errorf("%w: contains reserved characters", ErrInvalidCodeChallenge)
	}
	return nil
}

// ValidateCodeVerifier checks length and the unreserved character set.
func ValidateCodeVerifier(verifier string) error {
	if len(verifier) < CodeVerifierMinLength || len(verifier) > CodeVerifierMaxLength {
		return fmt.Errorf("%w: length must be between %d and %d",
			ErrInvalidCodeVerifier, CodeVerifierMinLength, CodeVerifierMaxLength)
	}
	if !isUnreserved(verifier) {
		return fmt.Errorf("%w: contains reserved characters", ErrInvalidCodeVerifier)
	}
	return nil
}

// VerifyCodeChallenge reports whether verifier matches the challenge stored
// with the authorization code.
func VerifyCodeChallenge(verifier, challenge, method string) bool {
	expected, err := ComputeCodeChallenge(verifier, method)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(challenge)) == 1
}

// isUnreserved reports whether s only holds ALPHA / DIGIT / "-" / "." / "_" / "~".
func isUnreserved(s string) bool {
	for _, c := range s {
		ok := (c >= 'A' && c <= 'Z') ||
			(c >= 'a' && c <= 'z') ||
			(c >= '0' && c <= '9') ||
			c == '-' || c == '.' || c == '_' || c == '~'
		if !ok {
			return false
		}
	}
	return true
}
