package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math/big"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

const (
	// BcryptCost defines the cost factor for bcrypt hashing.
	// Each increment doubles the time required to hash.
	BcryptCost = 12

	// AuthorizationCodeBytes is the entropy of an authorization code.
	AuthorizationCodeBytes = 32

	// ConfirmationCodeDigits is the length of a confirmation code.
	ConfirmationCodeDigits = 6
)

// ErrEmptySecret is returned when hashing or verifying an empty secret.
var ErrEmptySecret = errors.New("secret cannot be empty")

// HashSecret generates a bcrypt hash of a client secret or user password.
func HashSecret(secret string) (string, error) {
	return HashSecretWithCost(secret, BcryptCost)
}

// HashSecretWithCost is HashSecret with an explicit bcrypt cost.
func HashSecretWithCost(secret string, cost int) (string, error) {
	if secret == "" {
		return "", ErrEmptySecret
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash secret: %w", err)
	}

	return string(hash), nil
}

// VerifySecret compares a plaintext secret against a bcrypt hash. It returns
// nil only on a match.
func VerifySecret(hash, secret string) error {
	if hash == "" {
		return errors.New("hash cannot be empty")
	}
	if secret == "" {
		return ErrEmptySecret
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)); err != nil {
		return fmt.Errorf("secret verification failed: %w", err)
	}

	return nil
}

// dummyHash is compared against when the principal does not exist, so an
// unknown client or user costs the same as a wrong secret.
var dummyHash = sync.OnceValue(func() string {
	hash, err := bcrypt.GenerateFromPassword([]byte("sso-web-dummy-secret"), BcryptCost)
	if err != nil {
		panic(fmt.Sprintf("failed to generate dummy hash: %v", err))
	}
	return string(hash)
})

// burnSecretCheck runs a comparison whose result is discarded.
func burnSecretCheck(secret string) {
	_ = bcrypt.CompareHashAndPassword([]byte(dummyHash()), []byte(secret))
}

// RandomHex returns n random bytes from r, hex-encoded.
func RandomHex(r io.Reader, n int) (string, error) {
	if r == nil {
		r = rand.Reader
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// RandomDigits returns a uniformly distributed numeric string of the given length.
func RandomDigits(r io.Reader, digits int) (string, error) {
	if r == nil {
		r = rand.Reader
	}
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(digits)), nil)
	n, err := rand.Int(r, limit)
	if err != nil {
		return "", fmt.Errorf("failed to generate numeric code: %w", err)
	}
	return fmt.Sprintf("%0*d", digits, n), nil
}
