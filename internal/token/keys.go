package token

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/skingford/sso-web/internal/config"
)

// SigningKey is the process-wide key material used to sign and verify tokens.
// HMAC keys sign and verify with the same secret; RSA keys sign with the
// private key and verify with its public half.
type SigningKey struct {
	method    jwt.SigningMethod
	signKey   interface{}
	verifyKey interface{}
	keyID     string
}

// Algorithm returns the JWS algorithm name (e.g. HS256).
func (k *SigningKey) Algorithm() string {
	return k.method.Alg()
}

// NewHMACKey creates an HS256/HS384/HS512 signing key.
func NewHMACKey(algorithm string, secret []byte) (*SigningKey, error) {
	method, ok := jwt.GetSigningMethod(algorithm).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("unsupported HMAC algorithm: %s", algorithm)
	}
	if len(secret) < config.MinJWTSecretLength {
		return nil, fmt.Errorf("HMAC secret must be at least %d bytes", config.MinJWTSecretLength)
	}
	return &SigningKey{method: method, signKey: secret, verifyKey: secret}, nil
}

// NewRSAKey creates an RS256/RS384/RS512 signing key.
func NewRSAKey(algorithm string, key *rsa.PrivateKey, keyID string) (*SigningKey, error) {
	method, ok := jwt.GetSigningMethod(algorithm).(*jwt.SigningMethodRSA)
	if !ok {
		return nil, fmt.Errorf("unsupported RSA algorithm: %s", algorithm)
	}
	if key == nil {
		return nil, errors.New("RSA private key is required")
	}
	return &SigningKey{method: method, signKey: key, verifyKey: &key.PublicKey, keyID: keyID}, nil
}

// LoadSigningKey builds the signing key from configuration: the HMAC secret
// for HS* algorithms, or the PEM encoded private key file for RS* algorithms.
func LoadSigningKey(cfg *config.JWTConfig) (*SigningKey, error) {
	if !cfg.IsAsymmetric() {
		return NewHMACKey(cfg.Algorithm, []byte(cfg.Secret))
	}

	cleanPath := filepath.Clean(cfg.PrivateKeyPath)
	if strings.Contains(cleanPath, "..") {
		return nil, fmt.Errorf("invalid private key path: %s", cfg.PrivateKeyPath)
	}

	// #nosec G304 -- Path comes from operator configuration and is cleaned above
	pemBytes, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key: %w", err)
	}

	key, err := jwt.ParseRSAPrivateKeyFromPEM(pemBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	return NewRSAKey(cfg.Algorithm, key, strings.TrimSuffix(filepath.Base(cleanPath), filepath.Ext(cleanPath)))
}
