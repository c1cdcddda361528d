// Package token mints and verifies the signed tokens of the authorization
// server: access tokens, refresh tokens and OpenID Connect ID tokens.
//
// Every token is a JWT carrying sub, aud (the client ID), iss, iat, exp, jti
// and a token_type claim that keeps the three kinds from being used in each
// other's place. Verification checks the algorithm, signature, expiry and
// issuer, and rejects tokens missing any required claim.
//
// Key material is injected through SigningKey; nothing is hardcoded.
package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/skingford/sso-web/internal/config"
)

// Type distinguishes the kinds of token this server issues.
type Type string

const (
	TypeAccess  Type = "access_token"
	TypeRefresh Type = "refresh_token"
	TypeID      Type = "id_token"
)

// Verification errors. Callers match them with errors.Is.
var (
	ErrTokenExpired      = errors.New("token expired")
	ErrTokenMalformed    = errors.New("token malformed")
	ErrSignatureInvalid  = errors.New("token signature invalid")
	ErrTokenTypeMismatch = errors.New("token type mismatch")
)

// Claims is the claim set of every issued token. Identity claims are only
// populated on ID tokens; Scope is only populated on access tokens.
type Claims struct {
	jwt.RegisteredClaims

	// TokenType is one of access_token, refresh_token or id_token.
	TokenType Type `json:"token_type"`
	// Scope holds the granted scopes joined by a single space.
	Scope string `json:"scope,omitempty"`
	// ClientID duplicates the audience for resource servers that expect it.
	ClientID string `json:"client_id,omitempty"`

	Nonce             string `json:"nonce,omitempty"`
	Name              string `json:"name,omitempty"`
	Email             string `json:"email,omitempty"`
	PreferredUsername string `json:"preferred_username,omitempty"`
	Picture           string `json:"picture,omitempty"`
}

// Scopes splits the scope claim.
func (c *Claims) Scopes() []string {
	return strings.Fields(c.Scope)
}

// Client returns the first audience, which is always the client ID.
func (c *Claims) Client() string {
	if len(c.Audience) == 0 {
		return ""
	}
	return c.Audience[0]
}

// Identity carries the user claims embedded in an ID token.
type Identity struct {
	Name              string
	Email             string
	PreferredUsername string
	Picture           string
}

// Issued is a freshly minted token together with its claims.
type Issued struct {
	Token     string
	Claims    *Claims
	ExpiresAt time.Time
}

// ExpiresIn returns the remaining lifetime in whole seconds at issuance.
func (i *Issued) ExpiresIn() int {
	return int(i.ExpiresAt.Sub(i.Claims.IssuedAt.Time).Seconds())
}

// Service mints and verifies tokens.
type Service interface {
	// IssueAccessToken mints an access token for subject, bound to the audience
	// client and carrying the granted scopes.
	IssueAccessToken(subject, audience string, scopes []string) (*Issued, error)
	// IssueRefreshToken mints a refresh token carrying only subject and audience.
	IssueRefreshToken(subject, audience string) (*Issued, error)
	// IssueIDToken mints an OpenID Connect ID token with identity claims and the
	// nonce echoed from the authorization request.
	IssueIDToken(subject, audience string, identity Identity, nonce string) (*Issued, error)
	// Verify checks signature, expiry, issuer and required claims.
	Verify(tokenString string) (*Claims, error)
	// VerifyType is Verify plus a check of the token_type claim.
	VerifyType(tokenString string, want Type) (*Claims, error)
	// Algorithm returns the signing algorithm advertised in discovery.
	Algorithm() string
	// Issuer returns the iss claim value.
	Issuer() string
	// AccessTokenExpiry returns the access token lifetime.
	AccessTokenExpiry() time.Duration
}

// JWTService is the Service implementation on golang-jwt.
type JWTService struct {
	key           *SigningKey
	issuer        string
	accessExpiry  time.Duration
	refreshExpiry time.Duration
	idExpiry      time.Duration
	now           func() time.Time
	parser        *jwt.Parser
}

// Option configures a JWTService.
type Option func(*JWTService)

// WithClock replaces the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *JWTService) {
		s.now = now
	}
}

// NewJWTService creates a token service signing with key and taking lifetimes
// and issuer from cfg.
func NewJWTService(cfg *config.JWTConfig, key *SigningKey, opts ...Option) *JWTService {
	s := &JWTService{
		key:           key,
		issuer:        cfg.Issuer,
		accessExpiry:  cfg.AccessTokenExpiry,
		refreshExpiry: cfg.RefreshTokenExpiry,
		idExpiry:      cfg.IDTokenExpiry,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{key.Algorithm()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithIssuer(s.issuer),
		jwt.WithTimeFunc(func() time.Time { return s.now() }),
	)

	return s
}

// Algorithm returns the signing algorithm.
func (s *JWTService) Algorithm() string {
	return s.key.Algorithm()
}

// Issuer returns the configured issuer.
func (s *JWTService) Issuer() string {
	return s.issuer
}

// AccessTokenExpiry returns the access token lifetime.
func (s *JWTService) AccessTokenExpiry() time.Duration {
	return s.accessExpiry
}

// IssueAccessToken mints an access token valid for the configured access lifetime.
func (s *JWTService) IssueAccessToken(subject, audience string, scopes []string) (*Issued, error) {
	claims := s.baseClaims(subject, audience, TypeAccess, s.accessExpiry)
	claims.Scope = strings.Join(scopes, " ")
	claims.ClientID = audience
	return s.sign(claims)
}

// IssueRefreshToken mints a refresh token valid for the configured refresh lifetime.
// Its jti keys the server-side refresh grant that holds the scopes.
func (s *JWTService) IssueRefreshToken(subject, audience string) (*Issued, error) {
	return s.sign(s.baseClaims(subject, audience, TypeRefresh, s.refreshExpiry))
}

// IssueIDToken mints an ID token valid for the configured ID token lifetime.
func (s *JWTService) IssueIDToken(subject, audience string, identity Identity, nonce string) (*Issued, error) {
	claims := s.baseClaims(subject, audience, TypeID, s.idExpiry)
	claims.Nonce = nonce
	claims.Name = identity.Name
	claims.Email = identity.Email
	claims.PreferredUsername = identity.PreferredUsername
	claims.Picture = identity.Picture
	return s.sign(claims)
}

func (s *JWTService) baseClaims(subject, audience string, typ Type, ttl time.Duration) *Claims {
	now := s.now().Truncate(time.Second)
	return &Claims{
		TokenType: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			Audience:  jwt.ClaimStrings{audience},
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
}

func (s *JWTService) sign(claims *Claims) (*Issued, error) {
	if claims.Subject == "" || claims.Client() == "" {
		return nil, errors.New("subject and audience are required")
	}

	tok := jwt.NewWithClaims(s.key.method, claims)
	if s.key.keyID != "" {
		tok.Header["kid"] = s.key.keyID
	}

	signed, err := tok.SignedString(s.key.signKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign %s: %w", claims.TokenType, err)
	}

	return &Issued{Token: signed, Claims: claims, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// Verify parses tokenString and returns its claims. Errors are one of
// ErrTokenExpired, ErrSignatureInvalid or ErrTokenMalformed (wrapped).
func (s *JWTService) Verify(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, fmt.Errorf("%w: empty token", ErrTokenMalformed)
	}

	claims := &Claims{}
	_, err := s.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return s.key.verifyKey, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
			return nil, ErrSignatureInvalid
		default:
			return nil, fmt.Errorf("%w: %w", ErrTokenMalformed, err)
		}
	}

	switch {
	case claims.Subject == "":
		return nil, fmt.Errorf("%w: missing sub", ErrTokenMalformed)
	case claims.Client() == "":
		return nil, fmt.Errorf("%w: missing aud", ErrTokenMalformed)
	case claims.TokenType == "":
		return nil, fmt.Errorf("%w: missing token_type", ErrTokenMalformed)
	}

	return claims, nil
}

// VerifyType verifies tokenString and rejects tokens of another type.
func (s *JWTService) VerifyType(tokenString string, want Type) (*Claims, error) {
	claims, err := s.Verify(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != want {
		return nil, fmt.Errorf("%w: expected %s, got %s", ErrTokenTypeMismatch, want, claims.TokenType)
	}
	return claims, nil
}
