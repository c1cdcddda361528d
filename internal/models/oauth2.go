// Package models defines the core data structures for the SSO service
// including clients, authorization grants, sessions, rate-limit records and
// request/response models. All models support JSON marshaling for storage in
// the key-value store.
package models

import (
	"slices"
	"time"
)

// GrantType represents the OAuth2 grant type for token requests.
type GrantType string

// ResponseType represents the OAuth2 response type for authorization requests.
type ResponseType string

// TokenType represents the type of access token (typically "Bearer").
type TokenType string

const (
	// GrantTypeAuthorizationCode represents the authorization code grant type.
	GrantTypeAuthorizationCode GrantType = "authorization_code"
	// GrantTypeRefreshToken represents the refresh token grant type.
	GrantTypeRefreshToken GrantType = "refresh_token"

	// ResponseTypeCode represents the authorization code response type.
	ResponseTypeCode ResponseType = "code"

	// TokenTypeBearer represents the Bearer token type.
	TokenTypeBearer TokenType = "Bearer"
)

// PKCE code challenge methods.
const (
	CodeChallengeMethodPlain = "plain"
	CodeChallengeMethodS256  = "S256"
)

// Client represents a registered OAuth2 client. Identity is the client ID.
// The secret is only ever held as a bcrypt hash and is excluded from JSON.
type Client struct {
	// ID is the unique client identifier.
	ID string `json:"client_id"`
	// SecretHash is the bcrypt hash of the client secret (excluded from JSON).
	SecretHash string `json:"-"`
	// Name is the human-readable client name.
	Name string `json:"name"`
	// RedirectURIs are the registered redirect URIs, matched exactly.
	RedirectURIs []string `json:"redirect_uris"`
	// Scopes are the OAuth2 scopes this client may be granted.
	Scopes []string `json:"scopes"`
	// GrantTypes are the OAuth2 grant types this client may use.
	GrantTypes []string `json:"grant_types"`
	// CreatedAt is the client creation timestamp.
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is the last modification timestamp.
	UpdatedAt time.Time `json:"updated_at"`
	// IsActive indicates if the client is currently active.
	IsActive bool `json:"is_active"`
	// Metadata provides extensible storage for additional client-specific data.
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// ClientCacheEntry is used for internal caching and includes the secret hash.
// This should NEVER be used in HTTP responses, only for store caching.
type ClientCacheEntry struct {
	ID           string                 `json:"client_id"`
	SecretHash   string                 `json:"secret_hash"`
	Name         string                 `json:"name"`
	RedirectURIs []string               `json:"redirect_uris"`
	Scopes       []string               `json:"scopes"`
	GrantTypes   []string               `json:"grant_types"`
	CreatedAt    time.Time              `json:"created_at"`
	UpdatedAt    time.Time              `json:"updated_at"`
	IsActive     bool                   `json:"is_active"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// ToClient converts a cache entry to a Client (for internal use).
func (c *ClientCacheEntry) ToClient() *Client {
	return &Client{
		ID:           c.ID,
		SecretHash:   c.SecretHash,
		Name:         c.Name,
		RedirectURIs: c.RedirectURIs,
		Scopes:       c.Scopes,
		GrantTypes:   c.GrantTypes,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
		IsActive:     c.IsActive,
		Metadata:     c.Metadata,
	}
}

// ToCacheEntry converts a Client to a cache entry for store caching.
func (c *Client) ToCacheEntry() *ClientCacheEntry {
	return &ClientCacheEntry{
		ID:           c.ID,
		SecretHash:   c.SecretHash,
		Name:         c.Name,
		RedirectURIs: c.RedirectURIs,
		Scopes:       c.Scopes,
		GrantTypes:   c.GrantTypes,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
		IsActive:     c.IsActive,
		Metadata:     c.Metadata,
	}
}

// ValidateRedirectURI reports whether uri exactly matches one of the client's
// registered redirect URIs. No prefix or wildcard matching is performed.
func (c *Client) ValidateRedirectURI(uri string) bool {
	return slices.Contains(c.RedirectURIs, uri)
}

// HasScope checks if the client may be granted the specified scope.
func (c *Client) HasScope(scope string) bool {
	return slices.Contains(c.Scopes, scope)
}

// HasGrantType checks if the client supports the specified OAuth2 grant type.
func (c *Client) HasGrantType(grantType GrantType) bool {
	return slices.Contains(c.GrantTypes, string(grantType))
}

// AuthorizationGrant is the context bound to an issued authorization code.
// It is consumed exactly once by the token endpoint.
type AuthorizationGrant struct {
	// Code is the opaque authorization code.
	Code string `json:"code"`
	// ClientID is the client the code was issued to.
	ClientID string `json:"client_id"`
	// RedirectURI is the redirect URI used at issuance; redemption must repeat it.
	RedirectURI string `json:"redirect_uri"`
	// ResourceOwnerID is the user who authorized the request.
	ResourceOwnerID string `json:"resource_owner_id"`
	// Scopes are the granted scopes.
	Scopes []string `json:"scopes"`
	// Nonce is the OpenID Connect nonce echoed in the ID token.
	Nonce string `json:"nonce,omitempty"`
	// CodeChallenge is the optional PKCE code challenge.
	CodeChallenge string `json:"code_challenge,omitempty"`
	// CodeChallengeMethod is the PKCE method (plain or S256).
	CodeChallengeMethod string `json:"code_challenge_method,omitempty"`
	// IssuedAt is when the code was issued.
	IssuedAt time.Time `json:"issued_at"`
	// ExpiresAt is when the code stops being redeemable.
	ExpiresAt time.Time `json:"expires_at"`
}

// IsExpiredAt reports whether the grant has expired at the given instant.
func (g *AuthorizationGrant) IsExpiredAt(now time.Time) bool {
	return now.After(g.ExpiresAt)
}

// RefreshGrant is the server-side record behind an issued refresh token. The
// token itself only carries subject and audience; scopes are re-derived from
// this record at refresh time.
type RefreshGrant struct {
	// ID is the refresh token's jti.
	ID string `json:"id"`
	// ClientID is the client (audience) the token was issued to.
	ClientID string `json:"client_id"`
	// Subject is the resource owner.
	Subject string `json:"subject"`
	// Scopes are the scopes originally granted.
	Scopes []string `json:"scopes"`
	// IssuedAt is when the refresh token was minted.
	IssuedAt time.Time `json:"issued_at"`
	// ExpiresAt is when the refresh token expires.
	ExpiresAt time.Time `json:"expires_at"`
	// RotationCount tracks how many times the grant has been rotated.
	RotationCount int `json:"rotation_count"`
}

// Session represents an authenticated resource-owner browser session.
type Session struct {
	// ID is the unique session identifier carried in the session cookie.
	ID string `json:"id"`
	// UserID is the ID of the authenticated user.
	UserID string `json:"user_id"`
	// CreatedAt is when this session was created.
	CreatedAt time.Time `json:"created_at"`
	// ExpiresAt is when this session expires.
	ExpiresAt time.Time `json:"expires_at"`
}

// TokenRequest represents a request to the token endpoint.
type TokenRequest struct {
	// GrantType specifies the OAuth2 grant type being used.
	GrantType GrantType `json:"grant_type"              form:"grant_type"`
	// Code is the authorization code (required for authorization_code grant).
	Code string `json:"code,omitempty"          form:"code"`
	// RedirectURI must match the redirect URI used in the authorization request.
	RedirectURI string `json:"redirect_uri,omitempty"  form:"redirect_uri"`
	// ClientID is the client identifier.
	ClientID string `json:"client_id"               form:"client_id"`
	// ClientSecret is the client secret for authentication.
	ClientSecret string `json:"client_secret,omitempty" form:"client_secret"`
	// RefreshToken is used to obtain new access tokens (required for refresh_token grant).
	RefreshToken string `json:"refresh_token,omitempty" form:"refresh_token"`
	// Scope optionally narrows the scopes on refresh (space-delimited).
	Scope string `json:"scope,omitempty"         form:"scope"`
	// CodeVerifier is the PKCE code verifier.
	CodeVerifier string `json:"code_verifier,omitempty" form:"code_verifier"`
}

// TokenResponse represents a successful response from the token endpoint.
type TokenResponse struct {
	// AccessToken is the issued access token.
	AccessToken string `json:"access_token"`
	// TokenType is the type of token issued (always "Bearer").
	TokenType TokenType `json:"token_type"`
	// ExpiresIn is the lifetime of the access token in seconds.
	ExpiresIn int `json:"expires_in"`
	// RefreshToken is issued when the client may use the refresh_token grant.
	RefreshToken string `json:"refresh_token,omitempty"`
	// IDToken is the OpenID Connect ID token (when openid was granted).
	IDToken string `json:"id_token,omitempty"`
	// Scope contains the granted scopes (space-delimited).
	Scope string `json:"scope"`
}

// AuthorizeRequest represents a request to the authorization endpoint.
type AuthorizeRequest struct {
	// ResponseType specifies the desired response type (must be "code").
	ResponseType ResponseType `json:"response_type"                   form:"response_type"`
	// ClientID is the client identifier.
	ClientID string `json:"client_id"                       form:"client_id"`
	// RedirectURI is where the user agent will be redirected after authorization.
	RedirectURI string `json:"redirect_uri"                    form:"redirect_uri"`
	// Scope contains the requested scopes (space-delimited).
	Scope string `json:"scope,omitempty"                 form:"scope"`
	// State is an opaque value echoed back to the client.
	State string `json:"state,omitempty"                 form:"state"`
	// Nonce is echoed into the ID token.
	Nonce string `json:"nonce,omitempty"                 form:"nonce"`
	// CodeChallenge is the optional PKCE code challenge.
	CodeChallenge string `json:"code_challenge,omitempty"        form:"code_challenge"`
	// CodeChallengeMethod specifies how the code challenge was generated (plain or S256).
	CodeChallengeMethod string `json:"code_challenge_method,omitempty" form:"code_challenge_method"`
	// ResourceOwnerID is resolved from the login session, never from the request.
	ResourceOwnerID string `json:"-"                               form:"-"`
}

// AuthorizeResponse is the result of a successful authorization request.
type AuthorizeResponse struct {
	// RedirectURL is the redirect URI carrying code and state.
	RedirectURL string `json:"redirect_url"`
	// Code is the issued authorization code.
	Code string `json:"code"`
	// State is echoed from the request.
	State string `json:"state,omitempty"`
}

// IntrospectionRequest represents a request to the token introspection endpoint (RFC 7662).
type IntrospectionRequest struct {
	// Token is the token to be introspected.
	Token string `json:"token"                     form:"token"`
	// TokenTypeHint provides a hint about the type of token being introspected.
	TokenTypeHint string `json:"token_type_hint,omitempty" form:"token_type_hint"`
	// ClientID is the client identifier for authentication.
	ClientID string `json:"client_id"                 form:"client_id"`
	// ClientSecret is the client secret for authentication.
	ClientSecret string `json:"client_secret,omitempty"   form:"client_secret"`
}

// IntrospectionResponse represents a response from the token introspection endpoint (RFC 7662).
// Inactive tokens only carry Active=false.
type IntrospectionResponse struct {
	Active    bool     `json:"active"`
	Subject   string   `json:"sub,omitempty"`
	Audience  []string `json:"aud,omitempty"`
	Issuer    string   `json:"iss,omitempty"`
	Scope     string   `json:"scope,omitempty"`
	ClientID  string   `json:"client_id,omitempty"`
	TokenType string   `json:"token_type,omitempty"`
	ExpiresAt int64    `json:"exp,omitempty"`
	IssuedAt  int64    `json:"iat,omitempty"`
	JWTID     string   `json:"jti,omitempty"`
}

// RevocationRequest represents a request to the token revocation endpoint (RFC 7009).
type RevocationRequest struct {
	// Token is the token to be revoked (access token or refresh token).
	Token string `json:"token"                     form:"token"`
	// TokenTypeHint provides a hint about the type of token being revoked.
	TokenTypeHint string `json:"token_type_hint,omitempty" form:"token_type_hint"`
	// ClientID is the client identifier for authentication.
	ClientID string `json:"client_id"                 form:"client_id"`
	// ClientSecret is the client secret for authentication.
	ClientSecret string `json:"client_secret,omitempty"   form:"client_secret"`
}

// UserInfo represents the OpenID Connect userinfo response.
type UserInfo struct {
	// Subject is the unique identifier for the user within the issuer.
	Subject string `json:"sub"`
	// Name is the user's full name in displayable form.
	Name string `json:"name,omitempty"`
	// PreferredUsername is the user's preferred username.
	PreferredUsername string `json:"preferred_username,omitempty"`
	// Picture is the URL of the user's profile picture.
	Picture string `json:"picture,omitempty"`
	// Email is the user's email address.
	Email string `json:"email,omitempty"`
	// EmailVerified indicates whether the email address has been verified.
	EmailVerified bool `json:"email_verified,omitempty"`
	// UpdatedAt is when the user information was last updated as a Unix timestamp.
	UpdatedAt int64 `json:"updated_at,omitempty"`
}

// DiscoveryDocument is the OpenID Connect provider metadata served at
// /.well-known/openid-configuration.
type DiscoveryDocument struct {
	Issuer                            string   `json:"issuer"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	UserInfoEndpoint                  string   `json:"userinfo_endpoint"`
	IntrospectionEndpoint             string   `json:"introspection_endpoint"`
	RevocationEndpoint                string   `json:"revocation_endpoint"`
	ResponseTypesSupported            []string `json:"response_types_supported"`
	SubjectTypesSupported             []string `json:"subject_types_supported"`
	IDTokenSigningAlgValuesSupported  []string `json:"id_token_signing_alg_values_supported"`
	ScopesSupported                   []string `json:"scopes_supported"`
	GrantTypesSupported               []string `json:"grant_types_supported"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported"`
	ClaimsSupported                   []string `json:"claims_supported"`
	CodeChallengeMethodsSupported     []string `json:"code_challenge_methods_supported"`
}
