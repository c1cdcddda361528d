package models_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skingford/sso-web/internal/models"
)

const testRedirectURL = "http://localhost:3001/callback"

func demoClient() *models.Client {
	return &models.Client{
		ID:           "demo-app-1",
		SecretHash:   "$2a$12$abcdefghijklmnopqrstuv",
		Name:         "Demo Application 1",
		RedirectURIs: []string{testRedirectURL, "https://demo1.example.com/callback"},
		Scopes:       []string{"openid", "profile", "email"},
		GrantTypes:   []string{"authorization_code", "refresh_token"},
		IsActive:     true,
	}
}

func TestClientValidateRedirectURI(t *testing.T) {
	client := demoClient()

	tests := []struct {
		name     string
		uri      string
		expected bool
	}{
		{name: "exact_match", uri: testRedirectURL, expected: true},
		{name: "second_registered_uri", uri: "https://demo1.example.com/callback", expected: true},
		{name: "prefix_is_rejected", uri: "http://localhost:3001/callback/evil", expected: false},
		{name: "query_suffix_is_rejected", uri: testRedirectURL + "?next=https://evil.example", expected: false},
		{name: "trailing_slash_is_rejected", uri: testRedirectURL + "/", expected: false},
		{name: "case_differs", uri: "http://LOCALHOST:3001/callback", expected: false},
		{name: "empty", uri: "", expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, client.ValidateRedirectURI(tt.uri))
		})
	}
}

func TestClientHasScopeAndGrantType(t *testing.T) {
	client := demoClient()

	assert.True(t, client.HasScope("openid"))
	assert.False(t, client.HasScope("admin"))
	assert.True(t, client.HasGrantType(models.GrantTypeAuthorizationCode))
	assert.True(t, client.HasGrantType(models.GrantTypeRefreshToken))
	assert.False(t, client.HasGrantType(models.GrantType("client_credentials")))
}

func TestClientJSONOmitsSecretHash(t *testing.T) {
	data, err := json.Marshal(demoClient())
	require.NoError(t, err)

	assert.NotContains(t, string(data), "$2a$12$")
	assert.Contains(t, string(data), `"client_id":"demo-app-1"`)
}

func TestClientCacheEntryKeepsSecretHash(t *testing.T) {
	client := demoClient()

	data, err := json.Marshal(client.ToCacheEntry())
	require.NoError(t, err)

	var entry models.ClientCacheEntry
	require.NoError(t, json.Unmarshal(data, &entry))

	restored := entry.ToClient()
	assert.Equal(t, client.SecretHash, restored.SecretHash)
	assert.Equal(t, client.RedirectURIs, restored.RedirectURIs)
}

func TestAuthorizationGrantIsExpiredAt(t *testing.T) {
	issued := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	grant := &models.AuthorizationGrant{
		IssuedAt:  issued,
		ExpiresAt: issued.Add(10 * time.Minute),
	}

	assert.False(t, grant.IsExpiredAt(issued.Add(9*time.Minute)))
	assert.False(t, grant.IsExpiredAt(issued.Add(10*time.Minute)))
	assert.True(t, grant.IsExpiredAt(issued.Add(10*time.Minute+time.Second)))
}

func TestUserInfoFiltersByScope(t *testing.T) {
	user := &models.User{
		ID:       "1",
		Username: "admin",
		Email:    "admin@example.com",
		FullName: "System Administrator",
	}

	tests := []struct {
		name      string
		scopes    []string
		wantName  string
		wantEmail string
	}{
		{name: "openid_only", scopes: []string{"openid"}},
		{name: "profile", scopes: []string{"openid", "profile"}, wantName: "System Administrator"},
		{name: "email", scopes: []string{"openid", "email"}, wantEmail: "admin@example.com"},
		{
			name:      "profile_and_email",
			scopes:    []string{"openid", "profile", "email"},
			wantName:  "System Administrator",
			wantEmail: "admin@example.com",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := user.UserInfo(tt.scopes)
			assert.Equal(t, "1", info.Subject)
			assert.Equal(t, tt.wantName, info.Name)
			assert.Equal(t, tt.wantEmail, info.Email)
		})
	}
}

func TestLoginRequestValidate(t *testing.T) {
	tests := []struct {
		name     string
		req      models.LoginRequest
		wantErr  bool
		wantUser string
	}{
		{name: "valid", req: models.LoginRequest{Username: " Admin ", Password: "x"}, wantUser: "admin"},
		{name: "missing_username", req: models.LoginRequest{Password: "x"}, wantErr: true},
		{name: "missing_password", req: models.LoginRequest{Username: "admin"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantUser, tt.req.Username)
		})
	}
}

func TestRateLimitRecordStates(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	blockUntil := now.Add(30 * time.Minute)

	blocked := &models.RateLimitRecord{
		Count:         6,
		WindowResetAt: now.Add(time.Minute),
		Blocked:       true,
		BlockUntil:    &blockUntil,
	}

	assert.True(t, blocked.IsBlockedAt(now))
	assert.True(t, blocked.IsBlockedAt(blockUntil))
	assert.False(t, blocked.IsBlockedAt(blockUntil.Add(time.Second)))

	assert.False(t, blocked.IsStaleAt(now.Add(2*time.Minute)), "block still running")
	assert.True(t, blocked.IsStaleAt(blockUntil.Add(time.Second)))

	open := &models.RateLimitRecord{Count: 1, WindowResetAt: now}
	assert.False(t, open.IsStaleAt(now))
	assert.True(t, open.IsStaleAt(now.Add(time.Millisecond)))
}
