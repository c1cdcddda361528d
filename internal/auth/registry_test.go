package auth_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skingford/sso-web/internal/models"
	"github.com/skingford/sso-web/internal/repository"
)

func TestClientRegistry_Find(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	client, err := f.registry.Find(ctx, demoClientID)
	require.NoError(t, err)
	assert.Equal(t, "Demo App 1", client.Name)

	_, err = f.registry.Find(ctx, "retired-app")
	assert.ErrorIs(t, err, repository.ErrClientNotFound, "inactive clients are absent")

	_, err = f.registry.Find(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrClientNotFound)
}

func TestClientRegistry_ValidateRedirectURI(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		clientID string
		uri      string
		want     bool
	}{
		{name: "registered", clientID: demoClientID, uri: demoRedirectURI, want: true},
		{name: "trailing_slash", clientID: demoClientID, uri: demoRedirectURI + "/", want: false},
		{name: "prefix_only", clientID: demoClientID, uri: "http://localhost:3001", want: false},
		{name: "extra_path", clientID: demoClientID, uri: demoRedirectURI + "/evil", want: false},
		{name: "other_clients_uri", clientID: demoClientID, uri: "http://localhost:3002/callback", want: false},
		{name: "unknown_client", clientID: "missing", uri: demoRedirectURI, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, f.registry.ValidateRedirectURI(ctx, tt.clientID, tt.uri))
		})
	}
}

func TestClientRegistry_Authenticate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	client, err := f.registry.Authenticate(ctx, demoClientID, demoClientSecret)
	require.NoError(t, err)
	assert.Equal(t, demoClientID, client.ID)

	failures := []struct {
		name     string
		clientID string
		secret   string
	}{
		{name: "wrong_secret", clientID: demoClientID, secret: "nope"},
		{name: "empty_secret", clientID: demoClientID, secret: ""},
		{name: "unknown_client", clientID: "missing", secret: demoClientSecret},
		{name: "inactive_client", clientID: "retired-app", secret: "retired-secret"},
		{name: "secret_of_other_client", clientID: demoClientID, secret: "demo-secret-2"},
	}

	var descriptions []string
	for _, tt := range failures {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.registry.Authenticate(ctx, tt.clientID, tt.secret)
			oauthErr := requireOAuthError(t, err, models.ErrorCodeInvalidClient)
			assert.Equal(t, 401, oauthErr.StatusCode)
			descriptions = append(descriptions, oauthErr.Description)
		})
	}

	for _, d := range descriptions {
		assert.Equal(t, descriptions[0], d, "failure modes must be indistinguishable")
	}
}
