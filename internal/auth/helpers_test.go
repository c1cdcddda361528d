package auth_test

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/skingford/sso-web/internal/auth"
	"github.com/skingford/sso-web/internal/config"
	"github.com/skingford/sso-web/internal/models"
	"github.com/skingford/sso-web/internal/redis"
	"github.com/skingford/sso-web/internal/repository"
	"github.com/skingford/sso-web/internal/token"
)

const (
	demoClientID     = "demo-app-1"
	demoClientSecret = "demo-secret-1"
	demoRedirectURI  = "http://localhost:3001/callback"
	otherClientID    = "demo-app-2"
	demoUserID       = "2"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type memorySink struct {
	mu     sync.Mutex
	events []models.AuditEvent
}

func (s *memorySink) Record(_ context.Context, e models.AuditEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *memorySink) types() []models.AuditEventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.AuditEventType, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Type)
	}
	return out
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func mustHash(t *testing.T, secret string) string {
	t.Helper()
	hash, err := auth.HashSecretWithCost(secret, bcrypt.MinCost)
	require.NoError(t, err)
	return hash
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.JWT = config.JWTConfig{
		Secret:             "test-secret-key-at-least-32-characters-long",
		AccessTokenExpiry:  time.Hour,
		RefreshTokenExpiry: 30 * 24 * time.Hour,
		IDTokenExpiry:      time.Hour,
		Issuer:             "https://sso.test",
		Algorithm:          "HS256",
	}
	cfg.OAuth2 = config.OAuth2Config{
		AuthorizationCodeExpiry: 10 * time.Minute,
		DefaultScope:            "openid profile",
		RotateRefreshTokens:     true,
		SessionExpiry:           8 * time.Hour,
		ConfirmationCodeExpiry:  5 * time.Minute,
		SupportedScopes:         []string{"openid", "profile", "email", "read", "write", "admin"},
		SupportedGrantTypes:     []string{"authorization_code", "refresh_token"},
		SupportedResponseTypes:  []string{"code"},
	}
	return cfg
}

type fixture struct {
	cfg      *config.Config
	clock    *fakeClock
	store    *redis.MemoryStore
	clients  *repository.MemoryClientRepository
	users    *repository.MemoryUserRepository
	registry *auth.ClientRegistry
	codes    *auth.CodeStore
	tokens   *token.JWTService
	sink     *memorySink
	svc      *auth.OAuth2Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithConfig(t, testConfig())
}

func newFixtureWithConfig(t *testing.T, cfg *config.Config) *fixture {
	t.Helper()
	ctx := context.Background()

	f := &fixture{
		cfg:     cfg,
		clock:   newFakeClock(),
		store:   redis.NewMemoryStore(quietLogger()),
		clients: repository.NewMemoryClientRepository(),
		users:   repository.NewMemoryUserRepository(),
		sink:    &memorySink{},
	}
	t.Cleanup(func() { _ = f.store.Close() })

	for _, c := range []*models.Client{
		{
			ID:           demoClientID,
			SecretHash:   mustHash(t, demoClientSecret),
			Name:         "Demo App 1",
			RedirectURIs: []string{demoRedirectURI},
			Scopes:       []string{"openid", "profile", "email", "read"},
			GrantTypes:   []string{"authorization_code", "refresh_token"},
			IsActive:     true,
		},
		{
			ID:           otherClientID,
			SecretHash:   mustHash(t, "demo-secret-2"),
			Name:         "Demo App 2",
			RedirectURIs: []string{"http://localhost:3002/callback"},
			Scopes:       []string{"read"},
			GrantTypes:   []string{"refresh_token"},
			IsActive:     true,
		},
		{
			ID:           "retired-app",
			SecretHash:   mustHash(t, "retired-secret"),
			RedirectURIs: []string{"http://localhost:3003/callback"},
			Scopes:       []string{"read"},
			GrantTypes:   []string{"authorization_code"},
			IsActive:     false,
		},
	} {
		require.NoError(t, f.clients.CreateClient(ctx, c))
	}

	require.NoError(t, f.users.CreateUser(ctx, &models.UserWithPassword{
		User: models.User{
			ID:       demoUserID,
			Username: "john.doe",
			Email:    "john.doe@example.com",
			FullName: "John Doe",
			Picture:  "https://example.com/john.png",
			Roles:    []string{"user"},
			IsActive: true,
		},
		PasswordHash: mustHash(t, "user123"),
	}))

	key, err := token.NewHMACKey(cfg.JWT.Algorithm, []byte(cfg.JWT.Secret))
	require.NoError(t, err)
	f.tokens = token.NewJWTService(&cfg.JWT, key, token.WithClock(f.clock.Now))

	f.registry = auth.NewClientRegistry(f.clients, quietLogger())
	f.codes = auth.NewCodeStore(f.store, cfg.OAuth2.AuthorizationCodeExpiry, quietLogger(), auth.WithClock(f.clock.Now))
	f.svc = auth.NewOAuth2Service(
		cfg, f.store, f.registry, f.codes, f.tokens, f.users, f.sink, quietLogger(), auth.WithClock(f.clock.Now),
	)
	return f
}

func (f *fixture) authorizeRequest() *models.AuthorizeRequest {
	return &models.AuthorizeRequest{
		ResponseType:    models.ResponseTypeCode,
		ClientID:        demoClientID,
		RedirectURI:     demoRedirectURI,
		Scope:           "openid profile email",
		State:           "xyz",
		Nonce:           "n-0S6_WzA2Mj",
		ResourceOwnerID: demoUserID,
	}
}

func (f *fixture) issueCode(t *testing.T, mutate func(*models.AuthorizeRequest)) string {
	t.Helper()
	req := f.authorizeRequest()
	if mutate != nil {
		mutate(req)
	}
	resp, err := f.svc.Authorize(context.Background(), req)
	require.NoError(t, err)
	return resp.Code
}

func (f *fixture) exchange(code string) (*models.TokenResponse, error) {
	return f.svc.Token(context.Background(), &models.TokenRequest{
		GrantType:    models.GrantTypeAuthorizationCode,
		Code:         code,
		RedirectURI:  demoRedirectURI,
		ClientID:     demoClientID,
		ClientSecret: demoClientSecret,
	})
}

func requireOAuthError(t *testing.T, err error, code string) *models.OAuth2Error {
	t.Helper()
	require.Error(t, err)
	oauthErr, ok := err.(*models.OAuth2Error)
	require.Truef(t, ok, "expected *models.OAuth2Error, got %T: %v", err, err)
	require.Equal(t, code, oauthErr.Code, oauthErr.Description)
	return oauthErr
}
