package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/oauth2"

	"github.com/skingford/sso-web/internal/audit"
	"github.com/skingford/sso-web/internal/auth"
	"github.com/skingford/sso-web/internal/config"
	"github.com/skingford/sso-web/internal/constants"
	"github.com/skingford/sso-web/internal/handlers"
	"github.com/skingford/sso-web/internal/metrics"
	"github.com/skingford/sso-web/internal/middleware"
	"github.com/skingford/sso-web/internal/models"
	"github.com/skingford/sso-web/internal/ratelimit"
	"github.com/skingford/sso-web/internal/repository"
	"github.com/skingford/sso-web/internal/token"
)

const (
	rpClientID     = "demo-app-1"
	rpClientSecret = "demo-secret-1"
	rpRedirectURI  = "http://localhost:3001/callback"
)

// startServer runs the full router on a Redis-backed store and returns its
// base URL. The issuer is the server's own address so discovery is usable.
func startServer(t *testing.T) string {
	t.Helper()
	store := startRedis(t)
	ctx := context.Background()
	log := testLogger()

	srv := httptest.NewUnstartedServer(nil)
	baseURL := "http://" + srv.Listener.Addr().String()

	cfg := &config.Config{}
	cfg.JWT = config.JWTConfig{
		Secret:             "integration-secret-at-least-32-characters",
		AccessTokenExpiry:  time.Hour,
		RefreshTokenExpiry: 24 * time.Hour,
		IDTokenExpiry:      time.Hour,
		Issuer:             baseURL,
		Algorithm:          "HS256",
	}
	cfg.OAuth2 = config.OAuth2Config{
		AuthorizationCodeExpiry: time.Minute,
		DefaultScope:            "openid profile",
		RotateRefreshTokens:     true,
		SessionExpiry:           time.Hour,
		ConfirmationCodeExpiry:  5 * time.Minute,
		SupportedScopes:         []string{"openid", "profile", "email"},
		SupportedGrantTypes:     []string{"authorization_code", "refresh_token"},
		SupportedResponseTypes:  []string{"code"},
	}
	cfg.Security.FloodGuardRPS = 100
	cfg.Security.FloodGuardBurst = 200
	cfg.Security.SameSiteCookies = "lax"
	cfg.RateLimits = config.DefaultRateLimits()

	secretHash, err := auth.HashSecretWithCost(rpClientSecret, bcrypt.MinCost)
	require.NoError(t, err)
	clients := repository.NewHybridClientRepository(
		repository.NewMemoryClientRepository(),
		repository.NewCacheClientRepository(store, time.Minute),
		log,
	)
	require.NoError(t, clients.CreateClient(ctx, &models.Client{
		ID:           rpClientID,
		SecretHash:   secretHash,
		Name:         "Demo App 1",
		RedirectURIs: []string{rpRedirectURI},
		Scopes:       []string{"openid", "profile", "email"},
		GrantTypes:   []string{"authorization_code", "refresh_token"},
		IsActive:     true,
	}))

	passwordHash, err := auth.HashSecretWithCost("user123", bcrypt.MinCost)
	require.NoError(t, err)
	users := repository.NewMemoryUserRepository()
	require.NoError(t, users.CreateUser(ctx, &models.UserWithPassword{
		User: models.User{
			ID: "2", Username: "john.doe", Email: "john.doe@example.com",
			FullName: "John Doe", Roles: []string{"user"}, IsActive: true,
		},
		PasswordHash: passwordHash,
	}))

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	key, err := token.NewHMACKey(cfg.JWT.Algorithm, []byte(cfg.JWT.Secret))
	require.NoError(t, err)
	tokens := token.NewJWTService(&cfg.JWT, key)

	sink := audit.NewLogSink(log)
	withMetrics := auth.WithMetrics(m)
	codes := auth.NewCodeStore(store, cfg.OAuth2.AuthorizationCodeExpiry, log, withMetrics)
	svc := auth.NewOAuth2Service(cfg, store, auth.NewClientRegistry(clients, log), codes, tokens, users, sink, log,
		withMetrics)
	sessions := auth.NewSessionManager(store, users, cfg.OAuth2.SessionExpiry, sink, log, withMetrics)
	confirmations := auth.NewConfirmationCodes(store, cfg.OAuth2.ConfirmationCodeExpiry, sink, log, withMetrics)
	limiter := ratelimit.NewLimiter(store, cfg.RateLimits, sink, log, ratelimit.WithMetrics(m))

	srv.Config.Handler = handlers.NewRouter(handlers.Routes{
		Stack:   middleware.NewStack(cfg, svc, sessions, limiter, store.GetRedisClient(), m, log),
		OAuth2:  handlers.NewOAuth2Handler(svc, sessions, cfg, m, log),
		Users:   handlers.NewUserAuthHandler(sessions, users, cfg, log),
		Admin:   handlers.NewAdminHandler(confirmations, limiter, cfg, log),
		Health:  handlers.NewHealthHandler(cfg, store, nil, m, log),
		Metrics: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})
	srv.Start()
	t.Cleanup(srv.Close)

	return baseURL
}

// browser is a cookie-holding client that does not follow redirects, so the
// authorization response can be inspected.
func browser(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{
		Jar:     jar,
		Timeout: 10 * time.Second,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func discover(t *testing.T, baseURL string) *models.DiscoveryDocument {
	t.Helper()
	resp, err := http.Get(baseURL + "/.well-known/openid-configuration")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var doc models.DiscoveryDocument
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&doc))
	return &doc
}

func login(t *testing.T, client *http.Client, baseURL string) {
	t.Helper()
	body, err := json.Marshal(models.LoginRequest{Username: "john.doe", Password: "user123"})
	require.NoError(t, err)

	resp, err := client.Post(baseURL+constants.APIBasePath+"/login", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

// authorize follows the user agent to the authorization endpoint and returns
// the code from the redirect back to the client.
func authorize(t *testing.T, client *http.Client, authURL, wantState string) string {
	t.Helper()
	resp, err := client.Get(authURL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusFound, resp.StatusCode)

	location, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "localhost:3001", location.Host)
	assert.Equal(t, wantState, location.Query().Get("state"))

	code := location.Query().Get("code")
	require.NotEmpty(t, code)
	return code
}

func TestAuthorizationCodeFlow_EndToEnd(t *testing.T) {
	baseURL := startServer(t)
	doc := discover(t, baseURL)
	assert.Equal(t, baseURL, doc.Issuer)

	conf := &oauth2.Config{
		ClientID:     rpClientID,
		ClientSecret: rpClientSecret,
		RedirectURL:  rpRedirectURI,
		Scopes:       []string{"openid", "profile", "email"},
		Endpoint: oauth2.Endpoint{
			AuthURL:   doc.AuthorizationEndpoint,
			TokenURL:  doc.TokenEndpoint,
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, &http.Client{Timeout: 10 * time.Second})

	user := browser(t)
	login(t, user, baseURL)

	verifier := oauth2.GenerateVerifier()
	code := authorize(t, user, conf.AuthCodeURL("st-1", oauth2.S256ChallengeOption(verifier)), "st-1")

	tok, err := conf.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	require.NoError(t, err)
	assert.Equal(t, "Bearer", tok.TokenType)
	assert.NotEmpty(t, tok.RefreshToken)
	assert.NotEmpty(t, tok.Extra("id_token"))
	scope, _ := tok.Extra("scope").(string)
	assert.ElementsMatch(t, []string{"openid", "profile", "email"}, strings.Fields(scope))
	assert.WithinDuration(t, time.Now().Add(time.Hour), tok.Expiry, time.Minute)

	t.Run("code_is_single_use", func(t *testing.T) {
		_, err := conf.Exchange(ctx, code, oauth2.VerifierOption(verifier))
		var retrieveErr *oauth2.RetrieveError
		require.True(t, errors.As(err, &retrieveErr))
		assert.Equal(t, models.ErrorCodeInvalidGrant, retrieveErr.ErrorCode)
	})

	t.Run("userinfo", func(t *testing.T) {
		resp, err := conf.Client(ctx, tok).Get(doc.UserInfoEndpoint)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var info models.UserInfo
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))
		assert.Equal(t, "2", info.Subject)
		assert.Equal(t, "john.doe", info.PreferredUsername)
	})

	t.Run("refresh_rotates", func(t *testing.T) {
		stale := *tok
		stale.Expiry = time.Now().Add(-time.Minute)

		refreshed, err := conf.TokenSource(ctx, &stale).Token()
		require.NoError(t, err)
		assert.NotEqual(t, tok.AccessToken, refreshed.AccessToken)
		assert.NotEqual(t, tok.RefreshToken, refreshed.RefreshToken)

		_, err = conf.TokenSource(ctx, &stale).Token()
		var retrieveErr *oauth2.RetrieveError
		require.True(t, errors.As(err, &retrieveErr), "the old refresh token is spent")
		assert.Equal(t, models.ErrorCodeInvalidGrant, retrieveErr.ErrorCode)
	})
}

func TestAuthorizationCodeFlow_PKCEMismatch(t *testing.T) {
	baseURL := startServer(t)
	doc := discover(t, baseURL)

	conf := &oauth2.Config{
		ClientID:     rpClientID,
		ClientSecret: rpClientSecret,
		RedirectURL:  rpRedirectURI,
		Scopes:       []string{"openid"},
		Endpoint: oauth2.Endpoint{
			AuthURL:   doc.AuthorizationEndpoint,
			TokenURL:  doc.TokenEndpoint,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, &http.Client{Timeout: 10 * time.Second})

	user := browser(t)
	login(t, user, baseURL)

	code := authorize(t, user, conf.AuthCodeURL("st-2", oauth2.S256ChallengeOption(oauth2.GenerateVerifier())), "st-2")

	_, err := conf.Exchange(ctx, code, oauth2.VerifierOption(oauth2.GenerateVerifier()))
	var retrieveErr *oauth2.RetrieveError
	require.True(t, errors.As(err, &retrieveErr))
	assert.Equal(t, models.ErrorCodeInvalidGrant, retrieveErr.ErrorCode)
}
