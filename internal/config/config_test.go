package config_test

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skingford/sso-web/internal/config"
)

const jwtSecret = "this-is-a-very-long-secret-key-for-testing-purposes-123456789" // pragma: allowlist secret

func TestLoad(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		wantErr  bool
		validate func(*testing.T, *config.Config)
	}{
		{
			name: "valid_configuration",
			envVars: map[string]string{
				"JWT_SECRET":  jwtSecret,
				"SERVER_PORT": "9090",
				"REDIS_URL":   "redis://localhost:6380",
			},
			wantErr: false,
			validate: func(t *testing.T, cfg *config.Config) {
				assert.Equal(t, 9090, cfg.Server.Port)
				assert.Equal(t, "redis://localhost:6380", cfg.Redis.URL)
				assert.Equal(t, jwtSecret, cfg.JWT.Secret)
			},
		},
		{
			name: "token_lifetime_defaults",
			envVars: map[string]string{
				"JWT_SECRET": jwtSecret,
			},
			validate: func(t *testing.T, cfg *config.Config) {
				assert.Equal(t, time.Hour, cfg.JWT.AccessTokenExpiry)
				assert.Equal(t, 30*24*time.Hour, cfg.JWT.RefreshTokenExpiry)
				assert.Equal(t, time.Hour, cfg.JWT.IDTokenExpiry)
				assert.Equal(t, 10*time.Minute, cfg.OAuth2.AuthorizationCodeExpiry)
				assert.Equal(t, "openid profile", cfg.OAuth2.DefaultScope)
				assert.True(t, cfg.OAuth2.RotateRefreshTokens)
			},
		},
		{
			name: "env_overrides_yaml_lifetime",
			envVars: map[string]string{
				"JWT_SECRET":              jwtSecret,
				"JWT_ACCESS_TOKEN_EXPIRY": "5m",
			},
			validate: func(t *testing.T, cfg *config.Config) {
				assert.Equal(t, 5*time.Minute, cfg.JWT.AccessTokenExpiry)
			},
		},
		{
			name: "rate_limit_presets_loaded",
			envVars: map[string]string{
				"JWT_SECRET": jwtSecret,
			},
			validate: func(t *testing.T, cfg *config.Config) {
				assert.Equal(t, 5, cfg.RateLimits.Login.MaxRequests)
				assert.Equal(t, 15*time.Minute, cfg.RateLimits.Login.Window)
				assert.Equal(t, 30*time.Minute, cfg.RateLimits.Login.BlockDuration)
				assert.Equal(t, 1000, cfg.RateLimits.API.MaxRequests)
				assert.Equal(t, 3, cfg.RateLimits.PasswordReset.MaxRequests)
				assert.True(t, cfg.RateLimits.Registration.KeyByIP)
			},
		},
		{
			name: "missing_jwt_secret",
			envVars: map[string]string{
				"SERVER_PORT": "8080",
			},
			wantErr: true,
		},
		{
			name: "short_jwt_secret",
			envVars: map[string]string{
				"JWT_SECRET":  "short",
				"SERVER_PORT": "8080",
			},
			wantErr: true,
		},
		{
			name: "invalid_port",
			envVars: map[string]string{
				"JWT_SECRET":  jwtSecret,
				"SERVER_PORT": "99999",
			},
			wantErr: true,
		},
		{
			name: "rsa_without_key_path",
			envVars: map[string]string{
				"JWT_ALGORITHM": "RS256",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)

			for key, value := range tt.envVars {
				t.Setenv(key, value)
			}

			cfg, err := config.Load()

			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, cfg)

			if tt.validate != nil {
				tt.validate(t, cfg)
			}

			// Verify default values are set
			assert.Equal(t, "0.0.0.0", cfg.Server.Host)
			assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
			assert.Equal(t, "info", cfg.Logging.Level)
		})
	}
}

func validJWT() config.JWTConfig {
	return config.JWTConfig{
		Secret:             jwtSecret,
		AccessTokenExpiry:  time.Hour,
		RefreshTokenExpiry: 720 * time.Hour,
		IDTokenExpiry:      time.Hour,
		Issuer:             "https://sso.example.com",
		Algorithm:          "HS256",
	}
}

func validConfig() *config.Config {
	return &config.Config{
		Server:     config.ServerConfig{Port: 8080},
		JWT:        validJWT(),
		OAuth2:     config.OAuth2Config{AuthorizationCodeExpiry: 10 * time.Minute},
		RateLimits: config.DefaultRateLimits(),
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr bool
	}{
		{
			name:    "valid_config",
			mutate:  func(*config.Config) {},
			wantErr: false,
		},
		{
			name:    "empty_jwt_secret",
			mutate:  func(c *config.Config) { c.JWT.Secret = "" },
			wantErr: true,
		},
		{
			name:    "short_jwt_secret",
			mutate:  func(c *config.Config) { c.JWT.Secret = "short" },
			wantErr: true,
		},
		{
			name: "rsa_with_key_path_needs_no_secret",
			mutate: func(c *config.Config) {
				c.JWT.Algorithm = "RS256"
				c.JWT.Secret = ""
				c.JWT.PrivateKeyPath = "/etc/sso/signing.pem"
			},
			wantErr: false,
		},
		{
			name:    "invalid_port_low",
			mutate:  func(c *config.Config) { c.Server.Port = 0 },
			wantErr: true,
		},
		{
			name:    "invalid_port_high",
			mutate:  func(c *config.Config) { c.Server.Port = 99999 },
			wantErr: true,
		},
		{
			name:    "short_access_token_expiry",
			mutate:  func(c *config.Config) { c.JWT.AccessTokenExpiry = 30 * time.Second },
			wantErr: true,
		},
		{
			name:    "short_refresh_token_expiry",
			mutate:  func(c *config.Config) { c.JWT.RefreshTokenExpiry = 30 * time.Minute },
			wantErr: true,
		},
		{
			name:    "missing_issuer",
			mutate:  func(c *config.Config) { c.JWT.Issuer = "" },
			wantErr: true,
		},
		{
			name:    "invalid_algorithm",
			mutate:  func(c *config.Config) { c.JWT.Algorithm = "INVALID" },
			wantErr: true,
		},
		{
			name:    "zero_rate_limit_window",
			mutate:  func(c *config.Config) { c.RateLimits.Sensitive.Window = 0 },
			wantErr: true,
		},
		{
			name:    "zero_rate_limit_budget",
			mutate:  func(c *config.Config) { c.RateLimits.Login.MaxRequests = 0 },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDefaultRateLimits(t *testing.T) {
	presets := config.DefaultRateLimits().Presets()

	require.Len(t, presets, 5)
	assert.Equal(t, config.RateLimitPreset{MaxRequests: 10, Window: time.Hour, BlockDuration: 2 * time.Hour},
		presets["sensitive"])
	assert.Equal(t, 24*time.Hour, presets["registration"].BlockDuration)
	assert.False(t, presets["login"].KeyByIP)
}

func TestConfigServerAddr(t *testing.T) {
	cfg := &config.Config{
		Server: config.ServerConfig{
			Host: "localhost",
			Port: 9090,
		},
	}

	addr := cfg.ServerAddr()
	assert.Equal(t, "localhost:9090", addr)
}

func TestConfigIsTLSEnabled(t *testing.T) {
	tests := []struct {
		name     string
		config   *config.Config
		expected bool
	}{
		{
			name: "tls_enabled",
			config: &config.Config{
				Server: config.ServerConfig{
					TLSCert: "/path/to/cert.pem",
					TLSKey:  "/path/to/key.pem",
				},
			},
			expected: true,
		},
		{
			name: "tls_disabled_no_cert",
			config: &config.Config{
				Server: config.ServerConfig{
					TLSKey: "/path/to/key.pem",
				},
			},
			expected: false,
		},
		{
			name: "tls_disabled_empty",
			config: &config.Config{
				Server: config.ServerConfig{},
			},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.config.IsTLSEnabled()
			assert.Equal(t, tt.expected, result)
		})
	}
}

func clearEnv(_ *testing.T) {
	envVars := []string{
		"ENVIRONMENT_ENV",
		"SERVER_PORT", "SERVER_HOST", "SERVER_READ_TIMEOUT", "SERVER_WRITE_TIMEOUT",
		"REDIS_URL", "REDIS_PASSWORD", "REDIS_DB",
		"JWT_SECRET", "JWT_PRIVATE_KEY_PATH", "JWT_ACCESS_TOKEN_EXPIRY", "JWT_REFRESH_TOKEN_EXPIRY",
		"JWT_ID_TOKEN_EXPIRY", "JWT_ISSUER", "JWT_ALGORITHM",
		"OAUTH2_AUTHORIZATION_CODE_EXPIRY", "OAUTH2_PKCE_REQUIRED", "OAUTH2_SWEEP_INTERVAL",
		"SECURITY_FLOOD_GUARD_RPS", "SECURITY_ALLOWED_ORIGINS",
		"LOGGING_LEVEL", "LOGGING_FORMAT",
	}

	for _, env := range envVars {
		os.Unsetenv(env)
	}
}
