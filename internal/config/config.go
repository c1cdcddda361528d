// Package config provides configuration management for the SSO authorization service.
// It supports environment variable-based configuration with validation and default values
// for all service components, overlaid with operational YAML settings such as token
// lifetimes and rate-limit presets.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	// MinJWTSecretLength is the minimum required length for JWT secret.
	MinJWTSecretLength = 32
	// MinPortNumber is the minimum valid port number.
	MinPortNumber = 1
	// MaxPortNumber is the maximum valid port number.
	MaxPortNumber = 65535
)

// Config represents the complete configuration for the SSO service,
// aggregating all component-specific configurations.
type Config struct {
	// Environment holds environment-specific settings.
	Environment EnvironmentConfig `envconfig:"ENVIRONMENT"`
	// Server contains HTTP server configuration including ports, timeouts, and TLS settings.
	Server ServerConfig `envconfig:"SERVER"`
	// Redis contains Redis connection and pool configuration.
	Redis RedisConfig `envconfig:"REDIS"`
	// PostgresDatabase contains PostgreSQL configuration for the user directory.
	PostgresDatabase DatabaseConfig `envconfig:"POSTGRES"`
	// MySQLDatabase contains MySQL configuration for the client registry.
	MySQLDatabase MySQLConfig `envconfig:"MYSQL"`
	// AuthServiceClient contains the credentials this service uses against the audit service.
	AuthServiceClient ClientConfig `envconfig:"AUTH_SERVICE_CLIENT"`
	// JWT contains token signing and lifetime settings.
	JWT JWTConfig `envconfig:"JWT"`
	// OAuth2 contains OAuth2 flow-specific configuration.
	OAuth2 OAuth2Config `envconfig:"OAUTH2"`
	// Security contains CORS, cookie and flood guard settings.
	Security SecurityConfig `envconfig:"SECURITY"`
	// RateLimits contains the per-endpoint-class limiter presets.
	RateLimits RateLimitsConfig `ignored:"true"`
	// Audit contains audit event forwarding settings.
	Audit AuditConfig `envconfig:"AUDIT"`
	// Logging contains logging configuration.
	Logging LoggingConfig `envconfig:"LOGGING"`
	// Seed contains the development seed file locations.
	Seed SeedConfig `envconfig:"SEED"`
}

type Environment string

const (
	Local   Environment = "LOCAL"
	NonProd Environment = "NONPROD"
	Prod    Environment = "PROD"
)

// EnvironmentConfig holds environment-specific settings.
type EnvironmentConfig struct {
	// Environment indicates the current running environment (LOCAL, NONPROD, PROD).
	Environment Environment `envconfig:"ENV" default:"LOCAL"`
}

// ServerConfig holds HTTP server configuration including network settings,
// timeouts, and TLS certificate paths.
type ServerConfig struct {
	// Port is the HTTP server listening port.
	Port int `envconfig:"PORT"             default:"8080"`
	// Host is the network interface to bind to.
	Host string `envconfig:"HOST"             default:"0.0.0.0"`
	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout time.Duration `envconfig:"READ_TIMEOUT"     default:"15s"`
	// WriteTimeout is the maximum duration before timing out writes.
	WriteTimeout time.Duration `envconfig:"WRITE_TIMEOUT"    default:"15s"`
	// IdleTimeout is the maximum amount of time to wait for keep-alive connections.
	IdleTimeout time.Duration `envconfig:"IDLE_TIMEOUT"     default:"60s"`
	// ShutdownTimeout is the maximum time to wait for graceful server shutdown.
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
	// TLSCert is the path to the TLS certificate file for HTTPS.
	TLSCert string `envconfig:"TLS_CERT"`
	// TLSKey is the path to the TLS private key file for HTTPS.
	TLSKey string `envconfig:"TLS_KEY"`
}

// RedisConfig contains Redis connection configuration including
// connection pool settings and timeouts.
type RedisConfig struct {
	// URL is the Redis connection URL.
	URL string `envconfig:"URL"           default:"redis://localhost:6379"`
	// Password is the Redis authentication password.
	Password string `envconfig:"PASSWORD"`
	// DB is the Redis database number to use.
	DB int `envconfig:"DB"            default:"0"`
	// MaxRetries is the maximum number of retry attempts for failed operations.
	MaxRetries int `envconfig:"MAX_RETRIES"   default:"3"`
	// PoolSize is the maximum number of socket connections.
	PoolSize int `envconfig:"POOL_SIZE"     default:"10"`
	// MinIdleConn is the minimum number of idle connections.
	MinIdleConn int `envconfig:"MIN_IDLE_CONN" default:"5"`
	// DialTimeout is the timeout for establishing new connections.
	DialTimeout time.Duration `envconfig:"DIAL_TIMEOUT"  default:"5s"`
	// ReadTimeout is the timeout for socket reads.
	ReadTimeout time.Duration `envconfig:"READ_TIMEOUT"  default:"3s"`
	// WriteTimeout is the timeout for socket writes.
	WriteTimeout time.Duration `envconfig:"WRITE_TIMEOUT" default:"3s"`
	// PoolTimeout is the amount of time client waits for connection.
	PoolTimeout time.Duration `envconfig:"POOL_TIMEOUT"  default:"4s"`
	// IdleTimeout is the amount of time after which client closes idle connections.
	IdleTimeout time.Duration `envconfig:"IDLE_TIMEOUT"  default:"300s"`
}

// DatabaseConfig contains PostgreSQL database connection configuration
// including connection pool settings and health check parameters.
type DatabaseConfig struct {
	// Host is the PostgreSQL server hostname.
	Host string `envconfig:"HOST"                default:"localhost"`
	// Port is the PostgreSQL server port.
	Port int `envconfig:"PORT"                default:"5432"`
	// Database is the PostgreSQL database name.
	Database string `envconfig:"DB"                  default:"sso"`
	// Schema is the PostgreSQL schema name.
	Schema string `envconfig:"SCHEMA"              default:"sso"`
	// User is the database username.
	User string `envconfig:"USER"`
	// Password is the database password.
	Password string `envconfig:"PASSWORD"`
	// SSLMode is the SSL connection mode (disable, require, verify-ca, verify-full).
	SSLMode string `envconfig:"SSL_MODE"            default:"require"`
	// MaxConn is the maximum number of connections in the pool.
	MaxConn int32 `envconfig:"MAX_CONN"            default:"25"`
	// MinConn is the minimum number of connections in the pool.
	MinConn int32 `envconfig:"MIN_CONN"            default:"5"`
	// MaxConnLifetime is the maximum lifetime of a connection.
	MaxConnLifetime time.Duration `envconfig:"MAX_CONN_LIFETIME"   default:"1h"`
	// MaxConnIdleTime is the maximum idle time for a connection.
	MaxConnIdleTime time.Duration `envconfig:"MAX_CONN_IDLE_TIME"  default:"30m"`
	// HealthCheckPeriod is how often to check database connectivity.
	HealthCheckPeriod time.Duration `envconfig:"HEALTH_CHECK_PERIOD" default:"30s"`
	// ConnectTimeout is the timeout for establishing connections.
	ConnectTimeout time.Duration `envconfig:"CONNECT_TIMEOUT"     default:"10s"`
}

// MySQLConfig contains MySQL database connection configuration
// including connection pool settings and health check parameters.
type MySQLConfig struct {
	// Host is the MySQL server hostname.
	Host string `envconfig:"HOST"                default:"localhost"`
	// Port is the MySQL server port.
	Port int `envconfig:"PORT"                default:"3306"`
	// Database is the MySQL database name.
	Database string `envconfig:"DB"                  default:"sso_clients"`
	// User is the database username.
	User string `envconfig:"USER"`
	// Password is the database password.
	Password string `envconfig:"PASSWORD"`
	// MaxConn is the maximum number of open connections.
	MaxConn int `envconfig:"MAX_CONN"            default:"25"`
	// MinConn is the minimum number of idle connections.
	MinConn int `envconfig:"MIN_CONN"            default:"5"`
	// MaxConnLifetime is the maximum lifetime of a connection.
	MaxConnLifetime time.Duration `envconfig:"MAX_CONN_LIFETIME"   default:"1h"`
	// MaxConnIdleTime is the maximum idle time for a connection.
	MaxConnIdleTime time.Duration `envconfig:"MAX_CONN_IDLE_TIME"  default:"30m"`
	// HealthCheckPeriod is how often to check database connectivity.
	HealthCheckPeriod time.Duration `envconfig:"HEALTH_CHECK_PERIOD" default:"30s"`
	// ConnectTimeout is the timeout for establishing connections.
	ConnectTimeout time.Duration `envconfig:"CONNECT_TIMEOUT"     default:"10s"`
}

// ClientConfig contains OAuth2 client credentials configuration.
type ClientConfig struct {
	// ClientID is the OAuth2 client identifier.
	ClientID string `envconfig:"CLIENT_ID"`
	// ClientSecret is the OAuth2 client secret.
	ClientSecret string `envconfig:"CLIENT_SECRET"`
}

// JWTConfig contains token signing material and token lifetimes.
type JWTConfig struct {
	// Secret is the HMAC signing secret (required for HS* algorithms, minimum 32 characters).
	Secret string `envconfig:"SECRET"`
	// PrivateKeyPath is the PEM encoded RSA private key used by RS* algorithms.
	PrivateKeyPath string `envconfig:"PRIVATE_KEY_PATH"`
	// AccessTokenExpiry is the lifetime of access tokens.
	AccessTokenExpiry time.Duration `envconfig:"ACCESS_TOKEN_EXPIRY"  default:"1h"`
	// RefreshTokenExpiry is the lifetime of refresh tokens.
	RefreshTokenExpiry time.Duration `envconfig:"REFRESH_TOKEN_EXPIRY" default:"720h"`
	// IDTokenExpiry is the lifetime of OpenID Connect ID tokens.
	IDTokenExpiry time.Duration `envconfig:"ID_TOKEN_EXPIRY"      default:"1h"`
	// Issuer is the iss claim and the discovery document issuer.
	Issuer string `envconfig:"ISSUER"               default:"https://sso.example.com"`
	// Algorithm is the JWT signing algorithm (HS256, HS384, HS512, RS256, RS384, RS512).
	Algorithm string `envconfig:"ALGORITHM"            default:"HS256"`
}

// IsAsymmetric reports whether tokens are signed with an RSA key pair.
func (j JWTConfig) IsAsymmetric() bool {
	return strings.HasPrefix(j.Algorithm, "RS")
}

// OAuth2Config contains OAuth2 flow-specific settings.
type OAuth2Config struct {
	// AuthorizationCodeExpiry is the lifetime of authorization codes.
	AuthorizationCodeExpiry time.Duration `envconfig:"AUTHORIZATION_CODE_EXPIRY" default:"10m"`
	// PKCERequired makes a code_challenge mandatory on authorize.
	PKCERequired bool `envconfig:"PKCE_REQUIRED"             default:"false"`
	// DefaultScope is granted when the authorize request carries no scope.
	DefaultScope string `envconfig:"DEFAULT_SCOPE"             default:"openid profile"`
	// DefaultResourceOwner is used by authorize when no login session is present.
	// Empty disables the fallback so requests without a session are denied.
	DefaultResourceOwner string `envconfig:"DEFAULT_RESOURCE_OWNER"`
	// RotateRefreshTokens makes every refresh token single use.
	RotateRefreshTokens bool `envconfig:"ROTATE_REFRESH_TOKENS"     default:"true"`
	// SessionExpiry is the lifetime of a resource-owner login session.
	SessionExpiry time.Duration `envconfig:"SESSION_EXPIRY"            default:"8h"`
	// ConfirmationCodeExpiry is the lifetime of sensitive-operation confirmation codes.
	ConfirmationCodeExpiry time.Duration `envconfig:"CONFIRMATION_CODE_EXPIRY"  default:"5m"`
	// SweepInterval is how often expired codes and rate-limit records are purged.
	SweepInterval time.Duration `envconfig:"SWEEP_INTERVAL"            default:"60s"`
	// SupportedScopes are all scopes this server advertises.
	SupportedScopes []string `envconfig:"SUPPORTED_SCOPES"          default:"openid,profile,email,read,write,user:read,user:write,api:read,api:write,admin"`
	// SupportedGrantTypes are the OAuth2 grant types this server supports.
	SupportedGrantTypes []string `envconfig:"SUPPORTED_GRANT_TYPES"     default:"authorization_code,refresh_token"`
	// SupportedResponseTypes are the OAuth2 response types this server supports.
	SupportedResponseTypes []string `envconfig:"SUPPORTED_RESPONSE_TYPES"  default:"code"`
}

// SecurityConfig contains CORS configuration, cookie security and the
// coarse per-IP flood guard that runs in front of every route.
type SecurityConfig struct {
	// FloodGuardRPS is the sustained requests per second allowed per IP.
	FloodGuardRPS int `envconfig:"FLOOD_GUARD_RPS"   default:"100"`
	// FloodGuardBurst is the burst allowed per IP.
	FloodGuardBurst int `envconfig:"FLOOD_GUARD_BURST" default:"200"`
	// AllowedOrigins are the CORS allowed origins.
	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS"   default:"*"`
	// AllowedMethods are the CORS allowed HTTP methods.
	AllowedMethods []string `envconfig:"ALLOWED_METHODS"   default:"GET,POST,PUT,DELETE,OPTIONS"`
	// AllowedHeaders are the CORS allowed headers.
	AllowedHeaders []string `envconfig:"ALLOWED_HEADERS"   default:"*"`
	// ExposedHeaders are the CORS exposed headers.
	ExposedHeaders []string `envconfig:"EXPOSED_HEADERS"   default:"X-RateLimit-Limit,X-RateLimit-Remaining,X-RateLimit-Reset,Retry-After"`
	// AllowCredentials determines if CORS allows credentials.
	AllowCredentials bool `envconfig:"ALLOW_CREDENTIALS" default:"true"`
	// MaxAge is the CORS preflight cache duration in seconds.
	MaxAge int `envconfig:"MAX_AGE"           default:"86400"`
	// TrustedProxies are the trusted proxy IP addresses or networks.
	TrustedProxies []string `envconfig:"TRUSTED_PROXIES"`
	// SecureCookies determines if cookies should be marked as secure.
	SecureCookies bool `envconfig:"SECURE_COOKIES"    default:"true"`
	// SameSiteCookies sets the SameSite attribute for cookies.
	SameSiteCookies string `envconfig:"SAME_SITE_COOKIES" default:"lax"`
}

// RateLimitPreset configures one endpoint class of the rate limiter.
type RateLimitPreset struct {
	// MaxRequests is the number of requests allowed per window.
	MaxRequests int `mapstructure:"max_requests"`
	// Window is the length of a counting window.
	Window time.Duration `mapstructure:"window"`
	// BlockDuration is how long a client stays blocked once it exceeds the window budget.
	BlockDuration time.Duration `mapstructure:"block_duration"`
	// KeyByIP keys records by client address even for authenticated requests.
	KeyByIP bool `mapstructure:"key_by_ip"`
}

// RateLimitsConfig holds every limiter preset. Values come from the YAML
// overlay and fall back to DefaultRateLimits.
type RateLimitsConfig struct {
	Login         RateLimitPreset `mapstructure:"login"`
	API           RateLimitPreset `mapstructure:"api"`
	Sensitive     RateLimitPreset `mapstructure:"sensitive"`
	PasswordReset RateLimitPreset `mapstructure:"password_reset"`
	Registration  RateLimitPreset `mapstructure:"registration"`
}

// DefaultRateLimits returns the built-in limiter presets.
func DefaultRateLimits() RateLimitsConfig {
	return RateLimitsConfig{
		Login:         RateLimitPreset{MaxRequests: 5, Window: 15 * time.Minute, BlockDuration: 30 * time.Minute},
		API:           RateLimitPreset{MaxRequests: 1000, Window: 15 * time.Minute, BlockDuration: time.Hour},
		Sensitive:     RateLimitPreset{MaxRequests: 10, Window: time.Hour, BlockDuration: 2 * time.Hour},
		PasswordReset: RateLimitPreset{MaxRequests: 3, Window: time.Hour, BlockDuration: 24 * time.Hour},
		Registration: RateLimitPreset{
			MaxRequests: 5, Window: time.Hour, BlockDuration: 24 * time.Hour, KeyByIP: true,
		},
	}
}

// Presets returns the presets keyed by their configuration name.
func (r RateLimitsConfig) Presets() map[string]RateLimitPreset {
	return map[string]RateLimitPreset{
		"login":          r.Login,
		"api":            r.API,
		"sensitive":      r.Sensitive,
		"password_reset": r.PasswordReset,
		"registration":   r.Registration,
	}
}

// AuditConfig contains settings for forwarding audit events to the external
// audit-log service.
type AuditConfig struct {
	// ForwardEnabled turns on HTTP forwarding next to the structured log sink.
	ForwardEnabled bool `envconfig:"FORWARD_ENABLED" default:"false"`
	// ServiceURL overrides the environment-derived audit service base URL.
	ServiceURL string `envconfig:"SERVICE_URL"`
	// TokenURL overrides the environment-derived token endpoint used for forwarding credentials.
	TokenURL string `envconfig:"TOKEN_URL"`
	// QueueSize bounds the number of events waiting to be forwarded.
	QueueSize int `envconfig:"QUEUE_SIZE"      default:"1024"`
	// Timeout bounds a single forwarding request.
	Timeout time.Duration `envconfig:"TIMEOUT"         default:"5s"`
}

// LoggingConfig contains logging configuration including
// log level, format, and output destination.
type LoggingConfig struct {
	// Level is the logging level (debug, info, warn, error).
	Level string `envconfig:"LEVEL"              default:"info"`
	// Format is the log output format (json, text).
	Format string `envconfig:"FORMAT"             default:"json"`
	// Output is the log output destination (stdout, stderr, file path).
	Output string `envconfig:"OUTPUT"             default:"stdout"`
	// ConsoleFormat is the format for console output (text, json).
	ConsoleFormat string `envconfig:"CONSOLE_FORMAT"     default:"text"`
	// FileFormat is the format for file output (text, json).
	FileFormat string `envconfig:"FILE_FORMAT"        default:"json"`
	// FilePath is the path to the log file for dual output.
	FilePath string `envconfig:"FILE_PATH"`
	// EnableDualOutput enables both console and file logging simultaneously.
	EnableDualOutput bool `envconfig:"ENABLE_DUAL_OUTPUT" default:"false"`
}

// SeedConfig points at the development seed files loaded at startup.
type SeedConfig struct {
	// Enabled determines if seed files are loaded at startup.
	Enabled bool `envconfig:"ENABLED"      default:"true"`
	// ClientsPath is the path to the OAuth2 client seed file.
	ClientsPath string `envconfig:"CLIENTS_PATH" default:"configs/clients.json"`
	// UsersPath is the path to the user seed file.
	UsersPath string `envconfig:"USERS_PATH"   default:"configs/users.json"`
}

// Load reads configuration from environment variables, overlays the
// operational YAML files and returns a validated Config instance. It returns
// an error if configuration is invalid or required values are missing.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	cfg.RateLimits = DefaultRateLimits()

	if err := applyYAMLConfig(&cfg); err != nil {
		return nil, fmt.Errorf("failed to load operational configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate performs comprehensive validation of all configuration values,
// ensuring they meet security and operational requirements.
func (c *Config) Validate() error {
	validAlgorithms := map[string]bool{
		"HS256": true, "HS384": true, "HS512": true,
		"RS256": true, "RS384": true, "RS512": true,
	}
	if !validAlgorithms[c.JWT.Algorithm] {
		return fmt.Errorf("unsupported JWT algorithm: %s", c.JWT.Algorithm)
	}

	if c.JWT.IsAsymmetric() {
		if c.JWT.PrivateKeyPath == "" {
			return fmt.Errorf("JWT private key path is required for %s", c.JWT.Algorithm)
		}
	} else {
		if c.JWT.Secret == "" {
			return errors.New("JWT secret is required")
		}
		if len(c.JWT.Secret) < MinJWTSecretLength {
			return fmt.Errorf("JWT secret must be at least %d characters long", MinJWTSecretLength)
		}
	}

	if c.Server.Port < MinPortNumber || c.Server.Port > MaxPortNumber {
		return errors.New("server port must be between 1 and 65535")
	}

	if c.JWT.AccessTokenExpiry < time.Minute {
		return errors.New("access token expiry must be at least 1 minute")
	}

	if c.JWT.RefreshTokenExpiry < time.Hour {
		return errors.New("refresh token expiry must be at least 1 hour")
	}

	if c.JWT.IDTokenExpiry < time.Minute {
		return errors.New("ID token expiry must be at least 1 minute")
	}

	if c.JWT.Issuer == "" {
		return errors.New("JWT issuer is required")
	}

	if c.OAuth2.AuthorizationCodeExpiry <= 0 {
		return errors.New("authorization code expiry must be positive")
	}

	for name, preset := range c.RateLimits.Presets() {
		if preset.MaxRequests <= 0 || preset.Window <= 0 || preset.BlockDuration <= 0 {
			return fmt.Errorf("rate limit preset %q must have positive max_requests, window and block_duration", name)
		}
	}

	return nil
}

// ServerAddr returns the formatted server address string in host:port format.
func (c *Config) ServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// IsTLSEnabled returns true if both TLS certificate and key paths are configured.
func (c *Config) IsTLSEnabled() bool {
	return c.Server.TLSCert != "" && c.Server.TLSKey != ""
}

// IsDevelopment reports whether the service runs in the local environment.
func (c *Config) IsDevelopment() bool {
	return c.Environment.Environment == Local || c.Environment.Environment == ""
}

// PostgresDatabaseDSN returns the PostgreSQL connection string (Data Source Name).
func (c *Config) PostgresDatabaseDSN() string {
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s search_path=%s",
		c.PostgresDatabase.Host,
		c.PostgresDatabase.Port,
		c.PostgresDatabase.Database,
		c.PostgresDatabase.User,
		c.PostgresDatabase.Password,
		c.PostgresDatabase.SSLMode,
		c.PostgresDatabase.Schema,
	)
}

// MySQLDSN returns the MySQL connection string (Data Source Name).
func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		c.MySQLDatabase.User,
		c.MySQLDatabase.Password,
		c.MySQLDatabase.Host,
		c.MySQLDatabase.Port,
		c.MySQLDatabase.Database,
	)
}

// IsPostgresDatabaseConfigured returns true if PostgreSQL database user and password are configured.
func (c *Config) IsPostgresDatabaseConfigured() bool {
	return c.PostgresDatabase.User != "" && c.PostgresDatabase.Password != ""
}

// IsMySQLDatabaseConfigured returns true if MySQL database user and password are configured.
func (c *Config) IsMySQLDatabaseConfigured() bool {
	return c.MySQLDatabase.User != "" && c.MySQLDatabase.Password != ""
}
