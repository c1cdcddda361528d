package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

var configSearchPaths = []string{"./configs", "../configs", "../../configs"}

// loadYAMLConfig loads operational configuration from YAML files based on the environment.
// It first loads defaults.yaml, then overlays environment-specific configuration
// (local.yaml, nonprod.yaml, or prod.yaml). Both files are optional; a nil viper
// is returned when neither exists.
func loadYAMLConfig(env Environment) (*viper.Viper, error) {
	v := newYAMLViper("defaults")

	found := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read defaults config: %w", err)
		}
		found = false
	}

	var envConfigFile string
	switch env {
	case NonProd:
		envConfigFile = "nonprod"
	case Prod:
		envConfigFile = "prod"
	case Local:
		fallthrough
	default:
		envConfigFile = "local"
	}

	envViper := newYAMLViper(envConfigFile)
	if err := envViper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read %s config: %w", envConfigFile, err)
		}
	} else {
		if err := v.MergeConfigMap(envViper.AllSettings()); err != nil {
			return nil, fmt.Errorf("failed to merge environment config: %w", err)
		}
		found = true
	}

	if !found {
		return nil, nil
	}
	return v, nil
}

func newYAMLViper(name string) *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigName(name)
	for _, path := range configSearchPaths {
		v.AddConfigPath(path)
	}
	return v
}

// applyYAMLConfig overlays YAML settings onto cfg. Rate-limit presets come
// only from YAML; token lifetimes from YAML apply unless the matching
// environment variable is set.
func applyYAMLConfig(cfg *Config) error {
	v, err := loadYAMLConfig(cfg.Environment.Environment)
	if err != nil {
		return err
	}
	if v == nil {
		return nil
	}

	if v.IsSet("rate_limits") {
		if err := v.UnmarshalKey("rate_limits", &cfg.RateLimits); err != nil {
			return fmt.Errorf("failed to decode rate_limits: %w", err)
		}
	}

	overlayDuration(v, "jwt.access_token_expiry", "JWT_ACCESS_TOKEN_EXPIRY", &cfg.JWT.AccessTokenExpiry)
	overlayDuration(v, "jwt.refresh_token_expiry", "JWT_REFRESH_TOKEN_EXPIRY", &cfg.JWT.RefreshTokenExpiry)
	overlayDuration(v, "jwt.id_token_expiry", "JWT_ID_TOKEN_EXPIRY", &cfg.JWT.IDTokenExpiry)
	overlayDuration(v, "oauth2.authorization_code_expiry", "OAUTH2_AUTHORIZATION_CODE_EXPIRY",
		&cfg.OAuth2.AuthorizationCodeExpiry)
	overlayDuration(v, "oauth2.sweep_interval", "OAUTH2_SWEEP_INTERVAL", &cfg.OAuth2.SweepInterval)

	return nil
}

func overlayDuration(v *viper.Viper, key, envVar string, dst *time.Duration) {
	if _, set := os.LookupEnv(envVar); set || !v.IsSet(key) {
		return
	}
	if d := v.GetDuration(key); d > 0 {
		*dst = d
	}
}
