// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP server listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// DatabaseURL is the Postgres DSN.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// JWTSecret is the symmetric signing key for access and refresh tokens.
	// Required when APP_ENV=production.
	JWTSecret string `mapstructure:"JWT_SECRET"`
	// JWTIssuer is the iss claim set on every token and validated on decode.
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAccessTTL is the access token lifetime (e.g. "15m", "1h").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`
	// JWTRefreshTTL is the refresh token lifetime (e.g. "168h" for 7d, "720h" for 30d).
	JWTRefreshTTL string `mapstructure:"JWT_REFRESH_TTL"`
	// RefreshRotate controls refresh token rotation on use. Default true; set
	// false only for clients that cannot handle a rotated refresh token.
	RefreshRotate bool `mapstructure:"REFRESH_ROTATE"`
	// BcryptCost is the bcrypt cost factor (4–31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`
	// RateLimitAttempts is the number of authentication attempts allowed per
	// contact identifier per window.
	RateLimitAttempts int `mapstructure:"RATE_LIMIT_ATTEMPTS"`
	// RateLimitWindow is the refill window for the attempt limiter (e.g. "1m").
	RateLimitWindow string `mapstructure:"RATE_LIMIT_WINDOW"`
	// IdentityVerifierURL is the endpoint that verifies delegated identity
	// assertions (Firebase/Google/OTP gateway). Empty disables delegated login.
	IdentityVerifierURL string `mapstructure:"IDENTITY_VERIFIER_URL"`
	// IdentityVerifierAPIKey authenticates this service to the verifier.
	IdentityVerifierAPIKey string `mapstructure:"IDENTITY_VERIFIER_API_KEY"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_ISSUER", "onescale-auth")
	v.SetDefault("JWT_ACCESS_TTL", "1h")
	v.SetDefault("JWT_REFRESH_TTL", "168h") // 7d
	v.SetDefault("REFRESH_ROTATE", true)
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("RATE_LIMIT_ATTEMPTS", 10)
	v.SetDefault("RATE_LIMIT_WINDOW", "1m")
	v.SetDefault("IDENTITY_VERIFIER_URL", "")
	v.SetDefault("IDENTITY_VERIFIER_API_KEY", "")
	v.SetDefault("APP_ENV", "development")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}
	if cfg.JWTSecret == "" && cfg.Env == "production" {
		return nil, errors.New("config: JWT_SECRET must be set when APP_ENV=production")
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 12
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}
	if cfg.RateLimitAttempts <= 0 {
		return nil, errors.New("config: RATE_LIMIT_ATTEMPTS must be positive")
	}

	return &cfg, nil
}

// AccessTTL parses JWTAccessTTL as a time.Duration. Returns 1h if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	d, err := time.ParseDuration(c.JWTAccessTTL)
	if err != nil || d <= 0 {
		return time.Hour
	}
	return d
}

// RefreshTTL parses JWTRefreshTTL as a time.Duration. Returns 168h if unset or invalid.
func (c *Config) RefreshTTL() time.Duration {
	d, err := time.ParseDuration(c.JWTRefreshTTL)
	if err != nil || d <= 0 {
		return 168 * time.Hour
	}
	return d
}

// RateWindow parses RateLimitWindow as a time.Duration. Returns 1m if unset or invalid.
func (c *Config) RateWindow() time.Duration {
	d, err := time.ParseDuration(c.RateLimitWindow)
	if err != nil || d <= 0 {
		return time.Minute
	}
	return d
}
