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
	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or path to file.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or path to file.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	// JWTAccessTTL is the access token lifetime (e.g. "1h"). The session and
	// its refresh token share this lifetime; each refresh extends both.
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`
	// FirebaseProjectID is the project whose identity tokens are accepted at
	// login and registration.
	FirebaseProjectID string `mapstructure:"FIREBASE_PROJECT_ID"`
	// FirebaseCertsURL overrides the Google cert-set endpoint; for tests.
	FirebaseCertsURL string `mapstructure:"FIREBASE_CERTS_URL"`
	// Env is the application environment (e.g. "development", "production").
	// Refresh cookies are marked Secure when Env is production.
	Env string `mapstructure:"APP_ENV"`
	// OTLPEndpoint is the OTLP gRPC collector address (e.g. localhost:4317).
	// Telemetry export is disabled when empty.
	OTLPEndpoint string `mapstructure:"OTLP_ENDPOINT"`
	// OTLPInsecure disables TLS towards the collector.
	OTLPInsecure bool `mapstructure:"OTLP_INSECURE"`
}

// Load reads .env (if present), then builds and validates Config from the
// environment via Viper. Missing .env is ignored (e.g. in CI). Env vars
// override .env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("JWT_ACCESS_TTL", "1h")
	v.SetDefault("FIREBASE_PROJECT_ID", "")
	v.SetDefault("FIREBASE_CERTS_URL", "")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("OTLP_ENDPOINT", "")
	v.SetDefault("OTLP_INSECURE", false)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}
	if cfg.JWTPrivateKey == "" || cfg.JWTPublicKey == "" {
		return nil, errors.New("config: JWT_PRIVATE_KEY and JWT_PUBLIC_KEY must be set")
	}
	if cfg.FirebaseProjectID == "" {
		return nil, errors.New("config: FIREBASE_PROJECT_ID must be set")
	}

	return &cfg, nil
}

// AccessTTL parses JWTAccessTTL as a time.Duration. Returns 1h if unset or
// invalid.
func (c *Config) AccessTTL() time.Duration {
	d, err := time.ParseDuration(c.JWTAccessTTL)
	if err != nil || d <= 0 {
		return time.Hour
	}
	return d
}

// Production reports whether the app runs in the production environment.
func (c *Config) Production() bool {
	return c.Env == "production"
}
