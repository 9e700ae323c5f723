package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/alert/alert/internal/platform/phi"
)

type Config struct {
	Port                string        `mapstructure:"PORT"`
	Env                 string        `mapstructure:"ENV"`
	LogLevel            string        `mapstructure:"LOG_LEVEL"`
	AuthMode            string        `mapstructure:"AUTH_MODE"`
	AuthIssuer          string        `mapstructure:"AUTH_ISSUER"`
	AuthJWKSURL         string        `mapstructure:"AUTH_JWKS_URL"`
	AuthAudience        string        `mapstructure:"AUTH_AUDIENCE"`
	AuthSigningKey      string        `mapstructure:"AUTH_SIGNING_KEY"`
	SnapshotBackend     string        `mapstructure:"SNAPSHOT_BACKEND"`
	DatabaseURL         string        `mapstructure:"DATABASE_URL"`
	DBMaxConns          int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns          int32         `mapstructure:"DB_MIN_CONNS"`
	DBSchema            string        `mapstructure:"DB_SCHEMA"`
	RedisURL            string        `mapstructure:"REDIS_URL"`
	EncryptionKey       string        `mapstructure:"SNAPSHOT_ENCRYPTION_KEY"`
	SnapshotTTL         time.Duration `mapstructure:"SNAPSHOT_TTL"`
	RecomputeDebounceMS int           `mapstructure:"RECOMPUTE_DEBOUNCE_MS"`
	CORSOrigins         []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS        float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst      int           `mapstructure:"RATE_LIMIT_BURST"`
	RequestTimeout      time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	BodyLimit           string        `mapstructure:"BODY_LIMIT"`
	SurveyBaseURL       string        `mapstructure:"SURVEY_BASE_URL"`
	Timezone            string        `mapstructure:"TIMEZONE"`
	TLSEnabled          bool          `mapstructure:"TLS_ENABLED"`
	TLSCertFile         string        `mapstructure:"TLS_CERT_FILE"`
	TLSKeyFile          string        `mapstructure:"TLS_KEY_FILE"`
}

var keys = []string{
	"PORT", "ENV", "LOG_LEVEL", "AUTH_MODE", "AUTH_ISSUER", "AUTH_JWKS_URL", "AUTH_AUDIENCE",
	"AUTH_SIGNING_KEY", "SNAPSHOT_BACKEND", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"DB_SCHEMA", "REDIS_URL", "SNAPSHOT_ENCRYPTION_KEY", "SNAPSHOT_TTL", "RECOMPUTE_DEBOUNCE_MS", "CORS_ORIGINS", "RATE_LIMIT_RPS",
	"RATE_LIMIT_BURST", "REQUEST_TIMEOUT", "BODY_LIMIT", "SURVEY_BASE_URL", "TIMEZONE",
	"TLS_ENABLED", "TLS_CERT_FILE", "TLS_KEY_FILE",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("AUTH_MODE", "") // auto-detect: "" -> inferred from ENV
	v.SetDefault("SNAPSHOT_BACKEND", "memory")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("DB_SCHEMA", "public")
	v.SetDefault("SNAPSHOT_TTL", "72h")
	v.SetDefault("RECOMPUTE_DEBOUNCE_MS", 350)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("BODY_LIMIT", "1M")
	v.SetDefault("TIMEZONE", "Australia/Perth")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil || (len(cfg.CORSOrigins) == 1 && strings.Contains(cfg.CORSOrigins[0], ",")) {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.SnapshotBackend == "postgres" && cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required when SNAPSHOT_BACKEND is postgres")
	}
	if cfg.SnapshotBackend == "redis" && cfg.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required when SNAPSHOT_BACKEND is redis")
	}

	if cfg.IsDev() && cfg.ResolvedAuthMode() == "development" {
		log.Warn().Msg("server is running in DEVELOPMENT mode: every request is treated as admin; set ENV=production and AUTH_ISSUER or AUTH_SIGNING_KEY before deploying")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// ResolvedAuthMode returns the effective auth mode. If AUTH_MODE is explicitly
// set, it is returned. Otherwise, the mode is inferred:
//   - ENV=development → "development" (no auth, all requests get admin)
//   - otherwise       → "external" (bearer JWTs from AUTH_ISSUER or signed with AUTH_SIGNING_KEY)
func (c *Config) ResolvedAuthMode() string {
	if c.AuthMode != "" {
		return c.AuthMode
	}
	if c.IsDev() {
		return "development"
	}
	return "external"
}

// Debounce is the recompute quiet window.
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.RecomputeDebounceMS) * time.Millisecond
}

// Location resolves TIMEZONE, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil || c.Timezone == "" {
		return time.UTC
	}
	return loc
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	mode := c.ResolvedAuthMode()
	if mode != "development" && mode != "external" {
		return fmt.Errorf("AUTH_MODE must be \"development\" or \"external\", got %q", mode)
	}
	if mode == "external" && c.AuthIssuer == "" && c.AuthJWKSURL == "" && c.AuthSigningKey == "" {
		return fmt.Errorf(
			"AUTH_ISSUER, AUTH_JWKS_URL or AUTH_SIGNING_KEY must be set when AUTH_MODE is \"external\" (current ENV=%q). "+
				"Refusing to start without authentication configuration", c.Env)
	}
	if c.IsProduction() && mode == "development" {
		return fmt.Errorf("AUTH_MODE=development is not allowed in production")
	}

	switch c.SnapshotBackend {
	case "memory", "postgres", "redis":
	default:
		return fmt.Errorf("SNAPSHOT_BACKEND must be memory, postgres or redis, got %q", c.SnapshotBackend)
	}

	if c.EncryptionKey != "" {
		if _, err := phi.ParseKey(c.EncryptionKey); err != nil {
			return fmt.Errorf("SNAPSHOT_ENCRYPTION_KEY: %w", err)
		}
	}
	if c.RecomputeDebounceMS < 350 || c.RecomputeDebounceMS > 600 {
		return fmt.Errorf("RECOMPUTE_DEBOUNCE_MS must be between 350 and 600, got %d", c.RecomputeDebounceMS)
	}
	if c.Timezone != "" {
		if _, err := time.LoadLocation(c.Timezone); err != nil {
			return fmt.Errorf("TIMEZONE is not a valid location: %w", err)
		}
	}

	// TLS validation: when TLS is enabled, cert and key files must be specified.
	if c.TLSEnabled {
		if c.TLSCertFile == "" {
			return fmt.Errorf("TLS_CERT_FILE is required when TLS_ENABLED is true")
		}
		if c.TLSKeyFile == "" {
			return fmt.Errorf("TLS_KEY_FILE is required when TLS_ENABLED is true")
		}
	}

	return nil
}
