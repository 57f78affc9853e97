package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Session backends.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendRedis  = "redis"
)

// devSigningKey signs slot tokens in development when no key is configured.
const devSigningKey = "ins-development-signing-key-do-not-use"

// MinSigningKeyLen is the shortest SESSION_SIGNING_KEY accepted in
// production.
const MinSigningKeyLen = 32

type Config struct {
	Port              string        `mapstructure:"PORT"`
	Env               string        `mapstructure:"ENV"`
	SessionBackend    string        `mapstructure:"SESSION_BACKEND"`
	SessionFile       string        `mapstructure:"SESSION_FILE"`
	RedisURL          string        `mapstructure:"REDIS_URL"`
	SessionSigningKey string        `mapstructure:"SESSION_SIGNING_KEY"`
	LoginLatency      time.Duration `mapstructure:"LOGIN_LATENCY"`
	FixturesFile      string        `mapstructure:"FIXTURES_FILE"`
	CORSOrigins       []string      `mapstructure:"CORS_ORIGINS"`
	BodyLimit         string        `mapstructure:"BODY_LIMIT"`
	UploadBodyLimit   string        `mapstructure:"UPLOAD_BODY_LIMIT"`
	CookieSecure      bool          `mapstructure:"COOKIE_SECURE"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("SESSION_BACKEND", BackendMemory)
	v.SetDefault("SESSION_FILE", "sessions.json")
	v.SetDefault("LOGIN_LATENCY", "1s")
	v.SetDefault("CORS_ORIGINS", "")
	v.SetDefault("BODY_LIMIT", "2M")
	v.SetDefault("UPLOAD_BODY_LIMIT", "64M")
	v.SetDefault("COOKIE_SECURE", false)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range []string{
		"PORT", "ENV", "SESSION_BACKEND", "SESSION_FILE", "REDIS_URL",
		"SESSION_SIGNING_KEY", "LOGIN_LATENCY", "FIXTURES_FILE", "CORS_ORIGINS",
		"BODY_LIMIT", "UPLOAD_BODY_LIMIT", "COOKIE_SECURE",
	} {
		_ = v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) == 1 && strings.Contains(cfg.CORSOrigins[0], ",") {
		cfg.CORSOrigins = strings.Split(cfg.CORSOrigins[0], ",")
	}
	cfg.CORSOrigins = compact(cfg.CORSOrigins)
	cfg.SessionBackend = strings.ToLower(strings.TrimSpace(cfg.SessionBackend))

	if cfg.SessionSigningKey == "" && cfg.IsDev() {
		log.Warn().Msg("SESSION_SIGNING_KEY is not set; using the development key. Do NOT use this configuration in production.")
		cfg.SessionSigningKey = devSigningKey
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

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	switch c.SessionBackend {
	case BackendMemory:
	case BackendFile:
		if c.SessionFile == "" {
			return fmt.Errorf("SESSION_FILE is required when SESSION_BACKEND is %q", BackendFile)
		}
	case BackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when SESSION_BACKEND is %q", BackendRedis)
		}
		if _, err := url.Parse(c.RedisURL); err != nil {
			return fmt.Errorf("REDIS_URL is not a valid URL: %w", err)
		}
	default:
		return fmt.Errorf("SESSION_BACKEND must be %q, %q, or %q, got %q", BackendMemory, BackendFile, BackendRedis, c.SessionBackend)
	}

	if c.SessionSigningKey == "" {
		return fmt.Errorf("SESSION_SIGNING_KEY is required outside development")
	}
	if c.IsProduction() {
		if len(c.SessionSigningKey) < MinSigningKeyLen {
			return fmt.Errorf("SESSION_SIGNING_KEY must be at least %d bytes in production, got %d", MinSigningKeyLen, len(c.SessionSigningKey))
		}
		if c.SessionSigningKey == devSigningKey {
			return fmt.Errorf("SESSION_SIGNING_KEY must not be the development key in production")
		}
	}

	if c.LoginLatency < 0 {
		return fmt.Errorf("LOGIN_LATENCY must not be negative, got %s", c.LoginLatency)
	}
	return nil
}

func compact(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
