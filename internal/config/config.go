// Package config loads application configuration from environment variables.
//
// CONFIGURATION LIFECYCLE:
// The Config struct is populated exactly once, in main(), and treated as
// immutable afterwards. Every component that needs a setting receives it
// through its constructor — nothing reads os.Getenv after startup. This
// matters most for the JWT signing secret: it must never be a constant in
// source, and it must never change while the process is running (tokens
// signed with an old secret would silently stop validating).
//
// WHY caarlos0/env INSTEAD OF HAND-ROLLED os.Getenv?
// Struct tags keep the variable name, the default, and the Go field in one
// place, and the library handles type conversion (ints, durations, bools)
// uniformly. With plain os.Getenv every field needs its own parse-and-default
// dance, and they drift apart over time.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds every runtime setting for the server.
//
// Required variables (no envDefault tag, validated in Load):
//   - JWT_SECRET     — HMAC key for session tokens; generate with
//     `openssl rand -hex 32`
//   - AI_ENGINE_URL  — base URL of the external prediction engine,
//     e.g. "http://localhost:5000/analyze"
//
// Google OAuth variables are optional: when the client ID or secret is
// empty the federated login routes are simply not registered, and the
// server runs with local accounts only.
type Config struct {
	Port   int    `env:"PORT" envDefault:"8080"`
	DBPath string `env:"DB_PATH" envDefault:"data/swc.db"`

	JWTSecret string        `env:"JWT_SECRET"`
	TokenTTL  time.Duration `env:"TOKEN_TTL" envDefault:"24h"`

	GoogleClientID     string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET"`
	GoogleCallbackURL  string `env:"GOOGLE_CALLBACK_URL"`

	// FrontendBaseURL is where the OAuth success redirect lands. The token
	// is appended as ?token=... — the frontend's /oauth-success page reads
	// it from the query string.
	FrontendBaseURL string `env:"FRONTEND_BASE_URL" envDefault:"http://localhost:3000"`

	AIEngineURL     string        `env:"AI_ENGINE_URL"`
	AIEngineTimeout time.Duration `env:"AI_ENGINE_TIMEOUT" envDefault:"30s"`

	// Per-IP rate limit for the /auth endpoints, requests per minute.
	// Credential endpoints are the ones worth throttling: they are
	// unauthenticated and a brute-force target.
	AuthRateLimit int `env:"AUTH_RATE_LIMIT" envDefault:"30"`
}

// Load parses the environment into a Config and validates required fields.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: parsing environment: %w", err)
	}

	var missing []string
	if cfg.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if cfg.AIEngineURL == "" {
		missing = append(missing, "AI_ENGINE_URL")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("config: required environment variables not set: %v", missing)
	}

	if cfg.GoogleCallbackURL == "" {
		cfg.GoogleCallbackURL = fmt.Sprintf("http://localhost:%d/auth/google/callback", cfg.Port)
	}

	return cfg, nil
}

// GoogleEnabled reports whether federated login can be wired up.
func (c *Config) GoogleEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != ""
}

// Validate is a sanity hook for tests that build a Config by hand.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("config: JWT secret must not be empty")
	}
	if c.AIEngineURL == "" {
		return errors.New("config: AI engine URL must not be empty")
	}
	return nil
}
