package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultJWTExpirationHours = 24
	maxJWTExpirationHours     = 24 * 30
)

// JWTConfig holds configuration for JWT token generation and validation.
type JWTConfig struct {
	Secret          string
	ExpirationHours int
}

// Expiration is the lifetime of issued tokens.
func (c *JWTConfig) Expiration() time.Duration {
	return time.Duration(c.ExpirationHours) * time.Hour
}

// NewJWTConfig reads JWT_SECRET (required) and JWT_EXPIRATION_HOURS
// (default 24) from the environment.
func NewJWTConfig() (*JWTConfig, error) {
	return jwtFromEnv(os.Getenv, true)
}

// LoadJWTConfig is NewJWTConfig for the API server: it returns nil when
// JWT_SECRET is unset, which leaves the API unauthenticated.
func LoadJWTConfig() (*JWTConfig, error) {
	return jwtFromEnv(os.Getenv, false)
}

func jwtFromEnv(getenv func(string) string, required bool) (*JWTConfig, error) {
	secret := strings.TrimSpace(getenv("JWT_SECRET"))
	if secret == "" {
		if required {
			return nil, errors.New("JWT_SECRET is required but not set")
		}
		return nil, nil
	}

	cfg := &JWTConfig{Secret: secret, ExpirationHours: defaultJWTExpirationHours}
	if v := strings.TrimSpace(getenv("JWT_EXPIRATION_HOURS")); v != "" {
		hours, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid JWT_EXPIRATION_HOURS %q: %w", v, err)
		}
		cfg.ExpirationHours = hours
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the secret and the expiration bounds.
func (c *JWTConfig) Validate() error {
	if c.Secret == "" {
		return errors.New("JWT_SECRET cannot be empty")
	}
	if c.ExpirationHours < 1 || c.ExpirationHours > maxJWTExpirationHours {
		return fmt.Errorf("JWT_EXPIRATION_HOURS must be between 1 and %d, got %d", maxJWTExpirationHours, c.ExpirationHours)
	}
	return nil
}
