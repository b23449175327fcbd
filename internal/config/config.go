// Package config loads process settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"auction-engine/internal/repository"

	"github.com/sirupsen/logrus"
)

// Storage backends selectable through STORE.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// devJWTSecret signs tokens when the in-memory store runs without JWT_SECRET.
const devJWTSecret = "auction-engine-dev-secret"

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	Port            string
	Store           string
	SQLitePath      string
	DatabaseURL     string
	JWTSecret       string
	TokenTTL        time.Duration
	LockTimeout     time.Duration
	LogLevel        string
	ShutdownTimeout time.Duration
}

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string {
	return ":" + c.Port
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q: %w", ErrInvalidConfig, key, raw, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%w: %s must be positive, got %s", ErrInvalidConfig, key, d)
	}
	return d, nil
}

// Load reads the configuration from the environment and validates it.
func Load() (Config, error) {
	cfg := Config{
		Port:        getEnv("PORT", "8080"),
		Store:       getEnv("STORE", StoreMemory),
		SQLitePath:  getEnv("SQLITE_PATH", "./data/auction.db"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		JWTSecret:   os.Getenv("JWT_SECRET"),
		LogLevel:    getEnv("LOG_LEVEL", logrus.InfoLevel.String()),
	}

	var err error
	if cfg.TokenTTL, err = getDuration("TOKEN_TTL", 24*time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.LockTimeout, err = getDuration("LOCK_TIMEOUT", repository.DefaultLockTimeout); err != nil {
		return Config{}, err
	}
	if cfg.ShutdownTimeout, err = getDuration("SHUTDOWN_TIMEOUT", 10*time.Second); err != nil {
		return Config{}, err
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if port, err := strconv.Atoi(c.Port); err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("%w: PORT=%q is not a valid port", ErrInvalidConfig, c.Port)
	}

	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: LOG_LEVEL: %w", ErrInvalidConfig, err)
	}

	switch c.Store {
	case StoreMemory:
		if c.JWTSecret == "" {
			c.JWTSecret = devJWTSecret
		}
	case StoreSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("%w: SQLITE_PATH is required for STORE=%s", ErrInvalidConfig, c.Store)
		}
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("%w: DATABASE_URL is required for STORE=%s", ErrInvalidConfig, c.Store)
		}
	default:
		return fmt.Errorf("%w: unknown STORE %q", ErrInvalidConfig, c.Store)
	}

	if c.JWTSecret == "" {
		return fmt.Errorf("%w: JWT_SECRET is required for STORE=%s", ErrInvalidConfig, c.Store)
	}
	return nil
}
