// Package config provides runtime configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// ErrDBPathRequired is returned when TRUETRACK_DB_PATH is not set.
var ErrDBPathRequired = errors.New("config: TRUETRACK_DB_PATH is required")

// Config holds all runtime configuration for the daemon.
type Config struct {
	// Server binding
	Host string `env:"TRUETRACK_HOST, default=127.0.0.1"`
	Port int    `env:"TRUETRACK_PORT, default=8000"`

	// Logging
	LogLevel string `env:"TRUETRACK_LOG_LEVEL, default=info"`

	// Durable store (required)
	DBPath string `env:"TRUETRACK_DB_PATH"`

	// Optional override for the music library root; the persisted
	// setting still wins (see internal/settings).
	MusicLibraryRoot string `env:"MUSIC_LIBRARY_ROOT"`

	// CORS allow-list, comma separated.
	AllowedOrigins []string `env:"ALLOWED_ORIGINS, default=http://localhost:3000"`

	// External tool resolution: bundled runtime directory searched
	// before PATH.
	ToolsDir string `env:"TRUETRACK_TOOLS_DIR"`

	// Worker tuning
	PollInterval time.Duration `env:"TRUETRACK_POLL_INTERVAL, default=500ms"`
	LockTTL      time.Duration `env:"TRUETRACK_LOCK_TTL, default=60s"`
}

// Addr returns the host:port listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Load reads configuration from environment variables using go-envconfig.
func Load(ctx context.Context) (*Config, error) {
	cfg := &Config{}
	if err := envconfig.Process(ctx, cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Validate checks that all required configuration is present.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DBPath) == "" {
		return ErrDBPathRequired
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: invalid port %d", c.Port)
	}
	return nil
}
