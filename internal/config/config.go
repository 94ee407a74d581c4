// Package config loads configuration from environment variables.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds all assistant configuration.
type Config struct {
	// Logging
	LogLevel  string
	LogFormat string

	// Portal defaults
	AppID       string        // default OAuth application id
	PageSize    int           // search page size
	HTTPTimeout time.Duration // per-request timeout
	AuthTimeout time.Duration // browser login timeout

	// OAuth callback listener
	CallbackPort int

	// Persisted state
	StatePath string // SQLite database holding the portal list

	// Mirror directory for CLI open/watch
	MirrorDir string

	// Optional JSON Schema directory (one schema per item type)
	SchemaDir string

	// Optional metrics listener (watch mode); empty disables it
	MetricsAddr string
}

// Load reads configuration from environment variables with defaults.
func Load() (*Config, error) {
	cfg := &Config{
		LogLevel:     envOr("ARCGIS_LOG_LEVEL", "info"),
		LogFormat:    envOr("ARCGIS_LOG_FORMAT", "console"),
		AppID:        envOr("ARCGIS_APP_ID", "JYBrPM46vyNVTozY"),
		PageSize:     envInt("ARCGIS_PAGE_SIZE", 100),
		HTTPTimeout:  envDuration("ARCGIS_HTTP_TIMEOUT", 30*time.Second),
		AuthTimeout:  envDuration("ARCGIS_AUTH_TIMEOUT", 120*time.Second),
		CallbackPort: envInt("ARCGIS_CALLBACK_PORT", 3000),
		StatePath:    envOr("ARCGIS_STATE_PATH", defaultStatePath()),
		MirrorDir:    envOr("ARCGIS_MIRROR_DIR", ""),
		SchemaDir:    envOr("ARCGIS_SCHEMA_DIR", ""),
		MetricsAddr:  envOr("ARCGIS_METRICS_ADDR", ""),
	}

	if cfg.MirrorDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		cfg.MirrorDir = wd
	}

	return cfg, nil
}

func defaultStatePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "arcgis-assistant.db"
	}
	return filepath.Join(home, ".config", "arcgis-assistant", "state.db")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
