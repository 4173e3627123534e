// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port  string
	Token string

	// Remote service location. AppURL is normally derived from Space and
	// only overridden for local testing.
	RemoteSpace  string
	RemoteHubURL string
	RemoteAppURL string

	// DisableQueue passes the opaque queue-bypass toggle to the remote
	// transport. Its semantics are remote-defined.
	DisableQueue bool

	// StartInFallback starts the app in degraded local mode without
	// attempting a remote connection.
	StartInFallback bool

	DataDir    string
	DBPath     string
	SessionTTL time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:            getEnv("PORT", "5050"),
		Token:           getEnv("VISOLEARN_TOKEN", ""),
		RemoteSpace:     getEnv("REMOTE_SPACE", "Compumacy/VisoLearn"),
		RemoteHubURL:    getEnv("REMOTE_HUB_URL", "https://huggingface.co"),
		RemoteAppURL:    getEnv("REMOTE_APP_URL", ""),
		DisableQueue:    getEnvBool("DISABLE_REMOTE_QUEUE", false),
		StartInFallback: getEnvBool("FALLBACK_MODE", false),
		DataDir:         getEnv("DATA_DIR", "./data"),
		DBPath:          getEnv("DB_PATH", "./data/visolearn.db"),
		SessionTTL:      getEnvDuration("SESSION_TTL", 0),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.RemoteSpace == "" || !strings.Contains(c.RemoteSpace, "/") {
		return fmt.Errorf("REMOTE_SPACE must be an owner/name identifier, got %q", c.RemoteSpace)
	}
	if c.RemoteHubURL == "" {
		return fmt.Errorf("REMOTE_HUB_URL cannot be empty")
	}
	if c.DataDir == "" {
		return fmt.Errorf("DATA_DIR cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.SessionTTL < 0 {
		return fmt.Errorf("SESSION_TTL cannot be negative")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	// Bare numbers are taken as minutes.
	if n, err := strconv.Atoi(value); err == nil {
		return time.Duration(n) * time.Minute
	}
	return fallback
}
