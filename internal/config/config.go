// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration, shared by the console and
// the development relay.
type Config struct {
	// WSURL is the chat channel endpoint.
	WSURL string
	// APIBaseURL is the platform REST base path.
	APIBaseURL string
	// UserRole is the participant role attached to outbound messages.
	UserRole string
	// DBPath locates the transcript database.
	DBPath string
	// HistoryEnabled toggles transcript persistence.
	HistoryEnabled bool
	// Heartbeat is the requested STOMP keep-alive interval.
	Heartbeat time.Duration
	// ReconnectDelay is the backoff before reconnecting after an
	// unexpected close.
	ReconnectDelay time.Duration
	// ContextWindow caps how many prior messages accompany each send.
	ContextWindow int

	Relay RelayConfig
}

// RelayConfig controls the development relay server.
type RelayConfig struct {
	Port          string
	AllowedOrigin string
	ChunkDelay    time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		WSURL:          getEnv("WS_URL", "ws://localhost:8080/ws"),
		APIBaseURL:     getEnv("API_BASE_URL", "http://localhost:8080/api"),
		UserRole:       getEnv("USER_ROLE", "coordinador"),
		DBPath:         getEnv("DB_PATH", "./data/console.db"),
		HistoryEnabled: getEnvBool("HISTORY_ENABLED", true),
		Heartbeat:      getEnvDurationMs("HEARTBEAT_MS", 4000),
		ReconnectDelay: getEnvDurationMs("RECONNECT_DELAY_MS", 5000),
		ContextWindow:  getEnvInt("CONTEXT_WINDOW", 10),
		Relay: RelayConfig{
			Port:          getEnv("PORT", "8080"),
			AllowedOrigin: getEnv("ALLOWED_ORIGIN", ""),
			ChunkDelay:    getEnvDurationMs("RELAY_CHUNK_DELAY_MS", 150),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.WSURL == "" {
		return fmt.Errorf("WS_URL cannot be empty")
	}
	if c.APIBaseURL == "" {
		return fmt.Errorf("API_BASE_URL cannot be empty")
	}
	if c.UserRole == "" {
		return fmt.Errorf("USER_ROLE cannot be empty")
	}
	if c.HistoryEnabled && c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty when HISTORY_ENABLED")
	}
	if c.ContextWindow <= 0 {
		return fmt.Errorf("CONTEXT_WINDOW must be > 0")
	}
	if c.ReconnectDelay <= 0 {
		return fmt.Errorf("RECONNECT_DELAY_MS must be > 0")
	}
	if c.Relay.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	return nil
}

// IsDevelopment returns true if the relay runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Relay.AllowedOrigin == "" ||
		strings.Contains(c.Relay.AllowedOrigin, "localhost") ||
		strings.Contains(c.Relay.AllowedOrigin, "127.0.0.1")
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

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDurationMs(key string, fallbackMs int) time.Duration {
	return time.Duration(getEnvInt(key, fallbackMs)) * time.Millisecond
}
