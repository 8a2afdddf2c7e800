// Package config loads application configuration from environment variables.
package config

import (
	"encoding/base64"
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	ListenAddr string
	DBPath     string
	APIBaseURL string
	APIToken   string
	OrgID      string
	SecretKey  []byte // 32-byte AES-256 key for the settings cache; nil disables it.
}

// HasCacheKey reports whether a cache encryption key is configured.
// Without one the local settings cache is disabled and the console
// relies solely on the remote API.
func (c *Config) HasCacheKey() bool {
	return len(c.SecretKey) == 32
}

// Load reads configuration from the environment, after a best-effort
// .env load for local development. Required: LEADPANEL_API_BASE_URL,
// LEADPANEL_ORG_ID. Optional with defaults: LEADPANEL_LISTEN_ADDR
// (127.0.0.1:8080), LEADPANEL_DB_PATH (leadpanel.db). Optional:
// LEADPANEL_API_TOKEN, LEADPANEL_SECRET_KEY (base64 of 32 bytes).
func Load() (*Config, error) {
	_ = godotenv.Load()

	baseURL := os.Getenv("LEADPANEL_API_BASE_URL")
	if baseURL == "" {
		return nil, fmt.Errorf("LEADPANEL_API_BASE_URL is required")
	}

	orgID := os.Getenv("LEADPANEL_ORG_ID")
	if orgID == "" {
		return nil, fmt.Errorf("LEADPANEL_ORG_ID is required")
	}

	listenAddr := "127.0.0.1:8080"
	if v, ok := os.LookupEnv("LEADPANEL_LISTEN_ADDR"); ok {
		listenAddr = v
	}

	dbPath := "leadpanel.db"
	if v, ok := os.LookupEnv("LEADPANEL_DB_PATH"); ok {
		dbPath = v
	}

	var secretKey []byte
	if v, ok := os.LookupEnv("LEADPANEL_SECRET_KEY"); ok && v != "" {
		decoded, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			return nil, fmt.Errorf("LEADPANEL_SECRET_KEY is not valid base64: %w", err)
		}
		if len(decoded) != 32 {
			return nil, fmt.Errorf("LEADPANEL_SECRET_KEY must decode to 32 bytes, got %d", len(decoded))
		}
		secretKey = decoded
	}

	return &Config{
		ListenAddr: listenAddr,
		DBPath:     dbPath,
		APIBaseURL: baseURL,
		APIToken:   os.Getenv("LEADPANEL_API_TOKEN"),
		OrgID:      orgID,
		SecretKey:  secretKey,
	}, nil
}
