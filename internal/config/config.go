package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultAPIBaseURL     = "https://r28fisu1gi.execute-api.ap-south-1.amazonaws.com"
	DefaultTenant         = "stguat"
	DefaultRequestTimeout = 60 * time.Second
)

// Config holds application configuration
type Config struct {
	APIBaseURL     string
	DBPath         string        // SQLite file holding the persisted identity
	LogDir         string        // log, trace and metric files
	DownloadDir    string        // where PDF replies are written
	DefaultTenant  string        // tenant used before any login
	RequestTimeout time.Duration // per backend request
	RequireToken   bool          // login must return an access token
	Ephemeral      bool          // keep identity in memory only
	Debug          bool
}

// Load reads configuration from an optional .env file and the environment
func Load() (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	cfg := &Config{
		APIBaseURL:     getEnv("OMSCHAT_API_BASE_URL", DefaultAPIBaseURL),
		DBPath:         getEnv("OMSCHAT_DB_PATH", "omschat.db"),
		LogDir:         getEnv("OMSCHAT_LOG_DIR", "logs"),
		DownloadDir:    getEnv("OMSCHAT_DOWNLOAD_DIR", "downloads"),
		DefaultTenant:  getEnv("OMSCHAT_DEFAULT_TENANT", DefaultTenant),
		RequestTimeout: getEnvDuration("OMSCHAT_REQUEST_TIMEOUT", DefaultRequestTimeout),
		RequireToken:   getEnvBool("OMSCHAT_REQUIRE_TOKEN", true),
		Ephemeral:      getEnvBool("OMSCHAT_EPHEMERAL", false),
		Debug:          getEnvBool("OMSCHAT_DEBUG", false),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that all required configuration fields are set
func (c *Config) Validate() error {
	if c.APIBaseURL == "" {
		return fmt.Errorf("OMSCHAT_API_BASE_URL cannot be empty")
	}
	if c.DBPath == "" && !c.Ephemeral {
		return fmt.Errorf("OMSCHAT_DB_PATH cannot be empty")
	}
	if c.LogDir == "" {
		return fmt.Errorf("OMSCHAT_LOG_DIR cannot be empty")
	}
	if c.DownloadDir == "" {
		return fmt.Errorf("OMSCHAT_DOWNLOAD_DIR cannot be empty")
	}
	if c.DefaultTenant == "" {
		return fmt.Errorf("OMSCHAT_DEFAULT_TENANT cannot be empty")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("OMSCHAT_REQUEST_TIMEOUT must be > 0")
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
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
