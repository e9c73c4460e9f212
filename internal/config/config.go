// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir        string        // Directory holding the local store database (always absolute)
	SessionScope   string        // Namespace for the token and portfolioCache slots
	AuthServiceURL string        // Base URL of the auth service (…/api/auth/*)
	AssetStoreURL  string        // Base URL of the asset store (…/api/assets)
	MarketDataURL  string        // CoinGecko-compatible API root
	ServiceTimeout time.Duration // Per-request timeout for the auth and asset services
	LogLevel       string
	Port           int
	DevMode        bool
	Market         *MarketConfig
	Refresh        *RefreshConfig
	Notifications  *NotificationConfig
}

// MarketConfig tunes the market data client
type MarketConfig struct {
	Timeout        time.Duration
	RequestsPerMin int // Client-side throttle, the public API allows ~30/min
	Burst          int
	BreakerTimeout time.Duration // How long the breaker stays open after tripping
}

// RefreshConfig controls the periodic portfolio refresh
type RefreshConfig struct {
	Schedule            string // cron spec, e.g. "@every 60s"; empty disables the job
	CleanupSchedule     string
	MaintenanceSchedule string // integrity check and VACUUM of the local store
	FallbackPolicy      string // buy_price, zero, previous
}

// NotificationConfig controls the notification queue
type NotificationConfig struct {
	TTL time.Duration
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("CRYPTOVAULT_DATA_DIR", "")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		dataDir = filepath.Join(home, ".cryptovault")
	}

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	backendURL := getEnv("CRYPTOVAULT_BACKEND_URL", "http://localhost:5000")

	cfg := &Config{
		DataDir:        absDataDir,
		SessionScope:   getEnv("CRYPTOVAULT_SESSION", "default"),
		AuthServiceURL: getEnv("CRYPTOVAULT_AUTH_URL", backendURL),
		AssetStoreURL:  getEnv("CRYPTOVAULT_ASSETS_URL", backendURL),
		MarketDataURL:  getEnv("CRYPTOVAULT_MARKET_URL", "https://api.coingecko.com/api/v3"),
		ServiceTimeout: getEnvAsDuration("CRYPTOVAULT_SERVICE_TIMEOUT", 10*time.Second),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		Port:           getEnvAsInt("CRYPTOVAULT_PORT", 8080),
		DevMode:        getEnvAsBool("DEV_MODE", false),
		Market: &MarketConfig{
			Timeout:        getEnvAsDuration("CRYPTOVAULT_MARKET_TIMEOUT", 10*time.Second),
			RequestsPerMin: getEnvAsInt("CRYPTOVAULT_MARKET_RPM", 30),
			Burst:          getEnvAsInt("CRYPTOVAULT_MARKET_BURST", 5),
			BreakerTimeout: getEnvAsDuration("CRYPTOVAULT_MARKET_BREAKER_TIMEOUT", 60*time.Second),
		},
		Refresh: &RefreshConfig{
			Schedule:            getEnv("CRYPTOVAULT_REFRESH_SCHEDULE", "@every 60s"),
			CleanupSchedule:     getEnv("CRYPTOVAULT_CLEANUP_SCHEDULE", "@daily"),
			MaintenanceSchedule: getEnv("CRYPTOVAULT_MAINTENANCE_SCHEDULE", "@weekly"),
			FallbackPolicy:      getEnv("CRYPTOVAULT_PRICE_FALLBACK", "buy_price"),
		},
		Notifications: &NotificationConfig{
			TTL: getEnvAsDuration("CRYPTOVAULT_NOTIFICATION_TTL", 4*time.Second),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// DatabasePath returns the location of the local store database
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "local.db")
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	for name, raw := range map[string]string{
		"CRYPTOVAULT_AUTH_URL":   c.AuthServiceURL,
		"CRYPTOVAULT_ASSETS_URL": c.AssetStoreURL,
		"CRYPTOVAULT_MARKET_URL": c.MarketDataURL,
	} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%s must be an absolute URL, got %q", name, raw)
		}
	}

	if c.SessionScope == "" {
		return fmt.Errorf("CRYPTOVAULT_SESSION must not be empty")
	}

	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}

	if c.ServiceTimeout < 0 {
		return fmt.Errorf("CRYPTOVAULT_SERVICE_TIMEOUT must not be negative")
	}

	if c.Market != nil && c.Market.RequestsPerMin <= 0 {
		return fmt.Errorf("CRYPTOVAULT_MARKET_RPM must be positive")
	}

	if c.Refresh != nil {
		switch c.Refresh.FallbackPolicy {
		case "buy_price", "zero", "previous":
		default:
			return fmt.Errorf("unknown price fallback policy %q", c.Refresh.FallbackPolicy)
		}
	}

	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
