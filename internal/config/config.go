// Package config provides configuration management functionality.
//
// This package handles loading configuration from environment variables (.env
// file) and environment variables directly. Environment variables always win
// over .env file defaults, matching godotenv's own precedence.
//
// Data Directory Priority (highest to lowest):
// 1. --data-dir CLI flag (if provided)
// 2. PORTFOLIO_DATA_DIR environment variable
// 3. ./data (default)
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	DataDir      string        // Base directory for all databases, always resolved to an absolute path
	BaseCurrency string        // Default reporting currency used when an account has none configured
	Port         int           // HTTP server port
	DevMode      bool          // Development mode flag
	LogLevel     string        // Log level (debug, info, warn, error)
	ExchangeRateAPIKey string  // API key for the exchange rate provider, if the configured provider requires one
	AlphaVantageAPIKey string  // API key for the Alpha Vantage market data provider
	ProviderRateLimitRPM int   // Requests-per-minute setting (PROVIDER_RATE_LIMIT_RPM); providers currently use their own declared rate limits and do not read it
	QuoteSyncInterval time.Duration // How often the quote-sync liveness loop wakes to check for due symbols
	Peer         PeerConfig    // P2P sync peer configuration
}

// PeerConfig holds configuration for the peer-to-peer sync engine.
type PeerConfig struct {
	Enabled         bool          // Enable the sync engine
	PeerID          string        // This node's stable peer identifier, read from SYNC_PEER_ID; left empty when unset
	ListenAddr      string        // Address the sync engine listens on for incoming peer connections
	PeerAddrs       []string      // Addresses of peers to dial and maintain outbound connections to
	ReconnectMinDelay time.Duration // Initial reconnect backoff
	ReconnectMaxDelay time.Duration // Reconnect backoff ceiling
}

// Load reads configuration from environment variables.
//
// dataDirOverride - Optional CLI flag override for data directory (takes highest priority)
func Load(dataDirOverride ...string) (*Config, error) {
	_ = godotenv.Load()

	var dataDir string
	if len(dataDirOverride) > 0 && dataDirOverride[0] != "" {
		dataDir = dataDirOverride[0]
	} else {
		dataDir = getEnv("PORTFOLIO_DATA_DIR", "")
		if dataDir == "" {
			dataDir = "./data"
		}
	}

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:              absDataDir,
		BaseCurrency:         strings.ToUpper(getEnv("BASE_CURRENCY", "USD")),
		Port:                 getEnvAsInt("PORT", 8080),
		DevMode:              getEnvAsBool("DEV_MODE", false),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		ExchangeRateAPIKey:   getEnv("EXCHANGERATE_API_KEY", ""),
		AlphaVantageAPIKey:   getEnv("ALPHAVANTAGE_API_KEY", ""),
		ProviderRateLimitRPM: getEnvAsInt("PROVIDER_RATE_LIMIT_RPM", 60),
		QuoteSyncInterval:    time.Duration(getEnvAsInt("QUOTE_SYNC_INTERVAL_SECONDS", 900)) * time.Second,
		Peer: PeerConfig{
			Enabled:           getEnvAsBool("SYNC_ENABLED", false),
			PeerID:            getEnv("SYNC_PEER_ID", ""),
			ListenAddr:        getEnv("SYNC_LISTEN_ADDR", ":7400"),
			PeerAddrs:         getEnvAsList("SYNC_PEER_ADDRS"),
			ReconnectMinDelay: time.Duration(getEnvAsInt("SYNC_RECONNECT_MIN_SECONDS", 5)) * time.Second,
			ReconnectMaxDelay: time.Duration(getEnvAsInt("SYNC_RECONNECT_MAX_SECONDS", 300)) * time.Second,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present.
func (c *Config) Validate() error {
	if c.BaseCurrency == "" {
		return fmt.Errorf("BASE_CURRENCY must not be empty")
	}
	if c.Peer.Enabled && c.Peer.ListenAddr == "" {
		return fmt.Errorf("SYNC_LISTEN_ADDR must be set when sync is enabled")
	}
	return nil
}

// getEnv retrieves an environment variable with a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer with a default value.
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean with a default value.
func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// getEnvAsList retrieves a comma-separated environment variable as a string slice.
// Empty entries are dropped; returns nil if the variable is unset or empty.
func getEnvAsList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
