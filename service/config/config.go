package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
// All required fields are validated at startup to ensure fail-fast behavior.
type Config struct {
	// Server configuration
	ServerAddr string
	LogLevel   string

	// Database configuration (optional). When set, the recent mints list
	// is kept in Postgres instead of a local file.
	DatabaseURL string

	// NATS configuration (optional). When set, notifications are published
	// to JetStream and the SSE stream endpoint is enabled.
	NATSURL string

	// Solana configuration
	SolanaRPCURL  string
	SolanaNetwork string
	RPCRateLimit  float64

	// Wallet configuration
	KeyringService     string
	KeyringDir         string
	KeyringPassword    string
	WalletName         string
	AutoApproveSigning bool
	// PromptSigning asks on the server's terminal when auto approval is off.
	PromptSigning bool

	// Session and lifecycle configuration
	BalanceRefreshInterval time.Duration
	NotificationTTL        time.Duration
	ConfirmTimeout         time.Duration
	ConfirmPollInterval    time.Duration
	HistoryLimit           int

	// Local persistence
	RecentMintsPath string
}

// Load reads configuration from environment variables and validates all required fields.
// A .env file in the working directory is loaded first if present; variables already
// set in the environment win.
// Returns an error if any required configuration is missing or invalid.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	var errs []error

	// Server configuration
	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":8080")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.NATSURL = os.Getenv("NATS_URL")

	// Solana configuration
	cfg.SolanaRPCURL = os.Getenv("SOLANA_RPC_URL")
	if cfg.SolanaRPCURL == "" {
		errs = append(errs, fmt.Errorf("SOLANA_RPC_URL is required"))
	}
	cfg.SolanaNetwork = getEnvOrDefault("SOLANA_NETWORK", "devnet")
	if cfg.SolanaNetwork != "mainnet" && cfg.SolanaNetwork != "devnet" && cfg.SolanaNetwork != "testnet" && cfg.SolanaNetwork != "localnet" {
		errs = append(errs, fmt.Errorf("SOLANA_NETWORK must be one of mainnet, devnet, testnet, localnet (got %q)", cfg.SolanaNetwork))
	}

	rateLimit, err := parseFloat("RPC_RATE_LIMIT", 5)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.RPCRateLimit = rateLimit
	}

	// Wallet configuration
	cfg.KeyringService = getEnvOrDefault("KEYRING_SERVICE", "mintdash")
	cfg.KeyringDir = os.Getenv("KEYRING_DIR")
	cfg.KeyringPassword = os.Getenv("KEYRING_PASSWORD")
	cfg.WalletName = getEnvOrDefault("WALLET_NAME", "default")
	autoApprove, err := parseBool("AUTO_APPROVE_SIGNING", false)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.AutoApproveSigning = autoApprove
	}
	promptSigning, err := parseBool("PROMPT_SIGNING", false)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.PromptSigning = promptSigning
	}

	// Session and lifecycle configuration
	refresh, err := parseDuration("BALANCE_REFRESH_INTERVAL", "15s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.BalanceRefreshInterval = refresh
	}

	ttl, err := parseDuration("NOTIFICATION_TTL", "5s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.NotificationTTL = ttl
	}

	confirmTimeout, err := parseDuration("CONFIRM_TIMEOUT", "60s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.ConfirmTimeout = confirmTimeout
	}

	confirmPoll, err := parseDuration("CONFIRM_POLL_INTERVAL", "500ms")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.ConfirmPollInterval = confirmPoll
	}

	historyLimit, err := parseInt("HISTORY_LIMIT", 10)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.HistoryLimit = historyLimit
	}

	cfg.RecentMintsPath = getEnvOrDefault("RECENT_MINTS_PATH", defaultRecentMintsPath())

	if len(errs) == 0 {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	// Return all validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
// Useful for server initialization where misconfiguration should halt startup.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks if the configuration is valid.
// This is useful for testing configuration without loading from env.
func (c *Config) Validate() error {
	var errs []error

	if c.SolanaRPCURL == "" {
		errs = append(errs, fmt.Errorf("SolanaRPCURL is required"))
	}

	if c.WalletName == "" {
		errs = append(errs, fmt.Errorf("WalletName is required"))
	}

	if c.KeyringService == "" {
		errs = append(errs, fmt.Errorf("KeyringService is required"))
	}

	if c.BalanceRefreshInterval < time.Second {
		errs = append(errs, fmt.Errorf("BalanceRefreshInterval must be at least 1 second"))
	}

	if c.NotificationTTL <= 0 {
		errs = append(errs, fmt.Errorf("NotificationTTL must be positive"))
	}

	if c.ConfirmTimeout <= 0 {
		errs = append(errs, fmt.Errorf("ConfirmTimeout must be positive"))
	}

	if c.ConfirmPollInterval <= 0 || c.ConfirmPollInterval > c.ConfirmTimeout {
		errs = append(errs, fmt.Errorf("ConfirmPollInterval must be positive and not exceed ConfirmTimeout"))
	}

	if c.HistoryLimit < 1 || c.HistoryLimit > 1000 {
		errs = append(errs, fmt.Errorf("HistoryLimit must be between 1 and 1000"))
	}

	if c.RPCRateLimit <= 0 {
		errs = append(errs, fmt.Errorf("RPCRateLimit must be positive"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

// defaultRecentMintsPath places the recent mints file in the user's config dir.
func defaultRecentMintsPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "recent_mints.json"
	}
	return filepath.Join(dir, "mintdash", "recent_mints.json")
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration parses a duration from an environment variable or uses a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}

// parseInt parses an integer from an environment variable or uses a default.
func parseInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return result, nil
}

func parseFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid number %q: %w", key, value, err)
	}
	return result, nil
}

func parseBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s: invalid boolean %q: %w", key, value, err)
	}
	return result, nil
}
