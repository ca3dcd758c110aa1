package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration loaded from environment variables.
// All required fields are validated at startup to ensure fail-fast behavior.
type Config struct {
	// Server configuration
	ServerAddr  string
	MetricsAddr string
	LogLevel    string

	// Database configuration
	DatabaseURL string

	// NATS configuration. Empty means console events stay in-process.
	NATSURL string

	// Solana configuration
	SolanaRPCURLs []string

	// Aggregator configuration
	UltraAPIURL    string
	ExplorerTxURL  string
	TakerAddress   string
	ExcludeDexes   string
	ExcludeRouters string
	HTTPTimeout    time.Duration

	// Key material
	PrivateKeyPath string

	// Pair form defaults
	DefaultSlippageBps         int
	DefaultPriorityFeeLamports int64

	// Dispatcher
	WorkerConcurrency int

	// Temporal configuration
	TemporalEnabled     bool
	TemporalHost        string
	TemporalNamespace   string
	TemporalTaskQueue   string
	BalancePollInterval time.Duration
}

// Load reads configuration from environment variables and validates all required fields.
// Returns an error if any required configuration is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":8080")
	cfg.MetricsAddr = getEnvOrDefault("METRICS_ADDR", ":9091")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		errs = append(errs, fmt.Errorf("DATABASE_URL is required"))
	}

	cfg.NATSURL = os.Getenv("NATS_URL")

	cfg.SolanaRPCURLs = splitList(getEnvOrDefault("SOLANA_RPC_URLS", "https://api.mainnet-beta.solana.com/"))
	if len(cfg.SolanaRPCURLs) == 0 {
		errs = append(errs, fmt.Errorf("SOLANA_RPC_URLS must list at least one endpoint"))
	}

	cfg.UltraAPIURL = strings.TrimRight(getEnvOrDefault("ULTRA_API_URL", "https://ultra-api.jup.ag"), "/")
	if _, err := url.ParseRequestURI(cfg.UltraAPIURL); err != nil {
		errs = append(errs, fmt.Errorf("ULTRA_API_URL: invalid url %q: %w", cfg.UltraAPIURL, err))
	}
	cfg.ExplorerTxURL = getEnvOrDefault("EXPLORER_TX_URL", "https://explorer.solana.com/tx/")
	cfg.TakerAddress = os.Getenv("TAKER_ADDRESS")
	cfg.ExcludeDexes = os.Getenv("EXCLUDE_DEXES")
	cfg.ExcludeRouters = os.Getenv("EXCLUDE_ROUTERS")

	timeout, err := parseDuration("HTTP_TIMEOUT", "30s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.HTTPTimeout = timeout
	}

	cfg.PrivateKeyPath = getEnvOrDefault("PRIVATE_KEY_PATH", "./private_key.txt")

	slippage, err := parseInt("DEFAULT_SLIPPAGE_BPS", 300)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.DefaultSlippageBps = slippage
	}

	fee, err := parseInt("DEFAULT_PRIORITY_FEE_LAMPORTS", 500000)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.DefaultPriorityFeeLamports = int64(fee)
	}

	concurrency, err := parseInt("WORKER_CONCURRENCY", 8)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.WorkerConcurrency = concurrency
	}

	enabled, err := parseBool("TEMPORAL_ENABLED", false)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.TemporalEnabled = enabled
	}
	cfg.TemporalHost = getEnvOrDefault("TEMPORAL_HOST", "localhost:7233")
	cfg.TemporalNamespace = getEnvOrDefault("TEMPORAL_NAMESPACE", "default")
	cfg.TemporalTaskQueue = getEnvOrDefault("TEMPORAL_TASK_QUEUE", "ultraswap-balance-polling")

	interval, err := parseDuration("BALANCE_POLL_INTERVAL", "10s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.BalancePollInterval = interval
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
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

	if c.DatabaseURL == "" {
		errs = append(errs, fmt.Errorf("DatabaseURL is required"))
	}

	if len(c.SolanaRPCURLs) == 0 {
		errs = append(errs, fmt.Errorf("SolanaRPCURLs is required"))
	}

	if c.UltraAPIURL == "" {
		errs = append(errs, fmt.Errorf("UltraAPIURL is required"))
	}

	if c.PrivateKeyPath == "" {
		errs = append(errs, fmt.Errorf("PrivateKeyPath is required"))
	}

	if c.DefaultSlippageBps < 0 || c.DefaultSlippageBps > 10000 {
		errs = append(errs, fmt.Errorf("DefaultSlippageBps must be between 0 and 10000, got %d", c.DefaultSlippageBps))
	}

	if c.DefaultPriorityFeeLamports < 0 {
		errs = append(errs, fmt.Errorf("DefaultPriorityFeeLamports cannot be negative"))
	}

	if c.WorkerConcurrency < 1 {
		errs = append(errs, fmt.Errorf("WorkerConcurrency must be at least 1"))
	}

	if c.HTTPTimeout <= 0 {
		errs = append(errs, fmt.Errorf("HTTPTimeout must be positive"))
	}

	if c.TemporalEnabled {
		if c.TemporalHost == "" {
			errs = append(errs, fmt.Errorf("TemporalHost is required"))
		}
		if c.TemporalNamespace == "" {
			errs = append(errs, fmt.Errorf("TemporalNamespace is required"))
		}
		if c.TemporalTaskQueue == "" {
			errs = append(errs, fmt.Errorf("TemporalTaskQueue is required"))
		}
		if c.BalancePollInterval < time.Second {
			errs = append(errs, fmt.Errorf("BalancePollInterval must be at least 1 second"))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
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

// splitList splits a comma separated value, dropping empty entries.
func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
