package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"cryptoPositionWatch/internal/adapters/logger" // Import the logger package for LogLevel
	"cryptoPositionWatch/internal/ports"
)

const maxWorkerPoolSize = 64

// Config holds all application configuration.
type Config struct {
	// Binance API
	APIKey    string
	SecretKey string
	IsTestnet bool

	// Storage
	PositionsFile string
	JournalDBPath string

	// Caching
	CacheTTL         time.Duration // Open order statuses
	TerminalCacheTTL time.Duration // Filled or cancelled order statuses

	// Reconciliation
	ReconcileInterval         time.Duration
	WorkerPoolSize            int
	GatewayTimeout            time.Duration
	NotifyTimeout             time.Duration
	TreatMissingOrderAsFilled bool

	// Journal maintenance
	JournalRetention    time.Duration
	MaintenanceInterval time.Duration

	// Telegram (optional; closures are only logged when the token is empty)
	TelegramBotToken string
	TelegramChatID   int64

	// Admin HTTP server; empty disables it
	AdminAddr string

	// Logging
	LogLevel logger.LogLevel // Use the LogLevel type from the logger adapter
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect parse errors, then validation errors

	// Binance API
	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", true) // Default to testnet for safety

	// Storage
	cfg.PositionsFile = getEnv("POSITIONS_FILE", "./data/openedPositions.json")
	cfg.JournalDBPath = getEnv("JOURNAL_DB_PATH", "./data/closures.db")

	// Caching
	cfg.CacheTTL, err = getEnvAsDurationRequired("CACHE_TTL_SECONDS", 20, time.Second)
	if err != nil {
		errs = append(errs, err.Error())
	}
	cfg.TerminalCacheTTL, err = getEnvAsDurationRequired("TERMINAL_CACHE_TTL_SECONDS", 300, time.Second)
	if err != nil {
		errs = append(errs, err.Error())
	}

	// Reconciliation
	cfg.ReconcileInterval, err = getEnvAsDurationRequired("RECONCILE_INTERVAL_SECONDS", 10, time.Second)
	if err != nil {
		errs = append(errs, err.Error())
	}
	cfg.WorkerPoolSize, err = getEnvAsIntRequired("WORKER_POOL_SIZE", 5)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid WORKER_POOL_SIZE: %v", err))
	}
	cfg.GatewayTimeout, err = getEnvAsDurationRequired("GATEWAY_TIMEOUT_SECONDS", 10, time.Second)
	if err != nil {
		errs = append(errs, err.Error())
	}
	cfg.NotifyTimeout, err = getEnvAsDurationRequired("NOTIFY_TIMEOUT_SECONDS", 10, time.Second)
	if err != nil {
		errs = append(errs, err.Error())
	}
	cfg.TreatMissingOrderAsFilled = getEnvAsBool("TREAT_MISSING_ORDER_AS_FILLED", true)

	// Journal maintenance
	cfg.JournalRetention, err = getEnvAsDurationRequired("JOURNAL_RETENTION_HOURS", 168, time.Hour)
	if err != nil {
		errs = append(errs, err.Error())
	}
	cfg.MaintenanceInterval, err = getEnvAsDurationRequired("MAINTENANCE_INTERVAL_MINUTES", 60, time.Minute)
	if err != nil {
		errs = append(errs, err.Error())
	}

	// Telegram
	cfg.TelegramBotToken = getEnv("TELEGRAM_BOT_TOKEN", "")
	if raw := getEnv("TELEGRAM_CHAT_ID", ""); raw != "" {
		cfg.TelegramChatID, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Sprintf("invalid TELEGRAM_CHAT_ID '%s': %v", raw, err))
		}
	}

	cfg.AdminAddr = os.Getenv("ADMIN_ADDR")
	if _, set := os.LookupEnv("ADMIN_ADDR"); !set {
		cfg.AdminAddr = ":9090"
	}

	// Logging
	logLevelStr := getEnv("LOG_LEVEL", "INFO")
	cfg.LogLevel = logger.ParseLevel(logLevelStr) // Use the parser from the logger package

	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: configuration validation failed: %s", ports.ErrValidation, strings.Join(errs, "; "))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges and cross-field rules. All problems are
// reported in one error wrapping ports.ErrValidation.
func (c *Config) Validate() error {
	var errs []string

	if c.APIKey == "" {
		errs = append(errs, "BINANCE_API_KEY must be set")
	}
	if c.SecretKey == "" {
		errs = append(errs, "BINANCE_API_SECRET must be set")
	}
	if c.PositionsFile == "" {
		errs = append(errs, "POSITIONS_FILE must be set")
	}
	if c.JournalDBPath == "" {
		errs = append(errs, "JOURNAL_DB_PATH must be set")
	}
	if c.CacheTTL <= 0 {
		errs = append(errs, "CACHE_TTL_SECONDS must be positive")
	}
	if c.TerminalCacheTTL < c.CacheTTL {
		errs = append(errs, "TERMINAL_CACHE_TTL_SECONDS must not be less than CACHE_TTL_SECONDS")
	}
	if c.ReconcileInterval <= 0 {
		errs = append(errs, "RECONCILE_INTERVAL_SECONDS must be positive")
	}
	if c.WorkerPoolSize < 1 || c.WorkerPoolSize > maxWorkerPoolSize {
		errs = append(errs, fmt.Sprintf("WORKER_POOL_SIZE must be between 1 and %d", maxWorkerPoolSize))
	}
	if c.GatewayTimeout <= 0 {
		errs = append(errs, "GATEWAY_TIMEOUT_SECONDS must be positive")
	}
	if c.NotifyTimeout <= 0 {
		errs = append(errs, "NOTIFY_TIMEOUT_SECONDS must be positive")
	}
	if c.JournalRetention <= 0 {
		errs = append(errs, "JOURNAL_RETENTION_HOURS must be positive")
	}
	if c.MaintenanceInterval <= 0 {
		errs = append(errs, "MAINTENANCE_INTERVAL_MINUTES must be positive")
	}
	if c.TelegramBotToken != "" && c.TelegramChatID == 0 {
		errs = append(errs, "TELEGRAM_CHAT_ID must be set when TELEGRAM_BOT_TOKEN is set")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: configuration validation failed: %s", ports.ErrValidation, strings.Join(errs, "; "))
	}
	return nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsIntRequired(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		// Use default if env var is not set at all
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		// Return error if env var is set but invalid
		return 0, fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

// getEnvAsDurationRequired reads an integer count of unit.
func getEnvAsDurationRequired(key string, defaultValue int, unit time.Duration) (time.Duration, error) {
	n, err := getEnvAsIntRequired(key, defaultValue)
	if err != nil {
		return 0, err
	}
	return time.Duration(n) * unit, nil
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
