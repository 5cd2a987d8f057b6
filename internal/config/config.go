package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/ndewijer/networth-tracker/internal/apperrors"
)

// Config holds all configuration for the application
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	CORS       CORSConfig
	Log        LogConfig
	Market     MarketConfig
	Compaction CompactionConfig
	Backfill   BackfillConfig
	Schedule   ScheduleConfig
	Portfolio  PortfolioConfig
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Port string
	Host string
	Addr string // Combined host:port for convenience
}

// DatabaseConfig holds database-specific configuration
type DatabaseConfig struct {
	Path string
}

// CORSConfig holds CORS-specific configuration
type CORSConfig struct {
	AllowedOrigins []string
}

// LogConfig controls the structured logger.
// An empty File logs to stdout; MaxAgeDays > 0 enables rotation.
type LogConfig struct {
	Level      string
	File       string
	MaxAgeDays int
	MaxSizeMB  int
}

// MarketConfig holds the quote fetch and rate cache settings.
type MarketConfig struct {
	// ProviderURL overrides the quote provider endpoint; empty uses the provider default.
	ProviderURL string

	// CallTimeout bounds a single provider request.
	CallTimeout time.Duration
	// TotalTimeout bounds one logical fetch including retries. Must exceed CallTimeout.
	TotalTimeout time.Duration
	// LockTimeout bounds waiting for the global fetch lock before degrading to fallback rates.
	LockTimeout time.Duration
	// FreshnessWindow is how long in-memory rates count as fresh for refresh-if-stale callers.
	FreshnessWindow time.Duration
	// BackoffDuration is how long the fetcher refuses provider calls after throttling.
	BackoffDuration time.Duration

	RetryAttempts  int
	RetryBaseDelay time.Duration

	// RequestsPerSecond and Burst throttle outgoing provider requests.
	RequestsPerSecond float64
	Burst             int
	// Workers bounds concurrent per-symbol provider requests.
	Workers int
}

// ScheduleConfig holds cron specs for the background agents. Empty specs disable the job.
type ScheduleConfig struct {
	Enabled      bool
	Compaction   string
	PriceRefresh string
	Backfill     string
}

// PortfolioConfig holds the user-level currency settings consumed by valuation and backfill.
type PortfolioConfig struct {
	MainCurrency        string
	SecondaryCurrencies []string
	// TrackedCurrencies are always included in automatic backfills.
	TrackedCurrencies []string
}

// Load reads configuration from environment variables and .env file.
// When AGENT_CONFIG_FILE is set, compaction, backfill and schedule settings are
// overridden from that YAML file.
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	config := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "5001"),
			Host: getEnv("SERVER_HOST", "localhost"),
		},
		Database: DatabaseConfig{
			Path: getEnv("DB_PATH", "./data/networth.db"),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{
				"http://localhost:3000",
				"http://localhost",
			}),
		},
		Log: LogConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			File:       getEnv("LOG_FILE", ""),
			MaxAgeDays: getEnvInt("LOG_MAX_AGE_DAYS", 7),
			MaxSizeMB:  getEnvInt("LOG_MAX_SIZE_MB", 100),
		},
		Market:     DefaultMarketConfig(),
		Compaction: DefaultCompactionConfig(),
		Backfill:   DefaultBackfillConfig(),
		Schedule: ScheduleConfig{
			Enabled:      getEnv("SCHEDULER_ENABLED", "true") == "true",
			Compaction:   getEnv("SCHEDULE_COMPACTION", "@hourly"),
			PriceRefresh: getEnv("SCHEDULE_PRICE_REFRESH", "@hourly"),
			Backfill:     getEnv("SCHEDULE_BACKFILL", "30 3 * * *"),
		},
		Portfolio: PortfolioConfig{
			MainCurrency:        strings.ToUpper(getEnv("MAIN_CURRENCY", "EUR")),
			SecondaryCurrencies: getEnvList("SECONDARY_CURRENCIES", nil),
			TrackedCurrencies:   getEnvList("TRACKED_CURRENCIES", nil),
		},
	}

	m := &config.Market
	m.CallTimeout = getEnvDuration("MARKET_CALL_TIMEOUT", m.CallTimeout)
	m.TotalTimeout = getEnvDuration("MARKET_TOTAL_TIMEOUT", m.TotalTimeout)
	m.LockTimeout = getEnvDuration("MARKET_LOCK_TIMEOUT", m.LockTimeout)
	m.FreshnessWindow = getEnvDuration("MARKET_CACHE_DURATION", m.FreshnessWindow)
	m.BackoffDuration = getEnvDuration("MARKET_BACKOFF", m.BackoffDuration)
	m.RetryAttempts = getEnvInt("MARKET_RETRY_ATTEMPTS", m.RetryAttempts)
	m.Workers = getEnvInt("MARKET_WORKERS", m.Workers)
	m.ProviderURL = getEnv("MARKET_PROVIDER_URL", "")

	if path := getEnv("AGENT_CONFIG_FILE", ""); path != "" {
		if err := config.loadAgentFile(path); err != nil {
			return nil, err
		}
	}

	if err := config.Market.Validate(); err != nil {
		return nil, err
	}
	if err := config.Compaction.Validate(); err != nil {
		return nil, err
	}
	if err := config.Backfill.Validate(); err != nil {
		return nil, err
	}

	// Combine host and port
	config.Server.Addr = fmt.Sprintf("%s:%s", config.Server.Host, config.Server.Port)

	return config, nil
}

// DefaultMarketConfig returns the market settings used when nothing is configured.
func DefaultMarketConfig() MarketConfig {
	return MarketConfig{
		CallTimeout:       10 * time.Second,
		TotalTimeout:      15 * time.Second,
		LockTimeout:       10 * time.Second,
		FreshnessWindow:   15 * time.Minute,
		BackoffDuration:   15 * time.Minute,
		RetryAttempts:     2,
		RetryBaseDelay:    500 * time.Millisecond,
		RequestsPerSecond: 2,
		Burst:             4,
		Workers:           4,
	}
}

// Validate checks that the timeouts are usable.
func (m MarketConfig) Validate() error {
	if m.CallTimeout <= 0 || m.LockTimeout <= 0 {
		return fmt.Errorf("%w: market timeouts must be positive", apperrors.ErrInvalidConfigValue)
	}
	if m.TotalTimeout <= m.CallTimeout {
		return fmt.Errorf("%w: total fetch timeout %s must exceed call timeout %s", apperrors.ErrInvalidConfigValue, m.TotalTimeout, m.CallTimeout)
	}
	if m.RetryAttempts < 1 || m.Workers < 1 {
		return fmt.Errorf("%w: retry attempts and workers must be at least 1", apperrors.ErrInvalidConfigValue)
	}
	return nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvList splits a comma-separated variable, dropping blanks.
func getEnvList(key string, defaultValue []string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
