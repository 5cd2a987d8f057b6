package testutil

import (
	"database/sql"
	"math/rand"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ndewijer/networth-tracker/internal/config"
	"github.com/ndewijer/networth-tracker/internal/logging"
	"github.com/ndewijer/networth-tracker/internal/market"
	"github.com/ndewijer/networth-tracker/internal/repository"
	"github.com/ndewijer/networth-tracker/internal/service"
)

// TestMarketConfig returns market settings with short timeouts and a single attempt,
// so failing providers do not slow tests down.
func TestMarketConfig() config.MarketConfig {
	cfg := config.DefaultMarketConfig()
	cfg.CallTimeout = 2 * time.Second
	cfg.TotalTimeout = 3 * time.Second
	cfg.LockTimeout = time.Second
	cfg.RetryAttempts = 1
	cfg.RetryBaseDelay = time.Millisecond
	return cfg
}

// TestPortfolioConfig returns a portfolio valued in EUR with USD as secondary currency.
func TestPortfolioConfig() config.PortfolioConfig {
	return config.PortfolioConfig{
		MainCurrency:        "EUR",
		SecondaryCurrencies: []string{"USD"},
	}
}

// NewTestFetcher wraps provider in a Fetcher reporting to a fresh Monitor.
func NewTestFetcher(t *testing.T, provider market.Provider) (*market.Fetcher, *market.Monitor) {
	t.Helper()

	monitor := market.NewMonitor()
	return market.NewFetcher(provider, TestMarketConfig(), monitor, logging.Component(logging.Discard(), "fetcher")), monitor
}

// NewTestMarketService creates a MarketDataService backed by db and the given provider.
//
// Example usage:
//
//	provider := testutil.NewMockProvider().WithQuote("EURUSD=X", 1.09)
//	svc := testutil.NewTestMarketService(t, db, provider)
func NewTestMarketService(t *testing.T, db *sql.DB, provider market.Provider) *service.MarketDataService {
	t.Helper()

	fetcher, _ := NewTestFetcher(t, provider)
	return service.NewMarketDataService(
		repository.NewRateRepository(db),
		fetcher,
		market.NewKeyedLocks(),
		TestMarketConfig(),
		logging.Discard(),
	)
}

func NewTestDataLoaderService(t *testing.T, db *sql.DB) *service.DataLoaderService {
	t.Helper()

	return service.NewDataLoaderService(
		repository.NewAssetRepository(db),
		repository.NewTransactionRepository(db),
		repository.NewManualValuationRepository(db),
	)
}

// NewTestPortfolioService creates a PortfolioService valued in EUR over the given provider.
func NewTestPortfolioService(t *testing.T, db *sql.DB, provider market.Provider) *service.PortfolioService {
	t.Helper()

	return service.NewPortfolioService(
		NewTestDataLoaderService(t, db),
		NewTestMarketService(t, db, provider),
		TestPortfolioConfig(),
		logging.Discard(),
	)
}

func NewTestCompactionService(t *testing.T, db *sql.DB) *service.CompactionService {
	t.Helper()

	return service.NewCompactionService(
		repository.NewRateRepository(db),
		config.DefaultCompactionConfig(),
		logging.Discard(),
	)
}

// NewTestBackfillService creates a BackfillService fetching through the given provider.
func NewTestBackfillService(t *testing.T, db *sql.DB, provider market.Provider) *service.BackfillService {
	t.Helper()

	return service.NewBackfillService(
		NewTestMarketService(t, db, provider),
		repository.NewRateRepository(db),
		repository.NewAssetRepository(db),
		repository.NewTransactionRepository(db),
		config.DefaultBackfillConfig(),
		TestPortfolioConfig(),
		logging.Discard(),
	)
}

func NewTestSystemService(t *testing.T, db *sql.DB) *service.SystemService {
	t.Helper()

	return service.NewSystemService(db, market.NewMonitor(), nil, nil)
}

// NewTestAgentRunner creates a runner with the compaction, backfill and price refresh agents
// registered over db and provider. The runner is shut down when the test completes.
func NewTestAgentRunner(t *testing.T, db *sql.DB, provider market.Provider) *service.AgentRunner {
	t.Helper()

	marketSvc := NewTestMarketService(t, db, provider)
	runner := service.NewAgentRunner(logging.Discard())
	service.RegisterAgents(
		runner,
		NewTestCompactionService(t, db),
		service.NewBackfillService(
			marketSvc,
			repository.NewRateRepository(db),
			repository.NewAssetRepository(db),
			repository.NewTransactionRepository(db),
			config.DefaultBackfillConfig(),
			TestPortfolioConfig(),
			logging.Discard(),
		),
		marketSvc,
		NewTestDataLoaderService(t, db),
		TestPortfolioConfig(),
	)
	t.Cleanup(runner.Shutdown)
	return runner
}

// MakeID generates a UUID string for use in tests.
func MakeID() string {
	return uuid.New().String()
}

// MakeAssetName generates a unique asset name for testing.
//
// Example usage:
//
//	name := testutil.MakeAssetName("Savings")
//	// Returns: "Savings XYZ789"
func MakeAssetName(base string) string {
	if base == "" {
		base = "Asset"
	}
	return base + " " + randomAlphanumeric(6)
}

// randomAlphanumeric generates a random alphanumeric string of specified length.
func randomAlphanumeric(length int) string {
	const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	result := make([]byte, length)
	for i := range result {
		//nolint:gosec // G404: Using math/rand for test data generation is acceptable
		result[i] = charset[rand.Intn(len(charset))]
	}
	return string(result)
}

// Date returns midnight UTC of the given day.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
