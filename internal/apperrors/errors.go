package apperrors

import "errors"

// Quote provider errors describe why a fetch produced no data.
// They never escape the market layer as hard failures; callers degrade to fallback rates.
var (
	// ErrRateLimited indicates that the provider signalled throttling.
	// The fetcher enters its backoff state when it sees this error.
	ErrRateLimited = errors.New("quote provider rate limited")

	// ErrProviderUnavailable indicates a timeout, transport failure or empty provider response.
	ErrProviderUnavailable = errors.New("quote provider unavailable")

	// ErrBackoffActive indicates that a fetch was skipped because the fetcher is backing off.
	ErrBackoffActive = errors.New("quote fetcher in backoff")

	// ErrLockTimeout indicates that the global fetch lock could not be acquired in time.
	ErrLockTimeout = errors.New("timed out waiting for fetch lock")
)

// Data errors represent values rejected at the persistence boundary.
var (
	// ErrInvalidRate indicates a NaN, infinite, zero or negative rate.
	ErrInvalidRate = errors.New("invalid rate")

	// ErrDuplicateEntry indicates that an entity with the same unique constraint already exists.
	ErrDuplicateEntry = errors.New("duplicate entry")

	// ErrAssetNotFound indicates that an asset with the given ID does not exist.
	ErrAssetNotFound = errors.New("asset not found")
)

// Request validation errors.
var (
	// ErrInvalidDateRange indicates that the provided date range is invalid
	// (e.g., start date is after end date).
	ErrInvalidDateRange = errors.New("invalid date range")

	// ErrInvalidPeriod indicates a history period that does not match "Nd", "Nwk", "Nmo", "Ny" or "max".
	ErrInvalidPeriod = errors.New("invalid period")

	ErrInvalidSymbol   = errors.New("symbol is required")
	ErrInvalidCurrency = errors.New("currency parameter is required")
	ErrInvalidDate     = errors.New("date parameter is required")
	ErrInvalidMode     = errors.New("mode must be cache or fresh")
)

// Configuration errors are returned by the typed merge-update functions.
var (
	// ErrUnknownConfigKey indicates a key that the target configuration section does not define.
	ErrUnknownConfigKey = errors.New("unknown configuration key")

	// ErrInvalidConfigValue indicates a value outside the allowed range or breaking tier ordering.
	ErrInvalidConfigValue = errors.New("invalid configuration value")
)

// Agent errors.
var (
	// ErrAgentNotFound indicates that no agent is registered under the given name.
	ErrAgentNotFound = errors.New("agent not found")

	// ErrAgentRunning indicates that a run was requested while the same agent is still running.
	ErrAgentRunning = errors.New("agent already running")

	// ErrAgentNotRunning indicates a stop request for an idle agent.
	ErrAgentNotRunning = errors.New("agent not running")
)

// Operation failure errors map service failures to API messages.
var (
	ErrFailedToRetrieveRates       = errors.New("failed to retrieve rates")
	ErrFailedToRetrieveHistory     = errors.New("failed to retrieve currency history")
	ErrFailedToGetPortfolioValue   = errors.New("failed to get portfolio value")
	ErrFailedToGetPortfolioHistory = errors.New("failed to get portfolio history")
	ErrFailedToGetPerformance      = errors.New("failed to get performance summary")
)
