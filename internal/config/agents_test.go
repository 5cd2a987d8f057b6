package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ndewijer/networth-tracker/internal/apperrors"
)

func TestCompactionConfig_Apply(t *testing.T) {
	base := DefaultCompactionConfig()

	t.Run("merges known keys", func(t *testing.T) {
		next, err := base.Apply(map[string]int{"raw_retention_days": 5, "daily_retention_days": 400})
		require.NoError(t, err)
		assert.Equal(t, 5, next.RawRetentionDays)
		assert.Equal(t, 400, next.DailyRetentionDays)
		assert.Equal(t, base.HourlyRetentionDays, next.HourlyRetentionDays)
	})

	t.Run("rejects unknown key and keeps original", func(t *testing.T) {
		next, err := base.Apply(map[string]int{"raw_retention_days": 5, "ret_5min": 1})
		require.ErrorIs(t, err, apperrors.ErrUnknownConfigKey)
		assert.Equal(t, base, next)
	})

	t.Run("rejects negative values", func(t *testing.T) {
		_, err := base.Apply(map[string]int{"hourly_retention_days": -1})
		require.ErrorIs(t, err, apperrors.ErrInvalidConfigValue)
	})
}

// WHY: a coarse tier must never reach into data a finer tier still keeps at full resolution.
func TestCompactionConfig_Effective(t *testing.T) {
	t.Run("ordered settings are unchanged", func(t *testing.T) {
		days, adjusted := DefaultCompactionConfig().Effective()
		assert.False(t, adjusted)
		assert.Equal(t, [4]int{3, 14, 90, 365}, days)
	})

	t.Run("out of order settings are raised to running max", func(t *testing.T) {
		cfg := CompactionConfig{RawRetentionDays: 30, FifteenMinRetentionDays: 7, HourlyRetentionDays: 60, DailyRetentionDays: 10}
		days, adjusted := cfg.Effective()
		assert.True(t, adjusted)
		assert.Equal(t, [4]int{30, 30, 60, 60}, days)
	})
}

func TestBackfillConfig_Apply(t *testing.T) {
	base := DefaultBackfillConfig()

	next, err := base.Apply(map[string]int{"five_min_days": 7})
	require.NoError(t, err)
	assert.Equal(t, 7, next.FiveMinDays)

	_, err = base.Apply(map[string]int{"fifteen_min_days": 10})
	require.ErrorIs(t, err, apperrors.ErrInvalidConfigValue, "15m boundary below 5m boundary must be rejected")

	_, err = base.Apply(map[string]int{"unknown": 1})
	require.ErrorIs(t, err, apperrors.ErrUnknownConfigKey)
}

func TestMarketConfig_Validate(t *testing.T) {
	cfg := DefaultMarketConfig()
	require.NoError(t, cfg.Validate())

	cfg.TotalTimeout = cfg.CallTimeout
	require.ErrorIs(t, cfg.Validate(), apperrors.ErrInvalidConfigValue)
}

func TestDecodeAgentConfig(t *testing.T) {
	newConfig := func() *Config {
		return &Config{
			Market:     DefaultMarketConfig(),
			Compaction: DefaultCompactionConfig(),
			Backfill:   DefaultBackfillConfig(),
			Schedule:   ScheduleConfig{Compaction: "@hourly", PriceRefresh: "@hourly", Backfill: "@daily"},
		}
	}

	t.Run("overlays present fields only", func(t *testing.T) {
		cfg := newConfig()
		doc := `
compaction:
  raw_retention_days: 2
schedule:
  backfill: "0 4 * * *"
market:
  cache_duration: 5m
`
		require.NoError(t, cfg.decodeAgentConfig(strings.NewReader(doc)))
		assert.Equal(t, 2, cfg.Compaction.RawRetentionDays)
		assert.Equal(t, 14, cfg.Compaction.FifteenMinRetentionDays)
		assert.Equal(t, "0 4 * * *", cfg.Schedule.Backfill)
		assert.Equal(t, "@hourly", cfg.Schedule.Compaction)
		assert.Equal(t, 5*time.Minute, cfg.Market.FreshnessWindow)
	})

	t.Run("rejects unknown fields", func(t *testing.T) {
		cfg := newConfig()
		err := cfg.decodeAgentConfig(strings.NewReader("compaction:\n  bogus: 1\n"))
		require.Error(t, err)
	})

	t.Run("empty document is a no-op", func(t *testing.T) {
		cfg := newConfig()
		require.NoError(t, cfg.decodeAgentConfig(strings.NewReader("")))
		assert.Equal(t, DefaultCompactionConfig(), cfg.Compaction)
	})
}
