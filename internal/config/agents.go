package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ndewijer/networth-tracker/internal/apperrors"
)

// CompactionConfig holds the age, in days before now, after which each down-sampling tier applies.
// Raw points older than RawRetentionDays are reduced to one per 15 minutes, 15-minute points older
// than FifteenMinRetentionDays to one per hour, and so on up to weekly buckets.
type CompactionConfig struct {
	RawRetentionDays        int `yaml:"raw_retention_days" json:"raw_retention_days"`
	FifteenMinRetentionDays int `yaml:"fifteen_min_retention_days" json:"fifteen_min_retention_days"`
	HourlyRetentionDays     int `yaml:"hourly_retention_days" json:"hourly_retention_days"`
	DailyRetentionDays      int `yaml:"daily_retention_days" json:"daily_retention_days"`
}

// DefaultCompactionConfig returns the retention windows used when nothing is configured.
func DefaultCompactionConfig() CompactionConfig {
	return CompactionConfig{
		RawRetentionDays:        3,
		FifteenMinRetentionDays: 14,
		HourlyRetentionDays:     90,
		DailyRetentionDays:      365,
	}
}

func (c *CompactionConfig) fields() map[string]*int {
	return map[string]*int{
		"raw_retention_days":         &c.RawRetentionDays,
		"fifteen_min_retention_days": &c.FifteenMinRetentionDays,
		"hourly_retention_days":      &c.HourlyRetentionDays,
		"daily_retention_days":       &c.DailyRetentionDays,
	}
}

// Validate rejects negative windows. Tier ordering is not enforced here; see Effective.
func (c CompactionConfig) Validate() error {
	for key, v := range c.fields() {
		if *v < 0 {
			return fmt.Errorf("%w: %s must not be negative", apperrors.ErrInvalidConfigValue, key)
		}
	}
	return nil
}

// Effective returns the windows actually applied, finest tier first. A coarser tier never acts on
// data younger than any finer tier's window, so out-of-order settings are raised to the running
// maximum. The boolean reports whether any value had to be raised.
func (c CompactionConfig) Effective() ([4]int, bool) {
	days := [4]int{c.RawRetentionDays, c.FifteenMinRetentionDays, c.HourlyRetentionDays, c.DailyRetentionDays}
	adjusted := false
	for i := 1; i < len(days); i++ {
		if days[i] < days[i-1] {
			days[i] = days[i-1]
			adjusted = true
		}
	}
	return days, adjusted
}

// Apply merges updates into a copy of c and returns it. Unknown keys and invalid values
// are rejected and leave c untouched.
func (c CompactionConfig) Apply(updates map[string]int) (CompactionConfig, error) {
	next := c
	if err := applyInts(next.fields(), updates); err != nil {
		return c, err
	}
	if err := next.Validate(); err != nil {
		return c, err
	}
	return next, nil
}

// BackfillConfig holds the age boundaries, in days before now, of the backfill resolution tiers:
// [0, FiveMinDays) at 5 minutes, [FiveMinDays, FifteenMinDays) at 15 minutes,
// [FifteenMinDays, HourlyDays) hourly and everything older daily.
type BackfillConfig struct {
	FiveMinDays    int `yaml:"five_min_days" json:"five_min_days"`
	FifteenMinDays int `yaml:"fifteen_min_days" json:"fifteen_min_days"`
	HourlyDays     int `yaml:"hourly_days" json:"hourly_days"`
	// MaxDays caps the daily tier.
	MaxDays int `yaml:"max_days" json:"max_days"`
}

// DefaultBackfillConfig returns tier boundaries matching the quote provider's intraday limits.
func DefaultBackfillConfig() BackfillConfig {
	return BackfillConfig{
		FiveMinDays:    14,
		FifteenMinDays: 59,
		HourlyDays:     365,
		MaxDays:        36500,
	}
}

func (c *BackfillConfig) fields() map[string]*int {
	return map[string]*int{
		"five_min_days":    &c.FiveMinDays,
		"fifteen_min_days": &c.FifteenMinDays,
		"hourly_days":      &c.HourlyDays,
		"max_days":         &c.MaxDays,
	}
}

// Validate requires 0 < FiveMinDays < FifteenMinDays < HourlyDays < MaxDays.
func (c BackfillConfig) Validate() error {
	if c.FiveMinDays <= 0 {
		return fmt.Errorf("%w: five_min_days must be positive", apperrors.ErrInvalidConfigValue)
	}
	if c.FiveMinDays >= c.FifteenMinDays || c.FifteenMinDays >= c.HourlyDays || c.HourlyDays >= c.MaxDays {
		return fmt.Errorf("%w: backfill tiers must be strictly increasing (got %d, %d, %d, %d)",
			apperrors.ErrInvalidConfigValue, c.FiveMinDays, c.FifteenMinDays, c.HourlyDays, c.MaxDays)
	}
	return nil
}

// Apply merges updates into a copy of c and returns it. Unknown keys and invalid values
// are rejected and leave c untouched.
func (c BackfillConfig) Apply(updates map[string]int) (BackfillConfig, error) {
	next := c
	if err := applyInts(next.fields(), updates); err != nil {
		return c, err
	}
	if err := next.Validate(); err != nil {
		return c, err
	}
	return next, nil
}

func applyInts(fields map[string]*int, updates map[string]int) error {
	keys := make([]string, 0, len(updates))
	for k := range updates {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		dst, ok := fields[k]
		if !ok {
			return fmt.Errorf("%w: %s", apperrors.ErrUnknownConfigKey, k)
		}
		*dst = updates[k]
	}
	return nil
}

// agentFile is the layout of AGENT_CONFIG_FILE.
type agentFile struct {
	Compaction CompactionConfig `yaml:"compaction"`
	Backfill   BackfillConfig   `yaml:"backfill"`
	Schedule   struct {
		Compaction   string `yaml:"compaction"`
		PriceRefresh string `yaml:"price_refresh"`
		Backfill     string `yaml:"backfill"`
	} `yaml:"schedule"`
	Market struct {
		CacheDuration string `yaml:"cache_duration"`
		Backoff       string `yaml:"backoff"`
	} `yaml:"market"`
}

func (c *Config) loadAgentFile(path string) error {
	f, err := os.Open(path) //#nosec G304 -- path comes from operator configuration
	if err != nil {
		return fmt.Errorf("failed to open agent config file: %w", err)
	}
	defer f.Close()
	return c.decodeAgentConfig(f)
}

// decodeAgentConfig overlays the YAML document in r onto c. Fields absent from the document
// keep their current values; unknown fields are rejected.
func (c *Config) decodeAgentConfig(r io.Reader) error {
	file := agentFile{Compaction: c.Compaction, Backfill: c.Backfill}
	file.Schedule.Compaction = c.Schedule.Compaction
	file.Schedule.PriceRefresh = c.Schedule.PriceRefresh
	file.Schedule.Backfill = c.Schedule.Backfill

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse agent config file: %w", err)
	}

	c.Compaction = file.Compaction
	c.Backfill = file.Backfill
	c.Schedule.Compaction = file.Schedule.Compaction
	c.Schedule.PriceRefresh = file.Schedule.PriceRefresh
	c.Schedule.Backfill = file.Schedule.Backfill

	if file.Market.CacheDuration != "" {
		d, err := time.ParseDuration(file.Market.CacheDuration)
		if err != nil {
			return fmt.Errorf("%w: market.cache_duration: %v", apperrors.ErrInvalidConfigValue, err)
		}
		c.Market.FreshnessWindow = d
	}
	if file.Market.Backoff != "" {
		d, err := time.ParseDuration(file.Market.Backoff)
		if err != nil {
			return fmt.Errorf("%w: market.backoff: %v", apperrors.ErrInvalidConfigValue, err)
		}
		c.Market.BackoffDuration = d
	}
	return nil
}
