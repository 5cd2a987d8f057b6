// Package validation parses and checks query and path parameters before they reach the services.
package validation

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ndewijer/networth-tracker/internal/apperrors"
	"github.com/ndewijer/networth-tracker/internal/model"
)

const (
	// MaxSymbols bounds the symbols accepted in one request.
	MaxSymbols = 50
	// MaxDates bounds the dates accepted by a range lookup.
	MaxDates = 366
)

// symbolPattern accepts logical symbols and provider-shaped tickers such as EUR, BTC, AAPL,
// BRK.B, EURUSD=X or BTC-USD.
var symbolPattern = regexp.MustCompile(`^[A-Z0-9][A-Z0-9.\-=^]{0,19}$`)

// ValidateSymbol normalizes a single symbol to upper case and checks its shape.
func ValidateSymbol(raw string) (string, error) {
	sym := strings.ToUpper(strings.TrimSpace(raw))
	if sym == "" {
		return "", apperrors.ErrInvalidSymbol
	}
	if !symbolPattern.MatchString(sym) {
		return "", fmt.Errorf("%w: %q", apperrors.ErrInvalidSymbol, raw)
	}
	return sym, nil
}

// ParseSymbols splits a comma-separated symbol list, normalizing and de-duplicating it.
// An empty list is an error.
func ParseSymbols(raw string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		sym, err := ValidateSymbol(part)
		if err != nil {
			return nil, err
		}
		if !seen[sym] {
			seen[sym] = true
			out = append(out, sym)
		}
	}
	if len(out) == 0 {
		return nil, apperrors.ErrInvalidSymbol
	}
	if len(out) > MaxSymbols {
		return nil, fmt.Errorf("%w: at most %d symbols", apperrors.ErrInvalidSymbol, MaxSymbols)
	}
	return out, nil
}

// ParseDate parses a YYYY-MM-DD value as a UTC day.
func ParseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, apperrors.ErrInvalidDate
	}
	d, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q is not YYYY-MM-DD", apperrors.ErrInvalidDate, raw)
	}
	return d, nil
}

// ParseOptionalDate parses raw when present and returns nil otherwise.
func ParseOptionalDate(raw string) (*time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	d, err := ParseDate(raw)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// ParseDates parses a comma-separated list of YYYY-MM-DD dates.
func ParseDates(raw string) ([]time.Time, error) {
	var out []time.Time
	for _, part := range strings.Split(raw, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		d, err := ParseDate(part)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if len(out) == 0 {
		return nil, apperrors.ErrInvalidDate
	}
	if len(out) > MaxDates {
		return nil, fmt.Errorf("%w: at most %d dates", apperrors.ErrInvalidDate, MaxDates)
	}
	return out, nil
}

// ParseMode parses the rate lookup mode. An empty value selects the cache.
func ParseMode(raw string) (model.FetchMode, error) {
	if strings.TrimSpace(raw) == "" {
		return model.ModeCache, nil
	}
	mode := model.FetchMode(strings.ToLower(strings.TrimSpace(raw)))
	if !mode.Valid() {
		return "", fmt.Errorf("%w: got %q", apperrors.ErrInvalidMode, raw)
	}
	return mode, nil
}

// ParseDateRange parses a required start and end date. Start must be strictly before end.
func ParseDateRange(startRaw, endRaw string) (time.Time, time.Time, error) {
	fields := make(map[string]string)
	start, err := ParseDate(startRaw)
	if err != nil {
		fields["start_date"] = err.Error()
	}
	end, err := ParseDate(endRaw)
	if err != nil {
		fields["end_date"] = err.Error()
	}
	if err := errorOrNil(fields); err != nil {
		return time.Time{}, time.Time{}, err
	}
	if !start.Before(end) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: start_date must be before end_date", apperrors.ErrInvalidDateRange)
	}
	return start, end, nil
}

// ValidateConfigUpdate checks that a settings update is non-empty and has no negative values.
// Unknown keys are rejected by the target configuration.
func ValidateConfigUpdate(updates map[string]int) error {
	if len(updates) == 0 {
		return fmt.Errorf("%w: no settings given", apperrors.ErrInvalidConfigValue)
	}
	fields := make(map[string]string)
	for k, v := range updates {
		if v < 0 {
			fields[k] = "must not be negative"
		}
	}
	return errorOrNil(fields)
}
