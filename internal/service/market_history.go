package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ndewijer/networth-tracker/internal/apperrors"
	"github.com/ndewijer/networth-tracker/internal/logging"
	"github.com/ndewijer/networth-tracker/internal/market"
	"github.com/ndewijer/networth-tracker/internal/model"
	"github.com/ndewijer/networth-tracker/internal/repository"
)

// DefaultHistoryPeriod is used when no period is given.
const DefaultHistoryPeriod = "1mo"

var epoch = time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)

// ParseHistoryPeriod parses "Nd", "Nwk", "Nmo" (30-day months), "Ny" (365-day years) or "max"
// into a number of days. For "max" the boolean is true and the span starts at the Unix epoch.
func ParseHistoryPeriod(period string) (int, bool, error) {
	p := strings.ToLower(strings.TrimSpace(period))
	if p == "" {
		p = DefaultHistoryPeriod
	}
	if p == "max" {
		return 365 * 50, true, nil
	}

	units := []struct {
		suffix string
		days   int
	}{
		{"wk", 7},
		{"mo", 30},
		{"d", 1},
		{"y", 365},
	}
	for _, u := range units {
		num, ok := strings.CutSuffix(p, u.suffix)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(num)
		if err != nil || n <= 0 {
			break
		}
		return n * u.days, false, nil
	}
	return 0, false, fmt.Errorf("%w: %q", apperrors.ErrInvalidPeriod, period)
}

// historyResolution picks the finest resolution the provider serves for a span of days.
func historyResolution(days int) model.Resolution {
	switch {
	case days <= 7:
		return model.Resolution5m
	case days <= 60:
		return model.Resolution1h
	default:
		return model.Resolution1d
	}
}

// CurrencyHistory returns the stored series of symbol over period. Keys are RFC3339 timestamps
// for spans up to a week and dates otherwise; within a day the last point wins.
//
// When fewer than half as many points as days are stored, the span is fetched from the provider,
// persisted without touching existing points, and read again.
func (s *MarketDataService) CurrencyHistory(ctx context.Context, symbol, period string) (map[string]decimal.Decimal, error) {
	days, isMax, err := ParseHistoryPeriod(period)
	if err != nil {
		return nil, err
	}

	history := map[string]decimal.Decimal{}
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	if _, ok := market.Resolve(sym); !ok {
		return history, nil
	}

	now := s.now().UTC()
	start := truncateDay(now.AddDate(0, 0, -days))
	if isMax {
		start = epoch
	}
	end := endOfDay(now)

	points, err := s.rates.Range(ctx, []string{sym}, start, end)
	if err != nil {
		return nil, err
	}
	history = keyHistory(points, days)

	if float64(len(history)) < float64(days)*0.5 {
		s.log.WithFields(logging.Fields{"symbol": sym, "period": period, "points": len(history)}).
			Info("gap detected in currency history, fetching from provider")

		fetched := s.fetchSeries(ctx, []string{sym}, start, now, historyResolution(days))
		if len(fetched) > 0 {
			if _, err := s.rates.SaveBatch(ctx, fetched, model.SaveInsertNew); err != nil {
				s.log.WithError(err).Error("failed to persist currency history")
			}
			if points, err = s.rates.Range(ctx, []string{sym}, start, end); err != nil {
				return nil, err
			}
			history = keyHistory(points, days)
		}
	}
	return history, nil
}

func keyHistory(points []model.RatePoint, days int) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(points))
	for _, p := range points {
		key := repository.FormatDate(p.Timestamp)
		if days <= 7 {
			key = p.Timestamp.UTC().Format(time.RFC3339)
		}
		out[key] = p.Rate
	}
	return out
}

var trendOffsets = map[model.TrendPeriod]int{
	model.Trend1D: 1,
	model.Trend1W: 7,
	model.Trend1M: 30,
	model.Trend3M: 90,
	model.Trend1Y: 365,
}

// Trends returns the percent change of each symbol per period, with both ends normalized
// against pivot. Current rates come from the cache; historical ones from RangeRates at
// now minus the period. The "all" period anchors at the symbol's earliest stored point.
// A period is nil when either normalized side is unavailable or non-positive.
func (s *MarketDataService) Trends(ctx context.Context, symbols []string, pivot string) model.Trends {
	wanted := normalizeSymbols(symbols)
	pivot = strings.ToUpper(strings.TrimSpace(pivot))
	if pivot == "" {
		pivot = model.PivotCurrency
	}
	all := normalizeSymbols(append(append([]string{}, wanted...), pivot))

	current := s.GetRates(ctx, all, model.ModeCache)
	now := s.now().UTC()

	dates := make([]time.Time, 0, len(trendOffsets))
	for _, days := range trendOffsets {
		dates = append(dates, now.AddDate(0, 0, -days))
	}
	historical := s.RangeRates(ctx, dates, all)

	trends := make(model.Trends, len(wanted))
	for _, sym := range wanted {
		curr := crossRate(current, sym, pivot)
		periods := make(map[model.TrendPeriod]*float64, len(model.TrendPeriods))
		for period, days := range trendOffsets {
			past := crossRate(historical[repository.FormatDate(now.AddDate(0, 0, -days))], sym, pivot)
			periods[period] = percentChange(curr, past)
		}
		periods[model.TrendAll] = percentChange(curr, s.earliestCrossRate(ctx, sym, pivot))
		trends[sym] = periods
	}
	return trends
}

func (s *MarketDataService) earliestCrossRate(ctx context.Context, symbol, pivot string) decimal.Decimal {
	if symbol == pivot {
		return decimal.NewFromInt(1)
	}
	anchor := symbol
	if symbol == model.PivotCurrency {
		anchor = pivot
	}

	p, err := s.rates.Earliest(ctx, anchor)
	if err != nil {
		s.log.WithError(err).WithFields(logging.Fields{"symbol": anchor}).Warn("failed to read earliest rate")
		return decimal.Zero
	}
	if p == nil {
		return decimal.Zero
	}

	rates := s.HistoricalRates(ctx, p.Timestamp, []string{pivot})
	rates[anchor] = p.Rate
	return crossRate(rates, symbol, pivot)
}

// crossRate expresses symbol in units of pivot. Zero when either rate is unknown.
func crossRate(rates model.RateMap, symbol, pivot string) decimal.Decimal {
	r := rates.Get(symbol)
	p := rates.Get(pivot)
	if !r.IsPositive() || !p.IsPositive() {
		return decimal.Zero
	}
	return r.Div(p)
}

func percentChange(current, past decimal.Decimal) *float64 {
	if !current.IsPositive() || !past.IsPositive() {
		return nil
	}
	pct := current.Sub(past).Div(past).Mul(decimal.NewFromInt(100)).Round(4).InexactFloat64()
	return &pct
}
