package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ndewijer/networth-tracker/internal/config"
	"github.com/ndewijer/networth-tracker/internal/logging"
	"github.com/ndewijer/networth-tracker/internal/market"
	"github.com/ndewijer/networth-tracker/internal/model"
	"github.com/ndewijer/networth-tracker/internal/repository"
)

const (
	// GlobalFetchKey serializes fresh fetches so overlapping requests do not both hit the provider.
	GlobalFetchKey = "global_fetch"
	// historyLookbackDays is how far back a missing historical rate may be filled from.
	historyLookbackDays = 7
)

// QuoteFetcher is the provider-facing dependency of MarketDataService. Implementations never
// fail: an unavailable provider yields empty results.
type QuoteFetcher interface {
	FetchCurrent(ctx context.Context, providerSymbols []string) map[string]decimal.Decimal
	FetchRange(ctx context.Context, providerSymbols []string, start, end time.Time, res model.Resolution) model.Frame
}

// rateCache is the in-memory result of the last fresh fetch.
type rateCache struct {
	mu         sync.RWMutex
	rates      model.RateMap
	lastUpdate time.Time
}

func (c *rateCache) merge(rates model.RateMap, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range rates {
		c.rates[k] = v
	}
	c.lastUpdate = at
}

// MarketDataService is the single read/write gateway to exchange rates.
// It answers from the rate store or the quote provider and persists what the provider returns.
type MarketDataService struct {
	rates   *repository.RateRepository
	fetcher QuoteFetcher
	locks   *market.KeyedLocks
	cfg     config.MarketConfig
	log     *logging.Entry
	now     func() time.Time
	cache   *rateCache
}

// NewMarketDataService creates a MarketDataService. locks may be shared with other services
// that need the global fetch lock.
func NewMarketDataService(
	rates *repository.RateRepository,
	fetcher QuoteFetcher,
	locks *market.KeyedLocks,
	cfg config.MarketConfig,
	log *logging.Logger,
) *MarketDataService {
	if locks == nil {
		locks = market.NewKeyedLocks()
	}
	return &MarketDataService{
		rates:   rates,
		fetcher: fetcher,
		locks:   locks,
		cfg:     cfg,
		log:     logging.Component(log, "market"),
		now:     time.Now,
		cache:   &rateCache{rates: model.RateMap{}},
	}
}

// GetRates returns the rate of each symbol against the pivot currency. The pivot is always 1.
//
// In cache mode each symbol resolves to its latest stored point, else the fallback table.
// In fresh mode the provider is queried under the global fetch lock, successful quotes are
// persisted, and symbols the provider did not return use the fallback table. A zero rate means
// no value could be found anywhere.
func (s *MarketDataService) GetRates(ctx context.Context, symbols []string, mode model.FetchMode) model.RateMap {
	out := model.RateMap{model.PivotCurrency: decimal.NewFromInt(1)}
	wanted := withoutPivot(normalizeSymbols(symbols))
	if len(wanted) == 0 {
		return out
	}

	if mode == model.ModeFresh {
		for k, v := range s.fetchFresh(ctx, wanted) {
			out[k] = v
		}
		return out
	}

	for _, sym := range wanted {
		p, err := s.rates.Latest(ctx, sym)
		if err != nil {
			s.log.WithError(err).WithFields(logging.Fields{"symbol": sym}).Warn("failed to read latest rate, using fallback")
		}
		if p != nil {
			out[sym] = p.Rate
			continue
		}
		out[sym] = market.FallbackOrZero(sym)
	}
	return out
}

func (s *MarketDataService) fetchFresh(ctx context.Context, symbols []string) model.RateMap {
	out := make(model.RateMap, len(symbols))

	release, err := s.locks.Acquire(ctx, GlobalFetchKey, s.cfg.LockTimeout)
	if err != nil {
		s.log.WithError(err).Warn("market fetch lock unavailable, using fallback rates")
		return fallbackMap(symbols)
	}
	defer release()

	tickers := providerSymbols(symbols)
	fetched := s.fetcher.FetchCurrent(ctx, mapKeys(tickers))

	now := s.now().UTC().Truncate(time.Second)
	points := make([]model.RatePoint, 0, len(fetched))
	for ticker, rate := range fetched {
		if !rate.IsPositive() {
			continue
		}
		for _, sym := range tickers[ticker] {
			out[sym] = rate
			points = append(points, model.RatePoint{Symbol: sym, Timestamp: now, Rate: rate})
		}
	}

	if len(points) > 0 {
		s.cache.merge(out, now)
		if _, err := s.rates.SaveBatch(ctx, points, model.SaveInsertNew); err != nil {
			s.log.WithError(err).Error("failed to persist fresh rates")
		}
	}

	var fallbacks []string
	for _, sym := range symbols {
		if _, ok := out[sym]; ok {
			continue
		}
		out[sym] = market.FallbackOrZero(sym)
		fallbacks = append(fallbacks, sym)
	}
	if len(fallbacks) > 0 {
		s.log.WithFields(logging.Fields{"symbols": fallbacks}).Warn("provider returned no rate, using fallback")
	}
	return out
}

// RefreshIfStale returns the in-memory rates when every symbol is cached and the last fresh
// fetch is within the freshness window, and performs a fresh fetch otherwise.
// The boolean reports whether the provider was consulted.
func (s *MarketDataService) RefreshIfStale(ctx context.Context, symbols []string) (model.RateMap, bool) {
	wanted := withoutPivot(normalizeSymbols(symbols))

	s.cache.mu.RLock()
	fresh := !s.cache.lastUpdate.IsZero() && s.now().Sub(s.cache.lastUpdate) < s.cfg.FreshnessWindow
	out := model.RateMap{model.PivotCurrency: decimal.NewFromInt(1)}
	for _, sym := range wanted {
		r, ok := s.cache.rates[sym]
		if !ok {
			fresh = false
			break
		}
		out[sym] = r
	}
	s.cache.mu.RUnlock()

	if fresh {
		return out, false
	}
	return s.GetRates(ctx, wanted, model.ModeFresh), true
}

// LastUpdate returns the time of the last successful fresh fetch, or the zero time.
func (s *MarketDataService) LastUpdate() time.Time {
	s.cache.mu.RLock()
	defer s.cache.mu.RUnlock()
	return s.cache.lastUpdate
}

// HistoricalRates returns the rates of symbols on date. See RangeRates.
func (s *MarketDataService) HistoricalRates(ctx context.Context, date time.Time, symbols []string) model.RateMap {
	day := truncateDay(date)
	res := s.RangeRates(ctx, []time.Time{day}, symbols)
	if m, ok := res[repository.FormatDate(day)]; ok {
		return m
	}
	return model.RateMap{model.PivotCurrency: decimal.NewFromInt(1)}
}

// RangeRates returns, for each requested date (keyed "2006-01-02"), the rate of every symbol.
//
// Stored points covering [min(dates)-7d, max(dates)] are read first; the last point of a day is
// that day's rate. If any date/symbol pair has no point on its day, one daily historical fetch
// over the whole span is made for the affected symbols only and persisted with upsert. Remaining
// gaps are filled from the most recent value up to 7 days earlier; anything still missing is 0.
func (s *MarketDataService) RangeRates(ctx context.Context, dates []time.Time, symbols []string) map[string]model.RateMap {
	result := make(map[string]model.RateMap)
	days := uniqueDays(dates)
	wanted := withoutPivot(normalizeSymbols(symbols))
	if len(days) == 0 {
		return result
	}

	first, last := days[0], days[len(days)-1]
	lo := first.AddDate(0, 0, -historyLookbackDays)
	hi := endOfDay(last)

	byDay := make(map[string]model.RateMap)
	if len(wanted) > 0 {
		points, err := s.rates.Range(ctx, wanted, lo, hi)
		if err != nil {
			s.log.WithError(err).Error("failed to read stored rates")
		}
		indexByDay(byDay, points)

		if missing := missingSymbols(byDay, days, wanted); len(missing) > 0 {
			fetched := s.fetchSeries(ctx, missing, lo, last.AddDate(0, 0, 1), model.Resolution1d)
			if len(fetched) > 0 {
				if _, err := s.rates.SaveBatch(ctx, fetched, model.SaveUpsert); err != nil {
					s.log.WithError(err).Error("failed to persist historical rates")
				}
				indexByDay(byDay, fetched)
			}
		}
	}

	for _, d := range days {
		m := model.RateMap{model.PivotCurrency: decimal.NewFromInt(1)}
		for _, sym := range wanted {
			m[sym] = lookback(byDay, d, sym)
		}
		result[repository.FormatDate(d)] = m
	}
	return result
}

// HistoricalSeries returns every point of symbols between the start and end dates.
// ModeFresh fetches from the provider at res and maps provider symbols back to the requested ones;
// nothing is persisted. ModeCache reads stored points.
func (s *MarketDataService) HistoricalSeries(ctx context.Context, symbols []string, start, end time.Time, res model.Resolution, mode model.FetchMode) []model.RatePoint {
	wanted := withoutPivot(normalizeSymbols(symbols))
	if len(wanted) == 0 {
		return []model.RatePoint{}
	}
	if mode == model.ModeFresh {
		return s.fetchSeries(ctx, wanted, start, end.AddDate(0, 0, 1), res)
	}
	points, err := s.rates.Range(ctx, wanted, truncateDay(start), endOfDay(end))
	if err != nil {
		s.log.WithError(err).Error("failed to read stored rates")
		return []model.RatePoint{}
	}
	return points
}

// fetchSeries fetches a historical range for symbols and converts it into valid RatePoints
// under the requested symbols, ordered by timestamp then symbol.
func (s *MarketDataService) fetchSeries(ctx context.Context, symbols []string, start, end time.Time, res model.Resolution) []model.RatePoint {
	tickers := providerSymbols(symbols)
	if len(tickers) == 0 {
		return nil
	}
	frame := s.fetcher.FetchRange(ctx, mapKeys(tickers), start, end, res)

	var points []model.RatePoint
	for ticker, series := range frame {
		for _, sym := range tickers[ticker] {
			for _, q := range series {
				p := model.RatePoint{Symbol: sym, Timestamp: q.Timestamp.UTC(), Rate: decimal.NewFromFloat(q.Price)}
				if p.Valid() {
					points = append(points, p)
				}
			}
		}
	}
	sort.Slice(points, func(i, j int) bool {
		if !points[i].Timestamp.Equal(points[j].Timestamp) {
			return points[i].Timestamp.Before(points[j].Timestamp)
		}
		return points[i].Symbol < points[j].Symbol
	})
	return points
}

func indexByDay(byDay map[string]model.RateMap, points []model.RatePoint) {
	for _, p := range points {
		key := repository.FormatDate(p.Timestamp)
		m, ok := byDay[key]
		if !ok {
			m = model.RateMap{}
			byDay[key] = m
		}
		m[p.Symbol] = p.Rate
	}
}

func missingSymbols(byDay map[string]model.RateMap, days []time.Time, symbols []string) []string {
	var missing []string
	for _, sym := range symbols {
		if _, ok := market.Resolve(sym); !ok {
			continue
		}
		for _, d := range days {
			if _, ok := byDay[repository.FormatDate(d)][sym]; !ok {
				missing = append(missing, sym)
				break
			}
		}
	}
	return missing
}

func lookback(byDay map[string]model.RateMap, day time.Time, symbol string) decimal.Decimal {
	for i := 0; i <= historyLookbackDays; i++ {
		if r, ok := byDay[repository.FormatDate(day.AddDate(0, 0, -i))][symbol]; ok && r.IsPositive() {
			return r
		}
	}
	return decimal.Zero
}

// providerSymbols groups requested symbols by the provider symbol they resolve to.
func providerSymbols(symbols []string) map[string][]string {
	out := make(map[string][]string, len(symbols))
	for _, sym := range symbols {
		if ticker, ok := market.Resolve(sym); ok {
			out[ticker] = append(out[ticker], sym)
		}
	}
	return out
}

func fallbackMap(symbols []string) model.RateMap {
	out := make(model.RateMap, len(symbols))
	for _, sym := range symbols {
		out[sym] = market.FallbackOrZero(sym)
	}
	return out
}

func normalizeSymbols(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func withoutPivot(symbols []string) []string {
	out := symbols[:0:0]
	for _, s := range symbols {
		if s != model.PivotCurrency {
			out = append(out, s)
		}
	}
	return out
}

func mapKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func endOfDay(t time.Time) time.Time {
	return truncateDay(t).Add(24*time.Hour - time.Second)
}

func uniqueDays(dates []time.Time) []time.Time {
	seen := make(map[time.Time]struct{}, len(dates))
	out := make([]time.Time, 0, len(dates))
	for _, d := range dates {
		day := truncateDay(d)
		if _, ok := seen[day]; ok {
			continue
		}
		seen[day] = struct{}{}
		out = append(out, day)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}
