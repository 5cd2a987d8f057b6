package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ndewijer/networth-tracker/internal/apperrors"
	"github.com/ndewijer/networth-tracker/internal/config"
	"github.com/ndewijer/networth-tracker/internal/logging"
	"github.com/ndewijer/networth-tracker/internal/model"
	"github.com/ndewijer/networth-tracker/internal/repository"
)

// SeriesSource provides historical rate series. MarketDataService implements it.
type SeriesSource interface {
	HistoricalSeries(ctx context.Context, symbols []string, start, end time.Time, res model.Resolution, mode model.FetchMode) []model.RatePoint
}

// backfillTier is an age window, in days before today, fetched at one resolution.
type backfillTier struct {
	res            model.Resolution
	minAge, maxAge int
}

// BackfillService fills historical rate coverage across resolution tiers.
type BackfillService struct {
	series       SeriesSource
	rates        *repository.RateRepository
	assets       *repository.AssetRepository
	transactions *repository.TransactionRepository
	portfolio    config.PortfolioConfig
	log          *logging.Entry
	now          func() time.Time

	mu  sync.RWMutex
	cfg config.BackfillConfig
}

// NewBackfillService creates a BackfillService. portfolio supplies the currencies that auto mode
// always includes.
func NewBackfillService(
	series SeriesSource,
	rates *repository.RateRepository,
	assets *repository.AssetRepository,
	transactions *repository.TransactionRepository,
	cfg config.BackfillConfig,
	portfolio config.PortfolioConfig,
	log *logging.Logger,
) *BackfillService {
	return &BackfillService{
		series:       series,
		rates:        rates,
		assets:       assets,
		transactions: transactions,
		portfolio:    portfolio,
		log:          logging.Component(log, "backfill"),
		now:          time.Now,
		cfg:          cfg,
	}
}

// Config returns the current tier configuration.
func (s *BackfillService) Config() config.BackfillConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// UpdateConfig merges updates into the tier configuration.
func (s *BackfillService) UpdateConfig(updates map[string]int) (config.BackfillConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, err := s.cfg.Apply(updates)
	if err != nil {
		return s.cfg, err
	}
	s.cfg = next
	return next, nil
}

func tiersFor(cfg config.BackfillConfig) []backfillTier {
	return []backfillTier{
		{model.Resolution5m, 0, cfg.FiveMinDays},
		{model.Resolution15m, cfg.FiveMinDays, cfg.FifteenMinDays},
		{model.Resolution1h, cfg.FifteenMinDays, cfg.HourlyDays},
		{model.Resolution1d, cfg.HourlyDays, cfg.MaxDays},
	}
}

// Run backfills the request. In manual mode the request names one currency and a date span;
// in auto mode currencies come from the asset registry plus configured currencies, and the span
// runs from the earliest transaction or purchase date to today.
//
// Each tier's age window is intersected with the span; non-empty intersections are fetched fresh
// at the tier's resolution and persisted with upsert, so provider data replaces cached points.
// Tiers commit independently; cancellation stops before the next tier and reports partial counts.
func (s *BackfillService) Run(ctx context.Context, req model.BackfillRequest) (model.BackfillResult, error) {
	today := truncateDay(s.now())
	result := model.BackfillResult{Tiers: []model.BackfillTier{}}

	currencies, start, end, err := s.plan(ctx, req, today)
	if err != nil {
		return result, err
	}
	result.Currencies = currencies
	result.Start, result.End = start, end
	if len(currencies) == 0 || start.IsZero() {
		s.log.WithFields(logging.Fields{"currency": req.Currency}).Info("nothing to backfill")
		return result, nil
	}

	cfg := s.Config()
	for _, tier := range tiersFor(cfg) {
		if err := ctx.Err(); err != nil {
			result.Cancelled = true
			s.log.WithFields(logging.Fields{"added": result.Added, "updated": result.Updated}).Warn("backfill cancelled")
			return result, err
		}

		tierStart := today.AddDate(0, 0, -tier.maxAge)
		tierEnd := today.AddDate(0, 0, -tier.minAge)
		effStart := maxTime(start, tierStart)
		effEnd := minTime(end, tierEnd)
		if !effStart.Before(effEnd) {
			continue
		}

		s.log.WithFields(logging.Fields{
			"resolution": tier.res,
			"start":      repository.FormatDate(effStart),
			"end":        repository.FormatDate(effEnd),
		}).Info("backfilling tier")

		points := s.series.HistoricalSeries(ctx, currencies, effStart, effEnd, tier.res, model.ModeFresh)
		report := model.BackfillTier{Resolution: tier.res, Start: effStart, End: effEnd, Fetched: len(points)}
		if len(points) > 0 {
			saved, err := s.rates.SaveBatch(ctx, points, model.SaveUpsert)
			if err != nil {
				return result, fmt.Errorf("failed to persist %s backfill: %w", tier.res, err)
			}
			report.Added = saved.Saved - saved.Replaced
			report.Updated = saved.Replaced
			report.Skipped = saved.Skipped
		}

		result.Tiers = append(result.Tiers, report)
		result.Added += report.Added
		result.Updated += report.Updated
		result.Skipped += report.Skipped
	}

	s.log.WithFields(logging.Fields{
		"added":   result.Added,
		"updated": result.Updated,
		"skipped": result.Skipped,
	}).Info("backfill complete")
	return result, nil
}

// plan resolves the currencies and date span of req. USD is never included.
func (s *BackfillService) plan(ctx context.Context, req model.BackfillRequest, today time.Time) ([]string, time.Time, time.Time, error) {
	if !req.Auto() {
		currency := strings.ToUpper(strings.TrimSpace(req.Currency))
		start, end := truncateDay(req.Start), truncateDay(req.End)
		if req.Start.IsZero() {
			return nil, time.Time{}, time.Time{}, fmt.Errorf("%w: start date is required", apperrors.ErrInvalidDateRange)
		}
		if req.End.IsZero() {
			end = today
		}
		if start.After(end) {
			return nil, time.Time{}, time.Time{}, fmt.Errorf("%w: start date is after end date", apperrors.ErrInvalidDateRange)
		}
		return withoutPivot([]string{currency}), start, end, nil
	}

	assets, err := s.assets.GetAssets(ctx)
	if err != nil {
		return nil, time.Time{}, time.Time{}, err
	}
	oldest, err := s.transactions.GetOldestTransactionDate(ctx)
	if err != nil {
		return nil, time.Time{}, time.Time{}, err
	}

	symbols := append([]string{s.portfolio.MainCurrency}, s.portfolio.SecondaryCurrencies...)
	symbols = append(symbols, s.portfolio.TrackedCurrencies...)
	for _, a := range assets {
		symbols = append(symbols, a.Currency)
		if !a.PurchaseDate.IsZero() && (oldest.IsZero() || a.PurchaseDate.Before(oldest)) {
			oldest = a.PurchaseDate
		}
	}
	currencies := withoutPivot(normalizeSymbols(symbols))
	sort.Strings(currencies)

	if oldest.IsZero() {
		return currencies, time.Time{}, today, nil
	}
	return currencies, truncateDay(oldest), today, nil
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
