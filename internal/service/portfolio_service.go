package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ndewijer/networth-tracker/internal/apperrors"
	"github.com/ndewijer/networth-tracker/internal/config"
	"github.com/ndewijer/networth-tracker/internal/logging"
	"github.com/ndewijer/networth-tracker/internal/model"
)

const (
	// historyWeeklyThresholdDays is the span above which history is sampled weekly.
	historyWeeklyThresholdDays = 90
	// historyAllDays is the lookback of the "all" history preset.
	historyAllDays = 5 * 365
	// DefaultHistoryRange is used when no range preset is given.
	DefaultHistoryRange = "30d"
)

var historyPresets = map[string]int{
	"1w":  7,
	"30d": 30,
	"3m":  90,
	"1y":  365,
	"all": historyAllDays,
}

// RateSource provides current and historical rates to the portfolio service.
type RateSource interface {
	GetRates(ctx context.Context, symbols []string, mode model.FetchMode) model.RateMap
	RangeRates(ctx context.Context, dates []time.Time, symbols []string) map[string]model.RateMap
}

// PortfolioService values the portfolio now, at past dates and over ranges.
type PortfolioService struct {
	loader *DataLoaderService
	rates  RateSource
	cfg    config.PortfolioConfig
	log    *logging.Entry
	now    func() time.Time
}

// NewPortfolioService creates a new PortfolioService.
func NewPortfolioService(loader *DataLoaderService, rates RateSource, cfg config.PortfolioConfig, log *logging.Logger) *PortfolioService {
	if cfg.MainCurrency == "" {
		cfg.MainCurrency = "EUR"
	}
	cfg.MainCurrency = strings.ToUpper(cfg.MainCurrency)
	return &PortfolioService{
		loader: loader,
		rates:  rates,
		cfg:    cfg,
		log:    logging.Component(log, "portfolio"),
		now:    time.Now,
	}
}

// MainCurrency returns the currency valuations are expressed in.
func (s *PortfolioService) MainCurrency() string {
	return s.cfg.MainCurrency
}

// Value returns the portfolio valuation in the main currency. With a nil date it uses current
// quantities and cached rates; otherwise reconstructed quantities, historical rates and the manual
// valuations effective on that date.
func (s *PortfolioService) Value(ctx context.Context, date *time.Time) (model.PortfolioValue, error) {
	at := truncateDay(s.now())
	if date != nil {
		at = truncateDay(*date)
	}

	data, err := s.loader.LoadForPortfolio(ctx, at)
	if err != nil {
		s.log.WithError(err).Error("failed to load portfolio data")
		return model.PortfolioValue{}, fmt.Errorf("%w: %w", apperrors.ErrFailedToGetPortfolioValue, err)
	}

	symbols := data.Symbols(append([]string{s.cfg.MainCurrency}, s.cfg.SecondaryCurrencies...)...)

	var rates model.RateMap
	quantities := make(map[string]decimal.Decimal, len(data.Assets))
	if date == nil {
		rates = s.rates.GetRates(ctx, symbols, model.ModeCache)
		for _, a := range data.Assets {
			quantities[a.ID] = a.Quantity
		}
	} else {
		rates = s.rates.RangeRates(ctx, []time.Time{at}, symbols)[formatDay(at)]
		for _, a := range data.Assets {
			quantities[a.ID] = HistoricalQuantity(a.Quantity, data.TransactionsByAsset[a.ID], at)
		}
	}

	manual := data.ManualAt(at)
	total, perAsset := PortfolioValue(data.Assets, quantities, rates, manual, s.cfg.MainCurrency)

	result := model.PortfolioValue{
		Date:            at,
		Currency:        s.cfg.MainCurrency,
		Total:           total.Round(2),
		Display:         model.FormatMoney(total, s.cfg.MainCurrency),
		PerAsset:        make([]model.AssetValue, 0, len(data.Assets)),
		SecondaryTotals: s.secondaryTotals(total, rates),
	}
	for _, a := range data.Assets {
		qty := quantities[a.ID]
		row := model.AssetValue{AssetID: a.ID, Name: a.Name, Quantity: qty, Value: perAsset[a.ID].Round(2)}
		if !qty.IsZero() {
			row.UnitPrice = UnitPrice(a, rates, manual[a.ID], s.cfg.MainCurrency)
		}
		row.Display = model.FormatMoney(perAsset[a.ID], s.cfg.MainCurrency)
		result.PerAsset = append(result.PerAsset, row)
	}
	sort.SliceStable(result.PerAsset, func(i, j int) bool {
		return result.PerAsset[i].Value.GreaterThan(result.PerAsset[j].Value)
	})
	return result, nil
}

// secondaryTotals converts total into each secondary currency: total × rate(main) / rate(secondary).
func (s *PortfolioService) secondaryTotals(total decimal.Decimal, rates model.RateMap) map[string]decimal.Decimal {
	if len(s.cfg.SecondaryCurrencies) == 0 {
		return nil
	}
	mainRate := targetCurrencyRate(rates, s.cfg.MainCurrency)
	out := make(map[string]decimal.Decimal, len(s.cfg.SecondaryCurrencies))
	for _, c := range s.cfg.SecondaryCurrencies {
		c = strings.ToUpper(c)
		secRate := targetCurrencyRate(rates, c)
		if !secRate.IsPositive() || !mainRate.IsPositive() {
			out[c] = decimal.Zero
			continue
		}
		out[c] = total.Mul(mainRate).Div(secRate).Round(2)
	}
	return out
}

// HistoryPreset returns the value series for a named range ending today.
func (s *PortfolioService) HistoryPreset(ctx context.Context, rng string) ([]model.HistoryPoint, error) {
	if rng == "" {
		rng = DefaultHistoryRange
	}
	days, ok := historyPresets[strings.ToLower(rng)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", apperrors.ErrInvalidPeriod, rng)
	}
	end := truncateDay(s.now())
	return s.History(ctx, end.AddDate(0, 0, -days), end)
}

// History returns the portfolio value in the main currency for each sample date between start
// and end inclusive. Samples are daily, or weekly when the span exceeds 90 days; end is always
// sampled.
func (s *PortfolioService) History(ctx context.Context, start, end time.Time) ([]model.HistoryPoint, error) {
	start, end = truncateDay(start), truncateDay(end)
	if start.After(end) {
		return nil, apperrors.ErrInvalidDateRange
	}

	data, err := s.loader.LoadForPortfolio(ctx, end)
	if err != nil {
		s.log.WithError(err).Error("failed to load portfolio data")
		return nil, fmt.Errorf("%w: %w", apperrors.ErrFailedToGetPortfolioHistory, err)
	}

	dates := sampleDates(start, end)
	values := s.valuesAt(ctx, data, dates, nil)

	points := make([]model.HistoryPoint, 0, len(dates))
	for _, d := range dates {
		points = append(points, model.HistoryPoint{Date: d, Value: values[d].Round(2)})
	}
	return points, nil
}

// PerformanceSummary computes start and end values, net external flow and returns between two
// dates. Flows are Buy and Transfer-in (positive) and Sell and Transfer-out (negative) dated in
// (start, end], valued in the main currency at their transaction-date rates.
func (s *PortfolioService) PerformanceSummary(ctx context.Context, start, end time.Time) (model.PerformanceSummary, error) {
	start, end = truncateDay(start), truncateDay(end)
	if !start.Before(end) {
		return model.PerformanceSummary{}, apperrors.ErrInvalidDateRange
	}

	data, err := s.loader.LoadForPortfolio(ctx, end)
	if err != nil {
		s.log.WithError(err).Error("failed to load portfolio data")
		return model.PerformanceSummary{}, fmt.Errorf("%w: %w", apperrors.ErrFailedToGetPerformance, err)
	}

	var flowTxs []model.Transaction
	for _, txs := range data.TransactionsByAsset {
		for _, t := range txs {
			day := truncateDay(t.Date)
			if day.After(start) && !day.After(end) && isExternalFlow(t.Type) {
				flowTxs = append(flowTxs, t)
			}
		}
	}

	dates := []time.Time{start, end}
	for _, t := range flowTxs {
		dates = append(dates, t.Date)
	}
	rateSymbols := data.Symbols(s.cfg.MainCurrency)
	ratesByDay := s.rates.RangeRates(ctx, dates, rateSymbols)

	values := s.valuesAt(ctx, data, []time.Time{start, end}, ratesByDay)
	flows := s.flowsFor(data, flowTxs, ratesByDay)

	netFlow := decimal.Zero
	for _, f := range flows {
		netFlow = netFlow.Add(f.Amount)
	}

	summary := model.PerformanceSummary{
		StartDate:  start,
		EndDate:    end,
		Currency:   s.cfg.MainCurrency,
		StartValue: values[start].Round(2),
		EndValue:   values[end].Round(2),
		NetFlow:    netFlow.Round(2),
		TWR:        TWR(values[start], values[end], netFlow),
	}
	if mwr, ok := MWR(values[start], values[end], flows, start, end); ok {
		summary.MWR = &mwr
	}
	return summary, nil
}

// valuesAt values the portfolio at each date with one ledger sweep per asset and a single batched
// rate lookup. ratesByDay may be supplied to reuse an earlier lookup.
func (s *PortfolioService) valuesAt(ctx context.Context, data *PortfolioData, dates []time.Time, ratesByDay map[string]model.RateMap) map[time.Time]decimal.Decimal {
	if ratesByDay == nil {
		ratesByDay = s.rates.RangeRates(ctx, dates, data.Symbols(s.cfg.MainCurrency))
	}

	quantitiesByAsset := make(map[string]map[time.Time]decimal.Decimal, len(data.Assets))
	for _, a := range data.Assets {
		quantitiesByAsset[a.ID] = QuantitiesForDates(a.Quantity, data.TransactionsByAsset[a.ID], dates)
	}

	out := make(map[time.Time]decimal.Decimal, len(dates))
	for _, d := range uniqueDays(dates) {
		quantities := make(map[string]decimal.Decimal, len(data.Assets))
		for _, a := range data.Assets {
			quantities[a.ID] = quantitiesByAsset[a.ID][d]
		}
		total, _ := PortfolioValue(data.Assets, quantities, ratesByDay[formatDay(d)], data.ManualAt(d), s.cfg.MainCurrency)
		out[d] = total
	}
	return out
}

func (s *PortfolioService) flowsFor(data *PortfolioData, txs []model.Transaction, ratesByDay map[string]model.RateMap) []model.Flow {
	currencyByAsset := make(map[string]string, len(data.Assets))
	for _, a := range data.Assets {
		currencyByAsset[a.ID] = a.Currency
	}

	flows := make([]model.Flow, 0, len(txs))
	for _, t := range sortedLedger(txs) {
		rates := ratesByDay[formatDay(t.Date)]
		target := targetCurrencyRate(rates, s.cfg.MainCurrency)
		if !target.IsPositive() {
			continue
		}
		amount := QuantityEffect(t).Mul(t.UnitPrice).Mul(currencyRate(rates, currencyByAsset[t.AssetID])).Div(target)
		flows = append(flows, model.Flow{Amount: amount, Date: t.Date})
	}
	return flows
}

func isExternalFlow(t model.TransactionType) bool {
	switch t {
	case model.TransactionBuy, model.TransactionSell, model.TransactionTransferIn, model.TransactionTransferOut:
		return true
	}
	return false
}

// sampleDates returns daily dates from start to end, weekly when the span exceeds the threshold.
// end is always the last sample.
func sampleDates(start, end time.Time) []time.Time {
	step := 1
	if end.Sub(start) > historyWeeklyThresholdDays*24*time.Hour {
		step = 7
	}
	var dates []time.Time
	for d := start; d.Before(end); d = d.AddDate(0, 0, step) {
		dates = append(dates, d)
	}
	return append(dates, end)
}

func formatDay(t time.Time) string {
	return truncateDay(t).Format("2006-01-02")
}
