package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// AssetValue is one row of a portfolio valuation.
type AssetValue struct {
	AssetID   string          `json:"assetId"`
	Name      string          `json:"name"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Value     decimal.Decimal `json:"value"`
	Display   string          `json:"display"`
}

// PortfolioValue is the valuation of all assets at a point in time, in Currency.
type PortfolioValue struct {
	Date            time.Time                  `json:"date"`
	Currency        string                     `json:"currency"`
	Total           decimal.Decimal            `json:"total"`
	Display         string                     `json:"display"`
	PerAsset        []AssetValue               `json:"perAsset"`
	SecondaryTotals map[string]decimal.Decimal `json:"secondaryTotals,omitempty"`
}

// HistoryPoint is a single sample of a portfolio value series.
type HistoryPoint struct {
	Date  time.Time       `json:"date"`
	Value decimal.Decimal `json:"value"`
}

// Flow is an external cash movement into (positive) or out of (negative) the portfolio.
type Flow struct {
	Amount decimal.Decimal `json:"amount"`
	Date   time.Time       `json:"date"`
}

// PerformanceSummary reports returns between two dates. MWR is nil when indeterminate.
type PerformanceSummary struct {
	StartDate  time.Time       `json:"startDate"`
	EndDate    time.Time       `json:"endDate"`
	Currency   string          `json:"currency"`
	StartValue decimal.Decimal `json:"startValue"`
	EndValue   decimal.Decimal `json:"endValue"`
	NetFlow    decimal.Decimal `json:"netFlow"`
	TWR        float64         `json:"twr"`
	MWR        *float64        `json:"mwr"`
}

// TrendPeriod names a lookback window for currency trends.
type TrendPeriod string

const (
	Trend1D  TrendPeriod = "1d"
	Trend1W  TrendPeriod = "1w"
	Trend1M  TrendPeriod = "1m"
	Trend3M  TrendPeriod = "3m"
	Trend1Y  TrendPeriod = "1y"
	TrendAll TrendPeriod = "all"
)

// TrendPeriods lists every period in reporting order.
var TrendPeriods = []TrendPeriod{Trend1D, Trend1W, Trend1M, Trend3M, Trend1Y, TrendAll}

// Trends maps a symbol to its percent change per period; nil entries are unavailable.
type Trends map[string]map[TrendPeriod]*float64
