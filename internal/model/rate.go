package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PivotCurrency is the unit every cached rate is expressed against.
// Its own rate is 1 by definition and is never fetched or stored.
const PivotCurrency = "USD"

// RatePoint is a single persisted observation of a symbol's rate against the pivot currency.
// (Symbol, Timestamp) is unique in storage; Rate is always finite and strictly positive.
type RatePoint struct {
	ID        string          `json:"id,omitempty"`
	Symbol    string          `json:"symbol"`
	Timestamp time.Time       `json:"timestamp"`
	Rate      decimal.Decimal `json:"rate"`
}

// Valid reports whether the point may be persisted or returned to callers.
func (p RatePoint) Valid() bool {
	return p.Symbol != "" && !p.Timestamp.IsZero() && p.Rate.IsPositive()
}

// Key returns the uniqueness key of the point.
func (p RatePoint) Key() RateKey {
	return RateKey{Symbol: p.Symbol, Timestamp: p.Timestamp.UTC()}
}

// RateKey identifies a stored RatePoint.
type RateKey struct {
	Symbol    string
	Timestamp time.Time
}

// RateMap maps a symbol to its rate in pivot terms. A zero value means "unknown".
type RateMap map[string]decimal.Decimal

// Get returns the rate for symbol, or zero when absent.
func (m RateMap) Get(symbol string) decimal.Decimal {
	if r, ok := m[symbol]; ok {
		return r
	}
	return decimal.Zero
}

// FetchMode selects how MarketDataService answers a rate lookup.
type FetchMode string

const (
	// ModeCache answers from the latest stored point, then the fallback table.
	ModeCache FetchMode = "cache"
	// ModeFresh contacts the quote provider under the global fetch lock.
	ModeFresh FetchMode = "fresh"
)

// Valid reports whether m is a known mode.
func (m FetchMode) Valid() bool {
	return m == ModeCache || m == ModeFresh
}

// SaveMode controls conflict handling in RateRepository.SaveBatch.
type SaveMode int

const (
	// SaveInsertNew keeps existing points and only inserts unseen keys.
	SaveInsertNew SaveMode = iota
	// SaveUpsert replaces existing points at the same keys.
	SaveUpsert
)

func (m SaveMode) String() string {
	if m == SaveUpsert {
		return "upsert"
	}
	return "insert_new"
}

// SaveResult summarizes a SaveBatch call.
type SaveResult struct {
	// Saved is the number of rows written.
	Saved int `json:"saved"`
	// Replaced is the number of existing rows deleted by an upsert.
	Replaced int `json:"replaced"`
	// Skipped counts invalid points, in-batch duplicates and rows that lost a uniqueness conflict.
	Skipped int `json:"skipped"`
}

// Resolution is the sampling interval of a historical fetch.
type Resolution string

const (
	Resolution5m  Resolution = "5m"
	Resolution15m Resolution = "15m"
	Resolution1h  Resolution = "1h"
	Resolution1d  Resolution = "1d"
)

// Valid reports whether r is a supported resolution.
func (r Resolution) Valid() bool {
	switch r {
	case Resolution5m, Resolution15m, Resolution1h, Resolution1d:
		return true
	}
	return false
}

// Quote is one price observation returned by the quote provider.
type Quote struct {
	Timestamp time.Time
	Price     float64
}

// Frame is a historical fetch result keyed by provider symbol, each series ascending by time.
type Frame map[string][]Quote
