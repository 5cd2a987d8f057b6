package service

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ndewijer/networth-tracker/internal/model"
)

// QuantityEffect returns how t changes the held quantity going forward in time.
// Dividends and splits are value events and leave quantity unchanged.
func QuantityEffect(t model.Transaction) decimal.Decimal {
	switch t.Type {
	case model.TransactionBuy, model.TransactionTransferIn:
		return t.QuantityChange.Abs()
	case model.TransactionSell, model.TransactionTransferOut:
		return t.QuantityChange.Abs().Neg()
	case model.TransactionAdjustment:
		return t.QuantityChange
	default:
		return decimal.Zero
	}
}

// HistoricalQuantity returns the quantity held at the end of target's day, starting from current
// and undoing, newest first, every transaction whose calendar day is after that day.
// With no such transactions current is returned unchanged.
func HistoricalQuantity(current decimal.Decimal, txs []model.Transaction, target time.Time) decimal.Decimal {
	day := truncateDay(target)
	sorted := sortedLedger(txs)
	qty := current
	for i := len(sorted) - 1; i >= 0 && truncateDay(sorted[i].Date).After(day); i-- {
		qty = qty.Sub(QuantityEffect(sorted[i]))
	}
	return qty
}

// QuantitiesForDates computes HistoricalQuantity for every date in one backward sweep over the
// ledger. The result is keyed by the UTC day of each date.
func QuantitiesForDates(current decimal.Decimal, txs []model.Transaction, dates []time.Time) map[time.Time]decimal.Decimal {
	days := uniqueDays(dates)
	sorted := sortedLedger(txs)
	out := make(map[time.Time]decimal.Decimal, len(days))

	qty := current
	i := len(sorted) - 1
	for d := len(days) - 1; d >= 0; d-- {
		for ; i >= 0 && truncateDay(sorted[i].Date).After(days[d]); i-- {
			qty = qty.Sub(QuantityEffect(sorted[i]))
		}
		out[days[d]] = qty
	}
	return out
}

// sortedLedger returns txs ordered by (date, seq) without modifying the input.
func sortedLedger(txs []model.Transaction) []model.Transaction {
	sorted := make([]model.Transaction, len(txs))
	copy(sorted, txs)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].Date.Equal(sorted[j].Date) {
			return sorted[i].Date.Before(sorted[j].Date)
		}
		return sorted[i].Seq < sorted[j].Seq
	})
	return sorted
}
