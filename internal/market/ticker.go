// Package market holds the provider-facing half of the rate cache: symbol resolution,
// the fallback table, the quote fetcher with its backoff state, the fetch lock map
// and the component status monitor.
package market

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ndewijer/networth-tracker/internal/model"
)

const (
	suffixCrypto = "-USD"
	suffixFX     = "=X"
)

// cryptoSymbols are quoted as "<SYM>-USD" by the provider.
var cryptoSymbols = map[string]struct{}{
	"BTC": {}, "ETH": {}, "SOL": {}, "ADA": {}, "DOT": {},
	"DOGE": {}, "SHIB": {}, "LINK": {}, "UNI": {}, "MATIC": {},
	"NEXO": {}, "USDT": {}, "CRO": {}, "LTC": {}, "XRP": {},
}

// fallbackRates are last-known-good approximations used only when a live fetch fails.
var fallbackRates = map[string]decimal.Decimal{
	"EUR":  decimal.RequireFromString("1.09"),
	"GBP":  decimal.RequireFromString("1.27"),
	"CHF":  decimal.RequireFromString("1.12"),
	"CAD":  decimal.RequireFromString("0.74"),
	"BTC":  decimal.RequireFromString("94000.0"),
	"USD":  decimal.RequireFromString("1.0"),
	"NEXO": decimal.RequireFromString("1.25"),
	"USDT": decimal.RequireFromString("1.00"),
	"CRO":  decimal.RequireFromString("0.08"),
}

// Resolve maps a currency or asset symbol to the symbol the quote provider understands.
// It returns false for the pivot currency and for empty or placeholder symbols, whose rate
// is either 1 by definition or unknowable.
func Resolve(symbol string) (string, bool) {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	switch s {
	case "", model.PivotCurrency, "UNKNOWN", "-":
		return "", false
	}

	if strings.HasSuffix(s, suffixCrypto) || strings.HasSuffix(s, suffixFX) {
		return s, true
	}

	// Exchange-qualified tickers such as "EZJ.L" are already valid.
	if strings.Contains(s, ".") {
		return s, true
	}

	if _, ok := cryptoSymbols[s]; ok {
		return s + suffixCrypto, true
	}

	if len(s) == 3 {
		return s + model.PivotCurrency + suffixFX, true
	}

	if isEquityTicker(s) {
		return s, true
	}

	return s + suffixCrypto, true
}

// isEquityTicker reports plain listing symbols such as "AAPL" or "MSFT", which the provider
// quotes without a suffix.
func isEquityTicker(s string) bool {
	if len(s) < 1 || len(s) > 5 {
		return false
	}
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

// Fallback returns the static approximate rate for symbol.
func Fallback(symbol string) (decimal.Decimal, bool) {
	r, ok := fallbackRates[strings.ToUpper(symbol)]
	return r, ok
}

// FallbackOrZero returns the static rate for symbol, or zero ("unknown") when there is none.
func FallbackOrZero(symbol string) decimal.Decimal {
	if r, ok := Fallback(symbol); ok {
		return r
	}
	return decimal.Zero
}

// Aliases lists the rate-map keys under which symbol may have been stored, most specific first:
// the raw symbol, its provider-suffixed forms and its suffix-stripped form.
func Aliases(symbol string) []string {
	s := strings.ToUpper(symbol)
	out := []string{s, s + suffixFX, s + suffixCrypto}
	if base, ok := strings.CutSuffix(s, suffixCrypto); ok {
		out = append(out, base)
	}
	if base, ok := strings.CutSuffix(s, suffixFX); ok {
		out = append(out, base)
		if b, ok := strings.CutSuffix(base, model.PivotCurrency); ok && len(b) == 3 {
			out = append(out, b)
		}
	}
	return out
}
