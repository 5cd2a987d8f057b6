package service

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ndewijer/networth-tracker/internal/market"
	"github.com/ndewijer/networth-tracker/internal/model"
)

var one = decimal.NewFromInt(1)

// UnitPrice returns the price of one unit of asset in target currency.
//
// Priority: the manual valuation (converted from its currency via rates), then the asset's
// market symbol rate, then purchase price converted from the asset's native currency. The result
// is divided by the target currency's rate; a missing or zero target rate yields zero.
func UnitPrice(asset model.Asset, rates model.RateMap, manual *model.ManualValuation, target string) decimal.Decimal {
	var pivotPrice decimal.Decimal

	switch {
	case manual != nil:
		pivotPrice = manual.Price.Mul(currencyRate(rates, manual.Currency))
	case asset.Symbol != "":
		if r, ok := aliasRate(rates, asset.Symbol); ok {
			pivotPrice = r
		} else {
			pivotPrice = purchasePriceInPivot(asset, rates)
		}
	default:
		pivotPrice = purchasePriceInPivot(asset, rates)
	}

	targetRate := targetCurrencyRate(rates, target)
	if !targetRate.IsPositive() {
		return decimal.Zero
	}
	return pivotPrice.Div(targetRate)
}

// PortfolioValue sums quantity × unit price over assets. Zero-quantity assets are valued at zero
// without being priced. The second return value maps asset ID to value.
func PortfolioValue(
	assets []model.Asset,
	quantities map[string]decimal.Decimal,
	rates model.RateMap,
	manual map[string]*model.ManualValuation,
	target string,
) (decimal.Decimal, map[string]decimal.Decimal) {
	total := decimal.Zero
	perAsset := make(map[string]decimal.Decimal, len(assets))
	for _, a := range assets {
		qty := quantities[a.ID]
		if qty.IsZero() {
			perAsset[a.ID] = decimal.Zero
			continue
		}
		v := qty.Mul(UnitPrice(a, rates, manual[a.ID], target))
		perAsset[a.ID] = v
		total = total.Add(v)
	}
	return total, perAsset
}

// EffectiveValuation returns the latest valuation dated on or before date, or nil.
// vals must be ordered by date ascending.
func EffectiveValuation(vals []model.ManualValuation, date time.Time) *model.ManualValuation {
	day := truncateDay(date)
	var found *model.ManualValuation
	for i := range vals {
		if vals[i].Date.After(day) {
			break
		}
		found = &vals[i]
	}
	return found
}

func purchasePriceInPivot(asset model.Asset, rates model.RateMap) decimal.Decimal {
	return asset.PurchasePrice.Mul(currencyRate(rates, asset.Currency))
}

// currencyRate looks up a conversion rate, defaulting to 1 when no alias is priced.
func currencyRate(rates model.RateMap, currency string) decimal.Decimal {
	if currency == "" {
		return one
	}
	if r, ok := aliasRate(rates, currency); ok {
		return r
	}
	return one
}

func targetCurrencyRate(rates model.RateMap, target string) decimal.Decimal {
	t := strings.ToUpper(target)
	if t == "" || t == model.PivotCurrency {
		return one
	}
	return rates.Get(t)
}

// aliasRate tries the raw symbol and its provider-suffix variants.
func aliasRate(rates model.RateMap, symbol string) (decimal.Decimal, bool) {
	if strings.ToUpper(symbol) == model.PivotCurrency {
		return one, true
	}
	for _, alias := range market.Aliases(symbol) {
		if r, ok := rates[alias]; ok && r.IsPositive() {
			return r, true
		}
	}
	return decimal.Zero, false
}
