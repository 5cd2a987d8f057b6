package service

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ndewijer/networth-tracker/internal/model"
)

const (
	mwrSeed          = 0.1
	mwrMaxIterations = 50
	mwrTolerance     = 1e-6
)

// TWR returns (endValue - netFlow) / startValue - 1, or 0 when startValue is zero.
//
// This is a single-period approximation: flows are netted against the end value instead of
// chaining sub-period returns, so a large flow mid-period skews the result. Consumers rely on
// this exact figure.
func TWR(startValue, endValue, netFlow decimal.Decimal) float64 {
	if startValue.IsZero() {
		return 0
	}
	return endValue.Sub(netFlow).Div(startValue).Sub(one).InexactFloat64()
}

type cashFlow struct {
	amount float64
	years  float64
}

// MWR returns the annualized internal rate of return of the cash flow series
// [-startValue at startDate, -flow.Amount at each flow date, +endValue at endDate].
//
// It is solved with Newton-Raphson from 0.1 for at most 50 iterations, stopping when |NPV| or the
// step falls below 1e-6. The boolean is false when the result is indeterminate: the series lacks
// both an inflow and an outflow, the derivative vanishes, or the iteration does not converge.
func MWR(startValue, endValue decimal.Decimal, flows []model.Flow, startDate, endDate time.Time) (float64, bool) {
	series := make([]cashFlow, 0, len(flows)+2)
	add := func(amount decimal.Decimal, at time.Time) {
		series = append(series, cashFlow{
			amount: amount.InexactFloat64(),
			years:  at.Sub(startDate).Hours() / 24 / 365,
		})
	}
	add(startValue.Neg(), startDate)
	for _, f := range flows {
		add(f.Amount.Neg(), f.Date)
	}
	add(endValue, endDate)

	var hasPos, hasNeg bool
	for _, cf := range series {
		hasPos = hasPos || cf.amount > 0
		hasNeg = hasNeg || cf.amount < 0
	}
	if !hasPos || !hasNeg {
		return 0, false
	}

	r := mwrSeed
	for i := 0; i < mwrMaxIterations; i++ {
		if r <= -1 {
			return 0, false
		}
		npv, deriv := npvAt(series, r)
		if math.Abs(npv) < mwrTolerance {
			return r, true
		}
		if deriv == 0 || math.IsNaN(deriv) {
			return 0, false
		}
		next := r - npv/deriv
		if math.IsNaN(next) || math.IsInf(next, 0) {
			return 0, false
		}
		if math.Abs(next-r) < mwrTolerance {
			return next, true
		}
		r = next
	}
	return 0, false
}

// npvAt returns Σ a/(1+r)^t and its derivative with respect to r.
func npvAt(series []cashFlow, r float64) (float64, float64) {
	var npv, deriv float64
	base := 1 + r
	for _, cf := range series {
		npv += cf.amount / math.Pow(base, cf.years)
		deriv -= cf.years * cf.amount / math.Pow(base, cf.years+1)
	}
	return npv, deriv
}
