package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/ndewijer/networth-tracker/internal/model"
)

// MockProvider is an in-memory quote provider for testing.
// It returns predefined quotes and series instead of calling the network.
type MockProvider struct {
	mu sync.Mutex

	// Quotes maps provider symbol to current price.
	Quotes map[string]float64
	// Series maps provider symbol to its historical series.
	Series map[string][]model.Quote
	// Err is returned from every call when set.
	Err error

	// QuoteCalls and RangeCalls count provider calls.
	QuoteCalls int
	RangeCalls int
	// RangeRequests records the resolution of every historical call.
	RangeRequests []model.Resolution
}

// NewMockProvider creates a mock provider with no data: every call succeeds with an empty result.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		Quotes: map[string]float64{},
		Series: map[string][]model.Quote{},
	}
}

// WithQuote configures the current price of a provider symbol.
func (m *MockProvider) WithQuote(symbol string, price float64) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Quotes[symbol] = price
	return m
}

// WithSeries configures the historical series of a provider symbol.
func (m *MockProvider) WithSeries(symbol string, series []model.Quote) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Series[symbol] = series
	return m
}

// WithError configures the mock to fail every call with err.
func (m *MockProvider) WithError(err error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Err = err
	return m
}

// QuoteBatch returns the configured quotes for the requested symbols.
func (m *MockProvider) QuoteBatch(_ context.Context, symbols []string) (map[string]float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.QuoteCalls++
	if m.Err != nil {
		return nil, m.Err
	}
	out := make(map[string]float64)
	for _, s := range symbols {
		if p, ok := m.Quotes[s]; ok {
			out[s] = p
		}
	}
	return out, nil
}

// HistoricalRange returns the configured series clipped to [start, end).
func (m *MockProvider) HistoricalRange(_ context.Context, symbols []string, start, end time.Time, res model.Resolution) (model.Frame, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RangeCalls++
	m.RangeRequests = append(m.RangeRequests, res)
	if m.Err != nil {
		return nil, m.Err
	}
	frame := make(model.Frame)
	for _, s := range symbols {
		for _, q := range m.Series[s] {
			if !q.Timestamp.Before(start) && q.Timestamp.Before(end) {
				frame[s] = append(frame[s], q)
			}
		}
	}
	return frame, nil
}

// Calls returns the number of quote and range calls made so far.
func (m *MockProvider) Calls() (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.QuoteCalls, m.RangeCalls
}

// DailySeries builds one quote per day at midnight UTC from start, using prices in order.
func DailySeries(start time.Time, prices ...float64) []model.Quote {
	day := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	out := make([]model.Quote, 0, len(prices))
	for i, p := range prices {
		out = append(out, model.Quote{Timestamp: day.AddDate(0, 0, i), Price: p})
	}
	return out
}
