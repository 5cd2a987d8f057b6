package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ndewijer/networth-tracker/internal/service"
	"github.com/ndewijer/networth-tracker/internal/testutil"
)

func newMarketHandler(t *testing.T) (*MarketHandler, *testutil.MockProvider, func(symbol string, ts time.Time, rate float64)) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	provider := testutil.NewMockProvider()
	store := func(symbol string, ts time.Time, rate float64) {
		testutil.CreateRatePoint(t, db, symbol, ts, rate)
	}
	return NewMarketHandler(testutil.NewTestMarketService(t, db, provider)), provider, store
}

// TestMarketHandler_Rates tests current rate lookups.
//
// WHY: The rates endpoint must answer even when nothing is stored and the provider is
// unreachable; the fallback table keeps the frontend usable.
func TestMarketHandler_Rates(t *testing.T) {
	t.Run("cache mode falls back to static rates", func(t *testing.T) {
		handler, provider, _ := newMarketHandler(t)

		req := testutil.NewRequestWithQueryParams(http.MethodGet, "/api/market/rates", map[string]string{"symbols": "eur,usd"})
		w := httptest.NewRecorder()
		handler.Rates(w, req)

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		resp := testutil.DecodeJSON[RatesResponse](t, w)
		assert.Equal(t, "1.09", resp.Rates["EUR"].String())
		assert.Equal(t, "1", resp.Rates["USD"].String())
		quotes, _ := provider.Calls()
		assert.Zero(t, quotes)
	})

	t.Run("fresh mode asks the provider", func(t *testing.T) {
		handler, provider, _ := newMarketHandler(t)
		provider.WithQuote("EURUSD=X", 1.15)

		req := testutil.NewRequestWithQueryParams(http.MethodGet, "/api/market/rates", map[string]string{"symbols": "EUR", "mode": "fresh"})
		w := httptest.NewRecorder()
		handler.Rates(w, req)

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, "1.15", testutil.DecodeJSON[RatesResponse](t, w).Rates["EUR"].String())
	})

	t.Run("rejects bad input", func(t *testing.T) {
		handler, _, _ := newMarketHandler(t)

		for _, params := range []map[string]string{
			{},
			{"symbols": "EUR", "mode": "live"},
			{"symbols": "EUR;1"},
		} {
			req := testutil.NewRequestWithQueryParams(http.MethodGet, "/api/market/rates", params)
			w := httptest.NewRecorder()
			handler.Rates(w, req)
			assert.Equal(t, http.StatusBadRequest, w.Code, params)
		}
	})
}

func TestMarketHandler_HistoricalAndRange(t *testing.T) {
	handler, _, store := newMarketHandler(t)
	store("EUR", testutil.Date(2024, 1, 15).Add(10*time.Hour), 1.1)
	store("EUR", testutil.Date(2024, 1, 16).Add(10*time.Hour), 1.2)

	t.Run("historical", func(t *testing.T) {
		req := testutil.NewRequestWithQueryParams(http.MethodGet, "/api/market/rates/historical",
			map[string]string{"date": "2024-01-15", "symbols": "EUR"})
		w := httptest.NewRecorder()
		handler.HistoricalRates(w, req)

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		resp := testutil.DecodeJSON[RatesResponse](t, w)
		assert.Equal(t, "2024-01-15", resp.Date)
		assert.Equal(t, "1.1", resp.Rates["EUR"].String())
	})

	t.Run("historical requires a date", func(t *testing.T) {
		req := testutil.NewRequestWithQueryParams(http.MethodGet, "/api/market/rates/historical",
			map[string]string{"symbols": "EUR"})
		w := httptest.NewRecorder()
		handler.HistoricalRates(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("range", func(t *testing.T) {
		req := testutil.NewRequestWithQueryParams(http.MethodGet, "/api/market/rates/range",
			map[string]string{"dates": "2024-01-15,2024-01-16", "symbols": "EUR"})
		w := httptest.NewRecorder()
		handler.RangeRates(w, req)

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		resp := testutil.DecodeJSON[map[string]map[string]string](t, w)
		assert.Equal(t, "1.1", resp["2024-01-15"]["EUR"])
		assert.Equal(t, "1.2", resp["2024-01-16"]["EUR"])
	})
}

func TestMarketHandler_CurrencyHistory(t *testing.T) {
	t.Run("invalid period", func(t *testing.T) {
		handler, _, _ := newMarketHandler(t)

		req := testutil.NewRequestWithURLParams(http.MethodGet, "/api/market/history/EUR?period=2q", map[string]string{"symbol": "EUR"})
		w := httptest.NewRecorder()
		handler.CurrencyHistory(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("returns stored points", func(t *testing.T) {
		handler, _, store := newMarketHandler(t)
		today := time.Now().UTC().Truncate(24 * time.Hour)
		for i := 1; i <= 5; i++ {
			store("EUR", today.AddDate(0, 0, -i), 1.1)
		}

		req := testutil.NewRequestWithURLParams(http.MethodGet, "/api/market/history/eur?period=5d", map[string]string{"symbol": "eur"})
		w := httptest.NewRecorder()
		handler.CurrencyHistory(w, req)

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		resp := testutil.DecodeJSON[CurrencyHistoryResponse](t, w)
		assert.Equal(t, "EUR", resp.Symbol)
		assert.Equal(t, "5d", resp.Period)
		assert.NotEmpty(t, resp.Points)
	})

	t.Run("missing period uses the default", func(t *testing.T) {
		handler, _, _ := newMarketHandler(t)

		req := testutil.NewRequestWithURLParams(http.MethodGet, "/api/market/history/EUR", map[string]string{"symbol": "EUR"})
		w := httptest.NewRecorder()
		handler.CurrencyHistory(w, req)

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		resp := testutil.DecodeJSON[CurrencyHistoryResponse](t, w)
		assert.Equal(t, service.DefaultHistoryPeriod, resp.Period)
	})
}

func TestMarketHandler_Trends(t *testing.T) {
	handler, _, _ := newMarketHandler(t)

	req := testutil.NewRequestWithQueryParams(http.MethodGet, "/api/market/trends", map[string]string{"symbols": "EUR,GBP", "pivot": "eur"})
	w := httptest.NewRecorder()
	handler.Trends(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := testutil.DecodeJSON[map[string]map[string]*float64](t, w)
	assert.Contains(t, resp, "GBP")

	req = testutil.NewRequestWithQueryParams(http.MethodGet, "/api/market/trends", map[string]string{"symbols": "EUR", "pivot": "??"})
	w = httptest.NewRecorder()
	handler.Trends(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
