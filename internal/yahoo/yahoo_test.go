package yahoo

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ndewijer/networth-tracker/internal/apperrors"
	"github.com/ndewijer/networth-tracker/internal/config"
	"github.com/ndewijer/networth-tracker/internal/model"
)

func ptr[T any](v T) *T { return &v }

func chartResponse(symbol string, marketPrice *float64, timestamps []int64, closes []*float64) Response {
	return Response{Chart: Chart{Result: []Result{{
		Meta:       Meta{Symbol: symbol, Currency: "USD", RegularMarketPrice: marketPrice},
		Timestamp:  timestamps,
		Indicators: IndicatorsContainer{Quote: []Quote{{Close: closes}}},
	}}}}
}

func newTestServer(t *testing.T, handler http.HandlerFunc) *FinanceClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg := config.DefaultMarketConfig()
	cfg.RequestsPerSecond = 0
	return NewFinanceClient(srv.URL, cfg)
}

func symbolFromPath(r *http.Request) string {
	return r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
}

func TestParseChart(t *testing.T) {
	c := &FinanceClient{}

	t.Run("skips null closes", func(t *testing.T) {
		resp := chartResponse("EURUSD=X", nil, []int64{1700000000, 1700000060, 1700000120}, []*float64{ptr(1.1), nil, ptr(1.2)})
		chart, err := c.ParseChart(resp)
		require.NoError(t, err)
		require.Len(t, chart.Indicators, 2)
		last, ok := chart.Last()
		require.True(t, ok)
		assert.Equal(t, 1.2, last.PriceClose)
		assert.Equal(t, time.Unix(1700000120, 0).UTC(), last.Date)
	})

	t.Run("rejects mismatched lengths", func(t *testing.T) {
		resp := chartResponse("X", nil, []int64{1, 2}, []*float64{ptr(1.0)})
		_, err := c.ParseChart(resp)
		require.Error(t, err)
	})

	t.Run("accepts meta price without series", func(t *testing.T) {
		resp := chartResponse("X", ptr(3.5), nil, nil)
		chart, err := c.ParseChart(resp)
		require.NoError(t, err)
		assert.Equal(t, 3.5, *chart.MarketPrice)
	})
}

func TestQuoteBatch(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch symbolFromPath(r) {
		case "EURUSD=X":
			assert.Equal(t, "5d", r.URL.Query().Get("range"))
			_ = json.NewEncoder(w).Encode(chartResponse("EURUSD=X", ptr(1.085), []int64{1}, []*float64{ptr(1.08)}))
		case "BTC-USD":
			_ = json.NewEncoder(w).Encode(chartResponse("BTC-USD", nil, []int64{1, 2}, []*float64{ptr(60000.0), ptr(61000.0)}))
		default:
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(Response{Chart: Chart{Error: &Error{Code: "Not Found", Description: "No data found"}}})
		}
	})

	got, err := client.QuoteBatch(context.Background(), []string{"EURUSD=X", "BTC-USD", "NOPE"})
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"EURUSD=X": 1.085, "BTC-USD": 61000.0}, got)
}

func TestQuoteBatch_RateLimited(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("Too Many Requests"))
	})

	_, err := client.QuoteBatch(context.Background(), []string{"EURUSD=X", "GBPUSD=X"})
	require.ErrorIs(t, err, apperrors.ErrRateLimited)
}

func TestQuoteBatch_AllFail(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := client.QuoteBatch(context.Background(), []string{"EURUSD=X"})
	require.ErrorIs(t, err, apperrors.ErrProviderUnavailable)
}

func TestHistoricalRange(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 3)

	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "1h", q.Get("interval"))
		assert.Equal(t, "1704067200", q.Get("period1"))
		_ = json.NewEncoder(w).Encode(chartResponse(symbolFromPath(r), nil,
			[]int64{start.Unix(), start.Add(time.Hour).Unix()},
			[]*float64{ptr(1.1), ptr(1.11)}))
	})

	frame, err := client.HistoricalRange(context.Background(), []string{"EURUSD=X", "GBPUSD=X"}, start, end, model.Resolution1h)
	require.NoError(t, err)
	require.Len(t, frame, 2)
	require.Len(t, frame["GBPUSD=X"], 2)
	assert.Equal(t, start, frame["GBPUSD=X"][0].Timestamp)
	assert.Equal(t, 1.11, frame["EURUSD=X"][1].Price)
}
