package yahoo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/ndewijer/networth-tracker/internal/apperrors"
	"github.com/ndewijer/networth-tracker/internal/config"
	"github.com/ndewijer/networth-tracker/internal/model"
)

// DefaultBaseURL is the Yahoo Finance chart endpoint.
const DefaultBaseURL = "https://query1.finance.yahoo.com/v8/finance/chart"

// FinanceClient fetches quotes from the Yahoo Finance chart API.
// The chart API serves one symbol per request, so batch methods fan out over a bounded
// worker pool and share a request rate limiter.
type FinanceClient struct {
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
	workers    int
}

// NewFinanceClient creates a client against baseURL (DefaultBaseURL when empty).
// Per-request deadlines come from the caller's context; the HTTP client timeout is only a backstop.
func NewFinanceClient(baseURL string, cfg config.MarketConfig) *FinanceClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	return &FinanceClient{
		httpClient: &http.Client{Timeout: cfg.TotalTimeout},
		baseURL:    baseURL,
		limiter:    rate.NewLimiter(limit, burst),
		workers:    workers,
	}
}

// ParseChart converts a raw Yahoo Finance API response into a structured price chart.
// Intervals whose close is null are skipped.
func (c *FinanceClient) ParseChart(yahooResult Response) (PriceChart, error) {
	if len(yahooResult.Chart.Result) == 0 {
		return PriceChart{}, fmt.Errorf("no results returned")
	}
	result := yahooResult.Chart.Result[0]

	chart := PriceChart{
		Symbol:      result.Meta.Symbol,
		Currency:    result.Meta.Currency,
		MarketPrice: result.Meta.RegularMarketPrice,
	}

	if len(result.Timestamp) == 0 {
		if chart.MarketPrice != nil {
			return chart, nil
		}
		return PriceChart{}, fmt.Errorf("no price data returned")
	}
	if len(result.Indicators.Quote) == 0 || len(result.Indicators.Quote[0].Close) == 0 {
		return PriceChart{}, fmt.Errorf("no close prices returned")
	}
	closes := result.Indicators.Quote[0].Close
	if len(closes) != len(result.Timestamp) {
		return PriceChart{}, fmt.Errorf("mismatched data lengths")
	}

	chart.Indicators = make([]Indicators, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if closes[i] == nil {
			continue
		}
		chart.Indicators = append(chart.Indicators, Indicators{
			Date:       time.Unix(ts, 0).UTC(),
			PriceClose: *closes[i],
		})
	}
	return chart, nil
}

// QueryRecent fetches the last 5 days of daily data for a symbol; the response meta carries
// the live market price.
func (c *FinanceClient) QueryRecent(ctx context.Context, symbol string) (Response, error) {
	u := fmt.Sprintf("%s/%s?interval=1d&range=5d", c.baseURL, url.PathEscape(symbol))
	return c.querySymbol(ctx, symbol, u)
}

// QueryByDateRange fetches data for a symbol between startDate and endDate at the given interval
// ("5m", "15m", "1h", "1d").
func (c *FinanceClient) QueryByDateRange(ctx context.Context, symbol string, startDate, endDate time.Time, interval string) (Response, error) {
	u := fmt.Sprintf(
		"%s/%s?interval=%s&period1=%d&period2=%d",
		c.baseURL,
		url.PathEscape(symbol),
		url.QueryEscape(interval),
		startDate.Unix(),
		endDate.Unix(),
	)
	return c.querySymbol(ctx, symbol, u)
}

// QuoteBatch returns the current price of each symbol. Symbols that fail individually are omitted.
// A throttling response aborts the whole batch with apperrors.ErrRateLimited; if every symbol
// fails, the first failure is returned as apperrors.ErrProviderUnavailable.
func (c *FinanceClient) QuoteBatch(ctx context.Context, symbols []string) (map[string]float64, error) {
	out := make(map[string]float64, len(symbols))
	var mu sync.Mutex

	firstErr := c.fanOut(ctx, symbols, func(ctx context.Context, symbol string) error {
		resp, err := c.QueryRecent(ctx, symbol)
		if err != nil {
			return err
		}
		chart, err := c.ParseChart(resp)
		if err != nil {
			return err
		}
		price := chart.MarketPrice
		if price == nil {
			last, ok := chart.Last()
			if !ok {
				return fmt.Errorf("no price for %s", symbol)
			}
			price = &last.PriceClose
		}
		mu.Lock()
		out[symbol] = *price
		mu.Unlock()
		return nil
	})
	if errors.Is(firstErr, apperrors.ErrRateLimited) {
		return nil, firstErr
	}
	if len(out) == 0 && firstErr != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrProviderUnavailable, firstErr)
	}
	return out, nil
}

// HistoricalRange returns the close series of each symbol between start and end.
// Error semantics match QuoteBatch.
func (c *FinanceClient) HistoricalRange(ctx context.Context, symbols []string, start, end time.Time, res model.Resolution) (model.Frame, error) {
	out := make(model.Frame, len(symbols))
	var mu sync.Mutex

	firstErr := c.fanOut(ctx, symbols, func(ctx context.Context, symbol string) error {
		resp, err := c.QueryByDateRange(ctx, symbol, start, end, string(res))
		if err != nil {
			return err
		}
		chart, err := c.ParseChart(resp)
		if err != nil {
			return err
		}
		series := make([]model.Quote, 0, len(chart.Indicators))
		for _, ind := range chart.Indicators {
			series = append(series, model.Quote{Timestamp: ind.Date, Price: ind.PriceClose})
		}
		mu.Lock()
		out[symbol] = series
		mu.Unlock()
		return nil
	})
	if errors.Is(firstErr, apperrors.ErrRateLimited) {
		return nil, firstErr
	}
	if len(out) == 0 && firstErr != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrProviderUnavailable, firstErr)
	}
	return out, nil
}

// fanOut runs fn for every symbol on at most c.workers goroutines. Only throttling cancels the
// remaining work; other failures are collected and the first one is returned.
func (c *FinanceClient) fanOut(ctx context.Context, symbols []string, fn func(context.Context, string) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)

	var mu sync.Mutex
	var firstErr error

	for _, symbol := range symbols {
		symbol := symbol
		g.Go(func() error {
			err := fn(gctx, symbol)
			if err == nil {
				return nil
			}
			if errors.Is(err, apperrors.ErrRateLimited) {
				return err
			}
			mu.Lock()
			if firstErr == nil {
				firstErr = fmt.Errorf("%s: %w", symbol, err)
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return firstErr
}

func (c *FinanceClient) querySymbol(ctx context.Context, symbol, u string) (Response, error) {
	result, err := c.queryYahoo(ctx, u)
	if err != nil {
		return Response{}, err
	}
	if len(result.Chart.Result) == 0 {
		return Response{}, fmt.Errorf("no results returned for symbol %s", symbol)
	}
	return result, nil
}

// queryYahoo executes a chart request. HTTP 429 is mapped to apperrors.ErrRateLimited.
func (c *FinanceClient) queryYahoo(ctx context.Context, u string) (Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return Response{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Response{}, err
	}

	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return Response{}, fmt.Errorf("%w: %s", apperrors.ErrRateLimited, resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, err
	}

	var response Response
	if err := json.Unmarshal(data, &response); err != nil {
		if resp.StatusCode != http.StatusOK {
			return Response{}, fmt.Errorf("yahoo: unexpected status %s", resp.Status)
		}
		return Response{}, err
	}

	if response.Chart.Error != nil {
		return response, fmt.Errorf("yahoo error: %s: %s", response.Chart.Error.Code, response.Chart.Error.Description)
	}
	if resp.StatusCode != http.StatusOK {
		return Response{}, fmt.Errorf("yahoo: unexpected status %s", resp.Status)
	}

	return response, nil
}
