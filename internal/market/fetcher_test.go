package market

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ndewijer/networth-tracker/internal/config"
	"github.com/ndewijer/networth-tracker/internal/model"
)

type fakeProvider struct {
	mu      sync.Mutex
	calls   int
	quotes  map[string]float64
	frame   model.Frame
	errs    []error // consumed one per call
	blockOn bool
}

func (p *fakeProvider) next() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if len(p.errs) == 0 {
		return nil
	}
	err := p.errs[0]
	p.errs = p.errs[1:]
	return err
}

func (p *fakeProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func (p *fakeProvider) QuoteBatch(ctx context.Context, _ []string) (map[string]float64, error) {
	if err := p.next(); err != nil {
		return nil, err
	}
	if p.blockOn {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return p.quotes, nil
}

func (p *fakeProvider) HistoricalRange(_ context.Context, _ []string, _, _ time.Time, _ model.Resolution) (model.Frame, error) {
	if err := p.next(); err != nil {
		return nil, err
	}
	return p.frame, nil
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestFetcher(p Provider, sink StatusSink) (*Fetcher, *fakeClock) {
	cfg := config.DefaultMarketConfig()
	cfg.RetryBaseDelay = time.Millisecond
	f := NewFetcher(p, cfg, sink, nil)
	clock := &fakeClock{t: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	f.now = clock.Now
	return f, clock
}

// WHY: hammering a throttling provider extends the throttle; the fetcher must stay quiet for
// the whole backoff window and resume on its own afterwards.
func TestFetcher_BackoffTransition(t *testing.T) {
	p := &fakeProvider{
		quotes: map[string]float64{"EURUSD=X": 1.08},
		errs:   []error{errors.New("yahoo: 429 Too Many Requests")},
	}
	monitor := NewMonitor()
	f, clock := newTestFetcher(p, monitor)
	ctx := context.Background()

	got := f.FetchCurrent(ctx, []string{"EURUSD=X"})
	assert.Empty(t, got)
	assert.Equal(t, 1, p.Calls(), "rate limit errors are not retried")
	assert.False(t, f.BackoffUntil().IsZero())

	status, ok := monitor.Get(StatusComponent)
	require.True(t, ok)
	assert.Equal(t, model.ComponentDegraded, status.State)
	assert.Equal(t, "rate_limited", status.Details["reason"])

	clock.Advance(time.Second)
	got = f.FetchCurrent(ctx, []string{"EURUSD=X"})
	assert.Empty(t, got)
	assert.Empty(t, f.FetchRange(ctx, []string{"EURUSD=X"}, clock.Now().Add(-time.Hour), clock.Now(), model.Resolution1h))
	assert.Equal(t, 1, p.Calls(), "provider must not be contacted during backoff")

	clock.Advance(15 * time.Minute)
	got = f.FetchCurrent(ctx, []string{"EURUSD=X"})
	assert.Equal(t, 2, p.Calls())
	require.Contains(t, got, "EURUSD=X")
	assert.Equal(t, "1.08", got["EURUSD=X"].String())

	status, _ = monitor.Get(StatusComponent)
	assert.Equal(t, model.ComponentOnline, status.State)
}

func TestFetcher_DropsInvalidQuotes(t *testing.T) {
	p := &fakeProvider{quotes: map[string]float64{
		"EURUSD=X": 1.1,
		"BTC-USD":  math.NaN(),
		"ETH-USD":  math.Inf(1),
		"SOL-USD":  0,
		"ADA-USD":  -2,
	}}
	monitor := NewMonitor()
	f, _ := newTestFetcher(p, monitor)

	got := f.FetchCurrent(context.Background(), []string{"EURUSD=X", "BTC-USD", "ETH-USD", "SOL-USD", "ADA-USD"})
	assert.Len(t, got, 1)
	assert.Contains(t, got, "EURUSD=X")

	status, _ := monitor.Get(StatusComponent)
	assert.Equal(t, model.ComponentDegraded, status.State)
	assert.Equal(t, "partial_response", status.Details["reason"])
}

func TestFetcher_RetriesTransientErrors(t *testing.T) {
	p := &fakeProvider{
		quotes: map[string]float64{"EURUSD=X": 1.1},
		errs:   []error{errors.New("connection reset by peer")},
	}
	f, _ := newTestFetcher(p, nil)

	got := f.FetchCurrent(context.Background(), []string{"EURUSD=X"})
	assert.Len(t, got, 1)
	assert.Equal(t, 2, p.Calls())
	assert.True(t, f.BackoffUntil().IsZero())
}

func TestFetcher_TimeoutReturnsEmpty(t *testing.T) {
	p := &fakeProvider{blockOn: true}
	cfg := config.DefaultMarketConfig()
	cfg.CallTimeout = 20 * time.Millisecond
	cfg.TotalTimeout = 60 * time.Millisecond
	cfg.RetryAttempts = 1
	monitor := NewMonitor()
	f := NewFetcher(p, cfg, monitor, nil)

	start := time.Now()
	got := f.FetchCurrent(context.Background(), []string{"EURUSD=X"})
	assert.Empty(t, got)
	assert.Less(t, time.Since(start), time.Second)

	status, ok := monitor.Get(StatusComponent)
	require.True(t, ok)
	assert.Equal(t, model.ComponentDegraded, status.State)
	assert.Equal(t, "unavailable", status.Details["reason"])
	assert.Contains(t, status.Details["error"], "deadline exceeded")
}

func TestFetcher_FetchRangeSanitizes(t *testing.T) {
	ts := time.Date(2024, 5, 1, 10, 0, 0, 500, time.UTC)
	p := &fakeProvider{frame: model.Frame{
		"EURUSD=X": {{Timestamp: ts, Price: 1.07}, {Timestamp: ts.Add(time.Hour), Price: math.NaN()}},
		"BTC-USD":  {{Timestamp: ts, Price: -1}},
	}}
	f, _ := newTestFetcher(p, nil)

	got := f.FetchRange(context.Background(), []string{"EURUSD=X", "BTC-USD"}, ts.Add(-time.Hour), ts.Add(2*time.Hour), model.Resolution1h)
	require.Len(t, got, 1)
	require.Len(t, got["EURUSD=X"], 1)
	assert.Equal(t, ts.Truncate(time.Second), got["EURUSD=X"][0].Timestamp)
}

func TestFetcher_EmptyInputSkipsProvider(t *testing.T) {
	p := &fakeProvider{}
	f, clock := newTestFetcher(p, nil)

	assert.Empty(t, f.FetchCurrent(context.Background(), nil))
	assert.Empty(t, f.FetchRange(context.Background(), []string{"EURUSD=X"}, clock.Now(), clock.Now(), model.Resolution1d))
	assert.Zero(t, p.Calls())
}

func TestIsRateLimit(t *testing.T) {
	assert.True(t, IsRateLimit(errors.New("Too Many Requests")))
	assert.True(t, IsRateLimit(errors.New("YFRateLimitError: Rate limited. Try after a while.")))
	assert.False(t, IsRateLimit(errors.New("no data")))
	assert.False(t, IsRateLimit(nil))
}
