package market

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/semaphore"

	"github.com/ndewijer/networth-tracker/internal/apperrors"
	"github.com/ndewijer/networth-tracker/internal/config"
	"github.com/ndewijer/networth-tracker/internal/logging"
	"github.com/ndewijer/networth-tracker/internal/model"
)

// StatusComponent is the name under which the fetcher reports to the status sink.
const StatusComponent = "quote_provider"

// Provider is the external quote source. Implementations may omit symbols they cannot price.
type Provider interface {
	QuoteBatch(ctx context.Context, symbols []string) (map[string]float64, error)
	HistoricalRange(ctx context.Context, symbols []string, start, end time.Time, res model.Resolution) (model.Frame, error)
}

// Fetcher wraps a Provider with timeouts, retries and a throttling backoff.
//
// State machine: Normal --(rate limit detected)--> Backoff --(BackoffDuration elapses)--> Normal.
// While in Backoff every fetch returns an empty result without calling the provider.
// Fetch methods never return errors; failures yield empty results and a status report.
type Fetcher struct {
	provider     Provider
	callTimeout  time.Duration
	totalTimeout time.Duration
	backoff      time.Duration
	retry        RetryPolicy
	status       StatusSink
	log          *logging.Entry
	now          func() time.Time

	mu           sync.Mutex
	backoffUntil time.Time

	// historical fetches are heavy; only one runs at a time.
	histLock *semaphore.Weighted
}

// NewFetcher creates a Fetcher. A nil status sink discards reports.
func NewFetcher(provider Provider, cfg config.MarketConfig, status StatusSink, log *logging.Entry) *Fetcher {
	if status == nil {
		status = discardSink{}
	}
	if log == nil {
		log = logging.Component(nil, "fetcher")
	}
	return &Fetcher{
		provider:     provider,
		callTimeout:  cfg.CallTimeout,
		totalTimeout: cfg.TotalTimeout,
		backoff:      cfg.BackoffDuration,
		retry: RetryPolicy{
			MaxAttempts: cfg.RetryAttempts,
			BaseDelay:   cfg.RetryBaseDelay,
		},
		status:   status,
		log:      log,
		now:      time.Now,
		histLock: semaphore.NewWeighted(1),
	}
}

// BackoffUntil returns the end of the current backoff, or the zero time when not backing off.
func (f *Fetcher) BackoffUntil() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.now().Before(f.backoffUntil) {
		return f.backoffUntil
	}
	return time.Time{}
}

func (f *Fetcher) inBackoff() bool {
	return !f.BackoffUntil().IsZero()
}

func (f *Fetcher) enterBackoff() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.backoffUntil = f.now().Add(f.backoff)
	return f.backoffUntil
}

// FetchCurrent returns the latest price per provider symbol. Symbols the provider omitted or
// priced invalidly are absent from the result.
func (f *Fetcher) FetchCurrent(ctx context.Context, symbols []string) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal)
	if len(symbols) == 0 {
		return out
	}
	if f.inBackoff() {
		f.log.WithFields(logging.Fields{"symbols": len(symbols)}).Debug("skipping current fetch during backoff")
		return out
	}

	start := f.now()
	quotes, err := withPolicy(ctx, f, func(ctx context.Context) (map[string]float64, error) {
		return f.provider.QuoteBatch(ctx, symbols)
	})
	latency := f.now().Sub(start)
	if err != nil {
		f.handleError(err, latency, "current")
		return out
	}

	for symbol, price := range quotes {
		if r, ok := validRate(price); ok {
			out[symbol] = r
		} else {
			f.log.WithFields(logging.Fields{"symbol": symbol, "price": price}).Debug("dropping invalid quote")
		}
	}
	f.reportResult(len(out), len(symbols), latency)
	return out
}

// FetchRange returns the historical series per provider symbol between start and end.
// Historical fetches are serialized; waiting for the slot counts against ctx.
func (f *Fetcher) FetchRange(ctx context.Context, symbols []string, start, end time.Time, res model.Resolution) model.Frame {
	out := make(model.Frame)
	if len(symbols) == 0 || !end.After(start) {
		return out
	}
	if f.inBackoff() {
		f.log.WithFields(logging.Fields{"symbols": len(symbols)}).Debug("skipping historical fetch during backoff")
		return out
	}

	if err := f.histLock.Acquire(ctx, 1); err != nil {
		return out
	}
	defer f.histLock.Release(1)

	// Another caller may have tripped the backoff while we waited.
	if f.inBackoff() {
		return out
	}

	began := f.now()
	frame, err := withPolicy(ctx, f, func(ctx context.Context) (model.Frame, error) {
		return f.provider.HistoricalRange(ctx, symbols, start, end, res)
	})
	latency := f.now().Sub(began)
	if err != nil {
		f.handleError(err, latency, "historical")
		return out
	}

	points := 0
	for symbol, series := range frame {
		clean := make([]model.Quote, 0, len(series))
		for _, q := range series {
			if _, ok := validRate(q.Price); ok && !q.Timestamp.IsZero() {
				clean = append(clean, model.Quote{Timestamp: q.Timestamp.UTC().Truncate(time.Second), Price: q.Price})
			}
		}
		if len(clean) > 0 {
			out[symbol] = clean
			points += len(clean)
		}
	}
	f.reportResult(len(out), len(symbols), latency)
	f.log.WithFields(logging.Fields{
		"symbols":    len(symbols),
		"resolution": res,
		"points":     points,
		"latency_ms": latency.Milliseconds(),
	}).Debug("historical fetch complete")
	return out
}

func (f *Fetcher) handleError(err error, latency time.Duration, kind string) {
	if IsRateLimit(err) {
		until := f.enterBackoff()
		f.log.WithError(err).WithFields(logging.Fields{"until": until, "kind": kind}).Warn("quote provider rate limited, entering backoff")
		f.status.Report(StatusComponent, model.ComponentDegraded, latency, map[string]string{
			"reason":        "rate_limited",
			"backoff_until": until.UTC().Format(time.RFC3339),
		})
		return
	}
	f.log.WithError(err).WithFields(logging.Fields{"kind": kind}).Warn("quote fetch failed")
	f.status.Report(StatusComponent, model.ComponentDegraded, latency, map[string]string{
		"reason": "unavailable",
		"error":  err.Error(),
	})
}

func (f *Fetcher) reportResult(got, requested int, latency time.Duration) {
	switch {
	case got == 0:
		f.status.Report(StatusComponent, model.ComponentDegraded, latency, map[string]string{"reason": "empty_response"})
	case got < requested:
		f.status.Report(StatusComponent, model.ComponentDegraded, latency, map[string]string{
			"reason": "partial_response",
			"served": fmt.Sprintf("%d/%d", got, requested),
		})
	default:
		f.status.Report(StatusComponent, model.ComponentOnline, latency, nil)
	}
}

// IsRateLimit reports whether err signals provider throttling.
func IsRateLimit(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, apperrors.ErrRateLimited) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "too many requests") || strings.Contains(msg, "rate limit")
}

func validRate(v float64) (decimal.Decimal, bool) {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return decimal.Zero, false
	}
	return decimal.NewFromFloat(v), true
}

// withPolicy runs fn under the fetcher's total timeout and retry policy, bounding each attempt
// by the per-call timeout. The attempt runs in its own goroutine so a provider that ignores its
// context still cannot hold the caller past the deadline.
func withPolicy[T any](ctx context.Context, f *Fetcher, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, f.totalTimeout)
	defer cancel()

	var result T
	err := f.retry.Do(ctx, func(ctx context.Context) error {
		r, err := callWithTimeout(ctx, f.callTimeout, fn)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	return result, err
}

type callResult[T any] struct {
	val T
	err error
}

func callWithTimeout[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan callResult[T], 1)
	go func() {
		v, err := fn(callCtx)
		done <- callResult[T]{val: v, err: err}
	}()

	select {
	case r := <-done:
		return r.val, r.err
	case <-callCtx.Done():
		var zero T
		return zero, fmt.Errorf("%w: %v", apperrors.ErrProviderUnavailable, callCtx.Err())
	}
}
