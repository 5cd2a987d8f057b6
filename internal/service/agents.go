package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ndewijer/networth-tracker/internal/apperrors"
	"github.com/ndewijer/networth-tracker/internal/config"
	"github.com/ndewijer/networth-tracker/internal/model"
)

// Agent names.
const (
	AgentCompaction   = "compaction"
	AgentBackfill     = "backfill"
	AgentPriceRefresh = "price_refresh"
)

// BackfillParams is the JSON payload of a manual backfill run. An empty currency selects auto mode.
type BackfillParams struct {
	Currency  string `json:"currency"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

// Request validates the params into a backfill request.
func (p BackfillParams) Request() (model.BackfillRequest, error) {
	req := model.BackfillRequest{Currency: p.Currency}
	if p.Currency == "" {
		return req, nil
	}
	var err error
	if p.StartDate != "" {
		if req.Start, err = time.Parse(time.DateOnly, p.StartDate); err != nil {
			return req, fmt.Errorf("%w: start_date %q", apperrors.ErrInvalidDate, p.StartDate)
		}
	}
	if p.EndDate != "" {
		if req.End, err = time.Parse(time.DateOnly, p.EndDate); err != nil {
			return req, fmt.Errorf("%w: end_date %q", apperrors.ErrInvalidDate, p.EndDate)
		}
	}
	return req, nil
}

// RegisterAgents registers the compaction, backfill and price refresh agents on runner.
func RegisterAgents(
	runner *AgentRunner,
	compaction *CompactionService,
	backfill *BackfillService,
	market *MarketDataService,
	loader *DataLoaderService,
	portfolio config.PortfolioConfig,
) {
	runner.Register(AgentDefinition{
		Name:        AgentCompaction,
		Description: "Down-samples stored rates through the retention tiers.",
		Job: func(ctx context.Context, _ json.RawMessage, run *AgentRun) (map[string]any, error) {
			res, err := compaction.Run(ctx)
			for _, t := range res.Tiers {
				run.Logf("%s tier: deleted %d rows older than %s", t.Name, t.Deleted, t.Cutoff.Format(time.DateOnly))
			}
			return map[string]any{
				"deleted":   res.TotalDeleted,
				"tiers":     res.Tiers,
				"cancelled": res.Cancelled,
			}, err
		},
		Config: func() any { return compaction.Config() },
		Configure: func(updates map[string]int) (any, error) {
			return compaction.UpdateConfig(updates)
		},
	})

	runner.Register(AgentDefinition{
		Name:        AgentBackfill,
		Description: "Backfills missing historical rates for managed currencies.",
		Job: func(ctx context.Context, params json.RawMessage, run *AgentRun) (map[string]any, error) {
			var p BackfillParams
			if len(params) > 0 {
				if err := json.Unmarshal(params, &p); err != nil {
					return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidMode, err)
				}
			}
			req, err := p.Request()
			if err != nil {
				return nil, err
			}
			mode := "manual"
			if req.Auto() {
				mode = "auto"
			}
			run.Logf("%s backfill started", mode)

			res, err := backfill.Run(ctx, req)
			for _, t := range res.Tiers {
				run.Logf("%s %s..%s: fetched %d, added %d, updated %d",
					t.Resolution, t.Start.Format(time.DateOnly), t.End.Format(time.DateOnly), t.Fetched, t.Added, t.Updated)
			}
			return map[string]any{
				"mode":       mode,
				"currencies": res.Currencies,
				"added":      res.Added,
				"updated":    res.Updated,
				"skipped":    res.Skipped,
				"cancelled":  res.Cancelled,
			}, err
		},
		Config: func() any { return backfill.Config() },
		Configure: func(updates map[string]int) (any, error) {
			return backfill.UpdateConfig(updates)
		},
	})

	runner.Register(AgentDefinition{
		Name:        AgentPriceRefresh,
		Description: "Refreshes current rates for every tracked symbol when the cache is stale.",
		Job: func(ctx context.Context, _ json.RawMessage, run *AgentRun) (map[string]any, error) {
			data, err := loader.LoadForPortfolio(ctx, time.Time{})
			if err != nil {
				return nil, err
			}
			extra := append([]string{portfolio.MainCurrency}, portfolio.SecondaryCurrencies...)
			extra = append(extra, portfolio.TrackedCurrencies...)
			symbols := data.Symbols(extra...)

			rates, refreshed := market.RefreshIfStale(ctx, symbols)
			run.Logf("%d symbols, refreshed=%t", len(symbols), refreshed)
			return map[string]any{
				"symbols":   len(symbols),
				"refreshed": refreshed,
				"rates":     rates,
			}, ctx.Err()
		},
	})
}
