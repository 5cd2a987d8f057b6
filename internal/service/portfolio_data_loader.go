package service

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ndewijer/networth-tracker/internal/model"
	"github.com/ndewijer/networth-tracker/internal/repository"
)

// DataLoaderService centralizes loading everything a valuation needs: the asset registry,
// the ledger and manual valuations. The three reads are independent and run concurrently.
type DataLoaderService struct {
	assets       *repository.AssetRepository
	transactions *repository.TransactionRepository
	valuations   *repository.ManualValuationRepository
}

// NewDataLoaderService creates a new DataLoaderService with the provided dependencies.
func NewDataLoaderService(
	assets *repository.AssetRepository,
	transactions *repository.TransactionRepository,
	valuations *repository.ManualValuationRepository,
) *DataLoaderService {
	return &DataLoaderService{
		assets:       assets,
		transactions: transactions,
		valuations:   valuations,
	}
}

// PortfolioData is a consistent snapshot of the inputs to valuation.
//
//   - Assets: every registered asset, ordered by name
//   - TransactionsByAsset: the full ledger grouped by asset, ordered by (date, seq)
//   - ValuationsByAsset: manual valuations up to the load date, ordered by date
type PortfolioData struct {
	Assets              []model.Asset
	TransactionsByAsset map[string][]model.Transaction
	ValuationsByAsset   map[string][]model.ManualValuation
}

// LoadForPortfolio loads the portfolio inputs. Manual valuations after until are skipped;
// a zero until loads all of them.
func (s *DataLoaderService) LoadForPortfolio(ctx context.Context, until time.Time) (*PortfolioData, error) {
	data := &PortfolioData{}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		assets, err := s.assets.GetAssets(gctx)
		if err != nil {
			return fmt.Errorf("failed to load assets: %w", err)
		}
		data.Assets = assets
		return nil
	})
	g.Go(func() error {
		txs, err := s.transactions.GetTransactions(gctx, nil, time.Time{}, time.Time{})
		if err != nil {
			return fmt.Errorf("failed to load transactions: %w", err)
		}
		data.TransactionsByAsset = txs
		return nil
	})
	g.Go(func() error {
		vals, err := s.valuations.GetValuations(gctx, until)
		if err != nil {
			return fmt.Errorf("failed to load manual valuations: %w", err)
		}
		data.ValuationsByAsset = vals
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return data, nil
}

// Symbols returns every symbol whose rate valuation may need: market symbols, native currencies
// and manual valuation currencies, plus extra.
func (data *PortfolioData) Symbols(extra ...string) []string {
	symbols := append([]string{}, extra...)
	for _, a := range data.Assets {
		if a.Symbol != "" {
			symbols = append(symbols, a.Symbol)
		}
		symbols = append(symbols, a.Currency)
	}
	for _, vals := range data.ValuationsByAsset {
		for _, v := range vals {
			symbols = append(symbols, v.Currency)
		}
	}
	return normalizeSymbols(symbols)
}

// ManualAt returns the effective manual valuation of every asset at date.
func (data *PortfolioData) ManualAt(date time.Time) map[string]*model.ManualValuation {
	out := make(map[string]*model.ManualValuation)
	for assetID, vals := range data.ValuationsByAsset {
		if v := EffectiveValuation(vals, date); v != nil {
			out[assetID] = v
		}
	}
	return out
}
