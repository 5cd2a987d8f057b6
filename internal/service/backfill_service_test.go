package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ndewijer/networth-tracker/internal/apperrors"
	"github.com/ndewijer/networth-tracker/internal/model"
	"github.com/ndewijer/networth-tracker/internal/testutil"
)

// TestBackfillService_Manual tests single-currency backfills.
//
// WHY: Backfill splits the span across resolution tiers because the provider only serves fine
// resolutions for recent data. Overlapping tier boundaries must update rather than duplicate.
func TestBackfillService_Manual(t *testing.T) {
	ctx := context.Background()

	t.Run("splits span across tiers", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		start := today().AddDate(0, 0, -20)
		prices := make([]float64, 20)
		for i := range prices {
			prices[i] = 1.08
		}
		provider := testutil.NewMockProvider().WithSeries("EURUSD=X", testutil.DailySeries(start, prices...))
		svc := testutil.NewTestBackfillService(t, db, provider)

		res, err := svc.Run(ctx, model.BackfillRequest{Currency: "eur", Start: start})
		require.NoError(t, err)

		assert.Equal(t, []string{"EUR"}, res.Currencies)
		require.Len(t, res.Tiers, 2)
		assert.Equal(t, model.Resolution5m, res.Tiers[0].Resolution)
		assert.Equal(t, model.Resolution15m, res.Tiers[1].Resolution)
		assert.Equal(t, []model.Resolution{model.Resolution5m, model.Resolution15m}, provider.RangeRequests)

		assert.Equal(t, 14, res.Tiers[0].Added)
		assert.Equal(t, 6, res.Tiers[1].Added)
		assert.Equal(t, 1, res.Tiers[1].Updated)
		assert.Equal(t, 20, res.Added)
		assert.Equal(t, 1, res.Updated)
		testutil.AssertRowCount(t, db, "rate_point", 20)
	})

	t.Run("rerun updates instead of adding", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		start := today().AddDate(0, 0, -5)
		provider := testutil.NewMockProvider().WithSeries("GBPUSD=X", testutil.DailySeries(start, 1.2, 1.21, 1.22))
		svc := testutil.NewTestBackfillService(t, db, provider)

		_, err := svc.Run(ctx, model.BackfillRequest{Currency: "GBP", Start: start})
		require.NoError(t, err)
		res, err := svc.Run(ctx, model.BackfillRequest{Currency: "GBP", Start: start})
		require.NoError(t, err)

		assert.Zero(t, res.Added)
		assert.Equal(t, 3, res.Updated)
		testutil.AssertRowCount(t, db, "rate_point", 3)
	})

	t.Run("pivot currency is a no-op", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		provider := testutil.NewMockProvider()
		svc := testutil.NewTestBackfillService(t, db, provider)

		res, err := svc.Run(ctx, model.BackfillRequest{Currency: "USD", Start: today().AddDate(0, 0, -10)})
		require.NoError(t, err)
		assert.Empty(t, res.Currencies)
		assert.Empty(t, res.Tiers)

		_, rangeCalls := provider.Calls()
		assert.Zero(t, rangeCalls)
	})

	t.Run("invalid ranges", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		svc := testutil.NewTestBackfillService(t, db, testutil.NewMockProvider())

		_, err := svc.Run(ctx, model.BackfillRequest{Currency: "EUR"})
		assert.ErrorIs(t, err, apperrors.ErrInvalidDateRange)

		_, err = svc.Run(ctx, model.BackfillRequest{Currency: "EUR", Start: today(), End: today().AddDate(0, 0, -1)})
		assert.ErrorIs(t, err, apperrors.ErrInvalidDateRange)
	})
}

func TestBackfillService_Auto(t *testing.T) {
	ctx := context.Background()

	t.Run("derives currencies and start from the registry", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		svc := testutil.NewTestBackfillService(t, db, testutil.NewMockProvider())

		a := testutil.NewAsset().WithCurrency("GBP").WithPurchaseDate(today().AddDate(0, 0, -3)).Build(t, db)
		testutil.NewTransaction(a.ID).WithDate(today().AddDate(0, 0, -10)).Build(t, db)
		testutil.NewAsset().WithCurrency("USD").WithPurchaseDate(today().AddDate(0, 0, -5)).Build(t, db)

		res, err := svc.Run(ctx, model.BackfillRequest{})
		require.NoError(t, err)
		assert.Equal(t, []string{"EUR", "GBP"}, res.Currencies)
		assert.True(t, res.Start.Equal(today().AddDate(0, 0, -10)))
		require.Len(t, res.Tiers, 1)
		assert.Equal(t, model.Resolution5m, res.Tiers[0].Resolution)
	})

	t.Run("empty registry has nothing to do", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		svc := testutil.NewTestBackfillService(t, db, testutil.NewMockProvider())

		res, err := svc.Run(ctx, model.BackfillRequest{})
		require.NoError(t, err)
		assert.Empty(t, res.Tiers)
	})

	t.Run("cancelled before the first tier", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		svc := testutil.NewTestBackfillService(t, db, testutil.NewMockProvider())

		cctx, cancel := context.WithCancel(ctx)
		cancel()
		res, err := svc.Run(cctx, model.BackfillRequest{Currency: "EUR", Start: today().AddDate(0, 0, -3)})
		assert.ErrorIs(t, err, context.Canceled)
		assert.True(t, res.Cancelled)
		assert.Empty(t, res.Tiers)
	})
}
