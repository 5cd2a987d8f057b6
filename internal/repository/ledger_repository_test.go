package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ndewijer/networth-tracker/internal/apperrors"
	"github.com/ndewijer/networth-tracker/internal/model"
	"github.com/ndewijer/networth-tracker/internal/repository"
	"github.com/ndewijer/networth-tracker/internal/testutil"
)

func TestAssetRepository(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	repo := repository.NewAssetRepository(db)

	btc := testutil.NewAsset().WithName("Bitcoin").WithSymbol("BTC").WithCurrency("usd").WithQuantity(0.5).Build(t, db)
	testutil.NewAsset().WithName("Apartment").WithCurrency("EUR").Build(t, db)

	assets, err := repo.GetAssets(ctx)
	require.NoError(t, err)
	require.Len(t, assets, 2)
	assert.Equal(t, "Apartment", assets[0].Name)
	assert.Equal(t, "USD", assets[1].Currency)
	assert.Equal(t, "0.5", assets[1].Quantity.String())

	got, err := repo.GetAsset(ctx, btc.ID)
	require.NoError(t, err)
	assert.Equal(t, "BTC", got.Symbol)
	assert.True(t, got.PurchaseDate.Equal(btc.PurchaseDate))

	_, err = repo.GetAsset(ctx, testutil.MakeID())
	assert.True(t, errors.Is(err, apperrors.ErrAssetNotFound))

	currencies, err := repo.GetCurrencies(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"EUR", "USD"}, currencies)
}

// TestTransactionRepository_GetTransactions tests ledger reads.
//
// WHY: Quantity reconstruction walks the ledger in (date, seq) order. Same-day entries must keep
// their insertion order or a sell could be undone before the buy that funded it.
func TestTransactionRepository_GetTransactions(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	repo := repository.NewTransactionRepository(db)

	a := testutil.NewAsset().Build(t, db)
	b := testutil.NewAsset().Build(t, db)

	d1 := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	sell := testutil.NewTransaction(a.ID).WithType(model.TransactionSell).WithQuantity(1).WithDate(d2).Build(t, db)
	buy := testutil.NewTransaction(a.ID).WithQuantity(2).WithDate(d2).Build(t, db)
	first := testutil.NewTransaction(a.ID).WithDate(d1).Build(t, db)
	testutil.NewTransaction(b.ID).WithDate(d1).Build(t, db)

	t.Run("orders by date then sequence", func(t *testing.T) {
		byAsset, err := repo.GetTransactions(ctx, []string{a.ID}, time.Time{}, time.Time{})
		require.NoError(t, err)
		require.Len(t, byAsset, 1)
		txs := byAsset[a.ID]
		require.Len(t, txs, 3)
		assert.Equal(t, first.ID, txs[0].ID)
		assert.Equal(t, sell.ID, txs[1].ID)
		assert.Equal(t, buy.ID, txs[2].ID)
		assert.Less(t, txs[1].Seq, txs[2].Seq)
	})

	t.Run("filters by date range", func(t *testing.T) {
		byAsset, err := repo.GetTransactions(ctx, nil, d2, time.Time{})
		require.NoError(t, err)
		assert.Len(t, byAsset[a.ID], 2)
		assert.Empty(t, byAsset[b.ID])
	})

	t.Run("oldest date", func(t *testing.T) {
		oldest, err := repo.GetOldestTransactionDate(ctx)
		require.NoError(t, err)
		assert.True(t, oldest.Equal(d1))
	})
}

func TestTransactionRepository_EmptyLedger(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewTransactionRepository(db)

	oldest, err := repo.GetOldestTransactionDate(context.Background())
	require.NoError(t, err)
	assert.True(t, oldest.IsZero())
}

func TestManualValuationRepository_GetValuations(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	repo := repository.NewManualValuationRepository(db)

	house := testutil.NewAsset().WithCurrency("EUR").Build(t, db)
	testutil.CreateManualValuation(t, db, house.ID, "eur", 400000, time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC))
	testutil.CreateManualValuation(t, db, house.ID, "EUR", 420000, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))

	all, err := repo.GetValuations(ctx, time.Time{})
	require.NoError(t, err)
	require.Len(t, all[house.ID], 2)
	assert.Equal(t, "EUR", all[house.ID][0].Currency)

	until, err := repo.GetValuations(ctx, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, until[house.ID], 1)
	assert.Equal(t, "400000", until[house.ID][0].Price.String())
}
