package testutil

import (
	"database/sql"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ndewijer/networth-tracker/internal/model"
	"github.com/ndewijer/networth-tracker/internal/repository"
)

// AssetBuilder provides a fluent interface for creating test assets.
//
// Example usage:
//
//	asset := testutil.NewAsset().
//	    WithSymbol("AAPL").
//	    WithCurrency("USD").
//	    WithQuantity(10).
//	    Build(t, db)
type AssetBuilder struct {
	ID            string
	Name          string
	Symbol        string
	Currency      string
	Quantity      decimal.Decimal
	PurchasePrice decimal.Decimal
	PurchaseDate  time.Time
}

// NewAsset creates an AssetBuilder with sensible defaults: a USD asset without a symbol,
// one unit bought at 100 on 2024-01-01.
func NewAsset() *AssetBuilder {
	return &AssetBuilder{
		ID:            MakeID(),
		Name:          MakeAssetName("Test Asset"),
		Currency:      "USD",
		Quantity:      decimal.NewFromInt(1),
		PurchasePrice: decimal.NewFromInt(100),
		PurchaseDate:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// WithID sets a custom ID.
func (b *AssetBuilder) WithID(id string) *AssetBuilder {
	b.ID = id
	return b
}

// WithName sets a custom name.
func (b *AssetBuilder) WithName(name string) *AssetBuilder {
	b.Name = name
	return b
}

// WithSymbol sets the market symbol.
func (b *AssetBuilder) WithSymbol(symbol string) *AssetBuilder {
	b.Symbol = symbol
	return b
}

// WithCurrency sets the native currency.
func (b *AssetBuilder) WithCurrency(currency string) *AssetBuilder {
	b.Currency = currency
	return b
}

// WithQuantity sets the current quantity.
func (b *AssetBuilder) WithQuantity(q float64) *AssetBuilder {
	b.Quantity = decimal.NewFromFloat(q)
	return b
}

// WithPurchasePrice sets the purchase price in the native currency.
func (b *AssetBuilder) WithPurchasePrice(p float64) *AssetBuilder {
	b.PurchasePrice = decimal.NewFromFloat(p)
	return b
}

// WithPurchaseDate sets the purchase date.
func (b *AssetBuilder) WithPurchaseDate(d time.Time) *AssetBuilder {
	b.PurchaseDate = d
	return b
}

// Build creates the asset in the database and returns it.
func (b *AssetBuilder) Build(t *testing.T, db *sql.DB) model.Asset {
	t.Helper()

	query := `
		INSERT INTO asset (id, name, symbol, currency, quantity, purchase_price, purchase_date)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	var symbol any
	if b.Symbol != "" {
		symbol = b.Symbol
	}
	_, err := db.Exec(query, b.ID, b.Name, symbol, b.Currency,
		b.Quantity.String(), b.PurchasePrice.String(), repository.FormatDate(b.PurchaseDate))
	if err != nil {
		t.Fatalf("Failed to create test asset: %v", err)
	}

	return model.Asset{
		ID:            b.ID,
		Name:          b.Name,
		Symbol:        b.Symbol,
		Currency:      b.Currency,
		Quantity:      b.Quantity,
		PurchasePrice: b.PurchasePrice,
		PurchaseDate:  b.PurchaseDate,
	}
}

// TransactionBuilder provides a fluent interface for creating ledger entries.
//
// Example usage:
//
//	tx := testutil.NewTransaction(asset.ID).
//	    WithType(model.TransactionSell).
//	    WithQuantity(2).
//	    WithDate(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)).
//	    Build(t, db)
type TransactionBuilder struct {
	ID        string
	AssetID   string
	Type      model.TransactionType
	Date      time.Time
	Quantity  decimal.Decimal
	UnitPrice decimal.Decimal
}

// NewTransaction creates a buy of one unit at 100 on 2024-01-15.
func NewTransaction(assetID string) *TransactionBuilder {
	return &TransactionBuilder{
		ID:        MakeID(),
		AssetID:   assetID,
		Type:      model.TransactionBuy,
		Date:      time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		Quantity:  decimal.NewFromInt(1),
		UnitPrice: decimal.NewFromInt(100),
	}
}

// WithType sets the transaction type.
func (b *TransactionBuilder) WithType(tt model.TransactionType) *TransactionBuilder {
	b.Type = tt
	return b
}

// WithDate sets the transaction date. A date with a time of day is stored as a timestamp.
func (b *TransactionBuilder) WithDate(d time.Time) *TransactionBuilder {
	b.Date = d
	return b
}

// WithQuantity sets the quantity change as entered in the ledger.
func (b *TransactionBuilder) WithQuantity(q float64) *TransactionBuilder {
	b.Quantity = decimal.NewFromFloat(q)
	return b
}

// WithUnitPrice sets the unit price in the asset's native currency.
func (b *TransactionBuilder) WithUnitPrice(p float64) *TransactionBuilder {
	b.UnitPrice = decimal.NewFromFloat(p)
	return b
}

// Build creates the transaction in the database and returns it with its ledger sequence.
func (b *TransactionBuilder) Build(t *testing.T, db *sql.DB) model.Transaction {
	t.Helper()

	query := `
		INSERT INTO "transaction" (id, asset_id, type, date, quantity_change, unit_price)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	date := repository.FormatDate(b.Date)
	if !b.Date.Equal(b.Date.Truncate(24 * time.Hour)) {
		date = repository.FormatTimestamp(b.Date)
	}

	res, err := db.Exec(query, b.ID, b.AssetID, string(b.Type), date,
		b.Quantity.String(), b.UnitPrice.String())
	if err != nil {
		t.Fatalf("Failed to create test transaction: %v", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		t.Fatalf("Failed to read transaction seq: %v", err)
	}

	return model.Transaction{
		ID:             b.ID,
		Seq:            seq,
		AssetID:        b.AssetID,
		Type:           b.Type,
		Date:           b.Date,
		QuantityChange: b.Quantity,
		UnitPrice:      b.UnitPrice,
	}
}

// CreateManualValuation inserts a user-entered price for an asset effective from date.
//
// Example usage:
//
//	testutil.CreateManualValuation(t, db, house.ID, "EUR", 450000, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
func CreateManualValuation(t *testing.T, db *sql.DB, assetID, currency string, price float64, date time.Time) model.ManualValuation {
	t.Helper()

	v := model.ManualValuation{
		ID:       MakeID(),
		AssetID:  assetID,
		Date:     date,
		Price:    decimal.NewFromFloat(price),
		Currency: currency,
		Source:   model.ManualValuationSource,
	}
	_, err := db.Exec(`
		INSERT INTO manual_valuation (id, asset_id, date, price, currency, source)
		VALUES (?, ?, ?, ?, ?, ?)
	`, v.ID, v.AssetID, repository.FormatDate(v.Date), v.Price.String(), v.Currency, v.Source)
	if err != nil {
		t.Fatalf("Failed to create test manual valuation: %v", err)
	}
	return v
}

// NewRatePoint returns an unsaved rate point.
func NewRatePoint(symbol string, ts time.Time, rate float64) model.RatePoint {
	return model.RatePoint{Symbol: symbol, Timestamp: ts.UTC(), Rate: decimal.NewFromFloat(rate)}
}

// CreateRatePoint inserts a single rate directly, bypassing SaveBatch validation.
//
// Example usage:
//
//	testutil.CreateRatePoint(t, db, "EUR", time.Now(), 1.08)
func CreateRatePoint(t *testing.T, db *sql.DB, symbol string, ts time.Time, rate float64) model.RatePoint {
	t.Helper()

	p := NewRatePoint(symbol, ts, rate)
	p.ID = MakeID()
	_, err := db.Exec(`INSERT INTO rate_point (id, symbol, timestamp, rate) VALUES (?, ?, ?, ?)`,
		p.ID, p.Symbol, repository.FormatTimestamp(p.Timestamp), p.Rate.String())
	if err != nil {
		t.Fatalf("Failed to create test rate point: %v", err)
	}
	return p
}

// CreateDailyRates inserts one rate per day at midnight UTC starting at start.
//
// Example usage:
//
//	testutil.CreateDailyRates(t, db, "EUR", start, 1.08, 1.09, 1.10)
func CreateDailyRates(t *testing.T, db *sql.DB, symbol string, start time.Time, rates ...float64) {
	t.Helper()

	for _, q := range DailySeries(start, rates...) {
		CreateRatePoint(t, db, symbol, q.Timestamp, q.Price)
	}
}
