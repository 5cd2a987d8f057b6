package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Asset is a holding owned by the external asset registry.
// Quantity is the current running total; it is reconstructed for past dates, never written here.
type Asset struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Symbol        string          `json:"symbol,omitempty"`
	Currency      string          `json:"currency"`
	Quantity      decimal.Decimal `json:"quantity"`
	PurchasePrice decimal.Decimal `json:"purchasePrice"`
	PurchaseDate  time.Time       `json:"purchaseDate"`
}

// TransactionType enumerates ledger entry kinds.
type TransactionType string

const (
	TransactionBuy         TransactionType = "buy"
	TransactionSell        TransactionType = "sell"
	TransactionTransferIn  TransactionType = "transfer_in"
	TransactionTransferOut TransactionType = "transfer_out"
	TransactionDividend    TransactionType = "dividend"
	TransactionAdjustment  TransactionType = "adjustment"
	TransactionSplit       TransactionType = "split"
)

// Transaction is an immutable ledger row. Seq is the ledger insertion sequence and
// breaks ties between transactions sharing a date.
type Transaction struct {
	ID             string          `json:"id"`
	Seq            int64           `json:"seq"`
	AssetID        string          `json:"assetId"`
	Type           TransactionType `json:"type"`
	Date           time.Time       `json:"date"`
	QuantityChange decimal.Decimal `json:"quantityChange"`
	UnitPrice      decimal.Decimal `json:"unitPrice"`
}

// ManualValuationSource marks user-entered prices.
const ManualValuationSource = "Manual"

// ManualValuation is a point price override for an asset, effective from Date onward.
type ManualValuation struct {
	ID       string          `json:"id"`
	AssetID  string          `json:"assetId"`
	Date     time.Time       `json:"date"`
	Price    decimal.Decimal `json:"price"`
	Currency string          `json:"currency"`
	Source   string          `json:"source"`
}
