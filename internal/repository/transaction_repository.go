package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ndewijer/networth-tracker/internal/model"
)

// TransactionRepository provides read access to the transaction ledger.
// The ledger is owned by the asset registry; this package never writes to it.
type TransactionRepository struct {
	db *sql.DB
}

// NewTransactionRepository creates a new TransactionRepository with the provided database connection.
func NewTransactionRepository(db *sql.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// GetTransactions retrieves transactions for the given asset IDs dated within [startDate, endDate].
// A zero startDate or endDate leaves that side unbounded; an empty assetIDs slice selects every asset.
//
// Transactions are ordered by (date, seq) so same-day entries keep their ledger insertion order,
// and are grouped by asset ID.
func (r *TransactionRepository) GetTransactions(ctx context.Context, assetIDs []string, startDate, endDate time.Time) (map[string][]model.Transaction, error) {
	query := `
		SELECT seq, id, asset_id, type, date, quantity_change, unit_price
		FROM "transaction"
		WHERE 1 = 1`
	args := make([]any, 0, len(assetIDs)+2)

	if len(assetIDs) > 0 {
		//#nosec G202 -- Safe: only placeholders are concatenated
		query += ` AND asset_id IN (` + placeholders(len(assetIDs)) + `)`
		for _, id := range assetIDs {
			args = append(args, id)
		}
	}
	if !startDate.IsZero() {
		query += ` AND date >= ?`
		args = append(args, FormatDate(startDate))
	}
	if !endDate.IsZero() {
		query += ` AND date <= ?`
		args = append(args, FormatDate(endDate))
	}
	query += ` ORDER BY date ASC, seq ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transaction table: %w", err)
	}
	defer rows.Close()

	byAsset := make(map[string][]model.Transaction)
	for rows.Next() {
		var t model.Transaction
		var dateStr, qtyStr, priceStr string
		if err := rows.Scan(&t.Seq, &t.ID, &t.AssetID, &t.Type, &dateStr, &qtyStr, &priceStr); err != nil {
			return nil, fmt.Errorf("failed to scan transaction table results: %w", err)
		}
		t.Date, err = ParseTime(dateStr)
		if err != nil {
			return nil, err
		}
		if t.QuantityChange, err = parseDecimal("quantity_change", qtyStr); err != nil {
			return nil, err
		}
		if t.UnitPrice, err = parseDecimal("unit_price", priceStr); err != nil {
			return nil, err
		}
		byAsset[t.AssetID] = append(byAsset[t.AssetID], t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transaction table: %w", err)
	}
	return byAsset, nil
}

// GetOldestTransactionDate returns the date of the earliest transaction in the ledger,
// or the zero time when the ledger is empty.
func (r *TransactionRepository) GetOldestTransactionDate(ctx context.Context) (time.Time, error) {
	var oldest sql.NullString
	if err := r.db.QueryRowContext(ctx, `SELECT MIN(date) FROM "transaction"`).Scan(&oldest); err != nil {
		return time.Time{}, fmt.Errorf("failed to query transaction table: %w", err)
	}
	if !oldest.Valid {
		return time.Time{}, nil
	}
	return ParseTime(oldest.String)
}
