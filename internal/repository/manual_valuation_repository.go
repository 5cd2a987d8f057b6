package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/ndewijer/networth-tracker/internal/model"
)

// ManualValuationRepository provides read access to user-entered price overrides.
type ManualValuationRepository struct {
	db *sql.DB
}

// NewManualValuationRepository creates a new ManualValuationRepository with the provided database connection.
func NewManualValuationRepository(db *sql.DB) *ManualValuationRepository {
	return &ManualValuationRepository{db: db}
}

// GetValuations returns manual valuations dated on or before until (unbounded when zero),
// grouped by asset ID and ordered by date ascending.
func (r *ManualValuationRepository) GetValuations(ctx context.Context, until time.Time) (map[string][]model.ManualValuation, error) {
	query := `SELECT id, asset_id, date, price, currency, source FROM manual_valuation`
	var args []any
	if !until.IsZero() {
		query += ` WHERE date <= ?`
		args = append(args, FormatDate(until))
	}
	query += ` ORDER BY asset_id ASC, date ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query manual_valuation table: %w", err)
	}
	defer rows.Close()

	byAsset := make(map[string][]model.ManualValuation)
	for rows.Next() {
		var v model.ManualValuation
		var dateStr, priceStr string
		if err := rows.Scan(&v.ID, &v.AssetID, &dateStr, &priceStr, &v.Currency, &v.Source); err != nil {
			return nil, fmt.Errorf("failed to scan manual_valuation table results: %w", err)
		}
		if v.Date, err = ParseTime(dateStr); err != nil {
			return nil, err
		}
		if v.Price, err = parseDecimal("price", priceStr); err != nil {
			return nil, err
		}
		v.Currency = strings.ToUpper(v.Currency)
		byAsset[v.AssetID] = append(byAsset[v.AssetID], v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating manual_valuation table: %w", err)
	}
	return byAsset, nil
}
