package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/ndewijer/networth-tracker/internal/apperrors"
	"github.com/ndewijer/networth-tracker/internal/model"
)

// AssetRepository provides read access to the asset registry.
type AssetRepository struct {
	db *sql.DB
}

// NewAssetRepository creates a new AssetRepository with the provided database connection.
func NewAssetRepository(db *sql.DB) *AssetRepository {
	return &AssetRepository{db: db}
}

const assetColumns = `id, name, COALESCE(symbol, ''), currency, quantity, purchase_price, COALESCE(purchase_date, '')`

// GetAssets returns every registered asset ordered by name.
func (r *AssetRepository) GetAssets(ctx context.Context) ([]model.Asset, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+assetColumns+` FROM asset ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query asset table: %w", err)
	}
	defer rows.Close()

	assets := []model.Asset{}
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		assets = append(assets, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating asset table: %w", err)
	}
	return assets, nil
}

// GetAsset returns a single asset, or apperrors.ErrAssetNotFound.
func (r *AssetRepository) GetAsset(ctx context.Context, id string) (model.Asset, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+assetColumns+` FROM asset WHERE id = ?`, id)
	a, err := scanAsset(row)
	if err == sql.ErrNoRows {
		return model.Asset{}, apperrors.ErrAssetNotFound
	}
	return a, err
}

// GetCurrencies returns the distinct native currencies referenced by assets, uppercased and sorted.
func (r *AssetRepository) GetCurrencies(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT UPPER(currency) FROM asset WHERE currency <> '' ORDER BY 1`)
	if err != nil {
		return nil, fmt.Errorf("failed to query asset table: %w", err)
	}
	defer rows.Close()

	currencies := []string{}
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("failed to scan asset table results: %w", err)
		}
		currencies = append(currencies, strings.TrimSpace(c))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating asset table: %w", err)
	}
	return currencies, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAsset(s rowScanner) (model.Asset, error) {
	var a model.Asset
	var qtyStr, priceStr, dateStr string
	if err := s.Scan(&a.ID, &a.Name, &a.Symbol, &a.Currency, &qtyStr, &priceStr, &dateStr); err != nil {
		if err == sql.ErrNoRows {
			return a, err
		}
		return a, fmt.Errorf("failed to scan asset table results: %w", err)
	}
	var err error
	if a.Quantity, err = parseDecimal("quantity", qtyStr); err != nil {
		return a, err
	}
	if a.PurchasePrice, err = parseDecimal("purchase_price", priceStr); err != nil {
		return a, err
	}
	if dateStr != "" {
		if a.PurchaseDate, err = ParseTime(dateStr); err != nil {
			return a, err
		}
	}
	a.Currency = strings.ToUpper(a.Currency)
	return a, nil
}
