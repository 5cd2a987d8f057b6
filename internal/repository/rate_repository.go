package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/ndewijer/networth-tracker/internal/model"
)

// deleteChunkSize bounds the number of timestamps in one DELETE ... IN (...) statement.
const deleteChunkSize = 500

// RateRepository provides data access methods for the rate_point table.
// Writes are not globally locked: the (symbol, timestamp) uniqueness constraint plus the
// row-by-row fallback in SaveBatch keep concurrent writers consistent.
type RateRepository struct {
	db *sql.DB
	tx *sql.Tx
}

// NewRateRepository creates a new RateRepository with the provided database connection.
func NewRateRepository(db *sql.DB) *RateRepository {
	return &RateRepository{db: db}
}

// WithTx returns a repository that runs its queries inside tx.
func (r *RateRepository) WithTx(tx *sql.Tx) *RateRepository {
	return &RateRepository{db: r.db, tx: tx}
}

func (r *RateRepository) getQuerier() querier {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

// SaveBatch persists points and reports how many rows were written.
//
// Invalid points (empty symbol, zero timestamp, rate <= 0) and duplicate keys within the batch
// are skipped; for duplicates the last occurrence wins. In SaveUpsert mode existing rows at the
// same keys are deleted first, so the batch always wins. In SaveInsertNew mode existing keys in
// each symbol's touched range are filtered out. If a uniqueness violation still happens because a
// concurrent writer got there first, the batch is rolled back and retried row by row, skipping
// (insert-new) or replacing (upsert) the conflicting rows.
func (r *RateRepository) SaveBatch(ctx context.Context, points []model.RatePoint, mode model.SaveMode) (model.SaveResult, error) {
	batch, skipped := normalizeBatch(points)
	result := model.SaveResult{Skipped: skipped}
	if len(batch) == 0 {
		return result, nil
	}

	if r.tx != nil {
		return r.saveInTx(ctx, r.tx, batch, mode, result)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return result, fmt.Errorf("failed to begin transaction: %w", err)
	}

	res, err := r.saveInTx(ctx, tx, batch, mode, result)
	if err != nil {
		_ = tx.Rollback()
		if isUniqueViolation(err) {
			return r.saveRowByRow(ctx, batch, mode, result)
		}
		return result, err
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return r.saveRowByRow(ctx, batch, mode, result)
		}
		return result, fmt.Errorf("failed to commit rate batch: %w", err)
	}
	return res, nil
}

func (r *RateRepository) saveInTx(ctx context.Context, tx *sql.Tx, batch []model.RatePoint, mode model.SaveMode, result model.SaveResult) (model.SaveResult, error) {
	q := r.WithTx(tx)

	switch mode {
	case model.SaveUpsert:
		replaced, err := q.deleteAtKeys(ctx, batch)
		if err != nil {
			return result, err
		}
		result.Replaced = int(replaced)
	default:
		existing, err := q.existingKeys(ctx, batch)
		if err != nil {
			return result, err
		}
		fresh := batch[:0:0]
		for _, p := range batch {
			if _, ok := existing[p.Key()]; ok {
				result.Skipped++
				continue
			}
			fresh = append(fresh, p)
		}
		batch = fresh
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO rate_point (id, symbol, timestamp, rate) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return result, fmt.Errorf("failed to prepare rate insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range batch {
		if _, err := stmt.ExecContext(ctx, uuid.New().String(), p.Symbol, FormatTimestamp(p.Timestamp), p.Rate.String()); err != nil {
			return result, fmt.Errorf("failed to insert rate_point: %w", err)
		}
		result.Saved++
	}
	return result, nil
}

// saveRowByRow is the conflict fallback. Each row is its own statement, so rows written by a
// concurrent writer in the meantime only affect themselves.
func (r *RateRepository) saveRowByRow(ctx context.Context, batch []model.RatePoint, mode model.SaveMode, result model.SaveResult) (model.SaveResult, error) {
	result.Saved = 0
	result.Replaced = 0

	query := `INSERT INTO rate_point (id, symbol, timestamp, rate) VALUES (?, ?, ?, ?)`
	if mode == model.SaveUpsert {
		// REPLACE deletes the conflicting row before inserting.
		query = `INSERT OR REPLACE INTO rate_point (id, symbol, timestamp, rate) VALUES (?, ?, ?, ?)`
	}

	for _, p := range batch {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		_, err := r.db.ExecContext(ctx, query, uuid.New().String(), p.Symbol, FormatTimestamp(p.Timestamp), p.Rate.String())
		switch {
		case err == nil:
			result.Saved++
		case isUniqueViolation(err):
			result.Skipped++
		default:
			return result, fmt.Errorf("failed to insert rate_point: %w", err)
		}
	}
	return result, nil
}

// deleteAtKeys removes rows at the exact (symbol, timestamp) keys of batch.
func (r *RateRepository) deleteAtKeys(ctx context.Context, batch []model.RatePoint) (int64, error) {
	var deleted int64
	for symbol, stamps := range timestampsBySymbol(batch) {
		for start := 0; start < len(stamps); start += deleteChunkSize {
			end := min(start+deleteChunkSize, len(stamps))
			chunk := stamps[start:end]

			args := make([]any, 0, len(chunk)+1)
			args = append(args, symbol)
			for _, ts := range chunk {
				args = append(args, ts)
			}

			//#nosec G202 -- Safe: only placeholders are concatenated
			query := `DELETE FROM rate_point WHERE symbol = ? AND timestamp IN (` + placeholders(len(chunk)) + `)`
			res, err := r.getQuerier().ExecContext(ctx, query, args...)
			if err != nil {
				return deleted, fmt.Errorf("failed to delete rate_point rows: %w", err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return deleted, fmt.Errorf("failed to get rows affected: %w", err)
			}
			deleted += n
		}
	}
	return deleted, nil
}

// existingKeys returns the stored keys within each symbol's [min, max] timestamp range in batch.
func (r *RateRepository) existingKeys(ctx context.Context, batch []model.RatePoint) (map[model.RateKey]struct{}, error) {
	existing := make(map[model.RateKey]struct{})
	for symbol, stamps := range timestampsBySymbol(batch) {
		rows, err := r.getQuerier().QueryContext(ctx,
			`SELECT timestamp FROM rate_point WHERE symbol = ? AND timestamp >= ? AND timestamp <= ?`,
			symbol, stamps[0], stamps[len(stamps)-1],
		)
		if err != nil {
			return nil, fmt.Errorf("failed to query rate_point table: %w", err)
		}
		for rows.Next() {
			var tsStr string
			if err := rows.Scan(&tsStr); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan rate_point results: %w", err)
			}
			ts, err := ParseTime(tsStr)
			if err != nil {
				rows.Close()
				return nil, err
			}
			existing[model.RateKey{Symbol: symbol, Timestamp: ts}] = struct{}{}
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("error iterating rate_point table: %w", err)
		}
	}
	return existing, nil
}

// Latest returns the most recent point for symbol, or nil when none is stored.
func (r *RateRepository) Latest(ctx context.Context, symbol string) (*model.RatePoint, error) {
	return r.one(ctx, `
		SELECT id, symbol, timestamp, rate FROM rate_point
		WHERE symbol = ? AND CAST(rate AS REAL) > 0
		ORDER BY timestamp DESC LIMIT 1`, symbol)
}

// Earliest returns the oldest point for symbol, or nil when none is stored.
func (r *RateRepository) Earliest(ctx context.Context, symbol string) (*model.RatePoint, error) {
	return r.one(ctx, `
		SELECT id, symbol, timestamp, rate FROM rate_point
		WHERE symbol = ? AND CAST(rate AS REAL) > 0
		ORDER BY timestamp ASC LIMIT 1`, symbol)
}

func (r *RateRepository) one(ctx context.Context, query string, args ...any) (*model.RatePoint, error) {
	var p model.RatePoint
	var tsStr, rateStr string
	err := r.getQuerier().QueryRowContext(ctx, query, args...).Scan(&p.ID, &p.Symbol, &tsStr, &rateStr)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query rate_point table: %w", err)
	}
	if err := fillPoint(&p, tsStr, rateStr); err != nil {
		return nil, err
	}
	return &p, nil
}

// Range returns all points for symbols with start <= timestamp <= end, ordered by timestamp
// then symbol.
func (r *RateRepository) Range(ctx context.Context, symbols []string, start, end time.Time) ([]model.RatePoint, error) {
	if len(symbols) == 0 {
		return []model.RatePoint{}, nil
	}

	args := make([]any, 0, len(symbols)+2)
	for _, s := range symbols {
		args = append(args, s)
	}
	args = append(args, FormatTimestamp(start), FormatTimestamp(end))

	//#nosec G202 -- Safe: only placeholders are concatenated
	query := `
		SELECT id, symbol, timestamp, rate FROM rate_point
		WHERE symbol IN (` + placeholders(len(symbols)) + `)
		AND timestamp >= ? AND timestamp <= ?
		AND CAST(rate AS REAL) > 0
		ORDER BY timestamp ASC, symbol ASC`

	rows, err := r.getQuerier().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rate_point table: %w", err)
	}
	defer rows.Close()

	points := []model.RatePoint{}
	for rows.Next() {
		var p model.RatePoint
		var tsStr, rateStr string
		if err := rows.Scan(&p.ID, &p.Symbol, &tsStr, &rateStr); err != nil {
			return nil, fmt.Errorf("failed to scan rate_point results: %w", err)
		}
		if err := fillPoint(&p, tsStr, rateStr); err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rate_point table: %w", err)
	}
	return points, nil
}

// Count returns the number of stored points.
func (r *RateRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.getQuerier().QueryRowContext(ctx, `SELECT COUNT(*) FROM rate_point`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count rate_point rows: %w", err)
	}
	return n, nil
}

// Bucket is a compaction granularity.
type Bucket string

const (
	Bucket15Min Bucket = "15min"
	BucketHour  Bucket = "hourly"
	BucketDay   Bucket = "daily"
	BucketWeek  Bucket = "weekly"
)

var bucketExpr = map[Bucket]string{
	Bucket15Min: `strftime('%Y-%m-%d %H:', timestamp) || (CAST(strftime('%M', timestamp) AS INTEGER) / 15)`,
	BucketHour:  `strftime('%Y-%m-%d %H', timestamp)`,
	BucketDay:   `strftime('%Y-%m-%d', timestamp)`,
	BucketWeek:  `date(timestamp, 'weekday 0', '-6 days')`,
}

// CompactBuckets keeps only the earliest point per (symbol, bucket) among points older than
// cutoff and returns the number of rows deleted. Buckets already reduced to one row are untouched.
func (r *RateRepository) CompactBuckets(ctx context.Context, bucket Bucket, cutoff time.Time) (int64, error) {
	expr, ok := bucketExpr[bucket]
	if !ok {
		return 0, fmt.Errorf("unknown compaction bucket %q", bucket)
	}

	//#nosec G202 -- Safe: bucket expression comes from a fixed table
	query := `
		DELETE FROM rate_point WHERE id IN (
			SELECT id FROM (
				SELECT id, ROW_NUMBER() OVER (
					PARTITION BY symbol, ` + expr + `
					ORDER BY timestamp ASC, id ASC
				) AS rn
				FROM rate_point
				WHERE timestamp < ?
			) WHERE rn > 1
		)`

	res, err := r.getQuerier().ExecContext(ctx, query, FormatTimestamp(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to compact rate_point %s buckets: %w", bucket, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

func fillPoint(p *model.RatePoint, tsStr, rateStr string) error {
	ts, err := ParseTime(tsStr)
	if err != nil {
		return err
	}
	p.Timestamp = ts
	p.Rate, err = parseDecimal("rate", rateStr)
	return err
}

// normalizeBatch drops invalid points and in-batch duplicate keys (last wins), truncating
// timestamps to whole seconds to match the stored layout.
func normalizeBatch(points []model.RatePoint) ([]model.RatePoint, int) {
	index := make(map[model.RateKey]int, len(points))
	out := make([]model.RatePoint, 0, len(points))
	skipped := 0
	for _, p := range points {
		if !p.Valid() || p.Symbol == model.PivotCurrency {
			skipped++
			continue
		}
		p.Timestamp = p.Timestamp.UTC().Truncate(time.Second)
		if i, ok := index[p.Key()]; ok {
			out[i] = p
			skipped++
			continue
		}
		index[p.Key()] = len(out)
		out = append(out, p)
	}
	return out, skipped
}

// timestampsBySymbol groups formatted timestamps per symbol in ascending order.
func timestampsBySymbol(batch []model.RatePoint) map[string][]string {
	out := make(map[string][]string)
	for _, p := range batch {
		out[p.Symbol] = append(out[p.Symbol], FormatTimestamp(p.Timestamp))
	}
	for _, stamps := range out {
		sort.Strings(stamps)
	}
	return out
}
