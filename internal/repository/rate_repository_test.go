package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ndewijer/networth-tracker/internal/model"
	"github.com/ndewijer/networth-tracker/internal/repository"
	"github.com/ndewijer/networth-tracker/internal/testutil"
)

var day = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

// TestRateRepository_SaveBatch tests conflict handling of batch writes.
//
// WHY: Every rate that reaches the database goes through SaveBatch. Invalid points must never be
// stored, and the two save modes decide whether fetched data replaces what is already cached.
func TestRateRepository_SaveBatch(t *testing.T) {
	ctx := context.Background()

	t.Run("saved points are returned by Range", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		repo := repository.NewRateRepository(db)

		res, err := repo.SaveBatch(ctx, []model.RatePoint{
			testutil.NewRatePoint("EUR", day, 1.08),
			testutil.NewRatePoint("EUR", day.Add(time.Hour), 1.09),
			testutil.NewRatePoint("BTC", day, 60000),
		}, model.SaveUpsert)
		require.NoError(t, err)
		assert.Equal(t, 3, res.Saved)
		assert.Equal(t, 0, res.Skipped)

		points, err := repo.Range(ctx, []string{"EUR", "BTC"}, day, day.Add(2*time.Hour))
		require.NoError(t, err)
		require.Len(t, points, 3)
		assert.Equal(t, "BTC", points[0].Symbol)
		assert.Equal(t, "EUR", points[1].Symbol)
		assert.True(t, points[2].Rate.Equal(decimal.RequireFromString("1.09")))
		assert.True(t, points[2].Timestamp.Equal(day.Add(time.Hour)))
	})

	t.Run("invalid points and the pivot are skipped", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		repo := repository.NewRateRepository(db)

		res, err := repo.SaveBatch(ctx, []model.RatePoint{
			testutil.NewRatePoint("EUR", day, 0),
			testutil.NewRatePoint("EUR", day, -1),
			testutil.NewRatePoint("", day, 1.1),
			{Symbol: "EUR", Rate: decimal.NewFromInt(1)},
			testutil.NewRatePoint("USD", day, 1),
			testutil.NewRatePoint("GBP", day, 1.27),
		}, model.SaveInsertNew)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Saved)
		assert.Equal(t, 5, res.Skipped)
		testutil.AssertRowCount(t, db, "rate_point", 1)
	})

	t.Run("duplicate keys in one batch keep the last point", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		repo := repository.NewRateRepository(db)

		res, err := repo.SaveBatch(ctx, []model.RatePoint{
			testutil.NewRatePoint("EUR", day, 1.01),
			testutil.NewRatePoint("EUR", day.Add(300*time.Millisecond), 1.02),
		}, model.SaveInsertNew)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Saved)
		assert.Equal(t, 1, res.Skipped)

		p, err := repo.Latest(ctx, "EUR")
		require.NoError(t, err)
		require.NotNil(t, p)
		assert.Equal(t, "1.02", p.Rate.String())
	})

	t.Run("insert-new keeps existing rows", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		repo := repository.NewRateRepository(db)
		testutil.CreateRatePoint(t, db, "EUR", day, 1.05)

		res, err := repo.SaveBatch(ctx, []model.RatePoint{
			testutil.NewRatePoint("EUR", day, 1.50),
			testutil.NewRatePoint("EUR", day.Add(time.Minute), 1.06),
		}, model.SaveInsertNew)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Saved)
		assert.Equal(t, 1, res.Skipped)

		assert.Equal(t, "1.05", rateAt(t, repo, "EUR", day))
	})

	t.Run("upsert replaces existing rows", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		repo := repository.NewRateRepository(db)
		testutil.CreateRatePoint(t, db, "EUR", day, 1.05)

		res, err := repo.SaveBatch(ctx, []model.RatePoint{
			testutil.NewRatePoint("EUR", day, 1.50),
			testutil.NewRatePoint("EUR", day.Add(time.Minute), 1.06),
		}, model.SaveUpsert)
		require.NoError(t, err)
		assert.Equal(t, 2, res.Saved)
		assert.Equal(t, 1, res.Replaced)

		assert.Equal(t, "1.5", rateAt(t, repo, "EUR", day))
		testutil.AssertRowCount(t, db, "rate_point", 2)
	})

	t.Run("empty batch writes nothing", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		repo := repository.NewRateRepository(db)

		res, err := repo.SaveBatch(ctx, nil, model.SaveUpsert)
		require.NoError(t, err)
		assert.Equal(t, model.SaveResult{}, res)
	})
}

// conflictTrigger makes every EUR insert at day collide with a row written inside the same
// statement, the way a concurrent writer would.
const conflictTrigger = `
	CREATE TRIGGER shadow_writer BEFORE INSERT ON rate_point
	WHEN NEW.symbol = 'EUR' AND NEW.timestamp = '2024-03-01 00:00:00'
		AND NEW.id NOT LIKE 'shadow-%'
		AND NOT EXISTS (SELECT 1 FROM rate_point WHERE symbol = NEW.symbol AND timestamp = NEW.timestamp)
	BEGIN
		INSERT INTO rate_point (id, symbol, timestamp, rate) VALUES ('shadow-' || NEW.id, NEW.symbol, NEW.timestamp, '9.99');
	END`

// TestRateRepository_SaveBatch_ConflictFallback tests the row-by-row retry after a uniqueness
// violation.
//
// WHY: A key written by another writer between the existence check and the insert must not fail
// the whole batch. Insert-new skips just that row; upsert replaces it.
func TestRateRepository_SaveBatch_ConflictFallback(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	repo := repository.NewRateRepository(db)
	_, err := db.Exec(conflictTrigger)
	require.NoError(t, err)

	batch := []model.RatePoint{
		testutil.NewRatePoint("EUR", day, 1.08),
		testutil.NewRatePoint("EUR", day.Add(time.Hour), 1.09),
		testutil.NewRatePoint("GBP", day, 1.27),
	}

	t.Run("insert-new skips the conflicting row", func(t *testing.T) {
		res, err := repo.SaveBatch(ctx, batch, model.SaveInsertNew)
		require.NoError(t, err)
		assert.Equal(t, 2, res.Saved)
		assert.Equal(t, 1, res.Skipped)

		points, err := repo.Range(ctx, []string{"EUR"}, day, day)
		require.NoError(t, err)
		assert.Empty(t, points)
		testutil.AssertRowCount(t, db, "rate_point", 2)
	})

	testutil.CleanDatabase(t, db)

	t.Run("upsert replaces the conflicting row", func(t *testing.T) {
		res, err := repo.SaveBatch(ctx, batch, model.SaveUpsert)
		require.NoError(t, err)
		assert.Equal(t, 3, res.Saved)
		assert.Zero(t, res.Skipped)

		assert.Equal(t, "1.08", rateAt(t, repo, "EUR", day))
		testutil.AssertRowCount(t, db, "rate_point", 3)
	})
}

// TestRateRepository_Lookups tests the point queries used for cache reads.
//
// WHY: Cache mode and the trend anchor depend on Latest and Earliest returning nil rather than
// an error when nothing is stored.
func TestRateRepository_Lookups(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	repo := repository.NewRateRepository(db)

	p, err := repo.Latest(ctx, "EUR")
	require.NoError(t, err)
	assert.Nil(t, p)

	testutil.CreateDailyRates(t, db, "EUR", day, 1.01, 1.02, 1.03)

	latest, err := repo.Latest(ctx, "EUR")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "1.03", latest.Rate.String())

	earliest, err := repo.Earliest(ctx, "EUR")
	require.NoError(t, err)
	require.NotNil(t, earliest)
	assert.True(t, earliest.Timestamp.Equal(day))

	none, err := repo.Earliest(ctx, "GBP")
	require.NoError(t, err)
	assert.Nil(t, none)

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	empty, err := repo.Range(ctx, nil, day, day.AddDate(0, 0, 5))
	require.NoError(t, err)
	assert.Empty(t, empty)
}

// TestRateRepository_CompactBuckets tests bucket down-sampling.
//
// WHY: Compaction deletes data. It must keep the earliest point of each bucket, leave points at
// or after the cutoff alone, and do nothing on a second run.
func TestRateRepository_CompactBuckets(t *testing.T) {
	ctx := context.Background()

	t.Run("keeps earliest point per hour", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		repo := repository.NewRateRepository(db)
		for i := 0; i < 12; i++ {
			testutil.CreateRatePoint(t, db, "EUR", day.Add(time.Duration(i)*5*time.Minute), 1+float64(i)/100)
		}
		testutil.CreateRatePoint(t, db, "EUR", day.Add(90*time.Minute), 1.5)

		deleted, err := repo.CompactBuckets(ctx, repository.BucketHour, day.AddDate(0, 0, 1))
		require.NoError(t, err)
		assert.EqualValues(t, 11, deleted)

		points, err := repo.Range(ctx, []string{"EUR"}, day, day.AddDate(0, 0, 1))
		require.NoError(t, err)
		require.Len(t, points, 2)
		assert.True(t, points[0].Timestamp.Equal(day))
		assert.Equal(t, "1", points[0].Rate.String())

		again, err := repo.CompactBuckets(ctx, repository.BucketHour, day.AddDate(0, 0, 1))
		require.NoError(t, err)
		assert.Zero(t, again)
	})

	t.Run("points at or after cutoff are untouched", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		repo := repository.NewRateRepository(db)
		testutil.CreateRatePoint(t, db, "EUR", day, 1.0)
		testutil.CreateRatePoint(t, db, "EUR", day.Add(time.Minute), 1.1)
		testutil.CreateRatePoint(t, db, "EUR", day.Add(2*time.Minute), 1.2)

		deleted, err := repo.CompactBuckets(ctx, repository.Bucket15Min, day.Add(time.Minute))
		require.NoError(t, err)
		assert.Zero(t, deleted)
		testutil.AssertRowCount(t, db, "rate_point", 3)
	})

	t.Run("symbols are compacted independently", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		repo := repository.NewRateRepository(db)
		testutil.CreateRatePoint(t, db, "EUR", day, 1.0)
		testutil.CreateRatePoint(t, db, "EUR", day.Add(time.Hour), 1.1)
		testutil.CreateRatePoint(t, db, "GBP", day.Add(2*time.Hour), 1.3)

		deleted, err := repo.CompactBuckets(ctx, repository.BucketDay, day.AddDate(0, 0, 2))
		require.NoError(t, err)
		assert.EqualValues(t, 1, deleted)
		testutil.AssertRowCount(t, db, "rate_point", 2)
	})

	t.Run("unknown bucket", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		repo := repository.NewRateRepository(db)

		_, err := repo.CompactBuckets(ctx, repository.Bucket("monthly"), day)
		assert.Error(t, err)
	})
}

// TestRateRepository_CompactBuckets_WeekAcrossNewYear tests weekly buckets at a year boundary.
//
// WHY: A Monday-to-Sunday week that spans New Year is still one week. Keying buckets by year and
// week number would split it and keep an extra point per symbol every year.
func TestRateRepository_CompactBuckets_WeekAcrossNewYear(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	repo := repository.NewRateRepository(db)

	monday := time.Date(2024, 12, 30, 0, 0, 0, 0, time.UTC)
	testutil.CreateRatePoint(t, db, "EUR", monday, 1.04)
	testutil.CreateRatePoint(t, db, "EUR", time.Date(2025, 1, 2, 12, 0, 0, 0, time.UTC), 1.03)
	testutil.CreateRatePoint(t, db, "EUR", time.Date(2025, 1, 5, 23, 0, 0, 0, time.UTC), 1.02)
	testutil.CreateRatePoint(t, db, "EUR", time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC), 1.01)

	deleted, err := repo.CompactBuckets(ctx, repository.BucketWeek, time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.EqualValues(t, 2, deleted)

	points, err := repo.Range(ctx, []string{"EUR"}, monday, monday.AddDate(0, 0, 14))
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.True(t, points[0].Timestamp.Equal(monday))
	assert.Equal(t, "1.01", points[1].Rate.String())
}

// rateAt returns the stored rate of symbol at exactly ts.
func rateAt(t *testing.T, repo *repository.RateRepository, symbol string, ts time.Time) string {
	t.Helper()

	points, err := repo.Range(context.Background(), []string{symbol}, ts, ts)
	require.NoError(t, err)
	require.Len(t, points, 1)
	return points[0].Rate.String()
}
