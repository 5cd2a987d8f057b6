package validation_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ndewijer/networth-tracker/internal/apperrors"
	"github.com/ndewijer/networth-tracker/internal/model"
	"github.com/ndewijer/networth-tracker/internal/validation"
)

func TestParseSymbols(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    []string
		wantErr bool
	}{
		{name: "single", raw: "eur", want: []string{"EUR"}},
		{name: "list with blanks and duplicates", raw: " eur, BTC,,eur ", want: []string{"EUR", "BTC"}},
		{name: "provider shaped", raw: "EURUSD=X,BTC-USD,BRK.B", want: []string{"EURUSD=X", "BTC-USD", "BRK.B"}},
		{name: "empty", raw: "", wantErr: true},
		{name: "only commas", raw: ",,", wantErr: true},
		{name: "bad characters", raw: "EUR;DROP", wantErr: true},
		{name: "too long", raw: "ABCDEFGHIJKLMNOPQRSTUVWXYZ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := validation.ParseSymbols(tt.raw)
			if tt.wantErr {
				assert.ErrorIs(t, err, apperrors.ErrInvalidSymbol)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// TestParseSymbols_Limit tests the per-request symbol cap.
//
// WHY: A single request fans out into provider calls. An unbounded list would let one caller
// exhaust the provider quota.
func TestParseSymbols_Limit(t *testing.T) {
	raw := ""
	for i := 0; i <= validation.MaxSymbols; i++ {
		raw += "S" + string(rune('A'+i%26)) + string(rune('A'+i/26)) + ","
	}
	_, err := validation.ParseSymbols(raw)
	assert.ErrorIs(t, err, apperrors.ErrInvalidSymbol)
}

func TestParseDate(t *testing.T) {
	d, err := validation.ParseDate("2024-02-29")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), d)

	_, err = validation.ParseDate("2023-02-29")
	assert.ErrorIs(t, err, apperrors.ErrInvalidDate)
	_, err = validation.ParseDate("")
	assert.ErrorIs(t, err, apperrors.ErrInvalidDate)

	opt, err := validation.ParseOptionalDate("")
	require.NoError(t, err)
	assert.Nil(t, opt)
	opt, err = validation.ParseOptionalDate("2024-01-01")
	require.NoError(t, err)
	require.NotNil(t, opt)
}

func TestParseDates(t *testing.T) {
	dates, err := validation.ParseDates("2024-01-01, 2024-01-02,")
	require.NoError(t, err)
	assert.Len(t, dates, 2)

	_, err = validation.ParseDates("2024-01-01,yesterday")
	assert.ErrorIs(t, err, apperrors.ErrInvalidDate)
	_, err = validation.ParseDates("")
	assert.ErrorIs(t, err, apperrors.ErrInvalidDate)
}

func TestParseMode(t *testing.T) {
	mode, err := validation.ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, model.ModeCache, mode)

	mode, err = validation.ParseMode("FRESH")
	require.NoError(t, err)
	assert.Equal(t, model.ModeFresh, mode)

	_, err = validation.ParseMode("live")
	assert.ErrorIs(t, err, apperrors.ErrInvalidMode)
}

func TestParseDateRange(t *testing.T) {
	start, end, err := validation.ParseDateRange("2024-01-01", "2024-12-31")
	require.NoError(t, err)
	assert.True(t, start.Before(end))

	_, _, err = validation.ParseDateRange("2024-12-31", "2024-12-31")
	assert.ErrorIs(t, err, apperrors.ErrInvalidDateRange)

	_, _, err = validation.ParseDateRange("", "nope")
	var verr *validation.Error
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "start_date")
	assert.Contains(t, verr.Fields, "end_date")
}

func TestValidateConfigUpdate(t *testing.T) {
	assert.NoError(t, validation.ValidateConfigUpdate(map[string]int{"raw_retention_days": 2}))
	assert.ErrorIs(t, validation.ValidateConfigUpdate(nil), apperrors.ErrInvalidConfigValue)

	err := validation.ValidateConfigUpdate(map[string]int{"raw_retention_days": -1})
	var verr *validation.Error
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "raw_retention_days: must not be negative", err.Error())
}
