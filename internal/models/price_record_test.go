package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/tropicaldog17/pricestore/internal/errors"
)

func TestDateOnly(t *testing.T) {
	loc := time.FixedZone("UTC+7", 7*3600)
	in := time.Date(2024, 3, 2, 1, 30, 0, 0, loc) // 2024-03-01 18:30 UTC
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), DateOnly(in))
}

func TestPriceRecord_Validate(t *testing.T) {
	eur := fiat("EUR", "Euro")
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		rec   PriceRecord
		field string
	}{
		{"valid", PriceRecord{Asset: "EUR", Date: day, Rate: decimal.RequireFromString("1.1"), Source: "ecb"}, ""},
		{"missing asset", PriceRecord{Date: day, Rate: decimal.NewFromInt(1), Source: "ecb"}, "asset"},
		{"wrong asset", PriceRecord{Asset: "GBP", Date: day, Rate: decimal.NewFromInt(1), Source: "ecb"}, "asset"},
		{"zero date", PriceRecord{Asset: "EUR", Rate: decimal.NewFromInt(1), Source: "ecb"}, "date"},
		{"intraday date", PriceRecord{Asset: "EUR", Date: day.Add(time.Hour), Rate: decimal.NewFromInt(1), Source: "ecb"}, "date"},
		{"zero rate", PriceRecord{Asset: "EUR", Date: day, Rate: decimal.Zero, Source: "ecb"}, "rate"},
		{"negative rate", PriceRecord{Asset: "EUR", Date: day, Rate: decimal.NewFromInt(-1), Source: "ecb"}, "rate"},
		{"too many digits", PriceRecord{Asset: "EUR", Date: day, Rate: decimal.RequireFromString("1.00000000001"), Source: "ecb"}, "rate"},
		{"missing source", PriceRecord{Asset: "EUR", Date: day, Rate: decimal.NewFromInt(1)}, "source"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rec.Validate(eur)
			if tt.field == "" {
				require.NoError(t, err)
				return
			}
			var verr *apperrors.ErrValidation
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestPriceRecord_JSON(t *testing.T) {
	rec := PriceRecord{
		Asset:  "XAU",
		Date:   time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC),
		Rate:   decimal.RequireFromString("2030.5"),
		Source: "manual",
	}
	data, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.JSONEq(t, `{"asset":"XAU","date":"2024-02-29","rate":"2030.5","source":"manual"}`, string(data))

	var back PriceRecord
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, back.Date.Equal(rec.Date))
	assert.True(t, back.Rate.Equal(rec.Rate))

	err = json.Unmarshal([]byte(`{"asset":"XAU","date":"29/02/2024","rate":"1","source":"x"}`), &back)
	var verr *apperrors.ErrValidation
	require.ErrorAs(t, err, &verr)
}
