package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	apperrors "github.com/tropicaldog17/pricestore/internal/errors"
)

// DateLayout is the ISO date format used on disk and on the wire.
const DateLayout = "2006-01-02"

// PriceRecord is one daily rate of an asset, expressed as units of the pivot
// currency per one unit of the asset.
type PriceRecord struct {
	Asset  string          `json:"asset"`
	Date   time.Time       `json:"date"`
	Rate   decimal.Decimal `json:"rate"`
	Source string          `json:"source"`
}

// Common rate sources
const (
	SourceMock            = "mock"
	SourceExchangeRateAPI = "exchangerate-api"
	SourceCoinGecko       = "coingecko"
	SourceManual          = "manual"
	SourceImport          = "import"
)

// DateOnly truncates t to its UTC calendar day.
func DateOnly(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDate parses an ISO date (YYYY-MM-DD) into a UTC day.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, &apperrors.ErrValidation{Field: "date", Message: fmt.Sprintf("invalid date %q, expected YYYY-MM-DD", s)}
	}
	return t, nil
}

// Validate checks the record against the asset it belongs to.
func (r *PriceRecord) Validate(asset Asset) error {
	if r.Asset == "" {
		return &apperrors.ErrValidation{Field: "asset", Message: "asset is required"}
	}
	if !strings.EqualFold(r.Asset, asset.Code) {
		return &apperrors.ErrValidation{Field: "asset", Message: fmt.Sprintf("record asset %s does not match %s", r.Asset, asset.Code)}
	}
	if r.Date.IsZero() {
		return &apperrors.ErrValidation{Field: "date", Message: "date is required"}
	}
	if !r.Date.Equal(DateOnly(r.Date)) {
		return &apperrors.ErrValidation{Field: "date", Message: "date must be a UTC day"}
	}
	if !r.Rate.IsPositive() {
		return &apperrors.ErrValidation{Field: "rate", Message: "rate must be positive"}
	}
	if !r.Rate.Equal(r.Rate.Round(asset.RateScale())) {
		return &apperrors.ErrValidation{Field: "rate", Message: fmt.Sprintf("rate has more than %d fractional digits", asset.RateScale())}
	}
	if strings.TrimSpace(r.Source) == "" {
		return &apperrors.ErrValidation{Field: "source", Message: "source is required"}
	}
	return nil
}

// DateString returns the ISO date of the record.
func (r PriceRecord) DateString() string {
	return r.Date.Format(DateLayout)
}

type priceRecordJSON struct {
	Asset  string          `json:"asset"`
	Date   string          `json:"date"`
	Rate   decimal.Decimal `json:"rate"`
	Source string          `json:"source"`
}

func (r PriceRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(priceRecordJSON{
		Asset:  r.Asset,
		Date:   r.DateString(),
		Rate:   r.Rate,
		Source: r.Source,
	})
}

func (r *PriceRecord) UnmarshalJSON(data []byte) error {
	var raw priceRecordJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	d, err := ParseDate(raw.Date)
	if err != nil {
		return err
	}
	r.Asset = raw.Asset
	r.Date = d
	r.Rate = raw.Rate
	r.Source = raw.Source
	return nil
}
