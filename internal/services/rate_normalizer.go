package services

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	apperrors "github.com/tropicaldog17/pricestore/internal/errors"
	"github.com/tropicaldog17/pricestore/internal/models"
)

// QuoteConvention says which way round a provider quotes a rate.
type QuoteConvention int

const (
	// PivotPerAsset quotes units of the pivot per one unit of the asset (BTC = 65000 USD).
	PivotPerAsset QuoteConvention = iota
	// AssetPerPivot quotes units of the asset per one unit of the pivot (1 USD = 0.92 EUR).
	AssetPerPivot
)

func (c QuoteConvention) String() string {
	switch c {
	case PivotPerAsset:
		return "pivot_per_asset"
	case AssetPerPivot:
		return "asset_per_pivot"
	default:
		return "unknown"
	}
}

// RawQuote is a rate exactly as a provider reported it.
type RawQuote struct {
	Asset      string
	Value      string
	Convention QuoteConvention
	Source     string
}

// RateNormalizer turns raw provider quotes into pivot-relative records.
type RateNormalizer struct {
	registry *models.AssetRegistry
}

func NewRateNormalizer(registry *models.AssetRegistry) *RateNormalizer {
	return &RateNormalizer{registry: registry}
}

func invalidQuote(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), apperrors.ErrInvalidQuote)
}

// Normalize converts raw into the canonical pivot-per-asset form at the asset's
// rate scale, rounding half-up, dated on the UTC day of observedAt.
func (n *RateNormalizer) Normalize(raw RawQuote, asset models.Asset, observedAt time.Time) (*models.PriceRecord, error) {
	if n.registry.IsPivot(asset.Code) {
		return nil, invalidQuote("%s is the pivot currency", asset.Code)
	}
	if raw.Asset != "" && !strings.EqualFold(raw.Asset, asset.Code) {
		return nil, invalidQuote("quote for %s given for %s", raw.Asset, asset.Code)
	}
	if strings.TrimSpace(raw.Source) == "" {
		return nil, invalidQuote("%s quote has no source", asset.Code)
	}
	if observedAt.IsZero() {
		return nil, invalidQuote("%s quote has no observation time", asset.Code)
	}

	s := strings.TrimSpace(raw.Value)
	switch strings.ToLower(strings.TrimLeft(s, "+-")) {
	case "nan", "inf", "infinity":
		return nil, invalidQuote("%s quote %q is not finite", asset.Code, raw.Value)
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return nil, invalidQuote("%s quote %q is not a number", asset.Code, raw.Value)
	}
	if !v.IsPositive() {
		return nil, invalidQuote("%s quote %s is not positive", asset.Code, s)
	}

	scale := asset.RateScale()
	var rate decimal.Decimal
	switch raw.Convention {
	case PivotPerAsset:
		rate = v.Round(scale)
	case AssetPerPivot:
		rate = decimal.NewFromInt(1).DivRound(v, scale)
	default:
		return nil, invalidQuote("unknown quote convention %d", raw.Convention)
	}
	if !rate.IsPositive() {
		return nil, invalidQuote("%s quote %s rounds to zero at scale %d", asset.Code, s, scale)
	}

	return &models.PriceRecord{
		Asset:  asset.Code,
		Date:   models.DateOnly(observedAt),
		Rate:   rate,
		Source: raw.Source,
	}, nil
}

// NormalizeFloat is Normalize for providers that decode rates as float64.
func (n *RateNormalizer) NormalizeFloat(value float64, convention QuoteConvention, source string, asset models.Asset, observedAt time.Time) (*models.PriceRecord, error) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return nil, invalidQuote("%s quote %v is not finite", asset.Code, value)
	}
	raw := RawQuote{
		Asset:      asset.Code,
		Value:      strconv.FormatFloat(value, 'f', -1, 64),
		Convention: convention,
		Source:     source,
	}
	return n.Normalize(raw, asset, observedAt)
}
