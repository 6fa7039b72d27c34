package main

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/tropicaldog17/pricestore/internal/models"
)

// dotGrouped lists the currencies written as 1.000.000,00.
var dotGrouped = map[string]bool{
	"EUR": true,
	"IDR": true,
	"VND": true,
}

// Money is an amount of one registered asset.
type Money struct {
	Asset  models.Asset
	Amount decimal.Decimal
}

func (m Money) String() string {
	return m.Asset.Code + " " + m.Amount.StringFixed(m.Asset.Precision)
}

func groupedPattern(group, fraction string, precision int32) *regexp.Regexp {
	frac := ""
	if precision > 0 {
		frac = fmt.Sprintf(`(%s\d{1,%d})?`, regexp.QuoteMeta(fraction), precision)
	}
	return regexp.MustCompile(fmt.Sprintf(`^\d{1,3}(%s?\d{3})*%s$`, regexp.QuoteMeta(group), frac))
}

// ParseMoney reads "<CODE> <amount>", e.g. "USD 1,000.50" or "IDR 5.000.000,00".
// Thousands separators are optional; fraction digits may not exceed the asset precision.
func ParseMoney(registry *models.AssetRegistry, s string) (Money, error) {
	parts := strings.Fields(s)
	if len(parts) != 2 {
		return Money{}, fmt.Errorf("money must be written as <CODE> <amount>, e.g. USD 1,000.50")
	}
	asset, err := registry.Lookup(parts[0])
	if err != nil {
		return Money{}, err
	}
	raw := parts[1]

	var normalized string
	switch {
	case dotGrouped[asset.Code] && groupedPattern(".", ",", asset.Precision).MatchString(raw):
		normalized = strings.ReplaceAll(strings.ReplaceAll(raw, ".", ""), ",", ".")
	case groupedPattern(",", ".", asset.Precision).MatchString(raw):
		normalized = strings.ReplaceAll(raw, ",", "")
	default:
		return Money{}, fmt.Errorf("invalid %s amount %q", asset.Code, raw)
	}

	amount, err := decimal.NewFromString(normalized)
	if err != nil {
		return Money{}, fmt.Errorf("invalid %s amount %q: %w", asset.Code, raw, err)
	}
	return Money{Asset: asset, Amount: amount}, nil
}
