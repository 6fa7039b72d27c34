package models

import (
	"fmt"
	"sort"
	"strings"

	apperrors "github.com/tropicaldog17/pricestore/internal/errors"
)

// AssetClass is the closed set of asset kinds the store understands.
type AssetClass string

const (
	AssetClassFiat          AssetClass = "fiat"
	AssetClassPreciousMetal AssetClass = "precious_metal"
	AssetClassCrypto        AssetClass = "crypto"
)

// DefaultPivot is the currency every stored rate is expressed in.
const DefaultPivot = "USD"

// Precision returns the default number of fractional digits for amounts of this class.
func (c AssetClass) Precision() int32 {
	switch c {
	case AssetClassFiat:
		return 2
	case AssetClassPreciousMetal:
		return 4
	case AssetClassCrypto:
		return 8
	default:
		return 0
	}
}

// RateScale returns the number of fractional digits kept for pivot-relative rates.
func (c AssetClass) RateScale() int32 {
	switch c {
	case AssetClassFiat, AssetClassPreciousMetal:
		return 10
	case AssetClassCrypto:
		return 12
	default:
		return 0
	}
}

// IsValid reports whether c is one of the known classes.
func (c AssetClass) IsValid() bool {
	switch c {
	case AssetClassFiat, AssetClassPreciousMetal, AssetClassCrypto:
		return true
	}
	return false
}

// Asset is a supported asset symbol
type Asset struct {
	Code      string     `json:"code"`
	Name      string     `json:"name"`
	Class     AssetClass `json:"class"`
	Precision int32      `json:"precision"`
}

// RateScale returns the stored rate scale for the asset's class.
func (a Asset) RateScale() int32 {
	return a.Class.RateScale()
}

func (a Asset) String() string {
	return a.Code
}

func fiat(code, name string) Asset {
	return Asset{Code: code, Name: name, Class: AssetClassFiat, Precision: AssetClassFiat.Precision()}
}

func metal(code, name string) Asset {
	return Asset{Code: code, Name: name, Class: AssetClassPreciousMetal, Precision: AssetClassPreciousMetal.Precision()}
}

func crypto(code, name string) Asset {
	return Asset{Code: code, Name: name, Class: AssetClassCrypto, Precision: AssetClassCrypto.Precision()}
}

func withPrecision(a Asset, precision int32) Asset {
	a.Precision = precision
	return a
}

// DefaultAssets is the built-in asset table.
func DefaultAssets() []Asset {
	return []Asset{
		// north america
		fiat("USD", "US Dollar"),
		fiat("CAD", "Canadian Dollar"),
		// europe
		fiat("EUR", "Euro"),
		fiat("GBP", "Pound Sterling"),
		fiat("CHF", "Swiss Franc"),
		// east asia
		fiat("CNY", "Yuan Renminbi"),
		withPrecision(fiat("JPY", "Yen"), 0),
		withPrecision(fiat("KRW", "Won"), 0),
		fiat("HKD", "Hong Kong Dollar"),
		// south-east asia
		fiat("IDR", "Rupiah"),
		fiat("MYR", "Malaysian Ringgit"),
		fiat("SGD", "Singapore Dollar"),
		fiat("THB", "Baht"),
		withPrecision(fiat("VND", "Dong"), 0),
		// middle-east
		fiat("SAR", "Saudi Riyal"),
		fiat("AED", "UAE Dirham"),
		withPrecision(fiat("KWD", "Kuwaiti Dinar"), 3),
		// south asia / apac
		fiat("INR", "Indian Rupee"),
		fiat("AUD", "Australian Dollar"),
		fiat("NZD", "New Zealand Dollar"),

		// troy ounce
		metal("XAU", "Gold"),
		metal("XAG", "Silver"),
		metal("XPT", "Platinum"),
		metal("XPD", "Palladium"),

		crypto("BTC", "Bitcoin"),
		crypto("ETH", "Ether"),
		crypto("SOL", "Solana"),
		crypto("XRP", "XRP"),
		crypto("ADA", "Cardano"),
	}
}

// AssetRegistry is the immutable table of supported assets. It is built once at
// startup and shared by reference; nothing mutates it afterwards.
type AssetRegistry struct {
	pivot  Asset
	assets map[string]Asset
	codes  []string
}

// NewAssetRegistry builds a registry. The pivot code must be one of the assets.
func NewAssetRegistry(pivot string, assets []Asset) (*AssetRegistry, error) {
	r := &AssetRegistry{assets: make(map[string]Asset, len(assets))}
	for _, a := range assets {
		code := strings.ToUpper(strings.TrimSpace(a.Code))
		if code == "" {
			return nil, &apperrors.ErrValidation{Field: "code", Message: "asset code is required"}
		}
		if !a.Class.IsValid() {
			return nil, &apperrors.ErrValidation{Field: "class", Message: fmt.Sprintf("unknown asset class %q for %s", a.Class, code)}
		}
		if a.Precision < 0 {
			return nil, &apperrors.ErrValidation{Field: "precision", Message: "precision must not be negative"}
		}
		if _, dup := r.assets[code]; dup {
			return nil, &apperrors.ErrValidation{Field: "code", Message: "duplicate asset " + code}
		}
		a.Code = code
		r.assets[code] = a
		r.codes = append(r.codes, code)
	}
	sort.Strings(r.codes)

	p, ok := r.assets[strings.ToUpper(pivot)]
	if !ok {
		return nil, fmt.Errorf("pivot %q: %w", pivot, apperrors.ErrUnknownAsset)
	}
	r.pivot = p
	return r, nil
}

// DefaultRegistry returns the built-in table pivoted on DefaultPivot.
func DefaultRegistry() *AssetRegistry {
	r, err := NewAssetRegistry(DefaultPivot, DefaultAssets())
	if err != nil {
		panic(err)
	}
	return r
}

// Pivot returns the pivot asset.
func (r *AssetRegistry) Pivot() Asset {
	return r.pivot
}

// IsPivot reports whether code names the pivot asset.
func (r *AssetRegistry) IsPivot(code string) bool {
	return strings.EqualFold(code, r.pivot.Code)
}

// Lookup resolves a code case-insensitively.
func (r *AssetRegistry) Lookup(code string) (Asset, error) {
	a, ok := r.assets[strings.ToUpper(strings.TrimSpace(code))]
	if !ok {
		return Asset{}, fmt.Errorf("%q: %w", code, apperrors.ErrUnknownAsset)
	}
	return a, nil
}

// All returns every asset sorted by code.
func (r *AssetRegistry) All() []Asset {
	out := make([]Asset, 0, len(r.codes))
	for _, c := range r.codes {
		out = append(out, r.assets[c])
	}
	return out
}

// ByClass returns the assets of one class sorted by code.
func (r *AssetRegistry) ByClass(class AssetClass) []Asset {
	var out []Asset
	for _, c := range r.codes {
		if a := r.assets[c]; a.Class == class {
			out = append(out, a)
		}
	}
	return out
}
