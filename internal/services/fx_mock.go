package services

import (
	"context"
	"time"

	"github.com/tropicaldog17/pricestore/internal/models"
)

// FixedRateProvider returns fixed quotes against USD, in both conventions, for
// development runs without network access.
type FixedRateProvider struct {
	now    func() time.Time
	quotes map[string]RawQuote
}

func NewFixedRateProvider(now func() time.Time) *FixedRateProvider {
	if now == nil {
		now = time.Now
	}
	q := func(code, value string, c QuoteConvention) RawQuote {
		return RawQuote{Asset: code, Value: value, Convention: c, Source: models.SourceMock}
	}
	quotes := []RawQuote{
		q("EUR", "0.92", AssetPerPivot),
		q("GBP", "0.79", AssetPerPivot),
		q("JPY", "151.25", AssetPerPivot),
		q("CHF", "0.88", AssetPerPivot),
		q("CAD", "1.36", AssetPerPivot),
		q("SGD", "1.34", AssetPerPivot),
		q("IDR", "15700", AssetPerPivot),
		q("VND", "24500", AssetPerPivot),
		q("SAR", "3.75", AssetPerPivot),
		q("KWD", "0.307", AssetPerPivot),
		q("XAU", "2350.40", PivotPerAsset),
		q("XAG", "27.85", PivotPerAsset),
		q("BTC", "65000", PivotPerAsset),
		q("ETH", "3200.5", PivotPerAsset),
		q("SOL", "145.12", PivotPerAsset),
	}
	m := make(map[string]RawQuote, len(quotes))
	for _, rq := range quotes {
		m[rq.Asset] = rq
	}
	return &FixedRateProvider{now: now, quotes: m}
}

func (p *FixedRateProvider) Name() string { return models.SourceMock }

func (p *FixedRateProvider) Supports(asset models.Asset) bool {
	_, ok := p.quotes[asset.Code]
	return ok
}

// FetchLatest only answers for a USD pivot; any other pivot yields an empty batch.
func (p *FixedRateProvider) FetchLatest(ctx context.Context, pivot string, assets []models.Asset) (*QuoteBatch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	batch := &QuoteBatch{Provider: p.Name(), ObservedAt: p.now().UTC()}
	if pivot != models.DefaultPivot {
		return batch, nil
	}
	for _, a := range assets {
		if rq, ok := p.quotes[a.Code]; ok {
			batch.Quotes = append(batch.Quotes, rq)
		}
	}
	return batch, nil
}

// FetchHistorical answers with the same fixed quotes, dated date.
func (p *FixedRateProvider) FetchHistorical(ctx context.Context, pivot string, assets []models.Asset, date time.Time) (*QuoteBatch, error) {
	batch, err := p.FetchLatest(ctx, pivot, assets)
	if err != nil {
		return nil, err
	}
	batch.ObservedAt = models.DateOnly(date)
	return batch, nil
}
